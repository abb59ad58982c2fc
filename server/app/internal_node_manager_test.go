package app_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accella/accella/common/models"
	"github.com/accella/accella/server/app"
	"github.com/accella/accella/server/app/server_test"
	"github.com/accella/accella/server/dto/dto_test/referencedata"
)

func TestInternalNodesRunJobEndToEnd(t *testing.T) {
	testApp, cleanup, err := server_test.New(server_test.TestConfig(t))
	require.Nil(t, err)
	defer cleanup()
	ctx := context.Background()

	// Enqueue work before the nodes start so the pipeline runs off the
	// first poll rather than waiting out a poll interval
	job, _ := server_test.CreateAndInstantiateJob(t, ctx, testApp, "")

	manager := app.NewInternalNodeManager(
		testApp.DispatchService,
		testApp.LifecycleService,
		testApp.JournalService,
		testApp.NodeService,
		app.InternalNodeConfig{
			StartInternalNodes: true,
			Services:           []models.ResourceName{referencedata.TestServiceName},
			ParallelTasks:      2,
		},
		testApp.LogFactory)
	require.Nil(t, manager.Start())
	defer manager.Stop()

	// Starting again must not spin up a second set of nodes
	require.Nil(t, manager.Start())

	deadline := time.Now().Add(10 * time.Second)
	for {
		current, err := testApp.JobService.Read(ctx, nil, job.ID)
		require.Nil(t, err)
		if current.Status == models.JobStatusDone {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for job to finish; status is %q", current.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Exactly one internal node registered for the service, declaring its
	// executor slots
	registered, err := testApp.NodeService.List(ctx, nil)
	require.Nil(t, err)
	require.Len(t, registered, 1)
	internalNode := registered[0]
	assert.True(t, strings.HasPrefix(internalNode.Name.String(), "internal-"))
	assert.Equal(t, models.StringList{"internal"}, internalNode.Labels)
	assert.Equal(t, models.ServiceLimits{referencedata.TestServiceName: 2}, internalNode.MaxConcurrency)

	// The echo executor returns each task's params as its results
	tasks, err := testApp.JobService.ListTasks(ctx, nil, job.ID)
	require.Nil(t, err)
	require.Len(t, tasks, 3)
	for _, task := range tasks {
		assert.Equal(t, models.TaskStatusDone, task.Status)
		assert.Equal(t, internalNode.Name, task.AssignedNode)
		switch task.TaskKey {
		case "extract":
			assert.Equal(t, models.JSONMap{"source": "warehouse/input"}, task.Results)
		case "load":
			assert.Equal(t, models.JSONMap{"destination": "warehouse/output"}, task.Results)
		default:
			assert.Empty(t, task.Results)
		}
	}

	// The node's registration outlives the manager so operators can still
	// inspect what ran where
	manager.Stop()
	_, err = testApp.NodeService.Read(ctx, nil, internalNode.Name)
	require.Nil(t, err)
}

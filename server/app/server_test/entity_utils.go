package server_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/accella/accella/common/models"
	"github.com/accella/accella/server/dto/dto_test/referencedata"
)

// CreateWorkflow creates a new workflow definition with a three-step pipeline,
// for use during a test. Any errors will cause failure of the test.
// If name is left blank then a random name will be used.
func CreateWorkflow(t *testing.T, ctx context.Context, app *TestEngine, name models.ResourceName, version int) *models.Workflow {
	workflow := referencedata.GenerateWorkflow(name, version)

	err := app.WorkflowService.Create(ctx, nil, workflow)
	require.Nil(t, err)

	return workflow
}

// CreateDiamondWorkflow creates a new workflow definition whose steps form a
// diamond (fetch fans out to two parsers which join at a merge step), for use
// during a test. Any errors will cause failure of the test.
func CreateDiamondWorkflow(t *testing.T, ctx context.Context, app *TestEngine, name models.ResourceName, version int) *models.Workflow {
	workflow := referencedata.GenerateDiamondWorkflow(name, version)

	err := app.WorkflowService.Create(ctx, nil, workflow)
	require.Nil(t, err)

	return workflow
}

func EnqueueJob(t *testing.T, ctx context.Context, app *TestEngine, workflowName models.ResourceName, version int) *models.Job {
	enqueue := referencedata.GenerateEnqueueJob(workflowName, version)

	job, err := app.JobService.Enqueue(ctx, nil, enqueue)
	require.Nil(t, err)
	require.Equal(t, models.JobStatusQueued, job.Status)

	return job
}

// CreateAndInstantiateJob creates a workflow, enqueues a job against it and
// expands the job into tasks. Returns the job and its tasks in creation order.
func CreateAndInstantiateJob(t *testing.T, ctx context.Context, app *TestEngine, workflowName models.ResourceName) (*models.Job, []*models.JobTask) {
	workflow := CreateWorkflow(t, ctx, app, workflowName, 0)
	job := EnqueueJob(t, ctx, app, workflow.Name, workflow.Version)
	tasks := InstantiateJob(t, ctx, app, job.ID, len(workflow.Steps))
	return job, tasks
}

// InstantiateJob expands the specified job's workflow into tasks and verifies
// that exactly expectedTasks of them were created.
func InstantiateJob(t *testing.T, ctx context.Context, app *TestEngine, jobID models.JobID, expectedTasks int) []*models.JobTask {
	created, err := app.WorkflowService.Instantiate(ctx, nil, jobID)
	require.Nil(t, err)
	require.Equal(t, expectedTasks, created)

	tasks, err := app.JobService.ListTasks(ctx, nil, jobID)
	require.Nil(t, err)
	require.Len(t, tasks, expectedTasks)

	return tasks
}

// CreateNode registers a node via heartbeat with the specified capacity for a
// single service, for use during a test. Any errors will cause failure of the
// test. If name is left blank then a default name will be used.
func CreateNode(t *testing.T, ctx context.Context, app *TestEngine, name models.ResourceName, service models.ResourceName, capacity int) *models.Node {
	if name == "" {
		name = referencedata.TestNodeName
	}

	heartbeat := referencedata.GenerateNodeHeartbeat(name, service, capacity)

	node, err := app.NodeService.Heartbeat(ctx, nil, heartbeat)
	require.Nil(t, err)

	return node
}

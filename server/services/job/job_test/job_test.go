package job_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accella/accella/common/gerror"
	"github.com/accella/accella/common/models"
	"github.com/accella/accella/server/app/server_test"
	"github.com/accella/accella/server/dto"
	"github.com/accella/accella/server/dto/dto_test/referencedata"
)

func TestEnqueueVersionResolution(t *testing.T) {
	app, cleanup, err := server_test.New(server_test.TestConfig(t))
	require.Nil(t, err)
	defer cleanup()
	ctx := context.Background()

	// Two versions of the same workflow with different shapes
	workflowName := referencedata.GenerateName("workflow-")
	v1 := server_test.CreateWorkflow(t, ctx, app, workflowName, 1)
	v2 := server_test.CreateDiamondWorkflow(t, ctx, app, workflowName, 2)

	// Version 0 selects the latest version
	latestJob := server_test.EnqueueJob(t, ctx, app, workflowName, 0)
	assert.Equal(t, v2.ID, latestJob.WorkflowID)
	server_test.InstantiateJob(t, ctx, app, latestJob.ID, len(v2.Steps))

	// An explicit version is honored even when newer versions exist
	pinnedJob := server_test.EnqueueJob(t, ctx, app, workflowName, 1)
	assert.Equal(t, v1.ID, pinnedJob.WorkflowID)
	server_test.InstantiateJob(t, ctx, app, pinnedJob.ID, len(v1.Steps))

	// Unknown versions and unknown workflows are not found
	_, err = app.JobService.Enqueue(ctx, nil, referencedata.GenerateEnqueueJob(workflowName, 99))
	require.NotNil(t, err)
	require.True(t, gerror.IsNotFound(err))

	_, err = app.JobService.Enqueue(ctx, nil, referencedata.GenerateEnqueueJob("no-such-workflow", 0))
	require.NotNil(t, err)
	require.True(t, gerror.IsNotFound(err))
}

func TestEnqueueValidation(t *testing.T) {
	app, cleanup, err := server_test.New(server_test.TestConfig(t))
	require.Nil(t, err)
	defer cleanup()
	ctx := context.Background()

	workflow := server_test.CreateWorkflow(t, ctx, app, "", 0)

	tests := []struct {
		name    string
		enqueue *dto.EnqueueJob
	}{
		{"InvalidWorkflowName", &dto.EnqueueJob{WorkflowName: "Not A Valid Name!"}},
		{"NegativeVersion", &dto.EnqueueJob{WorkflowName: workflow.Name, WorkflowVersion: -1}},
		{"NegativePriority", &dto.EnqueueJob{WorkflowName: workflow.Name, Priority: -1}},
		{"ZeroScheduledAt", &dto.EnqueueJob{WorkflowName: workflow.Name, ScheduledAt: &models.Time{}}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := app.JobService.Enqueue(ctx, nil, test.enqueue)
			require.NotNil(t, err)
			require.True(t, gerror.IsValidationFailed(err), "Expected a validation error, got %v", err)
		})
	}
}

func TestJobProgress(t *testing.T) {
	app, cleanup, err := server_test.New(server_test.TestConfig(t))
	require.Nil(t, err)
	defer cleanup()
	ctx := context.Background()

	job, _ := server_test.CreateAndInstantiateJob(t, ctx, app, "")

	err = app.JobService.UpdateProgress(ctx, nil, job.ID, 0.25, "extract")
	require.Nil(t, err)
	updated, err := app.JobService.Read(ctx, nil, job.ID)
	require.Nil(t, err)
	assert.Equal(t, 0.25, updated.Progress)
	assert.Equal(t, models.ResourceName("extract"), updated.CurrentTaskKey)

	// Progress reports outside [0,1] are rejected
	err = app.JobService.UpdateProgress(ctx, nil, job.ID, -0.1, "extract")
	require.NotNil(t, err)
	require.True(t, gerror.IsValidationFailed(err))
	err = app.JobService.UpdateProgress(ctx, nil, job.ID, 1.1, "extract")
	require.NotNil(t, err)
	require.True(t, gerror.IsValidationFailed(err))

	// Progress against a job that does not exist is not found
	err = app.JobService.UpdateProgress(ctx, nil, models.NewJobID(), 0.5, "extract")
	require.NotNil(t, err)
	require.True(t, gerror.IsNotFound(err))
}

func TestEnqueueAssignsDispatchOrder(t *testing.T) {
	app, cleanup, err := server_test.New(server_test.TestConfig(t))
	require.Nil(t, err)
	defer cleanup()
	ctx := context.Background()

	workflow := server_test.CreateWorkflow(t, ctx, app, "", 0)

	// Order sequence numbers strictly increase in enqueue order regardless
	// of priority
	var lastSeq int64
	for i, priority := range []int{5, 0, 9} {
		enqueue := referencedata.GenerateEnqueueJob(workflow.Name, workflow.Version)
		enqueue.Priority = priority
		job, err := app.JobService.Enqueue(ctx, nil, enqueue)
		require.Nil(t, err)
		assert.Equal(t, priority, job.Priority)
		if i > 0 {
			assert.Greater(t, job.OrderSeq, lastSeq)
		}
		lastSeq = job.OrderSeq
	}

	// The enqueue time and options are preserved
	enqueue := referencedata.GenerateEnqueueJob(workflow.Name, workflow.Version)
	enqueue.Options = models.JSONMap{"trace_id": "abc123", "sample_rate": float64(10)}
	job, err := app.JobService.Enqueue(ctx, nil, enqueue)
	require.Nil(t, err)
	stored, err := app.JobService.Read(ctx, nil, job.ID)
	require.Nil(t, err)
	assert.Equal(t, models.JobStatusQueued, stored.Status)
	assert.Equal(t, "abc123", stored.Options["trace_id"])
	assert.Equal(t, float64(10), stored.Options["sample_rate"])
	assert.False(t, stored.CreatedAt.IsZero())
	assert.Nil(t, stored.ScheduledAt)
	assert.WithinDuration(t, time.Now(), stored.CreatedAt.Time, time.Minute)
}

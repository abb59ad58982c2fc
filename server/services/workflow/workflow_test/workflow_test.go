package workflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accella/accella/common/gerror"
	"github.com/accella/accella/common/models"
	"github.com/accella/accella/server/app/server_test"
	"github.com/accella/accella/server/dto/dto_test/referencedata"
)

func TestWorkflowValidation(t *testing.T) {
	app, cleanup, err := server_test.New(server_test.TestConfig(t))
	require.Nil(t, err)
	defer cleanup()
	ctx := context.Background()

	tests := []struct {
		name  string
		steps models.WorkflowSteps
	}{
		{
			name: "DuplicateStepKey",
			steps: models.WorkflowSteps{
				{Key: "extract", ServiceName: referencedata.TestServiceName},
				{Key: "extract", ServiceName: referencedata.TestServiceName},
			},
		},
		{
			name: "UnknownDependency",
			steps: models.WorkflowSteps{
				{Key: "extract", ServiceName: referencedata.TestServiceName},
				{Key: "transform", ServiceName: referencedata.TestServiceName, DependsOn: models.StringList{"no-such-step"}},
			},
		},
		{
			name: "SelfDependency",
			steps: models.WorkflowSteps{
				{Key: "extract", ServiceName: referencedata.TestServiceName, DependsOn: models.StringList{"extract"}},
			},
		},
		{
			name: "DependencyCycle",
			steps: models.WorkflowSteps{
				{Key: "a", ServiceName: referencedata.TestServiceName, DependsOn: models.StringList{"c"}},
				{Key: "b", ServiceName: referencedata.TestServiceName, DependsOn: models.StringList{"a"}},
				{Key: "c", ServiceName: referencedata.TestServiceName, DependsOn: models.StringList{"b"}},
			},
		},
		{
			name: "InvalidStepKey",
			steps: models.WorkflowSteps{
				{Key: "not a valid key!", ServiceName: referencedata.TestServiceName},
			},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			workflow := models.NewWorkflow(
				models.NewTime(time.Now()), referencedata.GenerateName("workflow-"), 1, test.steps, models.OnErrorSkipDescendants)
			err := app.WorkflowService.Create(ctx, nil, workflow)
			require.NotNil(t, err)
			require.True(t, gerror.IsValidationFailed(err), "Expected a validation error, got %v", err)

			_, err = app.WorkflowService.Read(ctx, nil, workflow.ID)
			require.True(t, gerror.IsNotFound(err), "Workflow should not have been stored")
		})
	}
}

func TestWorkflowInstantiateIdempotent(t *testing.T) {
	app, cleanup, err := server_test.New(server_test.TestConfig(t))
	require.Nil(t, err)
	defer cleanup()
	ctx := context.Background()

	workflow := server_test.CreateWorkflow(t, ctx, app, "", 0)
	job := server_test.EnqueueJob(t, ctx, app, workflow.Name, workflow.Version)

	tasks := server_test.InstantiateJob(t, ctx, app, job.ID, len(workflow.Steps))
	taskIDs := make(map[models.JobTaskID]bool, len(tasks))
	for _, task := range tasks {
		taskIDs[task.ID] = true
	}

	// Instantiation moves the job from queued to running
	runningJob, err := app.JobService.Read(ctx, nil, job.ID)
	require.Nil(t, err)
	assert.Equal(t, models.JobStatusRunning, runningJob.Status)

	// Repeating the expansion creates nothing new and leaves the original
	// tasks untouched
	for i := 0; i < 3; i++ {
		created, err := app.WorkflowService.Instantiate(ctx, nil, job.ID)
		require.Nil(t, err)
		require.Equal(t, 0, created)
	}
	tasksAfter, err := app.JobService.ListTasks(ctx, nil, job.ID)
	require.Nil(t, err)
	require.Len(t, tasksAfter, len(workflow.Steps))
	for _, task := range tasksAfter {
		assert.True(t, taskIDs[task.ID], "Task %q was not created by the first instantiation", task.ID)
	}

	// Instantiating a job that does not exist is ignored
	created, err := app.WorkflowService.Instantiate(ctx, nil, models.NewJobID())
	require.Nil(t, err)
	assert.Equal(t, 0, created)
}

func TestWorkflowScheduledJobNotInstantiatedEarly(t *testing.T) {
	app, cleanup, err := server_test.New(server_test.TestConfig(t))
	require.Nil(t, err)
	defer cleanup()
	ctx := context.Background()

	workflow := server_test.CreateWorkflow(t, ctx, app, "", 0)

	// A job scheduled for the future stays queued with no tasks
	enqueue := referencedata.GenerateEnqueueJob(workflow.Name, workflow.Version)
	enqueue.ScheduledAt = models.NewTimePtr(time.Now().Add(time.Hour))
	scheduledJob, err := app.JobService.Enqueue(ctx, nil, enqueue)
	require.Nil(t, err)

	created, err := app.WorkflowService.Instantiate(ctx, nil, scheduledJob.ID)
	require.Nil(t, err)
	assert.Equal(t, 0, created)
	stillQueued, err := app.JobService.Read(ctx, nil, scheduledJob.ID)
	require.Nil(t, err)
	assert.Equal(t, models.JobStatusQueued, stillQueued.Status)

	// A job whose scheduled time has passed expands normally
	enqueue = referencedata.GenerateEnqueueJob(workflow.Name, workflow.Version)
	enqueue.ScheduledAt = models.NewTimePtr(time.Now().Add(-time.Minute))
	dueJob, err := app.JobService.Enqueue(ctx, nil, enqueue)
	require.Nil(t, err)
	server_test.InstantiateJob(t, ctx, app, dueJob.ID, len(workflow.Steps))
}

func TestWorkflowImmutableOnceReferenced(t *testing.T) {
	app, cleanup, err := server_test.New(server_test.TestConfig(t))
	require.Nil(t, err)
	defer cleanup()
	ctx := context.Background()

	workflow := server_test.CreateWorkflow(t, ctx, app, "", 0)

	// With no jobs yet the workflow can still be retired and revived
	workflow.IsActive = false
	err = app.WorkflowService.Update(ctx, nil, workflow)
	require.Nil(t, err)

	// Inactive workflows cannot be instantiated
	enqueue := referencedata.GenerateEnqueueJob(workflow.Name, workflow.Version)
	_, err = app.JobService.Enqueue(ctx, nil, enqueue)
	require.NotNil(t, err)
	require.True(t, gerror.IsValidationFailed(err))

	workflow.IsActive = true
	err = app.WorkflowService.Update(ctx, nil, workflow)
	require.Nil(t, err)

	// Once a job references the workflow its definition is frozen
	server_test.EnqueueJob(t, ctx, app, workflow.Name, workflow.Version)
	workflow.OnError = models.OnErrorHalt
	err = app.WorkflowService.Update(ctx, nil, workflow)
	require.NotNil(t, err)
	require.True(t, gerror.IsValidationFailed(err))
}

func TestInstantiationPoller(t *testing.T) {
	app, cleanup, err := server_test.New(server_test.TestConfig(t))
	require.Nil(t, err)
	defer cleanup()
	ctx := context.Background()

	workflow := server_test.CreateWorkflow(t, ctx, app, "", 0)
	job := server_test.EnqueueJob(t, ctx, app, workflow.Name, workflow.Version)

	scheduledEnqueue := referencedata.GenerateEnqueueJob(workflow.Name, workflow.Version)
	scheduledEnqueue.ScheduledAt = models.NewTimePtr(time.Now().Add(time.Hour))
	scheduledJob, err := app.JobService.Enqueue(ctx, nil, scheduledEnqueue)
	require.Nil(t, err)

	app.InstantiationPoller.Start()
	defer app.InstantiationPoller.Stop()

	// One pass expands the due job and leaves the scheduled one queued
	created := app.InstantiationPoller.InstantiateQueuedJobs()
	assert.Equal(t, len(workflow.Steps), created)

	tasks, err := app.JobService.ListTasks(ctx, nil, job.ID)
	require.Nil(t, err)
	assert.Len(t, tasks, len(workflow.Steps))

	stillQueued, err := app.JobService.Read(ctx, nil, scheduledJob.ID)
	require.Nil(t, err)
	assert.Equal(t, models.JobStatusQueued, stillQueued.Status)

	// A second pass finds nothing new to do for the due job
	created = app.InstantiationPoller.InstantiateQueuedJobs()
	assert.Equal(t, 0, created)
}

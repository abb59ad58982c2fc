package jobs_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/accella/accella/common/gerror"
	"github.com/accella/accella/common/models"
	"github.com/accella/accella/server/app/server_test"
	"github.com/accella/accella/server/store"
)

func TestJob(t *testing.T) {
	app, cleanup, err := server_test.New(server_test.TestConfig(t))
	require.Nil(t, err)
	defer cleanup()

	ctx := context.Background()

	workflow := server_test.CreateWorkflow(t, ctx, app, "", 1)

	job := models.NewJob(models.NewTime(time.Now()), workflow.ID, 0, models.JSONMap{"trace_id": "abc123"}, nil)

	t.Run("Create", testJobCreate(app.JobStore, workflow.ID, job))
	t.Run("UpdateProgress", testJobUpdateProgress(app.JobStore, job))
	t.Run("ListByStatus", testJobListByStatus(app.JobStore, job.ID))
	t.Run("CountByWorkflowID", testJobCountByWorkflowID(app.JobStore, workflow.ID))
}

func testJobCreate(jobStore store.JobStore, workflowID models.WorkflowID, job *models.Job) func(t *testing.T) {
	return func(t *testing.T) {
		ctx := context.Background()

		err := jobStore.Create(ctx, nil, job)
		require.Nil(t, err)
		require.Greater(t, job.OrderSeq, int64(0))

		// Order sequence numbers increase strictly with creation order
		second := models.NewJob(models.NewTime(time.Now()), workflowID, 0, nil, nil)
		err = jobStore.Create(ctx, nil, second)
		require.Nil(t, err)
		require.Greater(t, second.OrderSeq, job.OrderSeq)

		t.Run("Read", testJobRead(jobStore, job.ID, job))
	}
}

func testJobRead(jobStore store.JobStore, testJobID models.JobID, referenceJob *models.Job) func(t *testing.T) {
	return func(t *testing.T) {
		job, err := jobStore.Read(context.Background(), nil, testJobID)
		require.Nil(t, err)

		if job.ID != referenceJob.ID {
			t.Error("Unexpected ID")
		}

		if job.CreatedAt != referenceJob.CreatedAt {
			t.Error("Unexpected CreatedAt")
		}

		if job.WorkflowID != referenceJob.WorkflowID {
			t.Error("Unexpected WorkflowID")
		}

		if job.Status != referenceJob.Status {
			t.Error("Unexpected Status")
		}

		if job.OrderSeq != referenceJob.OrderSeq {
			t.Error("Unexpected OrderSeq")
		}

		if job.Priority != referenceJob.Priority {
			t.Error("Unexpected Priority")
		}

		if len(job.Options) != len(referenceJob.Options) {
			t.Error("Mismatched Options")
		}

		if job.ScheduledAt != nil {
			t.Error("Unexpected ScheduledAt")
		}
	}
}

func testJobUpdateProgress(jobStore store.JobStore, job *models.Job) func(t *testing.T) {
	return func(t *testing.T) {
		ctx := context.Background()

		err := jobStore.UpdateProgress(ctx, nil, job.ID, 0.5, "transform")
		require.Nil(t, err)

		updated, err := jobStore.Read(ctx, nil, job.ID)
		require.Nil(t, err)
		require.Equal(t, 0.5, updated.Progress)
		require.Equal(t, models.ResourceName("transform"), updated.CurrentTaskKey)

		// Other columns are untouched
		require.Equal(t, job.Status, updated.Status)
		require.Equal(t, job.OrderSeq, updated.OrderSeq)

		err = jobStore.UpdateProgress(ctx, nil, models.NewJobID(), 0.5, "transform")
		require.NotNil(t, err)
		require.True(t, gerror.IsNotFound(err))
	}
}

func testJobListByStatus(jobStore store.JobStore, queuedJobID models.JobID) func(t *testing.T) {
	return func(t *testing.T) {
		ctx := context.Background()

		var listed []*models.Job
		pagination := models.NewPagination(1, nil)
		for moreResults := true; moreResults; {
			page, cursor, err := jobStore.ListByStatus(ctx, nil, models.JobStatusQueued, pagination)
			require.Nil(t, err)
			listed = append(listed, page...)
			if cursor != nil && cursor.Next != nil {
				pagination.Cursor = cursor.Next // move on to next page of results
			} else {
				moreResults = false
			}
		}

		found := false
		for _, job := range listed {
			if job.Status != models.JobStatusQueued {
				t.Error("Unexpected Status")
			}
			if job.ID == queuedJobID {
				found = true
			}
		}
		require.True(t, found)

		running, _, err := jobStore.ListByStatus(ctx, nil, models.JobStatusRunning, models.NewPagination(models.DefaultPaginationLimit, nil))
		require.Nil(t, err)
		require.Empty(t, running)
	}
}

func testJobCountByWorkflowID(jobStore store.JobStore, workflowID models.WorkflowID) func(t *testing.T) {
	return func(t *testing.T) {
		count, err := jobStore.CountByWorkflowID(context.Background(), nil, workflowID)
		require.Nil(t, err)
		require.Equal(t, int64(2), count)

		count, err = jobStore.CountByWorkflowID(context.Background(), nil, models.NewWorkflowID())
		require.Nil(t, err)
		require.Equal(t, int64(0), count)
	}
}

package job

import (
	"context"
	"fmt"
	"time"

	"github.com/accella/accella/common/gerror"
	"github.com/accella/accella/common/logger"
	"github.com/accella/accella/common/models"
	"github.com/accella/accella/server/dto"
	"github.com/accella/accella/server/store"
)

type JobService struct {
	db            *store.DB
	workflowStore store.WorkflowStore
	jobStore      store.JobStore
	jobTaskStore  store.JobTaskStore
	logger.Log
}

func NewJobService(
	db *store.DB,
	workflowStore store.WorkflowStore,
	jobStore store.JobStore,
	jobTaskStore store.JobTaskStore,
	logFactory logger.LogFactory,
) *JobService {
	return &JobService{
		db:            db,
		workflowStore: workflowStore,
		jobStore:      jobStore,
		jobTaskStore:  jobTaskStore,
		Log:           logFactory("JobService"),
	}
}

// Enqueue creates a new job for a workflow and allocates its position in the
// global dispatch order. The job is created in status 'queued'; it must be
// instantiated before its tasks can be dispatched.
func (s *JobService) Enqueue(ctx context.Context, txOrNil *store.Tx, enqueue *dto.EnqueueJob) (*models.Job, error) {
	err := enqueue.Validate()
	if err != nil {
		return nil, gerror.NewErrValidationFailed(err.Error()).Wrap(err)
	}
	var job *models.Job
	err = s.db.WithTx(ctx, txOrNil, func(tx *store.Tx) error {
		var workflow *models.Workflow
		var err error
		if enqueue.WorkflowVersion > 0 {
			workflow, err = s.workflowStore.ReadByNameAndVersion(ctx, tx, enqueue.WorkflowName, enqueue.WorkflowVersion)
		} else {
			workflow, err = s.workflowStore.ReadLatestByName(ctx, tx, enqueue.WorkflowName)
		}
		if err != nil {
			return fmt.Errorf("error reading workflow: %w", err)
		}
		if !workflow.IsActive {
			return gerror.NewErrValidationFailed(fmt.Sprintf(
				"error workflow %s/%d is no longer active", workflow.Name, workflow.Version))
		}
		job = models.NewJob(models.NewTime(time.Now()), workflow.ID, enqueue.Priority, enqueue.Options, enqueue.ScheduledAt)
		err = s.jobStore.Create(ctx, tx, job)
		if err != nil {
			return fmt.Errorf("error creating job: %w", err)
		}
		s.Infof("Enqueued job %q for workflow %s/%d with order seq %d", job.ID, workflow.Name, workflow.Version, job.OrderSeq)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Read an existing job, looking it up by ID.
// Returns gerror.ErrNotFound if the job does not exist.
func (s *JobService) Read(ctx context.Context, txOrNil *store.Tx, id models.JobID) (*models.Job, error) {
	return s.jobStore.Read(ctx, txOrNil, id)
}

// ListTasks lists all tasks belonging to the specified job, in creation order.
func (s *JobService) ListTasks(ctx context.Context, txOrNil *store.Tx, jobID models.JobID) ([]*models.JobTask, error) {
	return s.jobTaskStore.ListByJobID(ctx, txOrNil, jobID)
}

// UpdateProgress records the job's display progress and the task currently
// being worked on. Progress must be within [0,1].
func (s *JobService) UpdateProgress(ctx context.Context, txOrNil *store.Tx, id models.JobID, progress float64, currentTaskKey models.ResourceName) error {
	if progress < 0 || progress > 1 {
		return gerror.NewErrValidationFailed(fmt.Sprintf("error progress must be within [0,1], got %v", progress))
	}
	return s.jobStore.UpdateProgress(ctx, txOrNil, id, progress, currentTaskKey)
}

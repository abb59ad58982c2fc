package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/accella/accella/common/gerror"
	"github.com/accella/accella/common/logger"
	"github.com/accella/accella/common/models"
	"github.com/accella/accella/server/store"
)

type WorkflowService struct {
	db            *store.DB
	workflowStore store.WorkflowStore
	jobStore      store.JobStore
	jobTaskStore  store.JobTaskStore
	logger.Log
}

func NewWorkflowService(
	db *store.DB,
	workflowStore store.WorkflowStore,
	jobStore store.JobStore,
	jobTaskStore store.JobTaskStore,
	logFactory logger.LogFactory,
) *WorkflowService {
	return &WorkflowService{
		db:            db,
		workflowStore: workflowStore,
		jobStore:      jobStore,
		jobTaskStore:  jobTaskStore,
		Log:           logFactory("WorkflowService"),
	}
}

// Create a new workflow after validating its step graph.
// Returns gerror.ErrValidationFailed if the graph contains duplicate step keys,
// dependencies on unknown steps, or cycles.
// Returns gerror.ErrAlreadyExists if a workflow with the same name and version already exists.
func (s *WorkflowService) Create(ctx context.Context, txOrNil *store.Tx, workflow *models.Workflow) error {
	err := workflow.Validate()
	if err != nil {
		return gerror.NewErrValidationFailed(err.Error()).Wrap(err)
	}
	err = s.workflowStore.Create(ctx, txOrNil, workflow)
	if err != nil {
		return fmt.Errorf("error creating workflow: %w", err)
	}
	s.Infof("Created workflow %q (%s version %d)", workflow.ID, workflow.Name, workflow.Version)
	return nil
}

// Read an existing workflow, looking it up by ID.
// Returns gerror.ErrNotFound if the workflow does not exist.
func (s *WorkflowService) Read(ctx context.Context, txOrNil *store.Tx, id models.WorkflowID) (*models.Workflow, error) {
	return s.workflowStore.Read(ctx, txOrNil, id)
}

// ReadByNameAndVersion reads the workflow with the specified name and version.
// Returns gerror.ErrNotFound if the workflow does not exist.
func (s *WorkflowService) ReadByNameAndVersion(ctx context.Context, txOrNil *store.Tx, name models.ResourceName, version int) (*models.Workflow, error) {
	return s.workflowStore.ReadByNameAndVersion(ctx, txOrNil, name, version)
}

// ReadLatestByName reads the highest version of the named workflow.
// Returns gerror.ErrNotFound if no version of the workflow exists.
func (s *WorkflowService) ReadLatestByName(ctx context.Context, txOrNil *store.Tx, name models.ResourceName) (*models.Workflow, error) {
	return s.workflowStore.ReadLatestByName(ctx, txOrNil, name)
}

// Update an existing workflow. Workflows that are referenced by one or more
// jobs are immutable; updating one returns gerror.ErrValidationFailed.
func (s *WorkflowService) Update(ctx context.Context, txOrNil *store.Tx, workflow *models.Workflow) error {
	err := workflow.Validate()
	if err != nil {
		return gerror.NewErrValidationFailed(err.Error()).Wrap(err)
	}
	return s.db.WithTx(ctx, txOrNil, func(tx *store.Tx) error {
		count, err := s.jobStore.CountByWorkflowID(ctx, tx, workflow.ID)
		if err != nil {
			return fmt.Errorf("error counting jobs for workflow: %w", err)
		}
		if count > 0 {
			return gerror.NewErrValidationFailed(fmt.Sprintf(
				"error workflow %q is referenced by %d job(s) and can no longer be modified", workflow.ID, count))
		}
		err = s.workflowStore.Update(ctx, tx, workflow)
		if err != nil {
			return fmt.Errorf("error updating workflow: %w", err)
		}
		return nil
	})
}

// ListActive lists workflows that can currently be instantiated.
// Use cursor to page through results, if any.
func (s *WorkflowService) ListActive(ctx context.Context, txOrNil *store.Tx, pagination models.Pagination) ([]*models.Workflow, *models.Cursor, error) {
	return s.workflowStore.ListActive(ctx, txOrNil, pagination)
}

// Instantiate expands the specified job's workflow into one task per step.
// Instantiation is idempotent: steps whose task already exists are left alone,
// and a job whose tasks all exist is a no-op. Returns the number of tasks
// created. A missing job or workflow is logged and ignored so that deletes
// racing an instantiation do not fail the caller.
func (s *WorkflowService) Instantiate(ctx context.Context, txOrNil *store.Tx, jobID models.JobID) (int, error) {
	created := 0
	err := s.db.WithTx(ctx, txOrNil, func(tx *store.Tx) error {
		created = 0
		// Lock the job row so concurrent instantiations of the same job serialize,
		// and so the queued to running transition below cannot clobber a status
		// written by another transaction in the meantime.
		err := s.jobStore.LockRowForUpdate(ctx, tx, jobID)
		if err != nil && !gerror.IsNotFound(err) {
			return fmt.Errorf("error locking job: %w", err)
		}
		job, err := s.jobStore.Read(ctx, tx, jobID)
		if err != nil {
			if gerror.IsNotFound(err) {
				s.Debugf("Ignoring instantiation of missing job %q", jobID)
				return nil
			}
			return fmt.Errorf("error reading job: %w", err)
		}
		if job.ScheduledAt != nil && time.Now().Before(job.ScheduledAt.Time) {
			s.Debugf("Job %q is scheduled for %s; not instantiating yet", jobID, job.ScheduledAt)
			return nil
		}
		workflow, err := s.workflowStore.Read(ctx, tx, job.WorkflowID)
		if err != nil {
			if gerror.IsNotFound(err) {
				s.Debugf("Ignoring instantiation of job %q referencing missing workflow %q", jobID, job.WorkflowID)
				return nil
			}
			return fmt.Errorf("error reading workflow: %w", err)
		}
		tasks, err := s.jobTaskStore.ListByJobID(ctx, tx, jobID)
		if err != nil {
			return fmt.Errorf("error listing existing tasks: %w", err)
		}
		existing := make(map[models.ResourceName]bool, len(tasks))
		for _, task := range tasks {
			existing[task.TaskKey] = true
		}
		now := models.NewTime(time.Now())
		for _, step := range workflow.Steps {
			if existing[step.Key] {
				continue
			}
			task := models.NewJobTask(now, jobID, step)
			err := s.jobTaskStore.Create(ctx, tx, task)
			if err != nil {
				if gerror.IsAlreadyExists(err) {
					// A concurrent instantiation created this task first; that is
					// the same outcome we wanted.
					continue
				}
				return fmt.Errorf("error creating task %q: %w", step.Key, err)
			}
			created++
		}
		if created > 0 && job.Status == models.JobStatusQueued {
			job.Status = models.JobStatusRunning
			err = s.jobStore.Update(ctx, tx, job)
			if err != nil {
				return fmt.Errorf("error updating job status: %w", err)
			}
		}
		if created > 0 {
			s.Infof("Instantiated %d task(s) for job %q from workflow %s/%d", created, jobID, workflow.Name, workflow.Version)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

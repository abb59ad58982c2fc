package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/accella/accella/common/gerror"
	"github.com/accella/accella/common/logger"
	"github.com/accella/accella/common/models"
	"github.com/accella/accella/server/dto"
	"github.com/accella/accella/server/services"
	"github.com/accella/accella/server/store"
)

// EventSource identifies the lifecycle manager as the producer of journal events.
const EventSource = "lifecycle"

type LifecycleService struct {
	db             *store.DB
	workflowStore  store.WorkflowStore
	jobStore       store.JobStore
	jobTaskStore   store.JobTaskStore
	journalService services.JournalService
	retry          RetryConfig
	clk            clock.Clock
	logger.Log
}

func NewLifecycleService(
	db *store.DB,
	workflowStore store.WorkflowStore,
	jobStore store.JobStore,
	jobTaskStore store.JobTaskStore,
	journalService services.JournalService,
	retry RetryConfig,
	clk clock.Clock,
	logFactory logger.LogFactory,
) *LifecycleService {
	if retry.InitialInterval == 0 {
		retry = DefaultRetryConfig()
	}
	return &LifecycleService{
		db:             db,
		workflowStore:  workflowStore,
		jobStore:       jobStore,
		jobTaskStore:   jobTaskStore,
		journalService: journalService,
		retry:          retry,
		clk:            clk,
		Log:            logFactory("LifecycleService"),
	}
}

// MarkRunning records the worker's acknowledgement that real work on the task
// has begun. Idempotent for a task that is already running. When worker is
// non-empty it must match the identity recorded at claim time.
func (s *LifecycleService) MarkRunning(ctx context.Context, id models.JobTaskID, worker models.ResourceName) error {
	return s.db.WithTx(ctx, nil, func(tx *store.Tx) error {
		task, err := s.jobTaskStore.Read(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("error reading task: %w", err)
		}
		if worker != "" && task.ClaimedBy != worker {
			return gerror.NewErrValidationFailed(fmt.Sprintf("task %q is claimed by %q, not %q", id, task.ClaimedBy, worker))
		}
		err = s.jobTaskStore.MarkRunning(ctx, tx, id)
		if err != nil {
			return err
		}
		// Surface the task on the job for anyone watching its progress.
		job, err := s.jobStore.Read(ctx, tx, task.JobID)
		if err != nil {
			return fmt.Errorf("error reading job: %w", err)
		}
		err = s.jobStore.UpdateProgress(ctx, tx, task.JobID, job.Progress, task.TaskKey)
		if err != nil {
			return fmt.Errorf("error recording current task on job: %w", err)
		}
		return nil
	})
}

// UpdateProgress records how far through its work a task is. Progress is
// monotonic; late or duplicate reports with a lower fraction are ignored.
func (s *LifecycleService) UpdateProgress(ctx context.Context, id models.JobTaskID, fraction float64) error {
	return s.jobTaskStore.UpdateProgress(ctx, nil, id, fraction)
}

// MarkDone finishes a task successfully, merging the supplied results over any
// previously stored results (nil preserves them), and finalizes the job if
// this was its last unfinished task.
func (s *LifecycleService) MarkDone(ctx context.Context, id models.JobTaskID, results models.JSONMap) (*models.JobTask, error) {
	var task *models.JobTask
	err := s.db.WithTx(ctx, nil, func(tx *store.Tx) error {
		var err error
		task, err = s.jobTaskStore.MarkDone(ctx, tx, id, results)
		if err != nil {
			return err
		}
		err = s.appendTaskStatusEvent(ctx, tx, task, models.EventLevelInfo, fmt.Sprintf("task %s finished", task.TaskKey))
		if err != nil {
			return err
		}
		_, err = s.MaybeFinishJob(ctx, tx, task.JobID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// ReportFailure records a failed attempt. While the task still has retry
// budget it goes back to the queue with an exponential back-off. Once the
// budget is exhausted the failure is terminal: a skippable task finishes as
// skipped, anything else as error, the failure cascades to queued descendants
// according to the workflow's on-error policy, and the job is finalized if no
// unfinished tasks remain. Returns the task as it exists afterwards.
func (s *LifecycleService) ReportFailure(ctx context.Context, id models.JobTaskID, errorCode string, errorMessage string) (*models.JobTask, error) {
	var result *models.JobTask
	err := s.db.WithTx(ctx, nil, func(tx *store.Tx) error {
		task, err := s.jobTaskStore.Read(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("error reading task: %w", err)
		}
		if task.Status.HasFinished() {
			return gerror.NewErrValidationFailed(fmt.Sprintf("task %q has already finished with status %q", id, task.Status))
		}
		failedAttempts := task.Attempt + 1
		if failedAttempts < task.MaxAttempts {
			result, err = s.requeueForRetry(ctx, tx, task, failedAttempts, errorCode, errorMessage)
			return err
		}
		result, err = s.finishFailed(ctx, tx, task, failedAttempts, errorCode, errorMessage)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// requeueForRetry returns a failed task to the queue with a back-off window
// and journals the retry.
func (s *LifecycleService) requeueForRetry(
	ctx context.Context,
	tx *store.Tx,
	task *models.JobTask,
	failedAttempts int,
	errorCode string,
	errorMessage string,
) (*models.JobTask, error) {
	delay := s.retry.NextAttemptDelay(failedAttempts)
	nextAttemptAt := models.NewTime(s.clk.Now().Add(delay))
	err := s.jobTaskStore.RequeueForRetry(ctx, tx, task.ID, nextAttemptAt)
	if err != nil {
		return nil, err
	}
	taskID := task.ID
	_, err = s.journalService.AppendEvent(ctx, tx, &dto.AppendEvent{
		JobID:     task.JobID,
		JobTaskID: &taskID,
		Source:    EventSource,
		Level:     models.EventLevelWarn,
		Type:      models.EventTypeRetry,
		Message:   fmt.Sprintf("task %s failed attempt %d of %d; retrying in %s", task.TaskKey, failedAttempts, task.MaxAttempts, delay.Round(time.Second)),
		Data: models.JSONMap{
			"error_code":      errorCode,
			"error_message":   errorMessage,
			"attempt":         failedAttempts,
			"next_attempt_at": nextAttemptAt.Format(time.RFC3339),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("error appending retry event: %w", err)
	}
	s.Infof("Task %q failed attempt %d of %d; next attempt after %s", task.ID, failedAttempts, task.MaxAttempts, nextAttemptAt)
	return s.jobTaskStore.Read(ctx, tx, task.ID)
}

// finishFailed applies a terminal failure to a task that has no retry budget
// left, cascades skips and finalizes the job where warranted.
func (s *LifecycleService) finishFailed(
	ctx context.Context,
	tx *store.Tx,
	task *models.JobTask,
	failedAttempts int,
	errorCode string,
	errorMessage string,
) (*models.JobTask, error) {
	var (
		finished *models.JobTask
		err      error
	)
	if task.Skippable {
		finished, err = s.jobTaskStore.FinishSkipped(ctx, tx, task.ID, errorCode, errorMessage)
		if err != nil {
			return nil, err
		}
		err = s.appendTaskStatusEvent(ctx, tx, finished, models.EventLevelWarn,
			fmt.Sprintf("task %s skipped after %d failed attempt(s): %s", finished.TaskKey, failedAttempts, errorMessage))
	} else {
		finished, err = s.jobTaskStore.MarkError(ctx, tx, task.ID, errorCode, errorMessage)
		if err != nil {
			return nil, err
		}
		err = s.appendTaskStatusEvent(ctx, tx, finished, models.EventLevelError,
			fmt.Sprintf("task %s failed after %d attempt(s): %s", finished.TaskKey, failedAttempts, errorMessage))
	}
	if err != nil {
		return nil, err
	}
	err = s.propagateSkips(ctx, tx, finished)
	if err != nil {
		return nil, err
	}
	_, err = s.MaybeFinishJob(ctx, tx, finished.JobID)
	if err != nil {
		return nil, err
	}
	return finished, nil
}

// propagateSkips marks queued tasks downstream of a terminally failed task as
// skipped, honoring the workflow's on-error policy. A queued task whose
// dependencies can never all complete would otherwise block the job forever.
// Skipping iterates to a fixpoint because each newly skipped task can break
// the chains of its own dependents.
func (s *LifecycleService) propagateSkips(ctx context.Context, tx *store.Tx, from *models.JobTask) error {
	job, err := s.jobStore.Read(ctx, tx, from.JobID)
	if err != nil {
		return fmt.Errorf("error reading job: %w", err)
	}
	workflow, err := s.workflowStore.Read(ctx, tx, job.WorkflowID)
	if err != nil {
		return fmt.Errorf("error reading workflow: %w", err)
	}
	if workflow.OnError == models.OnErrorHalt {
		s.Debugf("Workflow %q halts on error; leaving tasks downstream of %s queued", workflow.Name, from.TaskKey)
		return nil
	}
	tasks, err := s.jobTaskStore.ListByJobID(ctx, tx, from.JobID)
	if err != nil {
		return fmt.Errorf("error listing job tasks: %w", err)
	}
	tasksByKey := make(map[models.ResourceName]*models.JobTask, len(tasks))
	for _, task := range tasks {
		tasksByKey[task.TaskKey] = task
	}
	for changed := true; changed; {
		changed = false
		for _, task := range tasks {
			if task.Status != models.TaskStatusQueued || !dependencyBroken(task, tasksByKey) {
				continue
			}
			err := s.jobTaskStore.MarkSkipped(ctx, tx, task.ID)
			if err != nil {
				return fmt.Errorf("error skipping task %q: %w", task.ID, err)
			}
			task.Status = models.TaskStatusSkipped
			changed = true
			err = s.appendTaskStatusEvent(ctx, tx, task, models.EventLevelWarn,
				fmt.Sprintf("task %s skipped; a dependency can no longer complete", task.TaskKey))
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// dependencyBroken returns true if one of the task's dependencies can never be
// satisfied: a dependency in error always blocks, and a skipped dependency
// blocks unless the task tolerates skipped dependencies.
func dependencyBroken(task *models.JobTask, tasksByKey map[models.ResourceName]*models.JobTask) bool {
	for _, key := range task.DependsOn {
		dep, ok := tasksByKey[models.ResourceName(key)]
		if !ok {
			continue
		}
		if dep.Status == models.TaskStatusError {
			return true
		}
		if dep.Status == models.TaskStatusSkipped && !task.AllowSkippedDeps {
			return true
		}
	}
	return false
}

// MaybeFinishJob finalizes the job once no unfinished tasks remain: done when
// every task finished in done or skipped, error when at least one task failed
// terminally. The job row is locked first so concurrent task completions
// serialize their verdicts. Safe to call at any time; a job with unfinished
// tasks, no tasks, or an already-terminal status is left unchanged.
// Returns the job as it exists afterwards.
func (s *LifecycleService) MaybeFinishJob(ctx context.Context, txOrNil *store.Tx, jobID models.JobID) (*models.Job, error) {
	var job *models.Job
	err := s.db.WithTx(ctx, txOrNil, func(tx *store.Tx) error {
		// Take the lock before reading so two finishers cannot both act on a
		// stale status.
		err := s.jobStore.LockRowForUpdate(ctx, tx, jobID)
		if err != nil {
			return fmt.Errorf("error locking job: %w", err)
		}
		job, err = s.jobStore.Read(ctx, tx, jobID)
		if err != nil {
			return fmt.Errorf("error reading job: %w", err)
		}
		if job.Status.HasFinished() {
			return nil
		}
		tasks, err := s.jobTaskStore.ListByJobID(ctx, tx, jobID)
		if err != nil {
			return fmt.Errorf("error listing job tasks: %w", err)
		}
		if len(tasks) == 0 {
			return nil
		}
		var firstError *models.JobTask
		for _, task := range tasks {
			if !task.Status.HasFinished() {
				return nil
			}
			if task.Status == models.TaskStatusError && firstError == nil {
				firstError = task
			}
		}
		var level models.EventLevel
		if firstError != nil {
			job.Status = models.JobStatusError
			job.Error = jobErrorFromTask(firstError)
			level = models.EventLevelError
		} else {
			job.Status = models.JobStatusDone
			job.Progress = 1
			job.Error = nil
			level = models.EventLevelInfo
		}
		job.UpdatedAt = models.NewTime(s.clk.Now())
		err = s.jobStore.Update(ctx, tx, job)
		if err != nil {
			return fmt.Errorf("error updating job: %w", err)
		}
		_, err = s.journalService.AppendEvent(ctx, tx, &dto.AppendEvent{
			JobID:   job.ID,
			Source:  EventSource,
			Level:   level,
			Type:    models.EventTypeStatus,
			Message: fmt.Sprintf("job finished with status %s", job.Status),
			Data:    models.JSONMap{"status": job.Status.String()},
		})
		if err != nil {
			return fmt.Errorf("error appending job status event: %w", err)
		}
		s.Infof("Job %q finished with status %q", job.ID, job.Status)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// appendTaskStatusEvent journals a task status transition.
func (s *LifecycleService) appendTaskStatusEvent(
	ctx context.Context,
	tx *store.Tx,
	task *models.JobTask,
	level models.EventLevel,
	message string,
) error {
	taskID := task.ID
	_, err := s.journalService.AppendEvent(ctx, tx, &dto.AppendEvent{
		JobID:     task.JobID,
		JobTaskID: &taskID,
		Source:    EventSource,
		Level:     level,
		Type:      models.EventTypeStatus,
		Message:   message,
		Data: models.JSONMap{
			"status":   task.Status.String(),
			"task_key": task.TaskKey.String(),
		},
	})
	if err != nil {
		return fmt.Errorf("error appending status event: %w", err)
	}
	return nil
}

// jobErrorFromTask lifts a failed task's recorded error into the job's error
// column. Tasks finished by MarkError carry {error:{code,message}} in results.
func jobErrorFromTask(task *models.JobTask) *models.JobError {
	jobError := &models.JobError{
		Code:    "task_failed",
		Message: fmt.Sprintf("task %s failed after %d attempt(s)", task.TaskKey, task.Attempt+1),
	}
	details, ok := task.Results["error"].(map[string]interface{})
	if !ok {
		return jobError
	}
	if code, ok := details["code"].(string); ok && code != "" {
		jobError.Code = code
	}
	if message, ok := details["message"].(string); ok && message != "" {
		jobError.Message = message
	}
	return jobError
}

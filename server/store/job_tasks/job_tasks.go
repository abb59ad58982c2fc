package job_tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/accella/accella/common/gerror"
	"github.com/accella/accella/common/logger"
	"github.com/accella/accella/common/models"
	"github.com/accella/accella/server/store"
)

func init() {
	store.MustDBModel(&models.JobTask{})
}

type JobTaskStore struct {
	db    *store.DB
	table *store.Table
}

func NewStore(db *store.DB, logFactory logger.LogFactory) *JobTaskStore {
	return &JobTaskStore{
		db:    db,
		table: store.NewTable(db, logFactory, &models.JobTask{}),
	}
}

// Create a new task.
// Returns gerror.ErrAlreadyExists if the task's job already has a task with the same key.
func (d *JobTaskStore) Create(ctx context.Context, txOrNil *store.Tx, task *models.JobTask) error {
	return d.table.Create(ctx, txOrNil, task)
}

// Read an existing task, looking it up by ID.
// Returns gerror.ErrNotFound if the task does not exist.
func (d *JobTaskStore) Read(ctx context.Context, txOrNil *store.Tx, id models.JobTaskID) (*models.JobTask, error) {
	task := &models.JobTask{}
	return task, d.table.ReadByID(ctx, txOrNil, id, task)
}

// ReadByKey reads an existing task, looking it up by its job and task key.
// Returns gerror.ErrNotFound if the task does not exist.
func (d *JobTaskStore) ReadByKey(
	ctx context.Context,
	txOrNil *store.Tx,
	jobID models.JobID,
	taskKey models.ResourceName,
) (*models.JobTask, error) {
	task := &models.JobTask{}
	return task, d.table.ReadWhere(ctx, txOrNil, task,
		goqu.Ex{"job_task_job_id": jobID},
		goqu.Ex{"job_task_task_key": taskKey},
	)
}

// ListByJobID gets all tasks of the specified job, in creation order.
func (d *JobTaskStore) ListByJobID(ctx context.Context, txOrNil *store.Tx, jobID models.JobID) ([]*models.JobTask, error) {
	taskSelect := d.table.Dialect().
		From(d.table.TableName()).
		Select(&models.JobTask{}).
		Where(goqu.Ex{"job_task_job_id": jobID}).
		Order(goqu.I("job_task_created_at").Asc(), goqu.I("job_task_id").Asc())
	var tasks []*models.JobTask
	err := d.db.Read(txOrNil, func(db store.Reader) error {
		query, args, err := taskSelect.ToSQL()
		if err != nil {
			return fmt.Errorf("error generating query: %w", err)
		}
		d.table.LogQuery(query, args)
		return db.ScanStructsContext(ctx, &tasks, query, args...)
	})
	if err != nil {
		return nil, store.MakeStandardDBError(err)
	}
	return tasks, nil
}

// SelectRunnable locates up to limit queued tasks for the specified service that are
// ready for execution as of now: every dependency has completed (or is skipped, for
// tasks that tolerate skipped dependencies) and any back-off window has elapsed.
// Tasks are returned in dispatch order: job FIFO first, then task creation order.
// Must be called within a transaction. On databases with row-level locking the
// selected rows are locked, and rows locked by concurrent dispatchers are skipped
// so two dispatchers never select the same task.
func (d *JobTaskStore) SelectRunnable(
	ctx context.Context,
	tx *store.Tx,
	service models.ResourceName,
	limit int,
	now models.Time,
) ([]*models.JobTask, error) {
	if tx == nil {
		return nil, fmt.Errorf("error selecting runnable tasks: no transaction specified")
	}

	// Find sibling tasks that runnable_tasks.job_task_id depends on and that would
	// stop it from being eligible to run: anything not done, unless the dependent
	// task tolerates skipped dependencies and the sibling is skipped.
	dependencySubQuery := goqu.From(goqu.T(d.table.TableName()).As("dep")).
		Select(goqu.I("dep.job_task_id")).
		Where(goqu.I("dep.job_task_job_id").Eq(goqu.I("runnable_tasks.job_task_job_id"))).
		Where(d.dependencyKeyMembership()).
		Where(goqu.I("dep.job_task_status").Neq(models.TaskStatusDone)).
		Where(goqu.Or(
			goqu.I("runnable_tasks.job_task_allow_skipped_deps").IsFalse(),
			goqu.I("dep.job_task_status").Neq(models.TaskStatusSkipped),
		)).
		Limit(1)

	taskSelect := d.table.Dialect().
		From(goqu.T(d.table.TableName()).As("runnable_tasks")).
		Select(&models.JobTask{}).
		Join(goqu.T("jobs"), goqu.On(goqu.Ex{"runnable_tasks.job_task_job_id": goqu.I("jobs.job_id")})).
		Where(goqu.I("runnable_tasks.job_task_service_name").Eq(service)).
		Where(goqu.I("runnable_tasks.job_task_status").Eq(models.TaskStatusQueued)).
		Where(goqu.Or(
			goqu.I("runnable_tasks.job_task_next_attempt_at").IsNull(),
			goqu.I("runnable_tasks.job_task_next_attempt_at").Lte(now),
		)).
		Where(goqu.V(dependencySubQuery).IsNull()). // where all tasks this one depends on are satisfied
		Order(
			goqu.I("jobs.job_order_seq").Asc(),
			goqu.I("runnable_tasks.job_task_created_at").Asc(),
			goqu.I("runnable_tasks.job_task_id").Asc(),
		).
		Limit(uint(limit))

	if d.db.SupportsRowLevelLocking() {
		taskSelect = taskSelect.ForUpdate(exp.SkipLocked)
	}

	var tasks []*models.JobTask
	err := d.db.Read(tx, func(db store.Reader) error {
		query, args, err := taskSelect.ToSQL()
		if err != nil {
			return fmt.Errorf("error generating query: %w", err)
		}
		d.table.LogQuery(query, args)
		return db.ScanStructsContext(ctx, &tasks, query, args...)
	})
	if err != nil {
		return nil, store.MakeStandardDBError(err)
	}
	return tasks, nil
}

// dependencyKeyMembership returns the expression matching sibling tasks whose key
// appears in the candidate task's depends_on JSON array. The array is stored as
// JSON text so unpacking it needs a dialect-specific table function.
func (d *JobTaskStore) dependencyKeyMembership() exp.Expression {
	if d.db.Driver == store.Postgres {
		return goqu.L("runnable_tasks.job_task_depends_on IS NOT NULL AND dep.job_task_task_key IN (SELECT jsonb_array_elements_text(runnable_tasks.job_task_depends_on::jsonb))")
	}
	return goqu.L("runnable_tasks.job_task_depends_on IS NOT NULL AND dep.job_task_task_key IN (SELECT value FROM json_each(runnable_tasks.job_task_depends_on))")
}

// Claim atomically transitions the specified tasks from queued to starting, recording
// the node and claimant identity. Returns the number of tasks actually claimed; tasks
// claimed by somebody else in the meantime are not counted.
func (d *JobTaskStore) Claim(
	ctx context.Context,
	tx *store.Tx,
	ids []models.JobTaskID,
	node models.ResourceName,
	claimant models.ResourceName,
) (int64, error) {
	if tx == nil {
		return 0, fmt.Errorf("error claiming tasks: no transaction specified")
	}
	if len(ids) == 0 {
		return 0, nil
	}
	now := models.NewTime(time.Now())
	return d.table.UpdateWhere(ctx, tx,
		goqu.Record{
			"job_task_status":        models.TaskStatusStarting,
			"job_task_assigned_node": node,
			"job_task_claimed_by":    claimant,
			"job_task_claimed_at":    now,
			"job_task_updated_at":    now,
		},
		goqu.C("job_task_id").In(taskIDValues(ids)),
		goqu.Ex{"job_task_status": models.TaskStatusQueued})
}

// MarkRunning transitions a claimed task to running, recording the start time on the
// first call. Idempotent: marking an already-running task again keeps the original
// start time.
func (d *JobTaskStore) MarkRunning(ctx context.Context, txOrNil *store.Tx, id models.JobTaskID) error {
	now := models.NewTime(time.Now())
	rowsAffected, err := d.table.UpdateWhere(ctx, txOrNil,
		goqu.Record{
			"job_task_status":     models.TaskStatusRunning,
			"job_task_started_at": goqu.L("COALESCE(job_task_started_at, ?)", now),
			"job_task_updated_at": now,
		},
		goqu.Ex{"job_task_id": id},
		goqu.C("job_task_status").In(string(models.TaskStatusStarting), string(models.TaskStatusRunning)))
	if err != nil {
		return fmt.Errorf("error marking task running: %w", err)
	}
	if rowsAffected == 0 {
		return d.explainMissedTransition(ctx, txOrNil, id, models.TaskStatusRunning)
	}
	return nil
}

// UpdateProgress records the task's progress fraction. Progress never decreases;
// an update below the stored value is silently ignored.
func (d *JobTaskStore) UpdateProgress(ctx context.Context, txOrNil *store.Tx, id models.JobTaskID, fraction float64) error {
	if fraction < 0 || fraction > 1 {
		return gerror.NewErrValidationFailed(fmt.Sprintf("progress must be within [0,1], got %v", fraction))
	}
	rowsAffected, err := d.table.UpdateWhere(ctx, txOrNil,
		goqu.Record{
			"job_task_progress":   fraction,
			"job_task_updated_at": models.NewTime(time.Now()),
		},
		goqu.Ex{"job_task_id": id},
		goqu.C("job_task_progress").Lt(fraction))
	if err != nil {
		return fmt.Errorf("error updating task progress: %w", err)
	}
	if rowsAffected == 0 {
		// Either the task doesn't exist or its stored progress is already at
		// least this far along; only the former is an error.
		_, err := d.Read(ctx, txOrNil, id)
		return err
	}
	return nil
}

// MarkDone transitions a task to done, merging the supplied results over any
// previously stored results. A nil results map leaves stored results untouched.
// Returns the task as it exists after the update.
func (d *JobTaskStore) MarkDone(
	ctx context.Context,
	txOrNil *store.Tx,
	id models.JobTaskID,
	results models.JSONMap,
) (*models.JobTask, error) {
	return d.finishTask(ctx, txOrNil, id, models.TaskStatusDone, results)
}

// MarkError transitions a task to its terminal error state, recording the error code
// and message in the task's results without discarding other result keys.
// Returns the task as it exists after the update.
func (d *JobTaskStore) MarkError(
	ctx context.Context,
	txOrNil *store.Tx,
	id models.JobTaskID,
	errorCode string,
	errorMessage string,
) (*models.JobTask, error) {
	return d.finishTask(ctx, txOrNil, id, models.TaskStatusError, models.JSONMap{
		"error": map[string]interface{}{
			"code":    errorCode,
			"message": errorMessage,
		},
	})
}

// FinishSkipped moves a skippable task that has exhausted its retry budget to
// skipped, recording the failure details in the task's results the same way
// MarkError does. The job-completion predicate treats skipped tasks as
// non-blocking, so the job can still finish in done.
// Returns the task as it exists after the update.
func (d *JobTaskStore) FinishSkipped(
	ctx context.Context,
	txOrNil *store.Tx,
	id models.JobTaskID,
	errorCode string,
	errorMessage string,
) (*models.JobTask, error) {
	return d.finishTask(ctx, txOrNil, id, models.TaskStatusSkipped, models.JSONMap{
		"error": map[string]interface{}{
			"code":    errorCode,
			"message": errorMessage,
		},
	})
}

// finishTask moves a task into the specified terminal state, merging results under a
// row lock so concurrent result writes compose on both dialects. Finishing a task
// that already reached the same terminal state is a no-op.
func (d *JobTaskStore) finishTask(
	ctx context.Context,
	txOrNil *store.Tx,
	id models.JobTaskID,
	status models.TaskStatus,
	results models.JSONMap,
) (*models.JobTask, error) {
	task := &models.JobTask{}
	err := d.db.WithTx(ctx, txOrNil, func(tx *store.Tx) error {
		err := d.table.ReadAndLockRowForUpdateWhere(ctx, tx, task, goqu.Ex{"job_task_id": id})
		if err != nil {
			return err
		}
		if task.Status == status {
			return nil
		}
		if task.Status.HasFinished() {
			return gerror.NewErrValidationFailed(fmt.Sprintf("task %q has already finished with status %q", id, task.Status))
		}
		now := models.NewTime(time.Now())
		task.Status = status
		task.Results = task.Results.Merge(results)
		task.FinishedAt = &now
		task.UpdatedAt = now
		if status == models.TaskStatusDone {
			task.Progress = 1
		}
		return d.table.UpdateByID(ctx, tx, task.ID, task)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// RequeueForRetry returns a failed task to the queue for another attempt, incrementing
// the attempt counter, recording the earliest time the next attempt may start and
// clearing the previous attempt's claim.
func (d *JobTaskStore) RequeueForRetry(
	ctx context.Context,
	txOrNil *store.Tx,
	id models.JobTaskID,
	nextAttemptAt models.Time,
) error {
	rowsAffected, err := d.table.UpdateWhere(ctx, txOrNil,
		goqu.Record{
			"job_task_status":          models.TaskStatusQueued,
			"job_task_attempt":         goqu.L("job_task_attempt + 1"),
			"job_task_next_attempt_at": nextAttemptAt,
			"job_task_assigned_node":   "",
			"job_task_claimed_by":      "",
			"job_task_claimed_at":      nil,
			"job_task_started_at":      nil,
			"job_task_updated_at":      models.NewTime(time.Now()),
		},
		goqu.Ex{"job_task_id": id},
		goqu.C("job_task_status").In(string(models.TaskStatusStarting), string(models.TaskStatusRunning)))
	if err != nil {
		return fmt.Errorf("error requeueing task for retry: %w", err)
	}
	if rowsAffected == 0 {
		return d.explainMissedTransition(ctx, txOrNil, id, models.TaskStatusQueued)
	}
	return nil
}

// MarkSkipped transitions a queued task to skipped. Idempotent.
func (d *JobTaskStore) MarkSkipped(ctx context.Context, txOrNil *store.Tx, id models.JobTaskID) error {
	now := models.NewTime(time.Now())
	rowsAffected, err := d.table.UpdateWhere(ctx, txOrNil,
		goqu.Record{
			"job_task_status":      models.TaskStatusSkipped,
			"job_task_finished_at": now,
			"job_task_updated_at":  now,
		},
		goqu.Ex{"job_task_id": id},
		goqu.Ex{"job_task_status": models.TaskStatusQueued})
	if err != nil {
		return fmt.Errorf("error marking task skipped: %w", err)
	}
	if rowsAffected == 0 {
		task, err := d.Read(ctx, txOrNil, id)
		if err != nil {
			return err
		}
		if task.Status == models.TaskStatusSkipped {
			return nil
		}
		return gerror.NewErrValidationFailed(fmt.Sprintf("task %q cannot be skipped from status %q", id, task.Status))
	}
	return nil
}

// CountActive returns the number of tasks for the specified service that are currently
// claimed or running.
func (d *JobTaskStore) CountActive(ctx context.Context, txOrNil *store.Tx, service models.ResourceName) (int, error) {
	var count int
	err := d.db.Read(txOrNil, func(reader store.Reader) error {
		found, err := d.table.LogSelect(reader.From(d.table.TableName()).
			Select(goqu.COUNT(goqu.Star())).
			Where(goqu.Ex{"job_task_service_name": service}).
			Where(goqu.C("job_task_status").In(
				string(models.TaskStatusStarting),
				string(models.TaskStatusRunning),
			))).
			Executor().
			ScanValContext(ctx, &count)
		if err != nil {
			return store.MakeStandardDBError(err)
		}
		if !found {
			return fmt.Errorf("error counting active tasks for service %q; no count returned", service)
		}
		return nil
	})
	return count, err
}

// explainMissedTransition reads the task after a state transition matched no rows and
// converts the outcome into a useful error: gerror.ErrNotFound if the task is gone, a
// validation error naming the actual status otherwise.
func (d *JobTaskStore) explainMissedTransition(
	ctx context.Context,
	txOrNil *store.Tx,
	id models.JobTaskID,
	wanted models.TaskStatus,
) error {
	task, err := d.Read(ctx, txOrNil, id)
	if err != nil {
		return err
	}
	return gerror.NewErrValidationFailed(fmt.Sprintf("task %q cannot move to status %q from status %q", id, wanted, task.Status))
}

func taskIDValues(ids []models.JobTaskID) []string {
	values := make([]string, len(ids))
	for i, id := range ids {
		values[i] = id.String()
	}
	return values
}

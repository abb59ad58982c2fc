package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/accella/accella/common/gerror"
	"github.com/accella/accella/common/logger"
	"github.com/accella/accella/common/models"
	"github.com/accella/accella/server/store"
)

func init() {
	store.MustDBModel(&models.Job{})
}

// orderCounterTableName is the singleton counter table used to allocate
// job order sequence numbers. The counter row is seeded by migration.
const orderCounterTableName = "job_order_counters"

const orderCounterRowID = 1

type JobStore struct {
	db    *store.DB
	table *store.Table
}

func NewStore(db *store.DB, logFactory logger.LogFactory) *JobStore {
	return &JobStore{
		db:    db,
		table: store.NewTable(db, logFactory, &models.Job{}),
	}
}

// Create a new job. An order sequence number is allocated for the job within the
// same transaction, establishing its FIFO position across all jobs.
func (d *JobStore) Create(ctx context.Context, txOrNil *store.Tx, job *models.Job) error {
	return d.db.WithTx(ctx, txOrNil, func(tx *store.Tx) error {
		orderSeq, err := d.allocateOrderSeq(ctx, tx)
		if err != nil {
			return fmt.Errorf("error allocating job order sequence number: %w", err)
		}
		job.OrderSeq = orderSeq
		return d.table.Create(ctx, tx, job)
	})
}

// allocateOrderSeq increments and returns the global job order counter.
func (d *JobStore) allocateOrderSeq(ctx context.Context, tx *store.Tx) (int64, error) {
	var counter int64
	err := d.db.Write(tx, func(writer store.Writer) error {
		// TODO when we can upgrade to sqlite3 3.35.0+ we can use RETURNING and condense this into a single query
		updateResult, err := d.table.LogUpdate(writer.Update(goqu.T(orderCounterTableName)).
			Set(goqu.Record{"job_order_counter_counter": goqu.L("job_order_counter_counter+1")}).
			Where(goqu.Ex{"job_order_counter_id": orderCounterRowID})).
			Executor().ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("error updating job order counter: %w", err)
		}
		nrRowsUpdated, err := updateResult.RowsAffected()
		if err != nil {
			return fmt.Errorf("error determining number of rows updated in allocateOrderSeq(): %w", err)
		}
		if nrRowsUpdated != 1 {
			return fmt.Errorf("error job order counter row not found; expected 1 row to be updated but %d rows updated", nrRowsUpdated)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	err = d.db.Read(tx, func(reader store.Reader) error {
		found, err := d.table.LogSelect(reader.From(orderCounterTableName).
			Select(goqu.C("job_order_counter_counter")).
			Where(goqu.Ex{"job_order_counter_id": orderCounterRowID})).
			Executor().
			ScanValContext(ctx, &counter)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("error job order counter row not found")
		}
		return nil
	})
	return counter, err
}

// Read an existing job, looking it up by ID.
// Returns gerror.ErrNotFound if the job does not exist.
func (d *JobStore) Read(ctx context.Context, txOrNil *store.Tx, id models.JobID) (*models.Job, error) {
	job := &models.Job{}
	return job, d.table.ReadByID(ctx, txOrNil, id, job)
}

// Update an existing job. Overrides all previous values using the supplied model,
// except for columns declared immutable at creation.
func (d *JobStore) Update(ctx context.Context, txOrNil *store.Tx, job *models.Job) error {
	job.UpdatedAt = models.NewTime(time.Now())
	return d.table.UpdateByID(ctx, txOrNil, job.ID, job)
}

// LockRowForUpdate takes out an exclusive row lock on the job.
// Must be called within a transaction.
func (d *JobStore) LockRowForUpdate(ctx context.Context, tx *store.Tx, id models.JobID) error {
	return d.table.LockRowForUpdate(ctx, tx, id)
}

// UpdateProgress sets the job's progress fraction and the key of the task most
// recently worked on, leaving all other columns untouched.
func (d *JobStore) UpdateProgress(
	ctx context.Context,
	txOrNil *store.Tx,
	id models.JobID,
	progress float64,
	currentTaskKey models.ResourceName,
) error {
	rowsAffected, err := d.table.UpdateWhere(ctx, txOrNil,
		goqu.Record{
			"job_progress":         progress,
			"job_current_task_key": currentTaskKey,
			"job_updated_at":       models.NewTime(time.Now()),
		},
		goqu.Ex{"job_id": id})
	if err != nil {
		return fmt.Errorf("error updating job progress: %w", err)
	}
	if rowsAffected == 0 {
		return gerror.NewErrNotFound(fmt.Sprintf("job %q does not exist", id))
	}
	return nil
}

// CountByWorkflowID returns the number of jobs that reference the specified workflow.
func (d *JobStore) CountByWorkflowID(ctx context.Context, txOrNil *store.Tx, workflowID models.WorkflowID) (int64, error) {
	var count int64
	err := d.db.Read(txOrNil, func(reader store.Reader) error {
		found, err := d.table.LogSelect(reader.From(d.table.TableName()).
			Select(goqu.COUNT(goqu.Star())).
			Where(goqu.Ex{"job_workflow_id": workflowID})).
			Executor().
			ScanValContext(ctx, &count)
		if err != nil {
			return store.MakeStandardDBError(err)
		}
		if !found {
			return fmt.Errorf("error counting jobs for workflow %q; no count returned", workflowID)
		}
		return nil
	})
	return count, err
}

// ListByStatus lists all jobs with the specified status. Use cursor to page through results, if any.
func (d *JobStore) ListByStatus(
	ctx context.Context,
	txOrNil *store.Tx,
	status models.JobStatus,
	pagination models.Pagination,
) ([]*models.Job, *models.Cursor, error) {
	jobSelect := d.table.Dialect().
		From(d.table.TableName()).
		Select(&models.Job{}).
		Where(goqu.Ex{"job_status": status})
	var jobs []*models.Job
	cursor, err := d.table.ListIn(ctx, txOrNil, &jobs, pagination, jobSelect)
	if err != nil {
		return nil, nil, err
	}
	return jobs, cursor, nil
}

// ListByWorkflowID lists all jobs for the specified workflow. Use cursor to page through results, if any.
func (d *JobStore) ListByWorkflowID(
	ctx context.Context,
	txOrNil *store.Tx,
	workflowID models.WorkflowID,
	pagination models.Pagination,
) ([]*models.Job, *models.Cursor, error) {
	jobSelect := d.table.Dialect().
		From(d.table.TableName()).
		Select(&models.Job{}).
		Where(goqu.Ex{"job_workflow_id": workflowID})
	var jobs []*models.Job
	cursor, err := d.table.ListIn(ctx, txOrNil, &jobs, pagination, jobSelect)
	if err != nil {
		return nil, nil, err
	}
	return jobs, cursor, nil
}

package task_events

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/accella/accella/common/logger"
	"github.com/accella/accella/common/models"
	"github.com/accella/accella/server/store"
)

const tableName = "task_events"

type TaskEventStore struct {
	db    *store.DB
	table *store.Table
}

func NewStore(db *store.DB, logFactory logger.LogFactory) *TaskEventStore {
	return &TaskEventStore{
		db:    db,
		table: store.NewTableWithDescriptor(db, logFactory, store.MustDBModelWithKey(&models.TaskEvent{}, tableName, "task_event_id")),
	}
}

// Create a new event in the journal. The event's ID is assigned by the database and
// filled in on the supplied model. When the event's timestamp is unset the database
// clock is used, and the stored value is read back into the model.
// Events are append-only; no update or delete operations exist.
func (d *TaskEventStore) Create(ctx context.Context, txOrNil *store.Tx, event *models.TaskEvent) error {
	err := event.TaskEventData.Validate()
	if err != nil {
		return fmt.Errorf("error event data invalid: %w", err)
	}

	record := goqu.Record{
		"task_event_ts":          event.Timestamp,
		"task_event_job_id":      event.JobID,
		"task_event_job_task_id": event.JobTaskID,
		"task_event_source":      event.Source,
		"task_event_level":       event.Level,
		"task_event_type":        event.Type,
		"task_event_message":     event.Message,
		"task_event_data":        event.Data,
	}
	if event.Timestamp.IsZero() {
		record["task_event_ts"] = d.databaseNow()
	}

	return d.db.WithTx(ctx, txOrNil, func(tx *store.Tx) error {
		err := d.db.Write(tx, func(writer store.Writer) error {
			insert := writer.Insert(tableName).Rows(record)
			if d.db.Driver == store.Postgres {
				// lib/pq does not support LastInsertId; read the assigned id back instead
				var id int64
				found, err := d.table.LogInsert(insert.Returning("task_event_id")).
					Executor().
					ScanValContext(ctx, &id)
				if err != nil {
					return fmt.Errorf("error executing create query: %w", store.MakeStandardDBError(err))
				}
				if !found {
					return fmt.Errorf("error creating event; no id returned")
				}
				event.ID = models.TaskEventID(id)
				return nil
			}
			result, err := d.table.LogInsert(insert).Executor().ExecContext(ctx)
			if err != nil {
				return fmt.Errorf("error executing create query: %w", store.MakeStandardDBError(err))
			}
			id, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("error reading assigned event id: %w", err)
			}
			event.ID = models.TaskEventID(id)
			return nil
		})
		if err != nil {
			return err
		}
		// Read the row back so the caller sees the stored timestamp, which the
		// database assigned if the event didn't carry one.
		return d.table.ReadByID(ctx, tx, event.ID, event)
	})
}

// databaseNow returns the SQL expression for the database's current time in the
// same format the Time model stores, so a timestamp assigned by the database
// scans back cleanly on both dialects.
func (d *TaskEventStore) databaseNow() goqu.Expression {
	if d.db.Driver == store.Postgres {
		return goqu.L("CURRENT_TIMESTAMP")
	}
	return goqu.L("strftime('%Y-%m-%d %H:%M:%f+00:00', 'now')")
}

// Read an existing event, looking it up by ID.
// Returns gerror.ErrNotFound if the event does not exist.
func (d *TaskEventStore) Read(ctx context.Context, txOrNil *store.Tx, id models.TaskEventID) (*models.TaskEvent, error) {
	event := &models.TaskEvent{}
	return event, d.table.ReadByID(ctx, txOrNil, id, event)
}

// FindEvents reads the next events for a job, in journal order, starting after
// lastEventID. If no matching events are present then an empty list is returned.
func (d *TaskEventStore) FindEvents(
	ctx context.Context,
	txOrNil *store.Tx,
	jobID models.JobID,
	lastEventID models.TaskEventID,
	limit int,
) ([]*models.TaskEvent, error) {
	var events []*models.TaskEvent

	eventSelect := d.table.Dialect().
		From(tableName).
		Select(&models.TaskEvent{}).
		Where(goqu.Ex{"task_event_job_id": jobID}).
		Where(goqu.C("task_event_id").Gt(int64(lastEventID))).
		Order(goqu.C("task_event_id").Asc()).
		Limit(uint(limit))

	// Perform the read directly on the database; Table.ListIn() is not suitable because it
	// forces the wrong sort order, and pagination is handled here through lastEventID and limit.
	err := d.db.Read(txOrNil, func(db store.Reader) error {
		query, args, err := eventSelect.ToSQL()
		if err != nil {
			return fmt.Errorf("error generating query: %w", err)
		}
		d.table.LogQuery(query, args)
		return db.ScanStructsContext(ctx, &events, query, args...)
	})
	if err != nil {
		return nil, store.MakeStandardDBError(err)
	}

	return events, nil
}

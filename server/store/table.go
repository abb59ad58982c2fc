package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/accella/accella/common/gerror"
	"github.com/accella/accella/common/logger"
	"github.com/accella/accella/common/models"
)

const upsertUpdateRetries = 5

var resourceInterface = reflect.TypeOf((*models.Resource)(nil)).Elem()

type queryBuilder interface {
	ToSQL() (string, []interface{}, error)
}

type tableMarker struct {
	Id        string      `json:"id"`
	CreatedAt models.Time `json:"created_at"`
}

type tableDescriptor struct {
	tableName        string
	idColName        string
	createdAtColName string
}

// Table provides the shared machinery for the per-entity stores: query
// logging, standard error mapping, row locking, cursor pagination and the
// create/read/update primitives they all share.
type Table struct {
	logger.Log
	tableDescriptor
	db *DB
}

func NewTable(db *DB, logFactory logger.LogFactory, model interface{}) *Table {
	return NewTableWithDescriptor(db, logFactory, mustTableDescriptor(model, "", ""))
}

// NewTableWithDescriptor makes a table whose name or key column do not
// follow the usual prefix conventions (e.g. nodes, which are keyed by name).
func NewTableWithDescriptor(db *DB, logFactory logger.LogFactory, desc tableDescriptor) *Table {
	return &Table{
		db:              db,
		tableDescriptor: desc,
		Log:             logFactory(fmt.Sprintf("%s_table", desc.tableName)),
	}
}

// MustDBModel verifies an entity model matches our conventions and contains suitable "db" tags.
//   - Model must contain one or more "db" tags
//   - All "db" tags must have a common field prefix e.g workflow_ or job_task_ etc.
//   - There must be a prefix_id field e.g. workflow_id or job_task_id etc.
func MustDBModel(model interface{}) {
	mustTableDescriptor(model, "", "")
}

// MustDBModelWithKey is MustDBModel for models keyed by something other than
// a prefix_id column.
func MustDBModelWithKey(model interface{}, tableName string, idColName string) tableDescriptor {
	return mustTableDescriptor(model, tableName, idColName)
}

// Dialect returns the goqu dialect (aka SQL Driver e.g. sqlite3, postgres etc.) in use.
func (d *Table) Dialect() goqu.DialectWrapper {
	return goqu.Dialect(d.db.DriverName())
}

// DB returns the underlying database handle, for stores that need to issue
// queries the shared helpers do not cover.
func (d *Table) DB() *DB {
	return d.db
}

// ReadByID reads an existing row into model, looking it up by id.
// Returns gerror.ErrNotFound if the row does not exist.
func (d *Table) ReadByID(ctx context.Context, txOrNil *Tx, id interface{}, model interface{}) error {
	where := goqu.Ex{d.idColName: id}
	return d.ReadIn(ctx, txOrNil, model, d.Dialect().From(d.tableName).Select(model).Where(where))
}

// ReadWhere reads an existing row into model, looking it up using the
// supplied where clauses. Returns gerror.ErrNotFound if no row matches.
func (d *Table) ReadWhere(ctx context.Context, txOrNil *Tx, model interface{}, where ...goqu.Expression) error {
	return d.ReadIn(ctx, txOrNil, model, d.Dialect().From(d.tableName).Select(model).Where(where...))
}

// ReadAndLockRowForUpdateWhere reads an existing row, looking it up using the supplied
// where clauses, and also locks the row using SELECT FOR UPDATE.
// This function must be called within a transaction, and will block other transactions
// from locking, updating or deleting the row until this transaction ends.
// Returns gerror.ErrNotFound if the row does not exist.
func (d *Table) ReadAndLockRowForUpdateWhere(ctx context.Context, tx *Tx, model interface{}, where ...goqu.Expression) error {
	if tx == nil {
		return fmt.Errorf("error reading and locking database row for update: no transaction specified")
	}
	// If database doesn't support row locking then assume we have table locking by default and don't need row locking
	if !d.db.SupportsRowLevelLocking() {
		return d.ReadWhere(ctx, tx, model, where...)
	}
	ds := d.Dialect().From(d.tableName).Select(model).Where(where...).ForUpdate(exp.Wait).Limit(1)
	return d.ReadIn(ctx, tx, model, ds)
}

// ReadIn reads an existing row into model from the supplied select dataset.
// Returns gerror.ErrNotFound if no row matches.
func (d *Table) ReadIn(ctx context.Context, txOrNil *Tx, model interface{}, ds *goqu.SelectDataset) error {
	ds = ds.Limit(1)
	return d.db.Read(txOrNil, func(db Reader) error {
		query, args, err := ds.ToSQL()
		if err != nil {
			return fmt.Errorf("error generating query: %w", err)
		}
		d.LogQuery(query, args)
		found, err := db.ScanStructContext(ctx, model, query, args...)
		if err != nil {
			return MakeStandardDBError(err)
		}
		if !found {
			return gerror.NewErrNotFound("Not Found")
		}
		return nil
	})
}

// LockRowForUpdate takes out an exclusive row lock on the row with the specified id.
// This function must be called within a transaction, and will block other transactions
// from locking, updating or deleting the row until this transaction ends.
// Returns gerror.ErrNotFound if the row does not exist.
func (d *Table) LockRowForUpdate(ctx context.Context, tx *Tx, id interface{}) error {
	if tx == nil {
		return fmt.Errorf("error locking database row for %q: no transaction specified", id)
	}
	return d.LockRowForUpdateWhere(ctx, tx, goqu.Ex{d.idColName: id})
}

// LockRowForUpdateWhere takes out an exclusive row lock on the first row found in the
// table using the specified 'where' clause to locate the row.
// This function must be called within a transaction, and will block other transactions
// from locking, updating or deleting the row until this transaction ends.
// Returns gerror.ErrNotFound if the row does not exist.
func (d *Table) LockRowForUpdateWhere(ctx context.Context, tx *Tx, where ...goqu.Expression) error {
	if tx == nil {
		return fmt.Errorf("error locking database row for update: no transaction specified")
	}
	// If database doesn't support row locking then assume we have table locking by default and don't need row locking
	if !d.db.SupportsRowLevelLocking() {
		return nil
	}
	return d.db.Read(tx, func(db Reader) error {
		ds := d.Dialect().From(d.tableName).Select(goqu.C(d.idColName)).Where(where...).ForUpdate(exp.Wait).Limit(1)
		query, args, err := ds.ToSQL()
		if err != nil {
			return fmt.Errorf("error generating query: %w", err)
		}
		d.LogQuery(query, args)

		var resultID string
		found, err := db.ScanValContext(ctx, &resultID, query, args...)
		if err != nil {
			return MakeStandardDBError(err)
		}
		if !found {
			return fmt.Errorf("error running SelectForUpdate query; no row returned")
		}
		if resultID == "" {
			return gerror.NewErrNotFound("Not Found").Wrap(err)
		}
		return nil
	})
}

type validator interface {
	Validate() error
}

// Create a new row from model.
// Returns gerror.ErrAlreadyExists if a row with matching unique properties already exists.
func (d *Table) Create(ctx context.Context, txOrNil *Tx, model interface{}) error {
	if v, ok := model.(validator); ok {
		err := v.Validate()
		if err != nil {
			return fmt.Errorf("error model invalid: %w", err)
		}
	}
	return d.db.Write(txOrNil, func(db Writer) error {
		_, err := d.LogInsert(db.Insert(d.tableName).Rows(model)).Executor().ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("error executing create query: %w", MakeStandardDBError(err))
		}
		return nil
	})
}

// UpdateByID updates an existing row. Identifies the row by the model's id
// column. Overrides all previous values using the supplied model, except
// columns tagged skipupdate. Returns gerror.ErrNotFound if no row matches.
func (d *Table) UpdateByID(ctx context.Context, txOrNil *Tx, id interface{}, model interface{}) error {
	if v, ok := model.(validator); ok {
		err := v.Validate()
		if err != nil {
			return fmt.Errorf("error model invalid: %w", err)
		}
	}
	return d.db.Write(txOrNil, func(db Writer) error {
		res, err := d.LogUpdate(db.Update(d.tableName).Set(model).Where(goqu.Ex{d.idColName: id})).Executor().ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("error executing update query: %w", MakeStandardDBError(err))
		}
		rowsAffected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("error reading rows affected: %w", MakeStandardDBError(err))
		}
		if rowsAffected == 0 {
			return gerror.NewErrNotFound(fmt.Sprintf("%v does not exist", id))
		}
		return nil
	})
}

// UpdateWhere applies the supplied column updates to every row matching the
// where clauses and returns the number of rows updated. Callers use this for
// state transitions that set individual columns rather than whole rows.
func (d *Table) UpdateWhere(ctx context.Context, txOrNil *Tx, record goqu.Record, where ...goqu.Expression) (int64, error) {
	var rowsAffected int64
	err := d.db.Write(txOrNil, func(db Writer) error {
		res, err := d.LogUpdate(db.Update(d.tableName).Set(record).Where(where...)).Executor().ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("error executing update query: %w", MakeStandardDBError(err))
		}
		rowsAffected, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("error reading rows affected: %w", MakeStandardDBError(err))
		}
		return nil
	})
	return rowsAffected, err
}

// DeleteWhere idempotently deletes one or more rows that match the supplied where clauses.
func (d *Table) DeleteWhere(ctx context.Context, txOrNil *Tx, where ...goqu.Expression) error {
	return d.db.Write(txOrNil, func(db Writer) error {
		_, err := d.logDelete(db.Delete(d.tableName).Where(where...)).Executor().ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("error executing delete query: %w", MakeStandardDBError(err))
		}
		return nil
	})
}

// upsertReadFn must return gerror.ErrNotFound if the row does not exist
type upsertReadFn func(txOrNil *Tx) (interface{}, error)

// upsertCreateFn must return gerror.ErrAlreadyExists if the row already exists
type upsertCreateFn func(txOrNil *Tx) error

// upsertUpdateFn inspects the model returned by the upsertReadFn and updates it
// in the database if necessary. Returns true if the update was performed or false if
// no update was required. Must return ErrOptimisticLockFailed if the row was updated
// in between read and update.
type upsertUpdateFn func(txOrNil *Tx, model interface{}) (bool, error)

// Upsert creates a row if it does not exist, otherwise it updates its mutable properties
// if they differ from the in-memory instance. Returns true,false if the row was created,
// false,true if the row was updated, and false,false if neither create nor update was necessary.
func (d *Table) Upsert(ctx context.Context, txOrNil *Tx, readFn upsertReadFn, createFn upsertCreateFn, updateFn upsertUpdateFn) (created bool, updated bool, err error) {
	created, updated, err = d.upsertInner(ctx, txOrNil, readFn, createFn, updateFn)
	if err != nil && gerror.ToAlreadyExists(err) != nil {
		// Try once to accommodate a racing create. We would expect the next time
		// around we enter into the update path. We don't care to compensate for
		// rapid creation/deletion of a row.
		d.Infof("Conflicting create detected in upsert - trying again once: %v", err)
		created, updated, err = d.upsertInner(ctx, txOrNil, readFn, createFn, updateFn)
	}
	for i := 0; i < upsertUpdateRetries && err != nil; i++ {
		// Try a limited number of times to accommodate racing updates. We generally
		// would expect to win on the second time around, as we don't really have any
		// contentious update code paths.
		if gerror.ToOptimisticLockFailed(err) != nil {
			d.Infof("Conflicting update detected in upsert - trying again (%d/%d attempts): %v", i+1, upsertUpdateRetries, err)
			created, updated, err = d.upsertInner(ctx, txOrNil, readFn, createFn, updateFn)
		} else {
			return false, false, fmt.Errorf("error upserting row: %w", err)
		}
	}
	return created, updated, err
}

// upsertInner performs an upsert without any retries or compensating logic.
// It attempts to read a row using readFn. If the row exists then updateFn is called,
// otherwise createFn is called.
func (d *Table) upsertInner(ctx context.Context, txOrNil *Tx, readFn upsertReadFn, createFn upsertCreateFn, updateFn upsertUpdateFn) (created bool, updated bool, err error) {
	model, err := readFn(txOrNil)
	if err != nil {
		if gerror.ToNotFound(err) != nil {
			err := createFn(txOrNil)
			if err != nil {
				return false, false, fmt.Errorf("error creating row: %w", err)
			}
			return true, false, nil
		}
		return false, false, fmt.Errorf("error reading row: %w", err)
	}
	updated, err = updateFn(txOrNil, model)
	if err != nil {
		return false, false, fmt.Errorf("error updating row: %w", err)
	}
	return false, updated, nil
}

// ListIn lists rows in the specified select dataset with pagination.
// Rows are listed in order of the newest creation date first (with ID being the tie-breaker);
// any ordering specified in the supplied Dataset is ignored.
// Results must be a pointer to a slice of a models.Resource type e.g. &[]*models.Job
func (d *Table) ListIn(ctx context.Context, txOrNil *Tx, results interface{}, pagination models.Pagination, ds *goqu.SelectDataset) (*models.Cursor, error) {
	slicePtr := reflect.TypeOf(results)
	if slicePtr.Kind() != reflect.Ptr {
		d.Panicf("expected pointer to slice, found: %T", results)
	}
	sliceT := slicePtr.Elem()
	sliceV := reflect.ValueOf(results).Elem()
	if sliceT.Kind() != reflect.Slice {
		d.Panicf("expected slice, found: %T", results)
	}
	if !sliceT.Elem().Implements(resourceInterface) {
		d.Panicf("expected slice of resource, found: %s", sliceT.Elem().Kind())
	}

	err := d.db.Read(txOrNil, func(db Reader) error {
		ds = ds.Limit(uint(pagination.Limit + 1))
		if pagination.Cursor == nil {
			ds = ds.Order(goqu.I(d.createdAtColName).Desc()).OrderAppend(goqu.I(d.idColName).Desc())
		} else {
			var decodedMarker tableMarker
			err := json.Unmarshal([]byte(pagination.Cursor.Marker), &decodedMarker)
			if err != nil {
				return fmt.Errorf("error JSON decoding cursor marker: %w", err)
			}
			if pagination.Cursor.Direction == models.CursorDirectionPrev {
				// Create a query in the opposite (i.e. oldest first) order
				ds = ds.
					Where(goqu.C(d.createdAtColName).Gte(decodedMarker.CreatedAt)).
					Where(
						goqu.Or(
							goqu.And(
								goqu.C(d.createdAtColName).Eq(decodedMarker.CreatedAt),
								goqu.C(d.idColName).Gt(decodedMarker.Id),
							),
							goqu.C(d.createdAtColName).Gt(decodedMarker.CreatedAt),
						)).
					Order(goqu.I(d.createdAtColName).Asc()).OrderAppend(goqu.I(d.idColName).Asc())

				// Nest the reversed query in a descending-order query to make it correctly ordered,
				// while forcing evaluation of the entire query.
				// Note that column names mentioned here must exactly match the column name aliases
				// defined in the inner query, so the primary entity type must be embedded rather
				// than composed.
				ds = d.Dialect().From(ds).
					Select(goqu.I("*")).
					Order(goqu.C(d.createdAtColName).Desc()).
					OrderAppend(goqu.C(d.idColName).Desc())
			} else {
				ds = ds.
					Where(goqu.C(d.createdAtColName).Lte(decodedMarker.CreatedAt)).
					Where(
						goqu.Or(
							goqu.And(
								goqu.C(d.createdAtColName).Eq(decodedMarker.CreatedAt),
								goqu.C(d.idColName).Lt(decodedMarker.Id),
							),
							goqu.C(d.createdAtColName).Lt(decodedMarker.CreatedAt),
						)).
					Order(goqu.I(d.createdAtColName).Desc()).OrderAppend(goqu.I(d.idColName).Desc())
			}
		}
		query, args, err := ds.ToSQL()
		if err != nil {
			return fmt.Errorf("error generating query: %w", err)
		}
		d.LogQuery(query, args)
		return db.ScanStructsContext(ctx, results, query, args...)
	})
	if err != nil {
		return nil, MakeStandardDBError(err)
	}

	var cursor *models.Cursor
	if sliceV.Len() > 0 {
		cursor = &models.Cursor{}
		if pagination.Cursor != nil {
			if pagination.Cursor.Direction == models.CursorDirectionNext {
				marker, err := d.makeMarker(sliceV.Index(0))
				if err != nil {
					return nil, err
				}
				cursor.Prev = &models.DirectionalCursor{
					Direction: models.CursorDirectionPrev,
					Marker:    marker,
				}
			} else {
				marker, err := d.makeMarker(sliceV.Index(sliceV.Len() - 1))
				if err != nil {
					return nil, err
				}
				cursor.Next = &models.DirectionalCursor{
					Direction: models.CursorDirectionNext,
					Marker:    marker,
				}
			}
		}

		// If we read one more record than needed we know there is a next page
		if sliceV.Len() > pagination.Limit {
			if pagination.Cursor == nil || pagination.Cursor.Direction == models.CursorDirectionNext {
				sliceV.Set(sliceV.Slice(0, pagination.Limit))
				marker, err := d.makeMarker(sliceV.Index(pagination.Limit - 1))
				if err != nil {
					return nil, err
				}
				cursor.Next = &models.DirectionalCursor{
					Direction: models.CursorDirectionNext,
					Marker:    marker,
				}
			} else {
				sliceV.Set(sliceV.Slice(1, pagination.Limit+1))
				marker, err := d.makeMarker(sliceV.Index(0))
				if err != nil {
					return nil, err
				}
				cursor.Prev = &models.DirectionalCursor{
					Direction: models.CursorDirectionPrev,
					Marker:    marker,
				}
			}
		}
	}

	return cursor, nil
}

func (d *Table) makeMarker(item reflect.Value) (string, error) {
	resource := item.Interface().(models.Resource)
	marker := &tableMarker{
		Id:        resource.GetID(),
		CreatedAt: resource.GetCreatedAt(),
	}
	data, err := json.Marshal(marker)
	if err != nil {
		return "", fmt.Errorf("error JSON encoding cursor marker: %w", err)
	}
	return string(data), nil
}

func MakeStandardDBError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrConstraint &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
			return gerror.NewErrAlreadyExists("Resource already exists").Wrap(sqliteErr)
		}
		if sqliteErr.Code == sqlite3.ErrNotFound {
			return gerror.NewErrNotFound("Resource not found").Wrap(sqliteErr)
		}
	}

	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		// 23505 -> unique_violation
		if pgErr.Code == "23505" {
			return gerror.NewErrAlreadyExists("Resource already exists").Wrap(pgErr)
		}
		// P0002 -> no_data_found
		if pgErr.Code == "P0002" {
			return gerror.NewErrNotFound("Resource not found").Wrap(pgErr)
		}
	}
	return err
}

// LogSelect logs a select query via the configured logger.
func (d *Table) LogSelect(ds *goqu.SelectDataset) *goqu.SelectDataset {
	d.logQueryDS(ds)
	return ds
}

// LogInsert logs an insert query via the configured logger.
func (d *Table) LogInsert(ds *goqu.InsertDataset) *goqu.InsertDataset {
	d.logQueryDS(ds)
	return ds
}

// LogUpdate logs an update query via the configured logger.
func (d *Table) LogUpdate(ds *goqu.UpdateDataset) *goqu.UpdateDataset {
	d.logQueryDS(ds)
	return ds
}

// logDelete logs a delete query via the configured logger.
func (d *Table) logDelete(ds *goqu.DeleteDataset) *goqu.DeleteDataset {
	d.logQueryDS(ds)
	return ds
}

// logQueryDS generates and logs the raw SQL of a query to the configured logger.
func (d *Table) logQueryDS(ds queryBuilder) {
	query, args, err := ds.ToSQL()
	if err != nil {
		d.Errorf("Error generating query: %v", err)
		return
	}
	d.LogQuery(query, args)
}

// LogQuery logs a SQL query and args to the configured logger.
func (d *Table) LogQuery(query string, args []interface{}) {
	d.WithFields(logger.Fields{"query": query, "args": args}).Trace()
}

func (d *Table) TableName() string {
	return d.tableName
}

// mustTableDescriptor generates a table descriptor for an entity model. Panics if the
// model does not match our conventions. See MustDBModel for a description of the rules.
func mustTableDescriptor(model interface{}, tableNameOverride string, idColNameOverride string) tableDescriptor {
	t := reflect.TypeOf(model)
	fieldMap := make(map[string]struct{})
	collectDBTags(t, fieldMap)

	fieldPrefix := "" // e.g. workflow
	for val := range fieldMap {
		candidate := strings.TrimSuffix(val, idColSuffix) // in case there is only one field (assuming it's id, which is required)
		if fieldPrefix == "" {
			fieldPrefix = candidate
			continue
		}
		k := 0
		for ; k < min(len(candidate), len(fieldPrefix)); k++ {
			if candidate[k] != fieldPrefix[k] {
				k--
				break
			}
		}
		if k <= 0 {
			panic("All db fields must be prefixed with the table name")
		}
		fieldPrefix = candidate[:k]
	}

	if fieldPrefix == "" {
		panic("Unable to determine db field prefix")
	}
	fieldPrefix = strings.TrimSuffix(fieldPrefix, "_")

	idColName := idColNameOverride
	if idColName == "" {
		idColName = makeIDColName(fieldPrefix)
	}

	tableName := tableNameOverride
	if tableName == "" {
		tableName = fieldPrefix + "s" // e.g. workflows
	}

	idColExists := false
	for val := range fieldMap {
		if val == idColName {
			idColExists = true
		}
	}
	if !idColExists {
		panic(fmt.Sprintf("expected %q model to contain a field with a \"db\" tag matching %q", tableName, idColName))
	}

	return tableDescriptor{
		tableName:        tableName,
		idColName:        idColName,
		createdAtColName: makeCreatedAtFieldName(fieldPrefix),
	}
}

// collectDBTags returns a map containing the db tag values of all fields in the flattened t.
func collectDBTags(t reflect.Type, fieldMap map[string]struct{}) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous {
			collectDBTags(field.Type, fieldMap)
		} else {
			val, ok := field.Tag.Lookup(dbTagName)
			if ok {
				fieldMap[val] = struct{}{}
			}
		}
	}
}

const dbTagName = "db"

const idColSuffix = "_id"

func makeIDColName(fieldPrefix string) string {
	return fieldPrefix + idColSuffix
}

const createdAtColSuffix = "_created_at"

func makeCreatedAtFieldName(fieldPrefix string) string {
	return fieldPrefix + createdAtColSuffix
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

package workflows

import (
	"context"

	"github.com/doug-martin/goqu/v9"

	"github.com/accella/accella/common/logger"
	"github.com/accella/accella/common/models"
	"github.com/accella/accella/server/store"
)

func init() {
	store.MustDBModel(&models.Workflow{})
}

type WorkflowStore struct {
	db    *store.DB
	table *store.Table
}

func NewStore(db *store.DB, logFactory logger.LogFactory) *WorkflowStore {
	return &WorkflowStore{
		db:    db,
		table: store.NewTable(db, logFactory, &models.Workflow{}),
	}
}

// Create a new workflow.
// Returns gerror.ErrAlreadyExists if a workflow with the same name and version already exists.
func (d *WorkflowStore) Create(ctx context.Context, txOrNil *store.Tx, workflow *models.Workflow) error {
	return d.table.Create(ctx, txOrNil, workflow)
}

// Read an existing workflow, looking it up by ID.
// Returns gerror.ErrNotFound if the workflow does not exist.
func (d *WorkflowStore) Read(ctx context.Context, txOrNil *store.Tx, id models.WorkflowID) (*models.Workflow, error) {
	workflow := &models.Workflow{}
	return workflow, d.table.ReadByID(ctx, txOrNil, id, workflow)
}

// ReadByNameAndVersion reads an existing workflow, looking it up by its name and version.
// Returns gerror.ErrNotFound if the workflow does not exist.
func (d *WorkflowStore) ReadByNameAndVersion(
	ctx context.Context,
	txOrNil *store.Tx,
	name models.ResourceName,
	version int,
) (*models.Workflow, error) {
	workflow := &models.Workflow{}
	return workflow, d.table.ReadWhere(ctx, txOrNil, workflow,
		goqu.Ex{"workflow_name": name},
		goqu.Ex{"workflow_version": version},
	)
}

// ReadLatestByName reads the highest-versioned workflow with the specified name.
// Returns gerror.ErrNotFound if no workflow with the name exists.
func (d *WorkflowStore) ReadLatestByName(ctx context.Context, txOrNil *store.Tx, name models.ResourceName) (*models.Workflow, error) {
	workflow := &models.Workflow{}
	ds := d.table.Dialect().
		From(d.table.TableName()).
		Select(workflow).
		Where(goqu.Ex{"workflow_name": name}).
		Order(goqu.I("workflow_version").Desc()).
		Limit(1)
	return workflow, d.table.ReadIn(ctx, txOrNil, workflow, ds)
}

// Update an existing workflow. Overrides all previous values using the supplied model.
// Returns gerror.ErrNotFound if the workflow does not exist.
func (d *WorkflowStore) Update(ctx context.Context, txOrNil *store.Tx, workflow *models.Workflow) error {
	return d.table.UpdateByID(ctx, txOrNil, workflow.ID, workflow)
}

// ListActive lists all workflows that can currently be instantiated.
// Use cursor to page through results, if any.
func (d *WorkflowStore) ListActive(
	ctx context.Context,
	txOrNil *store.Tx,
	pagination models.Pagination,
) ([]*models.Workflow, *models.Cursor, error) {
	workflowSelect := d.table.Dialect().
		From(d.table.TableName()).
		Select(&models.Workflow{}).
		Where(goqu.Ex{"workflow_is_active": true})
	var workflows []*models.Workflow
	cursor, err := d.table.ListIn(ctx, txOrNil, &workflows, pagination, workflowSelect)
	if err != nil {
		return nil, nil, err
	}
	return workflows, cursor, nil
}

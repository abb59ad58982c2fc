package nodes

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"

	"github.com/doug-martin/goqu/v9"

	"github.com/accella/accella/common/logger"
	"github.com/accella/accella/common/models"
	"github.com/accella/accella/server/store"
)

const tableName = "nodes"

type NodeStore struct {
	db    *store.DB
	table *store.Table
}

func NewStore(db *store.DB, logFactory logger.LogFactory) *NodeStore {
	return &NodeStore{
		db:    db,
		table: store.NewTableWithDescriptor(db, logFactory, store.MustDBModelWithKey(&models.Node{}, tableName, "node_name")),
	}
}

// Create a new node.
// Returns gerror.ErrAlreadyExists if a node with the same name already exists.
func (d *NodeStore) Create(ctx context.Context, txOrNil *store.Tx, node *models.Node) error {
	return d.table.Create(ctx, txOrNil, node)
}

// Read an existing node, looking it up by name.
// Returns gerror.ErrNotFound if the node does not exist.
func (d *NodeStore) Read(ctx context.Context, txOrNil *store.Tx, name models.ResourceName) (*models.Node, error) {
	node := &models.Node{}
	return node, d.table.ReadByID(ctx, txOrNil, name, node)
}

// Update an existing node. Overrides all previous values using the supplied model.
func (d *NodeStore) Update(ctx context.Context, txOrNil *store.Tx, node *models.Node) error {
	return d.table.UpdateByID(ctx, txOrNil, node.Name, node)
}

// Upsert creates a node if no node with the same name exists, otherwise it updates
// the node's mutable properties if they differ from the in-memory instance.
// Returns true,false if the node was created, false,true if the node was updated,
// or false,false if neither create nor update was necessary.
func (d *NodeStore) Upsert(ctx context.Context, txOrNil *store.Tx, node *models.Node) (bool, bool, error) {
	return d.table.Upsert(ctx, txOrNil,
		func(tx *store.Tx) (interface{}, error) {
			return d.Read(ctx, tx, node.Name)
		}, func(tx *store.Tx) error {
			return d.Create(ctx, tx, node)
		}, func(tx *store.Tx, obj interface{}) (bool, error) {
			existing := obj.(*models.Node)
			if reflect.DeepEqual(existing, node) {
				return false, nil
			}
			return true, d.Update(ctx, tx, node)
		})
}

// List returns all registered nodes ordered by name.
func (d *NodeStore) List(ctx context.Context, txOrNil *store.Tx) ([]*models.Node, error) {
	nodesSelect := d.table.Dialect().
		From(tableName).
		Select(&models.Node{}).
		Order(goqu.C("node_name").Asc())

	var nodes []*models.Node
	err := d.db.Read(txOrNil, func(db store.Reader) error {
		query, args, err := nodesSelect.ToSQL()
		if err != nil {
			return fmt.Errorf("error generating query: %w", err)
		}
		d.table.LogQuery(query, args)
		return db.ScanStructsContext(ctx, &nodes, query, args...)
	})
	if err != nil {
		return nil, store.MakeStandardDBError(err)
	}
	return nodes, nil
}

// Delete permanently and idempotently deletes a node, identifying it by name.
func (d *NodeStore) Delete(ctx context.Context, txOrNil *store.Tx, name models.ResourceName) error {
	return d.table.DeleteWhere(ctx, txOrNil, goqu.Ex{"node_name": name})
}

// SumServiceLimit sums the per-node concurrency limits declared for the specified
// service across all nodes. Returns declared=false if no node declares a limit for
// the service, in which case capacity is unconstrained. Nodes are counted whether
// awake or not; a sleeping node's capacity is still capacity.
func (d *NodeStore) SumServiceLimit(ctx context.Context, txOrNil *store.Tx, service models.ResourceName) (int, bool, error) {
	sumSelect := d.table.Dialect().
		From(tableName).
		Select(goqu.SUM(d.serviceLimitExpression(service)))

	var sum sql.NullInt64
	err := d.db.Read(txOrNil, func(db store.Reader) error {
		query, args, err := sumSelect.ToSQL()
		if err != nil {
			return fmt.Errorf("error generating query: %w", err)
		}
		d.table.LogQuery(query, args)
		_, err = db.ScanValContext(ctx, &sum, query, args...)
		return err
	})
	if err != nil {
		return 0, false, store.MakeStandardDBError(err)
	}
	if !sum.Valid {
		return 0, false, nil
	}
	return int(sum.Int64), true, nil
}

// serviceLimitExpression extracts the declared limit for a service from the
// node's max concurrency JSON document, yielding NULL when no limit is declared.
func (d *NodeStore) serviceLimitExpression(service models.ResourceName) goqu.Expression {
	if d.db.Driver == store.Postgres {
		return goqu.L("(node_max_concurrency::jsonb ->> ?)::int", service.String())
	}
	return goqu.L("json_extract(node_max_concurrency, ?)", fmt.Sprintf("$.%q", service.String()))
}

package node

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

// NodeService registers and tracks the machines that run worker services.
// The dispatcher reads the per-service concurrency limits nodes declare here.
type NodeService struct {
	db        *store.DB
	nodeStore store.NodeStore
	logger.Log
}

func NewNodeService(db *store.DB, nodeStore store.NodeStore, logFactory logger.LogFactory) *NodeService {
	return &NodeService{
		db:        db,
		nodeStore: nodeStore,
		Log:       logFactory("NodeService"),
	}
}

// Heartbeat registers the node on first contact and refreshes its declared
// capabilities and last-seen time on every subsequent call.
func (s *NodeService) Heartbeat(ctx context.Context, txOrNil *store.Tx, heartbeat *dto.NodeHeartbeat) (*models.Node, error) {
	err := heartbeat.Validate()
	if err != nil {
		return nil, gerror.NewErrValidationFailed(err.Error()).Wrap(err)
	}
	node := models.NewNode(heartbeat.Name, heartbeat.Labels, heartbeat.MaxConcurrency)
	node.WakeMethod = heartbeat.WakeMethod
	node.MAC = heartbeat.MAC
	node.ProviderRef = heartbeat.ProviderRef
	node.Script = heartbeat.Script
	node.AwakeState = models.AwakeStateAwake
	node.LastSeen = models.NewTimePtr(time.Now())
	err = node.Validate()
	if err != nil {
		return nil, gerror.NewErrValidationFailed(err.Error()).Wrap(err)
	}
	created, _, err := s.nodeStore.Upsert(ctx, txOrNil, node)
	if err != nil {
		return nil, fmt.Errorf("error upserting node: %w", err)
	}
	if created {
		s.Infof("Registered node %q", node.Name)
	} else {
		s.Debugf("Heartbeat from node %q", node.Name)
	}
	return node, nil
}

// Read an existing node, looking it up by name.
// Returns gerror.ErrNotFound if the node does not exist.
func (s *NodeService) Read(ctx context.Context, txOrNil *store.Tx, name models.ResourceName) (*models.Node, error) {
	return s.nodeStore.Read(ctx, txOrNil, name)
}

// List returns all registered nodes ordered by name.
func (s *NodeService) List(ctx context.Context, txOrNil *store.Tx) ([]*models.Node, error) {
	return s.nodeStore.List(ctx, txOrNil)
}

// Delete permanently and idempotently removes a node from the pool. Tasks the
// node already claimed are unaffected; its declared limits stop counting
// towards capacity immediately.
func (s *NodeService) Delete(ctx context.Context, txOrNil *store.Tx, name models.ResourceName) error {
	err := s.nodeStore.Delete(ctx, txOrNil, name)
	if err != nil {
		return fmt.Errorf("error deleting node: %w", err)
	}
	s.Infof("Deleted node %q", name)
	return nil
}

package agent

import (
	"context"

	"github.com/accella/accella/common/models"
	"github.com/accella/accella/server/dto"
	"github.com/accella/accella/server/services"
)

type APIClient interface {
	// Heartbeat registers the agent's node with the engine and refreshes its
	// last-seen time and declared limits. Called on startup and periodically
	// thereafter.
	Heartbeat(ctx context.Context, heartbeat *dto.NodeHeartbeat) (*models.Node, error)
	// Dequeue returns up to limit tasks that are ready to be executed by the
	// specified service, claimed for this node. Returns an empty slice if
	// there is currently no runnable work.
	Dequeue(ctx context.Context, service models.ResourceName, node models.ResourceName, limit int) ([]*dto.DequeuedTask, error)
	// MarkRunning acknowledges that the worker has begun real work on a
	// claimed task.
	MarkRunning(ctx context.Context, id models.JobTaskID, worker models.ResourceName) error
	// UpdateProgress advances a running task's progress fraction.
	UpdateProgress(ctx context.Context, id models.JobTaskID, fraction float64) error
	// MarkDone reports that a task completed successfully, recording its
	// results.
	MarkDone(ctx context.Context, id models.JobTaskID, results models.JSONMap) (*models.JobTask, error)
	// ReportFailure reports that an attempt at a task failed. The engine
	// decides whether the task is retried or becomes terminal.
	ReportFailure(ctx context.Context, id models.JobTaskID, errorCode string, errorMessage string) (*models.JobTask, error)
	// AppendEvent appends one event to the owning job's journal.
	AppendEvent(ctx context.Context, event *dto.AppendEvent) (*models.TaskEvent, error)
}

// EngineClient is an APIClient for agents running inside the same process as
// the engine, calling the engine's services directly.
type EngineClient struct {
	dispatchService  services.DispatchService
	lifecycleService services.LifecycleService
	journalService   services.JournalService
	nodeService      services.NodeService
}

func NewEngineClient(
	dispatchService services.DispatchService,
	lifecycleService services.LifecycleService,
	journalService services.JournalService,
	nodeService services.NodeService,
) *EngineClient {
	return &EngineClient{
		dispatchService:  dispatchService,
		lifecycleService: lifecycleService,
		journalService:   journalService,
		nodeService:      nodeService,
	}
}

func (c *EngineClient) Heartbeat(ctx context.Context, heartbeat *dto.NodeHeartbeat) (*models.Node, error) {
	return c.nodeService.Heartbeat(ctx, nil, heartbeat)
}

func (c *EngineClient) Dequeue(ctx context.Context, service models.ResourceName, node models.ResourceName, limit int) ([]*dto.DequeuedTask, error) {
	return c.dispatchService.Dequeue(ctx, service, node, limit)
}

func (c *EngineClient) MarkRunning(ctx context.Context, id models.JobTaskID, worker models.ResourceName) error {
	return c.lifecycleService.MarkRunning(ctx, id, worker)
}

func (c *EngineClient) UpdateProgress(ctx context.Context, id models.JobTaskID, fraction float64) error {
	return c.lifecycleService.UpdateProgress(ctx, id, fraction)
}

func (c *EngineClient) MarkDone(ctx context.Context, id models.JobTaskID, results models.JSONMap) (*models.JobTask, error) {
	return c.lifecycleService.MarkDone(ctx, id, results)
}

func (c *EngineClient) ReportFailure(ctx context.Context, id models.JobTaskID, errorCode string, errorMessage string) (*models.JobTask, error) {
	return c.lifecycleService.ReportFailure(ctx, id, errorCode, errorMessage)
}

func (c *EngineClient) AppendEvent(ctx context.Context, event *dto.AppendEvent) (*models.TaskEvent, error) {
	return c.journalService.AppendEvent(ctx, nil, event)
}

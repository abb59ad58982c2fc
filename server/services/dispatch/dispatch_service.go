package dispatch

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/accella/accella/common/logger"
	"github.com/accella/accella/common/models"
	"github.com/accella/accella/server/dto"
	"github.com/accella/accella/server/services"
	"github.com/accella/accella/server/store"
)

// EventSource identifies dispatch as the producer of journal events.
const EventSource = "dispatch"

type DispatchService struct {
	db             *store.DB
	jobStore       store.JobStore
	jobTaskStore   store.JobTaskStore
	nodeStore      store.NodeStore
	journalService services.JournalService
	clk            clock.Clock
	logger.Log
}

func NewDispatchService(
	db *store.DB,
	jobStore store.JobStore,
	jobTaskStore store.JobTaskStore,
	nodeStore store.NodeStore,
	journalService services.JournalService,
	clk clock.Clock,
	logFactory logger.LogFactory,
) *DispatchService {
	return &DispatchService{
		db:             db,
		jobStore:       jobStore,
		jobTaskStore:   jobTaskStore,
		nodeStore:      nodeStore,
		journalService: journalService,
		clk:            clk,
		Log:            logFactory("DispatchService"),
	}
}

// Dequeue selects up to limit runnable tasks for the specified service and
// atomically claims them for the node, all within one transaction. Tasks are
// returned in dispatch order together with their job context. Returns an
// empty slice when nothing is runnable or the service's capacity is exhausted.
func (s *DispatchService) Dequeue(ctx context.Context, service models.ResourceName, node models.ResourceName, limit int) ([]*dto.DequeuedTask, error) {
	var dequeued []*dto.DequeuedTask
	err := s.db.WithTx(ctx, nil, func(tx *store.Tx) error {
		dequeued = nil
		capacity, err := s.EffectiveCapacity(ctx, tx, service, limit)
		if err != nil {
			return fmt.Errorf("error computing effective capacity: %w", err)
		}
		if capacity == 0 {
			return nil
		}
		now := models.NewTime(s.clk.Now())
		tasks, err := s.jobTaskStore.SelectRunnable(ctx, tx, service, capacity, now)
		if err != nil {
			return fmt.Errorf("error selecting runnable tasks: %w", err)
		}
		if len(tasks) == 0 {
			return nil
		}
		ids := make([]models.JobTaskID, len(tasks))
		for i, task := range tasks {
			ids[i] = task.ID
		}
		claimed, err := s.jobTaskStore.Claim(ctx, tx, ids, node, node)
		if err != nil {
			return fmt.Errorf("error claiming tasks: %w", err)
		}
		if claimed != int64(len(ids)) {
			// Selection locked these rows until the end of the transaction, so a
			// short claim means the rows changed underneath us. Roll the whole
			// transaction back rather than hand out a partial batch.
			return fmt.Errorf("error claimed %d of %d selected tasks", claimed, len(ids))
		}
		jobsByID := make(map[models.JobID]*models.Job)
		for _, task := range tasks {
			claimedTask, err := s.jobTaskStore.Read(ctx, tx, task.ID)
			if err != nil {
				return fmt.Errorf("error reading claimed task: %w", err)
			}
			job, ok := jobsByID[claimedTask.JobID]
			if !ok {
				job, err = s.jobStore.Read(ctx, tx, claimedTask.JobID)
				if err != nil {
					return fmt.Errorf("error reading job: %w", err)
				}
				jobsByID[claimedTask.JobID] = job
			}
			taskID := claimedTask.ID
			_, err = s.journalService.AppendEvent(ctx, tx, &dto.AppendEvent{
				JobID:     claimedTask.JobID,
				JobTaskID: &taskID,
				Source:    EventSource,
				Level:     models.EventLevelInfo,
				Type:      models.EventTypeStatus,
				Message:   fmt.Sprintf("task %s claimed by node %s", claimedTask.TaskKey, node),
				Data: models.JSONMap{
					"status":   models.TaskStatusStarting.String(),
					"node":     node.String(),
					"task_key": claimedTask.TaskKey.String(),
				},
			})
			if err != nil {
				return fmt.Errorf("error appending claim event: %w", err)
			}
			dequeued = append(dequeued, &dto.DequeuedTask{JobTask: claimedTask, Job: job})
		}
		s.Infof("Dequeued %d task(s) for service %q to node %q", len(dequeued), service, node)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dequeued, nil
}

// EffectiveCapacity applies the per-node concurrency caps declared for a
// service. When no node declares a limit for the service, capacity is
// unconstrained and the requested limit is returned unchanged. Otherwise the
// number of tasks already claimed or running is subtracted from the declared
// total, floored at zero.
func (s *DispatchService) EffectiveCapacity(ctx context.Context, txOrNil *store.Tx, service models.ResourceName, limit int) (int, error) {
	if limit < 0 {
		limit = 0
	}
	declaredMax, declared, err := s.nodeStore.SumServiceLimit(ctx, txOrNil, service)
	if err != nil {
		return 0, fmt.Errorf("error summing node limits for service %q: %w", service, err)
	}
	if !declared {
		return limit, nil
	}
	active, err := s.jobTaskStore.CountActive(ctx, txOrNil, service)
	if err != nil {
		return 0, fmt.Errorf("error counting active tasks for service %q: %w", service, err)
	}
	capacity := declaredMax - active
	if capacity > limit {
		capacity = limit
	}
	if capacity < 0 {
		capacity = 0
	}
	return capacity, nil
}

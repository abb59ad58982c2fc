package agent

import (
	"context"
	"fmt"

	"github.com/accella/accella/common/models"
	"github.com/accella/accella/server/dto"
)

// TaskReporter reports interim state for a single attempt at a task back to
// the engine. A reporter is valid for the duration of one Execute call.
type TaskReporter struct {
	client APIClient
	node   models.ResourceName
	task   *dto.DequeuedTask
}

func NewTaskReporter(client APIClient, node models.ResourceName, task *dto.DequeuedTask) *TaskReporter {
	return &TaskReporter{
		client: client,
		node:   node,
		task:   task,
	}
}

// Progress advances the task's progress fraction and journals a progress
// event. Progress only ever moves forward; stale fractions are discarded by
// the engine without error.
func (r *TaskReporter) Progress(ctx context.Context, fraction float64) error {
	err := r.client.UpdateProgress(ctx, r.task.ID, fraction)
	if err != nil {
		return fmt.Errorf("error updating task progress: %w", err)
	}
	_, err = r.client.AppendEvent(ctx, &dto.AppendEvent{
		JobTaskID: &r.task.ID,
		Source:    r.source(),
		Level:     models.EventLevelDebug,
		Type:      models.EventTypeProgress,
		Data: models.JSONMap{
			"fraction": fraction,
			"node":     r.node.String(),
		},
	})
	if err != nil {
		return fmt.Errorf("error appending progress event: %w", err)
	}
	return nil
}

// Log appends a log event to the owning job's journal on behalf of the task.
func (r *TaskReporter) Log(ctx context.Context, level models.EventLevel, message string) error {
	_, err := r.client.AppendEvent(ctx, &dto.AppendEvent{
		JobTaskID: &r.task.ID,
		Source:    r.source(),
		Level:     level,
		Type:      models.EventTypeLog,
		Message:   message,
		Data: models.JSONMap{
			"node": r.node.String(),
		},
	})
	if err != nil {
		return fmt.Errorf("error appending log event: %w", err)
	}
	return nil
}

func (r *TaskReporter) source() string {
	return fmt.Sprintf("service:%s", r.task.ServiceName)
}

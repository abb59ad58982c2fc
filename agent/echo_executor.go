package agent

import (
	"context"
	"fmt"

	"github.com/accella/accella/common/models"
	"github.com/accella/accella/server/dto"
)

// EchoExecutor executes tasks by journaling a log line and returning the
// task's parameters as its results. It stands in for a real executor on
// development deployments so workflows can be moved end to end before any
// business logic is attached; real deployments provide their own Executor.
type EchoExecutor struct{}

func (EchoExecutor) Execute(ctx context.Context, task *dto.DequeuedTask, reporter *TaskReporter) (models.JSONMap, error) {
	err := reporter.Log(ctx, models.EventLevelInfo, fmt.Sprintf("echo executor completed task %q", task.TaskKey))
	if err != nil {
		return nil, err
	}
	return task.Params, nil
}

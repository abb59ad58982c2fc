package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/accella/accella/common/models"
	"github.com/accella/accella/server/dto"
)

// DefaultErrorCode is recorded against a failed attempt when the executor's
// error does not carry a code of its own.
const DefaultErrorCode = "execution_failed"

// Executor runs the business logic of one task. The engine never interprets
// task params or results; they pass through to and from the executor opaquely.
type Executor interface {
	// Execute runs the task to completion, reporting interim progress through
	// the reporter. The returned results are recorded on the task when it is
	// marked done.
	// Execute is called concurrently from multiple worker goroutines and must
	// be safe for concurrent use. It must also be idempotent with respect to
	// repeated delivery of the same task: a retried attempt is delivered with
	// the same task ID and a higher attempt counter.
	Execute(ctx context.Context, task *dto.DequeuedTask, reporter *TaskReporter) (models.JSONMap, error)
}

// TaskError attaches a machine-readable code to a task failure. The code is
// recorded in the task's results and is surfaced on the owning job if the
// task fails terminally.
type TaskError struct {
	Code    string
	Message string
}

func NewTaskError(code string, message string) *TaskError {
	return &TaskError{Code: code, Message: message}
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// taskErrorDetails extracts the code and message to report for a failed
// attempt at a task.
func taskErrorDetails(err error) (code string, message string) {
	var taskErr *TaskError
	if errors.As(err, &taskErr) {
		return taskErr.Code, taskErr.Message
	}
	return DefaultErrorCode, err.Error()
}

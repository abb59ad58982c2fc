package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// DefaultTaskMaxAttempts is the retry budget applied to tasks whose workflow
// step does not declare its own.
const DefaultTaskMaxAttempts = 3

type JobTaskID struct {
	uuid.UUID
}

func NewJobTaskID() JobTaskID {
	return JobTaskID{UUID: uuid.New()}
}

func ParseJobTaskID(str string) (JobTaskID, error) {
	id, err := uuid.Parse(str)
	if err != nil {
		return JobTaskID{}, fmt.Errorf("error parsing Job Task ID: %w", err)
	}
	return JobTaskID{UUID: id}, nil
}

func (s JobTaskID) Valid() bool {
	return s.UUID != uuid.Nil
}

const (
	// TaskStatusQueued indicates the task is waiting to be claimed by a node.
	TaskStatusQueued TaskStatus = "queued"
	// TaskStatusStarting indicates the task has been claimed by a node but
	// the worker has not yet acknowledged it.
	TaskStatusStarting TaskStatus = "starting"
	// TaskStatusRunning indicates the worker has begun real work on the task.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusDone indicates the task finished successfully.
	TaskStatusDone TaskStatus = "done"
	// TaskStatusError indicates the task failed and its retry budget is exhausted.
	TaskStatusError TaskStatus = "error"
	// TaskStatusSkipped indicates the task was skipped by policy because an
	// upstream dependency failed or was itself skipped.
	TaskStatusSkipped TaskStatus = "skipped"
)

var taskStatuses = map[string]TaskStatus{
	string(TaskStatusQueued):   TaskStatusQueued,
	string(TaskStatusStarting): TaskStatusStarting,
	string(TaskStatusRunning):  TaskStatusRunning,
	string(TaskStatusDone):     TaskStatusDone,
	string(TaskStatusError):    TaskStatusError,
	string(TaskStatusSkipped):  TaskStatusSkipped,
}

type TaskStatus string

func (s TaskStatus) Valid() bool {
	_, ok := taskStatuses[string(s)]
	return ok
}

// HasFinished returns true if the task has reached a terminal state.
func (s TaskStatus) HasFinished() bool {
	return s == TaskStatusDone || s == TaskStatusError || s == TaskStatusSkipped
}

// IsActive returns true if a node is currently working on the task.
func (s TaskStatus) IsActive() bool {
	return s == TaskStatusStarting || s == TaskStatusRunning
}

func (s TaskStatus) String() string {
	return string(s)
}

func (s *TaskStatus) Scan(src interface{}) error {
	if src == nil {
		return fmt.Errorf("error task status must not be null")
	}
	t, ok := src.(string)
	if !ok {
		return fmt.Errorf("unsupported type for task status: %[1]T (%[1]v)", src)
	}
	status, ok := taskStatuses[t]
	if !ok {
		return fmt.Errorf("error unknown task status: %q", t)
	}
	*s = status
	return nil
}

func (s TaskStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// JobTask is one unit of work within a job, instantiated from a workflow
// step. Tasks are claimed by nodes, executed by worker services, and retried
// up to MaxAttempts times.
type JobTask struct {
	JobTaskMetadata
	JobTaskData
}

type JobTaskMetadata struct {
	ID        JobTaskID `json:"id" goqu:"skipupdate" db:"job_task_id"`
	CreatedAt Time      `json:"created_at" goqu:"skipupdate" db:"job_task_created_at"`
	UpdatedAt Time      `json:"updated_at" db:"job_task_updated_at"`
}

type JobTaskData struct {
	// JobID references the job this task belongs to.
	JobID JobID `json:"job_id" goqu:"skipupdate" db:"job_task_job_id"`
	// TaskKey matches the key of the workflow step this task was
	// instantiated from. (JobID, TaskKey) is unique.
	TaskKey ResourceName `json:"task_key" goqu:"skipupdate" db:"job_task_task_key"`
	// ServiceName identifies the worker service that executes this task.
	ServiceName ResourceName `json:"service_name" goqu:"skipupdate" db:"job_task_service_name"`
	// Status reflects where the task is in its lifecycle.
	Status TaskStatus `json:"status" db:"job_task_status"`
	// DependsOn lists the task keys of siblings that must complete before
	// this task may run.
	DependsOn StringList `json:"depends_on" goqu:"skipupdate" db:"job_task_depends_on"`
	// Skippable marks a task whose terminal failure is recorded as skipped
	// rather than failing the whole job.
	Skippable bool `json:"skippable" goqu:"skipupdate" db:"job_task_skippable"`
	// AllowSkippedDeps lets the task run when a dependency was skipped.
	AllowSkippedDeps bool `json:"allow_skipped_deps" goqu:"skipupdate" db:"job_task_allow_skipped_deps"`
	// Attempt counts completed attempts. Initially 0.
	Attempt int `json:"attempt" db:"job_task_attempt"`
	// MaxAttempts is the task's retry budget.
	MaxAttempts int `json:"max_attempts" db:"job_task_max_attempts"`
	// NextAttemptAt is the earliest time the task may be re-selected after a
	// retryable failure. Nil means immediately eligible.
	NextAttemptAt *Time `json:"next_attempt_at" db:"job_task_next_attempt_at"`
	// Priority orders tasks of the same service within a job.
	Priority int `json:"priority" db:"job_task_priority"`
	// Progress is the fraction of the task completed, in [0,1].
	Progress float64 `json:"progress" db:"job_task_progress"`
	// Params are the parameters the worker receives, copied from the
	// workflow step at instantiation.
	Params JSONMap `json:"params" db:"job_task_params"`
	// Results is the structured output of the task, merged across writes.
	Results JSONMap `json:"results" db:"job_task_results"`
	// AssignedNode is the name of the node the task was dispatched to, or
	// empty if the task has not been claimed yet.
	AssignedNode ResourceName `json:"assigned_node" db:"job_task_assigned_node"`
	// ClaimedBy is the identity of the worker that most recently claimed
	// this task. Set atomically at claim.
	ClaimedBy ResourceName `json:"claimed_by" db:"job_task_claimed_by"`
	// ClaimedAt is the time of the most recent claim.
	ClaimedAt *Time `json:"claimed_at" db:"job_task_claimed_at"`
	// StartedAt is the time the worker first acknowledged the task.
	StartedAt *Time `json:"started_at" db:"job_task_started_at"`
	// FinishedAt is the time the task reached a terminal state.
	FinishedAt *Time `json:"finished_at" db:"job_task_finished_at"`
}

// NewJobTask makes the task a workflow step expands to for the specified
// job. Container fields are copied so tasks never alias the step's defaults.
func NewJobTask(now Time, jobID JobID, step *WorkflowStep) *JobTask {
	maxAttempts := step.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = DefaultTaskMaxAttempts
	}
	return &JobTask{
		JobTaskMetadata: JobTaskMetadata{
			ID:        NewJobTaskID(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		JobTaskData: JobTaskData{
			JobID:            jobID,
			TaskKey:          step.Key,
			ServiceName:      step.ServiceName,
			Status:           TaskStatusQueued,
			DependsOn:        step.DependsOn.Copy(),
			Skippable:        step.Skippable,
			AllowSkippedDeps: step.AllowSkippedDeps,
			Attempt:          0,
			MaxAttempts:      maxAttempts,
			Priority:         step.Priority,
			Params:           step.Params.Copy(),
		},
	}
}

func (m *JobTask) Validate() error {
	var result *multierror.Error
	if !m.ID.Valid() {
		result = multierror.Append(result, errors.New("error id must be set"))
	}
	if m.CreatedAt.IsZero() {
		result = multierror.Append(result, errors.New("error created at must be set"))
	}
	if m.UpdatedAt.IsZero() {
		result = multierror.Append(result, errors.New("error updated at must be set"))
	}
	if !m.JobID.Valid() {
		result = multierror.Append(result, errors.New("error job id must be set"))
	}
	if err := m.TaskKey.Validate(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "error validating task key"))
	}
	if err := m.ServiceName.Validate(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "error validating service name"))
	}
	if !m.Status.Valid() {
		result = multierror.Append(result, errors.New("error status is invalid"))
	}
	if m.Attempt < 0 {
		result = multierror.Append(result, errors.New("error attempt must not be negative"))
	}
	if m.MaxAttempts < 1 {
		result = multierror.Append(result, errors.New("error max attempts must be at least 1"))
	}
	if m.Progress < 0 || m.Progress > 1 {
		result = multierror.Append(result, errors.New("error progress must be within [0,1]"))
	}
	if m.Status.IsActive() || m.Status == TaskStatusDone || m.Status == TaskStatusError {
		if m.ClaimedBy == "" {
			result = multierror.Append(result, errors.Errorf("error claimed by must be set when task is %s", m.Status))
		}
		if m.ClaimedAt == nil {
			result = multierror.Append(result, errors.Errorf("error claimed at must be set when task is %s", m.Status))
		}
	}
	return result.ErrorOrNil()
}

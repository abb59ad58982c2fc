package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

type JobID struct {
	uuid.UUID
}

func NewJobID() JobID {
	return JobID{UUID: uuid.New()}
}

func ParseJobID(str string) (JobID, error) {
	id, err := uuid.Parse(str)
	if err != nil {
		return JobID{}, fmt.Errorf("error parsing Job ID: %w", err)
	}
	return JobID{UUID: id}, nil
}

func (s JobID) Valid() bool {
	return s.UUID != uuid.Nil
}

const (
	// JobStatusQueued indicates the job has been accepted and is waiting to
	// be instantiated.
	JobStatusQueued JobStatus = "queued"
	// JobStatusRunning indicates the job's tasks have been instantiated and
	// at least one of them has not yet reached a terminal state.
	JobStatusRunning JobStatus = "running"
	// JobStatusDone indicates every task of the job finished in done or skipped.
	JobStatusDone JobStatus = "done"
	// JobStatusError indicates at least one task of the job failed terminally.
	JobStatusError JobStatus = "error"
)

var jobStatuses = map[string]JobStatus{
	string(JobStatusQueued):  JobStatusQueued,
	string(JobStatusRunning): JobStatusRunning,
	string(JobStatusDone):    JobStatusDone,
	string(JobStatusError):   JobStatusError,
}

type JobStatus string

func (s JobStatus) Valid() bool {
	_, ok := jobStatuses[string(s)]
	return ok
}

// HasFinished returns true if the job has reached a terminal state.
func (s JobStatus) HasFinished() bool {
	return s == JobStatusDone || s == JobStatusError
}

func (s JobStatus) String() string {
	return string(s)
}

func (s *JobStatus) Scan(src interface{}) error {
	if src == nil {
		return fmt.Errorf("error job status must not be null")
	}
	t, ok := src.(string)
	if !ok {
		return fmt.Errorf("unsupported type for job status: %[1]T (%[1]v)", src)
	}
	status, ok := jobStatuses[t]
	if !ok {
		return fmt.Errorf("error unknown job status: %q", t)
	}
	*s = status
	return nil
}

func (s JobStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// JobError captures why a job finished in an error state. Stored in the
// database as a single JSON column; null when the job did not fail.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (m *JobError) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	str, ok := src.(string)
	if !ok {
		return fmt.Errorf("unsupported type: %[1]T (%[1]v)", src)
	}
	err := json.Unmarshal([]byte(str), m)
	if err != nil {
		return fmt.Errorf("error unmarshalling from JSON: %w", err)
	}
	return nil
}

func (m *JobError) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	buf, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("error marshalling to JSON: %w", err)
	}
	return string(buf), nil
}

// Job is one execution of a workflow. Instantiation expands the workflow's
// steps into one task per step; the job finishes when every task has reached
// a terminal state.
type Job struct {
	JobMetadata
	JobData
}

type JobMetadata struct {
	ID        JobID `json:"id" goqu:"skipupdate" db:"job_id"`
	CreatedAt Time  `json:"created_at" goqu:"skipupdate" db:"job_created_at"`
	UpdatedAt Time  `json:"updated_at" db:"job_updated_at"`
}

type JobData struct {
	// WorkflowID references the workflow this job is an execution of.
	WorkflowID WorkflowID `json:"workflow_id" goqu:"skipupdate" db:"job_workflow_id"`
	// Status reflects where the job is in its lifecycle.
	Status JobStatus `json:"status" db:"job_status"`
	// OrderSeq is a monotonic sequence number establishing global FIFO
	// priority across jobs. Assigned by the datastore at creation.
	OrderSeq int64 `json:"order_seq" goqu:"skipupdate" db:"job_order_seq"`
	// Priority orders jobs for operator display. Dispatch order is governed
	// by OrderSeq alone.
	Priority int `json:"priority" db:"job_priority"`
	// Options carries caller-supplied execution options for the job.
	Options JSONMap `json:"options" db:"job_options"`
	// Progress is the fraction of the job completed, in [0,1].
	Progress float64 `json:"progress" db:"job_progress"`
	// CurrentTaskKey names the most recently started task, for display.
	CurrentTaskKey ResourceName `json:"current_task_key" db:"job_current_task_key"`
	// ScheduledAt is the earliest time the job should be instantiated, or
	// nil to instantiate immediately.
	ScheduledAt *Time `json:"scheduled_at" db:"job_scheduled_at"`
	// Error is set if the job finished with an error (or nil otherwise).
	Error *JobError `json:"error" db:"job_error"`
}

func NewJob(now Time, workflowID WorkflowID, priority int, options JSONMap, scheduledAt *Time) *Job {
	return &Job{
		JobMetadata: JobMetadata{
			ID:        NewJobID(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		JobData: JobData{
			WorkflowID:  workflowID,
			Status:      JobStatusQueued,
			Priority:    priority,
			Options:     options.Copy(),
			ScheduledAt: scheduledAt,
		},
	}
}

func (m *Job) Validate() error {
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
	if !m.WorkflowID.Valid() {
		result = multierror.Append(result, errors.New("error workflow id must be set"))
	}
	if !m.Status.Valid() {
		result = multierror.Append(result, errors.New("error status is invalid"))
	}
	if m.Progress < 0 || m.Progress > 1 {
		result = multierror.Append(result, errors.New("error progress must be within [0,1]"))
	}
	if m.ScheduledAt != nil && m.ScheduledAt.IsZero() {
		result = multierror.Append(result, errors.New("error scheduled at must be non-zero when set"))
	}
	if m.CurrentTaskKey != "" {
		if err := m.CurrentTaskKey.Validate(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "error validating current task key"))
		}
	}
	return result.ErrorOrNil()
}

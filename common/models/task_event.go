package models

import (
	"database/sql/driver"
	"fmt"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// TaskEventID is a datastore-assigned monotonically increasing number that
// provides a well-defined order for events within the journal.
type TaskEventID int64

func (n TaskEventID) String() string {
	return strconv.FormatInt(int64(n), 10)
}

const (
	EventLevelDebug EventLevel = "debug"
	EventLevelInfo  EventLevel = "info"
	EventLevelWarn  EventLevel = "warn"
	EventLevelError EventLevel = "error"
)

var eventLevels = map[string]EventLevel{
	string(EventLevelDebug): EventLevelDebug,
	string(EventLevelInfo):  EventLevelInfo,
	string(EventLevelWarn):  EventLevelWarn,
	string(EventLevelError): EventLevelError,
}

type EventLevel string

func (s EventLevel) Valid() bool {
	_, ok := eventLevels[string(s)]
	return ok
}

func (s EventLevel) String() string {
	return string(s)
}

func (s *EventLevel) Scan(src interface{}) error {
	if src == nil {
		return fmt.Errorf("error event level must not be null")
	}
	t, ok := src.(string)
	if !ok {
		return fmt.Errorf("unsupported type for event level: %[1]T (%[1]v)", src)
	}
	level, ok := eventLevels[t]
	if !ok {
		return fmt.Errorf("error unknown event level: %q", t)
	}
	*s = level
	return nil
}

func (s EventLevel) Value() (driver.Value, error) {
	return string(s), nil
}

const (
	// EventTypeStatus records a task or job status transition.
	EventTypeStatus EventType = "status"
	// EventTypeProgress records a progress update from a worker.
	EventTypeProgress EventType = "progress"
	// EventTypeLog carries a line of worker output.
	EventTypeLog EventType = "log"
	// EventTypeArtifact records that an artifact reference was written.
	EventTypeArtifact EventType = "artifact"
	// EventTypeHeartbeat is emitted periodically by workers so an external
	// reaper can detect dead claims.
	EventTypeHeartbeat EventType = "heartbeat"
	// EventTypeRetry records that a failed task was requeued for another attempt.
	EventTypeRetry EventType = "retry"
)

var eventTypes = map[string]EventType{
	string(EventTypeStatus):    EventTypeStatus,
	string(EventTypeProgress):  EventTypeProgress,
	string(EventTypeLog):       EventTypeLog,
	string(EventTypeArtifact):  EventTypeArtifact,
	string(EventTypeHeartbeat): EventTypeHeartbeat,
	string(EventTypeRetry):     EventTypeRetry,
}

type EventType string

func (s EventType) Valid() bool {
	_, ok := eventTypes[string(s)]
	return ok
}

func (s EventType) String() string {
	return string(s)
}

func (s *EventType) Scan(src interface{}) error {
	if src == nil {
		return fmt.Errorf("error event type must not be null")
	}
	t, ok := src.(string)
	if !ok {
		return fmt.Errorf("unsupported type for event type: %[1]T (%[1]v)", src)
	}
	eventType, ok := eventTypes[t]
	if !ok {
		return fmt.Errorf("error unknown event type: %q", t)
	}
	*s = eventType
	return nil
}

func (s EventType) Value() (driver.Value, error) {
	return string(s), nil
}

type TaskEventMetadata struct {
	// ID is assigned by the datastore and increases monotonically.
	ID TaskEventID `json:"id" goqu:"skipinsert,skipupdate" db:"task_event_id"`
	// Timestamp is the time the event occurred. The journal fills it with
	// database "now" when the producer does not supply one.
	Timestamp Time `json:"ts" db:"task_event_ts"`
}

type TaskEventData struct {
	// JobID is the job this event belongs to. Required, either directly or
	// resolved from JobTaskID.
	JobID JobID `json:"job_id" db:"task_event_job_id"`
	// JobTaskID is the task this event belongs to, if any.
	JobTaskID *JobTaskID `json:"job_task_id" db:"task_event_job_task_id"`
	// Source identifies the producer, e.g. "service:ingest" or "dispatch".
	Source string `json:"source" db:"task_event_source"`
	// Level is the severity of the event.
	Level EventLevel `json:"level" db:"task_event_level"`
	// Type identifies the kind of event, determining what is expected in Data.
	Type EventType `json:"type" db:"task_event_type"`
	// Message is an optional human-readable description.
	Message string `json:"message" db:"task_event_message"`
	// Data provides additional structured information for the event.
	Data JSONMap `json:"data" db:"task_event_data"`
}

// TaskEvent is one entry in the append-only journal. Events are never
// updated or deleted.
type TaskEvent struct {
	TaskEventMetadata
	TaskEventData
}

func NewTaskEventData(
	jobID JobID,
	jobTaskID *JobTaskID,
	source string,
	level EventLevel,
	eventType EventType,
	message string,
	data JSONMap,
) *TaskEventData {
	return &TaskEventData{
		JobID:     jobID,
		JobTaskID: jobTaskID,
		Source:    source,
		Level:     level,
		Type:      eventType,
		Message:   message,
		Data:      data.Copy(),
	}
}

func NewTaskEvent(now Time, eventData *TaskEventData) *TaskEvent {
	return &TaskEvent{
		TaskEventMetadata: TaskEventMetadata{
			Timestamp: now,
		},
		TaskEventData: *eventData,
	}
}

func (m *TaskEvent) Validate() error {
	var result *multierror.Error
	if m.Timestamp.IsZero() {
		result = multierror.Append(result, errors.New("error timestamp must be set"))
	}
	err := m.TaskEventData.Validate()
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("data is invalid: %s", err))
	}
	return result.ErrorOrNil()
}

func (m *TaskEventData) Validate() error {
	var result *multierror.Error
	if !m.JobID.Valid() {
		result = multierror.Append(result, errors.New("error job id must be set"))
	}
	if m.JobTaskID != nil && !m.JobTaskID.Valid() {
		result = multierror.Append(result, errors.New("error job task id must be non-zero when set"))
	}
	if !m.Level.Valid() {
		result = multierror.Append(result, errors.Errorf("error unknown event level: %q", m.Level))
	}
	if !m.Type.Valid() {
		result = multierror.Append(result, errors.Errorf("error unknown event type: %q", m.Type))
	}
	// Source, Message and Data are optional
	return result.ErrorOrNil()
}

package dto

import (
	"github.com/accella/accella/common/models"
)

// AppendEvent is a request to append one event to the journal.
type AppendEvent struct {
	// Timestamp is the time the event occurred. Zero means the datastore
	// assigns its current time.
	Timestamp models.Time
	// JobID is the job the event belongs to. May be omitted when JobTaskID is
	// set, in which case it is resolved from the task.
	JobID models.JobID
	// JobTaskID is the task the event belongs to, if any.
	JobTaskID *models.JobTaskID
	// Source identifies the producer, e.g. "service:ingest" or "dispatch".
	Source string
	// Level is the severity of the event.
	Level models.EventLevel
	// Type identifies the kind of event.
	Type models.EventType
	// Message is an optional human-readable description.
	Message string
	// Data provides additional structured information for the event.
	Data models.JSONMap
}

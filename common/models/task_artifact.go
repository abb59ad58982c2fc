package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

type TaskArtifactID struct {
	uuid.UUID
}

func NewTaskArtifactID() TaskArtifactID {
	return TaskArtifactID{UUID: uuid.New()}
}

func ParseTaskArtifactID(str string) (TaskArtifactID, error) {
	id, err := uuid.Parse(str)
	if err != nil {
		return TaskArtifactID{}, fmt.Errorf("error parsing Task Artifact ID: %w", err)
	}
	return TaskArtifactID{UUID: id}, nil
}

func (s TaskArtifactID) Valid() bool {
	return s.UUID != uuid.Nil
}

const (
	// ArtifactKindInput is an object consumed by a task.
	ArtifactKindInput ArtifactKind = "input"
	// ArtifactKindOutput is an object produced by a task.
	ArtifactKindOutput ArtifactKind = "output"
	// ArtifactKindLog is captured worker output.
	ArtifactKindLog ArtifactKind = "log"
)

var artifactKinds = map[string]ArtifactKind{
	string(ArtifactKindInput):  ArtifactKindInput,
	string(ArtifactKindOutput): ArtifactKindOutput,
	string(ArtifactKindLog):    ArtifactKindLog,
}

type ArtifactKind string

func (s ArtifactKind) Valid() bool {
	_, ok := artifactKinds[string(s)]
	return ok
}

func (s ArtifactKind) String() string {
	return string(s)
}

func (s *ArtifactKind) Scan(src interface{}) error {
	if src == nil {
		return fmt.Errorf("error artifact kind must not be null")
	}
	t, ok := src.(string)
	if !ok {
		return fmt.Errorf("unsupported type for artifact kind: %[1]T (%[1]v)", src)
	}
	kind, ok := artifactKinds[t]
	if !ok {
		return fmt.Errorf("error unknown artifact kind: %q", t)
	}
	*s = kind
	return nil
}

func (s ArtifactKind) Value() (driver.Value, error) {
	return string(s), nil
}

// TaskArtifact is a reference to an object held in the external object
// store. The journal persists references only, never the bytes.
type TaskArtifact struct {
	TaskArtifactMetadata
	TaskArtifactData
}

type TaskArtifactMetadata struct {
	ID        TaskArtifactID `json:"id" goqu:"skipupdate" db:"task_artifact_id"`
	CreatedAt Time           `json:"created_at" goqu:"skipupdate" db:"task_artifact_created_at"`
}

type TaskArtifactData struct {
	// JobID is the job the artifact belongs to.
	JobID JobID `json:"job_id" db:"task_artifact_job_id"`
	// JobTaskID is the task that produced or consumed the artifact, if any.
	JobTaskID *JobTaskID `json:"job_task_id" db:"task_artifact_job_task_id"`
	// Kind records how the artifact relates to the task.
	Kind ArtifactKind `json:"kind" db:"task_artifact_kind"`
	// Bucket is the object store bucket holding the object.
	Bucket string `json:"bucket" db:"task_artifact_bucket"`
	// Key is the object's key within the bucket.
	Key string `json:"key" db:"task_artifact_key"`
	// SizeBytes is the size of the object, or 0 if unknown.
	SizeBytes int64 `json:"size_bytes" db:"task_artifact_size_bytes"`
	// ContentType is the MIME type of the object, if known.
	ContentType string `json:"content_type" db:"task_artifact_content_type"`
	// Checksum is an optional content digest carried for provenance.
	Checksum string `json:"checksum" db:"task_artifact_checksum"`
}

func NewTaskArtifactData(
	jobID JobID,
	jobTaskID *JobTaskID,
	kind ArtifactKind,
	bucket string,
	key string,
	sizeBytes int64,
	contentType string,
	checksum string,
) *TaskArtifactData {
	return &TaskArtifactData{
		JobID:       jobID,
		JobTaskID:   jobTaskID,
		Kind:        kind,
		Bucket:      bucket,
		Key:         key,
		SizeBytes:   sizeBytes,
		ContentType: contentType,
		Checksum:    checksum,
	}
}

func NewTaskArtifact(now Time, artifactData *TaskArtifactData) *TaskArtifact {
	return &TaskArtifact{
		TaskArtifactMetadata: TaskArtifactMetadata{
			ID:        NewTaskArtifactID(),
			CreatedAt: now,
		},
		TaskArtifactData: *artifactData,
	}
}

func (m *TaskArtifact) Validate() error {
	var result *multierror.Error
	if !m.ID.Valid() {
		result = multierror.Append(result, errors.New("error id must be set"))
	}
	if m.CreatedAt.IsZero() {
		result = multierror.Append(result, errors.New("error created at must be set"))
	}
	if !m.JobID.Valid() {
		result = multierror.Append(result, errors.New("error job id must be set"))
	}
	if m.JobTaskID != nil && !m.JobTaskID.Valid() {
		result = multierror.Append(result, errors.New("error job task id must be non-zero when set"))
	}
	if !m.Kind.Valid() {
		result = multierror.Append(result, errors.Errorf("error unknown artifact kind: %q", m.Kind))
	}
	if m.Bucket == "" {
		result = multierror.Append(result, errors.New("error bucket must be set"))
	}
	if m.Key == "" {
		result = multierror.Append(result, errors.New("error key must be set"))
	}
	if m.SizeBytes < 0 {
		result = multierror.Append(result, errors.New("error size bytes must not be negative"))
	}
	return result.ErrorOrNil()
}

package dto

import (
	"github.com/accella/accella/common/models"
)

// RecordArtifact is a request to record a reference to an object held in the
// external object store. The journal persists references only, never bytes.
type RecordArtifact struct {
	// JobID is the job the artifact belongs to. May be omitted when JobTaskID
	// is set, in which case it is resolved from the task.
	JobID models.JobID
	// JobTaskID is the task that produced or consumed the artifact, if any.
	JobTaskID *models.JobTaskID
	// Kind records how the artifact relates to the task.
	Kind models.ArtifactKind
	// Bucket is the object store bucket holding the object.
	Bucket string
	// Key is the object's key within the bucket.
	Key string
	// SizeBytes is the size of the object, or 0 if unknown.
	SizeBytes int64
	// ContentType is the MIME type of the object, if known.
	ContentType string
	// Checksum is an optional content digest carried for provenance.
	Checksum string
}

package blob

import (
	"fmt"

	"github.com/accella/accella/common/models"
)

const (
	AWSS3BlobStoreType BlobStoreType = "AWS_S3"
	LocalBlobStoreType BlobStoreType = "LOCAL"
)

type BlobStoreType string

func (s BlobStoreType) String() string {
	return string(s)
}

func BlobStoreTypes() []string {
	return []string{AWSS3BlobStoreType.String(), LocalBlobStoreType.String()}
}

// ObjectKey returns the conventional key for an object a task produced or
// consumed: {kind}/{job_id}/{task_key} with an optional trailing filename.
// Workers and tools that follow the convention can locate each other's
// objects from an artifact reference alone.
func ObjectKey(kind models.ArtifactKind, jobID models.JobID, taskKey models.ResourceName, filename string) string {
	key := fmt.Sprintf("%s/%s/%s", kind, jobID, taskKey)
	if filename != "" {
		key = fmt.Sprintf("%s/%s", key, filename)
	}
	return key
}

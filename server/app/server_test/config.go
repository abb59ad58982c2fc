package server_test

import (
	"testing"

	"github.com/accella/accella/server/app"
	"github.com/accella/accella/server/services/blob"
	"github.com/accella/accella/server/services/lifecycle"
)

func TestConfig(t *testing.T) *app.EngineConfig {
	// Store blobs in a temporary directory removed when the test finishes
	blobDir := t.TempDir()

	return &app.EngineConfig{
		BlobStoreConfig: app.BlobStoreConfig{
			BlobStoreType:     blob.LocalBlobStoreType.String(),
			LocalBlobStoreDir: blobDir,
		},
		RetryConfig: lifecycle.DefaultRetryConfig(),
		InternalNodeConfig: app.InternalNodeConfig{
			StartInternalNodes: false,
		},
		LogLevels: "",
	}
}

package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accella/accella/common/gerror"
	"github.com/accella/accella/common/logger"
	"github.com/accella/accella/common/models"
	"github.com/accella/accella/server/services"
)

func TestLocalStore(t *testing.T) {
	t.Run("RoundTrip/Local", testRoundTrip(NewLocalBlobStore(LocalBlobStoreDirectory(t.TempDir()))))
}

func TestLocalStorePresign(t *testing.T) {
	ctx := context.Background()
	store := NewLocalBlobStore(LocalBlobStoreDirectory(t.TempDir()))

	require.Nil(t, store.EnsureBucket(ctx, "artifacts"))
	require.Nil(t, store.Put(ctx, "artifacts", "output/report.json", bytes.NewBufferString(`{"ok":true}`), "application/json"))

	url, err := store.Presign(ctx, "artifacts", "output/report.json", time.Hour)
	require.Nil(t, err)
	assert.Contains(t, url, "file://")

	_, err = store.Presign(ctx, "artifacts", "output/missing.json", time.Hour)
	require.NotNil(t, err)
	assert.True(t, gerror.IsNotFound(err))
}

func TestLocalStoreKeyValidation(t *testing.T) {
	ctx := context.Background()
	store := NewLocalBlobStore(LocalBlobStoreDirectory(t.TempDir()))

	err := store.Put(ctx, "artifacts", "/absolute", bytes.NewBufferString("x"), "")
	require.NotNil(t, err)

	err = store.Put(ctx, "bad/bucket", "key", bytes.NewBufferString("x"), "")
	require.NotNil(t, err)

	err = store.EnsureBucket(ctx, "")
	require.NotNil(t, err)
}

func TestObjectKey(t *testing.T) {
	jobID := models.NewJobID()

	key := ObjectKey(models.ArtifactKindOutput, jobID, "transcode", "video.mp4")
	assert.Equal(t, fmt.Sprintf("output/%s/transcode/video.mp4", jobID), key)

	key = ObjectKey(models.ArtifactKindLog, jobID, "transcode", "")
	assert.Equal(t, fmt.Sprintf("log/%s/transcode", jobID), key)
}

func TestS3BlobStoreIntegration(t *testing.T) {
	t.Skip("Skipping S3 blob store integration test; point Endpoint at MinIO to run it")

	logRegistry, err := logger.NewLogRegistry("")
	assert.Nil(t, err)
	logFactory := logger.MakeLogrusLogFactoryStdOut(logRegistry)
	s3, err := NewS3BlobStore(S3BlobStoreConfig{
		Region:          "us-east-1",
		Endpoint:        "http://localhost:9000",
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
		ForcePathStyle:  true,
		DisableTLS:      true,
	}, logFactory)
	assert.Nil(t, err)
	t.Run("RoundTrip/S3", testRoundTrip(s3))
}

func testRoundTrip(store services.BlobStore) func(t *testing.T) {
	return func(t *testing.T) {
		ctx := context.Background()
		jobID := models.NewJobID()
		key := ObjectKey(models.ArtifactKindOutput, jobID, "ingest", "frames.bin")
		payload := []byte{1, 2, 3, 4, 5}

		require.Nil(t, store.EnsureBucket(ctx, "artifacts"))
		// Creating an existing bucket is fine.
		require.Nil(t, store.EnsureBucket(ctx, "artifacts"))

		require.Nil(t, store.Put(ctx, "artifacts", key, bytes.NewBuffer(payload), "application/octet-stream"))

		reader, err := store.Get(ctx, "artifacts", key)
		require.Nil(t, err)
		defer reader.Close()
		data, err := io.ReadAll(reader)
		require.Nil(t, err)
		assert.Equal(t, payload, data)

		_, err = store.Get(ctx, "artifacts", ObjectKey(models.ArtifactKindOutput, jobID, "ingest", "missing.bin"))
		require.NotNil(t, err)
	}
}

package journal_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accella/accella/common/gerror"
	"github.com/accella/accella/common/models"
	"github.com/accella/accella/server/app/server_test"
	"github.com/accella/accella/server/dto"
)

func TestJournalAppendEvent(t *testing.T) {
	app, cleanup, err := server_test.New(server_test.TestConfig(t))
	require.Nil(t, err)
	defer cleanup()
	ctx := context.Background()

	job, tasks := server_test.CreateAndInstantiateJob(t, ctx, app, "")
	otherJob, _ := server_test.CreateAndInstantiateJob(t, ctx, app, "")
	taskID := tasks[0].ID

	// An event referencing only a task has its job resolved from the task
	explicitTime := models.NewTime(time.Now().Add(-time.Minute))
	event, err := app.JournalService.AppendEvent(ctx, nil, &dto.AppendEvent{
		Timestamp: explicitTime,
		JobTaskID: &taskID,
		Source:    "service:extract",
		Level:     models.EventLevelInfo,
		Type:      models.EventTypeLog,
		Message:   "starting extraction",
		Data:      models.JSONMap{"line": float64(1)},
	})
	require.Nil(t, err)
	assert.Greater(t, int64(event.ID), int64(0))
	assert.Equal(t, job.ID, event.JobID)
	assert.Equal(t, explicitTime, event.Timestamp)

	// An event with no timestamp gets the datastore's current time
	event, err = app.JournalService.AppendEvent(ctx, nil, &dto.AppendEvent{
		JobID:  job.ID,
		Source: "service:extract",
		Level:  models.EventLevelDebug,
		Type:   models.EventTypeHeartbeat,
	})
	require.Nil(t, err)
	assert.False(t, event.Timestamp.IsZero())
	assert.WithinDuration(t, time.Now(), event.Timestamp.Time, time.Minute)

	t.Run("RejectsBadReferences", func(t *testing.T) {
		unknownTask := models.NewJobTaskID()
		tests := []struct {
			name  string
			event *dto.AppendEvent
		}{
			{"UnknownLevel", &dto.AppendEvent{JobID: job.ID, Source: "test", Level: "loud", Type: models.EventTypeLog}},
			{"UnknownType", &dto.AppendEvent{JobID: job.ID, Source: "test", Level: models.EventLevelInfo, Type: "explosion"}},
			{"NoReference", &dto.AppendEvent{Source: "test", Level: models.EventLevelInfo, Type: models.EventTypeLog}},
			{"UnknownJob", &dto.AppendEvent{JobID: models.NewJobID(), Source: "test", Level: models.EventLevelInfo, Type: models.EventTypeLog}},
			{"UnknownTask", &dto.AppendEvent{JobTaskID: &unknownTask, Source: "test", Level: models.EventLevelInfo, Type: models.EventTypeLog}},
			{"TaskFromDifferentJob", &dto.AppendEvent{JobID: otherJob.ID, JobTaskID: &taskID, Source: "test", Level: models.EventLevelInfo, Type: models.EventTypeLog}},
		}
		for _, test := range tests {
			t.Run(test.name, func(t *testing.T) {
				_, err := app.JournalService.AppendEvent(ctx, nil, test.event)
				require.NotNil(t, err)
				require.True(t, gerror.IsValidationFailed(err), "Expected a validation error, got %v", err)
			})
		}
	})
}

func TestJournalFetchEvents(t *testing.T) {
	app, cleanup, err := server_test.New(server_test.TestConfig(t))
	require.Nil(t, err)
	defer cleanup()
	ctx := context.Background()

	job, _ := server_test.CreateAndInstantiateJob(t, ctx, app, "")

	const total = 5
	for i := 0; i < total; i++ {
		_, err := app.JournalService.AppendEvent(ctx, nil, &dto.AppendEvent{
			JobID:   job.ID,
			Source:  "service:extract",
			Level:   models.EventLevelInfo,
			Type:    models.EventTypeLog,
			Message: fmt.Sprintf("line %d", i),
		})
		require.Nil(t, err)
	}

	// Events come back in journal order and resume from any position
	var lastEventID models.TaskEventID
	seen := 0
	for {
		events, err := app.JournalService.FetchEvents(ctx, nil, job.ID, lastEventID, 2)
		require.Nil(t, err)
		if len(events) == 0 {
			break
		}
		require.LessOrEqual(t, len(events), 2)
		for _, event := range events {
			require.Greater(t, int64(event.ID), int64(lastEventID))
			assert.Equal(t, fmt.Sprintf("line %d", seen), event.Message)
			lastEventID = event.ID
			seen++
		}
	}
	assert.Equal(t, total, seen)

	// A job with no events yields an empty page
	emptyJob, _ := server_test.CreateAndInstantiateJob(t, ctx, app, "")
	events, err := app.JournalService.FetchEvents(ctx, nil, emptyJob.ID, 0, 10)
	require.Nil(t, err)
	assert.Empty(t, events)
}

func TestJournalArtifacts(t *testing.T) {
	app, cleanup, err := server_test.New(server_test.TestConfig(t))
	require.Nil(t, err)
	defer cleanup()
	ctx := context.Background()

	job, tasks := server_test.CreateAndInstantiateJob(t, ctx, app, "")
	otherJob, _ := server_test.CreateAndInstantiateJob(t, ctx, app, "")
	taskID := tasks[0].ID

	// A task reference resolves the artifact's job
	artifact, err := app.JournalService.RecordArtifact(ctx, nil, &dto.RecordArtifact{
		JobTaskID:   &taskID,
		Kind:        models.ArtifactKindOutput,
		Bucket:      "artifacts",
		Key:         fmt.Sprintf("output/%s/extract/rows.parquet", job.ID),
		SizeBytes:   2048,
		ContentType: "application/octet-stream",
		Checksum:    "sha256:d2f7",
	})
	require.Nil(t, err)
	assert.Equal(t, job.ID, artifact.JobID)
	assert.Equal(t, models.ArtifactKindOutput, artifact.Kind)

	// A job-only reference works for job-level artifacts
	_, err = app.JournalService.RecordArtifact(ctx, nil, &dto.RecordArtifact{
		JobID:  job.ID,
		Kind:   models.ArtifactKindLog,
		Bucket: "artifacts",
		Key:    fmt.Sprintf("logs/%s/job.log", job.ID),
	})
	require.Nil(t, err)

	listed, _, err := app.JournalService.ListArtifacts(ctx, nil, job.ID, models.NewPagination(10, nil))
	require.Nil(t, err)
	require.Len(t, listed, 2)

	// Artifacts never leak across jobs
	listed, _, err = app.JournalService.ListArtifacts(ctx, nil, otherJob.ID, models.NewPagination(10, nil))
	require.Nil(t, err)
	require.Empty(t, listed)

	t.Run("RejectsBadReferences", func(t *testing.T) {
		unknownTask := models.NewJobTaskID()
		tests := []struct {
			name   string
			record *dto.RecordArtifact
		}{
			{"UnknownKind", &dto.RecordArtifact{JobID: job.ID, Kind: "bogus", Bucket: "artifacts", Key: "a"}},
			{"MissingBucket", &dto.RecordArtifact{JobID: job.ID, Kind: models.ArtifactKindInput, Key: "a"}},
			{"MissingKey", &dto.RecordArtifact{JobID: job.ID, Kind: models.ArtifactKindInput, Bucket: "artifacts"}},
			{"NegativeSize", &dto.RecordArtifact{JobID: job.ID, Kind: models.ArtifactKindInput, Bucket: "artifacts", Key: "a", SizeBytes: -1}},
			{"UnknownJob", &dto.RecordArtifact{JobID: models.NewJobID(), Kind: models.ArtifactKindInput, Bucket: "artifacts", Key: "a"}},
			{"UnknownTask", &dto.RecordArtifact{JobTaskID: &unknownTask, Kind: models.ArtifactKindInput, Bucket: "artifacts", Key: "a"}},
			{"TaskFromDifferentJob", &dto.RecordArtifact{JobID: otherJob.ID, JobTaskID: &taskID, Kind: models.ArtifactKindInput, Bucket: "artifacts", Key: "a"}},
		}
		for _, test := range tests {
			t.Run(test.name, func(t *testing.T) {
				_, err := app.JournalService.RecordArtifact(ctx, nil, test.record)
				require.NotNil(t, err)
				require.True(t, gerror.IsValidationFailed(err), "Expected a validation error, got %v", err)
			})
		}
	})
}

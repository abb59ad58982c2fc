package task_events_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/accella/accella/common/gerror"
	"github.com/accella/accella/common/models"
	"github.com/accella/accella/server/app/server_test"
)

func TestTaskEvent(t *testing.T) {
	app, cleanup, err := server_test.New(server_test.TestConfig(t))
	require.Nil(t, err)
	defer cleanup()
	ctx := context.Background()

	job, tasks := server_test.CreateAndInstantiateJob(t, ctx, app, "")
	task := tasks[0]

	// The database assigns the ID; an explicit timestamp is stored as supplied
	explicitTime := models.NewTime(time.Now().Add(-time.Hour))
	first := models.NewTaskEvent(explicitTime, models.NewTaskEventData(
		job.ID, &task.ID, "service:ingest", models.EventLevelInfo, models.EventTypeLog, "starting extract", nil))
	err = app.TaskEventStore.Create(ctx, nil, first)
	require.Nil(t, err)
	require.Greater(t, int64(first.ID), int64(0))
	require.Equal(t, explicitTime, first.Timestamp)

	// A zero timestamp is filled with the database's current time
	second := models.NewTaskEvent(models.Time{}, models.NewTaskEventData(
		job.ID, nil, "dispatch", models.EventLevelInfo, models.EventTypeStatus, "task dispatched",
		models.JSONMap{"node": "test-node-1"}))
	err = app.TaskEventStore.Create(ctx, nil, second)
	require.Nil(t, err)
	require.Greater(t, int64(second.ID), int64(first.ID))
	require.False(t, second.Timestamp.IsZero())

	t.Run("Read", testTaskEventRead(app, first))
	t.Run("FindEvents", testTaskEventFind(app, job.ID, first, second))
	t.Run("CreateInvalid", testTaskEventCreateInvalid(app, job.ID))
}

func testTaskEventRead(app *server_test.TestEngine, referenceEvent *models.TaskEvent) func(t *testing.T) {
	return func(t *testing.T) {
		event, err := app.TaskEventStore.Read(context.Background(), nil, referenceEvent.ID)
		require.Nil(t, err)

		if event.ID != referenceEvent.ID {
			t.Error("Unexpected ID")
		}

		if event.JobID != referenceEvent.JobID {
			t.Error("Unexpected JobID")
		}

		if event.JobTaskID == nil || *event.JobTaskID != *referenceEvent.JobTaskID {
			t.Error("Unexpected JobTaskID")
		}

		if event.Source != referenceEvent.Source {
			t.Error("Unexpected Source")
		}

		if event.Level != referenceEvent.Level {
			t.Error("Unexpected Level")
		}

		if event.Type != referenceEvent.Type {
			t.Error("Unexpected Type")
		}

		if event.Message != referenceEvent.Message {
			t.Error("Unexpected Message")
		}

		_, err = app.TaskEventStore.Read(context.Background(), nil, models.TaskEventID(99999))
		require.NotNil(t, err)
		require.True(t, gerror.IsNotFound(err))
	}
}

func testTaskEventFind(app *server_test.TestEngine, jobID models.JobID, first *models.TaskEvent, second *models.TaskEvent) func(t *testing.T) {
	return func(t *testing.T) {
		ctx := context.Background()

		// All events from the beginning of the journal, in ID order
		events, err := app.TaskEventStore.FindEvents(ctx, nil, jobID, 0, 100)
		require.Nil(t, err)
		require.Len(t, events, 2)
		require.Equal(t, first.ID, events[0].ID)
		require.Equal(t, second.ID, events[1].ID)

		// Resuming after the first event returns only what follows
		events, err = app.TaskEventStore.FindEvents(ctx, nil, jobID, first.ID, 100)
		require.Nil(t, err)
		require.Len(t, events, 1)
		require.Equal(t, second.ID, events[0].ID)

		// limit truncates
		events, err = app.TaskEventStore.FindEvents(ctx, nil, jobID, 0, 1)
		require.Nil(t, err)
		require.Len(t, events, 1)
		require.Equal(t, first.ID, events[0].ID)

		// Nothing new
		events, err = app.TaskEventStore.FindEvents(ctx, nil, jobID, second.ID, 100)
		require.Nil(t, err)
		require.Empty(t, events)
	}
}

func testTaskEventCreateInvalid(app *server_test.TestEngine, jobID models.JobID) func(t *testing.T) {
	return func(t *testing.T) {
		ctx := context.Background()

		// Level and type belong to closed enums
		invalidLevel := models.NewTaskEvent(models.NewTime(time.Now()), models.NewTaskEventData(
			jobID, nil, "test", "loud", models.EventTypeLog, "", nil))
		err := app.TaskEventStore.Create(ctx, nil, invalidLevel)
		require.NotNil(t, err)

		invalidType := models.NewTaskEvent(models.NewTime(time.Now()), models.NewTaskEventData(
			jobID, nil, "test", models.EventLevelInfo, "explosion", "", nil))
		err = app.TaskEventStore.Create(ctx, nil, invalidType)
		require.NotNil(t, err)

		missingJob := models.NewTaskEvent(models.NewTime(time.Now()), models.NewTaskEventData(
			models.JobID{}, nil, "test", models.EventLevelInfo, models.EventTypeLog, "", nil))
		err = app.TaskEventStore.Create(ctx, nil, missingJob)
		require.NotNil(t, err)
	}
}

package models_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/accella/accella/common/models"
)

// Every status enum must refuse to scan a string that isn't one of its
// members. A row with a mangled status is a bug we want surfaced at read
// time, not coerced into a default.
func Test_enumScanRejectsUnknownValues(t *testing.T) {
	var jobStatus models.JobStatus
	require.Nil(t, jobStatus.Scan("queued"))
	require.Equal(t, models.JobStatusQueued, jobStatus)
	require.NotNil(t, jobStatus.Scan("pending"))
	require.NotNil(t, jobStatus.Scan(nil))

	var taskStatus models.TaskStatus
	require.Nil(t, taskStatus.Scan("starting"))
	require.Equal(t, models.TaskStatusStarting, taskStatus)
	require.NotNil(t, taskStatus.Scan("claimed"))
	require.NotNil(t, taskStatus.Scan(42))

	var level models.EventLevel
	require.Nil(t, level.Scan("warn"))
	require.Equal(t, models.EventLevelWarn, level)
	require.NotNil(t, level.Scan("warning"))

	var eventType models.EventType
	require.Nil(t, eventType.Scan("heartbeat"))
	require.Equal(t, models.EventTypeHeartbeat, eventType)
	require.NotNil(t, eventType.Scan("telemetry"))

	var kind models.ArtifactKind
	require.Nil(t, kind.Scan("output"))
	require.Equal(t, models.ArtifactKindOutput, kind)
	require.NotNil(t, kind.Scan("result"))

	var awake models.AwakeState
	require.Nil(t, awake.Scan("sleep"))
	require.Equal(t, models.AwakeStateSleep, awake)
	require.NotNil(t, awake.Scan("hibernating"))

	var wake models.WakeMethod
	require.Nil(t, wake.Scan("wol"))
	require.Equal(t, models.WakeMethodWOL, wake)
	require.NotNil(t, wake.Scan("ipmi"))

	var policy models.OnErrorPolicy
	require.Nil(t, policy.Scan("halt"))
	require.Equal(t, models.OnErrorHalt, policy)
	require.NotNil(t, policy.Scan("continue"))
}

func Test_enumValidity(t *testing.T) {
	require.True(t, models.TaskStatusQueued.Valid())
	require.True(t, models.JobStatusError.Valid())
	require.False(t, models.TaskStatus("finished").Valid())
	require.False(t, models.JobStatus("").Valid())
	require.False(t, models.EventLevel("fatal").Valid())
}

func Test_taskStatusPredicates(t *testing.T) {
	require.True(t, models.TaskStatusDone.HasFinished())
	require.True(t, models.TaskStatusError.HasFinished())
	require.True(t, models.TaskStatusSkipped.HasFinished())
	require.False(t, models.TaskStatusRunning.HasFinished())

	require.True(t, models.TaskStatusStarting.IsActive())
	require.True(t, models.TaskStatusRunning.IsActive())
	require.False(t, models.TaskStatusQueued.IsActive())
	require.False(t, models.TaskStatusDone.IsActive())
}

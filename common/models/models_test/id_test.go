package models_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/accella/accella/common/models"
)

func Test_jobID(t *testing.T) {
	id := models.NewJobID()
	buf, err := json.Marshal(id)
	require.Nil(t, err)
	id2 := models.JobID{}
	err = json.Unmarshal(buf, &id2)
	require.Nil(t, err)
	require.Equal(t, id, id2)

	parsed, err := models.ParseJobID(id.String())
	require.Nil(t, err)
	require.Equal(t, id, parsed)

	_, err = models.ParseJobID("not-a-uuid")
	require.NotNil(t, err)
}

func Test_idValidity(t *testing.T) {
	require.False(t, models.JobID{}.Valid())
	require.False(t, models.WorkflowID{}.Valid())
	require.False(t, models.JobTaskID{}.Valid())
	require.True(t, models.NewJobID().Valid())
	require.True(t, models.NewWorkflowID().Valid())
	require.True(t, models.NewJobTaskID().Valid())
	require.True(t, models.NewTaskArtifactID().Valid())
}

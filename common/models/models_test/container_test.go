package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/accella/accella/common/models"
)

// Tasks built from the same workflow step must not share container storage
// with each other or with the step's defaults. A worker mutating its params
// map must never leak the change into a sibling task.
func Test_jobTaskContainerIsolation(t *testing.T) {
	step := &models.WorkflowStep{
		Key:         "transform",
		ServiceName: "default",
		DependsOn:   models.StringList{"extract"},
		Params:      models.JSONMap{"mode": "strict"},
	}
	now := models.NewTime(time.Now())

	first := models.NewJobTask(now, models.NewJobID(), step)
	second := models.NewJobTask(now, models.NewJobID(), step)

	first.Params["mode"] = "lenient"
	first.Params["extra"] = true
	first.DependsOn[0] = "tampered"

	require.Equal(t, "strict", second.Params["mode"])
	require.NotContains(t, second.Params, "extra")
	require.Equal(t, models.StringList{"extract"}, second.DependsOn)
	require.Equal(t, "strict", step.Params["mode"])
	require.Equal(t, models.StringList{"extract"}, step.DependsOn)
}

func Test_jobOptionsIsolation(t *testing.T) {
	options := models.JSONMap{"trace_id": "abc"}
	now := models.NewTime(time.Now())

	job := models.NewJob(now, models.NewWorkflowID(), 0, options, nil)
	options["trace_id"] = "changed"
	require.Equal(t, "abc", job.Options["trace_id"])
}

func Test_nodeContainerIsolation(t *testing.T) {
	labels := models.StringList{"gpu"}
	limits := models.ServiceLimits{"default": 2}

	node := models.NewNode("node-1", labels, limits)
	labels[0] = "cpu"
	limits["default"] = 9

	require.Equal(t, models.StringList{"gpu"}, node.Labels)
	require.Equal(t, models.ServiceLimits{"default": 2}, node.MaxConcurrency)
}

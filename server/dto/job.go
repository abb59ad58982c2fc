package dto

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/accella/accella/common/models"
)

// EnqueueJob is a request to run a workflow.
type EnqueueJob struct {
	// WorkflowName selects the workflow to run.
	WorkflowName models.ResourceName
	// WorkflowVersion selects a specific version of the workflow, or 0 for
	// the latest version.
	WorkflowVersion int
	// Priority orders jobs for operator display. Dispatch order is governed
	// by the datastore-assigned order sequence.
	Priority int
	// Options carries caller-supplied execution options, copied onto the job.
	Options models.JSONMap
	// ScheduledAt defers instantiation until the specified time, if set.
	ScheduledAt *models.Time
}

func (m *EnqueueJob) Validate() error {
	var result *multierror.Error
	if err := m.WorkflowName.Validate(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "error validating workflow name"))
	}
	if m.WorkflowVersion < 0 {
		result = multierror.Append(result, errors.New("error workflow version must not be negative"))
	}
	if m.Priority < 0 {
		result = multierror.Append(result, errors.New("error priority must not be negative"))
	}
	if m.ScheduledAt != nil && m.ScheduledAt.IsZero() {
		result = multierror.Append(result, errors.New("error scheduled at must be non-zero when set"))
	}
	return result.ErrorOrNil()
}

// DequeuedTask provides a claimed task to the node that claimed it, together
// with the job context a worker needs to execute it.
type DequeuedTask struct {
	*models.JobTask
	// Job is the job the task belongs to.
	Job *models.Job `json:"job"`
}

package dto

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/accella/accella/common/models"
)

// NodeHeartbeat announces that a node is alive and describes the work it is
// prepared to take.
type NodeHeartbeat struct {
	// Name uniquely identifies the node.
	Name models.ResourceName
	// Labels are free-form strings used to group nodes for operators.
	Labels models.StringList
	// MaxConcurrency caps the number of tasks the node will run at once,
	// per service name.
	MaxConcurrency models.ServiceLimits
	// WakeMethod describes how the node can be woken from sleep, if at all.
	WakeMethod models.WakeMethod
	// MAC is the hardware address used by the wol wake method.
	MAC string
	// ProviderRef is the cloud instance reference used by the provider wake method.
	ProviderRef string
	// Script is the operator-supplied command used by the script wake method.
	Script string
}

func (m *NodeHeartbeat) Validate() error {
	var result *multierror.Error
	if err := m.Name.Validate(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "error validating node name"))
	}
	if m.WakeMethod != "" && !m.WakeMethod.Valid() {
		result = multierror.Append(result, errors.Errorf("error unknown wake method: %q", m.WakeMethod))
	}
	if err := m.MaxConcurrency.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

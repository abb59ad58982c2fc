package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

const (
	// AwakeStateUnknown indicates the node has never been heard from.
	AwakeStateUnknown AwakeState = "unknown"
	// AwakeStateAwake indicates the node has recently sent a heartbeat.
	AwakeStateAwake AwakeState = "awake"
	// AwakeStateSleep indicates the node was deliberately put to sleep and
	// must be woken before it can take work.
	AwakeStateSleep AwakeState = "sleep"
)

var awakeStates = map[string]AwakeState{
	string(AwakeStateUnknown): AwakeStateUnknown,
	string(AwakeStateAwake):   AwakeStateAwake,
	string(AwakeStateSleep):   AwakeStateSleep,
}

type AwakeState string

func (s AwakeState) Valid() bool {
	_, ok := awakeStates[string(s)]
	return ok
}

func (s AwakeState) String() string {
	return string(s)
}

func (s *AwakeState) Scan(src interface{}) error {
	if src == nil {
		return fmt.Errorf("error awake state must not be null")
	}
	t, ok := src.(string)
	if !ok {
		return fmt.Errorf("unsupported type for awake state: %[1]T (%[1]v)", src)
	}
	state, ok := awakeStates[t]
	if !ok {
		return fmt.Errorf("error unknown awake state: %q", t)
	}
	*s = state
	return nil
}

func (s AwakeState) Value() (driver.Value, error) {
	return string(s), nil
}

const (
	// WakeMethodWOL wakes the node with a Wake-on-LAN magic packet sent to
	// its MAC address.
	WakeMethodWOL WakeMethod = "wol"
	// WakeMethodProvider wakes the node through a cloud provider API using
	// its provider reference.
	WakeMethodProvider WakeMethod = "provider"
	// WakeMethodScript wakes the node by running an operator-supplied script.
	WakeMethodScript WakeMethod = "script"
)

var wakeMethods = map[string]WakeMethod{
	string(WakeMethodWOL):      WakeMethodWOL,
	string(WakeMethodProvider): WakeMethodProvider,
	string(WakeMethodScript):   WakeMethodScript,
}

// WakeMethod describes how a sleeping node can be woken. Empty means the
// node declares no wake mechanism.
type WakeMethod string

func (s WakeMethod) Valid() bool {
	_, ok := wakeMethods[string(s)]
	return ok
}

func (s WakeMethod) String() string {
	return string(s)
}

func (s *WakeMethod) Scan(src interface{}) error {
	if src == nil {
		*s = ""
		return nil
	}
	t, ok := src.(string)
	if !ok {
		return fmt.Errorf("unsupported type for wake method: %[1]T (%[1]v)", src)
	}
	if t == "" {
		*s = ""
		return nil
	}
	method, ok := wakeMethods[t]
	if !ok {
		return fmt.Errorf("error unknown wake method: %q", t)
	}
	*s = method
	return nil
}

func (s WakeMethod) Value() (driver.Value, error) {
	return string(s), nil
}

// Node is a machine that runs one or more worker services. Nodes register
// themselves by heartbeating; the dispatcher uses their declared service
// limits to cap concurrency per service.
type Node struct {
	// Name uniquely identifies the node.
	Name ResourceName `json:"name" goqu:"skipupdate" db:"node_name"`
	// Labels are free-form strings used to group nodes for operators.
	Labels StringList `json:"labels" db:"node_labels"`
	// LastSeen is the time of the node's most recent heartbeat.
	LastSeen *Time `json:"last_seen" db:"node_last_seen"`
	// AwakeState records whether the node is believed to be reachable.
	AwakeState AwakeState `json:"awake_state" db:"node_awake_state"`
	// WakeMethod describes how the node can be woken from sleep, if at all.
	WakeMethod WakeMethod `json:"wake_method" db:"node_wake_method"`
	// MAC is the hardware address used by the wol wake method.
	MAC string `json:"mac" db:"node_mac"`
	// ProviderRef is the cloud instance reference used by the provider wake method.
	ProviderRef string `json:"provider_ref" db:"node_provider_ref"`
	// Script is the operator-supplied command used by the script wake method.
	Script string `json:"script" db:"node_script"`
	// MaxConcurrency caps the number of tasks the node will run at once,
	// per service name. A missing entry means no declared limit.
	MaxConcurrency ServiceLimits `json:"max_concurrency" db:"node_max_concurrency"`
}

func NewNode(name ResourceName, labels StringList, maxConcurrency ServiceLimits) *Node {
	return &Node{
		Name:           name,
		Labels:         labels.Copy(),
		AwakeState:     AwakeStateUnknown,
		MaxConcurrency: maxConcurrency.Copy(),
	}
}

func (m *Node) Validate() error {
	var result *multierror.Error
	if err := m.Name.Validate(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "error validating node name"))
	}
	if !m.AwakeState.Valid() {
		result = multierror.Append(result, errors.Errorf("error unknown awake state: %q", m.AwakeState))
	}
	if m.WakeMethod != "" && !m.WakeMethod.Valid() {
		result = multierror.Append(result, errors.Errorf("error unknown wake method: %q", m.WakeMethod))
	}
	if m.WakeMethod == WakeMethodWOL && m.MAC == "" {
		result = multierror.Append(result, errors.New("error mac must be set when wake method is wol"))
	}
	if m.WakeMethod == WakeMethodProvider && m.ProviderRef == "" {
		result = multierror.Append(result, errors.New("error provider ref must be set when wake method is provider"))
	}
	if m.WakeMethod == WakeMethodScript && m.Script == "" {
		result = multierror.Append(result, errors.New("error script must be set when wake method is script"))
	}
	if m.LastSeen != nil && m.LastSeen.IsZero() {
		result = multierror.Append(result, errors.New("error last seen must be non-zero when set"))
	}
	if err := m.MaxConcurrency.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

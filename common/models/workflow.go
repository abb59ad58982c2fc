package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

type WorkflowID struct {
	uuid.UUID
}

func NewWorkflowID() WorkflowID {
	return WorkflowID{UUID: uuid.New()}
}

func ParseWorkflowID(str string) (WorkflowID, error) {
	id, err := uuid.Parse(str)
	if err != nil {
		return WorkflowID{}, fmt.Errorf("error parsing Workflow ID: %w", err)
	}
	return WorkflowID{UUID: id}, nil
}

func (s WorkflowID) Valid() bool {
	return s.UUID != uuid.Nil
}

const (
	// OnErrorSkipDescendants marks every downstream task of a failed task as
	// skipped so the job can finish.
	OnErrorSkipDescendants OnErrorPolicy = "skip_descendants"
	// OnErrorHalt leaves downstream tasks queued; an external reaper or
	// operator decides what happens to them.
	OnErrorHalt OnErrorPolicy = "halt"
)

var onErrorPolicies = map[string]OnErrorPolicy{
	string(OnErrorSkipDescendants): OnErrorSkipDescendants,
	string(OnErrorHalt):            OnErrorHalt,
}

// OnErrorPolicy determines how a workflow treats tasks downstream of a task
// that entered a terminal error state.
type OnErrorPolicy string

func (s OnErrorPolicy) Valid() bool {
	_, ok := onErrorPolicies[string(s)]
	return ok
}

func (s OnErrorPolicy) String() string {
	return string(s)
}

func (s *OnErrorPolicy) Scan(src interface{}) error {
	if src == nil {
		return fmt.Errorf("error on-error policy must not be null")
	}
	t, ok := src.(string)
	if !ok {
		return fmt.Errorf("unsupported type for on-error policy: %[1]T (%[1]v)", src)
	}
	policy, ok := onErrorPolicies[t]
	if !ok {
		return fmt.Errorf("error unknown on-error policy: %q", t)
	}
	*s = policy
	return nil
}

func (s OnErrorPolicy) Value() (driver.Value, error) {
	return string(s), nil
}

// WorkflowStep declares one task to be instantiated for each job that runs
// the workflow.
type WorkflowStep struct {
	// Key uniquely identifies the step within the workflow.
	Key ResourceName `json:"key"`
	// ServiceName identifies the worker service that executes the task.
	ServiceName ResourceName `json:"service_name"`
	// DependsOn lists the keys of sibling steps that must complete before
	// this step may run.
	DependsOn StringList `json:"depends_on,omitempty"`
	// Params are the default parameters copied onto the task at instantiation.
	Params JSONMap `json:"params,omitempty"`
	// Priority orders tasks of the same service within a job. Higher runs first.
	Priority int `json:"priority,omitempty"`
	// Skippable marks a step whose terminal failure is recorded as skipped
	// rather than failing the whole job.
	Skippable bool `json:"skippable,omitempty"`
	// AllowSkippedDeps lets the step run when a dependency was skipped
	// (rather than done). Without this flag a skipped dependency propagates
	// skipped to this step.
	AllowSkippedDeps bool `json:"allow_skipped_deps,omitempty"`
	// MaxAttempts overrides the default retry budget for tasks of this step.
	// Zero means use the workflow default.
	MaxAttempts int `json:"max_attempts,omitempty"`
}

func (m *WorkflowStep) Validate() error {
	var result *multierror.Error
	if err := m.Key.Validate(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "error validating step key"))
	}
	if err := m.ServiceName.Validate(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "error validating step service name"))
	}
	if m.MaxAttempts < 0 {
		result = multierror.Append(result, errors.New("error max attempts must not be negative"))
	}
	if m.Priority < 0 {
		result = multierror.Append(result, errors.New("error priority must not be negative"))
	}
	return result.ErrorOrNil()
}

// WorkflowSteps is the ordered list of steps making up a workflow, stored in
// the database as a single JSON column.
type WorkflowSteps []*WorkflowStep

func (m *WorkflowSteps) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	str, ok := src.(string)
	if !ok {
		return fmt.Errorf("unsupported type: %[1]T (%[1]v)", src)
	}
	err := json.Unmarshal([]byte(str), m)
	if err != nil {
		return fmt.Errorf("error unmarshalling from JSON: %w", err)
	}
	return nil
}

func (m WorkflowSteps) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	buf, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("error marshalling to JSON: %w", err)
	}
	return string(buf), nil
}

// Get returns the step with the specified key, or nil if no such step exists.
func (m WorkflowSteps) Get(key ResourceName) *WorkflowStep {
	for _, step := range m {
		if step.Key == key {
			return step
		}
	}
	return nil
}

// Workflow is a named, versioned DAG of steps. Jobs reference a workflow and
// are expanded into one task per step at instantiation time.
type Workflow struct {
	WorkflowMetadata
	WorkflowData
}

type WorkflowMetadata struct {
	ID        WorkflowID `json:"id" goqu:"skipupdate" db:"workflow_id"`
	CreatedAt Time       `json:"created_at" goqu:"skipupdate" db:"workflow_created_at"`
	UpdatedAt Time       `json:"updated_at" db:"workflow_updated_at"`
}

type WorkflowData struct {
	// Name of the workflow. The pair (name, version) is unique.
	Name ResourceName `json:"name" db:"workflow_name"`
	// Version of the workflow definition, starting at 1.
	Version int `json:"version" db:"workflow_version"`
	// Steps declares the DAG of tasks to instantiate for each job.
	Steps WorkflowSteps `json:"steps" db:"workflow_steps"`
	// OnError determines how downstream tasks are treated when a task fails
	// terminally.
	OnError OnErrorPolicy `json:"on_error" db:"workflow_on_error"`
	// IsActive is false once the workflow has been superseded or retired.
	// Inactive workflows cannot be instantiated.
	IsActive bool `json:"is_active" db:"workflow_is_active"`
}

func NewWorkflow(now Time, name ResourceName, version int, steps WorkflowSteps, onError OnErrorPolicy) *Workflow {
	if onError == "" {
		onError = OnErrorSkipDescendants
	}
	return &Workflow{
		WorkflowMetadata: WorkflowMetadata{
			ID:        NewWorkflowID(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		WorkflowData: WorkflowData{
			Name:     name,
			Version:  version,
			Steps:    steps,
			OnError:  onError,
			IsActive: true,
		},
	}
}

// Validate the workflow including the step graph: step keys must be unique,
// dependencies must reference existing steps, and the graph must be acyclic.
func (m *Workflow) Validate() error {
	var result *multierror.Error
	if !m.ID.Valid() {
		result = multierror.Append(result, errors.New("error id must be set"))
	}
	if m.CreatedAt.IsZero() {
		result = multierror.Append(result, errors.New("error created at must be set"))
	}
	if m.UpdatedAt.IsZero() {
		result = multierror.Append(result, errors.New("error updated at must be set"))
	}
	if err := m.Name.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if m.Version < 1 {
		result = multierror.Append(result, errors.New("error version must be at least 1"))
	}
	if !m.OnError.Valid() {
		result = multierror.Append(result, errors.New("error on-error policy is invalid"))
	}
	stepsByKey := make(map[ResourceName]*WorkflowStep, len(m.Steps))
	for i, step := range m.Steps {
		err := step.Validate()
		if err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "error validating step %q (index %d)", step.Key, i))
		}
		_, ok := stepsByKey[step.Key]
		if ok {
			result = multierror.Append(result, errors.Errorf("error duplicate step key %q; step keys must be unique", step.Key))
			continue
		}
		stepsByKey[step.Key] = step
	}
	for _, step := range m.Steps {
		for _, dep := range step.DependsOn {
			if _, ok := stepsByKey[ResourceName(dep)]; !ok {
				result = multierror.Append(result, errors.Errorf("error step %q depends on unknown step %q", step.Key, dep))
			}
			if ResourceName(dep) == step.Key {
				result = multierror.Append(result, errors.Errorf("error step %q depends on itself", step.Key))
			}
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return err
	}
	if cycle := findStepCycle(m.Steps, stepsByKey); len(cycle) > 0 {
		return errors.Errorf("error step dependencies contain a cycle: %v", cycle)
	}
	return nil
}

// findStepCycle runs a depth-first search over the step graph and returns the
// keys of the first cycle found, or nil if the graph is acyclic.
func findStepCycle(steps WorkflowSteps, stepsByKey map[ResourceName]*WorkflowStep) []ResourceName {
	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make(map[ResourceName]int, len(steps))
	var stack []ResourceName
	var cycle []ResourceName
	var visit func(key ResourceName) bool
	visit = func(key ResourceName) bool {
		switch state[key] {
		case visited:
			return false
		case visiting:
			for i, onStack := range stack {
				if onStack == key {
					cycle = append(append(cycle, stack[i:]...), key)
					return true
				}
			}
			return true
		}
		state[key] = visiting
		stack = append(stack, key)
		step := stepsByKey[key]
		if step != nil {
			for _, dep := range step.DependsOn {
				if visit(ResourceName(dep)) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[key] = visited
		return false
	}
	for _, step := range steps {
		if visit(step.Key) {
			return cycle
		}
	}
	return nil
}

package models

// Resource is implemented by entities that live in their own table with a
// unique id and a creation time. It gives the store's cursor pagination a
// uniform way to build page markers.
type Resource interface {
	// GetID returns the globally unique id of the entity, in string form.
	GetID() string
	// GetCreatedAt returns the Time at which this entity was created.
	GetCreatedAt() Time
	// Validate the model by checking for required fields, lengths and types etc.
	Validate() error
}

func (m *Workflow) GetID() string {
	return m.ID.String()
}

func (m *Workflow) GetCreatedAt() Time {
	return m.CreatedAt
}

func (m *Job) GetID() string {
	return m.ID.String()
}

func (m *Job) GetCreatedAt() Time {
	return m.CreatedAt
}

func (m *JobTask) GetID() string {
	return m.ID.String()
}

func (m *JobTask) GetCreatedAt() Time {
	return m.CreatedAt
}

func (m *TaskArtifact) GetID() string {
	return m.ID.String()
}

func (m *TaskArtifact) GetCreatedAt() Time {
	return m.CreatedAt
}

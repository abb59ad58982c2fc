package store

import (
	"context"

	"github.com/accella/accella/common/models"
)

type WorkflowStore interface {
	// Create a new workflow.
	// Returns gerror.ErrAlreadyExists if a workflow with the same name and version already exists.
	Create(ctx context.Context, txOrNil *Tx, workflow *models.Workflow) error
	// Read an existing workflow, looking it up by ID.
	// Returns gerror.ErrNotFound if the workflow does not exist.
	Read(ctx context.Context, txOrNil *Tx, id models.WorkflowID) (*models.Workflow, error)
	// ReadByNameAndVersion reads an existing workflow, looking it up by its name and version.
	// Returns gerror.ErrNotFound if the workflow does not exist.
	ReadByNameAndVersion(ctx context.Context, txOrNil *Tx, name models.ResourceName, version int) (*models.Workflow, error)
	// ReadLatestByName reads the highest-versioned workflow with the specified name.
	// Returns gerror.ErrNotFound if no workflow with the name exists.
	ReadLatestByName(ctx context.Context, txOrNil *Tx, name models.ResourceName) (*models.Workflow, error)
	// Update an existing workflow. Overrides all previous values using the supplied model.
	// Returns gerror.ErrNotFound if the workflow does not exist.
	Update(ctx context.Context, txOrNil *Tx, workflow *models.Workflow) error
	// ListActive lists all workflows that can currently be instantiated.
	// Use cursor to page through results, if any.
	ListActive(ctx context.Context, txOrNil *Tx, pagination models.Pagination) ([]*models.Workflow, *models.Cursor, error)
}

type JobStore interface {
	// Create a new job. An order sequence number is allocated for the job within the
	// same transaction, establishing its FIFO position across all jobs.
	Create(ctx context.Context, txOrNil *Tx, job *models.Job) error
	// Read an existing job, looking it up by ID.
	// Returns gerror.ErrNotFound if the job does not exist.
	Read(ctx context.Context, txOrNil *Tx, id models.JobID) (*models.Job, error)
	// Update an existing job. Overrides all previous values using the supplied model,
	// except for columns declared immutable at creation.
	Update(ctx context.Context, txOrNil *Tx, job *models.Job) error
	// LockRowForUpdate takes out an exclusive row lock on the job.
	// Must be called within a transaction.
	LockRowForUpdate(ctx context.Context, tx *Tx, id models.JobID) error
	// UpdateProgress sets the job's progress fraction and the key of the task most
	// recently worked on, leaving all other columns untouched.
	UpdateProgress(ctx context.Context, txOrNil *Tx, id models.JobID, progress float64, currentTaskKey models.ResourceName) error
	// CountByWorkflowID returns the number of jobs that reference the specified workflow.
	CountByWorkflowID(ctx context.Context, txOrNil *Tx, workflowID models.WorkflowID) (int64, error)
	// ListByStatus lists all jobs with the specified status. Use cursor to page through results, if any.
	ListByStatus(ctx context.Context, txOrNil *Tx, status models.JobStatus, pagination models.Pagination) ([]*models.Job, *models.Cursor, error)
	// ListByWorkflowID lists all jobs for the specified workflow. Use cursor to page through results, if any.
	ListByWorkflowID(ctx context.Context, txOrNil *Tx, workflowID models.WorkflowID, pagination models.Pagination) ([]*models.Job, *models.Cursor, error)
}

type JobTaskStore interface {
	// Create a new task.
	// Returns gerror.ErrAlreadyExists if the task's job already has a task with the same key.
	Create(ctx context.Context, txOrNil *Tx, task *models.JobTask) error
	// Read an existing task, looking it up by ID.
	// Returns gerror.ErrNotFound if the task does not exist.
	Read(ctx context.Context, txOrNil *Tx, id models.JobTaskID) (*models.JobTask, error)
	// ReadByKey reads an existing task, looking it up by its job and task key.
	// Returns gerror.ErrNotFound if the task does not exist.
	ReadByKey(ctx context.Context, txOrNil *Tx, jobID models.JobID, taskKey models.ResourceName) (*models.JobTask, error)
	// ListByJobID gets all tasks of the specified job.
	ListByJobID(ctx context.Context, txOrNil *Tx, jobID models.JobID) ([]*models.JobTask, error)
	// SelectRunnable locates up to limit queued tasks for the specified service that are
	// ready for execution as of now: no unsatisfied dependencies and no back-off window in
	// effect. Tasks are returned in dispatch order (job FIFO, then task creation order).
	// Must be called within a transaction; on databases with row-level locking the selected
	// rows are locked and rows locked by concurrent dispatchers are skipped.
	SelectRunnable(ctx context.Context, tx *Tx, service models.ResourceName, limit int, now models.Time) ([]*models.JobTask, error)
	// Claim atomically transitions the specified tasks from queued to starting, recording
	// the node and claimant identity. Returns the number of tasks actually claimed; tasks
	// claimed by somebody else in the meantime are not counted.
	Claim(ctx context.Context, tx *Tx, ids []models.JobTaskID, node models.ResourceName, claimant models.ResourceName) (int64, error)
	// MarkRunning transitions a claimed task to running, recording the start time on the
	// first call. Idempotent.
	MarkRunning(ctx context.Context, txOrNil *Tx, id models.JobTaskID) error
	// UpdateProgress records the task's progress fraction. Progress never decreases;
	// updates below the stored value are ignored.
	UpdateProgress(ctx context.Context, txOrNil *Tx, id models.JobTaskID, fraction float64) error
	// MarkDone transitions a task to done, merging the supplied results over any
	// previously stored results. A nil results map leaves stored results untouched.
	// Returns the task as it exists after the update.
	MarkDone(ctx context.Context, txOrNil *Tx, id models.JobTaskID, results models.JSONMap) (*models.JobTask, error)
	// MarkError transitions a task to its terminal error state, recording the error code
	// and message in the task's results without discarding other result keys.
	// Returns the task as it exists after the update.
	MarkError(ctx context.Context, txOrNil *Tx, id models.JobTaskID, errorCode string, errorMessage string) (*models.JobTask, error)
	// FinishSkipped transitions a skippable task that has exhausted its retry budget to
	// skipped, recording the failure details in the task's results like MarkError does.
	// Returns the task as it exists after the update.
	FinishSkipped(ctx context.Context, txOrNil *Tx, id models.JobTaskID, errorCode string, errorMessage string) (*models.JobTask, error)
	// RequeueForRetry returns a failed task to the queue for another attempt, incrementing
	// the attempt counter, recording the earliest time the next attempt may start and
	// clearing the previous attempt's claim.
	RequeueForRetry(ctx context.Context, txOrNil *Tx, id models.JobTaskID, nextAttemptAt models.Time) error
	// MarkSkipped transitions a queued task to skipped. Idempotent.
	MarkSkipped(ctx context.Context, txOrNil *Tx, id models.JobTaskID) error
	// CountActive returns the number of tasks for the specified service that are currently
	// claimed or running.
	CountActive(ctx context.Context, txOrNil *Tx, service models.ResourceName) (int, error)
}

type TaskEventStore interface {
	// Create a new event in the journal. The event's ID is assigned by the database and
	// filled in on the supplied model, as is the timestamp when the caller left it unset.
	// Events are append-only; no update or delete operations exist.
	Create(ctx context.Context, txOrNil *Tx, event *models.TaskEvent) error
	// Read an existing event, looking it up by ID.
	// Returns gerror.ErrNotFound if the event does not exist.
	Read(ctx context.Context, txOrNil *Tx, id models.TaskEventID) (*models.TaskEvent, error)
	// FindEvents reads the next events for a job, in journal order, starting after
	// lastEventID. If no matching events are present then an empty list is returned.
	FindEvents(ctx context.Context, txOrNil *Tx, jobID models.JobID, lastEventID models.TaskEventID, limit int) ([]*models.TaskEvent, error)
}

type TaskArtifactStore interface {
	// Create a new artifact reference.
	Create(ctx context.Context, txOrNil *Tx, artifact *models.TaskArtifact) error
	// Read an existing artifact reference, looking it up by ID.
	// Returns gerror.ErrNotFound if the artifact does not exist.
	Read(ctx context.Context, txOrNil *Tx, id models.TaskArtifactID) (*models.TaskArtifact, error)
	// ListByJobID lists all artifact references recorded for the specified job.
	// Use cursor to page through results, if any.
	ListByJobID(ctx context.Context, txOrNil *Tx, jobID models.JobID, pagination models.Pagination) ([]*models.TaskArtifact, *models.Cursor, error)
	// ListByJobTaskID lists all artifact references recorded for the specified task.
	// Use cursor to page through results, if any.
	ListByJobTaskID(ctx context.Context, txOrNil *Tx, jobTaskID models.JobTaskID, pagination models.Pagination) ([]*models.TaskArtifact, *models.Cursor, error)
}

type NodeStore interface {
	// Upsert creates a node if no node with the same name exists, otherwise it updates
	// the node's mutable properties if they differ from the in-memory instance.
	// Returns true,false if the node was created, false,true if the node was updated,
	// or false,false if neither create nor update was necessary.
	Upsert(ctx context.Context, txOrNil *Tx, node *models.Node) (bool, bool, error)
	// Read an existing node, looking it up by name.
	// Returns gerror.ErrNotFound if the node does not exist.
	Read(ctx context.Context, txOrNil *Tx, name models.ResourceName) (*models.Node, error)
	// List returns all registered nodes ordered by name.
	List(ctx context.Context, txOrNil *Tx) ([]*models.Node, error)
	// Delete permanently and idempotently deletes a node, identifying it by name.
	Delete(ctx context.Context, txOrNil *Tx, name models.ResourceName) error
	// SumServiceLimit sums the per-node concurrency limits declared for the specified
	// service across all nodes. Returns declared=false if no node declares a limit for
	// the service, in which case capacity is unconstrained.
	SumServiceLimit(ctx context.Context, txOrNil *Tx, service models.ResourceName) (limit int, declared bool, err error)
}

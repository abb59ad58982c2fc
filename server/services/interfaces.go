package services

import (
	"context"
	"io"
	"time"

	"github.com/accella/accella/common/models"
	"github.com/accella/accella/server/dto"
	"github.com/accella/accella/server/store"
)

type WorkflowService interface {
	// Create a new workflow after validating its step graph.
	// Returns gerror.ErrValidationFailed if the graph contains duplicate step keys,
	// dependencies on unknown steps, or cycles.
	// Returns gerror.ErrAlreadyExists if a workflow with the same name and version already exists.
	Create(ctx context.Context, txOrNil *store.Tx, workflow *models.Workflow) error
	// Read an existing workflow, looking it up by ID.
	// Returns gerror.ErrNotFound if the workflow does not exist.
	Read(ctx context.Context, txOrNil *store.Tx, id models.WorkflowID) (*models.Workflow, error)
	// ReadByNameAndVersion reads the workflow with the specified name and version.
	// Returns gerror.ErrNotFound if the workflow does not exist.
	ReadByNameAndVersion(ctx context.Context, txOrNil *store.Tx, name models.ResourceName, version int) (*models.Workflow, error)
	// ReadLatestByName reads the highest version of the named workflow.
	// Returns gerror.ErrNotFound if no version of the workflow exists.
	ReadLatestByName(ctx context.Context, txOrNil *store.Tx, name models.ResourceName) (*models.Workflow, error)
	// Update an existing workflow. Workflows that are referenced by one or more
	// jobs are immutable; updating one returns gerror.ErrValidationFailed.
	Update(ctx context.Context, txOrNil *store.Tx, workflow *models.Workflow) error
	// ListActive lists workflows that can currently be instantiated.
	// Use cursor to page through results, if any.
	ListActive(ctx context.Context, txOrNil *store.Tx, pagination models.Pagination) ([]*models.Workflow, *models.Cursor, error)
	// Instantiate expands the specified job's workflow into one task per step.
	// Instantiation is idempotent: steps whose task already exists are left
	// alone, and a job whose tasks all exist is a no-op. Returns the number of
	// tasks created. A missing job or workflow is logged and ignored so that
	// deletes racing an instantiation do not fail the caller.
	Instantiate(ctx context.Context, txOrNil *store.Tx, jobID models.JobID) (int, error)
}

type JobService interface {
	// Enqueue creates a new job for a workflow and allocates its position in
	// the global dispatch order. The job is created in status 'queued'; it
	// must be instantiated before its tasks can be dispatched.
	Enqueue(ctx context.Context, txOrNil *store.Tx, enqueue *dto.EnqueueJob) (*models.Job, error)
	// Read an existing job, looking it up by ID.
	// Returns gerror.ErrNotFound if the job does not exist.
	Read(ctx context.Context, txOrNil *store.Tx, id models.JobID) (*models.Job, error)
	// ListTasks lists all tasks belonging to the specified job, in creation order.
	ListTasks(ctx context.Context, txOrNil *store.Tx, jobID models.JobID) ([]*models.JobTask, error)
	// UpdateProgress records the job's display progress and the task currently
	// being worked on. Progress must be within [0,1].
	UpdateProgress(ctx context.Context, txOrNil *store.Tx, id models.JobID, progress float64, currentTaskKey models.ResourceName) error
}

type DispatchService interface {
	// Dequeue selects up to limit runnable tasks for the specified service and
	// atomically claims them for the node, all within one transaction. Tasks
	// are returned in dispatch order together with their job context. Returns
	// an empty slice when nothing is runnable or the service's capacity is
	// exhausted.
	Dequeue(ctx context.Context, service models.ResourceName, node models.ResourceName, limit int) ([]*dto.DequeuedTask, error)
	// EffectiveCapacity applies the per-node concurrency caps declared for a
	// service: the number of additional tasks that may be dispatched right now
	// given limit was requested.
	EffectiveCapacity(ctx context.Context, txOrNil *store.Tx, service models.ResourceName, limit int) (int, error)
}

type LifecycleService interface {
	// MarkRunning transitions a claimed task from starting to running and
	// records when work first began. Idempotent while the task stays running.
	MarkRunning(ctx context.Context, id models.JobTaskID, worker models.ResourceName) error
	// UpdateProgress advances a running task's progress fraction, which only
	// ever moves forward. Stale updates are discarded without error.
	UpdateProgress(ctx context.Context, id models.JobTaskID, fraction float64) error
	// MarkDone transitions a task to done, merging results into any previously
	// recorded ones, then settles the parent job's status. Marking a done task
	// done again is a no-op.
	MarkDone(ctx context.Context, id models.JobTaskID, results models.JSONMap) (*models.JobTask, error)
	// ReportFailure records a failed attempt. While the task has retry budget
	// left it is requeued with an exponential back-off; otherwise it becomes
	// terminal, skip policy is applied to its descendants, and the parent
	// job's status is settled.
	ReportFailure(ctx context.Context, id models.JobTaskID, errorCode string, errorMessage string) (*models.JobTask, error)
	// MaybeFinishJob settles the status of a job whose tasks may all have
	// finished: done when every task ended done or skipped, error when at
	// least one task failed terminally and none are still active or queued.
	// Jobs already in a terminal state are left alone.
	MaybeFinishJob(ctx context.Context, txOrNil *store.Tx, jobID models.JobID) (*models.Job, error)
}

type JournalService interface {
	// AppendEvent appends one event to the job's journal. The event's level
	// and type must belong to the closed enums, and the event must resolve to
	// an existing job, directly or through its task. A zero timestamp is
	// filled with the datastore's current time.
	AppendEvent(ctx context.Context, txOrNil *store.Tx, event *dto.AppendEvent) (*models.TaskEvent, error)
	// FetchEvents fetches events for a job with IDs greater than lastEventID,
	// in journal order. limit specifies the maximum number of events to return.
	// If no new events are available then an empty list is returned.
	FetchEvents(ctx context.Context, txOrNil *store.Tx, jobID models.JobID, lastEventID models.TaskEventID, limit int) ([]*models.TaskEvent, error)
	// RecordArtifact records a reference to an object held in the external
	// object store, resolving and validating the owning job and task the same
	// way AppendEvent does.
	RecordArtifact(ctx context.Context, txOrNil *store.Tx, artifact *dto.RecordArtifact) (*models.TaskArtifact, error)
	// ListArtifacts lists the artifact references recorded for a job.
	// Use cursor to page through results, if any.
	ListArtifacts(ctx context.Context, txOrNil *store.Tx, jobID models.JobID, pagination models.Pagination) ([]*models.TaskArtifact, *models.Cursor, error)
}

type NodeService interface {
	// Heartbeat registers the node on first contact and refreshes its
	// last-seen time, labels and declared limits on every subsequent call.
	// The node is marked awake.
	Heartbeat(ctx context.Context, txOrNil *store.Tx, heartbeat *dto.NodeHeartbeat) (*models.Node, error)
	// Read an existing node, looking it up by name.
	// Returns gerror.ErrNotFound if the node does not exist.
	Read(ctx context.Context, txOrNil *store.Tx, name models.ResourceName) (*models.Node, error)
	// List returns all registered nodes ordered by name.
	List(ctx context.Context, txOrNil *store.Tx) ([]*models.Node, error)
	// Delete permanently and idempotently deletes a node, identifying it by name.
	Delete(ctx context.Context, txOrNil *store.Tx, name models.ResourceName) error
}

// BlobStore is an interface for storing and retrieving task payloads and
// artifacts in an external object store. The engine persists references only;
// bytes never pass through the datastore.
type BlobStore interface {
	// EnsureBucket creates the bucket if it does not already exist.
	EnsureBucket(ctx context.Context, bucket string) error
	// Put writes all data in the source reader to an object identified by
	// bucket and key. The caller is responsible for closing the reader.
	Put(ctx context.Context, bucket string, key string, source io.Reader, contentType string) error
	// Get returns a reader positioned at the beginning of the object
	// identified by bucket and key. The caller is responsible for closing the
	// reader.
	Get(ctx context.Context, bucket string, key string) (io.ReadCloser, error)
	// Presign returns a URL that grants time-limited access to the object
	// without further credentials.
	Presign(ctx context.Context, bucket string, key string, ttl time.Duration) (string, error)
}

package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/accella/accella/common/gerror"
	"github.com/accella/accella/common/logger"
	"github.com/accella/accella/common/models"
	"github.com/accella/accella/server/dto"
	"github.com/accella/accella/server/store"
)

// JournalService owns the append-only record of what happened during job
// execution: structured events and references to artifacts in the object
// store. Entries are validated against the jobs and tasks they reference
// before anything is written; nothing in the journal is ever updated or
// deleted.
type JournalService struct {
	db                *store.DB
	jobStore          store.JobStore
	jobTaskStore      store.JobTaskStore
	taskEventStore    store.TaskEventStore
	taskArtifactStore store.TaskArtifactStore
	logger.Log
}

func NewJournalService(
	db *store.DB,
	jobStore store.JobStore,
	jobTaskStore store.JobTaskStore,
	taskEventStore store.TaskEventStore,
	taskArtifactStore store.TaskArtifactStore,
	logFactory logger.LogFactory,
) *JournalService {
	return &JournalService{
		db:                db,
		jobStore:          jobStore,
		jobTaskStore:      jobTaskStore,
		taskEventStore:    taskEventStore,
		taskArtifactStore: taskArtifactStore,
		Log:               logFactory("JournalService"),
	}
}

// AppendEvent validates and appends one event to the journal, returning the
// stored event with its datastore-assigned ID and timestamp. Levels and types
// outside the closed enumerations fail validation before anything is written.
// When the event references a task, the task's job is authoritative: a
// mismatched job reference fails validation and an omitted one is filled in
// from the task.
func (s *JournalService) AppendEvent(ctx context.Context, txOrNil *store.Tx, appendEvent *dto.AppendEvent) (*models.TaskEvent, error) {
	if !appendEvent.Level.Valid() {
		return nil, gerror.NewErrValidationFailed(fmt.Sprintf("unknown event level: %q", appendEvent.Level))
	}
	if !appendEvent.Type.Valid() {
		return nil, gerror.NewErrValidationFailed(fmt.Sprintf("unknown event type: %q", appendEvent.Type))
	}
	var event *models.TaskEvent
	err := s.db.WithTx(ctx, txOrNil, func(tx *store.Tx) error {
		jobID, err := s.resolveJobID(ctx, tx, appendEvent.JobID, appendEvent.JobTaskID)
		if err != nil {
			return err
		}
		eventData := models.NewTaskEventData(
			jobID,
			appendEvent.JobTaskID,
			appendEvent.Source,
			appendEvent.Level,
			appendEvent.Type,
			appendEvent.Message,
			appendEvent.Data)
		err = eventData.Validate()
		if err != nil {
			return gerror.NewErrValidationFailed(err.Error()).Wrap(err)
		}
		event = models.NewTaskEvent(appendEvent.Timestamp, eventData)
		return s.taskEventStore.Create(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// FetchEvents reads the next events for a job, in journal order, starting
// after lastEventID. Pass lastEventID 0 to read from the beginning.
func (s *JournalService) FetchEvents(
	ctx context.Context,
	txOrNil *store.Tx,
	jobID models.JobID,
	lastEventID models.TaskEventID,
	limit int,
) ([]*models.TaskEvent, error) {
	return s.taskEventStore.FindEvents(ctx, txOrNil, jobID, lastEventID, limit)
}

// RecordArtifact validates and records a reference to an object in the object
// store. The same referential rules as AppendEvent apply: a task reference is
// authoritative for the job. The object itself is never touched.
func (s *JournalService) RecordArtifact(ctx context.Context, txOrNil *store.Tx, record *dto.RecordArtifact) (*models.TaskArtifact, error) {
	if !record.Kind.Valid() {
		return nil, gerror.NewErrValidationFailed(fmt.Sprintf("unknown artifact kind: %q", record.Kind))
	}
	var artifact *models.TaskArtifact
	err := s.db.WithTx(ctx, txOrNil, func(tx *store.Tx) error {
		jobID, err := s.resolveJobID(ctx, tx, record.JobID, record.JobTaskID)
		if err != nil {
			return err
		}
		artifact = models.NewTaskArtifact(models.NewTime(time.Now()), models.NewTaskArtifactData(
			jobID,
			record.JobTaskID,
			record.Kind,
			record.Bucket,
			record.Key,
			record.SizeBytes,
			record.ContentType,
			record.Checksum))
		err = artifact.Validate()
		if err != nil {
			return gerror.NewErrValidationFailed(err.Error()).Wrap(err)
		}
		return s.taskArtifactStore.Create(ctx, tx, artifact)
	})
	if err != nil {
		return nil, err
	}
	s.Infof("Recorded %s artifact %q/%q for job %q", artifact.Kind, artifact.Bucket, artifact.Key, artifact.JobID)
	return artifact, nil
}

// ListArtifacts lists the artifact references recorded for a job.
// Use cursor to page through results, if any.
func (s *JournalService) ListArtifacts(
	ctx context.Context,
	txOrNil *store.Tx,
	jobID models.JobID,
	pagination models.Pagination,
) ([]*models.TaskArtifact, *models.Cursor, error) {
	return s.taskArtifactStore.ListByJobID(ctx, txOrNil, jobID, pagination)
}

// resolveJobID applies the journal's referential rules and returns the job a
// new entry belongs to. A task reference must exist and is authoritative for
// the job; without one the job reference is required and must exist.
func (s *JournalService) resolveJobID(
	ctx context.Context,
	tx *store.Tx,
	jobID models.JobID,
	jobTaskID *models.JobTaskID,
) (models.JobID, error) {
	if jobTaskID == nil {
		if !jobID.Valid() {
			return models.JobID{}, gerror.NewErrValidationFailed("job id must be set when no task is referenced")
		}
		_, err := s.jobStore.Read(ctx, tx, jobID)
		if err != nil {
			if gerror.IsNotFound(err) {
				return models.JobID{}, gerror.NewErrValidationFailed(fmt.Sprintf("unknown job %q", jobID)).Wrap(err)
			}
			return models.JobID{}, fmt.Errorf("error reading job: %w", err)
		}
		return jobID, nil
	}
	task, err := s.jobTaskStore.Read(ctx, tx, *jobTaskID)
	if err != nil {
		if gerror.IsNotFound(err) {
			return models.JobID{}, gerror.NewErrValidationFailed(fmt.Sprintf("unknown task %q", *jobTaskID)).Wrap(err)
		}
		return models.JobID{}, fmt.Errorf("error reading task: %w", err)
	}
	if jobID.Valid() && jobID != task.JobID {
		return models.JobID{}, gerror.NewErrValidationFailed(
			fmt.Sprintf("task %q belongs to job %q, not job %q", *jobTaskID, task.JobID, jobID))
	}
	return task.JobID, nil
}

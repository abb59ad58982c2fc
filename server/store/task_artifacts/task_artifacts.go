package task_artifacts

import (
	"context"

	"github.com/doug-martin/goqu/v9"

	"github.com/accella/accella/common/logger"
	"github.com/accella/accella/common/models"
	"github.com/accella/accella/server/store"
)

func init() {
	store.MustDBModel(&models.TaskArtifact{})
}

type TaskArtifactStore struct {
	table *store.Table
}

func NewStore(db *store.DB, logFactory logger.LogFactory) *TaskArtifactStore {
	return &TaskArtifactStore{
		table: store.NewTable(db, logFactory, &models.TaskArtifact{}),
	}
}

// Create a new artifact reference.
// Returns gerror.ErrAlreadyExists if an artifact with the same ID already exists.
func (d *TaskArtifactStore) Create(ctx context.Context, txOrNil *store.Tx, artifact *models.TaskArtifact) error {
	return d.table.Create(ctx, txOrNil, artifact)
}

// Read an existing artifact reference, looking it up by ID.
// Returns gerror.ErrNotFound if the artifact does not exist.
func (d *TaskArtifactStore) Read(ctx context.Context, txOrNil *store.Tx, id models.TaskArtifactID) (*models.TaskArtifact, error) {
	artifact := &models.TaskArtifact{}
	return artifact, d.table.ReadByID(ctx, txOrNil, id, artifact)
}

// ListByJobID lists all artifact references recorded for the specified job.
// Use cursor to page through results, if any.
func (d *TaskArtifactStore) ListByJobID(ctx context.Context, txOrNil *store.Tx, jobID models.JobID, pagination models.Pagination) ([]*models.TaskArtifact, *models.Cursor, error) {
	artifactsSelect := d.table.Dialect().
		From(d.table.TableName()).
		Select(&models.TaskArtifact{}).
		Where(goqu.Ex{"task_artifact_job_id": jobID})
	var artifacts []*models.TaskArtifact
	cursor, err := d.table.ListIn(ctx, txOrNil, &artifacts, pagination, artifactsSelect)
	if err != nil {
		return nil, nil, err
	}
	return artifacts, cursor, nil
}

// ListByJobTaskID lists all artifact references recorded for the specified task.
// Use cursor to page through results, if any.
func (d *TaskArtifactStore) ListByJobTaskID(ctx context.Context, txOrNil *store.Tx, jobTaskID models.JobTaskID, pagination models.Pagination) ([]*models.TaskArtifact, *models.Cursor, error) {
	artifactsSelect := d.table.Dialect().
		From(d.table.TableName()).
		Select(&models.TaskArtifact{}).
		Where(goqu.Ex{"task_artifact_job_task_id": jobTaskID})
	var artifacts []*models.TaskArtifact
	cursor, err := d.table.ListIn(ctx, txOrNil, &artifacts, pagination, artifactsSelect)
	if err != nil {
		return nil, nil, err
	}
	return artifacts, cursor, nil
}

package server_test

import (
	"github.com/accella/accella/common/logger"
	"github.com/accella/accella/server/services"
	"github.com/accella/accella/server/services/workflow"
	"github.com/accella/accella/server/store"
)

type TestEngine struct {
	DB                  *store.DB
	WorkflowStore       store.WorkflowStore
	JobStore            store.JobStore
	JobTaskStore        store.JobTaskStore
	TaskEventStore      store.TaskEventStore
	TaskArtifactStore   store.TaskArtifactStore
	NodeStore           store.NodeStore
	WorkflowService     services.WorkflowService
	JobService          services.JobService
	DispatchService     services.DispatchService
	LifecycleService    services.LifecycleService
	JournalService      services.JournalService
	NodeService         services.NodeService
	BlobStore           services.BlobStore
	InstantiationPoller *workflow.InstantiationPoller
	LogFactory          logger.LogFactory
}

func NewTestEngine(
	db *store.DB,
	workflowStore store.WorkflowStore,
	jobStore store.JobStore,
	jobTaskStore store.JobTaskStore,
	taskEventStore store.TaskEventStore,
	taskArtifactStore store.TaskArtifactStore,
	nodeStore store.NodeStore,
	workflowService services.WorkflowService,
	jobService services.JobService,
	dispatchService services.DispatchService,
	lifecycleService services.LifecycleService,
	journalService services.JournalService,
	nodeService services.NodeService,
	blobStore services.BlobStore,
	instantiationPoller *workflow.InstantiationPoller,
	logFactory logger.LogFactory,
) *TestEngine {
	return &TestEngine{
		DB:                  db,
		WorkflowStore:       workflowStore,
		JobStore:            jobStore,
		JobTaskStore:        jobTaskStore,
		TaskEventStore:      taskEventStore,
		TaskArtifactStore:   taskArtifactStore,
		NodeStore:           nodeStore,
		WorkflowService:     workflowService,
		JobService:          jobService,
		DispatchService:     dispatchService,
		LifecycleService:    lifecycleService,
		JournalService:      journalService,
		NodeService:         nodeService,
		BlobStore:           blobStore,
		InstantiationPoller: instantiationPoller,
		LogFactory:          logFactory,
	}
}

package app

import (
	"github.com/accella/accella/server/services"
	"github.com/accella/accella/server/services/workflow"
)

type Engine struct {
	WorkflowService     services.WorkflowService
	JobService          services.JobService
	DispatchService     services.DispatchService
	LifecycleService    services.LifecycleService
	JournalService      services.JournalService
	NodeService         services.NodeService
	BlobStore           services.BlobStore
	InstantiationPoller *workflow.InstantiationPoller
	InternalNodeManager *InternalNodeManager
}

func NewEngine(
	workflowService services.WorkflowService,
	jobService services.JobService,
	dispatchService services.DispatchService,
	lifecycleService services.LifecycleService,
	journalService services.JournalService,
	nodeService services.NodeService,
	blobStore services.BlobStore,
	instantiationPoller *workflow.InstantiationPoller,
	internalNodeManager *InternalNodeManager,
) *Engine {
	return &Engine{
		WorkflowService:     workflowService,
		JobService:          jobService,
		DispatchService:     dispatchService,
		LifecycleService:    lifecycleService,
		JournalService:      journalService,
		NodeService:         nodeService,
		BlobStore:           blobStore,
		InstantiationPoller: instantiationPoller,
		InternalNodeManager: internalNodeManager,
	}
}

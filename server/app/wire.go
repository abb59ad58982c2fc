//go:build wireinject
// +build wireinject

package app

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/google/wire"

	"github.com/accella/accella/common/logger"
	"github.com/accella/accella/server/services"
	"github.com/accella/accella/server/services/dispatch"
	"github.com/accella/accella/server/services/job"
	"github.com/accella/accella/server/services/journal"
	"github.com/accella/accella/server/services/lifecycle"
	"github.com/accella/accella/server/services/node"
	"github.com/accella/accella/server/services/workflow"
	"github.com/accella/accella/server/store"
	"github.com/accella/accella/server/store/job_tasks"
	"github.com/accella/accella/server/store/jobs"
	"github.com/accella/accella/server/store/migrations"
	"github.com/accella/accella/server/store/nodes"
	"github.com/accella/accella/server/store/task_artifacts"
	"github.com/accella/accella/server/store/task_events"
	"github.com/accella/accella/server/store/workflows"
)

// MakeInstantiationPoller creates a new instance of InstantiationPoller and calls Start()
// to begin expanding queued jobs into tasks.
func MakeInstantiationPoller(
	workflowService services.WorkflowService,
	jobStore store.JobStore,
	logFactory logger.LogFactory,
) *workflow.InstantiationPoller {
	poller := workflow.NewInstantiationPoller(workflowService, jobStore, logFactory)
	poller.Start()
	return poller
}

func New(ctx context.Context, config *EngineConfig) (*Engine, func(), error) {
	panic(wire.Build(
		NewEngine,
		wire.FieldsOf(new(*EngineConfig), "DatabaseConfig", "BlobStoreConfig", "RetryConfig", "InternalNodeConfig", "LogLevels"),
		store.NewDatabase,
		migrations.NewEngineGolangMigrateRunner,
		wire.Bind(new(store.MigrationRunner), new(*migrations.GolangMigrateRunner)),

		// Stores
		workflows.NewStore,
		wire.Bind(new(store.WorkflowStore), new(*workflows.WorkflowStore)),
		jobs.NewStore,
		wire.Bind(new(store.JobStore), new(*jobs.JobStore)),
		job_tasks.NewStore,
		wire.Bind(new(store.JobTaskStore), new(*job_tasks.JobTaskStore)),
		task_events.NewStore,
		wire.Bind(new(store.TaskEventStore), new(*task_events.TaskEventStore)),
		task_artifacts.NewStore,
		wire.Bind(new(store.TaskArtifactStore), new(*task_artifacts.TaskArtifactStore)),
		nodes.NewStore,
		wire.Bind(new(store.NodeStore), new(*nodes.NodeStore)),

		// Services
		workflow.NewWorkflowService,
		wire.Bind(new(services.WorkflowService), new(*workflow.WorkflowService)),
		job.NewJobService,
		wire.Bind(new(services.JobService), new(*job.JobService)),
		dispatch.NewDispatchService,
		wire.Bind(new(services.DispatchService), new(*dispatch.DispatchService)),
		lifecycle.NewLifecycleService,
		wire.Bind(new(services.LifecycleService), new(*lifecycle.LifecycleService)),
		journal.NewJournalService,
		wire.Bind(new(services.JournalService), new(*journal.JournalService)),
		node.NewNodeService,
		wire.Bind(new(services.NodeService), new(*node.NodeService)),
		MakeInstantiationPoller,

		BlobStoreFactory,
		NewInternalNodeManager,
		logger.NewLogRegistry,
		logger.MakeLogrusLogFactoryStdOut,
		clock.New,
	))
}

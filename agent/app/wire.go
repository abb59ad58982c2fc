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
	"github.com/accella/accella/server/services/journal"
	"github.com/accella/accella/server/services/lifecycle"
	"github.com/accella/accella/server/services/node"
	"github.com/accella/accella/server/store"
	"github.com/accella/accella/server/store/job_tasks"
	"github.com/accella/accella/server/store/jobs"
	"github.com/accella/accella/server/store/nodes"
	"github.com/accella/accella/server/store/task_artifacts"
	"github.com/accella/accella/server/store/task_events"
	"github.com/accella/accella/server/store/workflows"
)

// OpenDatabase connects to the engine's database without running migrations.
// The engine owns the schema; nodes must never race it on migrations.
func OpenDatabase(ctx context.Context, config store.DatabaseConfig) (*store.DB, func(), error) {
	return store.NewDatabase(ctx, config, nil)
}

func New(ctx context.Context, config *NodeConfig) (*Node, func(), error) {
	panic(wire.Build(
		NewNode,
		wire.FieldsOf(new(*NodeConfig), "DatabaseConfig", "RetryConfig", "LogLevels"),
		OpenDatabase,

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
		dispatch.NewDispatchService,
		wire.Bind(new(services.DispatchService), new(*dispatch.DispatchService)),
		lifecycle.NewLifecycleService,
		wire.Bind(new(services.LifecycleService), new(*lifecycle.LifecycleService)),
		journal.NewJournalService,
		wire.Bind(new(services.JournalService), new(*journal.JournalService)),
		node.NewNodeService,
		wire.Bind(new(services.NodeService), new(*node.NodeService)),

		logger.NewLogRegistry,
		logger.MakeLogrusLogFactoryStdOut,
		clock.New,
	))
}

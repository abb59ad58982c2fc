package job

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/accella/accella/common/logger"
	"github.com/accella/accella/common/models"
	"github.com/accella/accella/common/settings"
	"github.com/accella/accella/server/cmd/accella-tools/cli"
	"github.com/accella/accella/server/cmd/accella-tools/commands"
	"github.com/accella/accella/server/dto"
	"github.com/accella/accella/server/services"
	"github.com/accella/accella/server/services/job"
	"github.com/accella/accella/server/services/workflow"
	"github.com/accella/accella/server/store"
	"github.com/accella/accella/server/store/job_tasks"
	"github.com/accella/accella/server/store/jobs"
	"github.com/accella/accella/server/store/workflows"
)

const defaultSQLiteConnectionString = "file:/var/lib/accella/db/sqlite.db?cache=shared"

func init() {
	// The environment supplies defaults shared with other deployments of the
	// engine; flags win when given explicitly.
	env := settings.New()
	defaultConnectionString := env.DatabaseURIOr(defaultSQLiteConnectionString)
	defaultDriver := string(store.Sqlite)
	if env.DatabaseURI() != "" {
		defaultDriver = string(store.Postgres)
	}

	jobRootCmd.PersistentFlags().StringVar(
		&jobCmdConfig.databaseDriver,
		"driver",
		defaultDriver,
		"The Database Driver to use for fetching and writing data (i.e sqlite3|postgres)")
	jobRootCmd.PersistentFlags().StringVar(
		&jobCmdConfig.databaseConnectionString,
		"connection",
		defaultConnectionString,
		"The connection string for the database to use for fetching and writing data. Defaults to ACC_DB_URL or POSTGRES_DSN when set in the environment")

	jobEnqueueCmd.Flags().IntVar(
		&jobCmdConfig.workflowVersion,
		"version",
		0,
		"The version of the workflow to run, or 0 for the latest version")
	jobEnqueueCmd.Flags().IntVar(
		&jobCmdConfig.priority,
		"priority",
		0,
		"Display priority for the new job. Dispatch order is first-in-first-out regardless of priority")

	commands.RootCmd.AddCommand(jobRootCmd)
	jobRootCmd.AddCommand(jobEnqueueCmd)
	jobRootCmd.AddCommand(jobShowCmd)
	jobRootCmd.AddCommand(jobInstantiateCmd)
}

var jobCmdConfig = struct {
	databaseConfig           store.DatabaseConfig
	databaseDriver           string
	databaseConnectionString string
	workflowVersion          int
	priority                 int
	logFactory               logger.LogFactory
	db                       *store.DB
	dbCleanup                func()
	jobService               services.JobService
	workflowService          services.WorkflowService
}{}

var jobRootCmd = &cobra.Command{
	Use:   "job enqueue|show|instantiate",
	Short: "Perform operations on jobs.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jobCmdConfig.databaseConfig = store.DatabaseConfig{
			ConnectionString:   store.DatabaseConnectionString(jobCmdConfig.databaseConnectionString),
			Driver:             store.DBDriver(jobCmdConfig.databaseDriver),
			MaxIdleConnections: store.DefaultDatabaseMaxIdleConnections,
			MaxOpenConnections: store.DefaultDatabaseMaxOpenConnections,
		}

		// stores need a log factory; use a very plain log format
		logRegistry, err := logger.NewLogRegistry(commands.Global.LogLevelConfig())
		if err != nil {
			return err
		}
		logFactory := logger.MakeLogrusLogFactoryStdOutPlain(logRegistry)
		jobCmdConfig.logFactory = logFactory

		// open the database but do not perform migrations
		db, cleanup, err := store.NewDatabase(context.Background(), jobCmdConfig.databaseConfig, nil)
		if err != nil {
			return fmt.Errorf("error opening %s database: %w", jobCmdConfig.databaseConfig.Driver, err)
		}
		jobCmdConfig.db = db
		jobCmdConfig.dbCleanup = cleanup

		// make the stores and services we need for job access
		workflowStore := workflows.NewStore(db, logFactory)
		jobStore := jobs.NewStore(db, logFactory)
		jobTaskStore := job_tasks.NewStore(db, logFactory)
		jobCmdConfig.jobService = job.NewJobService(db, workflowStore, jobStore, jobTaskStore, logFactory)
		jobCmdConfig.workflowService = workflow.NewWorkflowService(db, workflowStore, jobStore, jobTaskStore, logFactory)

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if jobCmdConfig.dbCleanup != nil {
			jobCmdConfig.dbCleanup()
			jobCmdConfig.dbCleanup = nil
		}
	},
}

var jobEnqueueCmd = &cobra.Command{
	Use:           "enqueue workflow-name",
	Short:         "Enqueues a new job for the named workflow. The job is instantiated into tasks by the engine",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		workflowName := args[0]
		if len(workflowName) == 0 {
			return fmt.Errorf("error: workflow name must be specified")
		}

		newJob, err := jobCmdConfig.jobService.Enqueue(context.Background(), nil, &dto.EnqueueJob{
			WorkflowName:    models.ResourceName(workflowName),
			WorkflowVersion: jobCmdConfig.workflowVersion,
			Priority:        jobCmdConfig.priority,
		})
		if err != nil {
			return fmt.Errorf("error enqueueing job for workflow '%s': %w", workflowName, err)
		}

		cli.Stdout.Printf("Enqueued job '%s' for workflow '%s' (order seq %d)\n", newJob.ID, workflowName, newJob.OrderSeq)
		return nil
	},
}

var jobShowCmd = &cobra.Command{
	Use:           "show job-id",
	Short:         "Shows the status of the job with the specified ID, including all of its tasks",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID, err := models.ParseJobID(args[0])
		if err != nil {
			return err
		}

		ctx := context.Background()
		return jobCmdConfig.db.WithTx(ctx, nil, func(tx *store.Tx) error {
			shownJob, err := jobCmdConfig.jobService.Read(ctx, tx, jobID)
			if err != nil {
				return fmt.Errorf("error reading job with ID '%s': %w", jobID, err)
			}

			cli.Stdout.Printf("Job '%s':\n", shownJob.ID)
			cli.Stdout.Printf("  Created At: %s", shownJob.CreatedAt.String())
			cli.Stdout.Printf("  Updated At: %s", shownJob.UpdatedAt.String())
			cli.Stdout.Printf("  Workflow ID: %s", shownJob.WorkflowID)
			cli.Stdout.Printf("  Status: %s", shownJob.Status)
			cli.Stdout.Printf("  Order Seq: %d", shownJob.OrderSeq)
			cli.Stdout.Printf("  Progress: %.2f", shownJob.Progress)
			if shownJob.CurrentTaskKey != "" {
				cli.Stdout.Printf("  Current Task: %s", shownJob.CurrentTaskKey)
			}
			if shownJob.ScheduledAt != nil {
				cli.Stdout.Printf("  Scheduled At: %s", shownJob.ScheduledAt.String())
			}

			tasks, err := jobCmdConfig.jobService.ListTasks(ctx, tx, jobID)
			if err != nil {
				return fmt.Errorf("error reading tasks for job '%s': %w", jobID, err)
			}
			cli.Stdout.Printf("\nTasks (%d):\n", len(tasks))
			for i, task := range tasks {
				cli.Stdout.Printf("  %d: Key '%s', service '%s', status '%s', attempt %d/%d, node '%s'\n",
					i+1, task.TaskKey, task.ServiceName, task.Status, task.Attempt, task.MaxAttempts, task.AssignedNode)
			}
			return nil
		})
	},
}

var jobInstantiateCmd = &cobra.Command{
	Use:           "instantiate job-id",
	Short:         "Expands a queued job's workflow into tasks without waiting for the engine's poller",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID, err := models.ParseJobID(args[0])
		if err != nil {
			return err
		}

		created, err := jobCmdConfig.workflowService.Instantiate(context.Background(), nil, jobID)
		if err != nil {
			return fmt.Errorf("error instantiating job '%s': %w", jobID, err)
		}

		cli.Stdout.Printf("Instantiated %d task(s) for job '%s'\n", created, jobID)
		return nil
	},
}

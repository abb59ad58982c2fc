package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/accella/accella/common/logger"
	"github.com/accella/accella/common/models"
	"github.com/accella/accella/common/settings"
	"github.com/accella/accella/server/cmd/accella-tools/cli"
	"github.com/accella/accella/server/cmd/accella-tools/commands"
	"github.com/accella/accella/server/services"
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

	workflowRootCmd.PersistentFlags().StringVar(
		&workflowCmdConfig.databaseDriver,
		"driver",
		defaultDriver,
		"The Database Driver to use for fetching and writing data (i.e sqlite3|postgres)")
	workflowRootCmd.PersistentFlags().StringVar(
		&workflowCmdConfig.databaseConnectionString,
		"connection",
		defaultConnectionString,
		"The connection string for the database to use for fetching and writing data. Defaults to ACC_DB_URL or POSTGRES_DSN when set in the environment")

	workflowCreateCmd.Flags().StringVarP(
		&workflowCmdConfig.definitionFile,
		"file",
		"f",
		"",
		"Path to a JSON file containing the workflow definition to create")
	workflowCreateCmd.MarkFlagRequired("file")

	commands.RootCmd.AddCommand(workflowRootCmd)
	workflowRootCmd.AddCommand(workflowCreateCmd)
	workflowRootCmd.AddCommand(workflowListCmd)
}

var workflowCmdConfig = struct {
	databaseConfig           store.DatabaseConfig
	databaseDriver           string
	databaseConnectionString string
	definitionFile           string
	logFactory               logger.LogFactory
	db                       *store.DB
	dbCleanup                func()
	workflowService          services.WorkflowService
}{}

var workflowRootCmd = &cobra.Command{
	Use:   "workflow create|list",
	Short: "Perform operations on workflow definitions.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workflowCmdConfig.databaseConfig = store.DatabaseConfig{
			ConnectionString:   store.DatabaseConnectionString(workflowCmdConfig.databaseConnectionString),
			Driver:             store.DBDriver(workflowCmdConfig.databaseDriver),
			MaxIdleConnections: store.DefaultDatabaseMaxIdleConnections,
			MaxOpenConnections: store.DefaultDatabaseMaxOpenConnections,
		}

		// stores need a log factory; use a very plain log format
		logRegistry, err := logger.NewLogRegistry(commands.Global.LogLevelConfig())
		if err != nil {
			return err
		}
		logFactory := logger.MakeLogrusLogFactoryStdOutPlain(logRegistry)
		workflowCmdConfig.logFactory = logFactory

		// open the database but do not perform migrations
		db, cleanup, err := store.NewDatabase(context.Background(), workflowCmdConfig.databaseConfig, nil)
		if err != nil {
			return fmt.Errorf("error opening %s database: %w", workflowCmdConfig.databaseConfig.Driver, err)
		}
		workflowCmdConfig.db = db
		workflowCmdConfig.dbCleanup = cleanup

		// make the stores and service we need for workflow access
		workflowCmdConfig.workflowService = workflow.NewWorkflowService(
			db,
			workflows.NewStore(db, logFactory),
			jobs.NewStore(db, logFactory),
			job_tasks.NewStore(db, logFactory),
			logFactory,
		)

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if workflowCmdConfig.dbCleanup != nil {
			workflowCmdConfig.dbCleanup()
			workflowCmdConfig.dbCleanup = nil
		}
	},
}

// workflowDefinition is the on-disk JSON shape accepted by 'workflow create'.
type workflowDefinition struct {
	Name    models.ResourceName  `json:"name"`
	Version int                  `json:"version"`
	OnError models.OnErrorPolicy `json:"on_error,omitempty"`
	Steps   models.WorkflowSteps `json:"steps"`
}

var workflowCreateCmd = &cobra.Command{
	Use:           "create -f definition.json",
	Short:         "Creates a new workflow definition from a JSON file, after validating its step graph",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		buf, err := os.ReadFile(workflowCmdConfig.definitionFile)
		if err != nil {
			return fmt.Errorf("error reading workflow definition file '%s': %w", workflowCmdConfig.definitionFile, err)
		}

		var definition workflowDefinition
		err = json.Unmarshal(buf, &definition)
		if err != nil {
			return fmt.Errorf("error parsing workflow definition file '%s': %w", workflowCmdConfig.definitionFile, err)
		}

		newWorkflow := models.NewWorkflow(
			models.NewTime(time.Now()),
			definition.Name,
			definition.Version,
			definition.Steps,
			definition.OnError,
		)

		err = workflowCmdConfig.workflowService.Create(context.Background(), nil, newWorkflow)
		if err != nil {
			return fmt.Errorf("error creating workflow '%s' version %d: %w", definition.Name, definition.Version, err)
		}

		cli.Stdout.Printf("Created workflow '%s' version %d with %d step(s), ID '%s'\n",
			newWorkflow.Name, newWorkflow.Version, len(newWorkflow.Steps), newWorkflow.ID)
		return nil
	},
}

var workflowListCmd = &cobra.Command{
	Use:           "list",
	Short:         "Lists all active workflow definitions in the database",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		return workflowCmdConfig.db.WithTx(ctx, nil, func(tx *store.Tx) error {
			cli.Stdout.Printf("\nACTIVE WORKFLOWS\n\n")
			count := 0
			pagination := models.NewPagination(models.DefaultPaginationLimit, nil)
			for moreResults := true; moreResults; {
				activeWorkflows, cursor, err := workflowCmdConfig.workflowService.ListActive(ctx, tx, pagination)
				if err != nil {
					return fmt.Errorf("error reading list of active workflows: %w", err)
				}
				for _, active := range activeWorkflows {
					count++
					cli.Stdout.Printf("%d: Name '%s', version %d, %d step(s), on-error '%s', ID '%s'\n",
						count, active.Name, active.Version, len(active.Steps), active.OnError, active.ID)
				}
				if cursor != nil && cursor.Next != nil {
					pagination.Cursor = cursor.Next // move on to next page of results
				} else {
					moreResults = false
				}
			}
			cli.Stdout.Printf("\n")
			return nil
		})
	},
}

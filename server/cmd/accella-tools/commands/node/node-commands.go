package node

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/accella/accella/common/logger"
	"github.com/accella/accella/common/models"
	"github.com/accella/accella/common/settings"
	"github.com/accella/accella/server/cmd/accella-tools/cli"
	"github.com/accella/accella/server/cmd/accella-tools/commands"
	"github.com/accella/accella/server/services"
	"github.com/accella/accella/server/services/node"
	"github.com/accella/accella/server/store"
	"github.com/accella/accella/server/store/nodes"
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

	nodeRootCmd.PersistentFlags().StringVar(
		&nodeCmdConfig.databaseDriver,
		"driver",
		defaultDriver,
		"The Database Driver to use for fetching and writing data (i.e sqlite3|postgres)")
	nodeRootCmd.PersistentFlags().StringVar(
		&nodeCmdConfig.databaseConnectionString,
		"connection",
		defaultConnectionString,
		"The connection string for the database to use for fetching and writing data. Defaults to ACC_DB_URL or POSTGRES_DSN when set in the environment")
	nodeRootCmd.PersistentFlags().BoolVarP(
		&nodeCmdConfig.skipConfirmation,
		"skip-confirmation",
		"",
		false,
		"Skip interactive confirmation and automatically answer Yes to confirmation questions")

	commands.RootCmd.AddCommand(nodeRootCmd)
	nodeRootCmd.AddCommand(nodeListCmd)
	nodeRootCmd.AddCommand(nodeDeleteCmd)
}

var nodeCmdConfig = struct {
	databaseConfig           store.DatabaseConfig
	databaseDriver           string
	databaseConnectionString string
	skipConfirmation         bool
	logFactory               logger.LogFactory
	db                       *store.DB
	dbCleanup                func()
	nodeService              services.NodeService
}{}

var nodeRootCmd = &cobra.Command{
	Use:   "node list|delete",
	Short: "Perform operations on registered worker nodes.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		nodeCmdConfig.databaseConfig = store.DatabaseConfig{
			ConnectionString:   store.DatabaseConnectionString(nodeCmdConfig.databaseConnectionString),
			Driver:             store.DBDriver(nodeCmdConfig.databaseDriver),
			MaxIdleConnections: store.DefaultDatabaseMaxIdleConnections,
			MaxOpenConnections: store.DefaultDatabaseMaxOpenConnections,
		}

		// stores need a log factory; use a very plain log format
		logRegistry, err := logger.NewLogRegistry(commands.Global.LogLevelConfig())
		if err != nil {
			return err
		}
		logFactory := logger.MakeLogrusLogFactoryStdOutPlain(logRegistry)
		nodeCmdConfig.logFactory = logFactory

		// open the database but do not perform migrations
		db, cleanup, err := store.NewDatabase(context.Background(), nodeCmdConfig.databaseConfig, nil)
		if err != nil {
			return fmt.Errorf("error opening %s database: %w", nodeCmdConfig.databaseConfig.Driver, err)
		}
		nodeCmdConfig.db = db
		nodeCmdConfig.dbCleanup = cleanup

		nodeCmdConfig.nodeService = node.NewNodeService(db, nodes.NewStore(db, logFactory), logFactory)

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if nodeCmdConfig.dbCleanup != nil {
			nodeCmdConfig.dbCleanup()
			nodeCmdConfig.dbCleanup = nil
		}
	},
}

var nodeListCmd = &cobra.Command{
	Use:           "list",
	Short:         "Lists all registered worker nodes and their declared per-service limits",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		allNodes, err := nodeCmdConfig.nodeService.List(context.Background(), nil)
		if err != nil {
			return fmt.Errorf("error reading list of nodes: %w", err)
		}

		cli.Stdout.Printf("\nREGISTERED NODES\n\n")
		for i, registered := range allNodes {
			lastSeen := "never"
			if registered.LastSeen != nil {
				lastSeen = registered.LastSeen.String()
			}
			cli.Stdout.Printf("%d: Name '%s', state '%s', last seen %s\n", i+1, registered.Name, registered.AwakeState, lastSeen)
			if len(registered.Labels) > 0 {
				cli.Stdout.Printf("      Labels: %v\n", registered.Labels)
			}
			for service, limit := range registered.MaxConcurrency {
				cli.Stdout.Printf("      Service '%s': up to %d concurrent task(s)\n", service, limit)
			}
		}
		if len(allNodes) == 0 {
			cli.Stdout.Printf("No nodes registered.\n")
		}
		cli.Stdout.Printf("\n")
		return nil
	},
}

var nodeDeleteCmd = &cobra.Command{
	Use:           "delete name",
	Short:         "Deletes the node with the specified name. Tasks already dispatched to the node are unaffected",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if len(name) == 0 {
			return fmt.Errorf("error: node name must be specified")
		}

		confirmed := cli.AskForConfirmation(
			fmt.Sprintf("Deleting node '%s' removes its declared capacity from dispatch decisions. Are you sure?", name),
			nodeCmdConfig.skipConfirmation)
		if !confirmed {
			cli.Stdout.Printf("Delete cancelled.")
			return nil
		}

		err := nodeCmdConfig.nodeService.Delete(context.Background(), nil, models.ResourceName(name))
		if err != nil {
			return fmt.Errorf("error deleting node '%s': %w", name, err)
		}

		cli.Stdout.Printf("Deleted node '%s'\n", name)
		return nil
	},
}

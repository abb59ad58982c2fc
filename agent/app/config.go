package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/accella/accella/agent"
	"github.com/accella/accella/common/logger"
	"github.com/accella/accella/common/models"
	"github.com/accella/accella/common/settings"
	"github.com/accella/accella/server/services/lifecycle"
	"github.com/accella/accella/server/store"
)

const defaultServices = "default"

// LogSafeFlags is a list of flags by name whose values are safe to log.
var LogSafeFlags = []string{
	"node_name",
	"services",
	"labels",
	"parallel_tasks",
	"poll_interval",
	"heartbeat_interval",
	"database_driver",
	"database_max_idle_connections",
	"database_max_open_connections",
	"task_retry_initial_interval",
	"task_retry_max_interval",
	"task_retry_jitter",
	"log_levels",
}

type NodeConfig struct {
	// NodeName is the base identity for this node. Each service's agent
	// registers and claims tasks as "<node_name>-<service>".
	NodeName models.ResourceName
	// Services lists the worker services this node executes tasks for.
	Services []models.ResourceName
	// Labels are free-form strings describing the node to operators.
	Labels models.StringList
	// ParallelTasks caps the number of tasks executed concurrently per service.
	ParallelTasks int
	// PollInterval is how long each agent waits between polls when idle.
	PollInterval time.Duration
	// HeartbeatInterval is how often each agent refreshes its registration.
	HeartbeatInterval time.Duration
	DatabaseConfig    store.DatabaseConfig
	RetryConfig       lifecycle.RetryConfig
	LogLevels         logger.LogLevelConfig
}

func ConfigFromFlags() (*NodeConfig, error) {
	var (
		nodeName                 string
		serviceNames             []string
		labels                   []string
		databaseDriverStr        string
		databaseConnectionString string
		retryJitter              float64
		logLevels                string
	)

	config := &NodeConfig{}

	// The environment supplies defaults for settings shared with the engine;
	// flags win when given explicitly.
	env := settings.New()
	defaultConnectionString := env.DatabaseURIOr(defaultSQLiteConnectionString)
	defaultDriver := string(store.Sqlite)
	if env.DatabaseURI() != "" {
		defaultDriver = string(store.Postgres)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	// Node
	flag.StringVar(&nodeName, "node_name",
		models.NormalizeResourceName(hostname), "The base name this node registers under. Each service's agent claims tasks as <node_name>-<service>.")
	flag.StringSliceVar(&serviceNames, "services",
		[]string{defaultServices}, "A comma separated list of worker services to execute tasks for.")
	flag.StringSliceVar(&labels, "labels",
		nil, "A comma separated list of labels describing this node to operators.")
	flag.IntVar(&config.ParallelTasks, "parallel_tasks",
		agent.DefaultParallelTasks, "The number of tasks to execute in parallel for each service.")
	flag.DurationVar(&config.PollInterval, "poll_interval",
		agent.DefaultPollInterval, "The interval to check for new tasks when idle.")
	flag.DurationVar(&config.HeartbeatInterval, "heartbeat_interval",
		agent.DefaultHeartbeatInterval, "The interval between node registration refreshes.")

	// Database
	flag.StringVar(&databaseConnectionString, "database_connection_string",
		defaultConnectionString, "The connection string for the engine's database. Defaults to ACC_DB_URL or POSTGRES_DSN when set in the environment.")
	flag.StringVar(&databaseDriverStr, "database_driver",
		defaultDriver, "The Database Driver to use (i.e sqlite3|postgres)")
	flag.IntVar(&config.DatabaseConfig.MaxIdleConnections, "database_max_idle_connections",
		store.DefaultDatabaseMaxIdleConnections, "The maximum number of idle database connections to use")
	flag.IntVar(&config.DatabaseConfig.MaxOpenConnections, "database_max_open_connections",
		store.DefaultDatabaseMaxOpenConnections, "The maximum number of open database connections to use")

	// Task retry. These settings must match the engine's, or back-off windows
	// will differ depending on which process requeues a failed task.
	flag.DurationVar(&config.RetryConfig.InitialInterval, "task_retry_initial_interval",
		lifecycle.DefaultRetryInitialInterval, "The back-off before a failed task's second attempt. The back-off doubles with each further failed attempt.")
	flag.DurationVar(&config.RetryConfig.MaxInterval, "task_retry_max_interval",
		lifecycle.DefaultRetryMaxInterval, "The maximum back-off between attempts of a failed task.")
	flag.Float64Var(&retryJitter, "task_retry_jitter",
		lifecycle.DefaultRetryJitter, "The fraction by which task back-off intervals are randomized.")

	// Misc
	flag.StringVar(&logLevels, "log_levels",
		"", fmt.Sprintf("A comma separated list of name=level pairs where name is the name of the logger and level is one of: %s. A bare level sets the default for all loggers", logger.ListLogLevels()))
	flag.Parse()

	// Node
	config.NodeName = models.ResourceName(models.NormalizeResourceName(nodeName))
	for _, name := range serviceNames {
		name = strings.TrimSpace(name)
		if name != "" {
			config.Services = append(config.Services, models.ResourceName(name))
		}
	}
	if len(config.Services) == 0 {
		return nil, errors.New("--services must name at least one worker service")
	}
	config.Labels = models.StringList(labels)

	// Database
	config.DatabaseConfig.Driver = store.DBDriver(databaseDriverStr)
	config.DatabaseConfig.ConnectionString = store.DatabaseConnectionString(databaseConnectionString)

	// Task retry
	if retryJitter < 0 || retryJitter >= 1 {
		return nil, errors.New("--task_retry_jitter must be in the range [0, 1)")
	}
	config.RetryConfig.Jitter = retryJitter

	// Misc
	config.LogLevels = logger.LogLevelConfig(logLevels)

	return config, nil
}

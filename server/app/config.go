package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/accella/accella/agent"
	"github.com/accella/accella/common/logger"
	"github.com/accella/accella/common/models"
	"github.com/accella/accella/common/settings"
	"github.com/accella/accella/server/services"
	"github.com/accella/accella/server/services/blob"
	"github.com/accella/accella/server/services/lifecycle"
	"github.com/accella/accella/server/store"
)

// LogSafeFlags is a list of flags by name whose values are safe to log.
var LogSafeFlags = []string{
	"blob_store_type",
	"blob_store_local_directory",
	"blob_store_s3_region",
	"blob_store_s3_endpoint",
	"blob_store_s3_force_path_style",
	"blob_store_s3_disable_tls",
	"database_driver",
	"database_max_idle_connections",
	"database_max_open_connections",
	"task_retry_initial_interval",
	"task_retry_max_interval",
	"task_retry_jitter",
	"dev_start_internal_nodes",
	"dev_internal_node_services",
	"dev_internal_node_parallel_tasks",
	"log_levels",
}

type BlobStoreConfig struct {
	// BlobStoreType specifies which blob store should be used.
	BlobStoreType string
	// LocalBlobStoreDir is the base directory on the local filesystem to store blobs to, if enabled.
	LocalBlobStoreDir string
	// S3BlobStoreConfig contains configuration for the S3 blob store, if enabled.
	S3BlobStoreConfig blob.S3BlobStoreConfig
}

func BlobStoreFactory(config BlobStoreConfig, logFactory logger.LogFactory) (services.BlobStore, error) {
	switch strings.ToLower(config.BlobStoreType) {
	case strings.ToLower(blob.AWSS3BlobStoreType.String()):
		return blob.NewS3BlobStore(config.S3BlobStoreConfig, logFactory)
	case strings.ToLower(blob.LocalBlobStoreType.String()):
		return blob.NewLocalBlobStore(blob.LocalBlobStoreDirectory(config.LocalBlobStoreDir)), nil
	default:
		return nil, fmt.Errorf("error unsupported blob store type: %v", config.BlobStoreType)
	}
}

type EngineConfig struct {
	DatabaseConfig     store.DatabaseConfig
	BlobStoreConfig    BlobStoreConfig
	RetryConfig        lifecycle.RetryConfig
	InternalNodeConfig InternalNodeConfig
	LogLevels          logger.LogLevelConfig
}

func ConfigFromFlags() (*EngineConfig, error) {
	var (
		databaseDriverStr        string
		databaseConnectionString string
		retryJitter              float64
		internalNodeServices     string
		logLevels                string
	)

	config := &EngineConfig{}

	// The environment supplies defaults for settings shared with other deployments
	// of this engine; flags win when given explicitly.
	env := settings.New()
	defaultConnectionString := env.DatabaseURIOr(defaultSQLiteConnectionString)
	defaultDriver := string(store.Sqlite)
	if env.DatabaseURI() != "" {
		defaultDriver = string(store.Postgres)
	}

	// Database
	flag.StringVar(&databaseConnectionString, "database_connection_string",
		defaultConnectionString, "The connection string for the database. Defaults to ACC_DB_URL or POSTGRES_DSN when set in the environment.")
	flag.StringVar(&databaseDriverStr, "database_driver",
		defaultDriver, "The Database Driver to use (i.e sqlite3|postgres)")
	flag.IntVar(&config.DatabaseConfig.MaxIdleConnections, "database_max_idle_connections",
		store.DefaultDatabaseMaxIdleConnections, "The maximum number of idle database connections to use")
	flag.IntVar(&config.DatabaseConfig.MaxOpenConnections, "database_max_open_connections",
		store.DefaultDatabaseMaxOpenConnections, "The maximum number of open database connections to use")

	// Blob Storage
	flag.StringVar(&config.BlobStoreConfig.BlobStoreType, "blob_store_type",
		blob.LocalBlobStoreType.String(), fmt.Sprintf("The type of blob store to use. Options: %s", strings.Join(blob.BlobStoreTypes(), ", ")))
	flag.StringVar(&config.BlobStoreConfig.LocalBlobStoreDir, "blob_store_local_directory",
		defaultLocalBlobStoreDir, "The path on the local host to store blob files to, if using the local blob store.")
	flag.StringVar(&config.BlobStoreConfig.S3BlobStoreConfig.Region, "blob_store_s3_region",
		"", "The region of the S3 endpoint to store blobs to, if using the S3 blob store.")
	flag.StringVar(&config.BlobStoreConfig.S3BlobStoreConfig.Endpoint, "blob_store_s3_endpoint",
		env.ObjectStoreEndpoint(), "A custom endpoint for S3-compatible stores such as MinIO, if using the S3 blob store. Defaults to ACC_MINIO_ENDPOINT or MINIO_ENDPOINT when set in the environment.")
	flag.StringVar(&config.BlobStoreConfig.S3BlobStoreConfig.AccessKeyID, "blob_store_s3_access_key_id",
		env.ObjectStoreAccessKey(), "The Access Key ID to use to authenticate to the S3 endpoint, if using the S3 blob store.")
	flag.StringVar(&config.BlobStoreConfig.S3BlobStoreConfig.SecretAccessKey, "blob_store_s3_secret_key",
		env.ObjectStoreSecretKey(), "The Secret Key to use to authenticate to the S3 endpoint, if using the S3 blob store.")
	flag.BoolVar(&config.BlobStoreConfig.S3BlobStoreConfig.ForcePathStyle, "blob_store_s3_force_path_style",
		env.ObjectStoreEndpoint() != "", "True to address S3 buckets as a path component instead of a subdomain. Required by most S3-compatible stores.")
	flag.BoolVar(&config.BlobStoreConfig.S3BlobStoreConfig.DisableTLS, "blob_store_s3_disable_tls",
		env.ObjectStoreEndpoint() != "" && !env.ObjectStoreSecure(), "True to connect to the S3 endpoint over plain HTTP.")

	// Task retry
	flag.DurationVar(&config.RetryConfig.InitialInterval, "task_retry_initial_interval",
		lifecycle.DefaultRetryInitialInterval, "The back-off before a failed task's second attempt. The back-off doubles with each further failed attempt.")
	flag.DurationVar(&config.RetryConfig.MaxInterval, "task_retry_max_interval",
		lifecycle.DefaultRetryMaxInterval, "The maximum back-off between attempts of a failed task.")
	flag.Float64Var(&retryJitter, "task_retry_jitter",
		lifecycle.DefaultRetryJitter, "The fraction by which task back-off intervals are randomized.")

	// Internal Nodes
	flag.BoolVar(&config.InternalNodeConfig.StartInternalNodes, "dev_start_internal_nodes",
		false, "True to start internal worker nodes within the engine. Internal nodes echo task parameters back as results and are only useful for development.")
	flag.StringVar(&internalNodeServices, "dev_internal_node_services",
		defaultInternalNodeServices, "A comma separated list of worker services to start an internal node for.")
	flag.IntVar(&config.InternalNodeConfig.ParallelTasks, "dev_internal_node_parallel_tasks",
		agent.DefaultParallelTasks, "The number of tasks each internal node may execute concurrently.")

	// Misc
	flag.StringVar(&logLevels, "log_levels",
		"", fmt.Sprintf("A comma separated list of name=level pairs where name is the name of the logger and level is one of: %s. A bare level sets the default for all loggers", logger.ListLogLevels()))
	flag.Parse()

	// Database
	config.DatabaseConfig.Driver = store.DBDriver(databaseDriverStr)
	config.DatabaseConfig.ConnectionString = store.DatabaseConnectionString(databaseConnectionString)

	// Task retry
	if retryJitter < 0 || retryJitter >= 1 {
		return nil, errors.New("--task_retry_jitter must be in the range [0, 1)")
	}
	config.RetryConfig.Jitter = retryJitter

	// Internal nodes
	for _, name := range strings.Split(internalNodeServices, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			config.InternalNodeConfig.Services = append(config.InternalNodeConfig.Services, models.ResourceName(name))
		}
	}

	// Misc
	config.LogLevels = logger.LogLevelConfig(logLevels)

	return config, nil
}

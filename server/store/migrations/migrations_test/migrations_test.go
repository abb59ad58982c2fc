package migrations_test

import (
	"context"
	"io/fs"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/accella/accella/common/logger"
	"github.com/accella/accella/server/store"
	"github.com/accella/accella/server/store/migrations"
	"github.com/accella/accella/server/store/store_test"
)

const inMemorySqliteConnectionString = store.DatabaseConnectionString("file::memory:?cache=shared&_foreign_keys=1&parseTime=true")

var migrationTestData = migrations.MigrationSet{
	{
		SequenceNumber: 1,
		Name:           "create_test_blueprints",
		UpSQL: `CREATE TABLE IF NOT EXISTS test_blueprints
				(
					blueprint_id text NOT NULL PRIMARY KEY,
					blueprint_name text NOT NULL,
					blueprint_created_at timestamp without time zone NOT NULL,
					blueprint_deleted_at timestamp without time zone,
					blueprint_diagram {{ .Binary}}
				);
				CREATE UNIQUE INDEX IF NOT EXISTS test_blueprints_name_unique_index ON test_blueprints(blueprint_name)
				WHERE blueprint_deleted_at IS NULL;
				CREATE UNIQUE INDEX test_blueprints_created_at_id_desc_unique_index ON test_blueprints(
					blueprint_created_at DESC,
					blueprint_id DESC);`,
		DownSQL: `DROP TABLE test_blueprints;`,
	},
	{
		SequenceNumber: 2,
		Name:           "create_test_blueprint_links",
		UpSQL: `CREATE TABLE test_blueprint_links
				(
				   blueprint_link_id {{ .IntegerPrimaryKey}},
				   blueprint_link_source_id text NOT NULL REFERENCES test_blueprints (blueprint_id) ON UPDATE NO ACTION ON DELETE CASCADE,
				   blueprint_link_target_id text NOT NULL REFERENCES test_blueprints (blueprint_id) ON UPDATE NO ACTION ON DELETE CASCADE
				);`,
		DownSQL: `DROP TABLE test_blueprint_links;`,
	},
	{
		SequenceNumber: 3,
		Name:           "alter_test_blueprint_links",
		UpSQL:          `ALTER TABLE test_blueprint_links ADD blueprint_link_label text;`,
		DownSQL:        `ALTER TABLE test_blueprint_links DROP COLUMN blueprint_link_label;`,
	},
}

func TestMigrations(t *testing.T) {
	logRegistry, err := logger.NewLogRegistry("")
	require.NoError(t, err)
	logFactory := logger.MakeLogrusLogFactoryStdOut(logRegistry)

	// Test migrations using an in-memory sqlite database
	t.Run("sqlite-in-memory", testMigrationsForDB(store.Sqlite, inMemorySqliteConnectionString, false, logFactory))

	// Set up our default test database, configured via environment variables (could be any database)
	t.Log("Setting up test database")
	database, cleanup, err := store_test.ConnectAndOptionallyMigrate(false, logFactory)
	require.NoError(t, err)
	defer cleanup()
	t.Run("default-test-database", testMigrationsForDB(database.Driver, database.ConnectionString, true, logFactory))
}

// testMigrations runs various migration tests using the migrationTestData against the database with the
// specified driver and connection string.
func testMigrationsForDB(
	driver store.DBDriver,
	connectionString store.DatabaseConnectionString,
	expectFailAfterForce bool,
	logFactory logger.LogFactory,
) func(t *testing.T) {
	return func(t *testing.T) {
		ctx := context.Background()
		migrationRunner := migrations.NewGolangMigrateRunner(migrationTestData, logFactory)

		// Run the first Up migration
		t.Log("Running Up migration 1")
		err := migrationRunner.Up(ctx, driver, connectionString)
		require.NoError(t, err)

		// Repeat the migrations; this will be a no-op
		t.Log("Running Up migration2 ")
		err = migrationRunner.Up(ctx, driver, connectionString)
		require.NoError(t, err)

		// Reverse all migrations
		err = migrationRunner.Down(ctx, driver, connectionString)
		t.Log("Running Down migration 1")
		require.NoError(t, err)

		// Run all migrations again
		t.Log("Running Up migration 3")
		err = migrationRunner.Up(ctx, driver, connectionString)
		require.NoError(t, err)

		// Go back to migration 2
		t.Log("Running Goto 2 migration")
		err = migrationRunner.Goto(ctx, driver, connectionString, 2)
		require.NoError(t, err)

		// Go back to migration 1
		t.Log("Running Goto 1 migration")
		err = migrationRunner.Goto(ctx, driver, connectionString, 1)
		require.NoError(t, err)

		// Force migrations to 3; the database is really only at 1 but this should succeed
		t.Log("Running Force 3 migration")
		err = migrationRunner.Force(ctx, driver, connectionString, 3)
		require.NoError(t, err)

		// Try to run down migration; this should fail since we never actually ran up migrations 2 and 3.
		// Note that an 'up' migration here would appear to succeed but would not actually run migrations 2 and 3.
		// Note also that this down migration succeeds for an in-memory sqlite database which seems to be more
		// permissive
		t.Log("Running Down migration 2")
		err = migrationRunner.Down(ctx, driver, connectionString)
		if expectFailAfterForce {
			require.Error(t, err)
		} else {
			require.NoError(t, err)
		}

		// Force migrations back to 1; this will 'fix' the database
		t.Log("Running Force 1 migration")
		err = migrationRunner.Force(ctx, driver, connectionString, 1)
		require.NoError(t, err)

		// Try to run down migration again; this should now succeed
		t.Log("Running Down migration 2")
		err = migrationRunner.Down(ctx, driver, connectionString)
		require.NoError(t, err)

		// Run all migrations again
		t.Log("Running Up migration 4")
		err = migrationRunner.Up(ctx, driver, connectionString)
		require.NoError(t, err)
	}
}

func TestMigrationTemplating(t *testing.T) {
	t.Run("Sqlite", testMigrationTemplating(migrations.NewSqliteDialectTemplate()))
	t.Run("Postgres", testMigrationTemplating(migrations.NewPostgresDialectTemplate()))
}

func testMigrationTemplating(dialectTemplate *migrations.DialectTemplate) func(t *testing.T) {
	return func(t *testing.T) {
		logRegistry, err := logger.NewLogRegistry("")
		require.NoError(t, err)
		logFactory := logger.MakeLogrusLogFactoryStdOut(logRegistry)

		migrationRunner := migrations.NewEngineGolangMigrateRunner(logFactory)

		// Produce migration files for postgres
		inMemoryFS, err := migrationRunner.ProduceMigrationFiles(dialectTemplate)
		require.NoError(t, err)

		// Walk the directory tree and output filenames
		err = fs.WalkDir(inMemoryFS, ".", func(path string, d fs.DirEntry, err error) error {
			t.Logf("Produced migration file: %s", path)
			return nil
		})
		require.NoError(t, err)
	}
}

// TestDirectMigrationRunner checks that the direct runner can stand up the full engine schema
// on a fresh database, without requiring a schema version table.
func TestDirectMigrationRunner(t *testing.T) {
	logRegistry, err := logger.NewLogRegistry("")
	require.NoError(t, err)
	logFactory := logger.MakeLogrusLogFactoryStdOut(logRegistry)

	ctx := context.Background()
	connectionString := store.DatabaseConnectionString("file:directrunner?mode=memory&cache=shared&_foreign_keys=1&parseTime=true")

	// Hold a connection open for the duration of the test so the shared in-memory
	// database outlives the runner's own connection.
	holdOpen, err := sqlx.Open(store.Sqlite.String(), connectionString.String())
	require.NoError(t, err)
	defer holdOpen.Close()
	require.NoError(t, holdOpen.Ping())

	migrationRunner := migrations.NewDirectMigrationRunner(logFactory)
	err = migrationRunner.Up(ctx, store.Sqlite, connectionString)
	require.NoError(t, err)

	// The job order counter row is seeded by the migrations
	var counters int
	err = holdOpen.Get(&counters, "SELECT COUNT(*) FROM job_order_counters")
	require.NoError(t, err)
	require.Equal(t, 1, counters)

	// Spot-check the schema shape by writing to a couple of the tables
	_, err = holdOpen.Exec("INSERT INTO nodes (node_name) VALUES ('bootstrap-check')")
	require.NoError(t, err)
	var workflows int
	err = holdOpen.Get(&workflows, "SELECT COUNT(*) FROM workflows")
	require.NoError(t, err)
	require.Equal(t, 0, workflows)
}

// TestEngineMigrations will test the full set of engine migrations, both up and down, with
// a database as would be set up by default for our tests. The actual database server used will be configured using
// environment variables, and a new test database will be created for those database servers that support it.
func TestEngineMigrations(t *testing.T) {
	// Set up logging
	logRegistry, err := logger.NewLogRegistry("")
	require.NoError(t, err)
	logFactory := logger.MakeLogrusLogFactoryStdOut(logRegistry)

	ctx := context.Background()

	// Set up our default test database, configured via environment variables (could be any database)
	// Test asking ConnectAndOptionallyMigrate() to run the 'up' migrations
	t.Log("Setting up test database (including Up migration 1)")
	database, cleanup, err := store_test.ConnectAndOptionallyMigrate(true, logFactory)
	require.NoError(t, err)
	defer cleanup()

	migrationRunner := migrations.NewEngineGolangMigrateRunner(logFactory)

	// Repeat the migrations; this will be a no-op
	t.Log("Running Up migration 2")
	err = migrationRunner.Up(ctx, database.Driver, database.ConnectionString)
	require.NoError(t, err)

	// Reverse all migrations
	err = migrationRunner.Down(ctx, database.Driver, database.ConnectionString)
	t.Log("Running Down migration 1")
	require.NoError(t, err)

	// Run all migrations again
	t.Log("Running Up migration 3")
	err = migrationRunner.Up(ctx, database.Driver, database.ConnectionString)
	require.NoError(t, err)
}

package migrations

// DialectTemplate is used as the templating control for differing SQL syntax between our supported databases
type DialectTemplate struct {
	Binary            string
	IntegerPrimaryKey string
}

// MigrationSet provides a set of migrations that can be applied to a database.
type MigrationSet []MigrationData

// MigrationData provides the data for a single migration, including Up and Down SQL.
// Templated values are supported and will be substituted for database-specific values
// before the migrations are applied.
type MigrationData struct {
	SequenceNumber int64
	Name           string
	UpSQL          string
	DownSQL        string
}

// AccellaEngineMigrations is the set of migrations to set up the database for the Accella engine.
var AccellaEngineMigrations = MigrationSet{
	{
		SequenceNumber: 1,
		Name:           "create_workflows",
		UpSQL: `CREATE TABLE IF NOT EXISTS workflows
				(
					workflow_id text NOT NULL PRIMARY KEY,
					workflow_created_at timestamp without time zone NOT NULL,
					workflow_updated_at timestamp without time zone NOT NULL,
					workflow_name text NOT NULL,
					workflow_version integer NOT NULL,
					workflow_steps text,
					workflow_on_error text NOT NULL,
					workflow_is_active bool NOT NULL
				);
				CREATE UNIQUE INDEX IF NOT EXISTS workflows_name_version_unique_index ON workflows(workflow_name, workflow_version);
				CREATE UNIQUE INDEX IF NOT EXISTS workflows_created_at_id_desc_unique_index ON workflows(
					workflow_created_at DESC,
					workflow_id DESC);`,
		DownSQL: `DROP TABLE workflows;`,
	},
	{
		SequenceNumber: 2,
		Name:           "create_jobs",
		UpSQL: `CREATE TABLE IF NOT EXISTS jobs
				(
					job_id text NOT NULL PRIMARY KEY,
					job_created_at timestamp without time zone NOT NULL,
					job_updated_at timestamp without time zone NOT NULL,
					job_workflow_id text NOT NULL REFERENCES workflows (workflow_id) ON UPDATE NO ACTION ON DELETE NO ACTION,
					job_status text NOT NULL,
					job_order_seq integer NOT NULL,
					job_priority integer NOT NULL DEFAULT 0,
					job_options text,
					job_progress double precision NOT NULL DEFAULT 0,
					job_current_task_key text NOT NULL DEFAULT '',
					job_scheduled_at timestamp without time zone,
					job_error text
				);
				CREATE UNIQUE INDEX IF NOT EXISTS jobs_order_seq_unique_index ON jobs(job_order_seq);
				CREATE INDEX IF NOT EXISTS jobs_status_index ON jobs(job_status);
				CREATE UNIQUE INDEX IF NOT EXISTS jobs_created_at_id_desc_unique_index ON jobs(
					job_created_at DESC,
					job_id DESC);
				CREATE TABLE IF NOT EXISTS job_order_counters
				(
					job_order_counter_id integer NOT NULL PRIMARY KEY,
					job_order_counter_counter integer NOT NULL DEFAULT 0
				);
				INSERT INTO job_order_counters (job_order_counter_id, job_order_counter_counter) VALUES (1, 0);`,
		DownSQL: `DROP TABLE job_order_counters;
				  DROP TABLE jobs;`,
	},
	{
		SequenceNumber: 3,
		Name:           "create_job_tasks",
		UpSQL: `CREATE TABLE IF NOT EXISTS job_tasks
				(
					job_task_id text NOT NULL PRIMARY KEY,
					job_task_created_at timestamp without time zone NOT NULL,
					job_task_updated_at timestamp without time zone NOT NULL,
					job_task_job_id text NOT NULL REFERENCES jobs (job_id) ON UPDATE NO ACTION ON DELETE NO ACTION,
					job_task_task_key text NOT NULL,
					job_task_service_name text NOT NULL,
					job_task_status text NOT NULL,
					job_task_depends_on text,
					job_task_skippable bool NOT NULL DEFAULT FALSE,
					job_task_allow_skipped_deps bool NOT NULL DEFAULT FALSE,
					job_task_attempt integer NOT NULL DEFAULT 0,
					job_task_max_attempts integer NOT NULL DEFAULT 3,
					job_task_next_attempt_at timestamp without time zone,
					job_task_priority integer NOT NULL DEFAULT 0,
					job_task_progress double precision NOT NULL DEFAULT 0,
					job_task_params text,
					job_task_results text,
					job_task_assigned_node text NOT NULL DEFAULT '',
					job_task_claimed_by text NOT NULL DEFAULT '',
					job_task_claimed_at timestamp without time zone,
					job_task_started_at timestamp without time zone,
					job_task_finished_at timestamp without time zone
				);
				CREATE UNIQUE INDEX IF NOT EXISTS job_tasks_job_id_task_key_unique_index ON job_tasks(job_task_job_id, job_task_task_key);
				CREATE INDEX IF NOT EXISTS job_tasks_service_status_index ON job_tasks(job_task_service_name, job_task_status);
				CREATE INDEX IF NOT EXISTS job_tasks_next_attempt_at_index ON job_tasks(job_task_next_attempt_at);
				CREATE UNIQUE INDEX IF NOT EXISTS job_tasks_created_at_id_desc_unique_index ON job_tasks(
					job_task_created_at DESC,
					job_task_id DESC);`,
		DownSQL: `DROP TABLE job_tasks;`,
	},
	{
		SequenceNumber: 4,
		Name:           "create_task_events",
		UpSQL: `CREATE TABLE IF NOT EXISTS task_events
				(
					task_event_id {{ .IntegerPrimaryKey }},
					task_event_ts timestamp without time zone NOT NULL,
					task_event_job_id text NOT NULL REFERENCES jobs (job_id) ON UPDATE NO ACTION ON DELETE NO ACTION,
					task_event_job_task_id text REFERENCES job_tasks (job_task_id) ON UPDATE NO ACTION ON DELETE NO ACTION,
					task_event_source text NOT NULL DEFAULT '',
					task_event_level text NOT NULL,
					task_event_type text NOT NULL,
					task_event_message text NOT NULL DEFAULT '',
					task_event_data text
				);
				CREATE INDEX IF NOT EXISTS task_events_job_id_id_index ON task_events(task_event_job_id, task_event_id);
				CREATE INDEX IF NOT EXISTS task_events_job_task_id_index ON task_events(task_event_job_task_id);`,
		DownSQL: `DROP TABLE task_events;`,
	},
	{
		SequenceNumber: 5,
		Name:           "create_task_artifacts",
		UpSQL: `CREATE TABLE IF NOT EXISTS task_artifacts
				(
					task_artifact_id text NOT NULL PRIMARY KEY,
					task_artifact_created_at timestamp without time zone NOT NULL,
					task_artifact_job_id text NOT NULL REFERENCES jobs (job_id) ON UPDATE NO ACTION ON DELETE NO ACTION,
					task_artifact_job_task_id text REFERENCES job_tasks (job_task_id) ON UPDATE NO ACTION ON DELETE NO ACTION,
					task_artifact_kind text NOT NULL,
					task_artifact_bucket text NOT NULL,
					task_artifact_key text NOT NULL,
					task_artifact_size_bytes integer NOT NULL DEFAULT 0,
					task_artifact_content_type text NOT NULL DEFAULT '',
					task_artifact_checksum text NOT NULL DEFAULT ''
				);
				CREATE INDEX IF NOT EXISTS task_artifacts_job_id_index ON task_artifacts(task_artifact_job_id);
				CREATE INDEX IF NOT EXISTS task_artifacts_job_task_id_index ON task_artifacts(task_artifact_job_task_id);
				CREATE UNIQUE INDEX IF NOT EXISTS task_artifacts_created_at_id_desc_unique_index ON task_artifacts(
					task_artifact_created_at DESC,
					task_artifact_id DESC);`,
		DownSQL: `DROP TABLE task_artifacts;`,
	},
	{
		SequenceNumber: 6,
		Name:           "create_nodes",
		UpSQL: `CREATE TABLE IF NOT EXISTS nodes
				(
					node_name text NOT NULL PRIMARY KEY,
					node_labels text,
					node_last_seen timestamp without time zone,
					node_awake_state text NOT NULL DEFAULT 'unknown',
					node_wake_method text NOT NULL DEFAULT '',
					node_mac text NOT NULL DEFAULT '',
					node_provider_ref text NOT NULL DEFAULT '',
					node_script text NOT NULL DEFAULT '',
					node_max_concurrency text
				);`,
		DownSQL: `DROP TABLE nodes;`,
	},
}

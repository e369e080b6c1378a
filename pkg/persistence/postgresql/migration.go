package postgresql

// migrations returns the ordered schema migrations for the PostgreSQL
// backend. Graph structure and loose documents live in JSONB columns;
// run counters and the paused-state version are plain columns so they
// can be updated atomically.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflows (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'draft',
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				stats_runs BIGINT NOT NULL DEFAULT 0,
				stats_successes BIGINT NOT NULL DEFAULT 0,
				stats_failures BIGINT NOT NULL DEFAULT 0,
				owner TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_workflows_owner ON workflows(owner) WHERE deleted_at IS NULL;
			CREATE INDEX IF NOT EXISTS idx_workflows_status ON workflows(status) WHERE deleted_at IS NULL;

			CREATE TABLE IF NOT EXISTS leads (
				id TEXT PRIMARY KEY,
				owner_id TEXT NOT NULL DEFAULT '',
				stage TEXT NOT NULL DEFAULT '',
				score DOUBLE PRECISION NOT NULL DEFAULT 0,
				fields JSONB NOT NULL DEFAULT '{}',
				custom_fields JSONB NOT NULL DEFAULT '{}',
				tags JSONB NOT NULL DEFAULT '[]',
				audiences JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_leads_stage ON leads(stage);
			CREATE INDEX IF NOT EXISTS idx_leads_audiences ON leads USING GIN(audiences);

			CREATE TABLE IF NOT EXISTS lead_activities (
				id TEXT PRIMARY KEY,
				lead_id TEXT NOT NULL,
				workflow_id TEXT NOT NULL DEFAULT '',
				node_id TEXT NOT NULL DEFAULT '',
				kind TEXT NOT NULL,
				detail JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_lead_activities_lead ON lead_activities(lead_id, created_at DESC);

			CREATE TABLE IF NOT EXISTS paused_states (
				workflow_id TEXT NOT NULL,
				lead_id TEXT NOT NULL,
				state JSONB NOT NULL,
				version INTEGER NOT NULL,
				resume_at TIMESTAMP WITH TIME ZONE,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (workflow_id, lead_id)
			);

			CREATE INDEX IF NOT EXISTS idx_paused_states_resume_at ON paused_states(resume_at);

			CREATE TABLE IF NOT EXISTS traces (
				test_run_id TEXT PRIMARY KEY,
				trace JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
		`,
	}
}

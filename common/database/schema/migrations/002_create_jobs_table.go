package migrations

import "labjobs/common/database/schema"

// Timestamps are unix nanoseconds (UTC).
var CreateJobsTable = schema.Migration{
	Version:     2,
	Description: "Create jobs table",
	Up: `
		CREATE TABLE IF NOT EXISTS jobs (
			id TEXT NOT NULL,
			lab_id TEXT NOT NULL REFERENCES labs(id),
			title TEXT NOT NULL,
			team TEXT NOT NULL,
			location TEXT NOT NULL,
			type TEXT,
			compensation TEXT,
			first_seen INTEGER NOT NULL,
			last_seen INTEGER NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (id, lab_id),
			CHECK (first_seen <= last_seen)
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_lab_active ON jobs (lab_id, is_active);
		CREATE INDEX IF NOT EXISTS idx_jobs_active_first_seen ON jobs (is_active, first_seen);
	`,
	Down: `DROP TABLE IF EXISTS jobs`,
}

package migrations

import "labjobs/common/database/schema"

var CreateJobHistoryTable = schema.Migration{
	Version:     3,
	Description: "Create job_history table",
	Up: `
		CREATE TABLE IF NOT EXISTS job_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date TEXT NOT NULL,
			lab_id TEXT NOT NULL REFERENCES labs(id),
			job_count INTEGER NOT NULL CHECK (job_count >= 0),
			UNIQUE (date, lab_id)
		)
	`,
	Down: `DROP TABLE IF EXISTS job_history`,
}

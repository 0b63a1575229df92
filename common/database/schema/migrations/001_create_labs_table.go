package migrations

import "labjobs/common/database/schema"

var CreateLabsTable = schema.Migration{
	Version:     1,
	Description: "Create labs table",
	Up: `
		CREATE TABLE IF NOT EXISTS labs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			color TEXT NOT NULL,
			last_updated INTEGER
		)
	`,
	Down: `DROP TABLE IF EXISTS labs`,
}

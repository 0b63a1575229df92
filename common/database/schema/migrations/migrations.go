// Package migrations holds the ordered schema history of the labjobs database.
package migrations

import "labjobs/common/database/schema"

// All returns every migration in version order.
func All() []schema.Migration {
	return []schema.Migration{
		CreateLabsTable,
		CreateJobsTable,
		CreateJobHistoryTable,
	}
}

package registry

import "gorm.io/gorm/clause"

// upsertRequestClause makes RecordRequest an upsert keyed on the
// primary key: a second request from the same agent updates its
// target/timestamp rather than conflicting.
func upsertRequestClause() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "agent_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"target_triple", "last_requested_at"}),
	}
}

package registry

import "time"

// AgentRecord tracks one agent's last-seen chain install state: a
// string primary key, explicit column tags, and a TableName override.
type AgentRecord struct {
	AgentID          string    `gorm:"primaryKey;size:64" json:"agent_id"`
	TargetTriple     string    `gorm:"not null;size:128;index" json:"target_triple"`
	ChainHash        string    `gorm:"size:64" json:"chain_hash"`
	LastRequestedAt  time.Time `json:"last_requested_at"`
	LastInstalledAt  time.Time `json:"last_installed_at"`
}

// TableName pins the table name independent of struct renames.
func (AgentRecord) TableName() string {
	return "agents"
}

// AllModels lists every model the registry migrates.
func AllModels() []any {
	return []any{&AgentRecord{}}
}

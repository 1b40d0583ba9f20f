// Package models provides data model definitions for the Tableside POS core.
package models

import json "github.com/goccy/go-json"

// PendingOperation represents a durably stored intent to mutate remote state,
// written while the client is offline and replayed by the sync engine.
type PendingOperation struct {
	ID         string          `db:"id" json:"id"`     // time-based id with random suffix
	Kind       string          `db:"kind" json:"kind"` // see queue.Kind* constants
	Payload    json.RawMessage `db:"payload" json:"payload"`
	Timestamp  int64           `db:"timestamp" json:"timestamp"` // enqueue time, Unix millis; replay ordering key
	Status     string          `db:"status" json:"status"`       // pending, syncing, failed
	RetryCount int             `db:"retry_count" json:"retry_count"`
}

// TableName returns the table name for PendingOperation.
func (PendingOperation) TableName() string {
	return "pending_operations"
}

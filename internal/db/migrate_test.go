// Package db tests for schema migration management.
package db

import (
	"testing"
)

// TestMigratorUp verifies migrations apply and report the right version.
func TestMigratorUp(t *testing.T) {
	database, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	migrator := NewMigrator(database.DB)
	if err := migrator.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := migrator.Up(); err != nil {
		t.Fatalf("Up failed: %v", err)
	}

	version, err := migrator.CurrentVersion()
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("CurrentVersion = %d, want %d", version, len(migrations))
	}

	// All four collections must exist.
	for _, table := range []string{"orders", "order_items", "menu_items", "pending_operations"} {
		var name string
		err := database.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing after migration: %v", table, err)
		}
	}

	// Secondary indexes on the queue.
	for _, index := range []string{"idx_pending_operations_timestamp", "idx_pending_operations_status"} {
		var name string
		err := database.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='index' AND name=?", index,
		).Scan(&name)
		if err != nil {
			t.Errorf("index %s missing after migration: %v", index, err)
		}
	}
}

// TestMigratorUpIdempotent verifies a second Up is a no-op.
func TestMigratorUpIdempotent(t *testing.T) {
	database, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	migrator := NewMigrator(database.DB)
	if err := migrator.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := migrator.Up(); err != nil {
		t.Fatalf("first Up failed: %v", err)
	}
	if err := migrator.Up(); err != nil {
		t.Fatalf("second Up failed: %v", err)
	}

	applied, err := migrator.GetAppliedMigrations()
	if err != nil {
		t.Fatalf("GetAppliedMigrations failed: %v", err)
	}
	if len(applied) != len(migrations) {
		t.Errorf("applied %d migrations, want %d", len(applied), len(migrations))
	}
	for _, mig := range applied {
		if len(mig.Checksum) != 64 {
			t.Errorf("migration %d checksum length = %d, want 64", mig.Version, len(mig.Checksum))
		}
	}
}

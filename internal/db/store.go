// Package db provides the durable local store backing the offline cache
// and the pending-operation queue.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"

	apperrors "github.com/tableside/pos/internal/errors"
	"github.com/tableside/pos/internal/models"
)

// Local collection names.
const (
	CollectionOrders     = "orders"
	CollectionOrderItems = "order_items"
	CollectionMenuItems  = "menu_items"
	CollectionPendingOps = "pending_operations"
)

// cacheCollections are the collections addressable through the generic
// record API. The pending_operations collection has its own typed API.
var cacheCollections = map[string]bool{
	CollectionOrders:     true,
	CollectionOrderItems: true,
	CollectionMenuItems:  true,
}

// Record is an upsert payload for a cached collection.
type Record struct {
	ID    string
	Value interface{}
}

// Store provides crash-durable, key-addressed storage for the cached
// reference data and the pending-operation queue. All writes are durable
// before the call returns; there is no deferred persistence.
type Store struct {
	db       *DB
	initOnce sync.Once
	initErr  error
	mu       sync.RWMutex
	ready    bool
}

// NewStore creates a Store over an open database. Initialize must be
// called before any other operation.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// Initialize idempotently prepares the store: it creates the collections
// and indexes if absent. Concurrent callers block until the first
// initialization attempt completes and share its result.
func (s *Store) Initialize(ctx context.Context) error {
	s.initOnce.Do(func() {
		migrator := NewMigrator(s.db.DB)
		if err := migrator.Initialize(); err != nil {
			s.initErr = apperrors.Wrap(apperrors.ErrMigration, "failed to initialize migrations", err)
			return
		}
		if err := migrator.Up(); err != nil {
			s.initErr = apperrors.Wrap(apperrors.ErrMigration, "failed to apply migrations", err)
			return
		}
		s.mu.Lock()
		s.ready = true
		s.mu.Unlock()
	})
	return s.initErr
}

// checkReady fails fast when the store has not been initialized.
func (s *Store) checkReady() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return apperrors.New(apperrors.ErrStorageNotInitialized, "store not initialized")
	}
	return nil
}

// checkCollection rejects unknown collection names. Collection names are
// interpolated into SQL, so only the fixed set is accepted.
func checkCollection(collection string) error {
	if !cacheCollections[collection] {
		return apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown collection %q", collection))
	}
	return nil
}

// Put upserts a record by primary key; last write wins.
func (s *Store) Put(ctx context.Context, collection, id string, value interface{}) error {
	if err := s.checkReady(); err != nil {
		return err
	}
	if err := checkCollection(collection); err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to encode record", err)
	}

	query := fmt.Sprintf(`
	INSERT INTO %s (id, data) VALUES (?, ?)
	ON CONFLICT(id) DO UPDATE SET data = excluded.data
	`, collection)
	if _, err := s.db.ExecContext(ctx, query, id, string(data)); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to write record", err)
	}
	return nil
}

// PutMany upserts records in a single transaction.
func (s *Store) PutMany(ctx context.Context, collection string, records []Record) error {
	if err := s.checkReady(); err != nil {
		return err
	}
	if err := checkCollection(collection); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
	INSERT INTO %s (id, data) VALUES (?, ?)
	ON CONFLICT(id) DO UPDATE SET data = excluded.data
	`, collection)
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to prepare upsert", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		data, err := json.Marshal(rec.Value)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrStorage, "failed to encode record", err)
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, string(data)); err != nil {
			return apperrors.Wrap(apperrors.ErrStorage, "failed to write record", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to commit", err)
	}
	return nil
}

// Get reads a record by primary key into dest. Returns a NOT_FOUND error
// if the key is absent.
func (s *Store) Get(ctx context.Context, collection, id string, dest interface{}) error {
	if err := s.checkReady(); err != nil {
		return err
	}
	if err := checkCollection(collection); err != nil {
		return err
	}

	var data string
	query := fmt.Sprintf("SELECT data FROM %s WHERE id = ?", collection)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&data)
	if err == sql.ErrNoRows {
		return apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("%s/%s not found", collection, id))
	}
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to read record", err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to decode record", err)
	}
	return nil
}

// GetAll returns all records in a collection. Order is not guaranteed.
func (s *Store) GetAll(ctx context.Context, collection string) ([]json.RawMessage, error) {
	if err := s.checkReady(); err != nil {
		return nil, err
	}
	if err := checkCollection(collection); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT data FROM %s", collection)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list records", err)
	}
	defer rows.Close()

	var records []json.RawMessage
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan record", err)
		}
		records = append(records, json.RawMessage(data))
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list records", err)
	}
	return records, nil
}

// Delete removes a record by primary key. Deleting a missing key is a
// no-op success.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := s.checkReady(); err != nil {
		return err
	}
	if err := checkCollection(collection); err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", collection)
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to delete record", err)
	}
	return nil
}

// =====================================================
// Pending operation queue storage
// =====================================================

// InsertOperation persists a queued mutation.
func (s *Store) InsertOperation(ctx context.Context, op *models.PendingOperation) error {
	if err := s.checkReady(); err != nil {
		return err
	}

	query := `
	INSERT INTO pending_operations (id, kind, payload, timestamp, status, retry_count)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		op.ID, op.Kind, string(op.Payload), op.Timestamp, op.Status, op.RetryCount)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to persist operation", err)
	}
	return nil
}

// ListOperations returns operations whose status is in statuses, ordered
// ascending by enqueue timestamp (insertion order breaks ties).
func (s *Store) ListOperations(ctx context.Context, statuses ...string) ([]models.PendingOperation, error) {
	if err := s.checkReady(); err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := ""
	args := make([]interface{}, len(statuses))
	for i, st := range statuses {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args[i] = st
	}

	query := fmt.Sprintf(`
	SELECT id, kind, payload, timestamp, status, retry_count
	FROM pending_operations
	WHERE status IN (%s)
	ORDER BY timestamp ASC, rowid ASC
	`, placeholders)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list operations", err)
	}
	defer rows.Close()

	var ops []models.PendingOperation
	for rows.Next() {
		var op models.PendingOperation
		var payload string
		if err := rows.Scan(&op.ID, &op.Kind, &payload, &op.Timestamp, &op.Status, &op.RetryCount); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan operation", err)
		}
		op.Payload = []byte(payload)
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list operations", err)
	}
	return ops, nil
}

// UpdateOperationStatus updates status and retry count on an operation.
// Updating a missing operation is a no-op: a concurrent successful replay
// may have deleted it already.
func (s *Store) UpdateOperationStatus(ctx context.Context, id, status string, retryCount int) error {
	if err := s.checkReady(); err != nil {
		return err
	}

	query := "UPDATE pending_operations SET status = ?, retry_count = ? WHERE id = ?"
	if _, err := s.db.ExecContext(ctx, query, status, retryCount, id); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to update operation", err)
	}
	return nil
}

// DeleteOperation removes an operation; idempotent.
func (s *Store) DeleteOperation(ctx context.Context, id string) error {
	if err := s.checkReady(); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM pending_operations WHERE id = ?", id); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to delete operation", err)
	}
	return nil
}

// CountOperations counts operations whose status is in statuses.
func (s *Store) CountOperations(ctx context.Context, statuses ...string) (int, error) {
	if err := s.checkReady(); err != nil {
		return 0, err
	}
	if len(statuses) == 0 {
		return 0, nil
	}

	placeholders := ""
	args := make([]interface{}, len(statuses))
	for i, st := range statuses {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args[i] = st
	}

	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM pending_operations WHERE status IN (%s)", placeholders)
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to count operations", err)
	}
	return count, nil
}

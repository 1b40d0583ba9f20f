// Package queue provides the durable queue of pending offline mutations.
//
// The queue is a typed wrapper over the durable local store. Entries are
// replayed in ascending enqueue-timestamp order; entries are only ever
// mutated in status and retry count, and deleted exactly when their
// replay fully succeeded.
package queue

import (
	"context"
	"time"

	"github.com/tableside/pos/internal/db"
	"github.com/tableside/pos/internal/logging"
	"github.com/tableside/pos/internal/models"
	"github.com/tableside/pos/internal/uuid"
)

// Queue manages pending offline mutations on top of the durable store.
type Queue struct {
	store *db.Store
}

// NewQueue creates a queue over an initialized store.
func NewQueue(store *db.Store) *Queue {
	return &Queue{store: store}
}

// Enqueue persists a mutation intent and returns its generated id.
// Persistence failures propagate; nothing is enqueued silently.
func (q *Queue) Enqueue(ctx context.Context, p Payload) (string, error) {
	raw, err := MarshalPayload(p)
	if err != nil {
		return "", err
	}

	op := models.PendingOperation{
		ID:         uuid.NewLocal(),
		Kind:       string(p.Kind()),
		Payload:    raw,
		Timestamp:  time.Now().UnixMilli(),
		Status:     string(StatusPending),
		RetryCount: 0,
	}

	if err := q.store.InsertOperation(ctx, &op); err != nil {
		return "", err
	}

	logging.Info("enqueued offline operation",
		map[string]interface{}{"op_id": op.ID, "kind": op.Kind})

	return op.ID, nil
}

// ListPendingOrFailed returns all entries awaiting replay, ordered
// ascending by enqueue time. Entries currently marked syncing are
// excluded: the single-drain guarantee means exactly one sync pass owns
// them.
func (q *Queue) ListPendingOrFailed(ctx context.Context) ([]models.PendingOperation, error) {
	return q.store.ListOperations(ctx, string(StatusPending), string(StatusFailed))
}

// MarkStatus updates an entry's status and retry count. Marking an entry
// that no longer exists is a tolerated no-op; a concurrent successful
// replay may have removed it.
func (q *Queue) MarkStatus(ctx context.Context, id string, status Status, retryCount int) error {
	return q.store.UpdateOperationStatus(ctx, id, string(status), retryCount)
}

// Remove deletes an entry; idempotent.
func (q *Queue) Remove(ctx context.Context, id string) error {
	return q.store.DeleteOperation(ctx, id)
}

// HasOutstanding reports whether any entry is pending or failed. Feeds
// the "pending changes" indicator.
func (q *Queue) HasOutstanding(ctx context.Context) (bool, error) {
	count, err := q.store.CountOperations(ctx, string(StatusPending), string(StatusFailed))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RequeueStale resets entries stranded in syncing back to pending,
// keeping their retry counts. A process that dies mid-drain leaves its
// in-flight entry marked syncing; without this reset the entry would be
// invisible to listing forever. Only safe while no drain is in flight —
// the engine calls it under its single-flight guard.
func (q *Queue) RequeueStale(ctx context.Context) (int, error) {
	stale, err := q.store.ListOperations(ctx, string(StatusSyncing))
	if err != nil {
		return 0, err
	}

	count := 0
	for _, op := range stale {
		if err := q.store.UpdateOperationStatus(ctx, op.ID, string(StatusPending), op.RetryCount); err != nil {
			return count, err
		}
		count++
	}

	if count > 0 {
		logging.Warn("requeued operations left by an interrupted sync",
			map[string]interface{}{"count": count})
	}
	return count, nil
}

// RetryFailed resets all failed entries to pending with a zeroed retry
// count. Returns the number of entries reset.
func (q *Queue) RetryFailed(ctx context.Context) (int, error) {
	failed, err := q.store.ListOperations(ctx, string(StatusFailed))
	if err != nil {
		return 0, err
	}

	count := 0
	for _, op := range failed {
		if err := q.store.UpdateOperationStatus(ctx, op.ID, string(StatusPending), 0); err != nil {
			return count, err
		}
		count++
	}

	if count > 0 {
		logging.Info("reset failed operations for retry",
			map[string]interface{}{"count": count})
	}
	return count, nil
}

// ClearFailed permanently discards all failed entries. The manual escape
// hatch for entries that can never succeed, e.g. an unsupported kind.
func (q *Queue) ClearFailed(ctx context.Context) (int, error) {
	failed, err := q.store.ListOperations(ctx, string(StatusFailed))
	if err != nil {
		return 0, err
	}

	count := 0
	for _, op := range failed {
		if err := q.store.DeleteOperation(ctx, op.ID); err != nil {
			return count, err
		}
		count++
	}

	if count > 0 {
		logging.Warn("discarded failed operations",
			map[string]interface{}{"count": count})
	}
	return count, nil
}

// Package queue provides unit tests for the durable operation queue.
package queue

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tableside/pos/internal/db"
	"github.com/tableside/pos/internal/models"
	"github.com/tableside/pos/internal/uuid"
)

// newTestQueue creates a queue on a fresh on-disk store.
func newTestQueue(t *testing.T) *Queue {
	t.Helper()

	database, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	store := db.NewStore(database)
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("Failed to initialize store: %v", err)
	}
	return NewQueue(store)
}

// TestEnqueue verifies entry synthesis: local id, pending status, zero
// retries, payload snapshot.
func TestEnqueue(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	order := models.Order{
		ID:          models.UUID(uuid.NewLocal()),
		TableNumber: 7,
		Status:      models.OrderStatusOpen,
		Total:       decimal.RequireFromString("18.00"),
	}

	id, err := q.Enqueue(ctx, CreateOrderPayload{Order: order})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if !uuid.IsLocal(id) {
		t.Errorf("Enqueue returned id %q, want local id format", id)
	}

	entries, err := q.ListPendingOrFailed(ctx)
	if err != nil {
		t.Fatalf("ListPendingOrFailed failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}

	entry := entries[0]
	if entry.ID != id {
		t.Errorf("entry id = %s, want %s", entry.ID, id)
	}
	if entry.Kind != string(KindCreateOrder) {
		t.Errorf("kind = %s, want CreateOrder", entry.Kind)
	}
	if entry.Status != string(StatusPending) {
		t.Errorf("status = %s, want pending", entry.Status)
	}
	if entry.RetryCount != 0 {
		t.Errorf("retry count = %d, want 0", entry.RetryCount)
	}
	if entry.Timestamp == 0 {
		t.Error("timestamp not set")
	}

	// Payload must reconstruct the original arguments.
	p, err := UnmarshalPayload(Kind(entry.Kind), entry.Payload)
	if err != nil {
		t.Fatalf("UnmarshalPayload failed: %v", err)
	}
	create, ok := p.(CreateOrderPayload)
	if !ok {
		t.Fatalf("payload type = %T, want CreateOrderPayload", p)
	}
	if create.Order.ID != order.ID || create.Order.TableNumber != 7 {
		t.Errorf("payload order = %+v", create.Order)
	}
	if !create.Order.Total.Equal(order.Total) {
		t.Errorf("payload total = %s, want %s", create.Order.Total, order.Total)
	}
}

// TestListPendingOrFailedExcludesSyncing verifies syncing entries are not
// handed out again.
func TestListPendingOrFailedExcludesSyncing(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	first, err := q.Enqueue(ctx, DeleteOrderPayload{ID: "o1"})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	second, err := q.Enqueue(ctx, DeleteOrderPayload{ID: "o2"})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if err := q.MarkStatus(ctx, first, StatusSyncing, 0); err != nil {
		t.Fatalf("MarkStatus failed: %v", err)
	}

	entries, err := q.ListPendingOrFailed(ctx)
	if err != nil {
		t.Fatalf("ListPendingOrFailed failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != second {
		t.Errorf("entries = %+v, want only the pending entry %s", entries, second)
	}
}

// TestMarkStatusMissingEntry verifies marking a removed entry is tolerated.
func TestMarkStatusMissingEntry(t *testing.T) {
	q := newTestQueue(t)

	if err := q.MarkStatus(context.Background(), "gone", StatusFailed, 1); err != nil {
		t.Errorf("MarkStatus on missing entry: got %v, want nil", err)
	}
}

// TestHasOutstanding verifies the pending-changes indicator across the
// entry lifecycle.
func TestHasOutstanding(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	outstanding, err := q.HasOutstanding(ctx)
	if err != nil {
		t.Fatalf("HasOutstanding failed: %v", err)
	}
	if outstanding {
		t.Error("HasOutstanding = true on empty queue")
	}

	id, err := q.Enqueue(ctx, DeleteOrderPayload{ID: "o1"})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if outstanding, _ = q.HasOutstanding(ctx); !outstanding {
		t.Error("HasOutstanding = false with a pending entry")
	}

	if err := q.MarkStatus(ctx, id, StatusFailed, 1); err != nil {
		t.Fatalf("MarkStatus failed: %v", err)
	}
	if outstanding, _ = q.HasOutstanding(ctx); !outstanding {
		t.Error("HasOutstanding = false with a failed entry")
	}

	if err := q.Remove(ctx, id); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if outstanding, _ = q.HasOutstanding(ctx); outstanding {
		t.Error("HasOutstanding = true after last entry removed")
	}
}

// TestRetryFailed verifies failed entries reset to pending with zeroed
// retry counts.
func TestRetryFailed(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, DeleteOrderPayload{ID: "o1"})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := q.MarkStatus(ctx, id, StatusFailed, 4); err != nil {
		t.Fatalf("MarkStatus failed: %v", err)
	}

	count, err := q.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if count != 1 {
		t.Errorf("RetryFailed reset %d entries, want 1", count)
	}

	entries, _ := q.ListPendingOrFailed(ctx)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Status != string(StatusPending) || entries[0].RetryCount != 0 {
		t.Errorf("entry after reset = %+v", entries[0])
	}
}

// TestClearFailed verifies failed entries are discarded and pending ones
// kept.
func TestClearFailed(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	failedID, err := q.Enqueue(ctx, DeleteOrderPayload{ID: "o1"})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	pendingID, err := q.Enqueue(ctx, DeleteOrderPayload{ID: "o2"})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := q.MarkStatus(ctx, failedID, StatusFailed, 2); err != nil {
		t.Fatalf("MarkStatus failed: %v", err)
	}

	count, err := q.ClearFailed(ctx)
	if err != nil {
		t.Fatalf("ClearFailed failed: %v", err)
	}
	if count != 1 {
		t.Errorf("ClearFailed discarded %d entries, want 1", count)
	}

	entries, _ := q.ListPendingOrFailed(ctx)
	if len(entries) != 1 || entries[0].ID != pendingID {
		t.Errorf("entries = %+v, want only %s", entries, pendingID)
	}
}

// TestRequeueStale verifies entries left in syncing by an interrupted
// drain are reset to pending with their retry counts intact.
func TestRequeueStale(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	staleID, err := q.Enqueue(ctx, DeleteOrderPayload{ID: "o1"})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	pendingID, err := q.Enqueue(ctx, DeleteOrderPayload{ID: "o2"})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := q.MarkStatus(ctx, staleID, StatusSyncing, 2); err != nil {
		t.Fatalf("MarkStatus failed: %v", err)
	}

	count, err := q.RequeueStale(ctx)
	if err != nil {
		t.Fatalf("RequeueStale failed: %v", err)
	}
	if count != 1 {
		t.Errorf("RequeueStale reset %d entries, want 1", count)
	}

	entries, err := q.ListPendingOrFailed(ctx)
	if err != nil {
		t.Fatalf("ListPendingOrFailed failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	for _, e := range entries {
		if e.ID == staleID {
			if e.Status != string(StatusPending) {
				t.Errorf("requeued status = %s, want pending", e.Status)
			}
			if e.RetryCount != 2 {
				t.Errorf("requeued retry_count = %d, want 2 (preserved)", e.RetryCount)
			}
		}
		if e.ID == pendingID && e.Status != string(StatusPending) {
			t.Errorf("untouched entry status = %s, want pending", e.Status)
		}
	}
}

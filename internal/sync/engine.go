// Package sync drains the pending-operation queue against the remote
// system of record.
//
// A drain replays queued mutations strictly in enqueue order, one at a
// time: order-item mutations read-then-write the parent order's total,
// and concurrent replay of two items on the same order would race on
// that read-modify-write. Failures are isolated per entry; one failing
// mutation never blocks or rolls back the others.
package sync

import (
	"context"
	"fmt"
	stdsync "sync"

	"github.com/shopspring/decimal"

	apperrors "github.com/tableside/pos/internal/errors"
	"github.com/tableside/pos/internal/logging"
	"github.com/tableside/pos/internal/models"
	"github.com/tableside/pos/internal/queue"
	"github.com/tableside/pos/internal/remote"
)

// Status is a pulse emitted to subscribers around a drain.
type Status string

const (
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
	StatusError   Status = "error"
)

// retryWarnThreshold is where unbounded retrying starts getting loud.
// Retries are never capped; entries past this point likely need
// RetryFailed after a fix, or ClearFailed.
const retryWarnThreshold = 5

// Engine replays queued offline mutations against the remote system.
type Engine struct {
	queue  *queue.Queue
	remote remote.Client

	mu          stdsync.Mutex
	draining    bool
	subscribers map[int]func(Status)
	nextSubID   int
}

// NewEngine creates a sync engine over the queue and remote client.
func NewEngine(q *queue.Queue, rc remote.Client) *Engine {
	return &Engine{
		queue:       q,
		remote:      rc,
		subscribers: make(map[int]func(Status)),
	}
}

// OnStatusChange registers a status subscriber and returns its
// unsubscribe function.
func (e *Engine) OnStatusChange(fn func(Status)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSubID
	e.nextSubID++
	e.subscribers[id] = fn

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subscribers, id)
	}
}

// notify delivers a status pulse to all subscribers.
func (e *Engine) notify(s Status) {
	e.mu.Lock()
	fns := make([]func(Status), 0, len(e.subscribers))
	for _, fn := range e.subscribers {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// Draining reports whether a drain is currently in progress.
func (e *Engine) Draining() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draining
}

// Drain replays all pending and failed entries in enqueue order. If a
// drain is already in progress the call returns immediately; the next
// trigger picks up whatever this pass leaves behind. The guard is always
// cleared on exit.
func (e *Engine) Drain(ctx context.Context) error {
	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		return nil
	}
	e.draining = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.draining = false
		e.mu.Unlock()
	}()

	e.notify(StatusSyncing)

	// A crash between the syncing mark and the success/failure mark
	// strands the entry in syncing, invisible to the listing. Inside
	// the guard no other pass can own such entries, so requeue them
	// before listing.
	if _, err := e.queue.RequeueStale(ctx); err != nil {
		logging.ErrorWithCode("failed to requeue interrupted operations",
			string(apperrors.ErrSyncFailed), err)
		e.notify(StatusError)
		return err
	}

	entries, err := e.queue.ListPendingOrFailed(ctx)
	if err != nil {
		logging.ErrorWithCode("failed to list queued operations",
			string(apperrors.ErrSyncFailed), err)
		e.notify(StatusError)
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	logging.Info("draining queued operations",
		map[string]interface{}{"count": len(entries)})

	for _, entry := range entries {
		if err := e.queue.MarkStatus(ctx, entry.ID, queue.StatusSyncing, entry.RetryCount); err != nil {
			logging.Warn("failed to mark operation syncing",
				map[string]interface{}{"op_id": entry.ID, "error": err.Error()})
		}

		if err := e.replay(ctx, entry); err != nil {
			retries := entry.RetryCount + 1
			if markErr := e.queue.MarkStatus(ctx, entry.ID, queue.StatusFailed, retries); markErr != nil {
				logging.Warn("failed to mark operation failed",
					map[string]interface{}{"op_id": entry.ID, "error": markErr.Error()})
			}
			logging.ErrorWithCode("replay failed", string(apperrors.CodeOf(err)), err,
				map[string]interface{}{"op_id": entry.ID, "kind": entry.Kind, "retry_count": retries})
			if retries >= retryWarnThreshold {
				logging.Warn("operation keeps failing",
					map[string]interface{}{"op_id": entry.ID, "kind": entry.Kind, "retry_count": retries})
			}
			continue
		}

		if err := e.queue.Remove(ctx, entry.ID); err != nil {
			logging.Warn("failed to remove replayed operation",
				map[string]interface{}{"op_id": entry.ID, "error": err.Error()})
		}
	}

	e.notify(StatusSynced)
	return nil
}

// replay decodes one queued mutation and applies it.
func (e *Engine) replay(ctx context.Context, op models.PendingOperation) error {
	payload, err := queue.UnmarshalPayload(queue.Kind(op.Kind), op.Payload)
	if err != nil {
		return err
	}
	return e.Apply(ctx, payload)
}

// Apply executes one mutation against the remote system. The dispatcher
// uses it directly for the online path; replay routes queued entries
// through it so both paths share the same per-kind semantics.
func (e *Engine) Apply(ctx context.Context, payload queue.Payload) error {
	switch p := payload.(type) {
	case queue.CreateOrderPayload:
		return e.replayCreateOrder(ctx, p)
	case queue.UpdateOrderPayload:
		return e.remote.Update(ctx, remote.CollectionOrders, remote.Filter{"id": p.ID.String()}, p.Patch)
	case queue.DeleteOrderPayload:
		return e.remote.Delete(ctx, remote.CollectionOrders, remote.Filter{"id": p.ID.String()})
	case queue.CreateOrderItemPayload:
		return e.replayCreateOrderItem(ctx, p)
	case queue.UpdateOrderItemPayload:
		return e.replayUpdateOrderItem(ctx, p)
	case queue.DeleteOrderItemPayload:
		return e.replayDeleteOrderItem(ctx, p)
	case queue.SubmitPaymentPayload:
		return e.replaySubmitPayment(ctx, p)
	default:
		return apperrors.New(apperrors.ErrUnsupportedOperation,
			fmt.Sprintf("no handler for kind %q", payload.Kind()))
	}
}

// replayCreateOrder inserts the order, then its line items as a batch.
// If the order insert fails nothing else is attempted; if the items
// insert fails the order row stays (best effort, no compensating
// rollback).
func (e *Engine) replayCreateOrder(ctx context.Context, p queue.CreateOrderPayload) error {
	if err := e.remote.Insert(ctx, remote.CollectionOrders, p.Order); err != nil {
		return err
	}
	if len(p.Items) > 0 {
		if err := e.remote.Insert(ctx, remote.CollectionOrderItems, p.Items); err != nil {
			return err
		}
	}
	return nil
}

// replayCreateOrderItem inserts the item, then folds its subtotal into
// the parent order's current total. The read-then-write is not a remote
// transaction; a given order is edited by a single waiter, so no
// concurrent writer is assumed during sync.
func (e *Engine) replayCreateOrderItem(ctx context.Context, p queue.CreateOrderItemPayload) error {
	if err := e.remote.Insert(ctx, remote.CollectionOrderItems, p.Item); err != nil {
		return err
	}

	order, err := e.fetchOrder(ctx, p.Item.OrderID)
	if err != nil {
		return err
	}

	return e.writeOrderTotal(ctx, p.Item.OrderID, order.Total.Add(p.Item.Subtotal()))
}

// replayUpdateOrderItem reads the item's prior price and quantity before
// applying the update, then adjusts the parent total by
// price × (newQty − oldQty).
func (e *Engine) replayUpdateOrderItem(ctx context.Context, p queue.UpdateOrderItemPayload) error {
	prior, err := e.fetchOrderItem(ctx, p.ID)
	if err != nil {
		return err
	}

	delta := prior.Price.Mul(decimal.NewFromInt(int64(p.Quantity) - int64(prior.Quantity)))

	patch := map[string]interface{}{"quantity": p.Quantity}
	if p.Notes != nil {
		patch["notes"] = *p.Notes
	}
	if err := e.remote.Update(ctx, remote.CollectionOrderItems, remote.Filter{"id": p.ID.String()}, patch); err != nil {
		return err
	}

	order, err := e.fetchOrder(ctx, p.OrderID)
	if err != nil {
		return err
	}

	return e.writeOrderTotal(ctx, p.OrderID, order.Total.Add(delta))
}

// replayDeleteOrderItem captures the item's contribution, deletes it,
// then subtracts the contribution from the parent total.
func (e *Engine) replayDeleteOrderItem(ctx context.Context, p queue.DeleteOrderItemPayload) error {
	prior, err := e.fetchOrderItem(ctx, p.ID)
	if err != nil {
		return err
	}

	if err := e.remote.Delete(ctx, remote.CollectionOrderItems, remote.Filter{"id": p.ID.String()}); err != nil {
		return err
	}

	order, err := e.fetchOrder(ctx, p.OrderID)
	if err != nil {
		return err
	}

	return e.writeOrderTotal(ctx, p.OrderID, order.Total.Sub(prior.Subtotal()))
}

// replaySubmitPayment uploads evidence captured offline, then inserts
// the payment row. The order's status transition to paid happens only in
// the online path; a payment replayed from the queue leaves the cached
// order status stale until the next refresh.
func (e *Engine) replaySubmitPayment(ctx context.Context, p queue.SubmitPaymentPayload) error {
	payment := p.Payment

	if len(p.Evidence) > 0 && payment.EvidenceURL == "" {
		path := fmt.Sprintf("payments/%s%s", payment.ID, evidenceExt(p.EvidenceType))
		url, err := e.remote.Upload(ctx, remote.EvidenceBucket, path, p.Evidence, p.EvidenceType)
		if err != nil {
			return err
		}
		payment.EvidenceURL = url
	}

	return e.remote.Insert(ctx, remote.CollectionPayments, payment)
}

// fetchOrder reads one order by id from the remote system.
func (e *Engine) fetchOrder(ctx context.Context, id models.UUID) (models.Order, error) {
	var orders []models.Order
	if err := e.remote.Select(ctx, remote.CollectionOrders, remote.Filter{"id": id.String()}, &orders); err != nil {
		return models.Order{}, err
	}
	if len(orders) == 0 {
		return models.Order{}, apperrors.New(apperrors.ErrOrderNotFound,
			fmt.Sprintf("order %s not found on remote", id))
	}
	return orders[0], nil
}

// fetchOrderItem reads one line item by id from the remote system.
func (e *Engine) fetchOrderItem(ctx context.Context, id models.UUID) (models.OrderItem, error) {
	var items []models.OrderItem
	if err := e.remote.Select(ctx, remote.CollectionOrderItems, remote.Filter{"id": id.String()}, &items); err != nil {
		return models.OrderItem{}, err
	}
	if len(items) == 0 {
		return models.OrderItem{}, apperrors.New(apperrors.ErrItemNotFound,
			fmt.Sprintf("order item %s not found on remote", id))
	}
	return items[0], nil
}

// writeOrderTotal writes back a recomputed order total.
func (e *Engine) writeOrderTotal(ctx context.Context, id models.UUID, total decimal.Decimal) error {
	return e.remote.Update(ctx, remote.CollectionOrders,
		remote.Filter{"id": id.String()},
		map[string]interface{}{"total": total})
}

// evidenceExt maps a content type to an object name extension.
func evidenceExt(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	default:
		return ".bin"
	}
}

// Package dispatcher is the single entry point for order and payment
// mutations. It hides the online/offline branch from callers: online,
// mutations go straight to the remote system; offline, they are queued
// with a synthesized local result so the caller can proceed.
package dispatcher

import (
	"context"
	"path"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/tableside/pos/internal/db"
	apperrors "github.com/tableside/pos/internal/errors"
	"github.com/tableside/pos/internal/logging"
	"github.com/tableside/pos/internal/models"
	"github.com/tableside/pos/internal/queue"
	"github.com/tableside/pos/internal/remote"
	"github.com/tableside/pos/internal/uuid"
)

// OnlineChecker reports current reachability of the remote system.
type OnlineChecker interface {
	IsOnline() bool
}

// Applier executes mutations against the remote system and drains the
// pending queue.
type Applier interface {
	Apply(ctx context.Context, p queue.Payload) error
	Drain(ctx context.Context) error
}

// Dispatcher routes each mutation either directly to the remote system
// or into the durable queue, depending on connectivity at call time. An
// online failure is a real failure: it is returned to the caller, never
// silently converted into a queue entry.
type Dispatcher struct {
	checker OnlineChecker
	engine  Applier
	queue   *queue.Queue
	remote  remote.Client
	store   *db.Store
}

// NewDispatcher creates a dispatcher over the given collaborators.
func NewDispatcher(checker OnlineChecker, engine Applier, q *queue.Queue, rc remote.Client, store *db.Store) *Dispatcher {
	return &Dispatcher{
		checker: checker,
		engine:  engine,
		queue:   q,
		remote:  rc,
		store:   store,
	}
}

// CreateOrder creates an order with its initial line items. Ids are
// client-generated in both paths; offline ids carry a timestamp prefix
// so their origin is recognizable.
func (d *Dispatcher) CreateOrder(ctx context.Context, order models.Order, items []models.OrderItem) (models.Order, []models.OrderItem, error) {
	online := d.checker.IsOnline()
	now := time.Now().Unix()

	if order.ID == "" {
		order.ID = models.UUID(d.newID(online))
	}
	if order.Status == "" {
		order.Status = models.OrderStatusOpen
	}
	order.CreatedAt = now
	order.UpdatedAt = now

	total := decimal.Zero
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = models.UUID(d.newID(online))
		}
		items[i].OrderID = order.ID
		items[i].CreatedAt = now
		total = total.Add(items[i].Subtotal())
	}
	if order.Total.IsZero() {
		order.Total = total
	}

	payload := queue.CreateOrderPayload{Order: order, Items: items}

	if online {
		if err := d.engine.Apply(ctx, payload); err != nil {
			return models.Order{}, nil, err
		}
		return order, items, nil
	}

	if _, err := d.queue.Enqueue(ctx, payload); err != nil {
		return models.Order{}, nil, err
	}
	return order, items, nil
}

// UpdateOrder patches an order by id.
func (d *Dispatcher) UpdateOrder(ctx context.Context, id models.UUID, patch queue.OrderPatch) error {
	payload := queue.UpdateOrderPayload{ID: id, Patch: patch}

	if d.checker.IsOnline() {
		return d.engine.Apply(ctx, payload)
	}
	_, err := d.queue.Enqueue(ctx, payload)
	return err
}

// DeleteOrder deletes an order by id.
func (d *Dispatcher) DeleteOrder(ctx context.Context, id models.UUID) error {
	payload := queue.DeleteOrderPayload{ID: id}

	if d.checker.IsOnline() {
		return d.engine.Apply(ctx, payload)
	}
	_, err := d.queue.Enqueue(ctx, payload)
	return err
}

// CreateOrderItem adds a line item to an order. The online path also
// folds the item's subtotal into the parent order's total.
func (d *Dispatcher) CreateOrderItem(ctx context.Context, item models.OrderItem) (models.OrderItem, error) {
	online := d.checker.IsOnline()

	if item.ID == "" {
		item.ID = models.UUID(d.newID(online))
	}
	item.CreatedAt = time.Now().Unix()

	payload := queue.CreateOrderItemPayload{Item: item}

	if online {
		if err := d.engine.Apply(ctx, payload); err != nil {
			return models.OrderItem{}, err
		}
		return item, nil
	}

	if _, err := d.queue.Enqueue(ctx, payload); err != nil {
		return models.OrderItem{}, err
	}
	return item, nil
}

// UpdateOrderItem changes a line item's quantity and, optionally, notes.
func (d *Dispatcher) UpdateOrderItem(ctx context.Context, id, orderID models.UUID, quantity int, notes *string) error {
	payload := queue.UpdateOrderItemPayload{
		ID:       id,
		OrderID:  orderID,
		Quantity: quantity,
		Notes:    notes,
	}

	if d.checker.IsOnline() {
		return d.engine.Apply(ctx, payload)
	}
	_, err := d.queue.Enqueue(ctx, payload)
	return err
}

// DeleteOrderItem removes a line item from an order.
func (d *Dispatcher) DeleteOrderItem(ctx context.Context, id, orderID models.UUID) error {
	payload := queue.DeleteOrderItemPayload{ID: id, OrderID: orderID}

	if d.checker.IsOnline() {
		return d.engine.Apply(ctx, payload)
	}
	_, err := d.queue.Enqueue(ctx, payload)
	return err
}

// SubmitPayment records a payment against an order. Online, the evidence
// image is uploaded first and the order is marked paid. Offline, the
// evidence bytes are snapshotted into the queued payload and the order
// status is left alone until the next refresh after sync.
func (d *Dispatcher) SubmitPayment(ctx context.Context, payment models.Payment, evidence []byte, evidenceType string) (models.Payment, error) {
	online := d.checker.IsOnline()

	if payment.ID == "" {
		payment.ID = models.UUID(d.newID(online))
	}
	payment.CreatedAt = time.Now().Unix()

	if !online {
		payload := queue.SubmitPaymentPayload{
			Payment:      payment,
			Evidence:     evidence,
			EvidenceType: evidenceType,
		}
		if _, err := d.queue.Enqueue(ctx, payload); err != nil {
			return models.Payment{}, err
		}
		return payment, nil
	}

	if len(evidence) > 0 && payment.EvidenceURL == "" {
		url, err := d.remote.Upload(ctx, remote.EvidenceBucket,
			path.Join("payments", payment.ID.String()+evidenceExt(evidenceType)),
			evidence, evidenceType)
		if err != nil {
			return models.Payment{}, err
		}
		payment.EvidenceURL = url
	}

	if err := d.engine.Apply(ctx, queue.SubmitPaymentPayload{Payment: payment}); err != nil {
		return models.Payment{}, err
	}

	// The paid transition belongs to the online path only.
	if err := d.remote.Update(ctx, remote.CollectionOrders,
		remote.Filter{"id": payment.OrderID.String()},
		map[string]interface{}{"status": models.OrderStatusPaid}); err != nil {
		return models.Payment{}, err
	}

	return payment, nil
}

// TriggerSync drains the pending queue now, independent of the
// connectivity monitor's automatic trigger.
func (d *Dispatcher) TriggerSync(ctx context.Context) error {
	return d.engine.Drain(ctx)
}

// Orders returns the order list: from the remote system when online
// (refreshing the cache), from the last-known-good cache otherwise.
func (d *Dispatcher) Orders(ctx context.Context) ([]models.Order, error) {
	if !d.checker.IsOnline() {
		return cachedAll[models.Order](ctx, d.store, db.CollectionOrders)
	}

	var orders []models.Order
	if err := d.remote.Select(ctx, remote.CollectionOrders, nil, &orders); err != nil {
		return nil, err
	}

	records := make([]db.Record, len(orders))
	for i, o := range orders {
		records[i] = db.Record{ID: o.ID.String(), Value: o}
	}
	if err := d.store.PutMany(ctx, db.CollectionOrders, records); err != nil {
		logging.Warn("failed to refresh order cache",
			map[string]interface{}{"error": err.Error()})
	}
	return orders, nil
}

// Menu returns the menu: from the remote system when online (refreshing
// the cache), from the last-known-good cache otherwise.
func (d *Dispatcher) Menu(ctx context.Context) ([]models.MenuItem, error) {
	if !d.checker.IsOnline() {
		return cachedAll[models.MenuItem](ctx, d.store, db.CollectionMenuItems)
	}

	var items []models.MenuItem
	if err := d.remote.Select(ctx, remote.CollectionMenu, nil, &items); err != nil {
		return nil, err
	}

	records := make([]db.Record, len(items))
	for i, m := range items {
		records[i] = db.Record{ID: m.ID.String(), Value: m}
	}
	if err := d.store.PutMany(ctx, db.CollectionMenuItems, records); err != nil {
		logging.Warn("failed to refresh menu cache",
			map[string]interface{}{"error": err.Error()})
	}
	return items, nil
}

// cachedAll decodes a whole cached collection.
func cachedAll[T any](ctx context.Context, store *db.Store, collection string) ([]T, error) {
	raws, err := store.GetAll(ctx, collection)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "corrupt cached record", err)
		}
		out = append(out, v)
	}
	return out, nil
}

// newID generates a client id. Offline ids carry a millisecond timestamp
// prefix so replayed rows are traceable to their enqueue time.
func (d *Dispatcher) newID(online bool) string {
	if online {
		return uuid.New()
	}
	return uuid.NewLocal()
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

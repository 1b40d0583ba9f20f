// Package queue provides the durable queue of pending offline mutations.
package queue

import (
	"fmt"

	json "github.com/goccy/go-json"

	apperrors "github.com/tableside/pos/internal/errors"
	"github.com/tableside/pos/internal/models"
)

// Kind identifies what a queued mutation does when replayed.
type Kind string

const (
	KindCreateOrder     Kind = "CreateOrder"
	KindUpdateOrder     Kind = "UpdateOrder"
	KindDeleteOrder     Kind = "DeleteOrder"
	KindCreateOrderItem Kind = "CreateOrderItem"
	KindUpdateOrderItem Kind = "UpdateOrderItem"
	KindDeleteOrderItem Kind = "DeleteOrderItem"
	KindSubmitPayment   Kind = "SubmitPayment"
)

// Status is the lifecycle state of a queued mutation. There is no
// terminal success status: a successfully replayed entry is deleted.
type Status string

const (
	StatusPending Status = "pending"
	StatusSyncing Status = "syncing"
	StatusFailed  Status = "failed"
)

// Payload is a kind-specific snapshot of a mutation's arguments, taken at
// enqueue time. One concrete variant exists per Kind so the sync engine's
// dispatch is exhaustive at compile time.
type Payload interface {
	Kind() Kind
}

// CreateOrderPayload inserts an order, optionally with its line items.
type CreateOrderPayload struct {
	Order models.Order       `json:"order"`
	Items []models.OrderItem `json:"items,omitempty"`
}

func (CreateOrderPayload) Kind() Kind { return KindCreateOrder }

// OrderPatch carries the order fields an update may change. Nil fields
// are left untouched.
type OrderPatch struct {
	TableNumber  *int    `json:"table_number,omitempty"`
	CustomerName *string `json:"customer_name,omitempty"`
	Status       *string `json:"status,omitempty"`
	Notes        *string `json:"notes,omitempty"`
}

// UpdateOrderPayload patches an order by id.
type UpdateOrderPayload struct {
	ID    models.UUID `json:"id"`
	Patch OrderPatch  `json:"patch"`
}

func (UpdateOrderPayload) Kind() Kind { return KindUpdateOrder }

// DeleteOrderPayload deletes an order by id.
type DeleteOrderPayload struct {
	ID models.UUID `json:"id"`
}

func (DeleteOrderPayload) Kind() Kind { return KindDeleteOrder }

// CreateOrderItemPayload inserts a line item; replay folds its subtotal
// into the parent order's total.
type CreateOrderItemPayload struct {
	Item models.OrderItem `json:"item"`
}

func (CreateOrderItemPayload) Kind() Kind { return KindCreateOrderItem }

// UpdateOrderItemPayload changes a line item's quantity (and notes);
// replay adjusts the parent order's total by the quantity delta priced at
// the item's remote price.
type UpdateOrderItemPayload struct {
	ID       models.UUID `json:"id"`
	OrderID  models.UUID `json:"order_id"`
	Quantity int         `json:"quantity"`
	Notes    *string     `json:"notes,omitempty"`
}

func (UpdateOrderItemPayload) Kind() Kind { return KindUpdateOrderItem }

// DeleteOrderItemPayload removes a line item; replay subtracts its
// contribution from the parent order's total.
type DeleteOrderItemPayload struct {
	ID      models.UUID `json:"id"`
	OrderID models.UUID `json:"order_id"`
}

func (DeleteOrderItemPayload) Kind() Kind { return KindDeleteOrderItem }

// SubmitPaymentPayload records a payment. Evidence bytes captured offline
// are uploaded during replay, before the payment row is inserted.
type SubmitPaymentPayload struct {
	Payment      models.Payment `json:"payment"`
	Evidence     []byte         `json:"evidence,omitempty"`
	EvidenceType string         `json:"evidence_type,omitempty"`
}

func (SubmitPaymentPayload) Kind() Kind { return KindSubmitPayment }

// MarshalPayload encodes a payload for durable storage.
func MarshalPayload(p Payload) (json.RawMessage, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrQueue, "failed to encode payload", err)
	}
	return data, nil
}

// UnmarshalPayload decodes a stored payload according to its kind tag.
// An unrecognized kind yields an UNSUPPORTED_OPERATION error.
func UnmarshalPayload(kind Kind, raw json.RawMessage) (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch kind {
	case KindCreateOrder:
		var v CreateOrderPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case KindUpdateOrder:
		var v UpdateOrderPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case KindDeleteOrder:
		var v DeleteOrderPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case KindCreateOrderItem:
		var v CreateOrderItemPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case KindUpdateOrderItem:
		var v UpdateOrderItemPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case KindDeleteOrderItem:
		var v DeleteOrderItemPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case KindSubmitPayment:
		var v SubmitPaymentPayload
		err = json.Unmarshal(raw, &v)
		p = v
	default:
		return nil, apperrors.New(apperrors.ErrUnsupportedOperation,
			fmt.Sprintf("unknown operation kind %q", kind))
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrQueue, "failed to decode payload", err)
	}
	return p, nil
}

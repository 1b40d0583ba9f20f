// Package models provides data model definitions for the Tableside POS core.
package models

import "github.com/shopspring/decimal"

// Payment methods accepted by the confirmers.
const (
	PaymentMethodCash     = "cash"
	PaymentMethodTransfer = "transfer"
)

// Payment represents a recorded payment against an order.
type Payment struct {
	ID          UUID            `db:"id" json:"id"`
	OrderID     UUID            `db:"order_id" json:"order_id"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Method      string          `db:"method" json:"method"` // cash, transfer
	BankID      UUID            `db:"bank_id" json:"bank_id,omitempty"`
	EvidenceURL string          `db:"evidence_url" json:"evidence_url,omitempty"`
	ConfirmedBy string          `db:"confirmed_by" json:"confirmed_by,omitempty"`
	CreatedAt   int64           `db:"created_at" json:"created_at"`
}

// TableName returns the table name for Payment.
func (Payment) TableName() string {
	return "payments"
}

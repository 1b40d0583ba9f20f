// Package models provides data model definitions for the Tableside POS core.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order lifecycle statuses.
const (
	OrderStatusOpen      = "open"
	OrderStatusServed    = "served"
	OrderStatusPaid      = "paid"
	OrderStatusCancelled = "cancelled"
)

// Order represents a customer order.
type Order struct {
	ID           UUID            `db:"id" json:"id"`
	TableNumber  int             `db:"table_number" json:"table_number"`
	CustomerName string          `db:"customer_name" json:"customer_name,omitempty"`
	Status       string          `db:"status" json:"status"` // open, served, paid, cancelled
	Total        decimal.Decimal `db:"total" json:"total"`
	Notes        string          `db:"notes" json:"notes,omitempty"`
	CreatedBy    string          `db:"created_by" json:"created_by,omitempty"`
	CreatedAt    int64           `db:"created_at" json:"created_at"`
	UpdatedAt    int64           `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Order.
func (Order) TableName() string {
	return "orders"
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (o *Order) CreatedAtTime() time.Time {
	return time.Unix(o.CreatedAt, 0)
}

// Touch updates the UpdatedAt timestamp.
func (o *Order) Touch() {
	o.UpdatedAt = time.Now().Unix()
}

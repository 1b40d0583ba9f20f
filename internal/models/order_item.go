// Package models provides data model definitions for the Tableside POS core.
package models

import "github.com/shopspring/decimal"

// OrderItem represents a single line item on an order.
type OrderItem struct {
	ID         UUID            `db:"id" json:"id"`
	OrderID    UUID            `db:"order_id" json:"order_id"`
	MenuItemID UUID            `db:"menu_item_id" json:"menu_item_id"`
	Name       string          `db:"name" json:"name"`
	Price      decimal.Decimal `db:"price" json:"price"`
	Quantity   int             `db:"quantity" json:"quantity"`
	Notes      string          `db:"notes" json:"notes,omitempty"`
	CreatedAt  int64           `db:"created_at" json:"created_at"`
}

// TableName returns the table name for OrderItem.
func (OrderItem) TableName() string {
	return "order_items"
}

// Subtotal returns the item's contribution to the order total.
func (i *OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

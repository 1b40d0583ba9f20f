// Package models provides data model definitions for the Tableside POS core.
package models

import "github.com/shopspring/decimal"

// MenuItem represents an item on the restaurant menu.
type MenuItem struct {
	ID          UUID            `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description,omitempty"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Category    string          `db:"category" json:"category,omitempty"`
	ImageURL    string          `db:"image_url" json:"image_url,omitempty"`
	Available   bool            `db:"available" json:"available"`
	UpdatedAt   int64           `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for MenuItem.
func (MenuItem) TableName() string {
	return "menu_items"
}

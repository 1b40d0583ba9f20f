// Package remote provides the client for the remote system of record: a
// CRUD service with named resource collections, row-level authorization
// enforced server-side, and object storage for payment evidence images.
package remote

import "context"

// Remote collection names.
const (
	CollectionOrders     = "orders"
	CollectionOrderItems = "order_items"
	CollectionPayments   = "payments"
	CollectionMenu       = "menu"
	CollectionProfiles   = "profiles"
	CollectionBanks      = "banks"
)

// EvidenceBucket holds payment evidence images.
const EvidenceBucket = "payment-evidence"

// In marks a filter value as a membership predicate.
type In []interface{}

// Filter expresses equality/membership predicates over column values.
// A plain value means equality; an In value means membership.
type Filter map[string]interface{}

// Client is the narrow surface of the remote system this core consumes:
// no joins, no transactions across collections.
type Client interface {
	// Insert inserts one row (a struct) or several (a slice) into a collection.
	Insert(ctx context.Context, collection string, rows interface{}) error

	// Update patches all rows matching filter.
	Update(ctx context.Context, collection string, filter Filter, patch interface{}) error

	// Delete removes all rows matching filter.
	Delete(ctx context.Context, collection string, filter Filter) error

	// Select reads all rows matching filter into dest (a pointer to slice).
	Select(ctx context.Context, collection string, filter Filter, dest interface{}) error

	// Upload stores an object and returns its public URL.
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error)
}

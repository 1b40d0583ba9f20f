// Package uuid provides identifier generation and validation utilities.
//
// Two identifier families exist: UUID v4 for entities the remote system
// creates, and local ids (millisecond timestamp plus random suffix) for
// entities created while offline. A local id becomes the permanent remote
// id once the queued mutation is replayed, so remote inserts must accept
// client-supplied primary keys.
package uuid

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// UUID v4 format: xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx
// where y is one of [8, 9, a, b] (variant bits)
var uuidV4Regex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// Local id format: <unix millis>-<8 hex chars>
var localIDRegex = regexp.MustCompile(`^\d{10,}-[0-9a-f]{8}$`)

// New generates a new UUID v4.
func New() string {
	return uuid.New().String()
}

// NewLocal generates a collision-resistant client-side id: the current
// Unix-millisecond timestamp joined with a random hex suffix. No central
// sequencer is involved, so two offline clients cannot contend.
func NewLocal() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.New().String()[:8])
}

// NewFromString creates a UUID from a string.
// Returns an error if the string is not a valid UUID v4.
func NewFromString(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid UUID: %w", err)
	}
	if id.Version() != 4 {
		return uuid.Nil, fmt.Errorf("expected UUID v4, got v%d", id.Version())
	}
	return id, nil
}

// IsValid checks if a string is a valid UUID v4.
// Enforces strict format with dashes and correct variant bits.
func IsValid(s string) bool {
	return uuidV4Regex.MatchString(s)
}

// IsLocal checks if a string is a locally generated id.
func IsLocal(s string) bool {
	return localIDRegex.MatchString(s)
}

// Validate returns an error if the string is not a valid UUID v4.
func Validate(s string) error {
	if !IsValid(s) {
		return fmt.Errorf("invalid UUID v4 format: %q", s)
	}
	return nil
}

package engine

import (
	"github.com/google/uuid"
)

// IDGenerator generates instance ids for lease ownership.
// Implemented by UUIDv7Generator (production) and testutil.FixedIDGenerator.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 instance ids.
//
// UUIDv7 embeds a timestamp in the most significant bits, so the lease
// holder recorded in the store also tells when that instance started.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

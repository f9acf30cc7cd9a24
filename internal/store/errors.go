package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidName is returned for collection names or keys the store refuses.
var ErrInvalidName = errors.New("invalid name")

// Error represents a store-unavailable failure: the database could not be
// opened, or a transaction failed.
//
// Callers are expected to degrade gracefully (treat as "no data").
type Error struct {
	// Op is the store operation ("open", "get", "put", ...).
	Op string

	// Collection and Key identify the affected record, when known.
	Collection string
	Key        string

	// Err is the underlying driver error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Collection != "" && e.Key != "":
		return fmt.Sprintf("store %s %s/%s: %v", e.Op, e.Collection, e.Key, e.Err)
	case e.Collection != "":
		return fmt.Sprintf("store %s %s: %v", e.Op, e.Collection, e.Err)
	default:
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsUnavailable returns true if err is a store failure.
// Uses errors.As to handle wrapped errors.
func IsUnavailable(err error) bool {
	var se *Error
	return errors.As(err, &se)
}

// isMissingTable reports whether err is SQLite's "no such table" error.
func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

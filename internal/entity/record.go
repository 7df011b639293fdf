// Package entity defines the entities and errors shared by the registry,
// its storage backends and the delivery layer.
package entity

import (
	"errors"
	"time"
)

var (
	// ErrCodeExists is returned by a storage backend when a record with the
	// requested code is already stored.
	ErrCodeExists = errors.New("code exists")
	// ErrRecordNotFound is returned by a storage backend when no record is
	// stored under the requested code.
	ErrRecordNotFound = errors.New("record not found")
)

// Record is a stored mapping from a short code to an opaque value.
type Record struct {
	Code       string    // Code is the short identifier the value is resolved by.
	Value      string    // Value is the payload supplied on allocation (a URL or pasted content).
	Owner      string    // Owner identifies the submitter. Empty means anonymous.
	VisitCount int64     // VisitCount is the number of successful resolutions.
	CreatedAt  time.Time // CreatedAt is the timestamp when the record was stored.
}

// Anonymous reports whether the record was stored without an owner.
func (r *Record) Anonymous() bool {
	return r.Owner == ""
}

// Package store persists collection consent records. Records are written
// whole: the state machine mutates an in-memory copy under the sequencer and
// the store swaps it in, so no reader ever observes a half-applied
// operation.
package store

import (
	"context"

	"consentry/internal/consent"
	"consentry/pkg/domain"
)

// Store is the persistence boundary for consent records.
//
// Implementations return sentinel errors (sentinel.ErrNotFound,
// sentinel.ErrConflict) for store facts; the service translates them into
// domain errors.
type Store interface {
	// Save inserts a new record. Fails with sentinel.ErrConflict when the
	// ID exists.
	Save(ctx context.Context, record *consent.CollectionConsent) error

	// Get returns a deep copy of the record.
	Get(ctx context.Context, id string) (*consent.CollectionConsent, error)

	// Update replaces the record state. The write is optimistic on Seq:
	// the stored sequence must be exactly one behind the incoming record.
	Update(ctx context.Context, record *consent.CollectionConsent) error

	// ListBySubject returns every record where the identity is the data
	// subject, for the subject-facing listing surface.
	ListBySubject(ctx context.Context, subject domain.Identity) ([]*consent.CollectionConsent, error)
}

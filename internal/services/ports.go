package services

import (
	"context"
	"iter"
	"time"

	"github.com/tbourn/go-autodaft/internal/domain"
)

// PreferenceStore is the engine's view of the preference repository.
type PreferenceStore interface {
	// ListActive returns preferences whose end date is strictly after now.
	ListActive(ctx context.Context, now time.Time) ([]domain.Preference, error)
	// DeleteExpired removes preferences whose end date is strictly before now
	// and returns how many rows were deleted.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ApplicationLedger records which (preference, listing) pairs were acted on.
// RecordIfNew must be a single atomic check-and-insert: it returns true only
// for the call that created the row.
type ApplicationLedger interface {
	RecordIfNew(ctx context.Context, preferenceID, listingRef string) (bool, error)
}

// ListingSource yields candidate listings for a query. The sequence is finite
// and consumed once; a non-nil error ends it.
type ListingSource interface {
	Search(ctx context.Context, c domain.Criteria) iter.Seq2[domain.Listing, error]
}

// Notifier delivers a message to a user address. Failures wrap
// domain.ErrDeliveryFailed.
type Notifier interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

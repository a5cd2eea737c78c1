package repo

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-autodaft/internal/domain"
)

// PreferenceStore adapts the preference functions to the engine's repository
// contract. Failures are wrapped with domain.ErrRepository.
type PreferenceStore struct {
	DB *gorm.DB
}

// ListActive returns the preferences active at now.
func (s PreferenceStore) ListActive(ctx context.Context, now time.Time) ([]domain.Preference, error) {
	prefs, err := ListActivePreferences(ctx, s.DB, now)
	if err != nil {
		return nil, fmt.Errorf("%w: list active preferences: %w", domain.ErrRepository, err)
	}
	return prefs, nil
}

// DeleteExpired removes the preferences expired at now.
func (s PreferenceStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := DeleteExpiredPreferences(ctx, s.DB, now)
	if err != nil {
		return 0, fmt.Errorf("%w: delete expired preferences: %w", domain.ErrRepository, err)
	}
	return n, nil
}

// Ledger adapts RecordApplication to the engine's ledger contract.
type Ledger struct {
	DB *gorm.DB
	// Now stamps new rows; defaults to time.Now.
	Now func() time.Time
}

// RecordIfNew reports whether the pair was inserted by this call.
func (l Ledger) RecordIfNew(ctx context.Context, preferenceID, listingRef string) (bool, error) {
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	inserted, err := RecordApplication(ctx, l.DB, preferenceID, listingRef, now())
	if err != nil {
		return false, fmt.Errorf("%w: record application: %w", domain.ErrRepository, err)
	}
	return inserted, nil
}

// ListPage returns a page of ledger rows and the total for a preference.
func (l Ledger) ListPage(ctx context.Context, preferenceID string, offset, limit int) ([]domain.Application, int64, error) {
	total, err := CountApplications(ctx, l.DB, preferenceID)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: count applications: %w", domain.ErrRepository, err)
	}
	if total == 0 {
		return []domain.Application{}, 0, nil
	}
	items, err := ListApplicationsPage(ctx, l.DB, preferenceID, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list applications: %w", domain.ErrRepository, err)
	}
	return items, total, nil
}

// Stats returns the ledger row count for a preference and the time of its
// most recent application.
func (l Ledger) Stats(ctx context.Context, preferenceID string) (int64, *time.Time, error) {
	n, last, err := ApplicationStats(ctx, l.DB, preferenceID)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: application stats: %w", domain.ErrRepository, err)
	}
	return n, last, nil
}

// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the application ledger: the dedup record
// of (preference, listing) pairs the engine has already acted on.
//
// Error semantics:
//   - RecordApplication never reports a duplicate as an error. The unique
//     (preference_id, listing_reference) index decides, inside a single
//     INSERT ... ON CONFLICT DO NOTHING, whether the row is new.
//   - On other DB errors (connectivity, missing table, etc.), the raw gorm
//     error is propagated.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-autodaft/internal/domain"
)

// ErrEmptyReference is returned when a ledger write is attempted without a
// preference id or listing reference.
var ErrEmptyReference = errors.New("preference id and listing reference are required")

// RecordApplication atomically inserts the (preferenceID, listingRef) pair.
// It returns true when this call created the row and false when the pair was
// already present. There is no read-before-write: concurrent callers for the
// same pair get exactly one true.
func RecordApplication(ctx context.Context, db *gorm.DB, preferenceID, listingRef string, now time.Time) (bool, error) {
	preferenceID = strings.TrimSpace(preferenceID)
	listingRef = strings.TrimSpace(listingRef)
	if preferenceID == "" || listingRef == "" {
		return false, ErrEmptyReference
	}

	app := &domain.Application{
		ID:               uuid.NewString(),
		PreferenceID:     preferenceID,
		ListingReference: listingRef,
		CreatedAt:        now.UTC(),
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "preference_id"}, {Name: "listing_reference"}},
			DoNothing: true,
		}).
		Create(app)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CountApplications returns the number of ledger rows for a preference.
func CountApplications(ctx context.Context, db *gorm.DB, preferenceID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Application{}).
		Where("preference_id = ?", preferenceID).
		Count(&n).Error
	return n, err
}

// ListApplicationsPage returns ledger rows for a preference ordered by
// creation time, using offset/limit pagination.
func ListApplicationsPage(ctx context.Context, db *gorm.DB, preferenceID string, offset, limit int) ([]domain.Application, error) {
	var out []domain.Application
	err := db.WithContext(ctx).
		Where("preference_id = ?", preferenceID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Preference
// model.
//
// The repository follows a "thin" approach: it performs persistence and simple
// query composition, leaving scheduling and matching rules to the services
// and scheduler packages. All timestamps are compared in UTC.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-autodaft/internal/domain"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// CreatePreference inserts p, assigning a UUID when p.ID is empty. The engine
// itself never creates preferences; this exists for the creation API and for
// seeding.
func CreatePreference(ctx context.Context, db *gorm.DB, p *domain.Preference) error {
	if strings.TrimSpace(p.ID) == "" {
		p.ID = uuid.NewString()
	}
	p.EndDate = p.EndDate.UTC()
	return db.WithContext(ctx).Create(p).Error
}

// GetPreference returns the preference with the given id or ErrNotFound.
func GetPreference(ctx context.Context, db *gorm.DB, id string) (*domain.Preference, error) {
	var p domain.Preference
	err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListActivePreferences returns every preference whose end_date is strictly
// after now, oldest first.
func ListActivePreferences(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.Preference, error) {
	var out []domain.Preference
	err := db.WithContext(ctx).
		Where("end_date > ?", now.UTC()).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// DeleteExpiredPreferences removes every preference whose end_date is strictly
// before now and reports how many rows were deleted. Running it again with the
// same now deletes nothing and is not an error.
//
// Ledger rows belonging to the deleted preferences are left in place.
func DeleteExpiredPreferences(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("end_date < ?", now.UTC()).
		Delete(&domain.Preference{})
	return res.RowsAffected, res.Error
}

// CountActivePreferences returns how many preferences are active at now.
func CountActivePreferences(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Preference{}).
		Where("end_date > ?", now.UTC()).
		Count(&n).Error
	return n, err
}

// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries over the ledger
// used by the ops HTTP surface.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-autodaft/internal/domain"
)

// ApplicationStats returns the number of ledger rows for a preference and the
// creation time of the most recent one. When the preference has no rows, the
// count is 0 and lastAppliedAt is nil.
func ApplicationStats(ctx context.Context, db *gorm.DB, preferenceID string) (count int64, lastAppliedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Application{}).Where("preference_id = ?", preferenceID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Order + limit instead of MAX(): SQLite would hand MAX() back as TEXT.
	var row struct {
		CreatedAt time.Time
	}
	if err = db.WithContext(ctx).Model(&domain.Application{}).
		Where("preference_id = ?", preferenceID).
		Select("created_at").
		Order("created_at DESC").
		Limit(1).
		Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}

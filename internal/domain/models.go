// Package domain defines the persistence models for standing search
// preferences and the application ledger, plus the transient listing types
// produced by the listing source. The GORM-mapped types are shared across the
// repository, service and scheduler layers.
package domain

import "time"

// ListingCategory is the kind of search a preference runs.
type ListingCategory string

const (
	// CategoryRent searches whole-property rentals.
	CategoryRent ListingCategory = "rent"
	// CategoryShared searches rooms in shared accommodation.
	CategoryShared ListingCategory = "shared"
)

// Valid reports whether c is one of the supported categories.
func (c ListingCategory) Valid() bool {
	return c == CategoryRent || c == CategoryShared
}

// Preference is a user's standing search criteria plus an expiry date.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - UserID, FirstName, LastName, Phone, Message: owner details captured by
//     the creation API; stored but not interpreted by the engine.
//   - Email: address that receives application notifications.
//   - ListingType, Location, PropertyType, MinPrice, MaxPrice, MinBedrooms,
//     MaxBedrooms: search criteria. Bedroom bounds are optional.
//   - EndDate: the preference is active while EndDate is strictly in the
//     future. It is never edited after creation; the expiry sweep deletes
//     the row once it has passed.
type Preference struct {
	ID           string          `json:"id"            gorm:"type:char(36);primaryKey"`
	UserID       string          `json:"user_id"       gorm:"type:varchar(64);not null;index"`
	FirstName    string          `json:"first_name"    gorm:"type:varchar(128)"`
	LastName     string          `json:"last_name"     gorm:"type:varchar(128)"`
	Email        string          `json:"email"         gorm:"type:varchar(320);not null"`
	Phone        string          `json:"phone"         gorm:"type:varchar(32)"`
	ListingType  ListingCategory `json:"listing_type"  gorm:"type:varchar(16);not null;check:listing_type IN ('rent','shared')"`
	Location     string          `json:"location"      gorm:"type:varchar(128);not null"`
	PropertyType string          `json:"property_type" gorm:"type:varchar(64);not null"`
	MinPrice     int             `json:"min_price"     gorm:"not null;check:min_price >= 0"`
	MaxPrice     int             `json:"max_price"     gorm:"not null;check:max_price >= min_price"`
	MinBedrooms  *int            `json:"min_bedrooms,omitempty"`
	MaxBedrooms  *int            `json:"max_bedrooms,omitempty"`
	Message      string          `json:"message"       gorm:"type:text"`
	EndDate      time.Time       `json:"end_date"      gorm:"not null;index:idx_preferences_end_date"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// TableName returns the database table name for Preference.
func (Preference) TableName() string { return "preferences" }

// ActiveAt reports whether the preference may still be matched at t.
func (p Preference) ActiveAt(t time.Time) bool { return p.EndDate.After(t) }

// ExpiredAt reports whether the expiry sweep should remove the preference at t.
// A preference whose EndDate equals t is neither active nor expired.
func (p Preference) ExpiredAt(t time.Time) bool { return p.EndDate.Before(t) }

// Application is the dedup record marking that the engine has already acted
// on a (preference, listing) pair. The pair is unique; rows are created once
// and never updated.
//
// There is no foreign key to preferences: ledger rows outlive the preference
// they belong to.
type Application struct {
	ID               string    `json:"id"                gorm:"type:char(36);primaryKey"`
	PreferenceID     string    `json:"preference_id"     gorm:"type:char(36);not null;uniqueIndex:ux_application_pref_ref,priority:1"`
	ListingReference string    `json:"listing_reference" gorm:"type:varchar(1024);not null;uniqueIndex:ux_application_pref_ref,priority:2"`
	CreatedAt        time.Time `json:"created_at"        gorm:"not null;index"`
}

// TableName returns the database table name for Application.
func (Application) TableName() string { return "applications" }

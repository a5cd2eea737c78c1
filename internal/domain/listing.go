package domain

import "strings"

// Listing is a candidate property returned by the listing source. It is
// produced fresh every cycle and never persisted; only its reference is.
type Listing struct {
	Title        string `json:"title"`
	Price        string `json:"price"`
	URL          string `json:"url"`
	Bedrooms     int    `json:"bedrooms"`
	PropertyType string `json:"property_type,omitempty"`
	Address      string `json:"address,omitempty"`
}

// Reference returns the stable identifier used as the dedup key. An empty
// reference means the listing cannot be tracked and must be skipped.
func (l Listing) Reference() string { return strings.TrimSpace(l.URL) }

// Criteria is the query sent to the listing source for one preference.
type Criteria struct {
	Location     string
	MinPrice     int
	MaxPrice     int
	PropertyType string
	MinBedrooms  int
	MaxBedrooms  int
	Category     ListingCategory
}

// BedroomRange is the substitute range used when a preference leaves its
// bedroom bounds unset.
type BedroomRange struct {
	Min int
	Max int
}

// DefaultBedrooms is the fallback range, 1 to 3 bedrooms.
var DefaultBedrooms = BedroomRange{Min: 1, Max: 3}

// CriteriaFor translates a preference into a listing query. Missing bedroom
// bounds are taken from def; if that leaves min above max, max is raised to
// min so the query is never empty by construction.
func CriteriaFor(p Preference, def BedroomRange) Criteria {
	minBeds, maxBeds := def.Min, def.Max
	if p.MinBedrooms != nil {
		minBeds = *p.MinBedrooms
	}
	if p.MaxBedrooms != nil {
		maxBeds = *p.MaxBedrooms
	}
	if maxBeds < minBeds {
		maxBeds = minBeds
	}
	return Criteria{
		Location:     strings.TrimSpace(p.Location),
		MinPrice:     p.MinPrice,
		MaxPrice:     p.MaxPrice,
		PropertyType: strings.ToLower(strings.TrimSpace(p.PropertyType)),
		MinBedrooms:  minBeds,
		MaxBedrooms:  maxBeds,
		Category:     p.ListingType,
	}
}

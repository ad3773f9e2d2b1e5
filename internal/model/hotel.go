package model

import "time"

// Hotel is a de-duplicated listing from the source site. The tier recorded in
// PriceLevel is the one the hotel was classified into by its actual price;
// FetchedTier records which tier's search produced it. Classification is
// authoritative, fetch tier is provenance only.
type Hotel struct {
	SourceID    string   `json:"source_id"` // shid on the source site
	Name        string   `json:"name"`
	Address     string   `json:"address,omitempty"`
	CityCode    string   `json:"city_code,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	StarLevel   string   `json:"star_level,omitempty"`
	RatingScore *float64 `json:"rating_score,omitempty"`
	ReviewCount *int     `json:"review_count,omitempty"`
	BasePrice   *int     `json:"base_price,omitempty"`

	RegionType       string `json:"region_type,omitempty"`
	BusinessZone     string `json:"business_zone,omitempty"`
	BusinessZoneCode string `json:"business_zone_code,omitempty"`
	PriceLevel       string `json:"price_level,omitempty"`
	FetchedTier      string `json:"fetched_tier,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Merge overlays other onto h: non-empty / non-nil fields from other win,
// everything else keeps its current value. Listing fields are filled in
// progressively across extraction passes, so this is the only sanctioned way
// to combine two sightings of the same hotel.
func (h *Hotel) Merge(other *Hotel) {
	if other == nil {
		return
	}
	if other.Name != "" {
		h.Name = other.Name
	}
	if other.Address != "" {
		h.Address = other.Address
	}
	if other.CityCode != "" {
		h.CityCode = other.CityCode
	}
	if other.Latitude != nil {
		h.Latitude = other.Latitude
	}
	if other.Longitude != nil {
		h.Longitude = other.Longitude
	}
	if other.StarLevel != "" {
		h.StarLevel = other.StarLevel
	}
	if other.RatingScore != nil {
		h.RatingScore = other.RatingScore
	}
	if other.ReviewCount != nil {
		h.ReviewCount = other.ReviewCount
	}
	if other.BasePrice != nil {
		h.BasePrice = other.BasePrice
	}
	if other.RegionType != "" {
		h.RegionType = other.RegionType
	}
	if other.BusinessZone != "" {
		h.BusinessZone = other.BusinessZone
	}
	if other.BusinessZoneCode != "" {
		h.BusinessZoneCode = other.BusinessZoneCode
	}
	if other.PriceLevel != "" {
		h.PriceLevel = other.PriceLevel
	}
	if other.FetchedTier != "" {
		h.FetchedTier = other.FetchedTier
	}
}

// Validate checks the fields a hotel record cannot be persisted without.
func (h *Hotel) Validate() error {
	if h.SourceID == "" {
		return &ValidationError{Field: "source_id", Reason: "empty"}
	}
	if h.Name == "" {
		return &ValidationError{Field: "name", Reason: "empty"}
	}
	if h.RatingScore != nil && (*h.RatingScore < 0 || *h.RatingScore > 5) {
		return &ValidationError{Field: "rating_score", Reason: "out of range"}
	}
	if h.ReviewCount != nil && *h.ReviewCount < 0 {
		return &ValidationError{Field: "review_count", Reason: "negative"}
	}
	if h.BasePrice != nil && *h.BasePrice < 0 {
		return &ValidationError{Field: "base_price", Reason: "negative"}
	}
	return nil
}

// ValidationError marks a malformed record. Records failing validation are
// dropped and logged; they never affect task status.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid record: " + e.Field + ": " + e.Reason
}

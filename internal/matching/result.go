package matching

import "math"

type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

const (
	highTierMin   = 75
	mediumTierMin = 50
)

// TierFor classifies a normalized score.
func TierFor(score int) Tier {
	switch {
	case score >= highTierMin:
		return TierHigh
	case score >= mediumTierMin:
		return TierMedium
	default:
		return TierLow
	}
}

type FactorKey string

const (
	FactorListingType  FactorKey = "listing_type"
	FactorPropertyType FactorKey = "property_type"
	FactorLocation     FactorKey = "location"
	FactorBudget       FactorKey = "budget"
	FactorBedrooms     FactorKey = "bedrooms"
	FactorBathrooms    FactorKey = "bathrooms"
	FactorArea         FactorKey = "area"
	FactorAmenities    FactorKey = "amenities"
)

type Factor struct {
	Key            FactorKey `json:"key"`
	Label          string    `json:"label"`
	Applicable     bool      `json:"applicable"`
	Matched        bool      `json:"matched"`
	PointsAwarded  float64   `json:"points_awarded"`
	PointsPossible float64   `json:"points_possible"`
}

type MatchResult struct {
	ListingID string   `json:"listing_id,omitempty"`
	ProfileID string   `json:"profile_id,omitempty"`
	Score     int      `json:"score"`
	Tier      Tier     `json:"tier"`
	Factors   []Factor `json:"factors"`

	// RawPoints excludes the feedback bonus; MaxPoints is the sum of applicable PointsPossible.
	RawPoints     float64 `json:"raw_points"`
	MaxPoints     float64 `json:"max_points"`
	FeedbackBonus float64 `json:"feedback_bonus,omitempty"`
}

// Factor returns the factor with the given key.
func (r *MatchResult) Factor(key FactorKey) (Factor, bool) {
	for _, f := range r.Factors {
		if f.Key == key {
			return f, true
		}
	}
	return Factor{}, false
}

// finalize recomputes Score and Tier from the accumulated points.
func (r *MatchResult) finalize() {
	r.Score = normalize(r.RawPoints+r.FeedbackBonus, r.MaxPoints)
	r.Tier = TierFor(r.Score)
}

func normalize(raw, maxPoints float64) int {
	if maxPoints <= 0 || math.IsNaN(raw) {
		return 0
	}
	score := math.Round(100 * raw / maxPoints)
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return int(score)
	}
}

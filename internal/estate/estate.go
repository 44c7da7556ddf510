package estate

import (
	"errors"
	"strings"
)

var (
	ErrInvalidListing = errors.New("invalid listing")
	ErrInvalidProfile = errors.New("invalid requirement profile")
)

type ListingType string

const (
	ListingTypeSale ListingType = "sale"
	ListingTypeRent ListingType = "rent"
	// ListingTypeBoth is only meaningful on requirement profiles.
	ListingTypeBoth ListingType = "both"
)

type PropertyType string

const (
	PropertyTypeApartment  PropertyType = "apartment"
	PropertyTypeHouse      PropertyType = "house"
	PropertyTypeLand       PropertyType = "land"
	PropertyTypeCommercial PropertyType = "commercial"
)

type FeedbackType string

const (
	FeedbackExcellent FeedbackType = "excellent"
	FeedbackGood      FeedbackType = "good"
	FeedbackNeutral   FeedbackType = "neutral"
	FeedbackPoor      FeedbackType = "poor"
)

// Positive reports whether the feedback counts towards the historical bonus.
func (f FeedbackType) Positive() bool {
	switch FeedbackType(normalize(string(f))) {
	case FeedbackExcellent, FeedbackGood:
		return true
	default:
		return false
	}
}

type FeedbackRecord struct {
	ListingID string       `json:"listing_id" mapstructure:"listing_id"`
	ProfileID string       `json:"profile_id" mapstructure:"profile_id"`
	Type      FeedbackType `json:"feedback_type" mapstructure:"feedback_type"`
}

// FeedbackIndex groups feedback records by listing identifier.
func FeedbackIndex(records []FeedbackRecord) map[string][]FeedbackRecord {
	idx := make(map[string][]FeedbackRecord)
	for _, r := range records {
		idx[r.ListingID] = append(idx[r.ListingID], r)
	}
	return idx
}

// ReviewedBy returns the listing ids the given profile already left feedback on.
func ReviewedBy(records []FeedbackRecord, profileID string) []string {
	ids := make([]string, 0)
	seen := make(map[string]struct{})
	for _, r := range records {
		if r.ProfileID != profileID {
			continue
		}
		if _, ok := seen[r.ListingID]; ok {
			continue
		}
		seen[r.ListingID] = struct{}{}
		ids = append(ids, r.ListingID)
	}
	return ids
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeSet lowercases and trims every entry, dropping empty and duplicate values.
// Order of first appearance is kept.
func NormalizeSet(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		n := normalize(v)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Int returns a pointer to v. Handy for optional fields in fixtures.
func Int(v int) *int { return &v }

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

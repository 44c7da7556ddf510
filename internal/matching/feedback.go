package matching

import "github.com/spigell/property-matcher/internal/estate"

// DefaultFeedbackBonus is added to the raw points for every positive feedback record.
const DefaultFeedbackBonus = 5

// ApplyFeedbackBonus adds the historical bonus for the result's listing and renormalizes.
// Records tied to other listings are ignored. Neutral and poor feedback carry no penalty.
// The bonus lifts the raw points before normalization, so the score can reach 100 but not exceed it.
func ApplyFeedbackBonus(result MatchResult, records []estate.FeedbackRecord) MatchResult {
	return applyFeedbackBonus(result, records, DefaultFeedbackBonus)
}

func applyFeedbackBonus(result MatchResult, records []estate.FeedbackRecord, perRecord float64) MatchResult {
	positive := 0
	for _, r := range records {
		if r.ListingID != result.ListingID {
			continue
		}
		if r.Type.Positive() {
			positive++
		}
	}

	adjusted := result
	adjusted.Factors = append([]Factor(nil), result.Factors...)
	adjusted.FeedbackBonus = result.FeedbackBonus + float64(positive)*perRecord
	adjusted.finalize()
	return adjusted
}

package matching

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/spigell/property-matcher/internal/estate"
)

const (
	MarkMatched   = "✓"
	MarkUnmatched = "✗"
)

var amounts = message.NewPrinter(language.English)

// Explain renders one statement per applicable factor, in factor order.
// Statements are built from the result and the two entities it was computed from.
func Explain(result MatchResult, listing estate.Listing, profile estate.RequirementProfile) []string {
	statements := make([]string, 0, len(result.Factors)+1)
	for _, f := range result.Factors {
		if !f.Applicable {
			continue
		}
		mark := MarkUnmatched
		if f.Matched {
			mark = MarkMatched
		}
		statements = append(statements, mark+" "+describe(f, &listing, &profile))
	}

	if result.FeedbackBonus > 0 {
		statements = append(statements, fmt.Sprintf("%s positive feedback history (+%s points)", MarkMatched, formatPoints(result.FeedbackBonus)))
	}
	return statements
}

// ExplainText joins the statements one per line.
func ExplainText(result MatchResult, listing estate.Listing, profile estate.RequirementProfile) string {
	return strings.Join(Explain(result, listing, profile), "\n")
}

func describe(f Factor, l *estate.Listing, p *estate.RequirementProfile) string {
	switch f.Key {
	case FactorListingType:
		if f.Matched {
			return fmt.Sprintf("listing type: %s", l.ListingType)
		}
		return fmt.Sprintf("listing type: %s (wanted %s)", l.ListingType, p.ListingType)
	case FactorPropertyType:
		if f.Matched {
			return fmt.Sprintf("property type: %s", l.PropertyType)
		}
		return fmt.Sprintf("property type: %s (wanted %s)", orUnknown(string(l.PropertyType)), strings.Join(p.PropertyTypeSet(), ", "))
	case FactorLocation:
		if f.Matched {
			return fmt.Sprintf("location: %s", orUnknown(l.Location()))
		}
		return fmt.Sprintf("location: %s (wanted %s)", orUnknown(l.Location()), strings.Join(p.Locations, ", "))
	case FactorBudget:
		return describeBudget(l.Price, p)
	case FactorBedrooms:
		return describeMinimum("bedrooms", intPtrToFloat(l.Bedrooms), float64(*p.BedroomsMin))
	case FactorBathrooms:
		return describeMinimum("bathrooms", intPtrToFloat(l.Bathrooms), float64(*p.BathroomsMin))
	case FactorArea:
		return describeMinimum("area", l.Area, *p.AreaMin)
	case FactorAmenities:
		matched, missing := splitAmenities(p.AmenitySet(), estate.NormalizeSet(l.Amenities))
		total := len(matched) + len(missing)
		if len(missing) == 0 {
			return fmt.Sprintf("amenities: %d/%d matched", len(matched), total)
		}
		return fmt.Sprintf("amenities: %d/%d matched (missing %s)", len(matched), total, strings.Join(missing, ", "))
	default:
		return f.Label
	}
}

func describeBudget(price float64, p *estate.RequirementProfile) string {
	delta := budgetDelta(price, p)
	switch {
	case delta > 0:
		return fmt.Sprintf("above budget by %s", formatAmount(delta))
	case delta < 0:
		return fmt.Sprintf("below budget by %s", formatAmount(-delta))
	default:
		return fmt.Sprintf("within budget (%s)", formatAmount(price))
	}
}

func describeMinimum(label string, have *float64, min float64) string {
	if have == nil {
		return fmt.Sprintf("%s: not specified (min %s)", label, formatAmount(min))
	}
	return fmt.Sprintf("%s: %s (min %s)", label, formatAmount(*have), formatAmount(min))
}

func intPtrToFloat(v *int) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

func formatAmount(v float64) string {
	if v == math.Trunc(v) {
		return amounts.Sprintf("%d", int64(v))
	}
	return amounts.Sprintf("%.2f", v)
}

func formatPoints(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.1f", v)
}

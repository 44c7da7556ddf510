package matching

import (
	"strings"

	"github.com/spigell/property-matcher/internal/estate"
)

// Points awarded per factor when it applies and matches.
const (
	listingTypePoints  = 30
	propertyTypePoints = 25
	locationPoints     = 25
	budgetPoints       = 15
	bedroomsPoints     = 10
	bathroomsPoints    = 5
	areaPoints         = 5
	amenitiesPoints    = 10
)

type factorRule struct {
	key    FactorKey
	label  string
	points float64
	// eval returns applicability and the fraction (0..1) of points earned.
	eval func(l *estate.Listing, p *estate.RequirementProfile) (bool, float64)
}

var factorTable = []factorRule{
	{FactorListingType, "listing type", listingTypePoints, evalListingType},
	{FactorPropertyType, "property type", propertyTypePoints, evalPropertyType},
	{FactorLocation, "location", locationPoints, evalLocation},
	{FactorBudget, "budget", budgetPoints, evalBudget},
	{FactorBedrooms, "bedrooms", bedroomsPoints, evalBedrooms},
	{FactorBathrooms, "bathrooms", bathroomsPoints, evalBathrooms},
	{FactorArea, "area", areaPoints, evalArea},
	{FactorAmenities, "amenities", amenitiesPoints, evalAmenities},
}

// Score computes the compatibility of one listing with one profile.
// It has no side effects and never fails: criteria missing from the profile make
// the corresponding factor inapplicable.
func Score(listing estate.Listing, profile estate.RequirementProfile) MatchResult {
	result := MatchResult{
		ListingID: listing.ID,
		ProfileID: profile.ID,
		Factors:   make([]Factor, 0, len(factorTable)),
	}

	for _, rule := range factorTable {
		applicable, fraction := rule.eval(&listing, &profile)
		f := Factor{Key: rule.key, Label: rule.label, Applicable: applicable}
		if applicable {
			f.PointsPossible = rule.points
			f.PointsAwarded = rule.points * fraction
			f.Matched = fraction >= 1
			result.MaxPoints += f.PointsPossible
			result.RawPoints += f.PointsAwarded
		}
		result.Factors = append(result.Factors, f)
	}

	result.finalize()
	return result
}

func boolFraction(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}

func evalListingType(l *estate.Listing, p *estate.RequirementProfile) (bool, float64) {
	return true, boolFraction(p.Accepts(l.ListingType))
}

func evalPropertyType(l *estate.Listing, p *estate.RequirementProfile) (bool, float64) {
	wanted := p.PropertyTypeSet()
	if len(wanted) == 0 {
		return false, 0
	}
	have := strings.ToLower(strings.TrimSpace(string(l.PropertyType)))
	for _, w := range wanted {
		if w == have {
			return true, 1
		}
	}
	return true, 0
}

func evalLocation(l *estate.Listing, p *estate.RequirementProfile) (bool, float64) {
	wanted := p.LocationSet()
	if len(wanted) == 0 {
		return false, 0
	}
	return true, boolFraction(matchedLocation(l, wanted) != "")
}

// matchedLocation returns the first desired location found in the listing's city or state.
func matchedLocation(l *estate.Listing, wanted []string) string {
	city := strings.ToLower(l.City)
	state := strings.ToLower(l.State)
	for _, w := range wanted {
		if strings.Contains(city, w) || strings.Contains(state, w) {
			return w
		}
	}
	return ""
}

func evalBudget(l *estate.Listing, p *estate.RequirementProfile) (bool, float64) {
	if !p.HasBudget() {
		return false, 0
	}
	return true, boolFraction(budgetDelta(l.Price, p) == 0)
}

// budgetDelta is negative below budget_min, positive above budget_max and zero inside.
func budgetDelta(price float64, p *estate.RequirementProfile) float64 {
	if p.BudgetMin != nil && price < *p.BudgetMin {
		return price - *p.BudgetMin
	}
	if p.BudgetMax != nil && price > *p.BudgetMax {
		return price - *p.BudgetMax
	}
	return 0
}

func evalBedrooms(l *estate.Listing, p *estate.RequirementProfile) (bool, float64) {
	if p.BedroomsMin == nil {
		return false, 0
	}
	return true, boolFraction(l.Bedrooms != nil && *l.Bedrooms >= *p.BedroomsMin)
}

func evalBathrooms(l *estate.Listing, p *estate.RequirementProfile) (bool, float64) {
	if p.BathroomsMin == nil {
		return false, 0
	}
	return true, boolFraction(l.Bathrooms != nil && *l.Bathrooms >= *p.BathroomsMin)
}

func evalArea(l *estate.Listing, p *estate.RequirementProfile) (bool, float64) {
	if p.AreaMin == nil {
		return false, 0
	}
	return true, boolFraction(l.Area != nil && *l.Area >= *p.AreaMin)
}

func evalAmenities(l *estate.Listing, p *estate.RequirementProfile) (bool, float64) {
	wanted := p.AmenitySet()
	have := estate.NormalizeSet(l.Amenities)
	if len(wanted) == 0 || len(have) == 0 {
		return false, 0
	}
	matched, _ := splitAmenities(wanted, have)
	return true, float64(len(matched)) / float64(len(wanted))
}

// splitAmenities partitions desired amenities into those found as a substring of
// any listing amenity and those missing.
func splitAmenities(wanted, have []string) (matched, missing []string) {
	for _, w := range wanted {
		found := false
		for _, h := range have {
			if strings.Contains(h, w) {
				found = true
				break
			}
		}
		if found {
			matched = append(matched, w)
		} else {
			missing = append(missing, w)
		}
	}
	return matched, missing
}

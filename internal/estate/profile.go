package estate

import (
	"fmt"
	"math"
	"strings"
)

type RequirementProfile struct {
	ID            string         `json:"id" mapstructure:"id"`
	Name          string         `json:"name,omitempty" mapstructure:"name"`
	ListingType   ListingType    `json:"listing_type" mapstructure:"listing_type"`
	PropertyTypes []PropertyType `json:"property_types,omitempty" mapstructure:"property_types"`
	Locations     []string       `json:"locations,omitempty" mapstructure:"locations"`
	BudgetMin     *float64       `json:"budget_min,omitempty" mapstructure:"budget_min"`
	BudgetMax     *float64       `json:"budget_max,omitempty" mapstructure:"budget_max"`
	BedroomsMin   *int           `json:"bedrooms_min,omitempty" mapstructure:"bedrooms_min"`
	BathroomsMin  *int           `json:"bathrooms_min,omitempty" mapstructure:"bathrooms_min"`
	AreaMin       *float64       `json:"area_min,omitempty" mapstructure:"area_min"`
	Amenities     []string       `json:"amenities,omitempty" mapstructure:"amenities"`
}

func (p *RequirementProfile) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidProfile)
	}
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidProfile)
	}
	switch ListingType(normalize(string(p.ListingType))) {
	case ListingTypeSale, ListingTypeRent, ListingTypeBoth:
	default:
		return fmt.Errorf("%w: listing type %q", ErrInvalidProfile, p.ListingType)
	}
	for _, b := range []*float64{p.BudgetMin, p.BudgetMax, p.AreaMin} {
		if b != nil && (math.IsNaN(*b) || math.IsInf(*b, 0)) {
			return fmt.Errorf("%w: non-finite bound", ErrInvalidProfile)
		}
	}
	if p.BudgetMin != nil && p.BudgetMax != nil && *p.BudgetMin > *p.BudgetMax {
		return fmt.Errorf("%w: budget_min %.0f > budget_max %.0f", ErrInvalidProfile, *p.BudgetMin, *p.BudgetMax)
	}
	return nil
}

// PropertyTypeSet returns the normalized desired property types; empty means any.
func (p *RequirementProfile) PropertyTypeSet() []string {
	raw := make([]string, 0, len(p.PropertyTypes))
	for _, t := range p.PropertyTypes {
		raw = append(raw, string(t))
	}
	return NormalizeSet(raw)
}

// LocationSet returns the normalized desired locations; empty means any.
func (p *RequirementProfile) LocationSet() []string {
	return NormalizeSet(p.Locations)
}

func (p *RequirementProfile) AmenitySet() []string {
	return NormalizeSet(p.Amenities)
}

func (p *RequirementProfile) HasBudget() bool {
	return p.BudgetMin != nil || p.BudgetMax != nil
}

// BudgetMidpoint returns the centre of the budget range. A single bound is its own midpoint.
func (p *RequirementProfile) BudgetMidpoint() (float64, bool) {
	switch {
	case p.BudgetMin != nil && p.BudgetMax != nil:
		return (*p.BudgetMin + *p.BudgetMax) / 2, true
	case p.BudgetMin != nil:
		return *p.BudgetMin, true
	case p.BudgetMax != nil:
		return *p.BudgetMax, true
	default:
		return 0, false
	}
}

// Accepts reports whether the profile's listing type admits the given listing type.
func (p *RequirementProfile) Accepts(t ListingType) bool {
	want := ListingType(normalize(string(p.ListingType)))
	return want == ListingTypeBoth || want == ListingType(normalize(string(t)))
}

package estate

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
)

const (
	ListingIDField   = "ID"
	ListingCityField = "City"
)

type Listing struct {
	ID           string       `json:"id" mapstructure:"id"`
	Title        string       `json:"title,omitempty" mapstructure:"title"`
	Price        float64      `json:"price" mapstructure:"price"`
	ListingType  ListingType  `json:"listing_type" mapstructure:"listing_type"`
	PropertyType PropertyType `json:"property_type" mapstructure:"property_type"`
	City         string       `json:"city,omitempty" mapstructure:"city"`
	State        string       `json:"state,omitempty" mapstructure:"state"`
	Bedrooms     *int         `json:"bedrooms,omitempty" mapstructure:"bedrooms"`
	Bathrooms    *int         `json:"bathrooms,omitempty" mapstructure:"bathrooms"`
	Area         *float64     `json:"area,omitempty" mapstructure:"area"`
	Amenities    []string     `json:"amenities,omitempty" mapstructure:"amenities"`
}

// Validate reports records that cannot be scored at all. Absent optional fields are fine.
func (l *Listing) Validate() error {
	if l == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidListing)
	}
	if strings.TrimSpace(l.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidListing)
	}
	if math.IsNaN(l.Price) || math.IsInf(l.Price, 0) || l.Price < 0 {
		return fmt.Errorf("%w: price %v", ErrInvalidListing, l.Price)
	}
	switch ListingType(normalize(string(l.ListingType))) {
	case ListingTypeSale, ListingTypeRent:
	default:
		return fmt.Errorf("%w: listing type %q", ErrInvalidListing, l.ListingType)
	}
	if l.Bedrooms != nil && *l.Bedrooms < 0 {
		return fmt.Errorf("%w: negative bedrooms", ErrInvalidListing)
	}
	if l.Bathrooms != nil && *l.Bathrooms < 0 {
		return fmt.Errorf("%w: negative bathrooms", ErrInvalidListing)
	}
	if l.Area != nil && (math.IsNaN(*l.Area) || *l.Area < 0) {
		return fmt.Errorf("%w: area %v", ErrInvalidListing, *l.Area)
	}
	return nil
}

func (l *Listing) GetStringField(name string) string {
	switch name {
	case ListingIDField:
		return l.ID
	case ListingCityField:
		return l.City
	default:
		return ""
	}
}

// Location renders city and state for humans.
func (l *Listing) Location() string {
	parts := make([]string, 0, 2)
	if c := strings.TrimSpace(l.City); c != "" {
		parts = append(parts, c)
	}
	if s := strings.TrimSpace(l.State); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}

type Listings struct {
	Items []*Listing
}

func (v *Listings) Len() int {
	return len(v.Items)
}

func (v *Listings) FindByID(id string) *Listing {
	for _, l := range v.Items {
		if l.ID == id {
			return l
		}
	}
	return nil
}

// Exclude removes listings whose field value is in values and returns the removed ids.
// Order of the remaining listings is preserved.
func (v *Listings) Exclude(field string, values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, val := range values {
		set[val] = struct{}{}
	}

	var excluded []string
	kept := v.Items[:0]
	for _, l := range v.Items {
		if _, ok := set[l.GetStringField(field)]; ok {
			excluded = append(excluded, l.ID)
			continue
		}
		kept = append(kept, l)
	}
	v.Items = kept
	return excluded
}

// Filter removes listings for which keep returns false and returns the removed ids.
func (v *Listings) Filter(keep func(*Listing) bool) []string {
	var excluded []string
	kept := v.Items[:0]
	for _, l := range v.Items {
		if !keep(l) {
			excluded = append(excluded, l.ID)
			continue
		}
		kept = append(kept, l)
	}
	v.Items = kept
	return excluded
}

// Values returns the listings as a slice of values, the shape the ranking pipeline consumes.
func (v *Listings) Values() []Listing {
	out := make([]Listing, 0, len(v.Items))
	for _, l := range v.Items {
		out = append(out, *l)
	}
	return out
}

// ReportByCity groups listings by city for a quick overview.
func (v *Listings) ReportByCity() map[string][]map[string]string {
	report := make(map[string][]map[string]string)
	for _, l := range v.Items {
		key := strings.TrimSpace(l.City)
		if key == "" {
			key = "(unknown)"
		}
		report[key] = append(report[key], map[string]string{
			"id":            l.ID,
			"title":         l.Title,
			"price":         fmt.Sprintf("%.0f", l.Price),
			"listing_type":  string(l.ListingType),
			"property_type": string(l.PropertyType),
		})
	}
	for key := range report {
		sort.Slice(report[key], func(i, j int) bool { return report[key][i]["id"] < report[key][j]["id"] })
	}
	return report
}

func (v *Listings) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "listings_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return file.Name(), nil
}

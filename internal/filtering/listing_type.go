package filtering

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spigell/property-matcher/internal/estate"
)

const listingTypeDefaultOff = "off by default, the scorer weighs listing type itself"

type listingTypeFilter struct {
	disabled bool
	reason   string
}

// NewListingType creates a hard pre-filter dropping listings whose type the profile never accepts.
// It starts disabled unless strict is set.
func NewListingType(strict bool) Filter {
	f := &listingTypeFilter{}
	if !strict {
		f.Disable(listingTypeDefaultOff)
	}
	return f
}

func (f *listingTypeFilter) Name() string { return "listing_type" }

func (f *listingTypeFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *listingTypeFilter) IsEnabled() bool { return !f.disabled }

func (f *listingTypeFilter) Validate(*Config) error { return nil }

func (f *listingTypeFilter) Apply(_ context.Context, deps Deps, v *estate.Listings) (*estate.Listings, Step, error) {
	initial := v.Len()
	if deps.Profile == nil {
		return v, Step{}, errors.New("requirement profile is required")
	}

	removed := v.Filter(func(l *estate.Listing) bool {
		return deps.Profile.Accepts(l.ListingType)
	})
	if deps.Logger != nil && len(removed) > 0 {
		deps.Logger.Info("excluding listings by listing type",
			zap.String("wanted", string(deps.Profile.ListingType)),
			zap.Strings("excluded_listings", removed),
			zap.Int("listings_left", v.Len()),
		)
	}

	return v, Step{Initial: initial, Dropped: len(removed), Left: v.Len()}, nil
}

func (f *listingTypeFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason}
}

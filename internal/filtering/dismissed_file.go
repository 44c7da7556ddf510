package filtering

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/property-matcher/internal/estate"
)

type dismissedFileFilter struct {
	path string
}

// NewDismissedFile creates a filter that removes listings recorded in the dismissed file.
func NewDismissedFile() Filter {
	return &dismissedFileFilter{}
}

func (f *dismissedFileFilter) Name() string { return "dismissed_file" }

func (f *dismissedFileFilter) Disable(string) {}

func (f *dismissedFileFilter) IsEnabled() bool { return true }

func (f *dismissedFileFilter) Validate(cfg *Config) error {
	f.path = ""
	if cfg != nil {
		f.path = strings.TrimSpace(cfg.DismissedFile)
	}
	return nil
}

func (f *dismissedFileFilter) Apply(_ context.Context, deps Deps, v *estate.Listings) (*estate.Listings, Step, error) {
	initial := v.Len()
	if f.path == "" {
		return v, Step{Initial: initial, Dropped: 0, Left: v.Len()}, nil
	}

	dismissed, err := estate.GetDismissedListingsFromFile(f.path)
	if err != nil {
		return v, Step{}, fmt.Errorf("getting dismissed listings from file: %w", err)
	}

	removed := v.Exclude(estate.ListingIDField, dismissed.ListingIDs())
	if deps.Logger != nil && len(removed) > 0 {
		deps.Logger.Info("excluding listings based on dismissed file",
			zap.String("path", f.path),
			zap.Strings("excluded_listings", removed),
			zap.Int("listings_left", v.Len()),
		)
	}

	return v, Step{Initial: initial, Dropped: len(removed), Left: v.Len()}, nil
}

func (f *dismissedFileFilter) Status() Status {
	details := map[string]string{}
	if f.path != "" {
		details["path"] = f.path
	}
	return Status{Name: f.Name(), Enabled: true, Details: details}
}

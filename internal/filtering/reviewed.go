package filtering

import (
	"context"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/property-matcher/internal/estate"
)

const includeReviewedFlag = "include-reviewed"

type reviewedFilter struct {
	ignore bool
}

// NewReviewed creates a filter that removes listings the anchor profile already left feedback on.
func NewReviewed(cmd *cobra.Command) Filter {
	ignore := false
	if cmd != nil {
		flag := cmd.Flag(includeReviewedFlag)
		if flag != nil && strings.EqualFold(flag.Value.String(), "true") {
			ignore = true
		}
	}
	return &reviewedFilter{ignore: ignore}
}

func (f *reviewedFilter) Name() string { return "reviewed" }

func (f *reviewedFilter) Disable(string) {}

func (f *reviewedFilter) IsEnabled() bool { return true }

func (f *reviewedFilter) Validate(*Config) error { return nil }

func (f *reviewedFilter) Apply(_ context.Context, deps Deps, v *estate.Listings) (*estate.Listings, Step, error) {
	initial := v.Len()
	if f.ignore || deps.Profile == nil {
		if deps.Logger != nil && f.ignore {
			deps.Logger.Info("keeping already reviewed listings", zap.String("reason", includeReviewedFlag+" flag is set"))
		}
		return v, Step{Initial: initial, Dropped: 0, Left: v.Len()}, nil
	}

	excluded := v.Exclude(estate.ListingIDField, estate.ReviewedBy(deps.Feedback, deps.Profile.ID))
	if deps.Logger != nil && len(excluded) > 0 {
		deps.Logger.Info("excluding listings the profile already reviewed",
			zap.String("profile_id", deps.Profile.ID),
			zap.Strings("excluded_listings", excluded),
			zap.Int("listings_left", v.Len()),
		)
	}

	return v, Step{Initial: initial, Dropped: len(excluded), Left: v.Len()}, nil
}

func (f *reviewedFilter) Status() Status {
	details := map[string]string{
		"exclude_reviewed": strconv.FormatBool(!f.ignore),
	}
	reason := ""
	if f.ignore {
		reason = "skip requested via flag"
	}
	return Status{Name: f.Name(), Enabled: true, Reason: reason, Details: details}
}

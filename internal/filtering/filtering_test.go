package filtering

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/property-matcher/internal/estate"
)

func testListings() *estate.Listings {
	return &estate.Listings{Items: []*estate.Listing{
		{ID: "l1", ListingType: estate.ListingTypeSale, City: "Lisboa"},
		{ID: "l2", ListingType: estate.ListingTypeRent, City: "Lisboa"},
		{ID: "l3", ListingType: estate.ListingTypeSale, City: "Porto"},
		{ID: "l4", ListingType: estate.ListingTypeSale, City: "Faro"},
	}}
}

func listingIDs(v *estate.Listings) []string {
	out := make([]string, 0, v.Len())
	for _, l := range v.Items {
		out = append(out, l.ID)
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func reviewedCommand(include bool) *cobra.Command {
	cmd := &cobra.Command{Use: "listings"}
	cmd.Flags().Bool(includeReviewedFlag, false, "")
	if include {
		_ = cmd.Flags().Set(includeReviewedFlag, "true")
	}
	return cmd
}

func TestRunAppliesStepsInOrder(t *testing.T) {
	dir := t.TempDir()
	dismissedPath := filepath.Join(dir, "dismissed.json")
	dismissed := (&estate.Listings{Items: []*estate.Listing{{ID: "l4", City: "Faro"}}}).ToDismissed(estate.DismissActorUser, "too far")
	if err := dismissed.ToFile(dismissedPath); err != nil {
		t.Fatalf("write dismissed file: %v", err)
	}

	core, logs := observer.New(zapcore.InfoLevel)
	profile := &estate.RequirementProfile{ID: "p1", ListingType: estate.ListingTypeSale}
	deps := Deps{
		Logger:   zap.New(core),
		Profile:  profile,
		Feedback: []estate.FeedbackRecord{{ListingID: "l3", ProfileID: "p1", Type: estate.FeedbackPoor}},
	}
	steps := []Filter{NewDismissedFile(), NewReviewed(reviewedCommand(false)), NewListingType(false)}

	got, err := Run(context.Background(), &Config{DismissedFile: dismissedPath}, deps, steps, testListings())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ids := listingIDs(got); !equalIDs(ids, []string{"l1", "l2"}) {
		t.Fatalf("unexpected listings left: %v", ids)
	}
	if logs.FilterMessage("filter step").Len() != 2 {
		t.Fatalf("expected two executed steps to be logged")
	}
}

func TestReviewedFilterHonoursFlag(t *testing.T) {
	deps := Deps{
		Profile:  &estate.RequirementProfile{ID: "p1", ListingType: estate.ListingTypeBoth},
		Feedback: []estate.FeedbackRecord{{ListingID: "l1", ProfileID: "p1", Type: estate.FeedbackGood}, {ListingID: "l2", ProfileID: "other", Type: estate.FeedbackGood}},
	}

	cases := []struct {
		name    string
		include bool
		want    []string
	}{
		{name: "exclude reviewed", include: false, want: []string{"l2", "l3", "l4"}},
		{name: "include reviewed", include: true, want: []string{"l1", "l2", "l3", "l4"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := NewReviewed(reviewedCommand(tc.include))
			got, step, err := f.Apply(context.Background(), deps, testListings())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ids := listingIDs(got); !equalIDs(ids, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, ids)
			}
			if step.Initial != 4 || step.Left != len(tc.want) || step.Dropped != 4-len(tc.want) {
				t.Fatalf("unexpected step counters: %+v", step)
			}
		})
	}
}

func TestListingTypeFilterWhenStrict(t *testing.T) {
	deps := Deps{Profile: &estate.RequirementProfile{ID: "p1", ListingType: estate.ListingTypeRent}}

	got, err := Run(context.Background(), &Config{}, deps, []Filter{NewListingType(true)}, testListings())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ids := listingIDs(got); !equalIDs(ids, []string{"l2"}) {
		t.Fatalf("expected only the rental, got %v", ids)
	}
}

func TestDismissedFileMissingIsEmpty(t *testing.T) {
	cfg := &Config{DismissedFile: filepath.Join(t.TempDir(), "absent.json")}

	got, err := Run(context.Background(), cfg, Deps{}, []Filter{NewDismissedFile()}, testListings())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Len() != 4 {
		t.Fatalf("expected nothing dismissed, got %d listings", got.Len())
	}
}

func TestDisableByNameAndDescribe(t *testing.T) {
	steps := []Filter{NewDismissedFile(), NewReviewed(reviewedCommand(true)), NewListingType(true)}
	DisableByName(steps, "listing_type", "disabled in test")

	statuses := Describe(steps)
	if len(statuses) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(statuses))
	}
	if statuses[1].Reason != "skip requested via flag" || statuses[1].Details["exclude_reviewed"] != "false" {
		t.Fatalf("unexpected reviewed status: %+v", statuses[1])
	}
	if statuses[2].Enabled || statuses[2].Reason != "disabled in test" {
		t.Fatalf("unexpected listing type status: %+v", statuses[2])
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Run(ctx, &Config{}, Deps{}, []Filter{NewDismissedFile()}, testListings()); err == nil {
		t.Fatalf("expected cancellation error")
	}
}

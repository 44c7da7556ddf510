package matching

import (
	"strings"
	"testing"

	"github.com/spigell/property-matcher/internal/estate"
)

func TestExplainFullMatch(t *testing.T) {
	listing := lisbonListing()
	profile := lisbonProfile()

	got := Explain(Score(listing, profile), listing, profile)
	want := []string{
		"✓ listing type: sale",
		"✓ location: Lisboa",
		"✓ within budget (250,000)",
		"✓ bedrooms: 2 (min 2)",
	}

	if len(got) != len(want) {
		t.Fatalf("expected %d statements, got %d: %q", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("statement %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestExplainUnmetCriteria(t *testing.T) {
	listing := lisbonListing()
	listing.Price = 350000
	listing.City = "Porto"
	listing.Bedrooms = nil
	listing.PropertyType = estate.PropertyTypeHouse
	listing.Amenities = []string{"pool"}

	profile := lisbonProfile()
	profile.PropertyTypes = []estate.PropertyType{"Apartment"}
	profile.Amenities = []string{"pool", "garage"}

	text := ExplainText(Score(listing, profile), listing, profile)

	for _, fragment := range []string{
		"✗ property type: house (wanted apartment)",
		"✗ location: Porto (wanted Lisboa)",
		"✗ above budget by 50,000",
		"✗ bedrooms: not specified (min 2)",
		"✗ amenities: 1/2 matched (missing garage)",
	} {
		if !strings.Contains(text, fragment) {
			t.Fatalf("expected %q in explanation:\n%s", fragment, text)
		}
	}

	if strings.Count(text, "\n") != 5 {
		t.Fatalf("expected one statement per applicable factor, got:\n%s", text)
	}
}

func TestExplainBelowBudgetAndFeedback(t *testing.T) {
	listing := lisbonListing()
	listing.Price = 150000
	profile := lisbonProfile()

	res := ApplyFeedbackBonus(Score(listing, profile), []estate.FeedbackRecord{{ListingID: "l1", Type: estate.FeedbackExcellent}})
	got := Explain(res, listing, profile)

	if got[2] != "✗ below budget by 50,000" {
		t.Fatalf("unexpected budget statement: %q", got[2])
	}
	if last := got[len(got)-1]; last != "✓ positive feedback history (+5 points)" {
		t.Fatalf("unexpected feedback statement: %q", last)
	}
}

func TestExplainSkipsInapplicableFactors(t *testing.T) {
	listing := lisbonListing()
	profile := estate.RequirementProfile{ID: "p", ListingType: estate.ListingTypeRent}

	got := Explain(Score(listing, profile), listing, profile)
	if len(got) != 1 || got[0] != "✗ listing type: sale (wanted rent)" {
		t.Fatalf("unexpected statements: %q", got)
	}
}

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spigell/property-matcher/internal/ai"
	"github.com/spigell/property-matcher/internal/estate"
	"github.com/spigell/property-matcher/internal/filtering"
	"github.com/spigell/property-matcher/internal/matching"
)

type rankedListing struct {
	Rank        int                  `json:"rank"`
	Listing     estate.Listing       `json:"listing"`
	Result      matching.MatchResult `json:"result"`
	Explanation []string             `json:"explanation"`
}

type forwardReport struct {
	RunID        string               `json:"run_id"`
	ProfileID    string               `json:"profile_id"`
	Candidates   int                  `json:"candidates"`
	Results      []rankedListing      `json:"results"`
	Rejected     []matching.Rejection `json:"rejected,omitempty"`
	Filters      []filtering.Status   `json:"filters,omitempty"`
	Augmentation *ai.Augmentation     `json:"augmentation,omitempty"`
}

type rankedProfile struct {
	Rank        int                       `json:"rank"`
	Profile     estate.RequirementProfile `json:"profile"`
	Result      matching.MatchResult      `json:"result"`
	Explanation []string                  `json:"explanation"`
}

type reverseReport struct {
	RunID      string               `json:"run_id"`
	ListingID  string               `json:"listing_id"`
	Threshold  int                  `json:"threshold"`
	Candidates int                  `json:"candidates"`
	Results    []rankedProfile      `json:"results"`
	Rejected   []matching.Rejection `json:"rejected,omitempty"`
}

type pairReport struct {
	RunID       string               `json:"run_id"`
	ProfileID   string               `json:"profile_id"`
	ListingID   string               `json:"listing_id"`
	Result      matching.MatchResult `json:"result"`
	Explanation []string             `json:"explanation"`
}

// newForwardReport attaches listings and explanations to a forward ranking.
// candidates must be the set the ranking was built from.
func newForwardReport(runID string, profile estate.RequirementProfile, ranking *matching.Ranking, candidates *estate.Listings) *forwardReport {
	report := &forwardReport{
		RunID:      runID,
		ProfileID:  profile.ID,
		Candidates: ranking.Candidates,
		Results:    make([]rankedListing, 0, len(ranking.Results)),
		Rejected:   ranking.Rejected,
	}

	for i, res := range ranking.Results {
		idx, ok := candidateIndex(ranking, i, candidates.Len())
		if !ok {
			continue
		}
		l := candidates.Items[idx]
		report.Results = append(report.Results, rankedListing{
			Rank:        i + 1,
			Listing:     *l,
			Result:      res,
			Explanation: matching.Explain(res, *l, profile),
		})
	}
	return report
}

func newReverseReport(runID string, listing estate.Listing, threshold int, ranking *matching.Ranking, profiles []estate.RequirementProfile) *reverseReport {
	report := &reverseReport{
		RunID:      runID,
		ListingID:  listing.ID,
		Threshold:  threshold,
		Candidates: ranking.Candidates,
		Results:    make([]rankedProfile, 0, len(ranking.Results)),
		Rejected:   ranking.Rejected,
	}

	for i, res := range ranking.Results {
		idx, ok := candidateIndex(ranking, i, len(profiles))
		if !ok {
			continue
		}
		p := profiles[idx]
		report.Results = append(report.Results, rankedProfile{
			Rank:        i + 1,
			Profile:     p,
			Result:      res,
			Explanation: matching.Explain(res, listing, p),
		})
	}
	return report
}

// candidateIndex returns the input position of the i-th result.
func candidateIndex(ranking *matching.Ranking, i, n int) (int, bool) {
	if i >= len(ranking.Indices) {
		return 0, false
	}
	idx := ranking.Indices[i]
	return idx, idx >= 0 && idx < n
}

// augmentRequest converts the report into what an augmenter sees.
func (r *forwardReport) augmentRequest(profile estate.RequirementProfile, history []string) *ai.Request {
	req := &ai.Request{Profile: profile, History: history}
	for _, item := range r.Results {
		req.Matches = append(req.Matches, ai.Match{
			Listing:     item.Listing,
			Result:      item.Result,
			Explanation: item.Explanation,
		})
	}
	return req
}

// listingSet returns the ranked listings in rank order.
func (r *forwardReport) listingSet() *estate.Listings {
	set := &estate.Listings{}
	for i := range r.Results {
		l := r.Results[i].Listing
		set.Items = append(set.Items, &l)
	}
	return set
}

// feedbackHistory renders a profile's feedback as short notes for the augmenter, oldest first.
func feedbackHistory(profileID string, records []estate.FeedbackRecord, listings []estate.Listing) []string {
	titles := make(map[string]string, len(listings))
	for _, l := range listings {
		titles[l.ID] = l.Title
	}

	var out []string
	for _, r := range records {
		if r.ProfileID != profileID {
			continue
		}
		note := fmt.Sprintf("%s feedback on listing %s", r.Type, r.ListingID)
		if t := strings.TrimSpace(titles[r.ListingID]); t != "" {
			note += " (" + t + ")"
		}
		out = append(out, note)
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderForward(w io.Writer, r *forwardReport) {
	fmt.Fprintf(w, "Profile %s: %d of %d candidates\n", r.ProfileID, len(r.Results), r.Candidates)
	if len(r.Results) == 0 {
		fmt.Fprintln(w, "  no matching listings")
	}

	for _, item := range r.Results {
		l := item.Listing
		fmt.Fprintf(w, "%2d. %s  %s  %s  %.0f  score %d (%s)\n",
			item.Rank, l.ID, orDash(l.Title), orDash(l.Location()), l.Price, item.Result.Score, item.Result.Tier)
		writeStatements(w, item.Explanation)
	}

	writeRejected(w, r.Rejected)

	if r.Augmentation != nil {
		renderAugmentation(w, r.Augmentation)
	}
}

func renderReverse(w io.Writer, r *reverseReport) {
	fmt.Fprintf(w, "Listing %s: %d of %d profiles scored %d or more\n", r.ListingID, len(r.Results), r.Candidates, r.Threshold)
	if len(r.Results) == 0 {
		fmt.Fprintln(w, "  no interested profiles")
	}

	for _, item := range r.Results {
		p := item.Profile
		fmt.Fprintf(w, "%2d. %s  %s  %s  score %d (%s)\n",
			item.Rank, p.ID, orDash(p.Name), p.ListingType, item.Result.Score, item.Result.Tier)
		writeStatements(w, item.Explanation)
	}

	writeRejected(w, r.Rejected)
}

func renderPair(w io.Writer, r *pairReport) {
	fmt.Fprintf(w, "Profile %s / listing %s: score %d (%s)\n", r.ProfileID, r.ListingID, r.Result.Score, r.Result.Tier)
	writeStatements(w, r.Explanation)
}

func renderAugmentation(w io.Writer, a *ai.Augmentation) {
	if !a.Available || a.Insight == nil {
		fmt.Fprintf(w, "Insight unavailable: %s\n", orDash(a.Reason))
		return
	}

	in := a.Insight
	fmt.Fprintln(w, "Insight:")
	if in.MarketInsight != "" {
		fmt.Fprintf(w, "  market: %s\n", in.MarketInsight)
	}
	if in.NegotiationTip != "" {
		fmt.Fprintf(w, "  negotiation: %s\n", in.NegotiationTip)
	}
	if in.Urgency != "" {
		fmt.Fprintf(w, "  urgency: %s\n", in.Urgency)
	}
	if len(in.Suggestions) > 0 {
		fmt.Fprintln(w, "  suggestions:")
		for _, s := range in.Suggestions {
			fmt.Fprintf(w, "    - %s\n", s)
		}
	}
	if len(in.AlternativeLocations) > 0 {
		fmt.Fprintf(w, "  alternative locations: %s\n", strings.Join(in.AlternativeLocations, ", "))
	}
}

func writeStatements(w io.Writer, statements []string) {
	for _, s := range statements {
		fmt.Fprintf(w, "      %s\n", s)
	}
}

func writeRejected(w io.Writer, rejected []matching.Rejection) {
	if len(rejected) == 0 {
		return
	}
	fmt.Fprintln(w, "Rejected:")
	for _, r := range rejected {
		fmt.Fprintf(w, "  - %s: %s\n", orDash(r.ID), r.Reason)
	}
}

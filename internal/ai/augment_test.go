package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/property-matcher/internal/estate"
	"github.com/spigell/property-matcher/internal/matching"
)

type stubAugmenter struct {
	fn func(ctx context.Context, req *Request) (*Insight, error)
}

func (s stubAugmenter) Augment(ctx context.Context, req *Request) (*Insight, error) {
	return s.fn(ctx, req)
}

func testRequest() *Request {
	listing := estate.Listing{ID: "l1", ListingType: estate.ListingTypeSale, Price: 250000, City: "Lisboa"}
	profile := estate.RequirementProfile{ID: "p1", ListingType: estate.ListingTypeSale, Locations: []string{"Lisboa"}}
	result := matching.Score(listing, profile)
	return &Request{
		Profile: profile,
		Matches: []Match{{Listing: listing, Result: result, Explanation: matching.Explain(result, listing, profile)}},
	}
}

func TestSafeAugmentReturnsInsight(t *testing.T) {
	augmenter := stubAugmenter{fn: func(context.Context, *Request) (*Insight, error) {
		return &Insight{MarketInsight: "steady", Urgency: UrgencyLow}, nil
	}}

	got := SafeAugment(context.Background(), augmenter, time.Second, testRequest(), zap.NewNop())
	if !got.Available || got.Insight == nil || got.Insight.MarketInsight != "steady" {
		t.Fatalf("unexpected augmentation: %+v", got)
	}
}

func TestSafeAugmentIsolatesFailures(t *testing.T) {
	cases := []struct {
		name       string
		augmenter  Augmenter
		timeout    time.Duration
		wantReason string
	}{
		{
			name:       "not configured",
			augmenter:  nil,
			wantReason: "not configured",
		},
		{
			name: "service error",
			augmenter: stubAugmenter{fn: func(context.Context, *Request) (*Insight, error) {
				return nil, errors.New("503 from upstream")
			}},
			wantReason: "503 from upstream",
		},
		{
			name: "panic",
			augmenter: stubAugmenter{fn: func(context.Context, *Request) (*Insight, error) {
				panic("boom")
			}},
			wantReason: "panicked",
		},
		{
			name: "timeout",
			augmenter: stubAugmenter{fn: func(ctx context.Context, _ *Request) (*Insight, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}},
			timeout:    10 * time.Millisecond,
			wantReason: "timed out",
		},
		{
			name: "nil insight",
			augmenter: stubAugmenter{fn: func(context.Context, *Request) (*Insight, error) {
				return nil, nil
			}},
			wantReason: "no insight",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.WarnLevel)
			timeout := tc.timeout
			if timeout == 0 {
				timeout = time.Second
			}

			got := SafeAugment(context.Background(), tc.augmenter, timeout, testRequest(), zap.New(core))
			if got.Available || got.Insight != nil {
				t.Fatalf("expected unavailable augmentation, got %+v", got)
			}
			if !strings.Contains(got.Reason, tc.wantReason) {
				t.Fatalf("expected reason containing %q, got %q", tc.wantReason, got.Reason)
			}
			if tc.augmenter != nil && logs.FilterMessage("augmentation unavailable").Len() != 1 {
				t.Fatalf("expected a warning to be logged")
			}
		})
	}
}

func TestSafeAugmentHonoursParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	augmenter := stubAugmenter{fn: func(ctx context.Context, _ *Request) (*Insight, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	got := SafeAugment(ctx, augmenter, time.Minute, testRequest(), nil)
	if got.Available || got.Reason != "augmentation cancelled" {
		t.Fatalf("unexpected augmentation: %+v", got)
	}
}

func TestSafeAugmentCannotAlterResults(t *testing.T) {
	req := testRequest()
	before := req.Matches[0].Result

	augmenter := stubAugmenter{fn: func(_ context.Context, in *Request) (*Insight, error) {
		in.Matches[0].Result.Score = 1
		in.Matches[0].Result.Tier = matching.TierLow
		in.Matches[0].Result.Factors[0].PointsAwarded = -1
		return &Insight{}, nil
	}}

	got := SafeAugment(context.Background(), augmenter, time.Second, req, nil)
	if !got.Available {
		t.Fatalf("expected insight, got %+v", got)
	}

	after := req.Matches[0].Result
	if after.Score != before.Score || after.Tier != before.Tier || after.Factors[0].PointsAwarded != before.Factors[0].PointsAwarded {
		t.Fatalf("augmenter changed the ranked result: %+v", after)
	}
}

func TestSafeAugmentWithoutMatches(t *testing.T) {
	called := false
	augmenter := stubAugmenter{fn: func(context.Context, *Request) (*Insight, error) {
		called = true
		return &Insight{}, nil
	}}

	got := SafeAugment(context.Background(), augmenter, time.Second, &Request{}, nil)
	if got.Available || called {
		t.Fatalf("expected augmentation to be skipped for empty results")
	}
}

func TestNormalizeUrgency(t *testing.T) {
	cases := map[Urgency]Urgency{" HIGH ": UrgencyHigh, "Low": UrgencyLow, "medium": UrgencyMedium, "asap": ""}
	for in, want := range cases {
		if got := NormalizeUrgency(in); got != want {
			t.Fatalf("NormalizeUrgency(%q): expected %q, got %q", in, want, got)
		}
	}
}

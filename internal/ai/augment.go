package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/property-matcher/internal/estate"
	"github.com/spigell/property-matcher/internal/matching"
)

// ErrUnavailable marks any augmentation failure. The ranked results stay valid.
var ErrUnavailable = errors.New("augmentation unavailable")

const DefaultTimeout = 20 * time.Second

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Insight is the narrative decoration produced for one forward ranking.
type Insight struct {
	Suggestions          []string `json:"suggestions"`
	MarketInsight        string   `json:"market_insight"`
	NegotiationTip       string   `json:"negotiation_tip"`
	Urgency              Urgency  `json:"urgency"`
	AlternativeLocations []string `json:"alternative_locations"`
	// ParseStage names the repair stage that produced the insight.
	ParseStage string `json:"parse_stage,omitempty"`
	Raw        string `json:"-"`
}

// Match pairs a ranked result with the listing it was computed for.
type Match struct {
	Listing     estate.Listing
	Result      matching.MatchResult
	Explanation []string
}

type Request struct {
	Profile estate.RequirementProfile
	Matches []Match
	// History holds free-text notes from earlier interactions, newest last.
	History []string
}

type Augmenter interface {
	Augment(ctx context.Context, req *Request) (*Insight, error)
}

// Augmentation is the outcome exposed to callers: an insight or the reason there is none.
type Augmentation struct {
	Available bool     `json:"available"`
	Reason    string   `json:"reason,omitempty"`
	Insight   *Insight `json:"insight,omitempty"`
}

func unavailable(reason string) Augmentation {
	return Augmentation{Available: false, Reason: reason}
}

// SafeAugment runs the augmenter under its own timeout and converts every failure,
// including panics, into an unavailable Augmentation. The request is copied so the
// augmenter cannot touch the caller's results.
func SafeAugment(ctx context.Context, augmenter Augmenter, timeout time.Duration, req *Request, logger *zap.Logger) Augmentation {
	if logger == nil {
		logger = zap.NewNop()
	}
	if augmenter == nil {
		return unavailable("augmenter is not configured")
	}
	if req == nil || len(req.Matches) == 0 {
		return unavailable("no ranked results to augment")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		insight *Insight
		err     error
	}
	done := make(chan outcome, 1)

	input := cloneRequest(req)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: augmenter panicked: %v", ErrUnavailable, r)}
			}
		}()
		insight, err := augmenter.Augment(ctx, input)
		done <- outcome{insight: insight, err: err}
	}()

	var out outcome
	select {
	case <-ctx.Done():
	case out = <-done:
	}

	if out.err != nil || out.insight == nil {
		if ctx.Err() != nil {
			reason := "augmentation cancelled"
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				reason = fmt.Sprintf("augmentation timed out after %s", timeout)
			}
			logger.Warn("augmentation unavailable", zap.String("reason", reason))
			return unavailable(reason)
		}
	}
	if out.err != nil {
		logger.Warn("augmentation unavailable", zap.Error(out.err))
		return unavailable(out.err.Error())
	}
	if out.insight == nil {
		logger.Warn("augmentation unavailable", zap.String("reason", "empty insight"))
		return unavailable("augmenter returned no insight")
	}
	return Augmentation{Available: true, Insight: out.insight}
}

func cloneRequest(req *Request) *Request {
	out := &Request{
		Profile: req.Profile,
		Matches: make([]Match, len(req.Matches)),
		History: append([]string(nil), req.History...),
	}
	for i, m := range req.Matches {
		m.Result.Factors = append([]matching.Factor(nil), m.Result.Factors...)
		m.Explanation = append([]string(nil), m.Explanation...)
		out.Matches[i] = m
	}
	return out
}

// NormalizeUrgency maps free text onto a known urgency; unknown values become empty.
func NormalizeUrgency(u Urgency) Urgency {
	switch Urgency(strings.ToLower(strings.TrimSpace(string(u)))) {
	case UrgencyLow:
		return UrgencyLow
	case UrgencyMedium:
		return UrgencyMedium
	case UrgencyHigh:
		return UrgencyHigh
	default:
		return ""
	}
}

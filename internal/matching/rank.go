package matching

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/property-matcher/internal/estate"
)

type Direction string

const (
	// Forward ranks listings for one requirement profile.
	Forward Direction = "forward"
	// Reverse ranks requirement profiles for one listing.
	Reverse Direction = "reverse"
)

// Observer receives ranking events. Implementations must be safe for concurrent use.
type Observer interface {
	ObserveScored(direction Direction, tier Tier)
	ObserveRejected(direction Direction, reason string)
	ObserveRanking(direction Direction, elapsed time.Duration, candidates, returned int)
}

// Rejection describes a candidate that could not be scored.
type Rejection struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type Ranking struct {
	Direction  Direction     `json:"direction"`
	AnchorID   string        `json:"anchor_id"`
	Candidates int           `json:"candidates"`
	Results    []MatchResult `json:"results"`
	Rejected   []Rejection   `json:"rejected,omitempty"`
	// Indices holds the input position of each result's candidate, parallel to Results.
	Indices []int `json:"-"`
}

const reasonDuplicateID = "duplicate id"

type Engine struct {
	policy   Policy
	logger   *zap.Logger
	observer Observer
}

func NewEngine(policy Policy, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		policy: policy.withDefaults(),
		logger: logger,
	}
}

func (e *Engine) SetObserver(o Observer) {
	e.observer = o
}

func (e *Engine) Policy() Policy {
	return e.policy
}

type scored struct {
	result  MatchResult
	tieKey  float64
	id      string
	index   int
	invalid error
}

// RankListingsForProfile scores every listing against the profile, applies the feedback
// bonus, sorts by score and returns the first topN. topN <= 0 uses the policy default.
func (e *Engine) RankListingsForProfile(ctx context.Context, profile estate.RequirementProfile, listings []estate.Listing, feedback []estate.FeedbackRecord, topN int) (*Ranking, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if topN <= 0 {
		topN = e.policy.TopN
	}

	started := time.Now()
	byListing := estate.FeedbackIndex(feedback)

	ids := make([]string, len(listings))
	for i := range listings {
		ids[i] = listings[i].ID
	}

	items, err := e.scoreAll(ctx, ids, func(i int) scored {
		l := listings[i]
		if err := l.Validate(); err != nil {
			return scored{id: l.ID, invalid: err}
		}
		res := Score(l, profile)
		res = applyFeedbackBonus(res, byListing[l.ID], e.policy.FeedbackBonus)
		return scored{result: res, id: l.ID, tieKey: e.tieKey(l.Price, &profile)}
	})
	if err != nil {
		return nil, err
	}

	ranking := e.collect(Forward, profile.ID, items, func(MatchResult) bool { return true })
	if len(ranking.Results) > topN {
		ranking.Results = ranking.Results[:topN]
		ranking.Indices = ranking.Indices[:topN]
	}

	e.finish(ranking, started)
	return ranking, nil
}

// ScorePair scores one pair the way RankListingsForProfile would, feedback bonus included.
func (e *Engine) ScorePair(listing estate.Listing, profile estate.RequirementProfile, feedback []estate.FeedbackRecord) (MatchResult, error) {
	if err := profile.Validate(); err != nil {
		return MatchResult{}, err
	}
	if err := listing.Validate(); err != nil {
		return MatchResult{}, err
	}
	res := Score(listing, profile)
	return applyFeedbackBonus(res, estate.FeedbackIndex(feedback)[listing.ID], e.policy.FeedbackBonus), nil
}

// RankProfilesForListing scores every profile against the listing and returns all
// profiles reaching the reverse threshold. No feedback bonus is applied in this direction.
func (e *Engine) RankProfilesForListing(ctx context.Context, listing estate.Listing, profiles []estate.RequirementProfile) (*Ranking, error) {
	if err := listing.Validate(); err != nil {
		return nil, err
	}

	started := time.Now()
	ids := make([]string, len(profiles))
	for i := range profiles {
		ids[i] = profiles[i].ID
	}

	items, err := e.scoreAll(ctx, ids, func(i int) scored {
		p := profiles[i]
		if err := p.Validate(); err != nil {
			return scored{id: p.ID, invalid: err}
		}
		return scored{result: Score(listing, p), id: p.ID, tieKey: e.tieKey(listing.Price, &p)}
	})
	if err != nil {
		return nil, err
	}

	threshold := e.policy.ReverseThreshold
	ranking := e.collect(Reverse, listing.ID, items, func(r MatchResult) bool { return r.Score >= threshold })

	e.finish(ranking, started)
	return ranking, nil
}

// scoreAll evaluates the candidates named by ids in parallel. Each slot is written by
// exactly one goroutine.
func (e *Engine) scoreAll(ctx context.Context, ids []string, score func(i int) scored) ([]scored, error) {
	n := len(ids)
	items := make([]scored, n)
	if n == 0 {
		return items, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.policy.Workers)

	for i := range n {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			items[i] = safeScore(i, ids[i], score)
			items[i].index = i
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scoring candidates: %w", err)
	}
	return items, nil
}

func safeScore(i int, id string, score func(i int) scored) (s scored) {
	defer func() {
		if r := recover(); r != nil {
			s = scored{id: id, invalid: fmt.Errorf("scoring candidate #%d panicked: %v", i, r)}
		}
	}()
	return score(i)
}

func (e *Engine) collect(direction Direction, anchorID string, items []scored, keep func(MatchResult) bool) *Ranking {
	ranking := &Ranking{
		Direction:  direction,
		AnchorID:   anchorID,
		Candidates: len(items),
		Results:    make([]MatchResult, 0, len(items)),
	}

	reject := func(it scored, reason, label string) {
		e.logger.Warn("candidate skipped",
			zap.String("direction", string(direction)),
			zap.String("anchor_id", anchorID),
			zap.String("candidate_id", it.id),
			zap.Int("candidate_index", it.index),
			zap.String("reason", reason),
		)
		ranking.Rejected = append(ranking.Rejected, Rejection{ID: it.id, Reason: reason})
		if e.observer != nil {
			e.observer.ObserveRejected(direction, label)
		}
	}

	// items are in input order, so the first candidate carrying an id keeps it.
	seen := make(map[string]struct{}, len(items))
	valid := make([]scored, 0, len(items))
	for _, it := range items {
		if it.id != "" {
			if _, dup := seen[it.id]; dup {
				reject(it, reasonDuplicateID, "duplicate")
				continue
			}
			seen[it.id] = struct{}{}
		}

		if it.invalid != nil {
			reject(it, it.invalid.Error(), "invalid")
			continue
		}
		if e.observer != nil {
			e.observer.ObserveScored(direction, it.result.Tier)
		}
		if !keep(it.result) {
			continue
		}
		valid = append(valid, it)
	}

	sortScored(valid)
	ranking.Indices = make([]int, 0, len(valid))
	for _, it := range valid {
		ranking.Results = append(ranking.Results, it.result)
		ranking.Indices = append(ranking.Indices, it.index)
	}
	sort.SliceStable(ranking.Rejected, func(i, j int) bool { return ranking.Rejected[i].ID < ranking.Rejected[j].ID })
	return ranking
}

// sortScored orders by score descending, then tie key ascending, then id ascending.
func sortScored(items []scored) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.result.Score != b.result.Score {
			return a.result.Score > b.result.Score
		}
		if a.tieKey != b.tieKey {
			return a.tieKey < b.tieKey
		}
		return a.id < b.id
	})
}

func (e *Engine) tieKey(price float64, profile *estate.RequirementProfile) float64 {
	if e.policy.TieBreak == TieBreakID {
		return 0
	}
	mid, ok := profile.BudgetMidpoint()
	if !ok {
		return math.Inf(1)
	}
	return math.Abs(price - mid)
}

func (e *Engine) finish(r *Ranking, started time.Time) {
	elapsed := time.Since(started)
	if e.observer != nil {
		e.observer.ObserveRanking(r.Direction, elapsed, r.Candidates, len(r.Results))
	}
	e.logger.Debug("ranking completed",
		zap.String("direction", string(r.Direction)),
		zap.String("anchor_id", r.AnchorID),
		zap.Int("candidates", r.Candidates),
		zap.Int("returned", len(r.Results)),
		zap.Int("rejected", len(r.Rejected)),
		zap.Duration("elapsed", elapsed),
	)
}

package matching

import (
	"fmt"
	"runtime"
	"strings"
)

type TieBreak string

const (
	// TieBreakBudgetDistance orders equal scores by distance from the budget midpoint, then by id.
	TieBreakBudgetDistance TieBreak = "budget-distance"
	// TieBreakID orders equal scores by candidate id only.
	TieBreakID TieBreak = "id"
)

const (
	DefaultTopN             = 10
	DefaultReverseThreshold = 40
)

// Policy holds the tunables of the ranking pipeline.
type Policy struct {
	TopN             int      `mapstructure:"top-n"`
	ReverseThreshold int      `mapstructure:"reverse-threshold"`
	TieBreak         TieBreak `mapstructure:"tie-break"`
	Workers          int      `mapstructure:"workers"`
	FeedbackBonus    float64  `mapstructure:"feedback-bonus"`
}

func DefaultPolicy() Policy {
	return Policy{
		TopN:             DefaultTopN,
		ReverseThreshold: DefaultReverseThreshold,
		TieBreak:         TieBreakBudgetDistance,
		Workers:          runtime.NumCPU(),
		FeedbackBonus:    DefaultFeedbackBonus,
	}
}

// Validate rejects settings that cannot be repaired by defaults.
func (p Policy) Validate() error {
	switch TieBreak(strings.ToLower(strings.TrimSpace(string(p.TieBreak)))) {
	case "", TieBreakBudgetDistance, TieBreakID:
	default:
		return fmt.Errorf("unknown tie-break policy %q", p.TieBreak)
	}
	if p.ReverseThreshold < 0 || p.ReverseThreshold > 100 {
		return fmt.Errorf("reverse threshold %d is outside 0..100", p.ReverseThreshold)
	}
	if p.FeedbackBonus < 0 {
		return fmt.Errorf("feedback bonus must not be negative")
	}
	return nil
}

func (p Policy) withDefaults() Policy {
	if p.TopN <= 0 {
		p.TopN = DefaultTopN
	}
	if p.Workers <= 0 {
		p.Workers = runtime.NumCPU()
	}
	p.TieBreak = TieBreak(strings.ToLower(strings.TrimSpace(string(p.TieBreak))))
	if p.TieBreak == "" {
		p.TieBreak = TieBreakBudgetDistance
	}
	return p
}

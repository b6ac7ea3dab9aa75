// Package progression converts two solved-count snapshots into XP, level and
// streak transitions. Everything here is pure and deterministic.
package progression

import (
	"github.com/pixelcode/pixelsync/internal/domain/model"
)

// Default XP awarded per newly solved problem.
const (
	defaultEasyXP   = 10
	defaultMediumXP = 25
	defaultHardXP   = 50
)

// Weights holds the XP value of one solved problem per difficulty.
type Weights struct {
	Easy   int
	Medium int
	Hard   int
}

// DefaultWeights returns the standard Easy=10, Medium=25, Hard=50 table.
func DefaultWeights() Weights {
	return Weights{Easy: defaultEasyXP, Medium: defaultMediumXP, Hard: defaultHardXP}
}

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithWeights overrides the XP table. Non-positive entries keep their default.
func WithWeights(w Weights) Option {
	return func(c *Calculator) {
		if w.Easy > 0 {
			c.weights.Easy = w.Easy
		}
		if w.Medium > 0 {
			c.weights.Medium = w.Medium
		}
		if w.Hard > 0 {
			c.weights.Hard = w.Hard
		}
	}
}

// Delta is the non-negative per-bucket difference between two snapshots.
type Delta struct {
	Easy   int `json:"deltaEasy"`
	Medium int `json:"deltaMedium"`
	Hard   int `json:"deltaHard"`
	Total  int `json:"deltaTotal"`
}

// Input carries everything a single transition depends on.
type Input struct {
	Previous        model.Counts
	Current         model.Counts
	PreviousStreak  int
	PreviousTotalXP int
	FreezeTokens    int
}

// Result is the new progression state derived from an Input.
type Result struct {
	Delta
	XPEarned   int
	NewStreak  int
	UsedFreeze bool
	NewTotalXP int
	NewLevel   int
}

// Calculator computes progression transitions.
type Calculator struct {
	weights Weights
}

// NewCalculator creates a calculator with the default XP table.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{weights: DefaultWeights()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Weights returns the XP table in use.
func (c *Calculator) Weights() Weights { return c.weights }

// Calculate derives the delta, XP, streak and level for one day.
// The total bucket is a cross-check figure and earns no XP on its own.
func (c *Calculator) Calculate(in Input) Result {
	d := DeriveDelta(in.Previous, in.Current)

	xp := d.Easy*c.weights.Easy + d.Medium*c.weights.Medium + d.Hard*c.weights.Hard

	streak := in.PreviousStreak
	usedFreeze := false
	switch {
	case d.Total > 0:
		streak = in.PreviousStreak + 1
	case in.FreezeTokens > 0:
		// Streak preserved; the caller decrements the token pool.
		usedFreeze = true
	default:
		streak = 0
	}

	total := in.PreviousTotalXP + xp
	return Result{
		Delta:      d,
		XPEarned:   xp,
		NewStreak:  streak,
		UsedFreeze: usedFreeze,
		NewTotalXP: total,
		NewLevel:   Level(total),
	}
}

// Calculate runs a transition with the default XP table.
func Calculate(in Input) Result {
	return NewCalculator().Calculate(in)
}

// DeriveDelta returns max(0, current-previous) for every bucket.
func DeriveDelta(previous, current model.Counts) Delta {
	return Delta{
		Easy:   clampedDiff(current.EasySolved, previous.EasySolved),
		Medium: clampedDiff(current.MediumSolved, previous.MediumSolved),
		Hard:   clampedDiff(current.HardSolved, previous.HardSolved),
		Total:  clampedDiff(current.TotalSolved, previous.TotalSolved),
	}
}

// Regressions lists the buckets whose count went down between two snapshots.
// The delta for those buckets is clamped to zero; callers may surface this.
func Regressions(previous, current model.Counts) []string {
	var out []string
	if current.EasySolved < previous.EasySolved {
		out = append(out, "easy")
	}
	if current.MediumSolved < previous.MediumSolved {
		out = append(out, "medium")
	}
	if current.HardSolved < previous.HardSolved {
		out = append(out, "hard")
	}
	if current.TotalSolved < previous.TotalSolved {
		out = append(out, "total")
	}
	return out
}

// Level returns floor(sqrt(xp)), or 0 for non-positive xp.
func Level(xp int) int {
	if xp <= 0 {
		return 0
	}
	// Newton iteration on integers; exact for the whole int range.
	x := xp
	y := x/2 + x%2
	for y < x {
		x = y
		y = (x + xp/x) / 2
	}
	return x
}

func clampedDiff(current, previous int) int {
	if current > previous {
		return current - previous
	}
	return 0
}

package strategy

import (
	"errors"
	"fmt"
	"sort"

	"adaptive-trader/pkg/types"
)

// ErrNoScore means a scorer could not form an opinion this tick (usually too
// little history). The composite engine excludes such scorers from the
// weighted denominator instead of treating them as zero.
var ErrNoScore = errors.New("no score available")

// IndicatorStrategy scores a bar window in [-1,1]. Positive favors buying,
// negative favors selling, zero is no opinion. Crossing events produce the
// strongest magnitudes; sustained one-sided state produces graded magnitudes
// from the distance to the indicator's neutral midpoint.
type IndicatorStrategy interface {
	// Score returns a value in [-1,1], or ErrNoScore.
	Score(data []types.OHLCV) (float64, error)

	// Name returns the registry key for this scorer.
	Name() string

	// RequiredBars returns the minimum window length Score accepts.
	RequiredBars() int
}

// Registry is a name-keyed table of scorers. The composite engine dispatches
// through it and never inspects concrete types.
type Registry struct {
	scorers map[string]IndicatorStrategy
}

func NewRegistry(scorers ...IndicatorStrategy) *Registry {
	r := &Registry{scorers: make(map[string]IndicatorStrategy, len(scorers))}
	for _, s := range scorers {
		r.scorers[s.Name()] = s
	}
	return r
}

// Register adds or replaces a scorer under its own name.
func (r *Registry) Register(s IndicatorStrategy) {
	r.scorers[s.Name()] = s
}

// Get returns the scorer registered under name.
func (r *Registry) Get(name string) (IndicatorStrategy, error) {
	s, ok := r.scorers[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
	return s, nil
}

// Names returns registered scorer names in deterministic order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.scorers))
	for name := range r.scorers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry wires the standard scorer set.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewRSIScorer(14),
		NewMACDScorer(12, 26, 9),
		NewBollingerScorer(20, 2.0),
		NewEMACrossScorer(9, 21),
		NewOBVScorer(10),
	)
}

// clampScore bounds a raw score to [-1,1].
func clampScore(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

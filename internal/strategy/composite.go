package strategy

import (
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"

	"adaptive-trader/internal/regime"
	"adaptive-trader/pkg/types"
)

// Action is the categorical decision mapped from the composite score.
type Action int

const (
	ActionHold Action = iota
	ActionBuy
	ActionStrongBuy
	ActionSell
	ActionStrongSell
)

func (a Action) String() string {
	switch a {
	case ActionStrongBuy:
		return "STRONG_BUY"
	case ActionBuy:
		return "BUY"
	case ActionSell:
		return "SELL"
	case ActionStrongSell:
		return "STRONG_SELL"
	default:
		return "HOLD"
	}
}

// IsBuy reports whether the action opens a long.
func (a Action) IsBuy() bool { return a == ActionBuy || a == ActionStrongBuy }

// IsSell reports whether the action opens a short.
func (a Action) IsSell() bool { return a == ActionSell || a == ActionStrongSell }

// Side maps a tradeable action to its position side.
func (a Action) Side() types.Side {
	if a.IsSell() {
		return types.SideSell
	}
	return types.SideBuy
}

// Contribution is one scorer's share of a composite result.
type Contribution struct {
	Score  float64
	Weight float64
}

// Result is the composite decision for one tick.
type Result struct {
	Score         float64
	Action        Action
	Confidence    float64
	Regime        regime.Label
	Contributions map[string]Contribution
	Timestamp     time.Time
}

// CompositeConfig tunes the ensemble and its weight adaptation.
type CompositeConfig struct {
	Adaptive       bool    `json:"adaptive"`
	HistorySize    int     `json:"history_size"`    // per-strategy rolling score window
	MinAdaptTicks  int     `json:"min_adapt_ticks"` // history needed before adapting
	MinWeightShare float64 `json:"min_weight_share"`
	StabilityBlend float64 `json:"stability_blend"` // stability share of the blend
}

// DefaultCompositeConfig returns the shipped ensemble parameters.
func DefaultCompositeConfig() CompositeConfig {
	return CompositeConfig{
		Adaptive:       false,
		HistorySize:    50,
		MinAdaptTicks:  10,
		MinWeightShare: 0.05,
		StabilityBlend: 0.7,
	}
}

// Composite is the weighted ensemble over the registered scorers. One
// instance serves one symbol; the adaptive-weights table is mutable state and
// is not synchronized.
type Composite struct {
	registry *Registry
	weights  Weights
	cfg      CompositeConfig
	history  map[string][]float64
	log      zerolog.Logger
}

func NewComposite(registry *Registry, weights Weights, cfg CompositeConfig, log zerolog.Logger) *Composite {
	if cfg.HistorySize <= 0 {
		cfg = DefaultCompositeConfig()
	}
	return &Composite{
		registry: registry,
		weights:  weights,
		cfg:      cfg,
		history:  make(map[string][]float64),
		log:      log.With().Str("component", "composite").Logger(),
	}
}

// Weights exposes the live weight table, mainly for inspection and tests.
func (c *Composite) Weights() Weights { return c.weights }

// Evaluate computes the composite decision for the window under the active
// regime. A scorer that returns an error this tick is excluded from both the
// numerator and the denominator, never counted as a zero opinion.
func (c *Composite) Evaluate(data []types.OHLCV, label regime.Label, now time.Time) *Result {
	row := c.weights.Row(label, c.registry.Names())

	weighted := 0.0
	total := 0.0
	contributions := make(map[string]Contribution)

	for _, name := range c.registry.Names() {
		weight := row[name]
		if weight <= 0 {
			continue
		}
		scorer, err := c.registry.Get(name)
		if err != nil {
			continue
		}
		score, err := scorer.Score(data)
		if err != nil {
			if !errors.Is(err, ErrNoScore) {
				c.log.Warn().Err(err).Str("strategy", name).Msg("scorer failed")
			}
			continue
		}

		weighted += weight * score
		total += weight
		contributions[name] = Contribution{Score: score, Weight: weight}

		if c.cfg.Adaptive {
			c.record(name, score)
		}
	}

	result := &Result{
		Regime:        label,
		Contributions: contributions,
		Timestamp:     now,
	}
	if total > 0 {
		result.Score = weighted / total
	}
	result.Action = actionFor(result.Score)
	result.Confidence = confidenceFor(result.Score)

	if c.cfg.Adaptive && label != regime.Unknown {
		c.adaptRow(label)
	}

	return result
}

// actionFor maps the composite score to the five-level action set.
func actionFor(score float64) Action {
	switch {
	case score >= 0.5:
		return ActionStrongBuy
	case score >= 0.2:
		return ActionBuy
	case score <= -0.5:
		return ActionStrongSell
	case score <= -0.2:
		return ActionSell
	default:
		return ActionHold
	}
}

// confidenceFor scales the score magnitude to [0,100]. Full conviction is
// reached before the theoretical score maximum; the value saturates at 100.
func confidenceFor(score float64) float64 {
	conf := math.Abs(score) * 125
	if conf > 100 {
		return 100
	}
	return conf
}

func (c *Composite) record(name string, score float64) {
	h := append(c.history[name], score)
	if len(h) > c.cfg.HistorySize {
		h = h[len(h)-c.cfg.HistorySize:]
	}
	c.history[name] = h
}

// adaptRow recomputes the active regime's weight row from recent scorer
// behavior: a stability measure (fraction of ticks without a sign flip)
// blended with average magnitude. Every strategy keeps at least the minimum
// share so none is ever silenced, and the row is renormalized to sum 1.
func (c *Composite) adaptRow(label regime.Label) {
	names := c.registry.Names()
	raw := make(map[string]float64, len(names))
	ready := true
	for _, name := range names {
		h := c.history[name]
		if len(h) < c.cfg.MinAdaptTicks {
			ready = false
			break
		}
		raw[name] = c.cfg.StabilityBlend*stability(h) + (1-c.cfg.StabilityBlend)*avgMagnitude(h)
	}
	if !ready {
		return
	}

	NormalizeRow(raw)
	for name := range raw {
		if raw[name] < c.cfg.MinWeightShare {
			raw[name] = c.cfg.MinWeightShare
		}
	}
	NormalizeRow(raw)
	c.weights[label] = raw
}

// stability is the fraction of consecutive ticks whose score kept its sign.
func stability(scores []float64) float64 {
	if len(scores) < 2 {
		return 1
	}
	stable := 0
	for i := 1; i < len(scores); i++ {
		if !signFlip(scores[i-1], scores[i]) {
			stable++
		}
	}
	return float64(stable) / float64(len(scores)-1)
}

func signFlip(a, b float64) bool {
	return (a > 0 && b < 0) || (a < 0 && b > 0)
}

func avgMagnitude(scores []float64) float64 {
	sum := 0.0
	for _, s := range scores {
		sum += math.Abs(s)
	}
	return sum / float64(len(scores))
}

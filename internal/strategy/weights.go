package strategy

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"adaptive-trader/internal/regime"
)

// ErrInvalidRiskProfile marks a risk profile that cannot open positions.
// It is fatal only for the position being opened, never mid-lifecycle.
var ErrInvalidRiskProfile = errors.New("invalid risk profile")

// weightTolerance is the allowed drift from 1.0 for a regime's weight sum.
const weightTolerance = 1e-6

// Weights maps regime → strategy name → weight in [0,1]. Weights for a
// regime sum to 1; Normalize re-enforces the invariant after adaptation.
type Weights map[regime.Label]map[string]float64

// LadderRung is one step of a partial take-profit ladder.
type LadderRung struct {
	TriggerPct float64 `json:"trigger_pct"` // profit % that fires the rung
	Portion    float64 `json:"portion"`     // share of remaining size to close, (0,1]
}

// RiskProfile carries the per-regime risk parameters a position is opened
// under. A snapshot is taken at open time; later profile edits never touch
// live positions.
type RiskProfile struct {
	RiskPercentage         float64      `json:"risk_percentage"`
	TakeProfitPct          float64      `json:"take_profit_pct"`
	StopLossPct            float64      `json:"stop_loss_pct"`
	TrailingStop           bool         `json:"trailing_stop"`
	TrailingActivationPct  float64      `json:"trailing_activation_pct"`
	TrailingCallbackPct    float64      `json:"trailing_callback_pct"`
	MaxConcurrentPositions int          `json:"max_concurrent_positions"`
	TakeProfitLadder       []LadderRung `json:"take_profit_ladder,omitempty"`
}

// Validate reports whether the profile can open a position.
func (p RiskProfile) Validate() error {
	if p.RiskPercentage <= 0 || p.RiskPercentage > 100 {
		return fmt.Errorf("%w: risk_percentage %.2f outside (0,100]", ErrInvalidRiskProfile, p.RiskPercentage)
	}
	if p.StopLossPct <= 0 {
		return fmt.Errorf("%w: stop_loss_pct %.2f must be positive", ErrInvalidRiskProfile, p.StopLossPct)
	}
	if p.TakeProfitPct <= 0 && len(p.TakeProfitLadder) == 0 {
		return fmt.Errorf("%w: no take-profit target configured", ErrInvalidRiskProfile)
	}
	if p.TrailingStop && (p.TrailingActivationPct <= 0 || p.TrailingCallbackPct <= 0) {
		return fmt.Errorf("%w: trailing stop enabled without activation/callback", ErrInvalidRiskProfile)
	}
	if p.MaxConcurrentPositions <= 0 {
		return fmt.Errorf("%w: max_concurrent_positions must be at least 1", ErrInvalidRiskProfile)
	}
	for i, rung := range p.TakeProfitLadder {
		if rung.TriggerPct <= 0 || rung.Portion <= 0 || rung.Portion > 1 {
			return fmt.Errorf("%w: ladder rung %d malformed", ErrInvalidRiskProfile, i)
		}
	}
	return nil
}

// RiskProfiles maps regime → profile.
type RiskProfiles map[regime.Label]RiskProfile

// DefaultWeights returns the shipped weight table. Trend followers dominate
// trending regimes, mean reversion dominates ranging ones.
func DefaultWeights() Weights {
	return Weights{
		regime.TrendingUp: {
			"ema_cross": 0.35, "macd": 0.25, "rsi": 0.10, "bollinger": 0.10, "obv": 0.20,
		},
		regime.TrendingDown: {
			"ema_cross": 0.35, "macd": 0.25, "rsi": 0.10, "bollinger": 0.10, "obv": 0.20,
		},
		regime.Ranging: {
			"ema_cross": 0.10, "macd": 0.10, "rsi": 0.35, "bollinger": 0.35, "obv": 0.10,
		},
		regime.Volatile: {
			"ema_cross": 0.15, "macd": 0.20, "rsi": 0.25, "bollinger": 0.25, "obv": 0.15,
		},
		regime.Quiet: {
			"ema_cross": 0.20, "macd": 0.20, "rsi": 0.25, "bollinger": 0.25, "obv": 0.10,
		},
	}
}

// DefaultRiskProfiles returns the shipped per-regime risk parameters.
func DefaultRiskProfiles() RiskProfiles {
	return RiskProfiles{
		regime.TrendingUp: {
			RiskPercentage: 3.0, TakeProfitPct: 4.0, StopLossPct: 2.0,
			TrailingStop: true, TrailingActivationPct: 1.5, TrailingCallbackPct: 0.8,
			MaxConcurrentPositions: 3,
		},
		regime.TrendingDown: {
			RiskPercentage: 2.0, TakeProfitPct: 3.0, StopLossPct: 2.0,
			TrailingStop: true, TrailingActivationPct: 1.5, TrailingCallbackPct: 0.8,
			MaxConcurrentPositions: 2,
		},
		regime.Ranging: {
			RiskPercentage: 2.0, TakeProfitPct: 1.5, StopLossPct: 1.0,
			MaxConcurrentPositions: 2,
		},
		regime.Volatile: {
			RiskPercentage: 1.0, TakeProfitPct: 2.5, StopLossPct: 3.0,
			MaxConcurrentPositions: 1,
		},
		regime.Quiet: {
			RiskPercentage: 1.5, TakeProfitPct: 1.0, StopLossPct: 0.8,
			MaxConcurrentPositions: 1,
		},
	}
}

// UniformRow returns an equal-weight row over names. Used when the regime is
// unknown and no tuned row applies.
func UniformRow(names []string) map[string]float64 {
	row := make(map[string]float64, len(names))
	if len(names) == 0 {
		return row
	}
	w := 1.0 / float64(len(names))
	for _, name := range names {
		row[name] = w
	}
	return row
}

// Row returns the weight row for label, falling back to a uniform row over
// names when the table has none.
func (w Weights) Row(label regime.Label, names []string) map[string]float64 {
	if row, ok := w[label]; ok && len(row) > 0 {
		return row
	}
	return UniformRow(names)
}

// Validate checks every regime row sums to 1 within tolerance.
func (w Weights) Validate() error {
	for label, row := range w {
		sum := 0.0
		for name, weight := range row {
			if weight < 0 || weight > 1 {
				return fmt.Errorf("weight %q=%.4f for %s outside [0,1]", name, weight, label)
			}
			sum += weight
		}
		if math.Abs(sum-1) > weightTolerance {
			return fmt.Errorf("weights for %s sum to %.6f, want 1", label, sum)
		}
	}
	return nil
}

// NormalizeRow scales a row in place so it sums to 1. A zero row becomes
// uniform.
func NormalizeRow(row map[string]float64) {
	sum := 0.0
	for _, v := range row {
		sum += v
	}
	if sum == 0 {
		for name := range row {
			row[name] = 1.0 / float64(len(row))
		}
		return
	}
	for name := range row {
		row[name] /= sum
	}
}

// profileFile is the JSON layout for weights + risk profiles on disk.
type profileFile struct {
	Weights      map[string]map[string]float64 `json:"weights"`
	RiskProfiles map[string]RiskProfile        `json:"risk_profiles"`
}

// LoadProfiles reads a weights/risk-profile JSON file. Regimes absent from
// the file keep their defaults.
func LoadProfiles(path string) (Weights, RiskProfiles, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read profile file: %w", err)
	}

	var file profileFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, nil, fmt.Errorf("failed to parse profile file %s: %w", path, err)
	}

	weights := DefaultWeights()
	for name, row := range file.Weights {
		label := regime.ParseLabel(name)
		if label == regime.Unknown {
			return nil, nil, fmt.Errorf("unknown regime %q in %s", name, path)
		}
		weights[label] = row
	}
	if err := weights.Validate(); err != nil {
		return nil, nil, err
	}

	profiles := DefaultRiskProfiles()
	for name, profile := range file.RiskProfiles {
		label := regime.ParseLabel(name)
		if label == regime.Unknown {
			return nil, nil, fmt.Errorf("unknown regime %q in %s", name, path)
		}
		if err := profile.Validate(); err != nil {
			return nil, nil, fmt.Errorf("profile for %s: %w", name, err)
		}
		profiles[label] = profile
	}

	return weights, profiles, nil
}

package strategy

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"adaptive-trader/pkg/types"
)

// BollingerScorer scores on the close position inside the bands (%B).
// Re-entering the bands from outside is a crossing event; otherwise the
// score grades with the distance from the band midpoint.
type BollingerScorer struct {
	period int
	stdDev float64
}

func NewBollingerScorer(period int, stdDev float64) *BollingerScorer {
	return &BollingerScorer{period: period, stdDev: stdDev}
}

func (s *BollingerScorer) Name() string { return "bollinger" }

func (s *BollingerScorer) RequiredBars() int { return s.period + 2 }

func (s *BollingerScorer) Score(data []types.OHLCV) (float64, error) {
	if len(data) < s.RequiredBars() {
		return 0, fmt.Errorf("%w: bollinger needs %d bars", ErrNoScore, s.RequiredBars())
	}

	closes := types.Closes(data)
	upper, _, lower := talib.BBands(closes, s.period, s.stdDev, s.stdDev, talib.SMA)
	last := len(closes) - 1

	currB := percentB(closes[last], upper[last], lower[last])
	prevB := percentB(closes[last-1], upper[last-1], lower[last-1])

	// Band re-entries are the crossing events.
	if prevB < 0 && currB >= 0 {
		return 1, nil
	}
	if prevB > 1 && currB <= 1 {
		return -1, nil
	}

	// Sustained state: %B 0.5 is neutral, the band edges are full strength.
	return clampScore((0.5 - currB) * 2), nil
}

func percentB(close, upper, lower float64) float64 {
	if upper == lower {
		return 0.5
	}
	return (close - lower) / (upper - lower)
}

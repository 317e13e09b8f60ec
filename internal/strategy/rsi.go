package strategy

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"adaptive-trader/pkg/types"
)

// RSIScorer scores on the Relative Strength Index. Leaving the oversold zone
// is a full-strength buy, leaving the overbought zone a full-strength sell;
// otherwise the score grades with the distance from the 50 midpoint.
type RSIScorer struct {
	period     int
	oversold   float64
	overbought float64
}

func NewRSIScorer(period int) *RSIScorer {
	return &RSIScorer{
		period:     period,
		oversold:   30,
		overbought: 70,
	}
}

func (s *RSIScorer) Name() string { return "rsi" }

func (s *RSIScorer) RequiredBars() int { return s.period + 2 }

func (s *RSIScorer) Score(data []types.OHLCV) (float64, error) {
	if len(data) < s.RequiredBars() {
		return 0, fmt.Errorf("%w: rsi needs %d bars", ErrNoScore, s.RequiredBars())
	}

	rsi := talib.Rsi(types.Closes(data), s.period)
	curr := rsi[len(rsi)-1]
	prev := rsi[len(rsi)-2]

	// Zone exits are the crossing events.
	if prev < s.oversold && curr >= s.oversold {
		return 1, nil
	}
	if prev > s.overbought && curr <= s.overbought {
		return -1, nil
	}

	// Sustained state: distance from the midpoint, full strength at the zone
	// boundaries.
	return clampScore((50 - curr) / (50 - s.oversold)), nil
}

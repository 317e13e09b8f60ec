package strategy

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"adaptive-trader/pkg/types"
)

// EMACrossScorer scores on a fast/slow EMA pair. A fresh cross is full
// strength; a sustained separation grades with the relative spread.
type EMACrossScorer struct {
	fast int
	slow int

	// spreadScale is the relative spread treated as full strength. 2% of the
	// slow EMA saturates the score.
	spreadScale float64
}

func NewEMACrossScorer(fast, slow int) *EMACrossScorer {
	return &EMACrossScorer{fast: fast, slow: slow, spreadScale: 0.02}
}

func (s *EMACrossScorer) Name() string { return "ema_cross" }

func (s *EMACrossScorer) RequiredBars() int { return s.slow + 2 }

func (s *EMACrossScorer) Score(data []types.OHLCV) (float64, error) {
	if len(data) < s.RequiredBars() {
		return 0, fmt.Errorf("%w: ema_cross needs %d bars", ErrNoScore, s.RequiredBars())
	}

	closes := types.Closes(data)
	fast := talib.Ema(closes, s.fast)
	slow := talib.Ema(closes, s.slow)
	last := len(closes) - 1

	currAbove := fast[last] > slow[last]
	prevAbove := fast[last-1] > slow[last-1]

	if currAbove && !prevAbove {
		return 1, nil
	}
	if !currAbove && prevAbove {
		return -1, nil
	}

	if slow[last] == 0 {
		return 0, nil
	}
	spread := (fast[last] - slow[last]) / slow[last]
	return clampScore(spread / s.spreadScale), nil
}

package strategy

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"adaptive-trader/pkg/types"
)

// OBVScorer scores on On-Balance Volume confirming price flow. OBV crossing
// its own EMA is the event; otherwise the score grades with the normalized
// OBV slope over the lookback.
type OBVScorer struct {
	lookback int
}

func NewOBVScorer(lookback int) *OBVScorer {
	return &OBVScorer{lookback: lookback}
}

func (s *OBVScorer) Name() string { return "obv" }

func (s *OBVScorer) RequiredBars() int { return s.lookback * 2 }

func (s *OBVScorer) Score(data []types.OHLCV) (float64, error) {
	if len(data) < s.RequiredBars() {
		return 0, fmt.Errorf("%w: obv needs %d bars", ErrNoScore, s.RequiredBars())
	}

	obv := talib.Obv(types.Closes(data), types.Volumes(data))
	ema := talib.Ema(obv, s.lookback)
	last := len(obv) - 1

	currAbove := obv[last] > ema[last]
	prevAbove := obv[last-1] > ema[last-1]

	if currAbove && !prevAbove {
		return 1, nil
	}
	if !currAbove && prevAbove {
		return -1, nil
	}

	// Sustained state: slope of OBV over the lookback, normalized by the
	// absolute level so thin and heavy symbols score alike.
	ref := obv[last-s.lookback]
	denom := abs(obv[last]) + abs(ref)
	if denom == 0 {
		return 0, nil
	}
	return clampScore(2 * (obv[last] - ref) / denom), nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

package strategy

import (
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"

	"adaptive-trader/pkg/types"
)

// MACDScorer scores on MACD/signal interaction. A fresh line cross is full
// strength; a sustained spread grades with the histogram relative to the
// line magnitudes.
type MACDScorer struct {
	fast   int
	slow   int
	signal int
}

func NewMACDScorer(fast, slow, signal int) *MACDScorer {
	return &MACDScorer{fast: fast, slow: slow, signal: signal}
}

func (s *MACDScorer) Name() string { return "macd" }

func (s *MACDScorer) RequiredBars() int { return s.slow + s.signal + 2 }

func (s *MACDScorer) Score(data []types.OHLCV) (float64, error) {
	if len(data) < s.RequiredBars() {
		return 0, fmt.Errorf("%w: macd needs %d bars", ErrNoScore, s.RequiredBars())
	}

	macd, signal, hist := talib.Macd(types.Closes(data), s.fast, s.slow, s.signal)
	last := len(macd) - 1

	currAbove := macd[last] > signal[last]
	prevAbove := macd[last-1] > signal[last-1]

	if currAbove && !prevAbove {
		return 1, nil
	}
	if !currAbove && prevAbove {
		return -1, nil
	}

	scale := math.Abs(macd[last]) + math.Abs(signal[last])
	if scale == 0 {
		return 0, nil
	}
	return clampScore(hist[last] / scale), nil
}

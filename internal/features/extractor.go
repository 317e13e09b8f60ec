package features

import (
	"errors"
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"

	"adaptive-trader/pkg/types"
)

// ErrInsufficientHistory is returned when the window holds fewer bars than
// the extractor needs. Callers treat it as regime "unknown", not as a fault.
var ErrInsufficientHistory = errors.New("insufficient history for feature extraction")

// Feature names produced by Extractor.Extract.
const (
	FeatureVolatility   = "volatility"    // stdev of simple returns, in percent
	FeatureTrend        = "trend"         // % change from window start to end
	FeatureBandWidth    = "band_width"    // (upper-lower)/middle Bollinger width
	FeatureDirectional  = "directional"   // up-move share in [0,1]
	FeatureVolumeRatio  = "volume_ratio"  // recent volume vs whole-window average
)

// Vector maps feature name to value. Derived once per tick and shared
// read-only by the regime detector and the strategy scorers.
type Vector map[string]float64

// Config holds the tunable extraction parameters.
type Config struct {
	MinBars      int     // minimum window length
	BandPeriod   int     // Bollinger period for band width
	BandStdDev   float64 // Bollinger standard deviation multiple
	RecentVolume int     // bars counted as "recent" for the volume ratio
}

// DefaultConfig returns the extraction parameters used across the engine.
func DefaultConfig() Config {
	return Config{
		MinBars:      20,
		BandPeriod:   20,
		BandStdDev:   2.0,
		RecentVolume: 5,
	}
}

// Extractor derives scalar statistics from a trailing bar window.
// Extract is a pure function: identical input yields identical output.
type Extractor struct {
	cfg Config
}

func NewExtractor(cfg Config) *Extractor {
	if cfg.MinBars <= 0 {
		cfg = DefaultConfig()
	}
	return &Extractor{cfg: cfg}
}

// Extract computes the feature vector for the window.
func (e *Extractor) Extract(data []types.OHLCV) (Vector, error) {
	if len(data) < e.cfg.MinBars {
		return nil, fmt.Errorf("%w: have %d bars, need %d", ErrInsufficientHistory, len(data), e.cfg.MinBars)
	}

	closes := types.Closes(data)

	v := Vector{
		FeatureVolatility:  returnsVolatility(closes),
		FeatureTrend:       trendDisplacement(closes),
		FeatureBandWidth:   e.bandWidth(closes),
		FeatureDirectional: directionalStrength(closes),
		FeatureVolumeRatio: e.volumeRatio(types.Volumes(data)),
	}
	return v, nil
}

// MinBars reports the shortest window Extract accepts.
func (e *Extractor) MinBars() int {
	return e.cfg.MinBars
}

// returnsVolatility is the standard deviation of simple returns, scaled to percent.
func returnsVolatility(closes []float64) float64 {
	rets := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] != 0 {
			rets = append(rets, (closes[i]-closes[i-1])/closes[i-1])
		}
	}
	if len(rets) == 0 {
		return 0
	}

	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))

	variance := 0.0
	for _, r := range rets {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(rets))

	return math.Sqrt(variance) * 100
}

// trendDisplacement is the percent change from the first close to the last.
func trendDisplacement(closes []float64) float64 {
	first := closes[0]
	if first == 0 {
		return 0
	}
	return (closes[len(closes)-1] - first) / first * 100
}

func (e *Extractor) bandWidth(closes []float64) float64 {
	if len(closes) < e.cfg.BandPeriod {
		return 0
	}
	upper, middle, lower := talib.BBands(closes, e.cfg.BandPeriod, e.cfg.BandStdDev, e.cfg.BandStdDev, talib.SMA)
	last := len(closes) - 1
	if middle[last] == 0 {
		return 0
	}
	return (upper[last] - lower[last]) / middle[last]
}

// directionalStrength is the share of total close-to-close movement that was
// upward, in [0,1]. 0.5 means balanced, 1 means every move was up.
func directionalStrength(closes []float64) float64 {
	up := 0.0
	down := 0.0
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			up += d
		} else {
			down -= d
		}
	}
	total := up + down
	if total == 0 {
		return 0.5
	}
	return up / total
}

func (e *Extractor) volumeRatio(volumes []float64) float64 {
	recent := e.cfg.RecentVolume
	if recent <= 0 || recent > len(volumes) {
		recent = len(volumes)
	}

	whole := 0.0
	for _, v := range volumes {
		whole += v
	}
	whole /= float64(len(volumes))
	if whole == 0 {
		return 1
	}

	tail := 0.0
	for _, v := range volumes[len(volumes)-recent:] {
		tail += v
	}
	tail /= float64(recent)

	return tail / whole
}

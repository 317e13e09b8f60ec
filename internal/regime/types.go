package regime

// Label is the closed set of market regimes the engine recognizes.
type Label int

const (
	Unknown Label = iota
	TrendingUp
	TrendingDown
	Ranging
	Volatile
	Quiet
)

func (l Label) String() string {
	switch l {
	case TrendingUp:
		return "trending_up"
	case TrendingDown:
		return "trending_down"
	case Ranging:
		return "ranging"
	case Volatile:
		return "volatile"
	case Quiet:
		return "quiet"
	default:
		return "unknown"
	}
}

// Labels lists every concrete regime, unknown excluded.
func Labels() []Label {
	return []Label{TrendingUp, TrendingDown, Ranging, Volatile, Quiet}
}

// ParseLabel maps a string label back to its Label, Unknown when unrecognized.
func ParseLabel(s string) Label {
	switch s {
	case "trending_up":
		return TrendingUp
	case "trending_down":
		return TrendingDown
	case "ranging":
		return Ranging
	case "volatile":
		return Volatile
	case "quiet":
		return Quiet
	default:
		return Unknown
	}
}

// Config holds the rule-cascade thresholds. These are tunable settings with
// no derivation behind them beyond backtested defaults.
type Config struct {
	HighVolatility   float64 `json:"high_volatility"`    // returns stdev %, above = volatile
	TrendThreshold   float64 `json:"trend_threshold"`    // abs trend %, above = trending
	DirectionalBias  float64 `json:"directional_bias"`   // up-move share confirming direction
	TightBandWidth   float64 `json:"tight_band_width"`   // band width below = ranging
	QuietVolumeRatio float64 `json:"quiet_volume_ratio"` // volume ratio below = quiet candidate
	QuietVolatility  float64 `json:"quiet_volatility"`   // volatility below = quiet candidate
	LooseTrend       float64 `json:"loose_trend"`        // fallback trend recheck
	LooseVolatility  float64 `json:"loose_volatility"`   // fallback volatility recheck
}

// DefaultConfig returns the thresholds the detector ships with.
func DefaultConfig() Config {
	return Config{
		HighVolatility:   2.5,
		TrendThreshold:   3.0,
		DirectionalBias:  0.55,
		TightBandWidth:   0.03,
		QuietVolumeRatio: 0.7,
		QuietVolatility:  0.8,
		LooseTrend:       1.8,
		LooseVolatility:  1.8,
	}
}

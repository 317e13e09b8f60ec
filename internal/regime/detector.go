package regime

import (
	"errors"
	"math"

	"github.com/rs/zerolog"

	"adaptive-trader/internal/features"
	"adaptive-trader/pkg/types"
)

// Classifier is an optional learned regime model. It is injected as a single
// capability so the rule cascade and a trained model stay interchangeable.
type Classifier interface {
	Classify(v features.Vector) (Label, error)
}

// ClassifierFunc adapts a plain function to the Classifier interface.
type ClassifierFunc func(v features.Vector) (Label, error)

func (f ClassifierFunc) Classify(v features.Vector) (Label, error) {
	return f(v)
}

// Detector classifies the current bar window into a regime. The rule cascade
// is always available; an injected classifier takes precedence when it
// produces a concrete label, and any classifier error falls back to the rules
// for that call only.
type Detector struct {
	cfg        Config
	extractor  *features.Extractor
	classifier Classifier
	log        zerolog.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithClassifier injects a learned classifier in front of the rule cascade.
func WithClassifier(c Classifier) Option {
	return func(d *Detector) { d.classifier = c }
}

// WithLogger attaches a logger; the default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(d *Detector) { d.log = log.With().Str("component", "regime").Logger() }
}

func NewDetector(cfg Config, extractor *features.Extractor, opts ...Option) *Detector {
	d := &Detector{
		cfg:       cfg,
		extractor: extractor,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect classifies the window. It never returns an error for a short or
// degenerate window; the worst case is Unknown.
func (d *Detector) Detect(data []types.OHLCV) Label {
	vec, err := d.extractor.Extract(data)
	if err != nil {
		if !errors.Is(err, features.ErrInsufficientHistory) {
			d.log.Warn().Err(err).Msg("feature extraction failed")
		}
		return Unknown
	}
	return d.DetectFromFeatures(vec)
}

// DetectFromFeatures classifies an already-extracted feature vector.
func (d *Detector) DetectFromFeatures(vec features.Vector) Label {
	if d.classifier != nil {
		label, err := d.classifier.Classify(vec)
		if err == nil && label != Unknown {
			return label
		}
		if err != nil {
			d.log.Warn().Err(err).Msg("classifier failed, using rule cascade")
		}
	}
	return d.cascade(vec)
}

// cascade is the ordered threshold walk. Volatility wins over trend: a
// trending move under extreme volatility is unsafe to trade as a clean
// trend-follow.
func (d *Detector) cascade(vec features.Vector) Label {
	volatility := vec[features.FeatureVolatility]
	trend := vec[features.FeatureTrend]
	bandWidth := vec[features.FeatureBandWidth]
	directional := vec[features.FeatureDirectional]
	volumeRatio := vec[features.FeatureVolumeRatio]

	if volatility > d.cfg.HighVolatility {
		return Volatile
	}

	if math.Abs(trend) > d.cfg.TrendThreshold {
		if trend > 0 && directional >= d.cfg.DirectionalBias {
			return TrendingUp
		}
		if trend < 0 && directional <= 1-d.cfg.DirectionalBias {
			return TrendingDown
		}
	}

	if bandWidth > 0 && bandWidth < d.cfg.TightBandWidth {
		return Ranging
	}

	if volumeRatio < d.cfg.QuietVolumeRatio && volatility < d.cfg.QuietVolatility {
		return Quiet
	}

	// Looser recheck before defaulting: a moderate move still reads as a
	// trend when direction confirms it.
	if math.Abs(trend) > d.cfg.LooseTrend {
		if trend > 0 {
			return TrendingUp
		}
		return TrendingDown
	}
	if volatility > d.cfg.LooseVolatility {
		return Volatile
	}

	return Ranging
}

package strategy

import (
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adaptive-trader/internal/regime"
	"adaptive-trader/pkg/types"
)

// stubScorer returns a fixed score, or a fixed error, regardless of input.
type stubScorer struct {
	name  string
	score float64
	err   error
}

func (s stubScorer) Score(data []types.OHLCV) (float64, error) { return s.score, s.err }
func (s stubScorer) Name() string                              { return s.name }
func (s stubScorer) RequiredBars() int                         { return 1 }

func generateBars(n int, close func(i int) float64) []types.OHLCV {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	data := make([]types.OHLCV, n)
	for i := 0; i < n; i++ {
		c := close(i)
		data[i] = types.OHLCV{
			Open:      c,
			High:      c * 1.002,
			Low:       c * 0.998,
			Close:     c,
			Volume:    1000 + float64(i%3)*50,
			Timestamp: start.Add(time.Duration(i) * time.Hour),
		}
	}
	return data
}

func newComposite(weights Weights, cfg CompositeConfig, scorers ...IndicatorStrategy) *Composite {
	return NewComposite(NewRegistry(scorers...), weights, cfg, zerolog.Nop())
}

func writeFile(path, body string) error {
	return os.WriteFile(path, []byte(body), 0o644)
}

func TestComposite_Evaluate_WeightedScore(t *testing.T) {
	weights := Weights{
		regime.Ranging: {"a": 0.6, "b": 0.4},
	}
	c := newComposite(weights, DefaultCompositeConfig(),
		stubScorer{name: "a", score: 1.0},
		stubScorer{name: "b", score: -0.5},
	)

	result := c.Evaluate(nil, regime.Ranging, time.Now())

	// 0.6*1.0 + 0.4*(-0.5) = 0.4
	assert.InDelta(t, 0.4, result.Score, 1e-9)
	assert.Equal(t, ActionBuy, result.Action)
	assert.InDelta(t, 50.0, result.Confidence, 1e-9)
	assert.Len(t, result.Contributions, 2)
}

func TestComposite_Evaluate_FailedScorerLeavesDenominator(t *testing.T) {
	weights := Weights{
		regime.Ranging: {"a": 0.5, "b": 0.5},
	}
	c := newComposite(weights, DefaultCompositeConfig(),
		stubScorer{name: "a", score: 0.6},
		stubScorer{name: "b", err: ErrNoScore},
	)

	result := c.Evaluate(nil, regime.Ranging, time.Now())

	// The failed scorer is excluded from the denominator, so the surviving
	// opinion carries full weight rather than being diluted to 0.3.
	assert.InDelta(t, 0.6, result.Score, 1e-9)
	assert.Len(t, result.Contributions, 1)
	assert.NotContains(t, result.Contributions, "b")
}

func TestComposite_Evaluate_AllScorersFailedIsHold(t *testing.T) {
	c := newComposite(Weights{}, DefaultCompositeConfig(),
		stubScorer{name: "a", err: ErrNoScore},
		stubScorer{name: "b", err: ErrNoScore},
	)

	result := c.Evaluate(nil, regime.Ranging, time.Now())

	assert.Zero(t, result.Score)
	assert.Equal(t, ActionHold, result.Action)
	assert.Zero(t, result.Confidence)
	assert.Empty(t, result.Contributions)
}

func TestComposite_Evaluate_UnknownRegimeUsesUniformRow(t *testing.T) {
	c := newComposite(DefaultWeights(), DefaultCompositeConfig(),
		stubScorer{name: "a", score: 1.0},
		stubScorer{name: "b", score: 0.0},
	)

	result := c.Evaluate(nil, regime.Unknown, time.Now())

	assert.InDelta(t, 0.5, result.Score, 1e-9)
	assert.InDelta(t, 0.5, result.Contributions["a"].Weight, 1e-9)
}

func TestComposite_Evaluate_ActionBreakpoints(t *testing.T) {
	cases := []struct {
		score float64
		want  Action
	}{
		{0.75, ActionStrongBuy},
		{0.5, ActionStrongBuy},
		{0.3, ActionBuy},
		{0.2, ActionBuy},
		{0.19, ActionHold},
		{0.0, ActionHold},
		{-0.19, ActionHold},
		{-0.2, ActionSell},
		{-0.3, ActionSell},
		{-0.5, ActionStrongSell},
		{-0.75, ActionStrongSell},
	}

	for _, tc := range cases {
		c := newComposite(Weights{}, DefaultCompositeConfig(),
			stubScorer{name: "only", score: tc.score},
		)
		result := c.Evaluate(nil, regime.Ranging, time.Now())
		assert.Equalf(t, tc.want, result.Action, "score %.2f", tc.score)
	}
}

func TestComposite_Evaluate_ConfidenceSaturates(t *testing.T) {
	c := newComposite(Weights{}, DefaultCompositeConfig(),
		stubScorer{name: "only", score: 1.0},
	)

	result := c.Evaluate(nil, regime.Ranging, time.Now())

	assert.Equal(t, 100.0, result.Confidence)
}

func TestComposite_Evaluate_AdaptiveKeepsRowNormalized(t *testing.T) {
	cfg := DefaultCompositeConfig()
	cfg.Adaptive = true
	cfg.MinAdaptTicks = 5

	weights := Weights{
		regime.TrendingUp: {"steady": 0.5, "flippy": 0.5},
	}
	c := newComposite(weights, cfg,
		stubScorer{name: "steady", score: 0.8},
		stubScorer{name: "flippy", score: 0.1},
	)

	for i := 0; i < 20; i++ {
		c.Evaluate(nil, regime.TrendingUp, time.Now())
	}

	row := c.Weights()[regime.TrendingUp]
	sum := 0.0
	for _, w := range row {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	// The stronger, equally stable scorer earns more weight.
	assert.Greater(t, row["steady"], row["flippy"])
	for name, w := range row {
		assert.GreaterOrEqualf(t, w, cfg.MinWeightShare, "weight for %s below floor", name)
	}
}

func TestComposite_Evaluate_AdaptiveWaitsForHistory(t *testing.T) {
	cfg := DefaultCompositeConfig()
	cfg.Adaptive = true
	cfg.MinAdaptTicks = 10

	weights := Weights{
		regime.TrendingUp: {"a": 0.7, "b": 0.3},
	}
	c := newComposite(weights, cfg,
		stubScorer{name: "a", score: 0.5},
		stubScorer{name: "b", score: 0.5},
	)

	c.Evaluate(nil, regime.TrendingUp, time.Now())

	row := c.Weights()[regime.TrendingUp]
	assert.InDelta(t, 0.7, row["a"], 1e-9, "row must not adapt before enough history")
}

func TestComposite_Evaluate_UnknownRegimeNeverAdapts(t *testing.T) {
	cfg := DefaultCompositeConfig()
	cfg.Adaptive = true
	cfg.MinAdaptTicks = 1

	c := newComposite(Weights{}, cfg,
		stubScorer{name: "a", score: 0.5},
	)

	for i := 0; i < 5; i++ {
		c.Evaluate(nil, regime.Unknown, time.Now())
	}

	_, ok := c.Weights()[regime.Unknown]
	assert.False(t, ok, "no row may be created for the unknown regime")
}

func TestDefaultRegistry_ScoresWithinBounds(t *testing.T) {
	registry := DefaultRegistry()
	data := generateBars(80, func(i int) float64 {
		return 100 + 5*float64(i%10) - 0.2*float64(i)
	})

	for _, name := range registry.Names() {
		scorer, err := registry.Get(name)
		require.NoError(t, err)

		score, err := scorer.Score(data)
		require.NoErrorf(t, err, "scorer %s", name)
		assert.GreaterOrEqualf(t, score, -1.0, "scorer %s", name)
		assert.LessOrEqualf(t, score, 1.0, "scorer %s", name)
	}
}

func TestDefaultRegistry_ShortWindowReturnsErrNoScore(t *testing.T) {
	registry := DefaultRegistry()
	data := generateBars(3, func(i int) float64 { return 100 })

	for _, name := range registry.Names() {
		scorer, err := registry.Get(name)
		require.NoError(t, err)

		_, err = scorer.Score(data)
		assert.ErrorIsf(t, err, ErrNoScore, "scorer %s", name)
	}
}

func TestWeights_Validate(t *testing.T) {
	assert.NoError(t, DefaultWeights().Validate())

	bad := Weights{
		regime.Ranging: {"a": 0.5, "b": 0.6},
	}
	assert.Error(t, bad.Validate())
}

func TestNormalizeRow_ZeroRowBecomesUniform(t *testing.T) {
	row := map[string]float64{"a": 0, "b": 0}
	NormalizeRow(row)
	assert.InDelta(t, 0.5, row["a"], 1e-9)
	assert.InDelta(t, 0.5, row["b"], 1e-9)
}

func TestRiskProfile_Validate(t *testing.T) {
	valid := RiskProfile{
		RiskPercentage: 2, TakeProfitPct: 3, StopLossPct: 1,
		MaxConcurrentPositions: 1,
	}
	assert.NoError(t, valid.Validate())

	cases := map[string]RiskProfile{
		"zero risk": {TakeProfitPct: 3, StopLossPct: 1, MaxConcurrentPositions: 1},
		"no stop":   {RiskPercentage: 2, TakeProfitPct: 3, MaxConcurrentPositions: 1},
		"no target": {RiskPercentage: 2, StopLossPct: 1, MaxConcurrentPositions: 1},
		"trailing without callback": {
			RiskPercentage: 2, TakeProfitPct: 3, StopLossPct: 1,
			TrailingStop: true, TrailingActivationPct: 1,
			MaxConcurrentPositions: 1,
		},
		"zero concurrency": {RiskPercentage: 2, TakeProfitPct: 3, StopLossPct: 1},
		"bad rung": {
			RiskPercentage: 2, StopLossPct: 1, MaxConcurrentPositions: 1,
			TakeProfitLadder: []LadderRung{{TriggerPct: 1, Portion: 1.5}},
		},
	}
	for name, profile := range cases {
		err := profile.Validate()
		assert.ErrorIsf(t, err, ErrInvalidRiskProfile, "case %q", name)
	}
}

func TestLoadProfiles_OverridesAndDefaults(t *testing.T) {
	path := t.TempDir() + "/profiles.json"
	body := `{
		"weights": {
			"ranging": {"ema_cross": 0.2, "macd": 0.2, "rsi": 0.2, "bollinger": 0.2, "obv": 0.2}
		},
		"risk_profiles": {
			"volatile": {
				"risk_percentage": 0.5,
				"take_profit_pct": 5,
				"stop_loss_pct": 4,
				"max_concurrent_positions": 1
			}
		}
	}`
	require.NoError(t, writeFile(path, body))

	weights, profiles, err := LoadProfiles(path)
	require.NoError(t, err)

	assert.InDelta(t, 0.2, weights[regime.Ranging]["rsi"], 1e-9)
	// Untouched regimes keep their defaults.
	assert.Equal(t, DefaultWeights()[regime.TrendingUp], weights[regime.TrendingUp])
	assert.InDelta(t, 0.5, profiles[regime.Volatile].RiskPercentage, 1e-9)
	assert.Equal(t, DefaultRiskProfiles()[regime.Quiet], profiles[regime.Quiet])
}

func TestLoadProfiles_RejectsBadWeightSum(t *testing.T) {
	path := t.TempDir() + "/profiles.json"
	body := `{"weights": {"ranging": {"rsi": 0.9, "macd": 0.9}}}`
	require.NoError(t, writeFile(path, body))

	_, _, err := LoadProfiles(path)
	assert.Error(t, err)
}

func TestLoadProfiles_RejectsUnknownRegime(t *testing.T) {
	path := t.TempDir() + "/profiles.json"
	body := `{"weights": {"sideways": {"rsi": 1.0}}}`
	require.NoError(t, writeFile(path, body))

	_, _, err := LoadProfiles(path)
	assert.Error(t, err)
}

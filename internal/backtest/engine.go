package backtest

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"adaptive-trader/internal/position"
	"adaptive-trader/internal/regime"
	"adaptive-trader/internal/strategy"
	"adaptive-trader/pkg/types"
)

// EquityPoint is one entry of the append-only equity ledger. The balance
// mutates only on position-close events.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Balance   float64   `json:"balance"`
}

// Results aggregates a finished run. Metric fields are filled by Summarize
// from the trade and equity ledgers, never incrementally mutated.
type Results struct {
	Symbol       string
	StartBalance float64
	EndBalance   float64
	TotalReturn  float64

	Trades      []position.Trade
	EquityCurve []EquityPoint

	RegimeCounts    map[regime.Label]int
	StrategySignals map[string]int

	Summary PerformanceSummary
}

// Config tunes a simulation run.
type Config struct {
	Symbol         string
	InitialBalance float64
	WindowSize     int
	Leverage       float64 // applied to every opened position, min 1
}

// Simulator drives the detect→compose→manage pipeline tick by tick over
// historical bars. Runs are single-writer: no tick starts before the
// previous tick's position updates and open-decisions are committed.
type Simulator struct {
	cfg       Config
	detector  *regime.Detector
	composite *strategy.Composite
	profiles  strategy.RiskProfiles
	log       zerolog.Logger
}

func NewSimulator(cfg Config, detector *regime.Detector, composite *strategy.Composite, profiles strategy.RiskProfiles, log zerolog.Logger) (*Simulator, error) {
	if cfg.InitialBalance <= 0 {
		return nil, fmt.Errorf("initial balance %.2f must be positive", cfg.InitialBalance)
	}
	if cfg.WindowSize <= 0 {
		return nil, fmt.Errorf("window size %d must be positive", cfg.WindowSize)
	}
	if cfg.Leverage < 1 {
		cfg.Leverage = 1
	}
	return &Simulator{
		cfg:       cfg,
		detector:  detector,
		composite: composite,
		profiles:  profiles,
		log:       log.With().Str("component", "backtest").Str("symbol", cfg.Symbol).Logger(),
	}, nil
}

// Run replays the bars in strict timestamp order. Identical input yields
// identical results.
func (s *Simulator) Run(data []types.OHLCV) (*Results, error) {
	results := &Results{
		Symbol:          s.cfg.Symbol,
		StartBalance:    s.cfg.InitialBalance,
		RegimeCounts:    make(map[regime.Label]int),
		StrategySignals: make(map[string]int),
	}

	balance := s.cfg.InitialBalance
	var open []*position.Position

	if len(data) < s.cfg.WindowSize+1 {
		results.EndBalance = balance
		results.Summary = Summarize(results.Trades, results.EquityCurve, balance, balance)
		return results, nil
	}

	for i := s.cfg.WindowSize; i < len(data); i++ {
		window := data[i-s.cfg.WindowSize : i+1]
		tick := data[i]

		label := s.detector.Detect(window)
		results.RegimeCounts[label]++

		result := s.composite.Evaluate(window, label, tick.Timestamp)
		for name := range result.Contributions {
			results.StrategySignals[name]++
		}

		// Update every open position before any open-decision this tick.
		open, balance = s.updatePositions(open, tick.Close, tick.Timestamp, balance, results)

		if result.Action == strategy.ActionHold {
			continue
		}
		profile, ok := s.profiles[label]
		if !ok {
			continue
		}
		if countForRegime(open, label) >= profile.MaxConcurrentPositions {
			continue
		}

		notional := balance * profile.RiskPercentage / 100
		if notional <= 0 || tick.Close <= 0 {
			continue
		}
		pos, err := position.Open(s.cfg.Symbol, result.Action.Side(), label, tick.Close, notional/tick.Close, s.cfg.Leverage, profile, tick.Timestamp, s.log)
		if err != nil {
			// Fatal only for this open; the run continues.
			s.log.Warn().Err(err).Str("regime", label.String()).Msg("position rejected")
			continue
		}
		open = append(open, pos)
	}

	// Force-close whatever is still open at the final tick.
	last := data[len(data)-1]
	for _, pos := range open {
		trade, err := pos.Close(last.Close, position.ReasonEndOfData, last.Timestamp)
		if err != nil {
			continue
		}
		balance += trade.PnL
		results.Trades = append(results.Trades, trade)
		results.EquityCurve = append(results.EquityCurve, EquityPoint{Timestamp: last.Timestamp, Balance: balance})
	}

	results.EndBalance = balance
	results.TotalReturn = (balance - s.cfg.InitialBalance) / s.cfg.InitialBalance
	results.Summary = Summarize(results.Trades, results.EquityCurve, s.cfg.InitialBalance, balance)
	return results, nil
}

// updatePositions feeds the tick price to every open position, realizes any
// exits into the ledger, and drops closed positions from the working set.
func (s *Simulator) updatePositions(open []*position.Position, price float64, now time.Time, balance float64, results *Results) ([]*position.Position, float64) {
	remaining := open[:0]
	for _, pos := range open {
		for _, trade := range pos.Update(price, now) {
			balance += trade.PnL
			results.Trades = append(results.Trades, trade)
			results.EquityCurve = append(results.EquityCurve, EquityPoint{Timestamp: now, Balance: balance})
		}
		if pos.IsOpen() {
			remaining = append(remaining, pos)
		}
	}
	return remaining, balance
}

func countForRegime(open []*position.Position, label regime.Label) int {
	n := 0
	for _, pos := range open {
		if pos.Regime == label {
			n++
		}
	}
	return n
}

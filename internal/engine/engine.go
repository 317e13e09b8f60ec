package engine

import (
	"time"

	"github.com/rs/zerolog"

	"adaptive-trader/internal/backtest"
	"adaptive-trader/internal/monitoring"
	"adaptive-trader/internal/position"
	"adaptive-trader/internal/regime"
	"adaptive-trader/internal/strategy"
	"adaptive-trader/pkg/types"
)

// Engine is the per-symbol decision pipeline: detect the regime, compose the
// ensemble signal, and manage open positions. One instance owns one symbol's
// positions, trade ledger and adaptive-weight state; instances must not be
// shared across symbols.
type Engine struct {
	symbol    string
	leverage  float64
	detector  *regime.Detector
	composite *strategy.Composite
	profiles  strategy.RiskProfiles

	open   []*position.Position
	trades []position.Trade

	regimeCounts    map[regime.Label]int
	strategySignals map[string]int

	metrics *monitoring.Metrics
	log     zerolog.Logger
}

// TickReport is what one OnTick call decided and realized.
type TickReport struct {
	Regime regime.Label
	Result *strategy.Result
	Opened *position.Position
	Closed []position.Trade
}

// Snapshot is the read-only view handed to reporting sinks.
type Snapshot struct {
	Symbol          string
	OpenPositions   []position.Position
	ClosedTrades    []position.Trade
	RegimeCounts    map[regime.Label]int
	StrategySignals map[string]int
	Summary         backtest.PerformanceSummary
}

func New(symbol string, leverage float64, detector *regime.Detector, composite *strategy.Composite, profiles strategy.RiskProfiles, metrics *monitoring.Metrics, log zerolog.Logger) *Engine {
	if leverage < 1 {
		leverage = 1
	}
	return &Engine{
		symbol:          symbol,
		leverage:        leverage,
		detector:        detector,
		composite:       composite,
		profiles:        profiles,
		regimeCounts:    make(map[regime.Label]int),
		strategySignals: make(map[string]int),
		metrics:         metrics,
		log:             log.With().Str("component", "engine").Str("symbol", symbol).Logger(),
	}
}

// OnTick runs the full per-tick sequence: classify the window, evaluate the
// ensemble, update every open position with the tick price, then open a new
// position when the action and the regime's concurrency limit allow it.
// The balance is supplied by the caller and only used for sizing.
func (e *Engine) OnTick(window []types.OHLCV, price float64, balance float64, now time.Time) *TickReport {
	label := e.detector.Detect(window)
	e.regimeCounts[label]++
	if e.metrics != nil {
		e.metrics.RegimeObservations.WithLabelValues(e.symbol, label.String()).Inc()
		e.metrics.Balance.WithLabelValues(e.symbol).Set(balance)
	}

	result := e.composite.Evaluate(window, label, now)
	for name := range result.Contributions {
		e.strategySignals[name]++
		if e.metrics != nil {
			e.metrics.StrategySignals.WithLabelValues(e.symbol, name).Inc()
		}
	}

	report := &TickReport{Regime: label, Result: result}
	report.Closed = e.updateOpen(price, now)

	if result.Action == strategy.ActionHold {
		return report
	}
	profile, ok := e.profiles[label]
	if !ok {
		return report
	}
	if e.openCountFor(label) >= profile.MaxConcurrentPositions {
		return report
	}
	notional := balance * profile.RiskPercentage / 100
	if notional <= 0 || price <= 0 {
		return report
	}

	pos, err := position.Open(e.symbol, result.Action.Side(), label, price, notional/price, e.leverage, profile, now, e.log)
	if err != nil {
		e.log.Warn().Err(err).Str("regime", label.String()).Msg("position rejected")
		return report
	}
	e.open = append(e.open, pos)
	report.Opened = pos
	if e.metrics != nil {
		e.metrics.PositionsOpened.WithLabelValues(e.symbol, pos.Side.String(), label.String()).Inc()
	}
	return report
}

// CloseAll force-closes every open position, e.g. on shutdown.
func (e *Engine) CloseAll(price float64, reason string, now time.Time) []position.Trade {
	var closed []position.Trade
	for _, pos := range e.open {
		trade, err := pos.Close(price, reason, now)
		if err != nil {
			continue
		}
		closed = append(closed, trade)
		e.recordClose(trade)
	}
	e.open = nil
	return closed
}

// Snapshot returns a copy of the engine state for reporting. The engine's
// own ledgers are never handed out by reference.
func (e *Engine) Snapshot() Snapshot {
	snap := Snapshot{
		Symbol:          e.symbol,
		OpenPositions:   make([]position.Position, 0, len(e.open)),
		ClosedTrades:    append([]position.Trade(nil), e.trades...),
		RegimeCounts:    make(map[regime.Label]int, len(e.regimeCounts)),
		StrategySignals: make(map[string]int, len(e.strategySignals)),
	}
	for _, pos := range e.open {
		snap.OpenPositions = append(snap.OpenPositions, *pos)
	}
	for k, v := range e.regimeCounts {
		snap.RegimeCounts[k] = v
	}
	for k, v := range e.strategySignals {
		snap.StrategySignals[k] = v
	}
	snap.Summary = backtest.Summarize(snap.ClosedTrades, nil, 0, 0)
	return snap
}

func (e *Engine) updateOpen(price float64, now time.Time) []position.Trade {
	var closed []position.Trade
	remaining := e.open[:0]
	for _, pos := range e.open {
		for _, trade := range pos.Update(price, now) {
			closed = append(closed, trade)
			e.recordClose(trade)
		}
		if pos.IsOpen() {
			remaining = append(remaining, pos)
		}
	}
	e.open = remaining
	return closed
}

func (e *Engine) recordClose(trade position.Trade) {
	e.trades = append(e.trades, trade)
	if e.metrics != nil {
		e.metrics.PositionsClosed.WithLabelValues(e.symbol, trade.Reason).Inc()
	}
}

func (e *Engine) openCountFor(label regime.Label) int {
	n := 0
	for _, pos := range e.open {
		if pos.Regime == label {
			n++
		}
	}
	return n
}

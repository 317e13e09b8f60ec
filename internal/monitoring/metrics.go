package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports the engine's usage counters. All vectors are labeled by
// symbol so several engines can share one registry.
type Metrics struct {
	RegimeObservations *prometheus.CounterVec
	StrategySignals    *prometheus.CounterVec
	PositionsOpened    *prometheus.CounterVec
	PositionsClosed    *prometheus.CounterVec
	Balance            *prometheus.GaugeVec
}

// NewMetrics builds and registers the metric set on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RegimeObservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_regime_observations_total",
			Help: "Regime classifications per tick, by detected label.",
		}, []string{"symbol", "regime"}),
		StrategySignals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_strategy_signals_total",
			Help: "Scores produced per indicator strategy.",
		}, []string{"symbol", "strategy"}),
		PositionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_positions_opened_total",
			Help: "Positions opened, by side and regime at open.",
		}, []string{"symbol", "side", "regime"}),
		PositionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_positions_closed_total",
			Help: "Positions closed, by exit reason.",
		}, []string{"symbol", "reason"}),
		Balance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trader_balance",
			Help: "Current account balance as seen by the engine.",
		}, []string{"symbol"}),
	}

	reg.MustRegister(
		m.RegimeObservations,
		m.StrategySignals,
		m.PositionsOpened,
		m.PositionsClosed,
		m.Balance,
	)
	return m
}

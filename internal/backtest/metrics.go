package backtest

import (
	"math"

	"adaptive-trader/internal/position"
)

// PerformanceSummary is derived on demand from the trade ledger and equity
// ledger. It is always recomputed whole; nothing here mutates incrementally.
type PerformanceSummary struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`      // percent
	ProfitFactor  float64 `json:"profit_factor"` // +Inf when no losses
	AverageWin    float64 `json:"average_win"`
	AverageLoss   float64 `json:"average_loss"`
	MaxDrawdown   float64 `json:"max_drawdown"` // fraction of peak equity
	SharpeRatio   float64 `json:"sharpe_ratio"`
	TotalReturn   float64 `json:"total_return"`
}

// Summarize computes every metric from the ledgers.
func Summarize(trades []position.Trade, equity []EquityPoint, startBalance, endBalance float64) PerformanceSummary {
	s := PerformanceSummary{
		TotalTrades:  len(trades),
		WinRate:      winRate(trades),
		ProfitFactor: profitFactor(trades),
		MaxDrawdown:  maxDrawdown(equity, startBalance),
		SharpeRatio:  sharpeRatio(trades),
	}
	if startBalance > 0 {
		s.TotalReturn = (endBalance - startBalance) / startBalance
	}

	winSum, lossSum := 0.0, 0.0
	for _, t := range trades {
		if t.PnL > 0 {
			s.WinningTrades++
			winSum += t.PnL
		} else {
			s.LosingTrades++
			lossSum += t.PnL
		}
	}
	if s.WinningTrades > 0 {
		s.AverageWin = winSum / float64(s.WinningTrades)
	}
	if s.LosingTrades > 0 {
		s.AverageLoss = lossSum / float64(s.LosingTrades)
	}
	return s
}

func winRate(trades []position.Trade) float64 {
	if len(trades) == 0 {
		return 0
	}
	wins := 0
	for _, t := range trades {
		if t.PnL > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(trades)) * 100
}

// profitFactor is gross profit over gross loss. No losing trades yields
// +Inf, never a division fault.
func profitFactor(trades []position.Trade) float64 {
	profit, loss := 0.0, 0.0
	for _, t := range trades {
		if t.PnL > 0 {
			profit += t.PnL
		} else {
			loss += math.Abs(t.PnL)
		}
	}
	if loss == 0 {
		if profit > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return profit / loss
}

// maxDrawdown is the deepest peak-to-trough decline of the equity ledger,
// as a fraction of the peak.
func maxDrawdown(equity []EquityPoint, startBalance float64) float64 {
	peak := startBalance
	maxDD := 0.0
	for _, point := range equity {
		if point.Balance > peak {
			peak = point.Balance
		}
		if peak > 0 {
			dd := (peak - point.Balance) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// sharpeRatio is the mean per-trade return over its standard deviation,
// risk-free rate assumed zero.
func sharpeRatio(trades []position.Trade) float64 {
	if len(trades) == 0 {
		return 0
	}

	returns := make([]float64, len(trades))
	mean := 0.0
	for i, t := range trades {
		returns[i] = t.PnLPct / 100
		mean += returns[i]
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))

	stdDev := math.Sqrt(variance)
	if stdDev < 1e-10 {
		return 0
	}
	return mean / stdDev
}

package reporting

import (
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"adaptive-trader/internal/backtest"
	"adaptive-trader/internal/regime"
)

// ConsoleReporter renders result snapshots as terminal tables. It only ever
// reads the structures it is handed.
type ConsoleReporter struct{}

func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{}
}

// OutputResults prints the run summary and the regime/strategy usage tables.
func (r *ConsoleReporter) OutputResults(results *backtest.Results) {
	s := results.Summary

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Backtest Results: %s", results.Symbol)
	t.AppendRows([]table.Row{
		{"Initial Balance", fmt.Sprintf("$%.2f", results.StartBalance)},
		{"Final Balance", fmt.Sprintf("$%.2f", results.EndBalance)},
		{"Total Return", fmt.Sprintf("%.2f%%", results.TotalReturn*100)},
		{"Max Drawdown", fmt.Sprintf("%.2f%%", s.MaxDrawdown*100)},
		{"Sharpe Ratio", fmt.Sprintf("%.2f", s.SharpeRatio)},
		{"Profit Factor", formatProfitFactor(s.ProfitFactor)},
		{"Total Trades", s.TotalTrades},
		{"Win Rate", fmt.Sprintf("%.1f%%", s.WinRate)},
		{"Avg Win / Avg Loss", fmt.Sprintf("$%.2f / $%.2f", s.AverageWin, s.AverageLoss)},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 20, Align: text.AlignLeft},
		{Number: 2, WidthMin: 18, Align: text.AlignRight},
	})
	t.Render()

	r.printRegimeUsage(results.RegimeCounts)
	r.printStrategyUsage(results.StrategySignals)
}

func (r *ConsoleReporter) printRegimeUsage(counts map[regime.Label]int) {
	if len(counts) == 0 {
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Regime Distribution")
	t.AppendHeader(table.Row{"Regime", "Ticks", "Share"})
	for _, label := range append(regime.Labels(), regime.Unknown) {
		n, ok := counts[label]
		if !ok {
			continue
		}
		t.AppendRow(table.Row{label.String(), n, fmt.Sprintf("%.1f%%", float64(n)/float64(total)*100)})
	}
	t.Render()
}

func (r *ConsoleReporter) printStrategyUsage(signals map[string]int) {
	if len(signals) == 0 {
		return
	}

	names := make([]string, 0, len(signals))
	for name := range signals {
		names = append(names, name)
	}
	sort.Strings(names)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Strategy Signals")
	t.AppendHeader(table.Row{"Strategy", "Scores Produced"})
	for _, name := range names {
		t.AppendRow(table.Row{name, signals[name]})
	}
	t.Render()
}

func formatProfitFactor(pf float64) string {
	if math.IsInf(pf, 1) {
		return "+Inf"
	}
	return fmt.Sprintf("%.2f", pf)
}

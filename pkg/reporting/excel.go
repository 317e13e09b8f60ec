package reporting

import (
	"fmt"
	"math"

	"github.com/xuri/excelize/v2"

	"adaptive-trader/internal/backtest"
)

// ExcelReporter writes a run's trade ledger and summary to an xlsx workbook.
type ExcelReporter struct{}

func NewExcelReporter() *ExcelReporter {
	return &ExcelReporter{}
}

// WriteResults writes Trades, Equity and Summary sheets to path.
func (r *ExcelReporter) WriteResults(results *backtest.Results, path string) error {
	fx := excelize.NewFile()
	defer fx.Close()

	if err := r.writeTrades(fx, results); err != nil {
		return err
	}
	if err := r.writeEquity(fx, results); err != nil {
		return err
	}
	if err := r.writeSummary(fx, results); err != nil {
		return err
	}

	// Drop the default sheet.
	fx.DeleteSheet("Sheet1")
	return fx.SaveAs(path)
}

func (r *ExcelReporter) writeTrades(fx *excelize.File, results *backtest.Results) error {
	sheet := "Trades"
	if _, err := fx.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}

	headers := []string{"Entry Time", "Exit Time", "Side", "Regime", "Entry", "Exit", "Quantity", "PnL", "PnL %", "Reason"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
	}

	for row, trade := range results.Trades {
		values := []interface{}{
			trade.EntryTime.Format("2006-01-02 15:04:05"),
			trade.ExitTime.Format("2006-01-02 15:04:05"),
			trade.Side.String(),
			trade.Regime.String(),
			trade.EntryPrice,
			trade.ExitPrice,
			trade.Quantity,
			trade.PnL,
			trade.PnLPct,
			trade.Reason,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			fx.SetCellValue(sheet, cell, v)
		}
	}
	return nil
}

func (r *ExcelReporter) writeEquity(fx *excelize.File, results *backtest.Results) error {
	sheet := "Equity"
	if _, err := fx.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}

	fx.SetCellValue(sheet, "A1", "Timestamp")
	fx.SetCellValue(sheet, "B1", "Balance")
	for row, point := range results.EquityCurve {
		cellA, _ := excelize.CoordinatesToCellName(1, row+2)
		cellB, _ := excelize.CoordinatesToCellName(2, row+2)
		fx.SetCellValue(sheet, cellA, point.Timestamp.Format("2006-01-02 15:04:05"))
		fx.SetCellValue(sheet, cellB, point.Balance)
	}
	return nil
}

func (r *ExcelReporter) writeSummary(fx *excelize.File, results *backtest.Results) error {
	sheet := "Summary"
	if _, err := fx.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}

	s := results.Summary
	pf := fmt.Sprintf("%.4f", s.ProfitFactor)
	if math.IsInf(s.ProfitFactor, 1) {
		pf = "+Inf"
	}

	rows := [][2]interface{}{
		{"Symbol", results.Symbol},
		{"Initial Balance", results.StartBalance},
		{"Final Balance", results.EndBalance},
		{"Total Return %", results.TotalReturn * 100},
		{"Max Drawdown %", s.MaxDrawdown * 100},
		{"Sharpe Ratio", s.SharpeRatio},
		{"Profit Factor", pf},
		{"Total Trades", s.TotalTrades},
		{"Winning Trades", s.WinningTrades},
		{"Losing Trades", s.LosingTrades},
		{"Win Rate %", s.WinRate},
		{"Average Win", s.AverageWin},
		{"Average Loss", s.AverageLoss},
	}
	for i, row := range rows {
		cellA, _ := excelize.CoordinatesToCellName(1, i+1)
		cellB, _ := excelize.CoordinatesToCellName(2, i+1)
		fx.SetCellValue(sheet, cellA, row[0])
		fx.SetCellValue(sheet, cellB, row[1])
	}
	return nil
}

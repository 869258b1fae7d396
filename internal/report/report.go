// Package report writes backtest and scan artifacts: CSV exports, PNG
// charts, and fixed-width result summaries.
package report

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"stat-arb-signals/internal/backtest"
	"stat-arb-signals/internal/signal"
)

// maxChartPoints caps how many samples a chart renders; longer series are
// downsampled evenly so line charts stay legible.
const maxChartPoints = 2000

// WriteSignalsCSV writes the spread and z-score series for one pair.
func WriteSignalsCSV(path, pair string, points []signal.SpreadPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"ts", "pair", "y_close", "x_close", "beta", "alpha", "r2", "spread", "spread_mean", "spread_std", "zscore", "valid"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, pt := range points {
		record := []string{
			pt.Ts.UTC().Format(time.RFC3339),
			pair,
			formatFloat(pt.YClose),
			formatFloat(pt.XClose),
			formatFloat(pt.Beta),
			formatFloat(pt.Alpha),
			formatFloat(pt.R2),
			formatFloat(pt.Spread),
			formatFloat(pt.Mean),
			formatFloat(pt.Std),
			formatFloat(pt.Z),
			strconv.FormatBool(pt.Valid),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

// WriteTradesCSV writes the completed round trips of one simulation.
func WriteTradesCSV(path string, trades []backtest.Trade) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"pair", "action", "reason", "entry_ts", "exit_ts", "entry_z", "exit_z", "beta",
		"leg_y_notional", "leg_x_notional", "y_qty", "x_qty",
		"entry_y_px", "entry_x_px", "exit_y_px", "exit_x_px",
		"cost_usd", "pnl_usd", "return_pct", "duration_hours",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, tr := range trades {
		record := []string{
			tr.Pair,
			tr.Action.String(),
			tr.Reason,
			tr.EntryTs.UTC().Format(time.RFC3339),
			tr.ExitTs.UTC().Format(time.RFC3339),
			formatFloat(tr.EntryZ),
			formatFloat(tr.ExitZ),
			formatFloat(tr.Beta),
			formatFloat(tr.LegYNotional),
			formatFloat(tr.LegXNotional),
			formatFloat(tr.YQty),
			formatFloat(tr.XQty),
			formatFloat(tr.EntryYPx),
			formatFloat(tr.EntryXPx),
			formatFloat(tr.ExitYPx),
			formatFloat(tr.ExitXPx),
			formatFloat(tr.CostUSD),
			formatFloat(tr.PnLUSD),
			formatFloat(tr.ReturnPct),
			formatFloat(tr.DurationHours),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

// WriteEquityCSV writes the equity curve of one simulation.
func WriteEquityCSV(path string, curve []backtest.EquityPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"ts", "equity_usd"}); err != nil {
		return err
	}
	for _, p := range curve {
		record := []string{p.Ts.UTC().Format(time.RFC3339), formatFloat(p.Equity)}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

// WriteFoldsCSV writes the per-fold metrics of a walk-forward run.
func WriteFoldsCSV(path string, wf backtest.WalkForwardResult) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"fold", "start", "end", "return_pct", "n_trades", "win_rate_pct", "sharpe_ratio", "max_drawdown_pct", "final_equity"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, fold := range wf.Folds {
		record := []string{
			strconv.Itoa(fold.Index),
			fold.Start.UTC().Format(time.RFC3339),
			fold.End.UTC().Format(time.RFC3339),
			formatFloat(fold.Result.TotalReturnPct),
			strconv.Itoa(fold.Result.NTrades),
			formatFloat(fold.Result.WinRate),
			formatFloat(fold.Result.Sharpe),
			formatFloat(fold.Result.MaxDrawdownPct),
			formatFloat(fold.Result.FinalEquityUSD),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func downsampleSpread(points []signal.SpreadPoint, max int) []signal.SpreadPoint {
	if max <= 0 || len(points) <= max {
		return points
	}

	result := make([]signal.SpreadPoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func downsampleEquity(curve []backtest.EquityPoint, max int) []backtest.EquityPoint {
	if max <= 0 || len(curve) <= max {
		return curve
	}

	result := make([]backtest.EquityPoint, 0, max)
	step := float64(len(curve)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(curve) {
			idx = len(curve) - 1
		}
		result = append(result, curve[idx])
	}
	return result
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

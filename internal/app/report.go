package app

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"stat-arb-signals/internal/backtest"
	"stat-arb-signals/internal/report"
	"stat-arb-signals/internal/signal"
)

// Report runs a backtest and writes the full artifact bundle (signal
// series, trades, equity, charts, summary) under <out>/<run_id>/.
func (a *App) Report(ctx context.Context, opts ReportOptions) error {
	pair, err := a.resolvePair(opts.Pair)
	if err != nil {
		return err
	}

	series, err := a.loadSeries(ctx, pair, opts.Bars)
	if err != nil {
		return err
	}

	res, err := a.newSimulator().Run(series)
	if err != nil {
		return err
	}
	points := signal.NewPipeline(a.Config.Windows.OLSBeta, a.Config.Windows.Zscore).Run(series)

	outDir := opts.OutDir
	if outDir == "" {
		outDir = "reports"
	}
	runID := time.Now().UTC().Format("20060102_150405")
	dir := filepath.Join(outDir, runID)

	if err := report.WriteSignalsCSV(filepath.Join(dir, "signals.csv"), pair.Name, points); err != nil {
		return err
	}
	if err := report.WriteTradesCSV(filepath.Join(dir, "trades.csv"), res.Trades); err != nil {
		return err
	}
	if err := report.WriteEquityCSV(filepath.Join(dir, "equity.csv"), res.Equity); err != nil {
		return err
	}
	if err := report.WriteEquityPNG(filepath.Join(dir, "equity.png"), pair.Name, res.Equity); err != nil {
		return err
	}
	if err := report.WriteZScorePNG(filepath.Join(dir, "zscore.png"), pair.Name, points, a.Config.MachineThresholds()); err != nil {
		return err
	}
	if err := writeSummaryFile(filepath.Join(dir, "summary.txt"), res); err != nil {
		return err
	}

	if err := report.RenderSummary(os.Stdout, res); err != nil {
		return err
	}
	a.Logger.Info().Str("dir", dir).Str("run_id", runID).Msg("report bundle written")
	return nil
}

func writeSummaryFile(path string, res backtest.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.RenderSummary(f, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

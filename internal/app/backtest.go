package app

import (
	"context"
	"os"

	"stat-arb-signals/internal/report"
)

// Backtest simulates the strategy over recent history and prints the
// metrics block.
func (a *App) Backtest(ctx context.Context, opts BacktestOptions) error {
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

	return report.RenderSummary(os.Stdout, res)
}

// WalkForward evaluates the strategy across sequential out-of-sample
// folds and prints the per-fold table.
func (a *App) WalkForward(ctx context.Context, opts WalkForwardOptions) error {
	pair, err := a.resolvePair(opts.Pair)
	if err != nil {
		return err
	}

	series, err := a.loadSeries(ctx, pair, opts.Bars)
	if err != nil {
		return err
	}

	wf, err := a.newSimulator().WalkForward(series, opts.Folds)
	if err != nil {
		return err
	}

	return report.RenderWalkForward(os.Stdout, wf)
}

package report

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"stat-arb-signals/internal/backtest"
)

const summaryRule = "============================================================"

// RenderSummary writes the fixed-width result block for one simulation.
func RenderSummary(w io.Writer, res backtest.Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)

	fmt.Fprintln(tw, summaryRule)
	fmt.Fprintln(tw, "BACKTEST RESULTS")
	fmt.Fprintln(tw, summaryRule)
	fmt.Fprintf(tw, "pair\t: %s\n", res.Pair)
	fmt.Fprintf(tw, "total_return_pct\t: %.2f\n", res.TotalReturnPct)
	fmt.Fprintf(tw, "annual_return_pct\t: %.2f\n", res.AnnualReturnPct)
	fmt.Fprintf(tw, "annual_volatility_pct\t: %.2f\n", res.AnnualVolPct)
	fmt.Fprintf(tw, "sharpe_ratio\t: %.2f\n", res.Sharpe)
	fmt.Fprintf(tw, "max_drawdown_pct\t: %.2f\n", res.MaxDrawdownPct)
	fmt.Fprintf(tw, "n_trades\t: %d\n", res.NTrades)
	fmt.Fprintf(tw, "win_rate_pct\t: %.2f\n", res.WinRate)
	fmt.Fprintf(tw, "avg_win_usd\t: %.2f\n", res.AvgWinUSD)
	fmt.Fprintf(tw, "avg_loss_usd\t: %.2f\n", res.AvgLossUSD)
	fmt.Fprintf(tw, "profit_factor\t: %.2f\n", res.ProfitFactor)
	fmt.Fprintf(tw, "avg_trade_pnl_usd\t: %.2f\n", res.AvgTradePnLUSD)
	fmt.Fprintf(tw, "avg_duration_hours\t: %.2f\n", res.AvgDurationHours)
	fmt.Fprintf(tw, "total_cost_usd\t: %.2f\n", res.TotalCostUSD)
	fmt.Fprintf(tw, "final_equity\t: %.2f\n", res.FinalEquityUSD)
	if res.PendingSignal != nil {
		fmt.Fprintf(tw, "pending_signal\t: %s @ %s (z=%.2f)\n",
			res.PendingSignal.Action,
			res.PendingSignal.Ts.UTC().Format(time.RFC3339),
			res.PendingSignal.Z)
	}
	fmt.Fprintln(tw, summaryRule)

	return tw.Flush()
}

// RenderWalkForward writes the aggregate block plus a per-fold table.
func RenderWalkForward(w io.Writer, wf backtest.WalkForwardResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, summaryRule)
	fmt.Fprintln(tw, "WALK-FORWARD RESULTS")
	fmt.Fprintln(tw, summaryRule)
	fmt.Fprintf(tw, "pair\t: %s\n", wf.Pair)
	fmt.Fprintf(tw, "folds\t: %d\n", len(wf.Folds))
	fmt.Fprintf(tw, "total_return_pct\t: %.2f\n", wf.TotalReturnPct)
	fmt.Fprintf(tw, "n_trades\t: %d\n", wf.NTrades)
	fmt.Fprintf(tw, "win_rate_pct\t: %.2f\n", wf.WinRate)
	fmt.Fprintf(tw, "mean_sharpe\t: %.2f\n", wf.MeanSharpe)
	fmt.Fprintf(tw, "best_fold_pct\t: %.2f\n", wf.BestFoldPct)
	fmt.Fprintf(tw, "worst_fold_pct\t: %.2f\n", wf.WorstFoldPct)
	fmt.Fprintln(tw, summaryRule)

	fmt.Fprintln(tw, "fold\tstart\tend\treturn_pct\ttrades\tsharpe")
	for _, fold := range wf.Folds {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\t%d\t%.2f\n",
			fold.Index,
			fold.Start.UTC().Format("2006-01-02"),
			fold.End.UTC().Format("2006-01-02"),
			fold.Result.TotalReturnPct,
			fold.Result.NTrades,
			fold.Result.Sharpe)
	}

	return tw.Flush()
}

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"stat-arb-signals/internal/journal"
)

// Positions displays the paper-trade journal: open positions, closed
// history, or the aggregate summary.
func (a *App) Positions(_ context.Context, opts PositionsOptions) error {
	jrnl, err := a.openJournal()
	if err != nil {
		return err
	}
	if jrnl == nil {
		return errors.New("journal.path not configured")
	}
	defer jrnl.Close()

	switch opts.View {
	case "", "open":
		open, err := jrnl.OpenPositions()
		if err != nil {
			return err
		}
		printOpenPositions(os.Stdout, open)
		return nil
	case "history":
		hist, err := jrnl.History(opts.Limit)
		if err != nil {
			return err
		}
		printClosedPositions(os.Stdout, hist)
		return nil
	case "summary":
		sum, err := jrnl.Summarize()
		if err != nil {
			return err
		}
		printJournalSummary(os.Stdout, sum)
		return nil
	default:
		return fmt.Errorf("unknown view %q (expected open, history, or summary)", opts.View)
	}
}

func printOpenPositions(w io.Writer, positions []journal.PaperPosition) {
	if len(positions) == 0 {
		fmt.Fprintln(w, "no open positions")
		return
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Pair\tSide\tEntry (UTC)\tEntry Z\tBeta\tNotional USD\tY Qty\tX Qty")
	for _, pos := range positions {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%.2f\t%.4f\t%.2f\t%.6f\t%.6f\n",
			pos.Pair, pos.Side,
			pos.EntryTime.UTC().Format(time.RFC3339),
			pos.EntryZ, pos.EntryBeta, pos.NotionalUSD, pos.YQty, pos.XQty)
	}
	writer.Flush()
}

func printClosedPositions(w io.Writer, positions []journal.PaperPosition) {
	if len(positions) == 0 {
		fmt.Fprintln(w, "no closed positions")
		return
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Pair\tSide\tEntry (UTC)\tExit (UTC)\tEntry Z\tExit Z\tPnL USD\tReturn %\tReason")
	for _, pos := range positions {
		exitTs, exitZ, pnl, ret, reason := "-", "-", "-", "-", "-"
		if pos.ExitTime != nil {
			exitTs = pos.ExitTime.UTC().Format(time.RFC3339)
		}
		if pos.ExitZ != nil {
			exitZ = fmt.Sprintf("%.2f", *pos.ExitZ)
		}
		if pos.PnLUSD != nil {
			pnl = fmt.Sprintf("%.2f", *pos.PnLUSD)
		}
		if pos.ReturnPct != nil {
			ret = fmt.Sprintf("%.3f", *pos.ReturnPct)
		}
		if pos.ExitReason != nil {
			reason = *pos.ExitReason
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%.2f\t%s\t%s\t%s\t%s\n",
			pos.Pair, pos.Side,
			pos.EntryTime.UTC().Format(time.RFC3339),
			exitTs, pos.EntryZ, exitZ, pnl, ret, reason)
	}
	writer.Flush()
}

func printJournalSummary(w io.Writer, sum journal.Summary) {
	writer := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
	fmt.Fprintf(writer, "trades\t: %d\n", sum.Trades)
	fmt.Fprintf(writer, "wins\t: %d\n", sum.Wins)
	fmt.Fprintf(writer, "losses\t: %d\n", sum.Losses)
	fmt.Fprintf(writer, "win_rate_pct\t: %.2f\n", sum.WinRatePct)
	fmt.Fprintf(writer, "total_pnl_usd\t: %.2f\n", sum.TotalPnLUSD)
	writer.Flush()
}

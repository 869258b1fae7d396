package app

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"stat-arb-signals/internal/scan"
)

// ScanOnce runs one sweep and prints the resulting pair board. A pair
// name restricts the sweep to that pair.
func (a *App) ScanOnce(ctx context.Context, opts ScanOptions) error {
	eng, err := a.newScanEngine(ctx, opts.Diagnose)
	if err != nil {
		return err
	}
	defer eng.cleanup()

	if opts.Pair != "" && !opts.All {
		pair, err := a.resolvePair(opts.Pair)
		if err != nil {
			return err
		}
		rep, err := eng.scanner.ScanPair(ctx, scan.Pair{Name: pair.Name, YSym: pair.AssetY, XSym: pair.AssetX})
		if err != nil {
			return err
		}
		printBoard(os.Stdout, []scan.PairReport{rep})
		printDiagnostics(os.Stdout, []scan.PairReport{rep})
		if rep.Ticket != "" {
			fmt.Fprintln(os.Stdout)
			fmt.Fprintln(os.Stdout, rep.Ticket)
		}
		return nil
	}

	batch, err := eng.scanner.ScanAll(ctx)
	if err != nil {
		return err
	}

	printBoard(os.Stdout, batch.Reports)
	printDiagnostics(os.Stdout, batch.Reports)
	for _, rep := range batch.Reports {
		if rep.Ticket != "" {
			fmt.Fprintln(os.Stdout)
			fmt.Fprintln(os.Stdout, rep.Ticket)
		}
	}
	for _, failure := range batch.Failures {
		fmt.Fprintf(os.Stdout, "FAILED %s: %v\n", failure.Pair, failure.Err)
	}
	fmt.Fprintf(os.Stdout, "\n%d scanned, %d signals, %d failures in %s\n",
		len(batch.Reports), batch.Signals, len(batch.Failures),
		batch.FinishedAt.Sub(batch.StartedAt).Round(time.Millisecond))
	return nil
}

// printDiagnostics renders the cointegration battery for the reports that
// carry one. Silent when diagnostics were not requested.
func printDiagnostics(w io.Writer, reports []scan.PairReport) {
	any := false
	for _, rep := range reports {
		if rep.Diag != nil {
			any = true
			break
		}
	}
	if !any {
		return
	}

	fmt.Fprintln(w, "\nCointegration diagnostics:")
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Pair\tADF t-stat\tSig\tHalf-life\tHurst\tTradeable\tNotes")
	for _, rep := range reports {
		d := rep.Diag
		if d == nil {
			continue
		}
		sig := "-"
		if d.ADF.Level > 0 {
			sig = strconv.Itoa(d.ADF.Level) + "%"
		}
		half := "inf"
		if !math.IsInf(d.HalfLife, 1) {
			half = strconv.FormatFloat(d.HalfLife, 'f', 1, 64) + " bars"
		}
		tradeable := "no"
		if d.Tradeable {
			tradeable = "yes"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rep.Pair,
			strconv.FormatFloat(d.ADF.TStat, 'f', 2, 64),
			sig,
			half,
			strconv.FormatFloat(d.Hurst, 'f', 3, 64),
			tradeable,
			d.Reason)
	}
	writer.Flush()
}

func printBoard(w io.Writer, reports []scan.PairReport) {
	if len(reports) == 0 {
		fmt.Fprintln(w, "no pairs scanned")
		return
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Pair\tStatus\tZ\tBeta\tSpread\tPosition\tSignal\tLast Bar (UTC)")

	for _, rep := range reports {
		z, beta, spread := "-", "-", "-"
		if rep.Valid {
			z = strconv.FormatFloat(rep.Z, 'f', 2, 64)
			beta = strconv.FormatFloat(rep.Beta, 'f', 3, 64)
			spread = strconv.FormatFloat(rep.Spread, 'f', 4, 64)
		}
		note := ""
		if rep.Event != nil {
			note = rep.Event.Action.String()
		} else if rep.Gated {
			note = "gated: " + rep.GateReason
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rep.Pair, rep.Status, z, beta, spread, rep.Position, note,
			rep.Ts.UTC().Format(time.RFC3339))
	}

	writer.Flush()
}

package app

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"stat-arb-signals/internal/scan"
	"stat-arb-signals/internal/signal"
	"stat-arb-signals/internal/storage"
	"stat-arb-signals/internal/strategy"
)

// Status prints the current pair board without stepping any state
// machine or persisting anything. With Active set, only pairs stretched
// beyond the entry threshold are listed.
func (a *App) Status(ctx context.Context, opts StatusOptions) error {
	universe := a.Config.TradingPairs()
	if len(universe) == 0 {
		return fmt.Errorf("no pairs configured; set symbols or a pairs block")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}
	var states storage.PairStateStore
	if store != nil {
		states = store
	} else {
		states = storage.NewFileStateStore(a.Config.State.Dir, a.Logger)
	}

	th := a.Config.MachineThresholds()
	var reports []scan.PairReport

	for _, p := range universe {
		if err := ctx.Err(); err != nil {
			return err
		}

		rep := scan.PairReport{Pair: p.Name, YSym: p.AssetY, XSym: p.AssetX, Position: strategy.Neutral}

		series, err := a.loadSeries(ctx, p, 0)
		if err != nil {
			fmt.Fprintf(os.Stdout, "FAILED %s: %v\n", p.Name, err)
			continue
		}

		points := signal.NewPipeline(a.Config.Windows.OLSBeta, a.Config.Windows.Zscore).Run(series)
		if len(points) == 0 {
			continue
		}
		last := points[len(points)-1]
		rep.Ts = last.Ts
		rep.Z = last.Z
		rep.Beta = last.Beta
		rep.Spread = last.Spread
		rep.Valid = last.Valid
		if last.Valid {
			rep.Status = scan.Classify(last.Z, th)
		}

		if st, found, err := states.GetPairState(ctx, p.Name); err == nil && found {
			if pos, perr := strategy.ParsePosition(st.Position); perr == nil {
				rep.Position = pos
			}
		}

		if opts.Active && (!last.Valid || math.Abs(last.Z) <= th.ZIn) {
			continue
		}
		if opts.Diagnose {
			rep.Diag = scan.DiagnoseSeries(series, a.Logger)
		}
		reports = append(reports, rep)
	}

	sort.SliceStable(reports, func(i, j int) bool {
		return math.Abs(reports[i].Z) > math.Abs(reports[j].Z)
	})
	printBoard(os.Stdout, reports)
	printDiagnostics(os.Stdout, reports)

	if store != nil {
		if runs, err := store.ListRecentRuns(ctx, 5); err == nil && len(runs) > 0 {
			printRuns(os.Stdout, runs)
		}
	}
	return nil
}

func printRuns(w io.Writer, runs []storage.ScanRun) {
	fmt.Fprintln(w, "\nRecent sweeps:")
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Started (UTC)\tPairs\tOK\tSignals\tErrors\tNotes")
	for _, run := range runs {
		notes := ""
		if run.Notes != nil {
			notes = *run.Notes
		}
		fmt.Fprintf(writer, "%s\t%d\t%d\t%d\t%d\t%s\n",
			run.StartedAt.UTC().Format(time.RFC3339),
			run.PairsTotal, run.PairsOK, run.Signals, run.Errors, notes)
	}
	writer.Flush()
}

package app

import (
	"context"
	"errors"
	"time"

	"stat-arb-signals/internal/report"
	"stat-arb-signals/internal/signal"
)

// Export computes the signal series for one pair and writes it as CSV
// and/or a z-score chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	pair, err := a.resolvePair(opts.Pair)
	if err != nil {
		return err
	}

	series, err := a.loadSeries(ctx, pair, opts.Bars)
	if err != nil {
		return err
	}

	points := clipWindow(signal.NewPipeline(a.Config.Windows.OLSBeta, a.Config.Windows.Zscore).Run(series), opts.From, opts.To)
	if len(points) == 0 {
		a.Logger.Info().Msg("no points inside the export window")
		return nil
	}

	if opts.CSVPath != "" {
		if err := report.WriteSignalsCSV(opts.CSVPath, pair.Name, points); err != nil {
			return err
		}
		a.Logger.Info().Str("path", opts.CSVPath).Int("points", len(points)).Msg("signal series exported")
	}

	if opts.PNGPath != "" {
		if err := report.WriteZScorePNG(opts.PNGPath, pair.Name, points, a.Config.MachineThresholds()); err != nil {
			return err
		}
		a.Logger.Info().Str("path", opts.PNGPath).Msg("z-score chart exported")
	}

	return nil
}

// clipWindow keeps points with from <= ts < to.
func clipWindow(points []signal.SpreadPoint, from, to *time.Time) []signal.SpreadPoint {
	var out []signal.SpreadPoint
	for _, pt := range points {
		if from != nil && pt.Ts.Before(*from) {
			continue
		}
		if to != nil && !pt.Ts.Before(*to) {
			continue
		}
		out = append(out, pt)
	}
	return out
}

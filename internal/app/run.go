package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"stat-arb-signals/internal/metrics"
	"stat-arb-signals/internal/scheduler"
)

// Run executes the long-running scan daemon: one sweep over the pair
// universe shortly after every bar closes.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if addr := a.Config.Metrics.Listen; addr != "" {
		srv := metrics.Serve(addr)
		defer srv.Close()
		a.Logger.Info().Str("addr", addr).Msg("metrics listener up")
	}

	eng, err := a.newScanEngine(ctx, false)
	if err != nil {
		return err
	}
	defer eng.cleanup()

	interval := a.Config.Scheduler.Interval
	if interval <= 0 {
		interval, err = a.Config.BarInterval()
		if err != nil {
			return err
		}
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     interval,
		Align:        a.Config.Scheduler.Align,
		Grace:        a.Config.Scheduler.Grace,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	a.Logger.Info().
		Dur("interval", interval).
		Int("pairs", len(a.Config.TradingPairs())).
		Msg("starting scan daemon")

	err = sched.Run(ctx, func(ctx context.Context, _ time.Time) error {
		_, err := eng.scanner.ScanAll(ctx)
		return err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("scan daemon terminated with error")
		return err
	}

	a.Logger.Info().Msg("scan daemon stopped")
	return nil
}

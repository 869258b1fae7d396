package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultGrace is how long to wait after a bar boundary before scanning,
// so the venue has finalized and published the closed candle.
const DefaultGrace = 30 * time.Second

// TickFunc is invoked once per completed bar. barClose is the aligned
// boundary at which the bar finished.
type TickFunc func(ctx context.Context, barClose time.Time) error

// Options tune the sweep cadence.
type Options struct {
	Interval     time.Duration // bar interval, e.g. 1h
	Align        bool          // snap ticks to wall-clock bar boundaries
	Grace        time.Duration // delay after the boundary before ticking
	StartupDelay time.Duration // one-off delay before the loop starts
}

// Scheduler fires a tick shortly after every bar closes.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking tick after each bar close until ctx is cancelled.
// Tick errors are logged and the loop continues; a bar is never retried.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := s.sleep(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	barClose := s.nextClose(time.Now().UTC())
	for {
		fireAt := barClose.Add(s.opts.Grace)
		if wait := time.Until(fireAt); wait > 0 {
			s.logger.Debug().Time("bar_close", barClose).Dur("wait", wait).Msg("waiting for bar close")
			if err := s.sleep(ctx, wait); err != nil {
				return err
			}
		}

		s.logger.Info().Time("bar_close", barClose).Msg("bar closed, running sweep")
		if err := tick(ctx, barClose); err != nil {
			s.logger.Error().Err(err).Time("bar_close", barClose).Msg("sweep failed")
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		barClose = s.nextClose(time.Now().UTC())
	}
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// nextClose returns the first bar boundary strictly after now. When
// alignment is off the boundary is simply one interval away.
func (s *Scheduler) nextClose(now time.Time) time.Time {
	if !s.opts.Align {
		return now.Add(s.opts.Interval)
	}
	boundary := now.Truncate(s.opts.Interval)
	if !boundary.After(now) {
		boundary = boundary.Add(s.opts.Interval)
	}
	return boundary
}

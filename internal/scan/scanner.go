// Package scan orchestrates the live sweep: fetch candles, align legs, run
// the signal pipeline, step the state machine on the latest bar, size what
// it decides, and fan the outcome out to storage, the paper journal, and
// the alert channels.
package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stat-arb-signals/internal/alerting"
	"stat-arb-signals/internal/coint"
	"stat-arb-signals/internal/id"
	"stat-arb-signals/internal/journal"
	"stat-arb-signals/internal/market"
	"stat-arb-signals/internal/marketdata"
	"stat-arb-signals/internal/metrics"
	"stat-arb-signals/internal/risk"
	"stat-arb-signals/internal/signal"
	"stat-arb-signals/internal/storage"
	"stat-arb-signals/internal/strategy"
	"stat-arb-signals/internal/ticket"
)

// ErrPairLocked marks a pair another scanner instance is currently
// sweeping. The caller skips it without treating the sweep as failed.
var ErrPairLocked = errors.New("scan: pair advisory lock held elsewhere")

// Pair names one tradable spread and its two legs.
type Pair struct {
	Name string
	YSym string
	XSym string
}

// Config carries the data, strategy, and sizing parameters of the sweep.
// The signal and sizing sections are the same structures the simulator
// runs with, so a live decision and a backtest decision cannot diverge.
type Config struct {
	Pairs       []Pair
	Timeframe   string
	Interval    time.Duration
	HistoryBars int

	BetaWindow   int
	ZscoreWindow int
	Thresholds   strategy.Thresholds
	Sizer        risk.Config

	MinBars     int
	MaxGapRatio float64

	MinADVUSD     float64
	ADVWindowBars int

	// Diagnose adds cointegration diagnostics to each report. Informational
	// only: a failing battery never blocks a signal.
	Diagnose bool
}

func (c Config) withDefaults() Config {
	if c.HistoryBars <= 0 {
		c.HistoryBars = 400
	}
	if c.ADVWindowBars <= 0 {
		c.ADVWindowBars = 720
	}
	return c
}

// Scanner sweeps the configured pairs. All stores besides the state store
// are optional; a nil dependency simply disables that concern.
type Scanner struct {
	provider marketdata.CandleProvider
	states   storage.PairStateStore
	signals  storage.SignalStore
	orders   storage.OrderStore
	runs     storage.ScanRunStore
	journal  journal.Journal
	notifier alerting.Notifier
	locker   storage.AdvisoryLocker
	logger   zerolog.Logger

	cfg   Config
	sizer *risk.Sizer
}

// New constructs the scanner. When the state store also implements
// AdvisoryLocker (the Postgres store does), concurrent sweeps of the same
// pair from different processes serialise on its lock.
func New(cfg Config, provider marketdata.CandleProvider, states storage.PairStateStore, signals storage.SignalStore, orders storage.OrderStore, runs storage.ScanRunStore, jrnl journal.Journal, notifier alerting.Notifier, logger zerolog.Logger) *Scanner {
	var locker storage.AdvisoryLocker
	if l, ok := states.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Scanner{
		provider: provider,
		states:   states,
		signals:  signals,
		orders:   orders,
		runs:     runs,
		journal:  jrnl,
		notifier: notifier,
		locker:   locker,
		logger:   logger.With().Str("component", "scanner").Logger(),
		cfg:      cfg.withDefaults(),
		sizer:    risk.New(cfg.Sizer),
	}
}

// ScanAll sweeps every configured pair sequentially. One pair's failure is
// recorded and the sweep continues; only context cancellation aborts the
// batch. Rows come back sorted by |z| descending.
func (s *Scanner) ScanAll(ctx context.Context) (BatchReport, error) {
	batch := BatchReport{StartedAt: time.Now().UTC()}

	for _, pair := range s.cfg.Pairs {
		if err := ctx.Err(); err != nil {
			return batch, err
		}

		rep, err := s.ScanPair(ctx, pair)
		switch {
		case errors.Is(err, ErrPairLocked):
			s.logger.Debug().Str("pair", pair.Name).Msg("skip pair because advisory lock held elsewhere")
		case err != nil:
			s.logger.Error().Err(err).Str("pair", pair.Name).Msg("pair scan failed")
			metrics.ScanErrorsTotal.Inc()
			batch.Failures = append(batch.Failures, PairFailure{Pair: pair.Name, Err: err})
		default:
			batch.Reports = append(batch.Reports, rep)
			if rep.Event != nil {
				batch.Signals++
			}
		}
	}

	batch.FinishedAt = time.Now().UTC()
	batch.sortByStretch()
	metrics.ScansTotal.Inc()

	s.logger.Info().
		Int("pairs", len(s.cfg.Pairs)).
		Int("ok", len(batch.Reports)).
		Int("signals", batch.Signals).
		Int("failures", len(batch.Failures)).
		Dur("elapsed", batch.FinishedAt.Sub(batch.StartedAt)).
		Msg("scan sweep complete")

	s.recordRun(ctx, batch)
	return batch, nil
}

// ScanPair sweeps a single pair under its advisory lock.
func (s *Scanner) ScanPair(ctx context.Context, pair Pair) (PairReport, error) {
	unlock, proceed, err := s.acquireLock(ctx, pair.Name)
	if err != nil {
		return PairReport{}, err
	}
	if !proceed {
		return PairReport{}, ErrPairLocked
	}
	if unlock != nil {
		defer unlock()
	}

	return s.scanPair(ctx, pair)
}

func (s *Scanner) scanPair(ctx context.Context, pair Pair) (PairReport, error) {
	logger := s.logger.With().Str("pair", pair.Name).Logger()

	yBars, err := s.provider.Candles(ctx, pair.YSym, s.cfg.Timeframe, s.cfg.HistoryBars)
	if err != nil {
		return PairReport{}, fmt.Errorf("fetch %s: %w", pair.YSym, err)
	}
	xBars, err := s.provider.Candles(ctx, pair.XSym, s.cfg.Timeframe, s.cfg.HistoryBars)
	if err != nil {
		return PairReport{}, fmt.Errorf("fetch %s: %w", pair.XSym, err)
	}

	series, err := market.Align(pair.Name, yBars, xBars, market.AlignOptions{
		Interval:    s.cfg.Interval,
		MinBars:     s.cfg.MinBars,
		MaxGapRatio: s.cfg.MaxGapRatio,
		Logger:      s.logger,
	})
	if err != nil {
		return PairReport{}, err
	}
	series.YSym, series.XSym = pair.YSym, pair.XSym

	pipeline := signal.NewPipeline(s.cfg.BetaWindow, s.cfg.ZscoreWindow)
	points := pipeline.Run(series)
	last := points[len(points)-1]

	yADV, xADV := series.TrailingADV(series.Len()-1, s.cfg.ADVWindowBars)

	report := PairReport{
		Pair:    pair.Name,
		YSym:    pair.YSym,
		XSym:    pair.XSym,
		Ts:      last.Ts,
		Z:       last.Z,
		Beta:    last.Beta,
		Spread:  last.Spread,
		Valid:   last.Valid,
		Status:  classifyZ(last.Z, s.cfg.Thresholds),
		YADVUSD: yADV,
		XADVUSD: xADV,
	}

	if s.cfg.Diagnose {
		report.Diag = DiagnoseSeries(series, logger)
	}

	st, found, err := s.loadState(ctx, pair.Name)
	if err != nil {
		return report, fmt.Errorf("load state: %w", err)
	}

	machine := strategy.NewMachine(s.cfg.Thresholds)
	if found {
		seed, serr := stateSeed(st)
		if serr != nil {
			logger.Warn().Err(serr).Msg("stored state unreadable, treating pair as fresh")
			found = false
			st = storage.PairState{}
		} else {
			machine.Restore(seed)
		}
	}
	report.Position = machine.Position()

	if found && st.LastTs != nil && !last.Ts.After(*st.LastTs) {
		logger.Debug().Time("ts", last.Ts).Msg("latest bar already processed")
		return report, nil
	}

	if !last.Valid {
		logger.Warn().Time("ts", last.Ts).Msg("latest bar has no valid z-score, skipping")
		metrics.BarsSkippedTotal.WithLabelValues(pair.Name, "invalid").Inc()
		return report, nil
	}
	metrics.LastZScore.WithLabelValues(pair.Name).Set(last.Z)

	// A pair with no persisted decision context compares the latest bar
	// against the previous bar's z-score, same as an uninterrupted run.
	if _, have := machine.PrevZ(); !have && len(points) >= 2 && points[len(points)-2].Valid {
		machine.Restore(strategy.Seed{
			Position: machine.Position(),
			PrevZ:    points[len(points)-2].Z,
			HavePrev: true,
			LastTs:   machine.LastTs(),
		})
	}

	snapshot := machine.Snapshot()
	ev := machine.Step(pair.Name, last)
	if ev == nil {
		s.persistState(ctx, logger, advanceState(st, pair.Name, last))
		logger.Info().Float64("z", last.Z).Str("status", string(report.Status)).Msg("no signal")
		return report, nil
	}

	if ev.Action.IsEntry() {
		return s.takeEntry(ctx, logger, pair, report, machine, snapshot, ev, last, yADV, xADV)
	}
	return s.takeExit(ctx, logger, pair, report, st, ev, last)
}

func (s *Scanner) takeEntry(ctx context.Context, logger zerolog.Logger, pair Pair, report PairReport, machine *strategy.Machine, snapshot strategy.Seed, ev *strategy.SignalEvent, last signal.SpreadPoint, yADV, xADV float64) (PairReport, error) {
	if s.cfg.MinADVUSD > 0 && (yADV < s.cfg.MinADVUSD || xADV < s.cfg.MinADVUSD) {
		machine.Restore(snapshot)
		logger.Info().Float64("y_adv", yADV).Float64("x_adv", xADV).Float64("min_adv", s.cfg.MinADVUSD).Msg("ADV filter not met")
		metrics.BarsSkippedTotal.WithLabelValues(pair.Name, "adv_gate").Inc()
		report.Gated = true
		report.GateReason = fmt.Sprintf("leg ADV below %.0f USD", s.cfg.MinADVUSD)
		return report, nil
	}

	order, err := s.sizer.SizeEntry(*ev, last, yADV, xADV)
	if err != nil {
		machine.Restore(snapshot)
		logger.Warn().Err(err).Msg("entry sizing degenerate, bar skipped")
		metrics.BarsSkippedTotal.WithLabelValues(pair.Name, "sizing").Inc()
		return report, nil
	}
	if order.Skipped {
		machine.Restore(snapshot)
		logger.Warn().Str("reason", order.SkipReason).Msg("entry skipped by sizing clamps")
		metrics.BarsSkippedTotal.WithLabelValues(pair.Name, "sizing").Inc()
		s.notify(ctx, logger, pair, *ev, order, "")
		return report, nil
	}

	ev.ID = id.New()
	report.Event = ev
	report.Order = &order
	report.Position = ev.To

	s.persistState(ctx, logger, entryState(pair.Name, *ev, order, last))
	s.persistEvent(ctx, logger, *ev)
	s.persistOrder(ctx, logger, *ev, order)

	if s.journal != nil {
		pos := journal.PaperPosition{
			ID:          id.New(),
			Pair:        pair.Name,
			Side:        ev.To.String(),
			EntryTime:   ev.Ts,
			EntryZ:      ev.Z,
			EntryBeta:   ev.Beta,
			EntryYPrice: last.YClose,
			EntryXPrice: last.XClose,
			YQty:        order.YQty,
			XQty:        order.XQty,
			NotionalUSD: order.TotalNotional(),
		}
		if err := s.journal.OpenPosition(pos); err != nil {
			logger.Error().Err(err).Msg("failed to journal paper entry")
		}
	}

	report.Ticket = s.renderTicket(pair, *ev, order, last)
	s.notify(ctx, logger, pair, *ev, order, report.Ticket)
	metrics.SignalsTotal.WithLabelValues(pair.Name, ev.Action.String()).Inc()

	logger.Info().
		Str("action", ev.Action.String()).
		Float64("z", ev.Z).
		Float64("leg_y_usd", order.LegYNotional).
		Float64("leg_x_usd", order.LegXNotional).
		Msg("entry signal taken")
	return report, nil
}

func (s *Scanner) takeExit(ctx context.Context, logger zerolog.Logger, pair Pair, report PairReport, st storage.PairState, ev *strategy.SignalEvent, last signal.SpreadPoint) (PairReport, error) {
	order := s.sizer.SizeExit(*ev, last,
		st.LegYNotional.InexactFloat64(),
		st.LegXNotional.InexactFloat64(),
		st.YQty.InexactFloat64(),
		st.XQty.InexactFloat64())

	ev.ID = id.New()
	report.Event = ev
	report.Order = &order
	report.Position = ev.To

	s.persistState(ctx, logger, flatState(pair.Name, *ev, last))
	s.persistEvent(ctx, logger, *ev)
	s.persistOrder(ctx, logger, *ev, order)

	if s.journal != nil {
		s.closeJournalPosition(logger, pair.Name, *ev, last)
	}

	report.Ticket = s.renderTicket(pair, *ev, order, last)
	s.notify(ctx, logger, pair, *ev, order, report.Ticket)
	metrics.SignalsTotal.WithLabelValues(pair.Name, ev.Action.String()).Inc()

	logger.Info().
		Str("action", ev.Action.String()).
		Float64("z", ev.Z).
		Str("reason", ev.Reason).
		Msg("position flattened")
	return report, nil
}

func (s *Scanner) closeJournalPosition(logger zerolog.Logger, pair string, ev strategy.SignalEvent, last signal.SpreadPoint) {
	open, err := s.journal.OpenPositions()
	if err != nil {
		logger.Error().Err(err).Msg("failed to list open paper positions")
		return
	}
	for _, pos := range open {
		if pos.Pair != pair {
			continue
		}
		if _, err := s.journal.ClosePosition(pos.ID, ev.Ts, ev.Z, last.YClose, last.XClose, ev.Reason); err != nil {
			logger.Error().Err(err).Str("position_id", pos.ID).Msg("failed to journal paper exit")
		}
		return
	}
	logger.Debug().Msg("no open paper position to close")
}

func (s *Scanner) renderTicket(pair Pair, ev strategy.SignalEvent, order risk.SizedOrder, last signal.SpreadPoint) string {
	return ticket.Render(ticket.Input{
		ID:     ev.ID,
		YSym:   pair.YSym,
		XSym:   pair.XSym,
		Event:  ev,
		Order:  order,
		Point:  last,
		Limits: s.cfg.Thresholds,
		Costs:  ticket.EstimateCosts(order.TotalNotional(), s.cfg.Sizer.FeeBps, s.cfg.Sizer.SlippageBps),
	})
}

func (s *Scanner) notify(ctx context.Context, logger zerolog.Logger, pair Pair, ev strategy.SignalEvent, order risk.SizedOrder, ticketText string) {
	if s.notifier == nil {
		return
	}

	note := alerting.Notification{
		Pair:         pair.Name,
		YSym:         pair.YSym,
		XSym:         pair.XSym,
		Ts:           ev.Ts,
		Action:       ev.Action.String(),
		FromPosition: ev.From.String(),
		ToPosition:   ev.To.String(),
		Z:            decimal.NewFromFloat(ev.Z),
		Beta:         decimal.NewFromFloat(ev.Beta),
		Spread:       decimal.NewFromFloat(ev.Spread),
		Reason:       ev.Reason,
		LegYNotional: decimal.NewFromFloat(order.LegYNotional),
		LegXNotional: decimal.NewFromFloat(order.LegXNotional),
		Skipped:      order.Skipped,
		SkipReason:   order.SkipReason,
		Ticket:       ticketText,
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		logger.Error().Err(err).Msg("failed to dispatch alert")
	}
}

func (s *Scanner) loadState(ctx context.Context, pair string) (storage.PairState, bool, error) {
	if s.states == nil {
		return storage.PairState{}, false, nil
	}
	return s.states.GetPairState(ctx, pair)
}

func (s *Scanner) persistState(ctx context.Context, logger zerolog.Logger, st storage.PairState) {
	if s.states == nil {
		return
	}
	if err := s.states.UpsertPairState(ctx, st); err != nil {
		logger.Error().Err(err).Msg("failed to upsert pair state")
	}
}

func (s *Scanner) persistEvent(ctx context.Context, logger zerolog.Logger, ev strategy.SignalEvent) {
	if s.signals == nil {
		return
	}
	rec := storage.SignalRecord{
		ID:           ev.ID,
		Ts:           ev.Ts,
		Pair:         ev.Pair,
		Action:       ev.Action.String(),
		FromPosition: ev.From.String(),
		ToPosition:   ev.To.String(),
		Z:            decimal.NewFromFloat(ev.Z),
		Beta:         decimal.NewFromFloat(ev.Beta),
		Spread:       decimal.NewFromFloat(ev.Spread),
		Reason:       ev.Reason,
	}
	if err := s.signals.InsertSignal(ctx, rec); err != nil {
		logger.Error().Err(err).Msg("failed to persist signal event")
	}
}

func (s *Scanner) persistOrder(ctx context.Context, logger zerolog.Logger, ev strategy.SignalEvent, order risk.SizedOrder) {
	if s.orders == nil {
		return
	}
	rec := storage.OrderRecord{
		ID:            id.New(),
		EventID:       ev.ID,
		Ts:            order.Ts,
		Pair:          order.Pair,
		Action:        order.Action.String(),
		LegYNotional:  decimal.NewFromFloat(order.LegYNotional),
		LegXNotional:  decimal.NewFromFloat(order.LegXNotional),
		YQty:          decimal.NewFromFloat(order.YQty),
		XQty:          decimal.NewFromFloat(order.XQty),
		TargetRiskUSD: decimal.NewFromFloat(order.TargetRiskUSD),
		RiskPerZUSD:   decimal.NewFromFloat(order.RiskPerZUSD),
		Scale:         decimal.NewFromFloat(order.Scale),
		EstCostUSD:    decimal.NewFromFloat(order.EstCostUSD),
		Skipped:       order.Skipped,
	}
	if order.SkipReason != "" {
		reason := order.SkipReason
		rec.SkipReason = &reason
	}
	if err := s.orders.InsertOrder(ctx, rec); err != nil {
		logger.Error().Err(err).Msg("failed to persist sized order")
	}
}

func (s *Scanner) recordRun(ctx context.Context, batch BatchReport) {
	if s.runs == nil {
		return
	}

	run := storage.ScanRun{
		StartedAt:  batch.StartedAt,
		FinishedAt: batch.FinishedAt,
		PairsTotal: len(s.cfg.Pairs),
		PairsOK:    len(batch.Reports),
		Signals:    batch.Signals,
		Errors:     len(batch.Failures),
	}
	if len(batch.Failures) > 0 {
		names := make([]string, 0, len(batch.Failures))
		for _, f := range batch.Failures {
			names = append(names, f.Pair)
		}
		notes := "failed: " + strings.Join(names, ", ")
		run.Notes = &notes
	}

	if _, err := s.runs.InsertScanRun(ctx, run); err != nil {
		s.logger.Error().Err(err).Msg("failed to record scan run")
	}
}

func (s *Scanner) acquireLock(ctx context.Context, pair string) (func(), bool, error) {
	if s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryPairLock(ctx, pair)
	if err != nil {
		return nil, false, fmt.Errorf("acquire pair lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func stateSeed(st storage.PairState) (strategy.Seed, error) {
	pos, err := strategy.ParsePosition(st.Position)
	if err != nil {
		return strategy.Seed{}, err
	}

	seed := strategy.Seed{Position: pos}
	if st.PrevZ != nil {
		seed.PrevZ = st.PrevZ.InexactFloat64()
		seed.HavePrev = true
	}
	if st.LastTs != nil {
		seed.LastTs = *st.LastTs
	}
	return seed, nil
}

// advanceState moves the decision context forward on a bar that changed
// nothing: position and entry facts are kept, prev z and last ts move.
func advanceState(prev storage.PairState, pair string, pt signal.SpreadPoint) storage.PairState {
	st := prev
	st.Pair = pair
	if st.Position == "" {
		st.Position = strategy.Neutral.String()
	}
	z := decimal.NewFromFloat(pt.Z)
	ts := pt.Ts
	st.PrevZ = &z
	st.LastTs = &ts
	return st
}

func entryState(pair string, ev strategy.SignalEvent, order risk.SizedOrder, pt signal.SpreadPoint) storage.PairState {
	z := decimal.NewFromFloat(pt.Z)
	ts := pt.Ts
	entryZ := decimal.NewFromFloat(ev.Z)
	entryTs := ev.Ts
	entryBeta := decimal.NewFromFloat(ev.Beta)

	return storage.PairState{
		Pair:         pair,
		Position:     ev.To.String(),
		PrevZ:        &z,
		LastTs:       &ts,
		EntryZ:       &entryZ,
		EntryTs:      &entryTs,
		EntryBeta:    &entryBeta,
		LegYNotional: decimal.NewFromFloat(order.LegYNotional),
		LegXNotional: decimal.NewFromFloat(order.LegXNotional),
		YQty:         decimal.NewFromFloat(order.YQty),
		XQty:         decimal.NewFromFloat(order.XQty),
	}
}

func flatState(pair string, ev strategy.SignalEvent, pt signal.SpreadPoint) storage.PairState {
	z := decimal.NewFromFloat(pt.Z)
	ts := pt.Ts

	return storage.PairState{
		Pair:     pair,
		Position: ev.To.String(),
		PrevZ:    &z,
		LastTs:   &ts,
	}
}

// DiagnoseSeries runs the cointegration battery on the aligned closes. A
// failed battery is reported as nil with a warning; it never fails the scan.
func DiagnoseSeries(series market.PairSeries, logger zerolog.Logger) *coint.Diagnostics {
	y := make([]float64, series.Len())
	x := make([]float64, series.Len())
	for i, bar := range series.Bars {
		y[i] = bar.Y.Close
		x[i] = bar.X.Close
	}

	diag, err := coint.Diagnose(y, x, coint.Options{})
	if err != nil {
		logger.Warn().Err(err).Msg("cointegration diagnostics unavailable")
		return nil
	}
	return &diag
}

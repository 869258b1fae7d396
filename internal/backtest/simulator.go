package backtest

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"stat-arb-signals/internal/market"
	"stat-arb-signals/internal/risk"
	"stat-arb-signals/internal/signal"
	"stat-arb-signals/internal/strategy"
)

// DefaultADVWindowBars covers thirty days of hourly candles.
const DefaultADVWindowBars = 720

// Config parameterises one simulation. The signal, strategy, and sizing
// settings are the exact structures the live scanner runs with, so a
// backtest decision and a live decision over the same bars cannot diverge.
type Config struct {
	BetaWindow    int
	ZscoreWindow  int
	Thresholds    strategy.Thresholds
	Sizer         risk.Config
	MinADVUSD     float64
	ADVWindowBars int

	InitialEquityUSD float64
	BarsPerYear      float64
}

func (c Config) withDefaults() Config {
	if c.ADVWindowBars <= 0 {
		c.ADVWindowBars = DefaultADVWindowBars
	}
	if c.InitialEquityUSD <= 0 {
		c.InitialEquityUSD = 100_000
	}
	if c.BarsPerYear <= 0 {
		c.BarsPerYear = 365 * 24
	}
	return c
}

// Simulator replays aligned history through the signal pipeline, the state
// machine, and the sizer, filling transitions at the next bar's open.
type Simulator struct {
	cfg    Config
	logger zerolog.Logger
}

// New constructs a Simulator.
func New(cfg Config, logger zerolog.Logger) *Simulator {
	return &Simulator{
		cfg:    cfg.withDefaults(),
		logger: logger.With().Str("component", "simulator").Logger(),
	}
}

// openPosition is the filled side of an in-flight trade.
type openPosition struct {
	trade Trade
}

// pendingFill carries a decision from its signal bar to the next bar's open.
type pendingFill struct {
	ev    strategy.SignalEvent
	order risk.SizedOrder
}

// Run simulates the full series. Identical input and config always produce
// an identical Result: the loop touches no clock, no randomness, and no
// shared state.
func (s *Simulator) Run(series market.PairSeries) (Result, error) {
	if series.Len() < 2 {
		return Result{}, errors.New("backtest: series too short to simulate")
	}
	if s.cfg.BetaWindow < 2 || s.cfg.ZscoreWindow < 2 {
		return Result{}, fmt.Errorf("backtest: windows must be at least 2, got beta=%d zscore=%d", s.cfg.BetaWindow, s.cfg.ZscoreWindow)
	}

	pipeline := signal.NewPipeline(s.cfg.BetaWindow, s.cfg.ZscoreWindow)
	machine := strategy.NewMachine(s.cfg.Thresholds)
	sizer := risk.New(s.cfg.Sizer)

	res := Result{
		Pair:             series.Name,
		InitialEquityUSD: s.cfg.InitialEquityUSD,
		Equity:           make([]EquityPoint, 0, series.Len()),
	}

	var (
		realized float64 // net of all charged costs
		open     *openPosition
		pending  *pendingFill
		skipped  int
	)

	for i, bar := range series.Bars {
		// fill the decision carried over from the previous bar
		if pending != nil {
			if pending.ev.Action.IsEntry() {
				open = s.fillEntry(pending, bar, sizer, &realized, &res)
			} else if open != nil {
				s.fillExit(pending, bar, open, sizer, &realized, &res)
				open = nil
			}
			pending = nil
		}

		pt := pipeline.Push(bar.Ts, bar.Y.Close, bar.X.Close)

		snapshot := machine.Snapshot()
		if ev := machine.Step(series.Name, pt); ev != nil {
			if ev.Action.IsEntry() {
				yADV, xADV := series.TrailingADV(i, s.cfg.ADVWindowBars)
				if s.cfg.MinADVUSD > 0 && (yADV < s.cfg.MinADVUSD || xADV < s.cfg.MinADVUSD) {
					machine.Restore(snapshot)
					skipped++
				} else {
					order, err := sizer.SizeEntry(*ev, pt, yADV, xADV)
					switch {
					case err != nil:
						// degenerate sizing skips the whole bar
						machine.Restore(snapshot)
						skipped++
					case order.Skipped:
						machine.Restore(snapshot)
						skipped++
					default:
						pending = &pendingFill{ev: *ev, order: order}
					}
				}
			} else {
				order := sizer.SizeExit(*ev, pt, 0, 0, 0, 0)
				pending = &pendingFill{ev: *ev, order: order}
			}
		}

		equity := s.cfg.InitialEquityUSD + realized
		if open != nil {
			equity += unrealizedPnL(open, bar.Y.Close, bar.X.Close)
		}
		res.Equity = append(res.Equity, EquityPoint{Ts: bar.Ts, Equity: equity})
	}

	// a signal decided on the final bar has no next open to fill at
	if pending != nil {
		ev := pending.ev
		res.PendingSignal = &ev
	}

	// mark any open position to the final close
	if open != nil {
		last := series.Bars[series.Len()-1]
		s.closeAt(open, last.Y.Close, last.X.Close, last.Ts, 0, "end_of_data", sizer, &realized, &res)
		res.Equity[len(res.Equity)-1].Equity = s.cfg.InitialEquityUSD + realized
	}

	if skipped > 0 {
		s.logger.Warn().Str("pair", series.Name).Int("skipped_entries", skipped).Msg("entries skipped by sizing or liquidity guards")
	}

	res.computeMetrics(s.cfg.BarsPerYear)
	return res, nil
}

// fillEntry opens the position at this bar's open prices. Quantities are
// derived from the sized notionals at the actual fill price so the USD
// footprint matches the order exactly.
func (s *Simulator) fillEntry(p *pendingFill, bar market.AlignedBar, sizer *risk.Sizer, realized *float64, res *Result) *openPosition {
	dir := 1.0
	if p.ev.Action == strategy.ActionEnterShort {
		dir = -1.0
	}

	yFill, xFill := bar.Y.Open, bar.X.Open
	if yFill <= 0 || xFill <= 0 {
		s.logger.Warn().Time("ts", bar.Ts).Msg("unusable open price on fill bar, entry dropped")
		return nil
	}

	cost := sizer.CostUSD(p.order.TotalNotional())
	*realized -= cost
	res.TotalCostUSD += cost

	return &openPosition{trade: Trade{
		Pair:         p.ev.Pair,
		Action:       p.ev.Action,
		EntryTs:      bar.Ts,
		EntryZ:       p.ev.Z,
		Beta:         p.ev.Beta,
		LegYNotional: p.order.LegYNotional,
		LegXNotional: p.order.LegXNotional,
		YQty:         dir * p.order.LegYNotional / yFill,
		XQty:         -dir * p.order.LegXNotional / xFill,
		EntryYPx:     yFill,
		EntryXPx:     xFill,
		CostUSD:      cost,
	}}
}

func (s *Simulator) fillExit(p *pendingFill, bar market.AlignedBar, open *openPosition, sizer *risk.Sizer, realized *float64, res *Result) {
	reason := "exit"
	if p.ev.Action == strategy.ActionStopLoss {
		reason = "stop"
	}
	s.closeAt(open, bar.Y.Open, bar.X.Open, bar.Ts, p.ev.Z, reason, sizer, realized, res)
}

// closeAt realises the open trade at the given prices.
func (s *Simulator) closeAt(open *openPosition, yPx, xPx float64, ts time.Time, exitZ float64, reason string, sizer *risk.Sizer, realized *float64, res *Result) {
	tr := open.trade
	gross := tr.YQty*(yPx-tr.EntryYPx) + tr.XQty*(xPx-tr.EntryXPx)

	exitNotional := math.Abs(tr.YQty)*yPx + math.Abs(tr.XQty)*xPx
	cost := sizer.CostUSD(exitNotional)

	tr.ExitTs = ts
	tr.ExitYPx = yPx
	tr.ExitXPx = xPx
	tr.ExitZ = exitZ
	tr.Reason = reason
	tr.CostUSD += cost
	tr.PnLUSD = gross - tr.CostUSD
	if total := tr.LegYNotional + tr.LegXNotional; total > 0 {
		tr.ReturnPct = tr.PnLUSD / total * 100
	}
	tr.DurationHours = tr.ExitTs.Sub(tr.EntryTs).Hours()

	*realized += gross - cost
	res.TotalCostUSD += cost
	res.Trades = append(res.Trades, tr)
}

func unrealizedPnL(open *openPosition, yPx, xPx float64) float64 {
	tr := open.trade
	return tr.YQty*(yPx-tr.EntryYPx) + tr.XQty*(xPx-tr.EntryXPx)
}

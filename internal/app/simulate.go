package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"stat-arb-signals/internal/alerting"
	"stat-arb-signals/internal/id"
	"stat-arb-signals/internal/risk"
	"stat-arb-signals/internal/signal"
	"stat-arb-signals/internal/strategy"
	"stat-arb-signals/internal/ticket"
)

// Simulate pushes a synthetic signal through sizing, ticket rendering, and
// the alert channels using live prices for the pair. Nothing is persisted:
// the command exists to verify the alert path end to end before trusting it
// with a real signal.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channels configured; set a webhook or telegram credentials first")
	}

	pair, err := a.resolvePair(opts.Pair)
	if err != nil {
		return err
	}

	action, err := strategy.ParseAction(strings.ToUpper(strings.TrimSpace(opts.Action)))
	if err != nil {
		return err
	}

	series, err := a.loadSeries(ctx, pair, 0)
	if err != nil {
		return err
	}
	points := signal.NewPipeline(a.Config.Windows.OLSBeta, a.Config.Windows.Zscore).Run(series)
	last := points[len(points)-1]
	if !last.Valid {
		return fmt.Errorf("latest bar for %s has no valid z-score; more history needed", pair.Name)
	}

	th := a.Config.MachineThresholds()
	z := opts.Z
	if z == 0 {
		z = syntheticZ(action, th)
	}
	last.Z = z

	ev := strategy.SignalEvent{
		ID:     id.New(),
		Ts:     last.Ts,
		Pair:   pair.Name,
		Action: action,
		From:   fromPosition(action, z),
		To:     toPosition(action),
		Z:      z,
		Beta:   last.Beta,
		Spread: last.Spread,
		Reason: "simulated alert",
	}

	sizer := risk.New(a.Config.SizerConfig())
	yADV, xADV := series.TrailingADV(series.Len()-1, series.Len())

	var order risk.SizedOrder
	if action.IsEntry() {
		order, err = sizer.SizeEntry(ev, last, yADV, xADV)
		if err != nil {
			return fmt.Errorf("size synthetic entry: %w", err)
		}
	} else {
		// No persisted position to flatten; size the entry this z would
		// have opened and close exactly that.
		entry := ev
		entry.Action = strategy.ActionEnterLong
		if z > 0 {
			entry.Action = strategy.ActionEnterShort
		}
		open, serr := sizer.SizeEntry(entry, last, yADV, xADV)
		if serr != nil {
			return fmt.Errorf("size synthetic position: %w", serr)
		}
		order = sizer.SizeExit(ev, last, open.LegYNotional, open.LegXNotional, open.YQty, open.XQty)
	}

	text := ticket.Render(ticket.Input{
		ID:     ev.ID,
		YSym:   pair.AssetY,
		XSym:   pair.AssetX,
		Event:  ev,
		Order:  order,
		Point:  last,
		Limits: th,
		Costs:  ticket.EstimateCosts(order.TotalNotional(), a.Config.Costs.FeeBps, a.Config.Costs.SlippageBps),
	})
	fmt.Fprintln(os.Stdout, text)

	note := alerting.Notification{
		Pair:         pair.Name,
		YSym:         pair.AssetY,
		XSym:         pair.AssetX,
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
		Ticket:       text,
	}
	if err := notifier.Notify(ctx, note); err != nil {
		return fmt.Errorf("dispatch simulated alert: %w", err)
	}

	a.Logger.Info().
		Str("pair", pair.Name).
		Str("action", action.String()).
		Float64("z", z).
		Msg("simulated alert dispatched")
	return nil
}

// syntheticZ picks a plausible stretch for the requested action when the
// caller did not supply one.
func syntheticZ(action strategy.Action, th strategy.Thresholds) float64 {
	switch action {
	case strategy.ActionEnterLong:
		return -(th.ZIn + 0.3)
	case strategy.ActionEnterShort:
		return th.ZIn + 0.3
	case strategy.ActionStopLoss:
		return th.ZStop + 0.3
	default:
		return th.ZOut / 2
	}
}

func fromPosition(action strategy.Action, z float64) strategy.Position {
	if action.IsEntry() {
		return strategy.Neutral
	}
	if z < 0 {
		return strategy.LongSpread
	}
	return strategy.ShortSpread
}

func toPosition(action strategy.Action) strategy.Position {
	switch action {
	case strategy.ActionEnterLong:
		return strategy.LongSpread
	case strategy.ActionEnterShort:
		return strategy.ShortSpread
	default:
		return strategy.Neutral
	}
}

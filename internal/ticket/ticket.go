// Package ticket renders human-readable trade tickets and their JSON
// counterparts. Rendering is pure: identifiers and timestamps come from the
// caller, so the same input always produces the same ticket.
package ticket

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stat-arb-signals/internal/risk"
	"stat-arb-signals/internal/signal"
	"stat-arb-signals/internal/strategy"
)

const rule = "============================================================"

// Costs is the estimated execution cost of filling both legs once, split
// into its fee and slippage components.
type Costs struct {
	FeesUSD     float64
	SlippageUSD float64
}

// EstimateCosts splits a combined notional into fee and slippage estimates
// using the configured basis points.
func EstimateCosts(totalNotionalUSD, feeBps, slippageBps float64) Costs {
	return Costs{
		FeesUSD:     totalNotionalUSD * feeBps / 10000,
		SlippageUSD: totalNotionalUSD * slippageBps / 10000,
	}
}

// Input bundles everything one ticket needs.
type Input struct {
	ID     string
	YSym   string
	XSym   string
	Event  strategy.SignalEvent
	Order  risk.SizedOrder
	Point  signal.SpreadPoint
	Limits strategy.Thresholds
	Costs  Costs
}

// Render formats the fixed-width text ticket.
func Render(in Input) string {
	baseY := baseAsset(in.YSym)
	baseX := baseAsset(in.XSym)
	heading, ySide, xSide := actionHeading(in.Event.Action, baseY, baseX)

	lines := []string{
		rule,
		"TRADE TICKET",
		rule,
		fmt.Sprintf("Ticket:    %s", in.ID),
		fmt.Sprintf("Timestamp: %s", in.Event.Ts.UTC().Format("2006-01-02 15:04:05 UTC")),
		fmt.Sprintf("Pair:      %s", in.Event.Pair),
		fmt.Sprintf("Signal:    %s", heading),
		"",
		"MARKET DATA",
		fmt.Sprintf("  Z-score: %s", num(in.Point.Z, 3)),
		fmt.Sprintf("  Beta (hedge ratio): %s", num(in.Point.Beta, 3)),
		fmt.Sprintf("  Spread: %s", num(in.Point.Spread, 4)),
		fmt.Sprintf("  %s price: %s", in.YSym, usd(in.Point.YClose)),
		fmt.Sprintf("  %s price: %s", in.XSym, usd(in.Point.XClose)),
		"",
		"POSITION DETAILS",
	}

	if in.Order.Skipped {
		lines = append(lines, fmt.Sprintf("  SKIPPED: %s", in.Order.SkipReason))
	} else {
		lines = append(lines,
			fmt.Sprintf("  %s: %s %s (%s %s)", baseY, ySide, usd(in.Order.LegYNotional), qty(in.Order.YQty), baseY),
			fmt.Sprintf("  %s: %s %s (%s %s)", baseX, xSide, usd(in.Order.LegXNotional), qty(in.Order.XQty), baseX),
			fmt.Sprintf("  Total Notional: %s", usd(in.Order.TotalNotional())),
			fmt.Sprintf("  Sizing Scale: %sx", num(in.Order.Scale, 2)),
		)
	}

	lines = append(lines,
		"",
		"RISK PARAMETERS",
		fmt.Sprintf("  Stop Loss: |z| > %s", num(in.Limits.ZStop, 2)),
		fmt.Sprintf("  Exit Target: |z| < %s", num(in.Limits.ZOut, 2)),
	)
	if in.Order.RiskPerZUSD > 0 {
		lines = append(lines, fmt.Sprintf("  Risk per Z-score: %s", usd(in.Order.RiskPerZUSD)))
	}

	lines = append(lines,
		"",
		"COSTS",
		fmt.Sprintf("  Est. Fees: %s", usd(in.Costs.FeesUSD)),
		fmt.Sprintf("  Est. Slippage: %s", usd(in.Costs.SlippageUSD)),
		"",
		"NOTES",
		fmt.Sprintf("  Reason: %s", in.Event.Reason),
		rule,
	)

	return strings.Join(lines, "\n")
}

type jsonPosition struct {
	YNotionalUSD   float64 `json:"y_notional_usd"`
	XNotionalUSD   float64 `json:"x_notional_usd"`
	YQty           float64 `json:"y_qty"`
	XQty           float64 `json:"x_qty"`
	TotalNotional  float64 `json:"total_notional_usd"`
	SizingScale    float64 `json:"sizing_scale"`
	RiskPerZUSD    float64 `json:"risk_per_zscore_usd"`
	EstFeesUSD     float64 `json:"est_fees_usd"`
	EstSlippageUSD float64 `json:"est_slippage_usd"`
	Skipped        bool    `json:"skipped,omitempty"`
	SkipReason     string  `json:"skip_reason,omitempty"`
}

type jsonTicket struct {
	TicketID  string       `json:"ticket_id"`
	Timestamp string       `json:"timestamp"`
	Pair      string       `json:"pair"`
	Action    string       `json:"action"`
	Zscore    float64      `json:"zscore"`
	Beta      float64      `json:"beta"`
	Spread    float64      `json:"spread"`
	YSymbol   string       `json:"y_symbol"`
	YPrice    float64      `json:"y_price"`
	XSymbol   string       `json:"x_symbol"`
	XPrice    float64      `json:"x_price"`
	Reason    string       `json:"reason"`
	Position  jsonPosition `json:"position"`
}

// RenderJSON serialises the ticket for machine consumers.
func RenderJSON(in Input) ([]byte, error) {
	doc := jsonTicket{
		TicketID:  in.ID,
		Timestamp: in.Event.Ts.UTC().Format(time.RFC3339),
		Pair:      in.Event.Pair,
		Action:    in.Event.Action.String(),
		Zscore:    in.Point.Z,
		Beta:      in.Point.Beta,
		Spread:    in.Point.Spread,
		YSymbol:   in.YSym,
		YPrice:    in.Point.YClose,
		XSymbol:   in.XSym,
		XPrice:    in.Point.XClose,
		Reason:    in.Event.Reason,
		Position: jsonPosition{
			YNotionalUSD:   in.Order.LegYNotional,
			XNotionalUSD:   in.Order.LegXNotional,
			YQty:           in.Order.YQty,
			XQty:           in.Order.XQty,
			TotalNotional:  in.Order.TotalNotional(),
			SizingScale:    in.Order.Scale,
			RiskPerZUSD:    in.Order.RiskPerZUSD,
			EstFeesUSD:     in.Costs.FeesUSD,
			EstSlippageUSD: in.Costs.SlippageUSD,
			Skipped:        in.Order.Skipped,
			SkipReason:     in.Order.SkipReason,
		},
	}
	return json.MarshalIndent(doc, "", "  ")
}

func actionHeading(a strategy.Action, baseY, baseX string) (heading, ySide, xSide string) {
	switch a {
	case strategy.ActionEnterLong:
		return fmt.Sprintf("ENTER Long Spread (%s long / %s short)", baseY, baseX), "LONG", "SHORT"
	case strategy.ActionEnterShort:
		return fmt.Sprintf("ENTER Short Spread (%s short / %s long)", baseY, baseX), "SHORT", "LONG"
	case strategy.ActionExit:
		return "EXIT Position", "CLOSE", "CLOSE"
	case strategy.ActionStopLoss:
		return "STOP LOSS Triggered", "CLOSE", "CLOSE"
	default:
		return "NO ACTION", "NONE", "NONE"
	}
}

// baseAsset extracts the base of a "BASE/QUOTE" symbol for leg labels.
func baseAsset(sym string) string {
	if base, _, ok := strings.Cut(sym, "/"); ok && base != "" {
		return base
	}
	return sym
}

// usd renders a USD amount with thousands separators, e.g. $43,250.00.
func usd(v float64) string {
	d := decimal.NewFromFloat(v)
	neg := d.IsNegative()
	fixed := d.Abs().StringFixed(2)

	dot := strings.IndexByte(fixed, '.')
	intPart, fracPart := fixed[:dot], fixed[dot:]

	var b strings.Builder
	for i := 0; i < len(intPart); i++ {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteByte(intPart[i])
	}

	out := "$" + b.String() + fracPart
	if neg {
		out = "-" + out
	}
	return out
}

// qty renders an unsigned leg quantity; the side label carries the sign.
func qty(v float64) string {
	return decimal.NewFromFloat(math.Abs(v)).StringFixed(6)
}

func num(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}

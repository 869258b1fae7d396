package ticket

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stat-arb-signals/internal/risk"
	"stat-arb-signals/internal/signal"
	"stat-arb-signals/internal/strategy"
)

func sampleInput(action strategy.Action) Input {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return Input{
		ID:   "01HX2YJRS1T4YA3B5C6D7E8F9G",
		YSym: "ETH/USDT",
		XSym: "BTC/USDT",
		Event: strategy.SignalEvent{
			Ts:     ts,
			Pair:   "ETH-BTC",
			Action: action,
			Z:      -2.31,
			Beta:   0.912,
			Reason: "long entry threshold crossed",
		},
		Order: risk.SizedOrder{
			Ts:           ts,
			Pair:         "ETH-BTC",
			Action:       action,
			LegYNotional: 25000,
			LegXNotional: 22800,
			YQty:         10.9625,
			XQty:         -0.527168,
			RiskPerZUSD:  200,
			Scale:        0.87,
		},
		Point: signal.SpreadPoint{
			Ts:     ts,
			Beta:   0.912,
			Spread: 0.0123,
			Z:      -2.31,
			YClose: 2280.5,
			XClose: 43250,
			Valid:  true,
		},
		Limits: strategy.Thresholds{ZIn: 2, ZOut: 0.5, ZStop: 3.5},
		Costs:  EstimateCosts(47800, 10, 5),
	}
}

func TestRenderEntryTicket(t *testing.T) {
	t.Parallel()

	out := Render(sampleInput(strategy.ActionEnterLong))

	assert.Contains(t, out, "TRADE TICKET")
	assert.Contains(t, out, "Ticket:    01HX2YJRS1T4YA3B5C6D7E8F9G")
	assert.Contains(t, out, "Timestamp: 2024-05-01 12:00:00 UTC")
	assert.Contains(t, out, "Signal:    ENTER Long Spread (ETH long / BTC short)")
	assert.Contains(t, out, "Z-score: -2.310")
	assert.Contains(t, out, "Beta (hedge ratio): 0.912")
	assert.Contains(t, out, "BTC/USDT price: $43,250.00")
	assert.Contains(t, out, "ETH: LONG $25,000.00 (10.962500 ETH)")
	assert.Contains(t, out, "BTC: SHORT $22,800.00 (0.527168 BTC)")
	assert.Contains(t, out, "Total Notional: $47,800.00")
	assert.Contains(t, out, "Stop Loss: |z| > 3.50")
	assert.Contains(t, out, "Exit Target: |z| < 0.50")
	assert.Contains(t, out, "Risk per Z-score: $200.00")
	assert.Contains(t, out, "Est. Fees: $47.80")
	assert.Contains(t, out, "Est. Slippage: $23.90")
	assert.Contains(t, out, "Reason: long entry threshold crossed")

	// The rule lines frame the ticket top and bottom.
	assert.True(t, strings.HasPrefix(out, rule))
	assert.True(t, strings.HasSuffix(out, rule))
}

func TestRenderShortAndCloseHeadings(t *testing.T) {
	t.Parallel()

	short := Render(sampleInput(strategy.ActionEnterShort))
	assert.Contains(t, short, "ENTER Short Spread (ETH short / BTC long)")
	assert.Contains(t, short, "ETH: SHORT")
	assert.Contains(t, short, "BTC: LONG")

	exit := Render(sampleInput(strategy.ActionExit))
	assert.Contains(t, exit, "Signal:    EXIT Position")
	assert.Contains(t, exit, "ETH: CLOSE")

	stop := Render(sampleInput(strategy.ActionStopLoss))
	assert.Contains(t, stop, "Signal:    STOP LOSS Triggered")
}

func TestRenderSkippedOrder(t *testing.T) {
	t.Parallel()

	in := sampleInput(strategy.ActionEnterShort)
	in.Order.Skipped = true
	in.Order.SkipReason = "below min notional 100.00 after clamps"
	in.Order.LegYNotional = 0
	in.Order.LegXNotional = 0

	out := Render(in)
	assert.Contains(t, out, "SKIPPED: below min notional 100.00 after clamps")
	assert.NotContains(t, out, "Total Notional")
}

func TestRenderDeterministic(t *testing.T) {
	t.Parallel()

	in := sampleInput(strategy.ActionEnterLong)
	assert.Equal(t, Render(in), Render(in))
}

func TestRenderJSONRoundTrip(t *testing.T) {
	t.Parallel()

	raw, err := RenderJSON(sampleInput(strategy.ActionEnterLong))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.Equal(t, "01HX2YJRS1T4YA3B5C6D7E8F9G", doc["ticket_id"])
	assert.Equal(t, "2024-05-01T12:00:00Z", doc["timestamp"])
	assert.Equal(t, "ENTER_LONG", doc["action"])
	assert.Equal(t, "ETH/USDT", doc["y_symbol"])
	assert.InDelta(t, -2.31, doc["zscore"].(float64), 1e-12)

	pos, ok := doc["position"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 47800.0, pos["total_notional_usd"].(float64), 1e-9)
	assert.InDelta(t, 47.8, pos["est_fees_usd"].(float64), 1e-9)
}

func TestUSDFormatting(t *testing.T) {
	t.Parallel()

	cases := map[float64]string{
		0:          "$0.00",
		999.994:    "$999.99",
		1000:       "$1,000.00",
		43250:      "$43,250.00",
		1234567.89: "$1,234,567.89",
		-25000:     "-$25,000.00",
	}
	for in, want := range cases {
		assert.Equal(t, want, usd(in), "usd(%v)", in)
	}
}

package risk

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stat-arb-signals/internal/signal"
	"stat-arb-signals/internal/strategy"
)

func sizerConfig() Config {
	return Config{
		TargetSigmaUSD:    200,
		MaxNotionalPerLeg: 25000,
		MaxADVFraction:    0.05,
		MinNotionalUSD:    100,
		FeeBps:            10,
		SlippageBps:       5,
	}
}

func entryEvent(action strategy.Action) strategy.SignalEvent {
	return strategy.SignalEvent{
		Ts:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Pair:   "ETH-BTC",
		Action: action,
		Z:      2.3,
		Beta:   0.85,
	}
}

func point(beta, std, yPx, xPx float64) signal.SpreadPoint {
	return signal.SpreadPoint{
		Beta:   beta,
		Std:    std,
		YClose: yPx,
		XClose: xPx,
		Z:      2.3,
		Valid:  true,
	}
}

func TestSizeEntryVolatilityTarget(t *testing.T) {
	s := New(sizerConfig())

	// std 0.02 => base Y leg 200/0.02 = 10000, X leg 8500 at beta 0.85
	order, err := s.SizeEntry(entryEvent(strategy.ActionEnterLong), point(0.85, 0.02, 2000, 40000), 0, 0)
	require.NoError(t, err)

	assert.InDelta(t, 10000, order.LegYNotional, 1e-9)
	assert.InDelta(t, 8500, order.LegXNotional, 1e-9)
	assert.InDelta(t, 1.0, order.Scale, 1e-12)

	// a one-sigma spread move should produce the target P&L within 1%
	assert.InDelta(t, 200, order.RiskPerZUSD, 2.0)

	// long spread buys Y, sells X
	assert.InDelta(t, 5.0, order.YQty, 1e-9)
	assert.InDelta(t, -0.2125, order.XQty, 1e-9)

	// fees + slippage at 15 bps on both legs
	assert.InDelta(t, 18500*0.0015, order.EstCostUSD, 1e-9)
}

func TestSizeEntryShortFlipsSigns(t *testing.T) {
	s := New(sizerConfig())
	order, err := s.SizeEntry(entryEvent(strategy.ActionEnterShort), point(0.85, 0.02, 2000, 40000), 0, 0)
	require.NoError(t, err)
	assert.Negative(t, order.YQty)
	assert.Positive(t, order.XQty)
}

func TestSizeEntryProportionalClamp(t *testing.T) {
	s := New(sizerConfig())

	// std 0.004 => base Y leg 50000, over the 25000 cap
	order, err := s.SizeEntry(entryEvent(strategy.ActionEnterLong), point(0.85, 0.004, 2000, 40000), 0, 0)
	require.NoError(t, err)

	assert.InDelta(t, 25000, order.LegYNotional, 1e-9)
	assert.InDelta(t, 0.85, order.LegXNotional/order.LegYNotional, 1e-12,
		"clamp must preserve the hedge ratio exactly")
	assert.InDelta(t, 0.5, order.Scale, 1e-12)
}

func TestSizeEntryClampBindsOnLargerLeg(t *testing.T) {
	// beta > 1 makes the X leg the larger one: 10000 * 2.0 = 20000 base,
	// cap 15000 binds on X
	cfg := sizerConfig()
	cfg.MaxNotionalPerLeg = 15000
	s := New(cfg)

	order, err := s.SizeEntry(entryEvent(strategy.ActionEnterLong), point(2.0, 0.02, 2000, 40000), 0, 0)
	require.NoError(t, err)

	assert.InDelta(t, 15000, order.LegXNotional, 1e-9)
	assert.InDelta(t, 7500, order.LegYNotional, 1e-9)
	assert.InDelta(t, 2.0, order.LegXNotional/order.LegYNotional, 1e-12)
}

func TestSizeEntryADVCap(t *testing.T) {
	s := New(sizerConfig())

	// Y leg base 10000; tiny Y ADV of 40000 caps it at 5% = 2000
	order, err := s.SizeEntry(entryEvent(strategy.ActionEnterLong), point(0.85, 0.02, 2000, 40000), 40000, 0)
	require.NoError(t, err)

	assert.InDelta(t, 2000, order.LegYNotional, 1e-9)
	assert.InDelta(t, 1700, order.LegXNotional, 1e-9)
	assert.False(t, order.Skipped)

	// unknown ADV (zero) leaves the size alone
	order, err = s.SizeEntry(entryEvent(strategy.ActionEnterLong), point(0.85, 0.02, 2000, 40000), 0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 10000, order.LegYNotional, 1e-9)
}

func TestSizeEntryMinNotionalZeroesBothLegs(t *testing.T) {
	s := New(sizerConfig())

	// ADV so thin the clamped size lands under the minimum
	order, err := s.SizeEntry(entryEvent(strategy.ActionEnterLong), point(0.85, 0.02, 2000, 40000), 1000, 0)
	require.NoError(t, err)

	assert.True(t, order.Skipped)
	assert.Zero(t, order.LegYNotional)
	assert.Zero(t, order.LegXNotional)
	assert.Zero(t, order.YQty)
	assert.NotEmpty(t, order.SkipReason)
}

func TestSizeEntryDegenerateInputs(t *testing.T) {
	s := New(sizerConfig())
	ev := entryEvent(strategy.ActionEnterLong)

	cases := map[string]signal.SpreadPoint{
		"zero std":      point(0.85, 0, 2000, 40000),
		"nan std":       point(0.85, math.NaN(), 2000, 40000),
		"negative beta": point(-0.4, 0.02, 2000, 40000),
		"zero y price":  point(0.85, 0.02, 0, 40000),
	}
	for name, pt := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.SizeEntry(ev, pt, 0, 0)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDegenerateSizing))
		})
	}
}

func TestSizeExitFlattensRecordedState(t *testing.T) {
	s := New(sizerConfig())
	ev := entryEvent(strategy.ActionExit)
	ev.Action = strategy.ActionExit

	order := s.SizeExit(ev, point(0.85, 0.02, 2100, 41000), 10000, 8500, 5.0, -0.2125)

	assert.InDelta(t, -5.0, order.YQty, 1e-12)
	assert.InDelta(t, 0.2125, order.XQty, 1e-12)
	assert.InDelta(t, 10000, order.LegYNotional, 1e-9)
	assert.InDelta(t, 8500, order.LegXNotional, 1e-9)
	assert.Equal(t, strategy.ActionExit, order.Action)
}

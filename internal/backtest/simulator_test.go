package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stat-arb-signals/internal/market"
	"stat-arb-signals/internal/risk"
	"stat-arb-signals/internal/strategy"
)

var simBase = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// lcg returns a deterministic uniform source so every run of the suite
// replays the same price paths.
func lcg(seed uint64) func() float64 {
	state := seed
	return func() float64 {
		state = state*6364136223846793005 + 1442695040888963407
		return float64(state>>11) / float64(1<<53)
	}
}

func gauss(next func() float64) float64 {
	sum := 0.0
	for i := 0; i < 12; i++ {
		sum += next()
	}
	return sum - 6
}

// cointegratedSeries builds an hourly pair whose log spread follows a
// mean-reverting process around a fixed hedge ratio of 0.9. Opens chain
// from the previous close so next-bar fills trade at a realistic price.
func cointegratedSeries(n int, theta, noise float64, seed uint64) market.PairSeries {
	next := lcg(seed)
	bars := make([]market.AlignedBar, n)

	logX := math.Log(40000)
	spread := 0.0
	var prevY, prevX float64

	for i := 0; i < n; i++ {
		logX += 0.01 * gauss(next)
		spread += -theta*spread + noise*gauss(next)

		y := math.Exp(0.4 + 0.9*logX + spread)
		x := math.Exp(logX)

		openY, openX := prevY, prevX
		if i == 0 {
			openY, openX = y, x
		}

		ts := simBase.Add(time.Duration(i) * time.Hour)
		bars[i] = market.AlignedBar{
			Ts: ts,
			Y: market.Bar{
				Ts: ts, Open: openY, Close: y,
				High: math.Max(openY, y) * 1.001, Low: math.Min(openY, y) * 0.999,
				Volume: 3000,
			},
			X: market.Bar{
				Ts: ts, Open: openX, Close: x,
				High: math.Max(openX, x) * 1.001, Low: math.Min(openX, x) * 0.999,
				Volume: 800,
			},
		}
		prevY, prevX = y, x
	}

	return market.PairSeries{Name: "ETH-BTC", YSym: "ETH/USDT", XSym: "BTC/USDT", Bars: bars}
}

func constantSeries(n int) market.PairSeries {
	bars := make([]market.AlignedBar, n)
	for i := 0; i < n; i++ {
		ts := simBase.Add(time.Duration(i) * time.Hour)
		bars[i] = market.AlignedBar{
			Ts: ts,
			Y:  market.Bar{Ts: ts, Open: 2000, High: 2000, Low: 2000, Close: 2000, Volume: 1000},
			X:  market.Bar{Ts: ts, Open: 40000, High: 40000, Low: 40000, Close: 40000, Volume: 100},
		}
	}
	return market.PairSeries{Name: "ETH-BTC", YSym: "ETH/USDT", XSym: "BTC/USDT", Bars: bars}
}

func simConfig() Config {
	return Config{
		BetaWindow:   120,
		ZscoreWindow: 60,
		Thresholds:   strategy.Thresholds{ZIn: 2.0, ZOut: 0.5, ZStop: 3.5},
		Sizer: risk.Config{
			TargetSigmaUSD:    200,
			MaxNotionalPerLeg: 25000,
			MaxADVFraction:    0.05,
			MinNotionalUSD:    100,
		},
		InitialEquityUSD: 100000,
	}
}

func TestSimulatorDeterminism(t *testing.T) {
	series := cointegratedSeries(1500, 0.1, 0.003, 7)
	sim := New(simConfig(), zerolog.Nop())

	first, err := sim.Run(series)
	require.NoError(t, err)
	second, err := sim.Run(series)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSimulatorConstantPricesProduceNoTrades(t *testing.T) {
	cfg := simConfig()
	sim := New(cfg, zerolog.Nop())

	res, err := sim.Run(constantSeries(400))
	require.NoError(t, err)

	assert.Zero(t, res.NTrades)
	assert.Empty(t, res.Trades)
	assert.Nil(t, res.PendingSignal)
	assert.Equal(t, cfg.InitialEquityUSD, res.FinalEquityUSD)
	assert.Zero(t, res.TotalReturnPct)
	require.Len(t, res.Equity, 400)
	for _, p := range res.Equity {
		assert.Equal(t, cfg.InitialEquityUSD, p.Equity)
	}
}

func TestSimulatorMeanRevertingPairProfitableWithoutCosts(t *testing.T) {
	series := cointegratedSeries(2000, 0.1, 0.003, 13)
	res, err := New(simConfig(), zerolog.Nop()).Run(series)
	require.NoError(t, err)

	require.GreaterOrEqual(t, res.NTrades, 5, "strong mean reversion should trigger repeated entries")
	assert.Greater(t, res.FinalEquityUSD, res.InitialEquityUSD)
	assert.Greater(t, res.TotalReturnPct, 0.0)
	assert.Zero(t, res.TotalCostUSD)

	for _, tr := range res.Trades {
		assert.False(t, math.IsNaN(tr.PnLUSD), "trade pnl must be finite")
		assert.True(t, tr.ExitTs.After(tr.EntryTs))
		assert.Greater(t, tr.LegYNotional, 0.0)
		assert.Greater(t, tr.LegXNotional, 0.0)
	}
}

func TestSimulatorHigherCostsStrictlyReduceProfit(t *testing.T) {
	series := cointegratedSeries(2000, 0.1, 0.003, 13)

	free := simConfig()
	costly := simConfig()
	costly.Sizer.FeeBps = 20
	costly.Sizer.SlippageBps = 10

	resFree, err := New(free, zerolog.Nop()).Run(series)
	require.NoError(t, err)
	resCostly, err := New(costly, zerolog.Nop()).Run(series)
	require.NoError(t, err)

	// fees touch neither the signal path nor the sized notionals, so both
	// runs trade the same bars and differ only by the charged costs
	require.Equal(t, resFree.NTrades, resCostly.NTrades)
	require.GreaterOrEqual(t, resFree.NTrades, 1)
	for i, tr := range resFree.Trades {
		assert.Equal(t, tr.EntryTs, resCostly.Trades[i].EntryTs)
		assert.Equal(t, tr.Action, resCostly.Trades[i].Action)
	}

	assert.Greater(t, resCostly.TotalCostUSD, 0.0)
	assert.Less(t, resCostly.FinalEquityUSD, resFree.FinalEquityUSD)
}

func TestSimulatorEquityMatchesTradeLedger(t *testing.T) {
	costly := simConfig()
	costly.Sizer.FeeBps = 10
	costly.Sizer.SlippageBps = 5

	res, err := New(costly, zerolog.Nop()).Run(cointegratedSeries(2000, 0.1, 0.003, 13))
	require.NoError(t, err)
	require.GreaterOrEqual(t, res.NTrades, 1)

	sum := 0.0
	for _, tr := range res.Trades {
		sum += tr.PnLUSD
	}
	assert.InDelta(t, res.InitialEquityUSD+sum, res.FinalEquityUSD, 1e-6,
		"final equity must equal initial plus the sum of closed trade pnl")
}

func TestSimulatorClosesOpenPositionAtEndOfData(t *testing.T) {
	series := cointegratedSeries(2000, 0.1, 0.003, 13)
	sim := New(simConfig(), zerolog.Nop())

	full, err := sim.Run(series)
	require.NoError(t, err)
	require.GreaterOrEqual(t, full.NTrades, 1)

	// cut the history at the first trade's fill bar: the freshly opened
	// position has nowhere to go and must be marked out at the last close
	entryIdx := -1
	for i, bar := range series.Bars {
		if bar.Ts.Equal(full.Trades[0].EntryTs) {
			entryIdx = i
			break
		}
	}
	require.GreaterOrEqual(t, entryIdx, 1)

	trunc := series
	trunc.Bars = series.Bars[:entryIdx+1]
	res, err := sim.Run(trunc)
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, "end_of_data", tr.Reason)
	assert.Equal(t, trunc.Bars[len(trunc.Bars)-1].Ts, tr.ExitTs)
	assert.Equal(t, trunc.Bars[len(trunc.Bars)-1].Y.Close, tr.ExitYPx)
}

func TestSimulatorReportsUnfillablePendingSignal(t *testing.T) {
	series := cointegratedSeries(2000, 0.1, 0.003, 13)
	sim := New(simConfig(), zerolog.Nop())

	full, err := sim.Run(series)
	require.NoError(t, err)
	require.GreaterOrEqual(t, full.NTrades, 1)

	entryIdx := -1
	for i, bar := range series.Bars {
		if bar.Ts.Equal(full.Trades[0].EntryTs) {
			entryIdx = i
			break
		}
	}
	require.GreaterOrEqual(t, entryIdx, 1)

	// stop one bar short of the fill: the entry decision lands on the final
	// bar and is surfaced instead of traded
	trunc := series
	trunc.Bars = series.Bars[:entryIdx]
	res, err := sim.Run(trunc)
	require.NoError(t, err)

	require.NotNil(t, res.PendingSignal)
	assert.True(t, res.PendingSignal.Action.IsEntry())
	assert.Equal(t, trunc.Bars[len(trunc.Bars)-1].Ts, res.PendingSignal.Ts)
	assert.Zero(t, res.NTrades)
	assert.Equal(t, res.InitialEquityUSD, res.FinalEquityUSD)
}

func TestSimulatorRejectsShortSeries(t *testing.T) {
	_, err := New(simConfig(), zerolog.Nop()).Run(market.PairSeries{Name: "ETH-BTC"})
	assert.Error(t, err)

	bad := simConfig()
	bad.BetaWindow = 1
	_, err = New(bad, zerolog.Nop()).Run(cointegratedSeries(300, 0.1, 0.003, 3))
	assert.Error(t, err)
}

func TestWalkForwardFoldsPartitionHistory(t *testing.T) {
	series := cointegratedSeries(2000, 0.1, 0.003, 13)
	cfg := simConfig()
	sim := New(cfg, zerolog.Nop())

	wf, err := sim.WalkForward(series, 3)
	require.NoError(t, err)
	require.Len(t, wf.Folds, 3)

	warmup := cfg.BetaWindow + cfg.ZscoreWindow - 1
	foldLen := (series.Len() - warmup) / 3

	assert.Equal(t, series.Bars[warmup].Ts, wf.Folds[0].Start)
	assert.Equal(t, series.Bars[warmup+foldLen].Ts, wf.Folds[1].Start)
	assert.Equal(t, series.Bars[series.Len()-1].Ts, wf.Folds[2].End)

	trades := 0
	for _, fold := range wf.Folds {
		trades += fold.Result.NTrades
		for _, tr := range fold.Result.Trades {
			// entries may only fire inside the fold's own window
			assert.False(t, tr.EntryTs.Before(fold.Start), "fold %d leaked an entry before its start", fold.Index)
			assert.False(t, tr.EntryTs.After(fold.End), "fold %d entered after its end", fold.Index)
		}
	}
	assert.Equal(t, trades, wf.NTrades)
}

func TestWalkForwardFoldMetricsExcludeWarmup(t *testing.T) {
	series := cointegratedSeries(2000, 0.1, 0.003, 13)
	sim := New(simConfig(), zerolog.Nop())

	wf, err := sim.WalkForward(series, 3)
	require.NoError(t, err)

	for _, fold := range wf.Folds {
		eq := fold.Result.Equity
		require.NotEmpty(t, eq, "fold %d has no out-of-sample equity", fold.Index)
		// re-warmup bars are simulated but never scored
		assert.Equal(t, fold.Start, eq[0].Ts, "fold %d scored equity from before its window", fold.Index)
		assert.Equal(t, fold.End, eq[len(eq)-1].Ts, "fold %d equity runs past its window", fold.Index)
	}
}

func TestWalkForwardRejectsBadFoldCounts(t *testing.T) {
	series := cointegratedSeries(400, 0.1, 0.003, 5)
	sim := New(simConfig(), zerolog.Nop())

	_, err := sim.WalkForward(series, 1)
	assert.Error(t, err)

	_, err = sim.WalkForward(series, 100)
	assert.Error(t, err, "folds too small to hold any out-of-sample bars")
}

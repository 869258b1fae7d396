package signal

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stat-arb-signals/internal/market"
)

var pipeBase = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// syntheticSeries builds an aligned series where log(Y) tracks beta*log(X)
// plus a deterministic wobble, so every regression window is healthy.
func syntheticSeries(n int, beta float64) market.PairSeries {
	rng := &lcg{state: 1234}
	series := market.PairSeries{Name: "ETH-BTC", YSym: "ETH/USDT", XSym: "BTC/USDT"}
	logX := math.Log(40000.0)
	for i := 0; i < n; i++ {
		logX += 0.002 * rng.gauss()
		logY := 0.4 + beta*logX + 0.001*rng.gauss()
		ts := pipeBase.Add(time.Duration(i) * time.Hour)
		x := market.Bar{Ts: ts, Open: math.Exp(logX), Close: math.Exp(logX), High: math.Exp(logX), Low: math.Exp(logX), Volume: 1000}
		y := market.Bar{Ts: ts, Open: math.Exp(logY), Close: math.Exp(logY), High: math.Exp(logY), Low: math.Exp(logY), Volume: 1000}
		series.Bars = append(series.Bars, market.AlignedBar{Ts: ts, Y: y, X: x})
	}
	return series
}

func TestPipelineWarmup(t *testing.T) {
	p := NewPipeline(10, 5)
	assert.Equal(t, 14, p.WarmupBars())

	series := syntheticSeries(30, 0.8)
	points := p.Run(series)
	require.Len(t, points, 30)

	for i := 0; i < p.WarmupBars()-1; i++ {
		assert.False(t, points[i].Valid, "bar %d should still be warming up", i)
	}
	assert.True(t, points[p.WarmupBars()-1].Valid, "first post-warmup bar must be valid")
}

func TestPipelineZScoreAgainstDirectWindows(t *testing.T) {
	const (
		betaWin = 12
		zWin    = 8
	)
	series := syntheticSeries(80, 1.1)

	p := NewPipeline(betaWin, zWin)
	points := p.Run(series)

	// rebuild the spread column directly and z-score it over sliding windows
	var spreads []float64
	for _, pt := range points {
		if pt.Beta != 0 || pt.Spread != 0 {
			spreads = append(spreads, pt.Spread)
		}
	}

	checked := 0
	for i, pt := range points {
		if !pt.Valid {
			continue
		}
		idx := i - (betaWin - 1) // position within the spread column
		window := spreads[idx-zWin+1 : idx+1]
		mean, std := meanStd(window)
		assert.InDelta(t, (pt.Spread-mean)/std, pt.Z, 1e-9, "bar %d", i)
		checked++
	}
	assert.Greater(t, checked, 50)
}

func meanStd(vals []float64) (mean, std float64) {
	n := float64(len(vals))
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean = sum / n
	var varSum float64
	for _, v := range vals {
		d := v - mean
		varSum += d * d
	}
	return mean, math.Sqrt(varSum / (n - 1))
}

func TestPipelineDeterminism(t *testing.T) {
	series := syntheticSeries(120, 0.9)

	a := NewPipeline(20, 10).Run(series)
	b := NewPipeline(20, 10).Run(series)
	assert.Equal(t, a, b)
}

func TestPipelineRejectsNonPositiveCloses(t *testing.T) {
	p := NewPipeline(3, 2)
	pt := p.Push(pipeBase, -5, 100)
	assert.False(t, pt.Valid)
	pt = p.Push(pipeBase.Add(time.Hour), 5, 0)
	assert.False(t, pt.Valid)
}

func TestNormalizerHandCheckedWindow(t *testing.T) {
	n := NewSpreadNormalizer(3)

	_, _, _, ok := n.Push(1)
	assert.False(t, ok)
	_, _, _, ok = n.Push(2)
	assert.False(t, ok)

	z, mean, std, ok := n.Push(3) // window {1,2,3}
	require.True(t, ok)
	assert.InDelta(t, 2.0, mean, 1e-12)
	assert.InDelta(t, 1.0, std, 1e-12)
	assert.InDelta(t, 1.0, z, 1e-12)

	z, _, _, ok = n.Push(4) // window {2,3,4}
	require.True(t, ok)
	assert.InDelta(t, 1.0, z, 1e-12)

	flat := NewSpreadNormalizer(3)
	flat.Push(5)
	flat.Push(5)
	_, _, _, ok = flat.Push(5)
	assert.False(t, ok, "flat window has no usable z-score")
}

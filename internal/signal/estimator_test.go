package signal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lcg is a tiny deterministic generator so tests never depend on math/rand
// ordering across Go versions.
type lcg struct{ state uint64 }

func (l *lcg) next() float64 {
	l.state = l.state*6364136223846793005 + 1442695040888963407
	return float64(l.state>>11) / float64(1<<53)
}

func (l *lcg) gauss() float64 {
	// Irwin-Hall approximation, plenty for test noise
	var sum float64
	for i := 0; i < 12; i++ {
		sum += l.next()
	}
	return sum - 6
}

func TestHedgeRatioConvergence(t *testing.T) {
	const (
		window = 50
		trueB  = 1.8
		trueA  = 0.5
	)
	rng := &lcg{state: 42}
	est := NewHedgeRatioEstimator(window)

	var got HedgeRatioPoint
	for i := 0; i < 300; i++ {
		x := float64(i)*0.01 + 0.001*rng.gauss()
		y := trueA + trueB*x + 0.0005*rng.gauss()
		est.Update(x, y)
		if e, ok := est.Estimate(); ok {
			got = e
		}
	}

	require.True(t, est.Ready())
	assert.Equal(t, window, got.SampleCount)
	assert.InDelta(t, trueB, got.Beta, 0.05)
	assert.InDelta(t, trueA, got.Alpha, 0.05)
	assert.Greater(t, got.R2, 0.99)
	assert.False(t, got.Degenerate)
}

func TestHedgeRatioMatchesDirectOLS(t *testing.T) {
	const window = 20
	rng := &lcg{state: 7}
	est := NewHedgeRatioEstimator(window)

	var xs, ys []float64
	for i := 0; i < 200; i++ {
		x := rng.gauss()
		y := 0.3 + 0.9*x + 0.2*rng.gauss()
		xs = append(xs, x)
		ys = append(ys, y)
		est.Update(x, y)

		e, ok := est.Estimate()
		if !ok {
			continue
		}
		wantB, wantA := directOLS(xs[len(xs)-window:], ys[len(ys)-window:])
		assert.InDelta(t, wantB, e.Beta, 1e-9, "bar %d", i)
		assert.InDelta(t, wantA, e.Alpha, 1e-9, "bar %d", i)
	}
}

// directOLS recomputes the regression from scratch over one window.
func directOLS(xs, ys []float64) (beta, alpha float64) {
	n := float64(len(xs))
	var sx, sy float64
	for i := range xs {
		sx += xs[i]
		sy += ys[i]
	}
	mx, my := sx/n, sy/n
	var sxx, sxy float64
	for i := range xs {
		dx := xs[i] - mx
		sxx += dx * dx
		sxy += dx * (ys[i] - my)
	}
	beta = sxy / sxx
	alpha = my - beta*mx
	return beta, alpha
}

func TestHedgeRatioFlatWindowCarriesLastBeta(t *testing.T) {
	const window = 5
	est := NewHedgeRatioEstimator(window)

	// healthy window first
	for i := 0; i < window; i++ {
		x := float64(i) * 0.1
		est.Update(x, 2*x+1)
	}
	healthy, ok := est.Estimate()
	require.True(t, ok)
	require.False(t, healthy.Degenerate)
	assert.InDelta(t, 2.0, healthy.Beta, 1e-9)

	// freeze x until the window is fully flat
	last := healthy
	for i := 0; i < window; i++ {
		est.Update(0.4, float64(i))
		e, ok := est.Estimate()
		require.True(t, ok)
		if e.Degenerate {
			assert.InDelta(t, last.Beta, e.Beta, 1e-12, "degenerate window must carry the previous estimate")
		} else {
			last = e
		}
	}

	final, ok := est.Estimate()
	require.True(t, ok)
	assert.True(t, final.Degenerate)
}

func TestHedgeRatioFlatFromStart(t *testing.T) {
	est := NewHedgeRatioEstimator(3)
	for i := 0; i < 6; i++ {
		est.Update(1.0, float64(i))
	}
	e, ok := est.Estimate()
	assert.False(t, ok, "no prior estimate to carry")
	assert.True(t, e.Degenerate)
}

func TestRollingStatsStd(t *testing.T) {
	r := newRollingStats(3)
	for _, v := range []float64{1, 2, 3} {
		r.Push(v)
	}
	require.True(t, r.Ready())
	assert.InDelta(t, 2.0, r.Mean(), 1e-12)
	assert.InDelta(t, 1.0, r.Std(), 1e-12) // sample std of {1,2,3}

	r.Push(4) // window is now {2,3,4}
	assert.InDelta(t, 3.0, r.Mean(), 1e-12)
	assert.InDelta(t, 1.0, r.Std(), 1e-12)

	flat := newRollingStats(4)
	for i := 0; i < 4; i++ {
		flat.Push(2.5)
	}
	assert.InDelta(t, 0.0, flat.Std(), 1e-12)
}

func TestRollingStatsLongSlideStability(t *testing.T) {
	r := newRollingStats(32)
	rng := &lcg{state: 99}
	var window []float64
	for i := 0; i < 5000; i++ {
		v := 100 + rng.gauss()
		r.Push(v)
		window = append(window, v)
		if len(window) > 32 {
			window = window[1:]
		}
	}
	// running sums must not drift away from a direct recompute
	var sum float64
	for _, v := range window {
		sum += v
	}
	mean := sum / float64(len(window))
	var varSum float64
	for _, v := range window {
		d := v - mean
		varSum += d * d
	}
	want := math.Sqrt(varSum / float64(len(window)-1))
	assert.InDelta(t, mean, r.Mean(), 1e-6)
	assert.InDelta(t, want, r.Std(), 1e-6)
}

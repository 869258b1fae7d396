package signal

import (
	"math"
)

// HedgeRatioPoint is the regression snapshot for the current window.
// SampleCount is the number of observations backing it, at most the window
// size. Degenerate marks a flat-X window whose slope is carried from the
// last healthy fit.
type HedgeRatioPoint struct {
	Beta        float64
	Alpha       float64
	R2          float64
	SampleCount int
	Degenerate  bool
}

// HedgeRatioEstimator fits a rolling OLS of log(Py) on log(Px) with an
// intercept. The window slides in O(1): the circular buffers track the five
// running sums the closed-form slope needs, so each bar costs a handful of
// additions regardless of window size.
type HedgeRatioEstimator struct {
	window int

	xs    []float64
	ys    []float64
	head  int
	count int

	sumX  float64
	sumY  float64
	sumXY float64
	sumXX float64
	sumYY float64

	last     HedgeRatioPoint
	haveLast bool
}

// NewHedgeRatioEstimator constructs an estimator over the given window size.
func NewHedgeRatioEstimator(window int) *HedgeRatioEstimator {
	if window < 2 {
		panic("signal: hedge ratio window must be at least 2")
	}
	return &HedgeRatioEstimator{
		window: window,
		xs:     make([]float64, window),
		ys:     make([]float64, window),
	}
}

// Window returns the configured window length.
func (e *HedgeRatioEstimator) Window() int { return e.window }

// Update slides the window forward by one (logX, logY) observation.
func (e *HedgeRatioEstimator) Update(logX, logY float64) {
	if e.count == e.window {
		ox := e.xs[e.head]
		oy := e.ys[e.head]
		e.sumX -= ox
		e.sumY -= oy
		e.sumXY -= ox * oy
		e.sumXX -= ox * ox
		e.sumYY -= oy * oy
	} else {
		e.count++
	}
	e.xs[e.head] = logX
	e.ys[e.head] = logY
	e.head = (e.head + 1) % e.window

	e.sumX += logX
	e.sumY += logY
	e.sumXY += logX * logY
	e.sumXX += logX * logX
	e.sumYY += logY * logY
}

// Ready reports whether a full window has been observed.
func (e *HedgeRatioEstimator) Ready() bool { return e.count == e.window }

// Estimate returns the regression for the current window. A flat X window
// cannot identify a slope; such windows are flagged Degenerate and the last
// healthy estimate is carried forward. ok is false until a first healthy
// estimate exists.
func (e *HedgeRatioEstimator) Estimate() (HedgeRatioPoint, bool) {
	if !e.Ready() {
		return HedgeRatioPoint{SampleCount: e.count}, false
	}

	n := float64(e.count)
	sxx := e.sumXX - e.sumX*e.sumX/n
	sxy := e.sumXY - e.sumX*e.sumY/n
	syy := e.sumYY - e.sumY*e.sumY/n

	varX := sxx / (n - 1)
	if varX <= epsVariance || math.IsNaN(varX) || math.IsInf(varX, 0) {
		if e.haveLast {
			est := e.last
			est.SampleCount = e.count
			est.Degenerate = true
			return est, true
		}
		return HedgeRatioPoint{SampleCount: e.count, Degenerate: true}, false
	}

	beta := sxy / sxx
	alpha := e.sumY/n - beta*e.sumX/n

	r2 := 0.0
	if syy > epsVariance {
		r := sxy / math.Sqrt(sxx*syy)
		r2 = r * r
		if r2 > 1 {
			r2 = 1
		}
	}

	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		if e.haveLast {
			est := e.last
			est.SampleCount = e.count
			est.Degenerate = true
			return est, true
		}
		return HedgeRatioPoint{SampleCount: e.count, Degenerate: true}, false
	}

	est := HedgeRatioPoint{Beta: beta, Alpha: alpha, R2: r2, SampleCount: e.count}
	e.last = est
	e.haveLast = true
	return est, true
}

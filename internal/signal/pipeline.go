package signal

import (
	"math"
	"time"

	"stat-arb-signals/internal/market"
)

// SpreadPoint is the per-bar output of the signal pipeline. Valid is false
// while either window is warming up and on degenerate bars (flat regression
// window with no prior estimate, or collapsed spread std).
type SpreadPoint struct {
	Ts     time.Time
	Beta   float64
	Alpha  float64
	R2     float64
	Spread float64
	Mean   float64
	Std    float64
	Z      float64
	YClose float64
	XClose float64
	Valid  bool
}

// Pipeline composes the hedge ratio estimator and the spread normalizer into
// the bars-in, z-scores-out path shared by the live scanner and the
// simulator. It is strictly single-stream: bars must arrive in increasing
// timestamp order and the same input always yields the same output.
type Pipeline struct {
	est  *HedgeRatioEstimator
	norm *SpreadNormalizer
}

// NewPipeline constructs the signal pipeline from the two window sizes.
func NewPipeline(betaWindow, zscoreWindow int) *Pipeline {
	return &Pipeline{
		est:  NewHedgeRatioEstimator(betaWindow),
		norm: NewSpreadNormalizer(zscoreWindow),
	}
}

// WarmupBars returns how many bars must be observed before the first valid
// z-score can appear.
func (p *Pipeline) WarmupBars() int {
	return p.est.Window() + p.norm.Window() - 1
}

// Push feeds one aligned bar and returns its spread point.
func (p *Pipeline) Push(ts time.Time, yClose, xClose float64) SpreadPoint {
	pt := SpreadPoint{Ts: ts, YClose: yClose, XClose: xClose}
	if yClose <= 0 || xClose <= 0 {
		return pt
	}

	logY := math.Log(yClose)
	logX := math.Log(xClose)
	p.est.Update(logX, logY)

	est, ok := p.est.Estimate()
	if !ok {
		return pt
	}
	pt.Beta = est.Beta
	pt.Alpha = est.Alpha
	pt.R2 = est.R2
	pt.Spread = logY - est.Beta*logX

	z, mean, std, ok := p.norm.Push(pt.Spread)
	pt.Mean = mean
	pt.Std = std
	if !ok {
		return pt
	}
	pt.Z = z
	pt.Valid = !est.Degenerate

	return pt
}

// Run evaluates a full aligned series and returns one point per bar.
func (p *Pipeline) Run(series market.PairSeries) []SpreadPoint {
	points := make([]SpreadPoint, 0, series.Len())
	for _, bar := range series.Bars {
		points = append(points, p.Push(bar.Ts, bar.Y.Close, bar.X.Close))
	}
	return points
}

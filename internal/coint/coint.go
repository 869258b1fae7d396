package coint

import (
	"errors"
	"fmt"
	"math"
)

// ErrInsufficientData is returned when a diagnostic has too little history
// to say anything meaningful.
var ErrInsufficientData = errors.New("coint: insufficient data")

// MacKinnon critical values for the ADF t-statistic (constant, no trend).
const (
	CriticalValue1Pct  = -3.43
	CriticalValue5Pct  = -2.86
	CriticalValue10Pct = -2.57
)

// HalfLife estimates the Ornstein-Uhlenbeck half-life of a spread series.
// The spread increments are regressed on the demeaned lagged spread with no
// intercept; the half-life is ln(2) over the reversion speed. A spread that
// shows no pull toward its mean returns +Inf.
func HalfLife(spread []float64) (float64, error) {
	if len(spread) < 3 {
		return 0, fmt.Errorf("%w: need at least 3 points, have %d", ErrInsufficientData, len(spread))
	}

	var mean float64
	for _, v := range spread {
		mean += v
	}
	mean /= float64(len(spread))

	var sxx, sxd float64
	for i := 1; i < len(spread); i++ {
		x := spread[i-1] - mean
		d := spread[i] - spread[i-1]
		sxx += x * x
		sxd += x * d
	}
	if sxx == 0 {
		return math.Inf(1), nil
	}

	theta := -(sxd / sxx)
	if theta <= 0 {
		return math.Inf(1), nil
	}
	return math.Ln2 / theta, nil
}

// Hurst computes a simplified R/S Hurst exponent: the growth rate of the
// dispersion of lagged differences on a log-log scale. Below 0.5 the series
// is mean reverting, 0.5 is a random walk, above 0.5 is trending.
func Hurst(series []float64) (float64, error) {
	maxLag := len(series) / 2
	if maxLag > 100 {
		maxLag = 100
	}
	if maxLag < 3 {
		return 0, fmt.Errorf("%w: need at least 6 points, have %d", ErrInsufficientData, len(series))
	}

	var logLags, logTaus []float64
	for lag := 2; lag < maxLag; lag++ {
		tau := diffStd(series, lag)
		if tau <= 0 {
			continue
		}
		logLags = append(logLags, math.Log(float64(lag)))
		logTaus = append(logTaus, math.Log(tau))
	}
	if len(logLags) < 2 {
		return 0, fmt.Errorf("%w: series is constant", ErrInsufficientData)
	}

	slope, _ := fitLine(logLags, logTaus)
	return slope, nil
}

// diffStd is the population standard deviation of the lag-differenced series.
func diffStd(series []float64, lag int) float64 {
	n := len(series) - lag
	if n <= 0 {
		return 0
	}
	var sum float64
	diffs := make([]float64, n)
	for i := 0; i < n; i++ {
		diffs[i] = series[i+lag] - series[i]
		sum += diffs[i]
	}
	mean := sum / float64(n)
	var varSum float64
	for _, d := range diffs {
		dd := d - mean
		varSum += dd * dd
	}
	return math.Sqrt(varSum / float64(n))
}

func fitLine(xs, ys []float64) (slope, intercept float64) {
	n := float64(len(xs))
	var sx, sy, sxx, sxy float64
	for i := range xs {
		sx += xs[i]
		sy += ys[i]
		sxx += xs[i] * xs[i]
		sxy += xs[i] * ys[i]
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return 0, sy / n
	}
	slope = (n*sxy - sx*sy) / den
	intercept = (sy - slope*sx) / n
	return slope, intercept
}

// Score is an augmented Dickey-Fuller stationarity verdict. Level is the
// strongest significance level the statistic clears (1, 5, or 10 percent);
// zero means the unit-root hypothesis stands.
type Score struct {
	TStat float64
	Level int
}

// Significant reports whether the statistic clears the given level.
func (s Score) Significant(level int) bool {
	return s.Level != 0 && s.Level <= level
}

// ADF runs an augmented Dickey-Fuller regression with a constant and one
// lagged difference term, scoring the t-statistic against the MacKinnon
// critical values.
func ADF(series []float64) (Score, error) {
	// regression: diff_t = c + gamma*series_{t-1} + phi*diff_{t-1}
	if len(series) < 12 {
		return Score{}, fmt.Errorf("%w: adf needs at least 12 points, have %d", ErrInsufficientData, len(series))
	}

	diffs := make([]float64, len(series)-1)
	for i := 1; i < len(series); i++ {
		diffs[i-1] = series[i] - series[i-1]
	}

	// rows t = 2..n-1 in the original indexing
	rows := len(series) - 2
	ones := make([]float64, rows)
	lagLevel := make([]float64, rows)
	lagDiff := make([]float64, rows)
	target := make([]float64, rows)
	for i := 0; i < rows; i++ {
		ones[i] = 1
		lagLevel[i] = series[i+1]
		lagDiff[i] = diffs[i]
		target[i] = diffs[i+1]
	}

	coefs, stderrs, err := olsMulti([][]float64{ones, lagLevel, lagDiff}, target)
	if err != nil {
		return Score{}, err
	}
	if stderrs[1] == 0 {
		return Score{}, fmt.Errorf("%w: degenerate adf regression", ErrInsufficientData)
	}

	score := Score{TStat: coefs[1] / stderrs[1]}
	switch {
	case score.TStat < CriticalValue1Pct:
		score.Level = 1
	case score.TStat < CriticalValue5Pct:
		score.Level = 5
	case score.TStat < CriticalValue10Pct:
		score.Level = 10
	}
	return score, nil
}

// EngleGranger fits the static cointegrating regression y = a + b*x, builds
// the residual spread y - b*x, and scores its stationarity with ADF.
func EngleGranger(y, x []float64) (Score, float64, error) {
	if len(y) != len(x) {
		return Score{}, 0, fmt.Errorf("coint: length mismatch %d vs %d", len(y), len(x))
	}
	if len(y) < 12 {
		return Score{}, 0, fmt.Errorf("%w: engle-granger needs at least 12 points", ErrInsufficientData)
	}

	b, _ := fitLine(x, y)
	spread := make([]float64, len(y))
	for i := range y {
		spread[i] = y[i] - b*x[i]
	}

	score, err := ADF(spread)
	if err != nil {
		return Score{}, 0, err
	}
	return score, b, nil
}

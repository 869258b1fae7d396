package coint

import (
	"fmt"
	"math"
	"strings"
)

// Options bound what counts as a tradeable pair.
type Options struct {
	Lookback    int
	MinHalfLife float64
	MaxHalfLife float64
}

func (o Options) withDefaults() Options {
	if o.Lookback <= 0 {
		o.Lookback = 500
	}
	if o.MinHalfLife <= 0 {
		o.MinHalfLife = 1
	}
	if o.MaxHalfLife <= 0 {
		o.MaxHalfLife = 30
	}
	return o
}

// Diagnostics summarises the mean-reversion quality of one pair. It
// annotates scan output and reports; it never gates live signals on its own.
type Diagnostics struct {
	HedgeRatio    float64
	ADF           Score
	HalfLife      float64
	Hurst         float64
	SpreadMean    float64
	SpreadStd     float64
	CurrentSpread float64
	Tradeable     bool
	Reason        string
}

// Diagnose runs the full battery against two aligned close-price series:
// Engle-Granger stationarity of the static-regression residual, OU
// half-life, and the Hurst exponent.
func Diagnose(y, x []float64, opts Options) (Diagnostics, error) {
	opts = opts.withDefaults()

	if len(y) != len(x) {
		return Diagnostics{}, fmt.Errorf("coint: length mismatch %d vs %d", len(y), len(x))
	}
	if len(y) > opts.Lookback {
		y = y[len(y)-opts.Lookback:]
		x = x[len(x)-opts.Lookback:]
	}
	if len(y) < 100 {
		return Diagnostics{}, fmt.Errorf("%w: diagnostics need 100 points, have %d", ErrInsufficientData, len(y))
	}

	score, hedge, err := EngleGranger(y, x)
	if err != nil {
		return Diagnostics{}, err
	}

	spread := make([]float64, len(y))
	var sum float64
	for i := range y {
		spread[i] = y[i] - hedge*x[i]
		sum += spread[i]
	}
	mean := sum / float64(len(spread))
	var varSum float64
	for _, s := range spread {
		d := s - mean
		varSum += d * d
	}

	halfLife, err := HalfLife(spread)
	if err != nil {
		return Diagnostics{}, err
	}
	hurst, err := Hurst(spread)
	if err != nil {
		return Diagnostics{}, err
	}

	d := Diagnostics{
		HedgeRatio:    hedge,
		ADF:           score,
		HalfLife:      halfLife,
		Hurst:         hurst,
		SpreadMean:    mean,
		SpreadStd:     math.Sqrt(varSum / float64(len(spread))),
		CurrentSpread: spread[len(spread)-1],
	}

	var reasons []string
	if !score.Significant(5) {
		reasons = append(reasons, fmt.Sprintf("adf t-stat %.2f not significant at 5%%", score.TStat))
	}
	if math.IsInf(halfLife, 1) {
		reasons = append(reasons, "no mean reversion detected")
	} else if halfLife < opts.MinHalfLife {
		reasons = append(reasons, fmt.Sprintf("half-life too short (%.1f < %.1f)", halfLife, opts.MinHalfLife))
	} else if halfLife > opts.MaxHalfLife {
		reasons = append(reasons, fmt.Sprintf("half-life too long (%.1f > %.1f)", halfLife, opts.MaxHalfLife))
	}

	if len(reasons) == 0 {
		d.Tradeable = true
		d.Reason = "passed all tests"
	} else {
		d.Reason = strings.Join(reasons, "; ")
	}
	return d, nil
}

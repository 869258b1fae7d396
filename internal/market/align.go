package market

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// Alignment defaults shared by the scanner and the backtester.
const (
	DefaultMinBars     = 250
	DefaultMaxGapRatio = 0.05
)

// ErrInsufficientHistory marks a pair whose aligned history is shorter than
// the configured minimum. Distinct from a data quality failure: the caller
// may retry once more history accumulates.
var ErrInsufficientHistory = errors.New("market: insufficient aligned history")

// QualityError reports unusable input data for a run. It is terminal for the
// affected pair.
type QualityError struct {
	Pair   string
	Reason string
}

func (e *QualityError) Error() string {
	return fmt.Sprintf("market: bad data for %s: %s", e.Pair, e.Reason)
}

// AlignOptions tune intersection alignment of the two candle histories.
type AlignOptions struct {
	Interval    time.Duration
	MinBars     int
	MaxGapRatio float64
	Logger      zerolog.Logger
}

func (o AlignOptions) withDefaults() AlignOptions {
	if o.MinBars <= 0 {
		o.MinBars = DefaultMinBars
	}
	if o.MaxGapRatio <= 0 {
		o.MaxGapRatio = DefaultMaxGapRatio
	}
	return o
}

// Align intersects the Y and X candle histories on shared timestamps.
// Inputs are sorted before matching; duplicate timestamps keep the first
// occurrence, bars with non-positive prices or negative volume are dropped.
// The aligned result must cover at least MinBars bars and its gap ratio
// against the expected bar count for the spanned interval must stay within
// MaxGapRatio.
func Align(name string, y, x []Bar, opts AlignOptions) (PairSeries, error) {
	opts = opts.withDefaults()
	if opts.Interval <= 0 {
		return PairSeries{}, fmt.Errorf("market: align interval must be positive")
	}

	logger := opts.Logger.With().Str("component", "align").Str("pair", name).Logger()

	ySane := sanitize(y, &logger, "y")
	xSane := sanitize(x, &logger, "x")
	if len(ySane) == 0 || len(xSane) == 0 {
		return PairSeries{}, fmt.Errorf("%w: empty leg history for %s", ErrInsufficientHistory, name)
	}

	aligned := intersect(ySane, xSane)
	if len(aligned) < opts.MinBars {
		return PairSeries{}, fmt.Errorf("%w: %s has %d aligned bars, need %d",
			ErrInsufficientHistory, name, len(aligned), opts.MinBars)
	}

	span := aligned[len(aligned)-1].Ts.Sub(aligned[0].Ts)
	expected := int(span/opts.Interval) + 1
	if expected > 0 {
		gapRatio := 1 - float64(len(aligned))/float64(expected)
		if gapRatio > opts.MaxGapRatio {
			return PairSeries{}, &QualityError{
				Pair:   name,
				Reason: fmt.Sprintf("gap ratio %.3f exceeds %.3f (%d of %d expected bars)", gapRatio, opts.MaxGapRatio, len(aligned), expected),
			}
		}
	}

	return PairSeries{Name: name, Bars: aligned}, nil
}

// sanitize sorts, de-duplicates, and drops invalid bars. The input slice is
// not modified.
func sanitize(bars []Bar, logger *zerolog.Logger, leg string) []Bar {
	out := make([]Bar, len(bars))
	copy(out, bars)
	sort.Slice(out, func(i, j int) bool { return out[i].Ts.Before(out[j].Ts) })

	cleaned := out[:0]
	var dropped, dupes int
	for _, b := range out {
		if !b.valid() {
			dropped++
			continue
		}
		if len(cleaned) > 0 && b.Ts.Equal(cleaned[len(cleaned)-1].Ts) {
			dupes++
			continue
		}
		cleaned = append(cleaned, b)
	}
	if dropped > 0 || dupes > 0 {
		logger.Warn().
			Str("leg", leg).
			Int("invalid_bars", dropped).
			Int("duplicate_ts", dupes).
			Msg("dropped unusable candles")
	}
	return cleaned
}

func intersect(y, x []Bar) []AlignedBar {
	out := make([]AlignedBar, 0, min(len(y), len(x)))
	i, j := 0, 0
	for i < len(y) && j < len(x) {
		switch {
		case y[i].Ts.Before(x[j].Ts):
			i++
		case x[j].Ts.Before(y[i].Ts):
			j++
		default:
			out = append(out, AlignedBar{Ts: y[i].Ts, Y: y[i], X: x[j]})
			i++
			j++
		}
	}
	return out
}

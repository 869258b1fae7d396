package market

import (
	"math"
	"time"
)

// Bar is a single OHLCV candle. Timestamps are UTC bar-open times.
type Bar struct {
	Ts     time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// DollarVolume returns the traded notional of the bar in quote units.
func (b Bar) DollarVolume() float64 {
	return b.Close * b.Volume
}

// valid reports whether the bar is usable for signal computation.
func (b Bar) valid() bool {
	return b.Close > 0 && b.Open > 0 && b.Volume >= 0 &&
		!math.IsNaN(b.Close) && !math.IsInf(b.Close, 0)
}

// AlignedBar carries the Y and X leg candles for one shared timestamp.
type AlignedBar struct {
	Ts time.Time
	Y  Bar
	X  Bar
}

// PairSeries is a timestamp-aligned candle history for one trading pair.
// Bars are strictly increasing in Ts.
type PairSeries struct {
	Name string
	YSym string
	XSym string
	Bars []AlignedBar
}

// Len returns the number of aligned bars.
func (p PairSeries) Len() int { return len(p.Bars) }

// Last returns the final aligned bar. Callers must check Len first.
func (p PairSeries) Last() AlignedBar { return p.Bars[len(p.Bars)-1] }

// TrailingADV computes average dollar volume per leg over the window ending
// at index i (inclusive), using at most n bars. Returns zeros when i is out
// of range.
func (p PairSeries) TrailingADV(i, n int) (yADV, xADV float64) {
	if i < 0 || i >= len(p.Bars) || n <= 0 {
		return 0, 0
	}
	start := i - n + 1
	if start < 0 {
		start = 0
	}
	count := float64(i - start + 1)
	for k := start; k <= i; k++ {
		yADV += p.Bars[k].Y.DollarVolume()
		xADV += p.Bars[k].X.DollarVolume()
	}
	return yADV / count, xADV / count
}

// ADV computes the average dollar volume over the trailing n bars of a
// single-leg history. With fewer than n bars it averages what exists.
func ADV(bars []Bar, n int) float64 {
	if len(bars) == 0 || n <= 0 {
		return 0
	}
	start := len(bars) - n
	if start < 0 {
		start = 0
	}
	var sum float64
	for _, b := range bars[start:] {
		sum += b.DollarVolume()
	}
	return sum / float64(len(bars)-start)
}

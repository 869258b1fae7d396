package market

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func hourlyBars(n int, price float64) []Bar {
	bars := make([]Bar, n)
	for i := range bars {
		bars[i] = Bar{
			Ts:     baseTime.Add(time.Duration(i) * time.Hour),
			Open:   price,
			High:   price * 1.01,
			Low:    price * 0.99,
			Close:  price,
			Volume: 100,
		}
	}
	return bars
}

func testOpts() AlignOptions {
	return AlignOptions{
		Interval: time.Hour,
		MinBars:  10,
		Logger:   zerolog.Nop(),
	}
}

func TestAlignIntersection(t *testing.T) {
	y := hourlyBars(50, 2000)
	x := hourlyBars(60, 40000)

	series, err := Align("ETH-BTC", y, x, testOpts())
	require.NoError(t, err)
	assert.Equal(t, 50, series.Len())
	assert.Equal(t, "ETH-BTC", series.Name)
	assert.True(t, series.Last().Ts.Equal(y[len(y)-1].Ts))

	for i := 1; i < series.Len(); i++ {
		assert.True(t, series.Bars[i].Ts.After(series.Bars[i-1].Ts), "timestamps must be strictly increasing")
	}
}

func TestAlignDropsDuplicatesAndBadBars(t *testing.T) {
	y := hourlyBars(30, 2000)
	// duplicate timestamp keeps the first occurrence
	dup := y[5]
	dup.Close = 9999
	y = append(y, dup)
	// zero close is unusable
	y[10].Close = 0

	x := hourlyBars(30, 40000)

	series, err := Align("ETH-BTC", y, x, testOpts())
	require.NoError(t, err)
	assert.Equal(t, 29, series.Len())
	assert.Equal(t, 2000.0, series.Bars[5].Y.Close)
}

func TestAlignInsufficientHistory(t *testing.T) {
	y := hourlyBars(5, 2000)
	x := hourlyBars(5, 40000)

	_, err := Align("ETH-BTC", y, x, testOpts())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientHistory))
}

func TestAlignGapRatio(t *testing.T) {
	y := hourlyBars(100, 2000)
	x := hourlyBars(100, 40000)

	// knock out a fifth of the y bars in the middle
	gapped := append([]Bar{}, y[:40]...)
	gapped = append(gapped, y[60:]...)

	opts := testOpts()
	opts.MaxGapRatio = 0.05
	_, err := Align("ETH-BTC", gapped, x, opts)
	require.Error(t, err)

	var qe *QualityError
	assert.True(t, errors.As(err, &qe))
	assert.Equal(t, "ETH-BTC", qe.Pair)

	// a generous gap budget accepts the same series
	opts.MaxGapRatio = 0.5
	series, err := Align("ETH-BTC", gapped, x, opts)
	require.NoError(t, err)
	assert.Equal(t, 80, series.Len())
}

func TestAlignUnsortedInput(t *testing.T) {
	y := hourlyBars(20, 2000)
	y[3], y[15] = y[15], y[3]
	x := hourlyBars(20, 40000)

	series, err := Align("ETH-BTC", y, x, testOpts())
	require.NoError(t, err)
	assert.Equal(t, 20, series.Len())
}

func TestTrailingADV(t *testing.T) {
	y := hourlyBars(20, 2000) // dollar volume 200k per bar
	x := hourlyBars(20, 100)  // dollar volume 10k per bar

	series, err := Align("ETH-BTC", y, x, testOpts())
	require.NoError(t, err)

	yADV, xADV := series.TrailingADV(series.Len()-1, 10)
	assert.InDelta(t, 200_000, yADV, 1e-9)
	assert.InDelta(t, 10_000, xADV, 1e-9)

	// shorter history than the window averages what exists
	yADV, _ = series.TrailingADV(2, 10)
	assert.InDelta(t, 200_000, yADV, 1e-9)
}

func TestADVSingleLeg(t *testing.T) {
	bars := hourlyBars(5, 1000)
	bars[4].Volume = 200 // last bar 200k dollar volume

	got := ADV(bars, 2)
	assert.InDelta(t, 150_000, got, 1e-9)
	assert.Zero(t, ADV(nil, 10))
}

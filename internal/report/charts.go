package report

import (
	"errors"
	"fmt"
	"os"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"stat-arb-signals/internal/backtest"
	"stat-arb-signals/internal/signal"
	"stat-arb-signals/internal/strategy"
)

// WriteEquityPNG charts the simulated equity curve.
func WriteEquityPNG(path, pair string, curve []backtest.EquityPoint) error {
	if len(curve) < 2 {
		return errors.New("not enough equity points to chart")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	downsampled := downsampleEquity(curve, maxChartPoints)

	x := make([]time.Time, len(downsampled))
	equity := make([]float64, len(downsampled))
	for i, p := range downsampled {
		x[i] = p.Ts
		equity[i] = p.Equity
	}

	usdFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Title:  fmt.Sprintf("Equity Curve - %s", pair),
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Equity (USD)",
			ValueFormatter: usdFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Equity",
				XValues: x,
				YValues: equity,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

// WriteZScorePNG charts the z-score series with the entry, exit, and stop
// bands overlaid as dashed lines.
func WriteZScorePNG(path, pair string, points []signal.SpreadPoint, th strategy.Thresholds) error {
	valid := make([]signal.SpreadPoint, 0, len(points))
	for _, pt := range points {
		if pt.Valid {
			valid = append(valid, pt)
		}
	}
	if len(valid) < 2 {
		return errors.New("not enough valid z-score points to chart")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	downsampled := downsampleSpread(valid, maxChartPoints)

	x := make([]time.Time, len(downsampled))
	zs := make([]float64, len(downsampled))
	for i, pt := range downsampled {
		x[i] = pt.Ts
		zs[i] = pt.Z
	}
	first, last := x[0], x[len(x)-1]

	zFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	series := []chart.Series{
		chart.TimeSeries{
			Name:    "Z-score",
			XValues: x,
			YValues: zs,
		},
	}
	for _, band := range []struct {
		name  string
		level float64
		color drawing.Color
	}{
		{"+z_in", th.ZIn, chart.ColorOrange},
		{"-z_in", -th.ZIn, chart.ColorOrange},
		{"+z_out", th.ZOut, chart.ColorGreen},
		{"-z_out", -th.ZOut, chart.ColorGreen},
		{"+z_stop", th.ZStop, chart.ColorRed},
		{"-z_stop", -th.ZStop, chart.ColorRed},
	} {
		series = append(series, thresholdSeries(band.name, band.level, first, last, band.color))
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("Z-score and thresholds - %s", pair),
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Z-score",
			ValueFormatter: zFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func thresholdSeries(name string, level float64, from, to time.Time, color drawing.Color) chart.TimeSeries {
	return chart.TimeSeries{
		Name:    name,
		XValues: []time.Time{from, to},
		YValues: []float64{level, level},
		Style: chart.Style{
			StrokeColor:     color,
			StrokeDashArray: []float64{5.0, 5.0},
		},
	}
}

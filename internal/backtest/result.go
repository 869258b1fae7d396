package backtest

import (
	"math"
	"time"

	"stat-arb-signals/internal/strategy"
)

// Trade is one completed round trip, both legs combined, net of costs.
type Trade struct {
	Pair   string
	Action strategy.Action // entry side
	Reason string          // exit | stop | end_of_data

	EntryTs time.Time
	ExitTs  time.Time
	EntryZ  float64
	ExitZ   float64
	Beta    float64

	LegYNotional float64
	LegXNotional float64
	YQty         float64
	XQty         float64
	EntryYPx     float64
	EntryXPx     float64
	ExitYPx      float64
	ExitXPx      float64

	CostUSD       float64
	PnLUSD        float64
	ReturnPct     float64
	DurationHours float64
}

// EquityPoint is one mark of the simulated account.
type EquityPoint struct {
	Ts     time.Time
	Equity float64
}

// Result is the full outcome of one simulation pass.
type Result struct {
	Pair string

	TotalReturnPct  float64
	AnnualReturnPct float64
	AnnualVolPct    float64
	Sharpe          float64
	MaxDrawdownPct  float64

	NTrades          int
	WinRate          float64
	AvgWinUSD        float64
	AvgLossUSD       float64
	ProfitFactor     float64
	AvgTradePnLUSD   float64
	AvgDurationHours float64

	InitialEquityUSD float64
	FinalEquityUSD   float64
	TotalCostUSD     float64

	Trades []Trade
	Equity []EquityPoint

	// PendingSignal is a transition decided on the final bar; there is no
	// next open to fill it, so it is reported instead of traded.
	PendingSignal *strategy.SignalEvent
}

// computeMetrics fills the summary fields from the equity curve and trade
// log. barsPerYear annualises the per-bar return series.
func (r *Result) computeMetrics(barsPerYear float64) {
	if len(r.Equity) > 0 {
		r.FinalEquityUSD = r.Equity[len(r.Equity)-1].Equity
	}
	if r.InitialEquityUSD > 0 {
		r.TotalReturnPct = (r.FinalEquityUSD/r.InitialEquityUSD - 1) * 100
	}

	if len(r.Equity) > 1 && barsPerYear > 0 {
		returns := make([]float64, 0, len(r.Equity)-1)
		for i := 1; i < len(r.Equity); i++ {
			prev := r.Equity[i-1].Equity
			if prev <= 0 {
				continue
			}
			returns = append(returns, r.Equity[i].Equity/prev-1)
		}
		if len(returns) > 1 {
			var sum float64
			for _, v := range returns {
				sum += v
			}
			mean := sum / float64(len(returns))
			var varSum float64
			for _, v := range returns {
				d := v - mean
				varSum += d * d
			}
			vol := math.Sqrt(varSum / float64(len(returns)-1))

			r.AnnualReturnPct = mean * barsPerYear * 100
			r.AnnualVolPct = vol * math.Sqrt(barsPerYear) * 100
			if r.AnnualVolPct > 0 {
				r.Sharpe = r.AnnualReturnPct / r.AnnualVolPct
			}
		}

		peak := r.Equity[0].Equity
		for _, p := range r.Equity {
			if p.Equity > peak {
				peak = p.Equity
			}
			if peak > 0 {
				dd := (peak - p.Equity) / peak * 100
				if dd > r.MaxDrawdownPct {
					r.MaxDrawdownPct = dd
				}
			}
		}
	}

	r.NTrades = len(r.Trades)
	if r.NTrades == 0 {
		return
	}

	var wins, losses int
	var winSum, lossSum, pnlSum, durSum float64
	for _, tr := range r.Trades {
		pnlSum += tr.PnLUSD
		durSum += tr.DurationHours
		if tr.PnLUSD > 0 {
			wins++
			winSum += tr.PnLUSD
		} else if tr.PnLUSD < 0 {
			losses++
			lossSum += tr.PnLUSD
		}
	}

	r.WinRate = float64(wins) / float64(r.NTrades) * 100
	r.AvgTradePnLUSD = pnlSum / float64(r.NTrades)
	r.AvgDurationHours = durSum / float64(r.NTrades)
	if wins > 0 {
		r.AvgWinUSD = winSum / float64(wins)
	}
	if losses > 0 {
		r.AvgLossUSD = lossSum / float64(losses)
	}
	if r.AvgLossUSD != 0 {
		r.ProfitFactor = math.Abs(r.AvgWinUSD / r.AvgLossUSD)
	}
}

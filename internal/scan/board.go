package scan

import (
	"math"
	"sort"
	"time"

	"stat-arb-signals/internal/coint"
	"stat-arb-signals/internal/risk"
	"stat-arb-signals/internal/strategy"
)

// Status buckets a pair's latest z-score for display.
type Status string

const (
	StatusStopZone    Status = "STOP_ZONE"
	StatusSignalShort Status = "SIGNAL_SHORT"
	StatusSignalLong  Status = "SIGNAL_LONG"
	StatusNear        Status = "NEAR"
	StatusExitZone    Status = "EXIT_ZONE"
	StatusQuiet       Status = "QUIET"
)

// classifyZ maps a z-score into its display zone. Zones are checked from
// the outside in so overlapping ranges resolve to the most urgent one.
func classifyZ(z float64, th strategy.Thresholds) Status {
	abs := math.Abs(z)
	switch {
	case abs > th.ZStop:
		return StatusStopZone
	case z > th.ZIn:
		return StatusSignalShort
	case z < -th.ZIn:
		return StatusSignalLong
	case abs >= 0.75*th.ZIn:
		return StatusNear
	case abs < th.ZOut:
		return StatusExitZone
	default:
		return StatusQuiet
	}
}

// Classify maps a z-score into its board zone.
func Classify(z float64, th strategy.Thresholds) Status {
	return classifyZ(z, th)
}

// PairReport is one board row: the latest reading for a pair plus whatever
// the sweep decided on it.
type PairReport struct {
	Pair   string
	YSym   string
	XSym   string
	Ts     time.Time
	Z      float64
	Beta   float64
	Spread float64
	Valid  bool

	Position strategy.Position
	Status   Status

	YADVUSD float64
	XADVUSD float64

	// Gated marks a pair whose entry was blocked by the liquidity filter.
	Gated      bool
	GateReason string

	Event *strategy.SignalEvent
	Order *risk.SizedOrder

	// Ticket carries the rendered trade ticket when the sweep produced
	// a signal.
	Ticket string

	// Diag is filled only when the sweep ran with diagnostics enabled.
	Diag *coint.Diagnostics
}

// PairFailure records one pair whose sweep errored.
type PairFailure struct {
	Pair string
	Err  error
}

// BatchReport is the outcome of one sweep over the configured pairs,
// sorted by |z| descending so the most stretched pairs sit on top.
type BatchReport struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Reports    []PairReport
	Failures   []PairFailure
	Signals    int
}

func (b *BatchReport) sortByStretch() {
	sort.SliceStable(b.Reports, func(i, j int) bool {
		return math.Abs(b.Reports[i].Z) > math.Abs(b.Reports[j].Z)
	})
}

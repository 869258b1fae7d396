package risk

import (
	"errors"
	"fmt"
	"math"
	"time"

	"stat-arb-signals/internal/signal"
	"stat-arb-signals/internal/strategy"
)

// ErrDegenerateSizing marks a bar whose inputs cannot produce a sane size
// (collapsed spread std, non-positive beta, missing prices). The caller
// skips the bar and leaves position state untouched.
var ErrDegenerateSizing = errors.New("risk: degenerate sizing inputs")

// Config holds the sizing parameters.
type Config struct {
	TargetSigmaUSD    float64 `mapstructure:"target_sigma_usd"`
	MaxNotionalPerLeg float64 `mapstructure:"max_notional_usd_per_leg"`
	MaxADVFraction    float64 `mapstructure:"max_adv_frac"`
	MinNotionalUSD    float64 `mapstructure:"min_notional_usd"`
	FeeBps            float64 `mapstructure:"fee_bps"`
	SlippageBps       float64 `mapstructure:"slippage_bps"`
}

// SizedOrder is the volatility-targeted order for one signal. Notionals are
// unsigned USD amounts per leg; quantities are signed base units, positive
// for a bought leg and negative for a sold leg.
type SizedOrder struct {
	Ts     time.Time
	Pair   string
	Action strategy.Action

	LegYNotional float64
	LegXNotional float64
	YQty         float64
	XQty         float64

	TargetRiskUSD float64
	RiskPerZUSD   float64
	Scale         float64
	EstCostUSD    float64

	Skipped    bool
	SkipReason string
}

// TotalNotional returns the combined USD footprint of both legs.
func (o SizedOrder) TotalNotional() float64 {
	return o.LegYNotional + o.LegXNotional
}

// Sizer converts signal events into sized two-leg orders. Sizing targets a
// fixed USD P&L per one-sigma spread move: since the spread is in log terms,
// a one-sigma move shifts the Y leg by roughly std of its notional, so the
// base Y notional is TargetSigmaUSD / std and the X leg follows the hedge
// ratio. All clamps scale both legs by the same factor so the hedge ratio
// survives intact.
type Sizer struct {
	cfg Config
}

// New constructs a Sizer. Parameter validity is the config layer's job.
func New(cfg Config) *Sizer {
	return &Sizer{cfg: cfg}
}

// CostUSD estimates fees plus slippage for trading the given notional once.
func (s *Sizer) CostUSD(notional float64) float64 {
	return notional * (s.cfg.FeeBps + s.cfg.SlippageBps) / 10000
}

// SizeEntry sizes a fresh entry from the triggering spread point. ADV values
// of zero mean unknown and disable the corresponding liquidity cap.
func (s *Sizer) SizeEntry(ev strategy.SignalEvent, pt signal.SpreadPoint, yADVUSD, xADVUSD float64) (SizedOrder, error) {
	order := SizedOrder{
		Ts:            ev.Ts,
		Pair:          ev.Pair,
		Action:        ev.Action,
		TargetRiskUSD: s.cfg.TargetSigmaUSD,
	}

	if !ev.Action.IsEntry() {
		return order, fmt.Errorf("%w: %s is not an entry", ErrDegenerateSizing, ev.Action)
	}
	if pt.Std <= 0 || math.IsNaN(pt.Std) || math.IsInf(pt.Std, 0) {
		return order, fmt.Errorf("%w: spread std %v", ErrDegenerateSizing, pt.Std)
	}
	if pt.Beta <= 0 || math.IsNaN(pt.Beta) || math.IsInf(pt.Beta, 0) {
		return order, fmt.Errorf("%w: hedge ratio %v", ErrDegenerateSizing, pt.Beta)
	}
	if pt.YClose <= 0 || pt.XClose <= 0 {
		return order, fmt.Errorf("%w: prices y=%v x=%v", ErrDegenerateSizing, pt.YClose, pt.XClose)
	}

	legY := s.cfg.TargetSigmaUSD / pt.Std
	legX := legY * pt.Beta

	scale := 1.0
	if s.cfg.MaxNotionalPerLeg > 0 && (legY > s.cfg.MaxNotionalPerLeg || legX > s.cfg.MaxNotionalPerLeg) {
		scale = math.Min(s.cfg.MaxNotionalPerLeg/legY, s.cfg.MaxNotionalPerLeg/legX)
	}
	if s.cfg.MaxADVFraction > 0 {
		if yADVUSD > 0 {
			if advCap := s.cfg.MaxADVFraction * yADVUSD / legY; advCap < scale {
				scale = advCap
			}
		}
		if xADVUSD > 0 {
			if advCap := s.cfg.MaxADVFraction * xADVUSD / legX; advCap < scale {
				scale = advCap
			}
		}
	}

	legY *= scale
	legX *= scale
	order.Scale = scale

	if legY < s.cfg.MinNotionalUSD || legX < s.cfg.MinNotionalUSD {
		order.Skipped = true
		order.SkipReason = fmt.Sprintf("below min notional %.2f after clamps", s.cfg.MinNotionalUSD)
		return order, nil
	}

	dir := 1.0
	if ev.Action == strategy.ActionEnterShort {
		dir = -1.0
	}

	order.LegYNotional = legY
	order.LegXNotional = legX
	order.YQty = dir * legY / pt.YClose
	order.XQty = -dir * legX / pt.XClose
	order.RiskPerZUSD = legY * pt.Std
	order.EstCostUSD = s.CostUSD(legY + legX)

	return order, nil
}

// SizeExit builds the flattening order for an exit or stop. The open
// notionals and signed quantities come from persisted position state; the
// flatten simply negates them so no fresh volatility estimate is needed.
func (s *Sizer) SizeExit(ev strategy.SignalEvent, pt signal.SpreadPoint, openYNotional, openXNotional, openYQty, openXQty float64) SizedOrder {
	return SizedOrder{
		Ts:            ev.Ts,
		Pair:          ev.Pair,
		Action:        ev.Action,
		LegYNotional:  math.Abs(openYNotional),
		LegXNotional:  math.Abs(openXNotional),
		YQty:          -openYQty,
		XQty:          -openXQty,
		TargetRiskUSD: s.cfg.TargetSigmaUSD,
		Scale:         1,
		EstCostUSD:    s.CostUSD(math.Abs(openYNotional) + math.Abs(openXNotional)),
	}
}

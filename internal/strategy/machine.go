package strategy

import (
	"math"
	"time"

	"stat-arb-signals/internal/signal"
)

// Thresholds hold the z-score bands driving transitions. Validity
// (0 <= ZOut < ZIn < ZStop) is enforced by config validation before a
// machine is built.
type Thresholds struct {
	ZIn          float64 `mapstructure:"z_in"`
	ZOut         float64 `mapstructure:"z_out"`
	ZStop        float64 `mapstructure:"z_stop"`
	LevelTrigger bool    `mapstructure:"level_trigger"`
}

// Seed restores a machine to a previously persisted decision context so a
// restarted process reproduces exactly the transition an uninterrupted run
// would have made.
type Seed struct {
	Position Position
	PrevZ    float64
	HavePrev bool
	LastTs   time.Time
}

// Machine is the deterministic trading state machine for one pair. It is a
// pure decision layer: no I/O, no clocks, the next state is a function of
// the current state and the incoming spread point only.
//
// Evaluation order per bar is fixed: stop loss, then exit, then entries.
// Entries require the z-score to cross the band on this bar; a z-score that
// is already parked beyond the band keeps quiet unless LevelTrigger is set.
type Machine struct {
	th Thresholds

	pos      Position
	prevZ    float64
	havePrev bool
	lastTs   time.Time
}

// NewMachine builds a machine starting from Neutral.
func NewMachine(th Thresholds) *Machine {
	return &Machine{th: th}
}

// Restore applies a persisted seed.
func (m *Machine) Restore(seed Seed) {
	m.pos = seed.Position
	m.prevZ = seed.PrevZ
	m.havePrev = seed.HavePrev
	m.lastTs = seed.LastTs
}

// Snapshot captures the decision context so a caller can roll back a step
// whose side effects (sizing, liquidity checks) failed.
func (m *Machine) Snapshot() Seed {
	return Seed{
		Position: m.pos,
		PrevZ:    m.prevZ,
		HavePrev: m.havePrev,
		LastTs:   m.lastTs,
	}
}

// Position returns the current position.
func (m *Machine) Position() Position { return m.pos }

// PrevZ returns the previous valid z-score and whether one exists.
func (m *Machine) PrevZ() (float64, bool) { return m.prevZ, m.havePrev }

// LastTs returns the timestamp of the last bar that was evaluated.
func (m *Machine) LastTs() time.Time { return m.lastTs }

// Step evaluates one spread point and returns the transition it causes, or
// nil when the bar changes nothing. Invalid points (warmup, degenerate
// regression or collapsed std) are skipped without touching the decision
// context. Re-delivered bars (ts not after the last evaluated ts) are
// no-ops, which makes repeated scans over the same history idempotent.
func (m *Machine) Step(pair string, pt signal.SpreadPoint) *SignalEvent {
	if !pt.Valid {
		return nil
	}
	if !m.lastTs.IsZero() && !pt.Ts.After(m.lastTs) {
		return nil
	}

	ev := m.evaluate(pair, pt)

	m.prevZ = pt.Z
	m.havePrev = true
	m.lastTs = pt.Ts
	return ev
}

func (m *Machine) evaluate(pair string, pt signal.SpreadPoint) *SignalEvent {
	z := pt.Z

	if m.pos != Neutral {
		if math.Abs(z) > m.th.ZStop {
			return m.transition(pair, pt, ActionStopLoss, Neutral, "stop")
		}
		if math.Abs(z) < m.th.ZOut {
			return m.transition(pair, pt, ActionExit, Neutral, "exit")
		}
		return nil
	}

	if m.havePrev {
		if m.prevZ <= m.th.ZIn && z > m.th.ZIn {
			return m.transition(pair, pt, ActionEnterShort, ShortSpread, "cross")
		}
		if m.prevZ >= -m.th.ZIn && z < -m.th.ZIn {
			return m.transition(pair, pt, ActionEnterLong, LongSpread, "cross")
		}
	}

	if m.th.LevelTrigger {
		if z >= m.th.ZIn {
			return m.transition(pair, pt, ActionEnterShort, ShortSpread, "level")
		}
		if z <= -m.th.ZIn {
			return m.transition(pair, pt, ActionEnterLong, LongSpread, "level")
		}
	}

	return nil
}

func (m *Machine) transition(pair string, pt signal.SpreadPoint, action Action, to Position, reason string) *SignalEvent {
	ev := &SignalEvent{
		Ts:     pt.Ts,
		Pair:   pair,
		Action: action,
		From:   m.pos,
		To:     to,
		Z:      pt.Z,
		Beta:   pt.Beta,
		Spread: pt.Spread,
		Reason: reason,
	}
	m.pos = to
	return ev
}

// Replay evaluates a whole point series and collects the transitions.
func (m *Machine) Replay(pair string, points []signal.SpreadPoint) []SignalEvent {
	var events []SignalEvent
	for _, pt := range points {
		if ev := m.Step(pair, pt); ev != nil {
			events = append(events, *ev)
		}
	}
	return events
}

package strategy

import (
	"fmt"
	"time"
)

// Position is the spread position of one pair.
type Position int

const (
	Neutral Position = iota
	LongSpread
	ShortSpread
)

// String renders the persisted wire form.
func (p Position) String() string {
	switch p {
	case LongSpread:
		return "LONG_SPREAD"
	case ShortSpread:
		return "SHORT_SPREAD"
	default:
		return "NEUTRAL"
	}
}

// ParsePosition parses the persisted wire form. Unknown strings fail rather
// than defaulting, so corrupt state is surfaced to the caller.
func ParsePosition(s string) (Position, error) {
	switch s {
	case "NEUTRAL":
		return Neutral, nil
	case "LONG_SPREAD":
		return LongSpread, nil
	case "SHORT_SPREAD":
		return ShortSpread, nil
	default:
		return Neutral, fmt.Errorf("strategy: unknown position %q", s)
	}
}

// Action is a state transition kind.
type Action int

const (
	ActionEnterLong Action = iota
	ActionEnterShort
	ActionExit
	ActionStopLoss
)

func (a Action) String() string {
	switch a {
	case ActionEnterLong:
		return "ENTER_LONG"
	case ActionEnterShort:
		return "ENTER_SHORT"
	case ActionExit:
		return "EXIT"
	case ActionStopLoss:
		return "STOP_LOSS"
	default:
		return "UNKNOWN"
	}
}

// ParseAction parses the persisted wire form of an action.
func ParseAction(s string) (Action, error) {
	switch s {
	case "ENTER_LONG":
		return ActionEnterLong, nil
	case "ENTER_SHORT":
		return ActionEnterShort, nil
	case "EXIT":
		return ActionExit, nil
	case "STOP_LOSS":
		return ActionStopLoss, nil
	default:
		return ActionExit, fmt.Errorf("strategy: unknown action %q", s)
	}
}

// IsEntry reports whether the action opens a position.
func (a Action) IsEntry() bool {
	return a == ActionEnterLong || a == ActionEnterShort
}

// SignalEvent records one state transition. ID is assigned by the caller
// that persists the event; the machine itself never mints identifiers.
type SignalEvent struct {
	ID     string
	Ts     time.Time
	Pair   string
	Action Action
	From   Position
	To     Position
	Z      float64
	Beta   float64
	Spread float64
	Reason string
}

package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// PairState is the persisted trading state for one pair. PrevZ and the entry
// fields are nil while no bar has been processed or no position is open.
type PairState struct {
	Pair         string
	Position     string
	PrevZ        *decimal.Decimal
	LastTs       *time.Time
	EntryZ       *decimal.Decimal
	EntryTs      *time.Time
	EntryBeta    *decimal.Decimal
	LegYNotional decimal.Decimal
	LegXNotional decimal.Decimal
	YQty         decimal.Decimal
	XQty         decimal.Decimal
	UpdatedAt    time.Time
}

// Flat reports whether the persisted state carries no open quantities.
func (p PairState) Flat() bool {
	return p.YQty.IsZero() && p.XQty.IsZero()
}

// SignalRecord is a persisted state transition.
type SignalRecord struct {
	ID           string
	Ts           time.Time
	Pair         string
	Action       string
	FromPosition string
	ToPosition   string
	Z            decimal.Decimal
	Beta         decimal.Decimal
	Spread       decimal.Decimal
	Reason       string
	CreatedAt    time.Time
}

// OrderRecord is a persisted sized order, linked to the signal that caused it.
type OrderRecord struct {
	ID            string
	EventID       string
	Ts            time.Time
	Pair          string
	Action        string
	LegYNotional  decimal.Decimal
	LegXNotional  decimal.Decimal
	YQty          decimal.Decimal
	XQty          decimal.Decimal
	TargetRiskUSD decimal.Decimal
	RiskPerZUSD   decimal.Decimal
	Scale         decimal.Decimal
	EstCostUSD    decimal.Decimal
	Skipped       bool
	SkipReason    *string
	CreatedAt     time.Time
}

// ScanRun audits one sweep over the configured pairs.
type ScanRun struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	PairsTotal int
	PairsOK    int
	Signals    int
	Errors     int
	Notes      *string
	CreatedAt  time.Time
}

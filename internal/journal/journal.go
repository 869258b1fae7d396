package journal

import "time"

// PaperPosition is one simulated pairs position, open or closed. The exit
// fields stay nil while the position is open.
type PaperPosition struct {
	ID          string
	Pair        string
	Side        string
	EntryTime   time.Time
	EntryZ      float64
	EntryBeta   float64
	EntryYPrice float64
	EntryXPrice float64
	YQty        float64
	XQty        float64
	NotionalUSD float64
	Status      string
	ExitTime    *time.Time
	ExitZ       *float64
	ExitYPrice  *float64
	ExitXPrice  *float64
	ExitReason  *string
	PnLUSD      *float64
	ReturnPct   *float64
}

// Summary aggregates the closed-trade history.
type Summary struct {
	Trades      int
	Wins        int
	Losses      int
	WinRatePct  float64
	TotalPnLUSD float64
}

type Journal interface {
	OpenPosition(p PaperPosition) error
	ClosePosition(id string, exitTime time.Time, exitZ, yPrice, xPrice float64, reason string) (PaperPosition, error)
	OpenPositions() ([]PaperPosition, error)
	History(limit int) ([]PaperPosition, error)
	Summarize() (Summary, error)
	Close() error
}

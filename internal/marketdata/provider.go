package marketdata

import (
	"context"
	"errors"

	"stat-arb-signals/internal/market"
)

// CandleProvider returns up to limit of the most recent closed candles for
// one symbol, oldest first.
type CandleProvider interface {
	Candles(ctx context.Context, symbol, interval string, limit int) ([]market.Bar, error)
}

// ErrNoData reports that the source had no usable candles for the symbol.
var ErrNoData = errors.New("no candles returned")

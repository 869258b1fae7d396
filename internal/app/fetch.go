package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"stat-arb-signals/internal/marketdata"
)

// Fetch downloads candle history for every symbol the configured pairs touch
// and rewrites the local CSV cache. The download always goes to the exchange
// REST API even when data.source is csv: the cache cannot refresh itself.
func (a *App) Fetch(ctx context.Context, opts FetchOptions) error {
	pairs := a.Config.TradingPairs()
	if len(pairs) == 0 {
		return errors.New("no pairs configured; set symbols or a pairs block")
	}

	bars := opts.Bars
	if bars <= 0 {
		bars = a.historyBars()
	}

	seen := make(map[string]struct{}, 2*len(pairs))
	symbols := make([]string, 0, 2*len(pairs))
	for _, p := range pairs {
		for _, sym := range []string{p.AssetY, p.AssetX} {
			if _, ok := seen[sym]; ok {
				continue
			}
			seen[sym] = struct{}{}
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)

	rest := marketdata.NewREST(marketdata.RESTOptions{
		BaseURL:        a.Config.Exchange.BaseURL,
		Timeout:        a.Config.Exchange.Timeout,
		UserAgent:      a.Config.Exchange.UserAgent,
		RequestsPerSec: a.Config.Exchange.RateLimit,
		Burst:          a.Config.Exchange.RateBurst,
	}, a.Logger)
	cache := marketdata.NewCSV(a.Config.Data.Dir, a.Logger)

	a.Logger.Info().
		Int("symbols", len(symbols)).
		Int("bars", bars).
		Str("dir", a.Config.Data.Dir).
		Msg("updating candle cache")

	updated := 0
	failed := 0
	for _, sym := range symbols {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		candles, err := rest.Candles(ctx, sym, a.Config.Timeframe, bars)
		if err != nil {
			failed++
			a.Logger.Error().Err(err).Str("symbol", sym).Msg("candle download failed")
			continue
		}

		path := cache.Path(sym, a.Config.Timeframe)
		if err := marketdata.WriteCSV(path, candles); err != nil {
			failed++
			a.Logger.Error().Err(err).Str("symbol", sym).Str("path", path).Msg("cache write failed")
			continue
		}

		updated++
		fmt.Fprintf(os.Stdout, "%-14s %5d bars -> %s\n", sym, len(candles), path)
	}

	a.Logger.Info().Int("updated", updated).Int("failed", failed).Msg("cache update finished")
	if failed > 0 {
		return fmt.Errorf("%d of %d symbols failed to update", failed, len(symbols))
	}
	return nil
}

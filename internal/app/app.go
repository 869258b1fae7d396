package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"stat-arb-signals/internal/alerting"
	"stat-arb-signals/internal/backtest"
	"stat-arb-signals/internal/config"
	"stat-arb-signals/internal/journal"
	"stat-arb-signals/internal/market"
	"stat-arb-signals/internal/marketdata"
	"stat-arb-signals/internal/scan"
	"stat-arb-signals/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newProvider() (marketdata.CandleProvider, error) {
	switch a.Config.Data.Source {
	case "csv":
		return marketdata.NewCSV(a.Config.Data.Dir, a.Logger), nil
	case "rest":
		return marketdata.NewREST(marketdata.RESTOptions{
			BaseURL:        a.Config.Exchange.BaseURL,
			Timeout:        a.Config.Exchange.Timeout,
			UserAgent:      a.Config.Exchange.UserAgent,
			RequestsPerSec: a.Config.Exchange.RateLimit,
			Burst:          a.Config.Exchange.RateBurst,
		}, a.Logger), nil
	default:
		return nil, fmt.Errorf("unknown data source %q", a.Config.Data.Source)
	}
}

func (a *App) newNotifier() alerting.Notifier {
	n := a.Config.Notifications

	var channels []alerting.Notifier
	if n.TelegramToken != "" && n.TelegramChatID != "" {
		channels = append(channels, alerting.NewTelegramNotifier(n.TelegramToken, n.TelegramChatID, n.TelegramAPI, n.Timeout, a.Logger))
	}
	if n.SlackWebhook != "" {
		channels = append(channels, alerting.NewSlackNotifier(n.SlackWebhook, n.Timeout, a.Logger))
	}
	if n.DiscordWebhook != "" {
		channels = append(channels, alerting.NewDiscordNotifier(n.DiscordWebhook, n.Timeout, a.Logger))
	}
	if len(channels) == 0 {
		return nil
	}

	var notifier alerting.Notifier = alerting.NewMultiNotifier(channels...)
	if n.Debounce > 0 {
		notifier = alerting.NewDebouncedNotifier(notifier, n.Debounce, a.Logger)
	}
	return notifier
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) openJournal() (journal.Journal, error) {
	path := a.Config.Journal.Path
	if path == "" {
		return nil, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	j, err := journal.NewSQLite(path)
	if err != nil {
		return nil, err
	}
	return j, nil
}

// historyBars sizes candle fetches so the estimation windows warm up with
// margin to spare.
func (a *App) historyBars() int {
	bars := a.Config.Windows.OLSBeta + a.Config.Windows.Zscore + 100
	if bars < a.Config.Filters.MinBarsRequired {
		bars = a.Config.Filters.MinBarsRequired
	}
	return bars
}

func (a *App) scanConfig() (scan.Config, error) {
	interval, err := a.Config.BarInterval()
	if err != nil {
		return scan.Config{}, err
	}

	universe := a.Config.TradingPairs()
	if len(universe) == 0 {
		return scan.Config{}, fmt.Errorf("no pairs configured; set symbols or a pairs block")
	}
	pairs := make([]scan.Pair, 0, len(universe))
	for _, p := range universe {
		pairs = append(pairs, scan.Pair{Name: p.Name, YSym: p.AssetY, XSym: p.AssetX})
	}

	return scan.Config{
		Pairs:        pairs,
		Timeframe:    a.Config.Timeframe,
		Interval:     interval,
		HistoryBars:  a.historyBars(),
		BetaWindow:   a.Config.Windows.OLSBeta,
		ZscoreWindow: a.Config.Windows.Zscore,
		Thresholds:   a.Config.MachineThresholds(),
		Sizer:        a.Config.SizerConfig(),
		MinBars:      a.Config.Filters.MinBarsRequired,
		MaxGapRatio:  a.Config.Filters.MaxGapRatio,
		MinADVUSD:    a.Config.Filters.MinADVUSD,
	}, nil
}

type scanEngine struct {
	scanner *scan.Scanner
	store   *storage.Store
	cleanup func()
}

// newScanEngine wires the scanner with whichever persistence is
// configured: Postgres when a DSN is set, the JSON file store otherwise.
func (a *App) newScanEngine(ctx context.Context, diagnose bool) (*scanEngine, error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	provider, err := a.newProvider()
	if err != nil {
		return nil, err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if closeStore != nil {
		closers = append(closers, closeStore)
	}

	var (
		states  storage.PairStateStore
		signals storage.SignalStore
		orders  storage.OrderStore
		runs    storage.ScanRunStore
	)
	if store != nil {
		states, signals, orders, runs = store, store, store, store
	} else {
		a.Logger.Warn().Msg("database.dsn not configured; falling back to file state, signal history disabled")
		states = storage.NewFileStateStore(a.Config.State.Dir, a.Logger)
	}

	jrnl, err := a.openJournal()
	if err != nil {
		cleanup()
		return nil, err
	}
	if jrnl != nil {
		closers = append(closers, func() { _ = jrnl.Close() })
	}

	cfg, err := a.scanConfig()
	if err != nil {
		cleanup()
		return nil, err
	}
	cfg.Diagnose = diagnose

	scanner := scan.New(cfg, provider, states, signals, orders, runs, jrnl, a.newNotifier(), a.Logger)
	return &scanEngine{scanner: scanner, store: store, cleanup: cleanup}, nil
}

// resolvePair picks one pair out of the configured universe.
func (a *App) resolvePair(name string) (config.PairConfig, error) {
	pairs := a.Config.TradingPairs()
	if len(pairs) == 0 {
		return config.PairConfig{}, fmt.Errorf("no pairs configured; set symbols or a pairs block")
	}
	if name == "" {
		if len(pairs) == 1 {
			return pairs[0], nil
		}
		return config.PairConfig{}, fmt.Errorf("--pair is required when %d pairs are configured", len(pairs))
	}
	for _, p := range pairs {
		if p.Name == name {
			return p, nil
		}
	}
	return config.PairConfig{}, fmt.Errorf("pair %q not found in configuration", name)
}

// loadSeries fetches and aligns both legs of a pair.
func (a *App) loadSeries(ctx context.Context, pair config.PairConfig, bars int) (market.PairSeries, error) {
	provider, err := a.newProvider()
	if err != nil {
		return market.PairSeries{}, err
	}
	interval, err := a.Config.BarInterval()
	if err != nil {
		return market.PairSeries{}, err
	}
	if bars <= 0 {
		bars = a.historyBars()
	}

	yBars, err := provider.Candles(ctx, pair.AssetY, a.Config.Timeframe, bars)
	if err != nil {
		return market.PairSeries{}, fmt.Errorf("fetch %s: %w", pair.AssetY, err)
	}
	xBars, err := provider.Candles(ctx, pair.AssetX, a.Config.Timeframe, bars)
	if err != nil {
		return market.PairSeries{}, fmt.Errorf("fetch %s: %w", pair.AssetX, err)
	}

	series, err := market.Align(pair.Name, yBars, xBars, market.AlignOptions{
		Interval:    interval,
		MinBars:     a.Config.Filters.MinBarsRequired,
		MaxGapRatio: a.Config.Filters.MaxGapRatio,
		Logger:      a.Logger,
	})
	if err != nil {
		return market.PairSeries{}, err
	}
	series.YSym = pair.AssetY
	series.XSym = pair.AssetX
	return series, nil
}

func (a *App) newSimulator() *backtest.Simulator {
	return backtest.New(backtest.Config{
		BetaWindow:       a.Config.Windows.OLSBeta,
		ZscoreWindow:     a.Config.Windows.Zscore,
		Thresholds:       a.Config.MachineThresholds(),
		Sizer:            a.Config.SizerConfig(),
		MinADVUSD:        a.Config.Filters.MinADVUSD,
		InitialEquityUSD: a.Config.Backtest.InitialEquityUSD,
		BarsPerYear:      a.Config.Backtest.BarsPerYear,
	}, a.Logger)
}

// ScanOptions select the one-shot scan target.
type ScanOptions struct {
	Pair     string
	All      bool
	Diagnose bool
}

// BacktestOptions configure a single-pass simulation.
type BacktestOptions struct {
	Pair string
	Bars int
}

// WalkForwardOptions configure the folded out-of-sample evaluation.
type WalkForwardOptions struct {
	Pair  string
	Bars  int
	Folds int
}

// ReportOptions configure the backtest report bundle.
type ReportOptions struct {
	Pair   string
	Bars   int
	OutDir string
}

// ExportOptions hold parameters for exporting the computed signal series.
type ExportOptions struct {
	Pair    string
	Bars    int
	From    *time.Time
	To      *time.Time
	CSVPath string
	PNGPath string
}

// StatusOptions configure the pair status board.
type StatusOptions struct {
	Active   bool
	Diagnose bool
}

// PositionsOptions configure the paper journal views.
type PositionsOptions struct {
	View  string
	Limit int
}

// FetchOptions configure the candle cache download.
type FetchOptions struct {
	Bars int
}

// SignalsOptions configure the signal history listing.
type SignalsOptions struct {
	Limit  int
	Orders bool
}

// SimulateOptions describe the synthetic alert to dispatch.
type SimulateOptions struct {
	Pair   string
	Action string
	Z      float64
}

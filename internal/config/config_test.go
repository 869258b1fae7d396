package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stat-arb-signals/internal/risk"
	"stat-arb-signals/internal/strategy"
)

func baseConfig() Config {
	return Config{
		Timeframe:  "1h",
		Venue:      "binance",
		Windows:    WindowsConfig{OLSBeta: 200, Zscore: 100},
		Thresholds: strategy.Thresholds{ZIn: 2.0, ZOut: 0.5, ZStop: 3.5},
		Risk: risk.Config{
			TargetSigmaUSD:    200,
			MaxNotionalPerLeg: 25000,
			MaxADVFraction:    0.05,
			MinNotionalUSD:    100,
		},
		Filters:  FiltersConfig{MinADVUSD: 5_000_000, MinBarsRequired: 250, MaxGapRatio: 0.05},
		Costs:    CostsConfig{FeeBps: 10, SlippageBps: 5},
		Backtest: BacktestConfig{InitialEquityUSD: 100_000, BarsPerYear: 8760},
		Data:     DataConfig{Dir: "data", Source: "rest"},
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "1h", cfg.Timeframe)
	assert.Equal(t, "binance", cfg.Venue)
	assert.Equal(t, 200, cfg.Windows.OLSBeta)
	assert.Equal(t, 100, cfg.Windows.Zscore)
	assert.Equal(t, 2.0, cfg.Thresholds.ZIn)
	assert.Equal(t, 3.5, cfg.Thresholds.ZStop)
	assert.Equal(t, 5_000_000.0, cfg.Filters.MinADVUSD)
	assert.Equal(t, "rest", cfg.Data.Source)
	assert.Equal(t, 5*time.Minute, cfg.Notifications.Debounce)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.Grace)
	assert.True(t, cfg.Scheduler.Align)

	interval, err := cfg.BarInterval()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, interval)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := `
timeframe: 4h
symbols: { y: ETH/USDT, x: BTC/USDT }
pairs:
  - { name: ETH-BTC, asset_y: ETH/USDT, asset_x: BTC/USDT }
  - { name: SOL-BTC, asset_y: SOL/USDT, asset_x: BTC/USDT, enabled: false }
thresholds: { z_in: 2.5 }
strategy: { level_trigger: true }
costs: { fee_bps: 7 }
database: { dsn: "postgres://localhost/statarb" }
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "4h", cfg.Timeframe)
	assert.Equal(t, 2.5, cfg.Thresholds.ZIn)
	assert.Equal(t, 0.5, cfg.Thresholds.ZOut, "unset keys keep defaults")
	assert.Equal(t, "postgres://localhost/statarb", cfg.Database.DSN)

	th := cfg.MachineThresholds()
	assert.True(t, th.LevelTrigger)

	sizer := cfg.SizerConfig()
	assert.Equal(t, 7.0, sizer.FeeBps)
	assert.Equal(t, 5.0, sizer.SlippageBps)
	assert.Equal(t, 200.0, sizer.TargetSigmaUSD)

	pairs := cfg.TradingPairs()
	require.Len(t, pairs, 1, "disabled pairs are excluded")
	assert.Equal(t, "ETH-BTC", pairs[0].Name)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("STATARB_TIMEFRAME", "2h")
	t.Setenv("STATARB_RISK_TARGET_SIGMA_USD", "350")
	t.Setenv("STATARB_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "2h", cfg.Timeframe)
	assert.Equal(t, 350.0, cfg.Risk.TargetSigmaUSD)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadMergesPairsFile(t *testing.T) {
	dir := t.TempDir()
	pairsPath := filepath.Join(dir, "pairs.yaml")
	require.NoError(t, os.WriteFile(pairsPath, []byte(`
pairs:
  - { name: BNB-BTC, asset_y: BNB/USDT, asset_x: BTC/USDT }
`), 0o644))

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
pairs:
  - { name: ETH-BTC, asset_y: ETH/USDT, asset_x: BTC/USDT }
pairs_file: `+pairsPath+`
`), 0o644))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	require.Len(t, cfg.Pairs, 2)
	assert.Equal(t, "BNB-BTC", cfg.Pairs[1].Name)
}

func TestTradingPairsFallsBackToSymbols(t *testing.T) {
	cfg := baseConfig()
	cfg.Symbols = SymbolsConfig{Y: "ETH/USDT", X: "BTC/USDT"}

	pairs := cfg.TradingPairs()
	require.Len(t, pairs, 1)
	assert.Equal(t, "ETH-BTC", pairs[0].Name)
	assert.Equal(t, "ETH/USDT", pairs[0].AssetY)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"entry below exit", func(c *Config) { c.Thresholds.ZIn = 0.4 }, "z_in must exceed"},
		{"stop below entry", func(c *Config) { c.Thresholds.ZStop = 1.9 }, "z_stop must exceed"},
		{"negative exit band", func(c *Config) { c.Thresholds.ZOut = -0.1 }, "z_out cannot be negative"},
		{"tiny beta window", func(c *Config) { c.Windows.OLSBeta = 1 }, "ols_beta"},
		{"tiny z window", func(c *Config) { c.Windows.Zscore = 0 }, "zscore"},
		{"bad timeframe", func(c *Config) { c.Timeframe = "soon" }, "invalid timeframe"},
		{"unknown source", func(c *Config) { c.Data.Source = "sql" }, "data.source"},
		{"adv fraction above one", func(c *Config) { c.Risk.MaxADVFraction = 1.5 }, "max_adv_frac"},
		{"zero sigma target", func(c *Config) { c.Risk.TargetSigmaUSD = 0 }, "target_sigma_usd"},
		{"negative fees", func(c *Config) { c.Costs.FeeBps = -1 }, "costs"},
		{"gap ratio at one", func(c *Config) { c.Filters.MaxGapRatio = 1 }, "max_gap_ratio"},
		{"zero equity", func(c *Config) { c.Backtest.InitialEquityUSD = 0 }, "initial_equity_usd"},
		{"lonely symbol", func(c *Config) { c.Symbols.Y = "ETH/USDT" }, "set together"},
		{"identical symbols", func(c *Config) {
			c.Symbols = SymbolsConfig{Y: "ETH/USDT", X: "ETH/USDT"}
		}, "must differ"},
		{"unnamed pair", func(c *Config) {
			c.Pairs = []PairConfig{{AssetY: "ETH/USDT", AssetX: "BTC/USDT"}}
		}, "require a name"},
		{"duplicate pair", func(c *Config) {
			c.Pairs = []PairConfig{
				{Name: "ETH-BTC", AssetY: "ETH/USDT", AssetX: "BTC/USDT"},
				{Name: "ETH-BTC", AssetY: "ETH/USDT", AssetX: "SOL/USDT"},
			}
		}, "duplicate pair"},
		{"pair legs identical", func(c *Config) {
			c.Pairs = []PairConfig{{Name: "X", AssetY: "ETH/USDT", AssetX: "ETH/USDT"}}
		}, "legs must differ"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := baseConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}

	assert.NoError(t, func() error { c := baseConfig(); return c.Validate() }())
}

func TestParseTimeframe(t *testing.T) {
	t.Parallel()

	cases := map[string]time.Duration{
		"1m":  time.Minute,
		"15m": 15 * time.Minute,
		"1h":  time.Hour,
		"4h":  4 * time.Hour,
		"1d":  24 * time.Hour,
		"1w":  7 * 24 * time.Hour,
	}
	for tf, want := range cases {
		got, err := ParseTimeframe(tf)
		require.NoError(t, err, tf)
		assert.Equal(t, want, got, tf)
	}

	for _, tf := range []string{"", "h", "0h", "-1h", "7x", "1.5h"} {
		_, err := ParseTimeframe(tf)
		assert.Error(t, err, tf)
	}
}

func TestPairEnabledDefaultsTrue(t *testing.T) {
	t.Parallel()

	p := PairConfig{Name: "ETH-BTC", AssetY: "ETH/USDT", AssetX: "BTC/USDT"}
	assert.True(t, p.IsEnabled())

	off := false
	p.Enabled = &off
	assert.False(t, p.IsEnabled())
}

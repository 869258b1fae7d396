package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"stat-arb-signals/internal/logging"
	"stat-arb-signals/internal/risk"
	"stat-arb-signals/internal/strategy"
)

// Config materialises application configuration.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Logging       logging.Config      `mapstructure:"logging"`
	Timeframe     string              `mapstructure:"timeframe"`
	Venue         string              `mapstructure:"venue"`
	Symbols       SymbolsConfig       `mapstructure:"symbols"`
	Pairs         []PairConfig        `mapstructure:"pairs"`
	PairsFile     string              `mapstructure:"pairs_file"`
	Windows       WindowsConfig       `mapstructure:"windows"`
	Thresholds    strategy.Thresholds `mapstructure:"thresholds"`
	Strategy      StrategyConfig      `mapstructure:"strategy"`
	Risk          risk.Config         `mapstructure:"risk"`
	Filters       FiltersConfig       `mapstructure:"filters"`
	Costs         CostsConfig         `mapstructure:"costs"`
	Backtest      BacktestConfig      `mapstructure:"backtest"`
	Exchange      ExchangeConfig      `mapstructure:"exchange"`
	Data          DataConfig          `mapstructure:"data"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Journal       JournalConfig       `mapstructure:"journal"`
	State         StateConfig         `mapstructure:"state"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// SymbolsConfig names the two legs for single-pair commands.
type SymbolsConfig struct {
	Y string `mapstructure:"y"`
	X string `mapstructure:"x"`
}

// PairConfig describes one tradable pair. Enabled defaults to true when
// omitted.
type PairConfig struct {
	Name    string `mapstructure:"name" yaml:"name"`
	AssetY  string `mapstructure:"asset_y" yaml:"asset_y"`
	AssetX  string `mapstructure:"asset_x" yaml:"asset_x"`
	Enabled *bool  `mapstructure:"enabled" yaml:"enabled"`
}

// IsEnabled reports whether the pair participates in batch scans.
func (p PairConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// WindowsConfig sets the rolling estimation windows.
type WindowsConfig struct {
	OLSBeta int `mapstructure:"ols_beta"`
	Zscore  int `mapstructure:"zscore"`
}

// StrategyConfig holds switches that alter signal generation.
type StrategyConfig struct {
	LevelTrigger bool `mapstructure:"level_trigger"`
}

// FiltersConfig gates pairs on liquidity and data quality.
type FiltersConfig struct {
	MinADVUSD       float64 `mapstructure:"min_adv_usd"`
	MinBarsRequired int     `mapstructure:"min_bars_required"`
	MaxGapRatio     float64 `mapstructure:"max_gap_ratio"`
}

// CostsConfig models execution friction applied to every fill.
type CostsConfig struct {
	FeeBps      float64 `mapstructure:"fee_bps"`
	SlippageBps float64 `mapstructure:"slippage_bps"`
}

// BacktestConfig seeds the simulator.
type BacktestConfig struct {
	InitialEquityUSD float64 `mapstructure:"initial_equity_usd"`
	BarsPerYear      float64 `mapstructure:"bars_per_year"`
}

// ExchangeConfig covers venue REST access.
type ExchangeConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
	RateBurst int           `mapstructure:"rate_burst"`
	UserAgent string        `mapstructure:"user_agent"`
}

// DataConfig selects the candle source and local data directory.
type DataConfig struct {
	Dir    string `mapstructure:"dir"`
	Source string `mapstructure:"source"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// JournalConfig locates the paper-trade journal.
type JournalConfig struct {
	Path string `mapstructure:"path"`
}

// StateConfig locates the file fallback for per-pair machine state.
type StateConfig struct {
	Dir string `mapstructure:"dir"`
}

// NotificationsConfig defines alert routing.
type NotificationsConfig struct {
	SlackWebhook   string        `mapstructure:"slack_webhook"`
	DiscordWebhook string        `mapstructure:"discord_webhook"`
	TelegramToken  string        `mapstructure:"telegram_token"`
	TelegramChatID string        `mapstructure:"telegram_chat_id"`
	TelegramAPI    string        `mapstructure:"telegram_api"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Debounce       time.Duration `mapstructure:"debounce"`
}

// SchedulerConfig governs sweep cadence. A zero interval follows the
// bar timeframe.
type SchedulerConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	Align        bool          `mapstructure:"align"`
	Grace        time.Duration `mapstructure:"grace"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
}

// MetricsConfig exposes the Prometheus listener; empty disables it.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STATARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.PairsFile != "" {
		extra, err := loadPairsFile(cfg.PairsFile)
		if err != nil {
			return nil, err
		}
		cfg.Pairs = append(cfg.Pairs, extra...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "statarb")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("timeframe", "1h")
	v.SetDefault("venue", "binance")

	v.SetDefault("windows.ols_beta", 200)
	v.SetDefault("windows.zscore", 100)

	v.SetDefault("thresholds.z_in", 2.0)
	v.SetDefault("thresholds.z_out", 0.5)
	v.SetDefault("thresholds.z_stop", 3.5)

	v.SetDefault("strategy.level_trigger", false)

	v.SetDefault("risk.target_sigma_usd", 200.0)
	v.SetDefault("risk.max_notional_usd_per_leg", 25000.0)
	v.SetDefault("risk.max_adv_frac", 0.05)
	v.SetDefault("risk.min_notional_usd", 100.0)

	v.SetDefault("filters.min_adv_usd", 5_000_000.0)
	v.SetDefault("filters.min_bars_required", 250)
	v.SetDefault("filters.max_gap_ratio", 0.05)

	v.SetDefault("costs.fee_bps", 10.0)
	v.SetDefault("costs.slippage_bps", 5.0)

	v.SetDefault("backtest.initial_equity_usd", 100_000.0)
	v.SetDefault("backtest.bars_per_year", 8760.0)

	v.SetDefault("exchange.base_url", "https://api.binance.com")
	v.SetDefault("exchange.timeout", "10s")
	v.SetDefault("exchange.rate_limit", 10.0)
	v.SetDefault("exchange.rate_burst", 5)
	v.SetDefault("exchange.user_agent", "statarb/1.0")

	v.SetDefault("data.dir", "data")
	v.SetDefault("data.source", "rest")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("journal.path", "data/journal.db")
	v.SetDefault("state.dir", "data")

	v.SetDefault("notifications.telegram_api", "https://api.telegram.org")
	v.SetDefault("notifications.timeout", "10s")
	v.SetDefault("notifications.debounce", "5m")

	v.SetDefault("scheduler.interval", "0s")
	v.SetDefault("scheduler.align", true)
	v.SetDefault("scheduler.grace", "30s")
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("metrics.listen", "")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

func loadPairsFile(path string) ([]PairConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pairs file: %w", err)
	}
	var doc struct {
		Pairs []PairConfig `yaml:"pairs"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse pairs file %s: %w", path, err)
	}
	return doc.Pairs, nil
}

// ParseTimeframe converts a venue timeframe token such as 15m, 1h, or 1d
// into a duration.
func ParseTimeframe(tf string) (time.Duration, error) {
	if len(tf) < 2 {
		return 0, fmt.Errorf("invalid timeframe %q", tf)
	}
	n, err := strconv.Atoi(tf[:len(tf)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q", tf)
	}
	switch tf[len(tf)-1] {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid timeframe %q", tf)
	}
}

// BarInterval returns the duration of one bar of the configured timeframe.
func (c *Config) BarInterval() (time.Duration, error) {
	return ParseTimeframe(c.Timeframe)
}

// MachineThresholds assembles the state-machine limits, folding the
// level-trigger switch in from the strategy section.
func (c *Config) MachineThresholds() strategy.Thresholds {
	th := c.Thresholds
	th.LevelTrigger = c.Strategy.LevelTrigger
	return th
}

// SizerConfig assembles position sizing inputs, folding execution costs
// in from the costs section.
func (c *Config) SizerConfig() risk.Config {
	r := c.Risk
	r.FeeBps = c.Costs.FeeBps
	r.SlippageBps = c.Costs.SlippageBps
	return r
}

// TradingPairs returns the enabled pair universe. With no pairs block
// configured it falls back to the single symbols pair.
func (c *Config) TradingPairs() []PairConfig {
	var out []PairConfig
	for _, p := range c.Pairs {
		if p.IsEnabled() {
			out = append(out, p)
		}
	}
	if len(out) == 0 && c.Symbols.Y != "" && c.Symbols.X != "" {
		out = append(out, PairConfig{
			Name:   pairName(c.Symbols.Y, c.Symbols.X),
			AssetY: c.Symbols.Y,
			AssetX: c.Symbols.X,
		})
	}
	return out
}

func pairName(ySym, xSym string) string {
	yBase, _, _ := strings.Cut(ySym, "/")
	xBase, _, _ := strings.Cut(xSym, "/")
	return yBase + "-" + xBase
}

// Validate performs sanity checks on the configuration values. Any
// failure is fatal at startup.
func (c *Config) Validate() error {
	if _, err := c.BarInterval(); err != nil {
		return err
	}
	if c.Windows.OLSBeta < 2 {
		return fmt.Errorf("windows.ols_beta must be at least 2")
	}
	if c.Windows.Zscore < 2 {
		return fmt.Errorf("windows.zscore must be at least 2")
	}
	if c.Thresholds.ZOut < 0 {
		return fmt.Errorf("thresholds.z_out cannot be negative")
	}
	if c.Thresholds.ZIn <= c.Thresholds.ZOut {
		return fmt.Errorf("thresholds.z_in must exceed thresholds.z_out")
	}
	if c.Thresholds.ZStop <= c.Thresholds.ZIn {
		return fmt.Errorf("thresholds.z_stop must exceed thresholds.z_in")
	}
	if c.Risk.TargetSigmaUSD <= 0 {
		return fmt.Errorf("risk.target_sigma_usd must be greater than zero")
	}
	if c.Risk.MaxNotionalPerLeg <= 0 {
		return fmt.Errorf("risk.max_notional_usd_per_leg must be greater than zero")
	}
	if c.Risk.MinNotionalUSD < 0 {
		return fmt.Errorf("risk.min_notional_usd cannot be negative")
	}
	if c.Risk.MaxADVFraction < 0 || c.Risk.MaxADVFraction > 1 {
		return fmt.Errorf("risk.max_adv_frac must lie in [0, 1]")
	}
	if c.Costs.FeeBps < 0 || c.Costs.SlippageBps < 0 {
		return fmt.Errorf("costs cannot be negative")
	}
	if c.Filters.MinADVUSD < 0 {
		return fmt.Errorf("filters.min_adv_usd cannot be negative")
	}
	if c.Filters.MaxGapRatio < 0 || c.Filters.MaxGapRatio >= 1 {
		return fmt.Errorf("filters.max_gap_ratio must lie in [0, 1)")
	}
	if c.Backtest.InitialEquityUSD <= 0 {
		return fmt.Errorf("backtest.initial_equity_usd must be greater than zero")
	}
	if c.Backtest.BarsPerYear <= 0 {
		return fmt.Errorf("backtest.bars_per_year must be greater than zero")
	}
	if c.Data.Source != "rest" && c.Data.Source != "csv" {
		return fmt.Errorf("data.source must be rest or csv, got %q", c.Data.Source)
	}
	if (c.Symbols.Y == "") != (c.Symbols.X == "") {
		return fmt.Errorf("symbols.y and symbols.x must be set together")
	}
	if c.Symbols.Y != "" && c.Symbols.Y == c.Symbols.X {
		return fmt.Errorf("symbols.y and symbols.x must differ")
	}
	if c.Scheduler.Interval < 0 || c.Scheduler.Grace < 0 || c.Scheduler.StartupDelay < 0 {
		return fmt.Errorf("scheduler durations cannot be negative")
	}
	if c.Notifications.Debounce < 0 {
		return fmt.Errorf("notifications.debounce cannot be negative")
	}
	return c.validatePairs()
}

func (c *Config) validatePairs() error {
	seen := make(map[string]struct{}, len(c.Pairs))
	for _, p := range c.Pairs {
		if p.Name == "" {
			return fmt.Errorf("pairs entries require a name")
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("duplicate pair name %q", p.Name)
		}
		seen[p.Name] = struct{}{}
		if p.AssetY == "" || p.AssetX == "" {
			return fmt.Errorf("pair %s: asset_y and asset_x are required", p.Name)
		}
		if p.AssetY == p.AssetX {
			return fmt.Errorf("pair %s: legs must differ", p.Name)
		}
	}
	return nil
}

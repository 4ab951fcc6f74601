// Package config loads the tradewind YAML configuration and applies
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the tradewind system.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Logging  Logging        `yaml:"logging"`
	Broker   Broker         `yaml:"broker"`
	Gather   GatherConfig   `yaml:"gather"`
	Backtest BacktestConfig `yaml:"backtest"`
	Live     LiveConfig     `yaml:"live"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Broker holds endpoint and transport parameters for the Binance spot API.
// Credentials are environment-only and never appear in the YAML file.
type Broker struct {
	BaseURL         string `yaml:"base_url"`
	RecvWindowMS    int    `yaml:"recv_window_ms"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	MaxRetries      int    `yaml:"max_retries"`
	RetryBaseMS     int    `yaml:"retry_base_ms"`

	APIKey    string `yaml:"-"`
	APISecret string `yaml:"-"`
}

// GatherConfig controls kline backfill.
type GatherConfig struct {
	Symbols         []string `yaml:"symbols"`
	Interval        string   `yaml:"interval"`
	StartUTC        string   `yaml:"start_utc"`
	EndUTC          string   `yaml:"end_utc"`
	LimitPerRequest int      `yaml:"limit_per_request"`
	MaxWorkers      int      `yaml:"max_workers"`
}

// BacktestConfig defines accounting and risk-report parameters.
type BacktestConfig struct {
	CostPerTurnover float64 `yaml:"cost_per_turnover"`
	ExecutionLag    int     `yaml:"execution_lag"`
	BarsPerYear     int     `yaml:"bars_per_year"`
	VaRAlpha        float64 `yaml:"var_alpha"`
}

// LiveConfig drives the live reconciliation loop.
type LiveConfig struct {
	Symbol               string  `yaml:"symbol"`
	Interval             string  `yaml:"interval"`
	LoopSleepSeconds     int     `yaml:"loop_sleep_seconds"`
	OrderNotionalUSDT    float64 `yaml:"order_notional_usdt"`
	FarBPS               float64 `yaml:"far_bps"`
	MaxOpenOrders        int     `yaml:"max_open_orders"`
	CancelStaleAfterMin  int     `yaml:"cancel_stale_after_minutes"`
	ReconcileEveryNLoops int     `yaml:"reconcile_every_n_loops"`
	MinNotionalFloorUSDT float64 `yaml:"min_notional_usdt"`
	TradesCheckLimit     int     `yaml:"trades_check_limit"`
	StrategyName         string  `yaml:"strategy"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Broker.BaseURL == "" {
		cfg.Broker.BaseURL = "https://testnet.binance.vision"
	}
	if cfg.Broker.RecvWindowMS == 0 {
		cfg.Broker.RecvWindowMS = 5000
	}
	if cfg.Broker.TimeoutSeconds == 0 {
		cfg.Broker.TimeoutSeconds = 10
	}
	if cfg.Broker.RateLimitPerMin == 0 {
		cfg.Broker.RateLimitPerMin = 400
	}
	if cfg.Broker.MaxRetries == 0 {
		cfg.Broker.MaxRetries = 5
	}
	if cfg.Broker.RetryBaseMS == 0 {
		cfg.Broker.RetryBaseMS = 500
	}
	if cfg.Gather.LimitPerRequest == 0 {
		cfg.Gather.LimitPerRequest = 1000
	}
	if cfg.Gather.MaxWorkers == 0 {
		cfg.Gather.MaxWorkers = 4
	}
	if cfg.Backtest.ExecutionLag == 0 {
		cfg.Backtest.ExecutionLag = 1
	}
	if cfg.Backtest.BarsPerYear == 0 {
		cfg.Backtest.BarsPerYear = 365 * 24 * 4 // 15m bars
	}
	if cfg.Backtest.VaRAlpha == 0 {
		cfg.Backtest.VaRAlpha = 0.01
	}
	if cfg.Live.ReconcileEveryNLoops == 0 {
		cfg.Live.ReconcileEveryNLoops = 1
	}
	if cfg.Live.MinNotionalFloorUSDT == 0 {
		cfg.Live.MinNotionalFloorUSDT = 5.0
	}
	if cfg.Live.TradesCheckLimit == 0 {
		cfg.Live.TradesCheckLimit = 10
	}
	if cfg.Live.MaxOpenOrders == 0 {
		cfg.Live.MaxOpenOrders = 1
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TRADEWIND_BASE_URL"); v != "" {
		cfg.Broker.BaseURL = v
	}
	if v := os.Getenv("TRADEWIND_SYMBOL"); v != "" {
		cfg.Live.Symbol = v
	}
	if v := os.Getenv("TRADEWIND_LOOP_SLEEP_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Live.LoopSleepSeconds = n
		}
	}

	// Credentials are environment-only.
	if v := os.Getenv("BINANCE_TESTNET_API_KEY"); v != "" {
		cfg.Broker.APIKey = v
	}
	if v := os.Getenv("BINANCE_TESTNET_API_SECRET"); v != "" {
		cfg.Broker.APISecret = v
	}
}

// Validate checks structural invariants that every command depends on.
// Command-specific requirements (e.g. credentials for the live loop) are
// checked by the commands themselves.
func (c *Config) Validate() error {
	if c.Broker.TimeoutSeconds <= 0 {
		return fmt.Errorf("broker.timeout_seconds must be positive, got %d", c.Broker.TimeoutSeconds)
	}
	if c.Broker.MaxRetries < 1 {
		return fmt.Errorf("broker.max_retries must be >= 1, got %d", c.Broker.MaxRetries)
	}
	if c.Backtest.ExecutionLag < 0 {
		return fmt.Errorf("backtest.execution_lag must be >= 0, got %d", c.Backtest.ExecutionLag)
	}
	if c.Backtest.CostPerTurnover < 0 {
		return fmt.Errorf("backtest.cost_per_turnover must be >= 0, got %f", c.Backtest.CostPerTurnover)
	}
	if c.Backtest.VaRAlpha <= 0 || c.Backtest.VaRAlpha >= 1 {
		return fmt.Errorf("backtest.var_alpha must be in (0,1), got %f", c.Backtest.VaRAlpha)
	}
	if c.Live.FarBPS < 0 {
		return fmt.Errorf("live.far_bps must be >= 0, got %f", c.Live.FarBPS)
	}
	if c.Live.OrderNotionalUSDT < 0 {
		return fmt.Errorf("live.order_notional_usdt must be >= 0, got %f", c.Live.OrderNotionalUSDT)
	}
	return nil
}

// RequireCredentials returns an error when the broker API key or secret is
// missing. The live loop calls this at startup; research commands do not.
func (c *Config) RequireCredentials() error {
	if c.Broker.APIKey == "" || c.Broker.APISecret == "" {
		return fmt.Errorf("missing BINANCE_TESTNET_API_KEY / BINANCE_TESTNET_API_SECRET in environment")
	}
	return nil
}

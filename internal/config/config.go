package config

import (
	"errors"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Pool      PoolConfig      `yaml:"pool"`
	Data      DataConfig      `yaml:"data"`
	Cache     CacheConfig     `yaml:"cache"`
	Output    OutputConfig    `yaml:"output"`
	Timescale TimescaleConfig `yaml:"timescale"`
	Feed      FeedConfig      `yaml:"feed"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telegram  TelegramConfig  `yaml:"telegram"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type StrategyConfig struct {
	InitialNotionalUSD       float64 `yaml:"initial_notional_usd"`
	Leverage                 float64 `yaml:"leverage"`
	RebalanceThresholdPct    float64 `yaml:"rebalance_threshold_pct"`
	MinAdjustmentNotionalUSD float64 `yaml:"min_adjustment_notional_usd"`
	SkipOnInsufficientMargin bool    `yaml:"skip_on_insufficient_margin"`
}

type PoolConfig struct {
	Address        string  `yaml:"address"`
	FeeRate        float64 `yaml:"fee_rate"`
	Token0Decimals int     `yaml:"token0_decimals"`
	Token1Decimals int     `yaml:"token1_decimals"`
}

type DataConfig struct {
	BinanceBaseURL     string        `yaml:"binance_base_url"`
	BinanceSymbol      string        `yaml:"binance_symbol"`
	HyperliquidBaseURL string        `yaml:"hyperliquid_base_url"`
	HyperliquidCoin    string        `yaml:"hyperliquid_coin"`
	TheGraphURL        string        `yaml:"thegraph_url"`
	Start              time.Time     `yaml:"start"`
	End                time.Time     `yaml:"end"`
	Timeout            time.Duration `yaml:"timeout"`
}

type CacheConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SQLitePath string `yaml:"sqlite_path"`
}

type OutputConfig struct {
	CSVPath string `yaml:"csv_path"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type FeedConfig struct {
	WSURL          string        `yaml:"ws_url"`
	EthRPCURL      string        `yaml:"eth_rpc_url"`
	Interval       time.Duration `yaml:"interval"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Strategy.RebalanceThresholdPct == 0 {
		cfg.Strategy.RebalanceThresholdPct = 0.10
	}
	if cfg.Strategy.MinAdjustmentNotionalUSD == 0 {
		cfg.Strategy.MinAdjustmentNotionalUSD = 0.01
	}
	if cfg.Pool.FeeRate == 0 {
		cfg.Pool.FeeRate = 0.003
	}
	if cfg.Pool.Token0Decimals == 0 {
		cfg.Pool.Token0Decimals = 6
	}
	if cfg.Pool.Token1Decimals == 0 {
		cfg.Pool.Token1Decimals = 18
	}
	if cfg.Data.BinanceBaseURL == "" {
		cfg.Data.BinanceBaseURL = "https://api.binance.com"
	}
	if cfg.Data.BinanceSymbol == "" {
		cfg.Data.BinanceSymbol = "ETHUSDT"
	}
	if cfg.Data.HyperliquidBaseURL == "" {
		cfg.Data.HyperliquidBaseURL = "https://api.hyperliquid.xyz"
	}
	if cfg.Data.HyperliquidCoin == "" {
		cfg.Data.HyperliquidCoin = "ETH"
	}
	if cfg.Data.Timeout == 0 {
		cfg.Data.Timeout = 30 * time.Second
	}
	if cfg.Cache.SQLitePath == "" {
		cfg.Cache.SQLitePath = "data/univ2-hedge-backtest.db"
	}
	if cfg.Output.CSVPath == "" {
		cfg.Output.CSVPath = "result_univ2_hl_hedge.csv"
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
	if cfg.Feed.WSURL == "" {
		cfg.Feed.WSURL = "wss://api.hyperliquid.xyz/ws"
	}
	if cfg.Feed.Interval == 0 {
		cfg.Feed.Interval = time.Minute
	}
	if cfg.Feed.ReconnectDelay == 0 {
		cfg.Feed.ReconnectDelay = 3 * time.Second
	}
	if cfg.Feed.PingInterval == 0 {
		cfg.Feed.PingInterval = 30 * time.Second
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9091"
	}
}

func validate(cfg *Config) error {
	if cfg.Strategy.InitialNotionalUSD <= 0 {
		return errors.New("strategy.initial_notional_usd must be > 0")
	}
	if cfg.Strategy.Leverage < 1 {
		return errors.New("strategy.leverage must be >= 1")
	}
	if cfg.Strategy.RebalanceThresholdPct <= 0 {
		return errors.New("strategy.rebalance_threshold_pct must be > 0")
	}
	if cfg.Pool.Address == "" {
		return errors.New("pool.address is required")
	}
	if !common.IsHexAddress(cfg.Pool.Address) {
		return errors.New("pool.address is not a valid address")
	}
	if cfg.Pool.FeeRate <= 0 || cfg.Pool.FeeRate >= 1 {
		return errors.New("pool.fee_rate must be in (0, 1)")
	}
	if cfg.Timescale.Enabled && cfg.Timescale.DSN == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	return nil
}

// PoolAddress returns the checksummed pool address. Call after Load has
// validated the config.
func (c *Config) PoolAddress() common.Address {
	return common.HexToAddress(c.Pool.Address)
}

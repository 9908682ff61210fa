package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"univ2-hedge-backtest/internal/binance"
	"univ2-hedge-backtest/internal/config"
	"univ2-hedge-backtest/internal/engine"
	"univ2-hedge-backtest/internal/hl"
	"univ2-hedge-backtest/internal/logging"
	"univ2-hedge-backtest/internal/lp"
	"univ2-hedge-backtest/internal/market"
	"univ2-hedge-backtest/internal/report"
	"univ2-hedge-backtest/internal/state"
	"univ2-hedge-backtest/internal/state/sqlite"
	"univ2-hedge-backtest/internal/strategy"
	"univ2-hedge-backtest/internal/thegraph"
	"univ2-hedge-backtest/internal/timescale"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	log := logging.New(cfg.Log)
	log.Info("config loaded", zap.String("path", *configPath))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("backtest failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	series, err := loadSeries(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("load market data: %w", err)
	}
	log.Info("observation series built", zap.Int("steps", series.Len()))

	params := strategy.Params{
		InitialNotional:       cfg.Strategy.InitialNotionalUSD,
		Leverage:              cfg.Strategy.Leverage,
		RebalanceThresholdPct: cfg.Strategy.RebalanceThresholdPct,
		MinAdjustmentNotional: cfg.Strategy.MinAdjustmentNotionalUSD,
	}
	poolCfg := lp.Config{
		FeeRate:        cfg.Pool.FeeRate,
		Token0Decimals: cfg.Pool.Token0Decimals,
		Token1Decimals: cfg.Pool.Token1Decimals,
	}
	eng, err := engine.New(params, poolCfg, log)
	if err != nil {
		return err
	}
	eng.SkipOnInsufficientMargin = cfg.Strategy.SkipOnInsufficientMargin

	records, err := eng.Run(series)
	if err != nil {
		return err
	}

	summary, err := report.Summarize(records)
	if err != nil {
		return err
	}
	fmt.Println(summary.String())

	if cfg.Output.CSVPath != "" {
		if err := report.WriteCSVFile(cfg.Output.CSVPath, records); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		log.Info("trajectory written", zap.String("path", cfg.Output.CSVPath))
	}

	return persistSteps(ctx, cfg, log, records)
}

func loadSeries(ctx context.Context, cfg *config.Config, log *zap.Logger) (*market.Series, error) {
	cache, closeCache, err := openCache(cfg, log)
	if err != nil {
		return nil, err
	}
	defer closeCache()

	start, end := cfg.Data.Start, cfg.Data.End
	if !start.Before(end) {
		return nil, fmt.Errorf("data.start %s must be before data.end %s", start, end)
	}

	var prices []market.PricePoint
	priceKey := state.DatasetKey("binance", cfg.Data.BinanceSymbol, start, end)
	if err := loadCached(ctx, cache, priceKey, &prices, func() (any, error) {
		client := binance.New(cfg.Data.BinanceBaseURL, cfg.Data.Timeout, log)
		return client.HourlyPrices(ctx, cfg.Data.BinanceSymbol, start, end)
	}); err != nil {
		return nil, fmt.Errorf("binance prices: %w", err)
	}

	var fundings []market.FundingPoint
	fundingKey := state.DatasetKey("hyperliquid", cfg.Data.HyperliquidCoin, start, end)
	if err := loadCached(ctx, cache, fundingKey, &fundings, func() (any, error) {
		client := hl.New(cfg.Data.HyperliquidBaseURL, cfg.Data.Timeout, log)
		return client.FundingHistory(ctx, cfg.Data.HyperliquidCoin, start, end)
	}); err != nil {
		return nil, fmt.Errorf("hyperliquid funding: %w", err)
	}

	var pools []market.PoolPoint
	poolKey := state.DatasetKey("thegraph", cfg.Pool.Address, start, end)
	if err := loadCached(ctx, cache, poolKey, &pools, func() (any, error) {
		client := thegraph.New(cfg.Data.TheGraphURL, os.Getenv("THEGRAPH_KEY"), cfg.Data.Timeout, log)
		return client.PoolHistory(ctx, cfg.PoolAddress(), cfg.Pool.FeeRate, start, end)
	}); err != nil {
		return nil, fmt.Errorf("pool history: %w", err)
	}

	obs := market.Join(prices, fundings, pools)
	log.Info("datasets joined",
		zap.Int("prices", len(prices)),
		zap.Int("fundings", len(fundings)),
		zap.Int("pool_days", len(pools)),
		zap.Int("observations", len(obs)))
	return market.NewSeries(obs)
}

func openCache(cfg *config.Config, log *zap.Logger) (*state.DatasetCache, func(), error) {
	if !cfg.Cache.Enabled {
		return nil, func() {}, nil
	}
	store, err := sqlite.New(cfg.Cache.SQLitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open cache: %w", err)
	}
	cache := state.NewDatasetCache(store, log)
	return cache, func() { _ = store.Close() }, nil
}

// loadCached fills dest from the cache when possible, otherwise fetches
// and stores the result. dest must be a pointer to the slice type that
// fetch returns.
func loadCached[T any](ctx context.Context, cache *state.DatasetCache, key string, dest *T, fetch func() (any, error)) error {
	if cache != nil {
		hit, err := cache.Load(ctx, key, dest)
		if err != nil {
			return err
		}
		if hit {
			return nil
		}
	}
	fetched, err := fetch()
	if err != nil {
		return err
	}
	value, ok := fetched.(T)
	if !ok {
		return fmt.Errorf("unexpected dataset type %T for key %s", fetched, key)
	}
	*dest = value
	if cache != nil {
		return cache.Save(ctx, key, value)
	}
	return nil
}

func persistSteps(ctx context.Context, cfg *config.Config, log *zap.Logger, records []engine.StepRecord) error {
	if !cfg.Timescale.Enabled {
		return nil
	}
	runID := fmt.Sprintf("backtest-%s", time.Now().UTC().Format("20060102T150405Z"))
	writer, err := timescale.New(cfg.Timescale, runID, log)
	if err != nil {
		return fmt.Errorf("timescale: %w", err)
	}
	defer func() { _ = writer.Close() }()
	if err := writer.WriteSteps(ctx, records); err != nil {
		return err
	}
	log.Info("steps persisted", zap.String("run_id", runID), zap.Int("steps", len(records)))
	return nil
}

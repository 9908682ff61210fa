package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"univ2-hedge-backtest/internal/alerts"
	"univ2-hedge-backtest/internal/config"
	"univ2-hedge-backtest/internal/engine"
	"univ2-hedge-backtest/internal/feed"
	"univ2-hedge-backtest/internal/logging"
	"univ2-hedge-backtest/internal/lp"
	"univ2-hedge-backtest/internal/metrics"
	"univ2-hedge-backtest/internal/strategy"
	"univ2-hedge-backtest/internal/timescale"

	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// cmd/live runs the strategy against live market data without placing
// orders: the same engine as the backtest, fed by the Hyperliquid
// websocket and on-chain pool reads.
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

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("live run terminated", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	m := metrics.NewNoop()
	if cfg.Metrics.Enabled {
		prom := metrics.NewPrometheus()
		m = prom.Metrics
		go serveMetrics(ctx, cfg.Metrics.ListenAddr, prom.Handler(), log)
	}

	tg := alerts.NewTelegram(cfg.Telegram, log)

	eth, err := ethclient.DialContext(ctx, cfg.Feed.EthRPCURL)
	if err != nil {
		return fmt.Errorf("dial eth rpc: %w", err)
	}
	defer eth.Close()

	ws := feed.NewWSClient(cfg.Feed.WSURL, cfg.Feed.ReconnectDelay, cfg.Feed.PingInterval, log)
	ws.OnReconnect(m.FeedReconnects.Inc)
	onchain := feed.NewOnchainReader(eth, cfg.PoolAddress())
	live := feed.NewLive(ws, onchain, cfg.Data.HyperliquidCoin, cfg.Feed.Interval,
		cfg.Pool.FeeRate, cfg.Pool.Token0Decimals, cfg.Pool.Token1Decimals, log)

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

	runID := fmt.Sprintf("live-%s", time.Now().UTC().Format("20060102T150405Z"))
	writer, err := timescale.New(cfg.Timescale, runID, log)
	if err != nil {
		return fmt.Errorf("timescale: %w", err)
	}
	if writer != nil {
		defer func() { _ = writer.Close() }()
		writer.Start(ctx)
	}

	if err := live.Start(ctx); err != nil {
		return fmt.Errorf("start feed: %w", err)
	}
	log.Info("live shadow run started", zap.String("run_id", runID),
		zap.Duration("interval", cfg.Feed.Interval))

	liquidationAlerted := false
	for obs := range live.Observations() {
		rec, err := eng.Step(obs)
		if err != nil {
			if sendErr := tg.Send(ctx, fmt.Sprintf("live run halted: %v", err)); sendErr != nil {
				log.Warn("halt alert failed", zap.Error(sendErr))
			}
			return err
		}
		m.StepsProcessed.Inc()
		if rec.Action.Kind != strategy.ActionNone {
			m.Rebalances.Inc()
		}
		if rec.Skipped.Kind != strategy.ActionNone {
			m.AdjustmentsSkipped.Inc()
			tg.NotifyRejectedRebalance(ctx, rec.Skipped.Size, obs.ETHPrice)
		}
		if rec.HedgeLiquidatedWhileExposed {
			m.UnhedgedSteps.Inc()
			if !liquidationAlerted {
				liquidationAlerted = true
				tg.NotifyLiquidation(ctx, obs.ETHPrice, rec.LP.Token1Amount)
			}
		}
		writer.EnqueueStep(rec)
		log.Info("step",
			zap.Time("timestamp", rec.Timestamp),
			zap.Float64("eth_price", rec.ETHPrice),
			zap.Float64("equity", rec.Equity),
			zap.String("action", string(rec.Action.Kind)))
	}
	return ctx.Err()
}

func serveMetrics(ctx context.Context, addr string, handler http.Handler, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	log.Info("metrics listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn("metrics server failed", zap.Error(err))
	}
}

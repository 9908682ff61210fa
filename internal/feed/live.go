package feed

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"sync"
	"time"

	"univ2-hedge-backtest/internal/market"

	"go.uber.org/zap"
)

// Live merges the Hyperliquid perp context stream with periodic on-chain
// pair reads into a stream of observations. Pool volume is not observable
// over JSON-RPC, so live observations carry zero volume and LP fees do not
// accrue in shadow mode.
type Live struct {
	ws       *WSClient
	onchain  *OnchainReader
	coin     string
	interval time.Duration
	feeRate  float64
	decimals [2]int
	log      *zap.Logger

	mu      sync.RWMutex
	markPx  float64
	funding float64

	out chan market.Observation
}

func NewLive(ws *WSClient, onchain *OnchainReader, coin string, interval time.Duration, feeRate float64, token0Decimals, token1Decimals int, log *zap.Logger) *Live {
	return &Live{
		ws:       ws,
		onchain:  onchain,
		coin:     coin,
		interval: interval,
		feeRate:  feeRate,
		decimals: [2]int{token0Decimals, token1Decimals},
		log:      log,
		out:      make(chan market.Observation, 16),
	}
}

// Observations yields one observation per interval tick. The channel is
// closed when Start's context is cancelled.
func (l *Live) Observations() <-chan market.Observation {
	return l.out
}

func (l *Live) Start(ctx context.Context) error {
	if err := l.ws.Connect(ctx); err != nil {
		return err
	}
	sub := map[string]any{
		"method": "subscribe",
		"subscription": map[string]any{
			"type": "activeAssetCtx",
			"coin": l.coin,
		},
	}
	if err := l.ws.Subscribe(ctx, sub); err != nil {
		return err
	}
	go func() {
		_ = l.ws.Run(ctx, l.handleMessage)
	}()
	go l.tickLoop(ctx)
	return nil
}

func (l *Live) tickLoop(ctx context.Context) {
	defer close(l.out)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			obs, ok := l.observe(ctx, now)
			if !ok {
				continue
			}
			select {
			case l.out <- obs:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (l *Live) observe(ctx context.Context, now time.Time) (market.Observation, bool) {
	l.mu.RLock()
	mark := l.markPx
	funding := l.funding
	l.mu.RUnlock()
	if mark <= 0 {
		l.log.Debug("no mark price yet, skipping tick")
		return market.Observation{}, false
	}
	readCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := l.onchain.ReadPool(readCtx)
	cancel()
	if err != nil {
		l.log.Warn("pool read failed", zap.Error(err))
		return market.Observation{}, false
	}
	if poolPrice := pool.Price(l.decimals[0], l.decimals[1]); poolPrice > 0 && math.Abs(poolPrice-mark)/mark > 0.01 {
		l.log.Warn("pool price diverges from perp mark",
			zap.Float64("pool", poolPrice), zap.Float64("mark", mark))
	}
	// The stream reports the current hourly funding rate; scale it to
	// the observation interval.
	scaled := funding * l.interval.Hours()
	obs := market.Observation{
		Timestamp:     now.UTC().Truncate(time.Second),
		ETHPrice:      mark,
		FundingRate:   scaled,
		PoolTVL:       pool.TVL(l.decimals[0]),
		PoolVolume:    0,
		PoolFeeRate:   l.feeRate,
		PoolLiquidity: pool.TotalSupply,
	}
	if !obs.Valid() {
		l.log.Warn("dropping invalid live observation",
			zap.Float64("mark", mark), zap.Float64("tvl", obs.PoolTVL))
		return market.Observation{}, false
	}
	return obs, true
}

type assetCtxMsg struct {
	Channel string `json:"channel"`
	Data    struct {
		Coin string `json:"coin"`
		Ctx  struct {
			Funding string `json:"funding"`
			MarkPx  string `json:"markPx"`
		} `json:"ctx"`
	} `json:"data"`
}

func (l *Live) handleMessage(raw json.RawMessage) {
	var msg assetCtxMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if msg.Channel != "activeAssetCtx" || msg.Data.Coin != l.coin {
		return
	}
	mark, err := strconv.ParseFloat(msg.Data.Ctx.MarkPx, 64)
	if err != nil || mark <= 0 {
		return
	}
	funding, err := strconv.ParseFloat(msg.Data.Ctx.Funding, 64)
	if err != nil {
		return
	}
	l.mu.Lock()
	l.markPx = mark
	l.funding = funding
	l.mu.Unlock()
}

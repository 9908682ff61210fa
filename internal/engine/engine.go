package engine

import (
	"errors"
	"fmt"
	"time"

	"univ2-hedge-backtest/internal/hedge"
	"univ2-hedge-backtest/internal/lp"
	"univ2-hedge-backtest/internal/market"
	"univ2-hedge-backtest/internal/strategy"

	"go.uber.org/zap"
)

// Engine folds an observation series through the two position legs and
// the rebalancing policy, one step per observation, and accumulates the
// trajectory. A single engine instance owns both entities for the run;
// everything is sequential and deterministic.
type Engine struct {
	params  strategy.Params
	poolCfg lp.Config
	log     *zap.Logger

	// SkipOnInsufficientMargin turns the default hard stop on an
	// unfundable hedge increase into a logged no-op for that step.
	SkipOnInsufficientMargin bool

	lp     *lp.Position
	hedge  *hedge.Account
	booted bool
}

func New(params strategy.Params, poolCfg lp.Config, log *zap.Logger) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		params:  params,
		poolCfg: poolCfg,
		log:     log,
		lp:      lp.New(poolCfg),
		hedge:   hedge.New(params.Leverage),
	}, nil
}

// Run executes the whole series. The returned records hold one entry per
// observation, including the one that produced a hard stop; the error,
// if any, carries the timestamp and parameters so the fault scenario is
// reproducible.
func (e *Engine) Run(series *market.Series) ([]StepRecord, error) {
	if series == nil || series.Len() == 0 {
		return nil, errors.New("engine requires a non-empty observation series")
	}
	records := make([]StepRecord, 0, series.Len())
	for i := 0; i < series.Len(); i++ {
		rec, err := e.Step(series.At(i))
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Step applies a single observation and returns its record. The first
// call boots both legs from the initial allocation; later calls revalue,
// mark to market, consult the policy and apply its action.
func (e *Engine) Step(obs market.Observation) (StepRecord, error) {
	if !e.booted {
		return e.boot(obs)
	}

	if err := e.lp.Revalue(obs); err != nil {
		return StepRecord{}, e.fault(obs.Timestamp, err)
	}
	if liquidated := e.hedge.MarkToMarket(obs.ETHPrice, obs.FundingRate); liquidated {
		e.log.Warn("hedge account liquidated",
			zap.Time("timestamp", obs.Timestamp),
			zap.Float64("eth_price", obs.ETHPrice))
	}

	action := strategy.NoAction()
	skipped := strategy.NoAction()
	if !e.hedge.Liquidated() {
		var err error
		action, err = strategy.Decide(
			e.lp.Token1Amount(),
			e.hedge.PositionSize(),
			e.hedge.MarginBalance(),
			obs.ETHPrice,
			e.params,
		)
		if err != nil {
			if !errors.Is(err, strategy.ErrInsufficientMargin) {
				return StepRecord{}, e.fault(obs.Timestamp, err)
			}
			if !e.SkipOnInsufficientMargin {
				return StepRecord{}, e.fault(obs.Timestamp, err)
			}
			e.log.Warn("skipping unfundable hedge increase",
				zap.Time("timestamp", obs.Timestamp),
				zap.Error(err))
			skipped = action
			action = strategy.NoAction()
		}
		if err := e.apply(action, obs.ETHPrice); err != nil {
			return StepRecord{}, e.fault(obs.Timestamp, err)
		}
	}

	rec := e.record(obs, action)
	rec.Skipped = skipped
	return rec, nil
}

func (e *Engine) boot(obs market.Observation) (StepRecord, error) {
	alloc, err := strategy.Allocate(e.params.InitialNotional, e.params.Leverage, obs.ETHPrice)
	if err != nil {
		return StepRecord{}, e.fault(obs.Timestamp, err)
	}
	if err := e.lp.Open(alloc.LPDeposit, obs.ETHPrice); err != nil {
		return StepRecord{}, e.fault(obs.Timestamp, err)
	}
	if err := e.hedge.Deposit(alloc.Margin); err != nil {
		return StepRecord{}, e.fault(obs.Timestamp, err)
	}
	if err := e.hedge.OpenShort(alloc.ShortSize, obs.ETHPrice); err != nil {
		return StepRecord{}, e.fault(obs.Timestamp, err)
	}
	e.booted = true
	e.log.Info("booted position",
		zap.Time("timestamp", obs.Timestamp),
		zap.Float64("lp_deposit", alloc.LPDeposit),
		zap.Float64("hedge_margin", alloc.Margin),
		zap.Float64("short_size", alloc.ShortSize),
		zap.Float64("eth_price", obs.ETHPrice))
	return e.record(obs, strategy.Action{Kind: strategy.ActionIncreaseShort, Size: alloc.ShortSize}), nil
}

func (e *Engine) apply(action strategy.Action, price float64) error {
	switch action.Kind {
	case strategy.ActionIncreaseShort:
		return e.hedge.Adjust(-action.Size, price)
	case strategy.ActionDecreaseShort:
		return e.hedge.Adjust(action.Size, price)
	default:
		return nil
	}
}

func (e *Engine) record(obs market.Observation, action strategy.Action) StepRecord {
	lpSnap := e.lp.Snapshot()
	hedgeSnap := e.hedge.Snapshot()
	exposedUnhedged := hedgeSnap.MarginBalance == 0 && lpSnap.Token1Amount > 0
	if action.Kind != strategy.ActionNone {
		e.log.Debug("hedge adjusted",
			zap.Time("timestamp", obs.Timestamp),
			zap.String("action", string(action.Kind)),
			zap.Float64("size", action.Size))
	}
	if exposedUnhedged {
		e.log.Warn("lp leg running unhedged",
			zap.Time("timestamp", obs.Timestamp),
			zap.Float64("lp_eth", lpSnap.Token1Amount))
	}
	return StepRecord{
		Timestamp:                   obs.Timestamp,
		ETHPrice:                    obs.ETHPrice,
		LP:                          lpSnap,
		Hedge:                       hedgeSnap,
		Action:                      action,
		Equity:                      e.lp.Value(obs.ETHPrice) + e.hedge.Equity(),
		HedgeLiquidatedWhileExposed: exposedUnhedged,
	}
}

func (e *Engine) fault(ts time.Time, err error) error {
	return fmt.Errorf("run halted at %s (notional=%.2f leverage=%.2f threshold=%.4f): %w",
		ts.UTC().Format(time.RFC3339),
		e.params.InitialNotional, e.params.Leverage, e.params.RebalanceThresholdPct, err)
}

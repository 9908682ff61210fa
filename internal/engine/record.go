package engine

import (
	"time"

	"univ2-hedge-backtest/internal/hedge"
	"univ2-hedge-backtest/internal/lp"
	"univ2-hedge-backtest/internal/strategy"
)

// StepRecord is one row of the backtest trajectory: entity snapshots,
// the action applied this step and the combined equity of both legs.
type StepRecord struct {
	Timestamp time.Time
	ETHPrice  float64
	LP        lp.Snapshot
	Hedge     hedge.Snapshot
	Action    strategy.Action
	Equity    float64

	// Skipped holds the action the policy wanted but could not fund,
	// when skip-on-insufficient-margin is enabled. Kind is ActionNone
	// otherwise.
	Skipped strategy.Action

	// HedgeLiquidatedWhileExposed marks steps where the LP leg still
	// holds ETH but the hedge account is empty, i.e. the position is
	// running unhedged. Recorded, never raised.
	HedgeLiquidatedWhileExposed bool
}

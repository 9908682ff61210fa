package strategy

import "fmt"

type ActionKind string

const (
	ActionNone          ActionKind = "NONE"
	ActionIncreaseShort ActionKind = "INCREASE_SHORT"
	ActionDecreaseShort ActionKind = "DECREASE_SHORT"
)

// Action is the policy's single output per step: leave the hedge alone
// or move it by Size units of the hedged asset.
type Action struct {
	Kind ActionKind
	Size float64
}

func NoAction() Action {
	return Action{Kind: ActionNone}
}

// Params is the immutable strategy configuration carried through one run.
type Params struct {
	InitialNotional       float64
	Leverage              float64
	RebalanceThresholdPct float64
	MinAdjustmentNotional float64
}

func (p Params) Validate() error {
	if p.InitialNotional <= 0 {
		return fmt.Errorf("initial notional must be > 0, got %f", p.InitialNotional)
	}
	if p.Leverage < 1 {
		return fmt.Errorf("leverage must be >= 1, got %f", p.Leverage)
	}
	if p.RebalanceThresholdPct <= 0 {
		return fmt.Errorf("rebalance threshold must be > 0, got %f", p.RebalanceThresholdPct)
	}
	if p.MinAdjustmentNotional < 0 {
		return fmt.Errorf("min adjustment notional must be >= 0, got %f", p.MinAdjustmentNotional)
	}
	return nil
}

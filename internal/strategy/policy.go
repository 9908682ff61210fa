package strategy

import (
	"errors"
	"fmt"
	"math"
)

var ErrInsufficientMargin = errors.New("insufficient margin for rebalance")

// exposureEpsilon is the LP exposure below which rebalancing is noise.
const exposureEpsilon = 1e-9

// Decide is the rebalancing policy: given the LP leg's ETH exposure, the
// signed hedge size, the hedge margin balance and a reference price,
// return at most one hedge adjustment. The target short always equals
// the full LP exposure; the threshold trades hedge tightness against
// rebalancing frequency.
//
// An unfundable increase is reported as ErrInsufficientMargin rather
// than silently under-hedged; the caller decides whether that halts the
// run.
func Decide(lpETH, hedgeSize, margin, price float64, params Params) (Action, error) {
	if price <= 0 || math.IsNaN(price) {
		return NoAction(), nil
	}
	if lpETH <= exposureEpsilon {
		return NoAction(), nil
	}

	shortSize := math.Abs(hedgeSize)
	deviation := math.Abs(lpETH-shortSize) / lpETH
	if deviation <= params.RebalanceThresholdPct {
		return NoAction(), nil
	}

	delta := lpETH - shortSize
	if math.Abs(delta)*price < params.MinAdjustmentNotional {
		return NoAction(), nil
	}

	if delta > 0 {
		wanted := Action{Kind: ActionIncreaseShort, Size: delta}
		required := delta * price / params.Leverage
		if required > margin {
			// The wanted action is returned alongside the error so the
			// caller can report what it was unable to apply.
			return wanted, fmt.Errorf(
				"increase short by %.6f needs %.2f margin, have %.2f: %w",
				delta, required, margin, ErrInsufficientMargin)
		}
		return wanted, nil
	}
	return Action{Kind: ActionDecreaseShort, Size: -delta}, nil
}

// Allocation is the initial capital split between the two legs.
type Allocation struct {
	LPDeposit    float64
	ETHValueInLP float64
	ShortSize    float64
	Margin       float64
}

// Allocate splits the initial notional so that the hedge margin exactly
// collateralizes a short of the LP's ETH value at the chosen leverage:
// LPDeposit + Margin == notional by construction.
func Allocate(notional, leverage, price float64) (Allocation, error) {
	if notional <= 0 || math.IsNaN(notional) {
		return Allocation{}, fmt.Errorf("allocate notional %f must be > 0", notional)
	}
	if leverage < 1 || math.IsNaN(leverage) {
		return Allocation{}, fmt.Errorf("allocate leverage %f must be >= 1", leverage)
	}
	if price <= 0 || math.IsNaN(price) {
		return Allocation{}, fmt.Errorf("allocate price %f must be > 0", price)
	}
	lpDeposit := notional / (1 + 1/(2*leverage))
	ethValue := lpDeposit / 2
	return Allocation{
		LPDeposit:    lpDeposit,
		ETHValueInLP: ethValue,
		ShortSize:    ethValue / price,
		Margin:       ethValue / leverage,
	}, nil
}

package hedge

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidAmount      = errors.New("hedge amount is invalid")
	ErrAlreadyOpen        = errors.New("hedge position already open")
	ErrInsufficientMargin = errors.New("insufficient margin")
	ErrLiquidated         = errors.New("hedge position liquidated")
)

// Account models a cross-margin perpetual-futures account holding the
// short hedge. Funding is realized into margin every mark-to-market;
// price PnL stays unrealized until size is closed, as on a perp venue.
// Position size is signed: short is negative.
type Account struct {
	leverage float64

	marginBalance  float64
	positionSize   float64
	entryPrice     float64
	markPrice      float64
	fundingPaidCum float64
	liquidated     bool
}

// Snapshot is an immutable copy of the account for step records.
type Snapshot struct {
	MarginBalance  float64
	PositionSize   float64
	EntryPrice     float64
	MarkPrice      float64
	FundingPaidCum float64
	UnrealizedPnL  float64
	Liquidated     bool
}

func New(leverage float64) *Account {
	if leverage < 1 {
		leverage = 1
	}
	return &Account{leverage: leverage}
}

// Deposit credits margin collateral.
func (a *Account) Deposit(margin float64) error {
	if margin < 0 || math.IsNaN(margin) {
		return fmt.Errorf("deposit %f: %w", margin, ErrInvalidAmount)
	}
	a.marginBalance += margin
	return nil
}

// OpenShort opens the initial short of size units at the given price.
func (a *Account) OpenShort(size, price float64) error {
	if a.liquidated {
		return ErrLiquidated
	}
	if a.positionSize != 0 {
		return ErrAlreadyOpen
	}
	if size <= 0 || math.IsNaN(size) {
		return fmt.Errorf("open short size %f: %w", size, ErrInvalidAmount)
	}
	if price <= 0 || math.IsNaN(price) {
		return fmt.Errorf("open short price %f: %w", price, ErrInvalidAmount)
	}
	a.positionSize = -size
	a.entryPrice = price
	a.markPrice = price
	return nil
}

// Adjust changes the position by delta units at the given price. Growing
// the exposure requires the incremental margin at the account's leverage
// to be covered by the current balance; shrinking realizes PnL on the
// closed quantity into margin.
func (a *Account) Adjust(delta, price float64) error {
	if a.liquidated {
		return ErrLiquidated
	}
	if delta == 0 || math.IsNaN(delta) {
		return fmt.Errorf("adjust delta %f: %w", delta, ErrInvalidAmount)
	}
	if price <= 0 || math.IsNaN(price) {
		return fmt.Errorf("adjust price %f: %w", price, ErrInvalidAmount)
	}
	newSize := a.positionSize + delta
	grown := math.Abs(newSize) - math.Abs(a.positionSize)
	if grown > 0 {
		required := grown * price / a.leverage
		if required > a.marginBalance+marginEpsilon {
			return fmt.Errorf("need %.2f margin for %.6f units, have %.2f: %w",
				required, grown, a.marginBalance, ErrInsufficientMargin)
		}
	}

	switch {
	case sameSign(a.positionSize, newSize) && math.Abs(newSize) > math.Abs(a.positionSize):
		// Extending: blend the entry price over the larger size.
		a.entryPrice = (math.Abs(a.positionSize)*a.entryPrice + math.Abs(delta)*price) / math.Abs(newSize)
	case a.positionSize != 0:
		closed := math.Min(math.Abs(delta), math.Abs(a.positionSize))
		direction := sign(a.positionSize)
		a.marginBalance += direction * closed * (price - a.entryPrice)
		if newSize == 0 || !sameSign(a.positionSize, newSize) {
			a.entryPrice = price
		}
	default:
		a.entryPrice = price
	}
	a.positionSize = newSize
	a.markPrice = price
	return nil
}

// MarkToMarket reprices the position and realizes funding into margin.
// With a short (negative size) and a positive rate the funding payment
// is negative, so the short collects. Returns true when this step
// liquidated the account: margin clamps to zero, size is forced flat and
// the account goes terminal.
func (a *Account) MarkToMarket(price, fundingRate float64) (liquidated bool) {
	if price > 0 && !math.IsNaN(price) {
		a.markPrice = price
	}
	if a.liquidated {
		return false
	}
	funding := a.positionSize * fundingRate * a.markPrice
	a.fundingPaidCum += funding
	a.marginBalance -= funding

	if a.positionSize != 0 && a.marginBalance+a.UnrealizedPnL() <= 0 {
		a.marginBalance = 0
		a.positionSize = 0
		a.liquidated = true
		return true
	}
	if a.marginBalance < 0 {
		a.marginBalance = 0
	}
	return false
}

// UnrealizedPnL is the price PnL on the open size at the last mark.
func (a *Account) UnrealizedPnL() float64 {
	return a.positionSize * (a.markPrice - a.entryPrice)
}

// Equity is margin plus unrealized price PnL.
func (a *Account) Equity() float64 {
	return a.marginBalance + a.UnrealizedPnL()
}

func (a *Account) MarginBalance() float64 { return a.marginBalance }

func (a *Account) PositionSize() float64 { return a.positionSize }

func (a *Account) MarkPrice() float64 { return a.markPrice }

func (a *Account) FundingPaidCum() float64 { return a.fundingPaidCum }

func (a *Account) Liquidated() bool { return a.liquidated }

func (a *Account) Snapshot() Snapshot {
	return Snapshot{
		MarginBalance:  a.marginBalance,
		PositionSize:   a.positionSize,
		EntryPrice:     a.entryPrice,
		MarkPrice:      a.markPrice,
		FundingPaidCum: a.fundingPaidCum,
		UnrealizedPnL:  a.UnrealizedPnL(),
		Liquidated:     a.liquidated,
	}
}

const marginEpsilon = 1e-9

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	if v > 0 {
		return 1
	}
	return 0
}

package lp

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"univ2-hedge-backtest/internal/market"
)

var (
	ErrAlreadyOpen   = errors.New("lp position already open")
	ErrNotOpen       = errors.New("lp position not open")
	ErrInvalidAmount = errors.New("lp amount must be positive")
	ErrInvalidPrice  = errors.New("lp price must be positive")
)

// Config describes the pool the position sits in. Decimals match the
// USDC/WETH pair the strategy targets: they bound the precision of the
// token amounts at open and scale the position's liquidity into the
// pool's raw LP-token units when computing the fee share.
type Config struct {
	FeeRate        float64
	Token0Decimals int
	Token1Decimals int
}

// Position is the liquidity-provision leg: a pro-rata share of a
// constant-product pool. Token0 is the stable side (USDC), token1 the
// volatile side (ETH). Both amounts drift apart from the 50/50 open
// split as price moves; fee income accrues into both sides.
type Position struct {
	cfg Config

	open              bool
	token0Amount      float64
	token1Amount      float64
	depositedNotional float64
}

// Snapshot is an immutable copy of the position for step records.
type Snapshot struct {
	Token0Amount      float64
	Token1Amount      float64
	DepositedNotional float64
	Open              bool
}

func New(cfg Config) *Position {
	return &Position{cfg: cfg}
}

// Open splits notional 50/50 by USD value at the given price.
func (p *Position) Open(notional, price float64) error {
	if p.open {
		return ErrAlreadyOpen
	}
	if notional <= 0 || math.IsNaN(notional) {
		return fmt.Errorf("open notional %f: %w", notional, ErrInvalidAmount)
	}
	if price <= 0 || math.IsNaN(price) {
		return fmt.Errorf("open price %f: %w", price, ErrInvalidPrice)
	}
	p.token0Amount = quantize(notional/2, p.cfg.Token0Decimals)
	p.token1Amount = quantize(notional/2/price, p.cfg.Token1Decimals)
	p.depositedNotional = notional
	p.open = true
	return nil
}

// Revalue reprices the position along the constant-product curve at the
// observed price and credits the position's share of the interval's
// trading fees. The invariant sqrt(x*y) is preserved by the repricing
// itself and grows only through fee accrual.
func (p *Position) Revalue(obs market.Observation) error {
	if !p.open {
		return ErrNotOpen
	}
	price := obs.ETHPrice
	if price <= 0 || math.IsNaN(price) {
		return fmt.Errorf("revalue price %f: %w", price, ErrInvalidPrice)
	}

	liquidity := math.Sqrt(p.token0Amount * p.token1Amount)
	sqrtPrice := math.Sqrt(price)
	p.token0Amount = liquidity * sqrtPrice
	p.token1Amount = liquidity / sqrtPrice

	poolSupply := rawLiquidity(obs.PoolLiquidity)
	if poolSupply <= 0 {
		return nil
	}
	// The pool reports its LP-token supply in raw 18-dec units; for a V2
	// pair that is sqrt(reserve0_raw * reserve1_raw). The position's own
	// sqrt(x*y) is in human token units, so it must be scaled by the
	// token decimals before the two are comparable.
	rawPositionLiquidity := liquidity * math.Sqrt(math.Pow10(p.cfg.Token0Decimals)*math.Pow10(p.cfg.Token1Decimals))
	share := rawPositionLiquidity / poolSupply
	if share > 1 {
		share = 1
	}
	feeUSD := obs.PoolVolume * obs.PoolFeeRate * share
	if feeUSD <= 0 {
		return nil
	}
	p.token0Amount += feeUSD / 2
	p.token1Amount += feeUSD / 2 / price
	return nil
}

// Withdraw closes the position and returns both token balances.
func (p *Position) Withdraw() (token0, token1 float64, err error) {
	if !p.open {
		return 0, 0, ErrNotOpen
	}
	token0, token1 = p.token0Amount, p.token1Amount
	p.token0Amount = 0
	p.token1Amount = 0
	p.depositedNotional = 0
	p.open = false
	return token0, token1, nil
}

// Value is the USD value of both sides at the given price.
func (p *Position) Value(price float64) float64 {
	return p.token0Amount + p.token1Amount*price
}

func (p *Position) Token1Amount() float64 {
	return p.token1Amount
}

func (p *Position) IsOpen() bool {
	return p.open
}

func (p *Position) Snapshot() Snapshot {
	return Snapshot{
		Token0Amount:      p.token0Amount,
		Token1Amount:      p.token1Amount,
		DepositedNotional: p.depositedNotional,
		Open:              p.open,
	}
}

// rawLiquidity converts the pool's fixed-point LP-token supply to a
// float without rescaling; the caller compares it against a position
// liquidity expressed in the same raw units.
func rawLiquidity(liquidity *big.Int) float64 {
	if liquidity == nil || liquidity.Sign() <= 0 {
		return 0
	}
	f, _ := new(big.Float).SetInt(liquidity).Float64()
	return f
}

func quantize(v float64, decimals int) float64 {
	if decimals <= 0 || decimals > 18 {
		return v
	}
	scale := math.Pow10(decimals)
	return math.Trunc(v*scale) / scale
}

package lp

import (
	"errors"
	"math"
	"math/big"
	"testing"
	"time"

	"univ2-hedge-backtest/internal/market"
)

func testConfig() Config {
	return Config{FeeRate: 0.003, Token0Decimals: 6, Token1Decimals: 18}
}

// pairSupply is the raw 18-dec LP-token supply of a USDC/WETH pool
// holding tvl USD at the given price: sqrt of the raw reserves.
func pairSupply(tvl, price float64) *big.Int {
	usdc := tvl / 2
	weth := tvl / 2 / price
	supply := new(big.Int)
	big.NewFloat(math.Sqrt(usdc * 1e6 * weth * 1e18)).Int(supply)
	return supply
}

func obsAt(price, volume, tvl float64) market.Observation {
	return market.Observation{
		Timestamp:     time.Unix(1700000000, 0).UTC(),
		ETHPrice:      price,
		PoolTVL:       tvl,
		PoolVolume:    volume,
		PoolFeeRate:   0.003,
		PoolLiquidity: pairSupply(tvl, price),
	}
}

func TestOpenSplitsNotionalEvenly(t *testing.T) {
	p := New(testConfig())
	if err := p.Open(500_000, 2000); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	snap := p.Snapshot()
	if snap.Token0Amount != 250_000 {
		t.Fatalf("expected 250000 token0, got %f", snap.Token0Amount)
	}
	if snap.Token1Amount != 125 {
		t.Fatalf("expected 125 token1, got %f", snap.Token1Amount)
	}
	if snap.DepositedNotional != 500_000 {
		t.Fatalf("expected deposited 500000, got %f", snap.DepositedNotional)
	}
	if err := p.Open(1, 2000); !errors.Is(err, ErrAlreadyOpen) {
		t.Fatalf("expected ErrAlreadyOpen, got %v", err)
	}
}

func TestOpenRejectsBadInputs(t *testing.T) {
	p := New(testConfig())
	if err := p.Open(0, 2000); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := p.Open(100, -1); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
}

func TestRevalueShowsImpermanentLoss(t *testing.T) {
	p := New(testConfig())
	if err := p.Open(500_000, 2000); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	// Enormous pool, zero volume: pure constant-product repricing.
	if err := p.Revalue(obsAt(2200, 0, 1e12)); err != nil {
		t.Fatalf("revalue failed: %v", err)
	}
	snap := p.Snapshot()
	if snap.Token1Amount >= 125 {
		t.Fatalf("price rise must shed token1, got %f", snap.Token1Amount)
	}
	if snap.Token0Amount <= 250_000 {
		t.Fatalf("price rise must add token0, got %f", snap.Token0Amount)
	}
	// LP value must trail the buy-and-hold value of the opening amounts.
	hold := 250_000 + 125*2200.0
	if got := p.Value(2200); got >= hold {
		t.Fatalf("expected impermanent loss: lp value %f vs hold %f", got, hold)
	}
	// sqrt(x*y) is invariant under repricing without fees.
	wantLiq := math.Sqrt(250_000 * 125)
	gotLiq := math.Sqrt(snap.Token0Amount * snap.Token1Amount)
	if math.Abs(gotLiq-wantLiq) > 1e-6*wantLiq {
		t.Fatalf("invariant drifted: %f vs %f", gotLiq, wantLiq)
	}
}

func TestRevalueAccruesFees(t *testing.T) {
	p := New(testConfig())
	if err := p.Open(500_000, 2000); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	// The position owns 1% of a 50M pool.
	if err := p.Revalue(obsAt(2000, 10_000_000, 50_000_000)); err != nil {
		t.Fatalf("revalue failed: %v", err)
	}
	// fees = 10m * 0.003 * 1% = 300 USD, split across both sides
	wantValue := 500_000 + 300.0
	if got := p.Value(2000); math.Abs(got-wantValue) > 1e-3 {
		t.Fatalf("expected value %f after fees, got %f", wantValue, got)
	}
}

func TestRevalueFeeShareMatchesPoolSupply(t *testing.T) {
	p := New(testConfig())
	if err := p.Open(500_000, 2000); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	// A 100M USDC/WETH pool at 2000 carries a raw LP supply near
	// 1.118e18; a 500k position is a 0.5% share of that, not all of it.
	obs := obsAt(2000, 10_000_000, 100_000_000)
	supply, _ := new(big.Float).SetInt(obs.PoolLiquidity).Float64()
	if math.Abs(supply-1.118e18) > 0.001e18 {
		t.Fatalf("fixture supply off: %e", supply)
	}
	if err := p.Revalue(obs); err != nil {
		t.Fatalf("revalue failed: %v", err)
	}
	// fees = 10m * 0.003 * 0.5% = 150 USD
	gotFee := p.Value(2000) - 500_000
	if math.Abs(gotFee-150) > 1e-3 {
		t.Fatalf("expected 150 USD of fees at a 0.5%% share, got %f", gotFee)
	}
}

func TestRevalueRequiresOpenPosition(t *testing.T) {
	p := New(testConfig())
	if err := p.Revalue(obsAt(2000, 0, 1e12)); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
}

func TestWithdrawClosesPosition(t *testing.T) {
	p := New(testConfig())
	if err := p.Open(500_000, 2000); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	token0, token1, err := p.Withdraw()
	if err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	if token0 != 250_000 || token1 != 125 {
		t.Fatalf("expected (250000, 125), got (%f, %f)", token0, token1)
	}
	if p.IsOpen() {
		t.Fatalf("expected closed position")
	}
	if _, _, err := p.Withdraw(); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
}

package market

import (
	"math"
	"math/big"
	"testing"
	"time"
)

func validObs(ts time.Time) Observation {
	return Observation{
		Timestamp:     ts,
		ETHPrice:      2000,
		FundingRate:   0.0001,
		PoolTVL:       1e8,
		PoolVolume:    1e6,
		PoolFeeRate:   0.003,
		PoolLiquidity: big.NewInt(1e18),
	}
}

func TestNewSeriesAcceptsOrderedObservations(t *testing.T) {
	start := time.Unix(1700000000, 0).UTC()
	obs := []Observation{validObs(start), validObs(start.Add(time.Hour)), validObs(start.Add(2 * time.Hour))}
	series, err := NewSeries(obs)
	if err != nil {
		t.Fatalf("series rejected: %v", err)
	}
	if series.Len() != 3 {
		t.Fatalf("expected 3 observations, got %d", series.Len())
	}
}

func TestNewSeriesRejectsDisorder(t *testing.T) {
	start := time.Unix(1700000000, 0).UTC()
	if _, err := NewSeries([]Observation{validObs(start.Add(time.Hour)), validObs(start)}); err == nil {
		t.Fatalf("expected error for decreasing timestamps")
	}
	if _, err := NewSeries([]Observation{validObs(start), validObs(start)}); err == nil {
		t.Fatalf("expected error for duplicate timestamps")
	}
	if _, err := NewSeries(nil); err == nil {
		t.Fatalf("expected error for empty series")
	}
}

func TestNewSeriesRejectsInvalidRows(t *testing.T) {
	start := time.Unix(1700000000, 0).UTC()
	bad := validObs(start)
	bad.ETHPrice = 0
	if _, err := NewSeries([]Observation{bad}); err == nil {
		t.Fatalf("expected error for zero price")
	}
	bad = validObs(start)
	bad.FundingRate = math.NaN()
	if _, err := NewSeries([]Observation{bad}); err == nil {
		t.Fatalf("expected error for NaN funding")
	}
	bad = validObs(start)
	bad.PoolLiquidity = nil
	if _, err := NewSeries([]Observation{bad}); err == nil {
		t.Fatalf("expected error for missing liquidity")
	}
}

func TestJoinDropsIncompleteRows(t *testing.T) {
	start := time.Unix(1700000000, 0).UTC()
	prices := []PricePoint{
		{Time: start, Price: 2000},
		{Time: start.Add(time.Hour), Price: 2010},
		{Time: start.Add(3 * time.Hour), Price: 2030},
	}
	fundings := []FundingPoint{
		{Time: start, Rate: 0.0001},
		{Time: start.Add(time.Hour), Rate: 0.0002},
		{Time: start.Add(2 * time.Hour), Rate: 0.0003},
	}
	pools := []PoolPoint{
		{Time: start.Add(time.Hour), TVL: 1e8, Volume: 1e6, FeeRate: 0.003, Liquidity: big.NewInt(1e18)},
		{Time: start, TVL: 1e8, Volume: 1e6, FeeRate: 0.003, Liquidity: big.NewInt(1e18)},
		{Time: start.Add(3 * time.Hour), TVL: 1e8, Volume: 1e6, FeeRate: 0.003, Liquidity: big.NewInt(1e18)},
	}
	obs := Join(prices, fundings, pools)
	// Hour 2 lacks price and pool, hour 3 lacks funding.
	if len(obs) != 2 {
		t.Fatalf("expected 2 joined rows, got %d", len(obs))
	}
	if !obs[0].Timestamp.Equal(start) || !obs[1].Timestamp.Equal(start.Add(time.Hour)) {
		t.Fatalf("join must sort ascending, got %v then %v", obs[0].Timestamp, obs[1].Timestamp)
	}
	if obs[1].ETHPrice != 2010 || obs[1].FundingRate != 0.0002 {
		t.Fatalf("joined row mismatched: %+v", obs[1])
	}
	if _, err := NewSeries(obs); err != nil {
		t.Fatalf("joined output must satisfy the series contract: %v", err)
	}
}

func TestJoinDeduplicates(t *testing.T) {
	start := time.Unix(1700000000, 0).UTC()
	prices := []PricePoint{{Time: start, Price: 2000}}
	fundings := []FundingPoint{{Time: start, Rate: 0.0001}}
	pools := []PoolPoint{
		{Time: start, TVL: 1e8, Volume: 1e6, FeeRate: 0.003, Liquidity: big.NewInt(1e18)},
		{Time: start, TVL: 2e8, Volume: 2e6, FeeRate: 0.003, Liquidity: big.NewInt(1e18)},
	}
	obs := Join(prices, fundings, pools)
	if len(obs) != 1 {
		t.Fatalf("expected 1 row after dedupe, got %d", len(obs))
	}
	if obs[0].PoolTVL != 2e8 {
		t.Fatalf("expected last duplicate to win, got %+v", obs[0])
	}
}

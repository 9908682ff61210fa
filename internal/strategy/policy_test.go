package strategy

import (
	"errors"
	"math"
	"testing"
)

func testParams() Params {
	return Params{
		InitialNotional:       1_000_000,
		Leverage:              1.0,
		RebalanceThresholdPct: 0.10,
		MinAdjustmentNotional: 0.01,
	}
}

func TestAllocateExampleScenario(t *testing.T) {
	// leverage 1: a third of capital collateralizes the short,
	// two thirds go to the pool.
	alloc, err := Allocate(750_000, 1.0, 2000)
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	if alloc.LPDeposit != 500_000 {
		t.Fatalf("expected lp deposit 500000, got %f", alloc.LPDeposit)
	}
	if alloc.ETHValueInLP != 250_000 {
		t.Fatalf("expected eth value 250000, got %f", alloc.ETHValueInLP)
	}
	if alloc.ShortSize != 125 {
		t.Fatalf("expected short size 125, got %f", alloc.ShortSize)
	}
	if alloc.Margin != 250_000 {
		t.Fatalf("expected margin 250000, got %f", alloc.Margin)
	}
}

func TestAllocateInvariant(t *testing.T) {
	cases := []struct {
		notional float64
		leverage float64
	}{
		{1_000_000, 1.0},
		{250_000, 2.0},
		{42, 1.5},
		{1e9, 10},
	}
	for _, tc := range cases {
		alloc, err := Allocate(tc.notional, tc.leverage, 1234.5)
		if err != nil {
			t.Fatalf("allocate(%f, %f) failed: %v", tc.notional, tc.leverage, err)
		}
		total := alloc.LPDeposit + alloc.Margin
		if math.Abs(total-tc.notional) > 1e-6*tc.notional {
			t.Fatalf("allocation leaks capital: %f + %f != %f", alloc.LPDeposit, alloc.Margin, tc.notional)
		}
		wantMargin := alloc.LPDeposit / 2 / tc.leverage
		if math.Abs(alloc.Margin-wantMargin) > 1e-9*tc.notional {
			t.Fatalf("margin %f != lp/2/leverage %f", alloc.Margin, wantMargin)
		}
	}
}

func TestAllocateRejectsBadInputs(t *testing.T) {
	if _, err := Allocate(0, 1, 2000); err == nil {
		t.Fatalf("expected error for zero notional")
	}
	if _, err := Allocate(1000, 0.5, 2000); err == nil {
		t.Fatalf("expected error for leverage < 1")
	}
	if _, err := Allocate(1000, 1, 0); err == nil {
		t.Fatalf("expected error for non-positive price")
	}
}

func TestDecideWithinThresholdIsNoop(t *testing.T) {
	// deviation = |130-125|/130 ~ 0.0385 < 0.10
	action, err := Decide(130, -125, 250_000, 2200, testParams())
	if err != nil {
		t.Fatalf("decide failed: %v", err)
	}
	if action.Kind != ActionNone {
		t.Fatalf("expected noop, got %s(%f)", action.Kind, action.Size)
	}
}

func TestDecideIncreasesShortBeyondThreshold(t *testing.T) {
	// deviation = |145-125|/145 ~ 0.138 > 0.10
	action, err := Decide(145, -125, 250_000, 2200, testParams())
	if err != nil {
		t.Fatalf("decide failed: %v", err)
	}
	if action.Kind != ActionIncreaseShort {
		t.Fatalf("expected increase, got %s", action.Kind)
	}
	if math.Abs(action.Size-20) > 1e-9 {
		t.Fatalf("expected size 20, got %f", action.Size)
	}
}

func TestDecideDecreasesShort(t *testing.T) {
	action, err := Decide(100, -125, 10, 2000, testParams())
	if err != nil {
		t.Fatalf("decide failed: %v", err)
	}
	if action.Kind != ActionDecreaseShort {
		t.Fatalf("expected decrease, got %s", action.Kind)
	}
	if math.Abs(action.Size-25) > 1e-9 {
		t.Fatalf("expected size 25, got %f", action.Size)
	}
}

func TestDecideInsufficientMargin(t *testing.T) {
	// Needs 20*2200/1 = 44000 margin, only 10 available.
	_, err := Decide(145, -125, 10, 2200, testParams())
	if !errors.Is(err, ErrInsufficientMargin) {
		t.Fatalf("expected ErrInsufficientMargin, got %v", err)
	}
}

func TestDecideGuards(t *testing.T) {
	params := testParams()
	if action, err := Decide(145, -125, 1e9, 0, params); err != nil || action.Kind != ActionNone {
		t.Fatalf("invalid price should be noop, got %s err %v", action.Kind, err)
	}
	if action, err := Decide(145, -125, 1e9, math.NaN(), params); err != nil || action.Kind != ActionNone {
		t.Fatalf("NaN price should be noop, got %s err %v", action.Kind, err)
	}
	if action, err := Decide(1e-12, -125, 1e9, 2000, params); err != nil || action.Kind != ActionNone {
		t.Fatalf("negligible exposure should be noop, got %s err %v", action.Kind, err)
	}
}

func TestDecideSkipsTinyAdjustments(t *testing.T) {
	params := testParams()
	params.MinAdjustmentNotional = 100_000
	action, err := Decide(145, -125, 1e9, 2200, params)
	if err != nil {
		t.Fatalf("decide failed: %v", err)
	}
	if action.Kind != ActionNone {
		t.Fatalf("expected noop below min notional, got %s", action.Kind)
	}
}

func TestThresholdMonotonicity(t *testing.T) {
	// Lowering the threshold must never decrease trigger count across a
	// fixed exposure path.
	type step struct{ lpETH, short float64 }
	path := []step{
		{125, -125}, {130, -125}, {145, -125}, {150, -145},
		{140, -150}, {110, -140}, {108, -110}, {200, -108},
	}
	count := func(threshold float64) int {
		params := testParams()
		params.RebalanceThresholdPct = threshold
		n := 0
		for _, s := range path {
			action, err := Decide(s.lpETH, s.short, 1e12, 2000, params)
			if err != nil {
				t.Fatalf("decide failed: %v", err)
			}
			if action.Kind != ActionNone {
				n++
			}
		}
		return n
	}
	prev := -1
	for _, threshold := range []float64{0.50, 0.25, 0.10, 0.05, 0.01} {
		n := count(threshold)
		if prev >= 0 && n < prev {
			t.Fatalf("threshold %f triggered %d actions, coarser threshold triggered %d", threshold, n, prev)
		}
		prev = n
	}
}

func TestParamsValidate(t *testing.T) {
	if err := testParams().Validate(); err != nil {
		t.Fatalf("valid params rejected: %v", err)
	}
	bad := testParams()
	bad.InitialNotional = 0
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for zero notional")
	}
	bad = testParams()
	bad.Leverage = 0.9
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for leverage < 1")
	}
	bad = testParams()
	bad.RebalanceThresholdPct = 0
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for zero threshold")
	}
}

package report

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"univ2-hedge-backtest/internal/engine"
	"univ2-hedge-backtest/internal/strategy"
)

const secondsPerYear = 365.25 * 24 * 3600

// Summary are the headline metrics of one backtest trajectory.
type Summary struct {
	Start             time.Time
	End               time.Time
	Steps             int
	InitialEquity     float64
	FinalEquity       float64
	AccumulatedReturn float64
	AnnualizedReturn  float64
	SharpeRatio       float64
	MaxDrawdown       float64
	Rebalances        int
	LiquidatedSteps   int
}

// Summarize computes return, Sharpe and drawdown statistics over the
// equity curve. The step interval is inferred from the first gap, which
// is exact for the regular series the loaders produce.
func Summarize(records []engine.StepRecord) (Summary, error) {
	if len(records) < 2 {
		return Summary{}, errors.New("summary requires at least two steps")
	}
	s := Summary{
		Start:         records[0].Timestamp,
		End:           records[len(records)-1].Timestamp,
		Steps:         len(records),
		InitialEquity: records[0].Equity,
		FinalEquity:   records[len(records)-1].Equity,
	}
	if s.InitialEquity <= 0 {
		return Summary{}, fmt.Errorf("initial equity %f is not positive", s.InitialEquity)
	}
	s.AccumulatedReturn = s.FinalEquity/s.InitialEquity - 1

	elapsed := s.End.Sub(s.Start).Seconds()
	if elapsed > 0 {
		s.AnnualizedReturn = s.AccumulatedReturn * secondsPerYear / elapsed
	}

	stepSeconds := records[1].Timestamp.Sub(records[0].Timestamp).Seconds()
	returns := make([]float64, 0, len(records)-1)
	for i := 1; i < len(records); i++ {
		prev := records[i-1].Equity
		if prev <= 0 {
			continue
		}
		returns = append(returns, records[i].Equity/prev-1)
	}
	if mean, std := meanStd(returns); std > 0 && stepSeconds > 0 {
		s.SharpeRatio = mean / std * math.Sqrt(secondsPerYear/stepSeconds)
	}

	peak := records[0].Equity
	for i, rec := range records {
		if rec.Equity > peak {
			peak = rec.Equity
		}
		if peak > 0 {
			if dd := 1 - rec.Equity/peak; dd > s.MaxDrawdown {
				s.MaxDrawdown = dd
			}
		}
		// The first record is the boot step that opens the position;
		// its action does not count as a rebalance.
		if i > 0 && rec.Action.Kind != strategy.ActionNone {
			s.Rebalances++
		}
		if rec.HedgeLiquidatedWhileExposed {
			s.LiquidatedSteps++
		}
	}
	return s, nil
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "steps: %d (%s .. %s)\n", s.Steps, s.Start.Format(time.RFC3339), s.End.Format(time.RFC3339))
	fmt.Fprintf(&b, "equity: %.2f -> %.2f\n", s.InitialEquity, s.FinalEquity)
	fmt.Fprintf(&b, "accumulated return: %.4f%%\n", s.AccumulatedReturn*100)
	fmt.Fprintf(&b, "annualized return: %.4f%%\n", s.AnnualizedReturn*100)
	fmt.Fprintf(&b, "sharpe ratio: %.4f\n", s.SharpeRatio)
	fmt.Fprintf(&b, "max drawdown: %.4f%%\n", s.MaxDrawdown*100)
	fmt.Fprintf(&b, "rebalances: %d\n", s.Rebalances)
	fmt.Fprintf(&b, "unhedged steps: %d", s.LiquidatedSteps)
	return b.String()
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if len(values) < 2 {
		return mean, 0
	}
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(values)-1))
}

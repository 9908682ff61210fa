package report

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"univ2-hedge-backtest/internal/engine"
)

var csvHeader = []string{
	"timestamp",
	"eth_price",
	"lp_token0_amount",
	"lp_token1_amount",
	"lp_deposited_notional",
	"hedge_margin_balance",
	"hedge_position_size",
	"hedge_mark_price",
	"hedge_funding_paid_cum",
	"hedge_unrealized_pnl",
	"action",
	"action_size",
	"equity",
	"hedge_liquidated_while_exposed",
}

// WriteCSV renders the trajectory as a flat table, one row per step.
func WriteCSV(w io.Writer, records []engine.StepRecord) error {
	out := csv.NewWriter(w)
	if err := out.Write(csvHeader); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{
			rec.Timestamp.UTC().Format(time.RFC3339),
			formatFloat(rec.ETHPrice),
			formatFloat(rec.LP.Token0Amount),
			formatFloat(rec.LP.Token1Amount),
			formatFloat(rec.LP.DepositedNotional),
			formatFloat(rec.Hedge.MarginBalance),
			formatFloat(rec.Hedge.PositionSize),
			formatFloat(rec.Hedge.MarkPrice),
			formatFloat(rec.Hedge.FundingPaidCum),
			formatFloat(rec.Hedge.UnrealizedPnL),
			string(rec.Action.Kind),
			formatFloat(rec.Action.Size),
			formatFloat(rec.Equity),
			strconv.FormatBool(rec.HedgeLiquidatedWhileExposed),
		}
		if err := out.Write(row); err != nil {
			return err
		}
	}
	out.Flush()
	return out.Error()
}

// WriteCSVFile writes the trajectory to path, replacing any existing file.
func WriteCSVFile(path string, records []engine.StepRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(file, records); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

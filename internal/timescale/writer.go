package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"univ2-hedge-backtest/internal/config"
	"univ2-hedge-backtest/internal/engine"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// Writer streams step records into TimescaleDB for dashboarding without
// blocking the simulation loop: records go through a bounded queue and a
// single background writer; overflow is dropped and counted.
type Writer struct {
	db      *sql.DB
	log     *zap.Logger
	schema  string
	runID   string
	steps   chan engine.StepRecord
	started atomic.Bool
	dropped atomic.Uint64
}

func New(cfg config.TimescaleConfig, runID string, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:     db,
		log:    log,
		schema: schema,
		runID:  runID,
		steps:  make(chan engine.StepRecord, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

// WriteSteps persists records synchronously. Batch runs use this
// instead of the queue so the process can exit once the write returns.
func (w *Writer) WriteSteps(ctx context.Context, records []engine.StepRecord) error {
	if w == nil {
		return nil
	}
	for _, rec := range records {
		if err := w.insertStep(ctx, rec); err != nil {
			return fmt.Errorf("write step at %s: %w", rec.Timestamp.UTC().Format(time.RFC3339), err)
		}
	}
	return nil
}

func (w *Writer) EnqueueStep(rec engine.StepRecord) {
	if w == nil {
		return
	}
	select {
	case w.steps <- rec:
	default:
		if w.dropped.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale step queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-w.steps:
			w.writeStep(ctx, rec)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	return w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		run_id TEXT NOT NULL,
		eth_price DOUBLE PRECISION NOT NULL,
		lp_token0 DOUBLE PRECISION NOT NULL,
		lp_token1 DOUBLE PRECISION NOT NULL,
		hedge_margin DOUBLE PRECISION NOT NULL,
		hedge_position DOUBLE PRECISION NOT NULL,
		hedge_funding_cum DOUBLE PRECISION NOT NULL,
		hedge_unrealized_pnl DOUBLE PRECISION NOT NULL,
		action TEXT NOT NULL,
		action_size DOUBLE PRECISION NOT NULL,
		equity DOUBLE PRECISION NOT NULL,
		unhedged BOOLEAN NOT NULL,
		PRIMARY KEY (ts, run_id)
	)`, w.table("hedge_backtest_steps")))
}

func (w *Writer) writeStep(ctx context.Context, rec engine.StepRecord) {
	if err := w.insertStep(ctx, rec); err != nil && w.log != nil {
		w.log.Warn("timescale step write failed", zap.Error(err))
	}
}

func (w *Writer) insertStep(ctx context.Context, rec engine.StepRecord) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, run_id, eth_price, lp_token0, lp_token1,
		hedge_margin, hedge_position, hedge_funding_cum, hedge_unrealized_pnl,
		action, action_size, equity, unhedged
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (ts, run_id) DO UPDATE SET
		equity = excluded.equity,
		action = excluded.action,
		action_size = excluded.action_size,
		unhedged = excluded.unhedged`, w.table("hedge_backtest_steps"))
	_, err := w.db.ExecContext(writeCtx, query,
		rec.Timestamp, w.runID, rec.ETHPrice,
		rec.LP.Token0Amount, rec.LP.Token1Amount,
		rec.Hedge.MarginBalance, rec.Hedge.PositionSize,
		rec.Hedge.FundingPaidCum, rec.Hedge.UnrealizedPnL,
		string(rec.Action.Kind), rec.Action.Size,
		rec.Equity, rec.HedgeLiquidatedWhileExposed,
	)
	return err
}

func (w *Writer) exec(ctx context.Context, query string) error {
	execCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(execCtx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}

package state

import "context"

// Store is a small blob-per-key persistence surface. The backtester uses
// it to cache fetched market-data tables between runs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

package state

import (
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// DatasetCache persists loader tables between runs so repeated backtests
// over the same window skip the network. Values are msgpack blobs keyed
// by loader, instrument and window.
type DatasetCache struct {
	store Store
	log   *zap.Logger
}

func NewDatasetCache(store Store, log *zap.Logger) *DatasetCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &DatasetCache{store: store, log: log}
}

// DatasetKey identifies one cached table.
func DatasetKey(loader, instrument string, start, end time.Time) string {
	return fmt.Sprintf("dataset:%s:%s:%d:%d", loader, instrument, start.Unix(), end.Unix())
}

// Load unmarshals a cached table into dest. A decode failure is treated
// as a miss: the cache is advisory, stale or corrupt entries just force
// a refetch.
func (c *DatasetCache) Load(ctx context.Context, key string, dest any) (bool, error) {
	if c == nil || c.store == nil {
		return false, nil
	}
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok || len(raw) == 0 {
		return false, nil
	}
	if err := msgpack.Unmarshal(raw, dest); err != nil {
		c.log.Warn("dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		_ = c.store.Delete(ctx, key)
		return false, nil
	}
	return true, nil
}

func (c *DatasetCache) Save(ctx context.Context, key string, value any) error {
	if c == nil || c.store == nil {
		return nil
	}
	raw, err := msgpack.Marshal(value)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, key, raw)
}

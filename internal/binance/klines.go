package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"univ2-hedge-backtest/internal/market"

	"go.uber.org/zap"
)

const (
	klinesPath    = "/api/v3/klines"
	klinesPerPage = 1000
)

// Client loads hourly close prices from the Binance spot REST API. The
// perp venue's own candle history is too shallow for long windows, so
// the original data pipeline sources prices here.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// HourlyPrices pages through 1h klines for [start, end) and returns one
// price point per candle open time.
func (c *Client) HourlyPrices(ctx context.Context, symbol string, start, end time.Time) ([]market.PricePoint, error) {
	out := make([]market.PricePoint, 0, end.Sub(start)/time.Hour+1)
	cursor := start
	for cursor.Before(end) {
		page, err := c.fetchPage(ctx, symbol, cursor, end)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		out = append(out, page...)
		next := page[len(page)-1].Time.Add(time.Hour)
		if !next.After(cursor) {
			break
		}
		cursor = next
	}
	if c.log != nil {
		c.log.Debug("loaded binance prices",
			zap.String("symbol", symbol),
			zap.Int("rows", len(out)))
	}
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, symbol string, start, end time.Time) ([]market.PricePoint, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("interval", "1h")
	query.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	query.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	query.Set("limit", strconv.Itoa(klinesPerPage))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+klinesPath+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("binance klines: http %d: %s", resp.StatusCode, string(body))
	}
	var rows []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, err
	}
	return parseKlines(rows)
}

// parseKlines decodes Binance's positional kline arrays:
// [openTime, open, high, low, close, volume, ...].
func parseKlines(rows []json.RawMessage) ([]market.PricePoint, error) {
	out := make([]market.PricePoint, 0, len(rows))
	for i, raw := range rows {
		var fields []any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("kline %d: %w", i, err)
		}
		if len(fields) < 5 {
			return nil, fmt.Errorf("kline %d: %d fields", i, len(fields))
		}
		openTime, ok := fields[0].(float64)
		if !ok {
			return nil, fmt.Errorf("kline %d: open time is %T", i, fields[0])
		}
		closeStr, ok := fields[4].(string)
		if !ok {
			return nil, fmt.Errorf("kline %d: close is %T", i, fields[4])
		}
		closePrice, err := strconv.ParseFloat(closeStr, 64)
		if err != nil {
			return nil, fmt.Errorf("kline %d: close %q: %w", i, closeStr, err)
		}
		out = append(out, market.PricePoint{
			Time:  time.UnixMilli(int64(openTime)).UTC(),
			Price: closePrice,
		})
	}
	return out, nil
}

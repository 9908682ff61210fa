package hl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"univ2-hedge-backtest/internal/market"

	"go.uber.org/zap"
)

// Client loads historical funding rates from the Hyperliquid info API.
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

type fundingRequest struct {
	Type      string `json:"type"`
	Coin      string `json:"coin"`
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime,omitempty"`
}

type fundingEntry struct {
	Coin        string `json:"coin"`
	FundingRate string `json:"fundingRate"`
	Time        int64  `json:"time"`
}

// FundingHistory pages through fundingHistory for [start, end) and
// returns hourly funding points aligned to the top of the hour. The API
// caps each response, so the cursor advances past the last entry until
// the window is drained.
func (c *Client) FundingHistory(ctx context.Context, coin string, start, end time.Time) ([]market.FundingPoint, error) {
	out := make([]market.FundingPoint, 0, end.Sub(start)/time.Hour+1)
	cursor := start.UnixMilli()
	endMS := end.UnixMilli()
	for cursor < endMS {
		entries, err := c.fetchPage(ctx, coin, cursor, endMS)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			break
		}
		for _, entry := range entries {
			rate, err := strconv.ParseFloat(entry.FundingRate, 64)
			if err != nil {
				return nil, fmt.Errorf("funding rate %q at %d: %w", entry.FundingRate, entry.Time, err)
			}
			out = append(out, market.FundingPoint{
				Time: time.UnixMilli(entry.Time).UTC().Truncate(time.Hour),
				Rate: rate,
			})
		}
		next := entries[len(entries)-1].Time + 1
		if next <= cursor {
			break
		}
		cursor = next
	}
	if c.log != nil {
		c.log.Debug("loaded funding history",
			zap.String("coin", coin),
			zap.Int("rows", len(out)))
	}
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, coin string, startMS, endMS int64) ([]fundingEntry, error) {
	payload, err := json.Marshal(fundingRequest{
		Type:      "fundingHistory",
		Coin:      coin,
		StartTime: startMS,
		EndTime:   endMS,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/info", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("funding history: http %d: %s", resp.StatusCode, string(body))
	}
	var entries []fundingEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, err
	}
	return entries, nil
}

package thegraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"univ2-hedge-backtest/internal/market"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const pageSize = 1000

// Client loads Uniswap V2 pair-day analytics from a Graph endpoint. The
// subgraph reports human-unit decimal strings; liquidity is rescaled to
// 18-decimal fixed point before it reaches the engine.
type Client struct {
	url    string
	apiKey string
	http   *http.Client
	log    *zap.Logger
}

func New(url, apiKey string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		url:    url,
		apiKey: apiKey,
		http:   &http.Client{Timeout: timeout},
		log:    log,
	}
}

const pairDayQuery = `query ($pair: String!, $from: Int!, $to: Int!, $skip: Int!) {
  pairDayDatas(
    first: %d
    skip: $skip
    orderBy: date
    orderDirection: asc
    where: { pairAddress: $pair, date_gte: $from, date_lt: $to }
  ) {
    date
    reserveUSD
    dailyVolumeUSD
    totalSupply
  }
}`

type graphRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphResponse struct {
	Data struct {
		PairDayDatas []pairDayData `json:"pairDayDatas"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type pairDayData struct {
	Date           int64  `json:"date"`
	ReserveUSD     string `json:"reserveUSD"`
	DailyVolumeUSD string `json:"dailyVolumeUSD"`
	TotalSupply    string `json:"totalSupply"`
}

// PoolHistory pages pair-day rows for [start, end) and converts them
// into pool points carrying the configured fee tier.
func (c *Client) PoolHistory(ctx context.Context, pair common.Address, feeRate float64, start, end time.Time) ([]market.PoolPoint, error) {
	out := make([]market.PoolPoint, 0, end.Sub(start)/(24*time.Hour)+1)
	skip := 0
	for {
		page, err := c.fetchPage(ctx, pair, start, end, skip)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for _, row := range page {
			point, err := poolPointFromRow(row, feeRate)
			if err != nil {
				return nil, err
			}
			out = append(out, point)
		}
		if len(page) < pageSize {
			break
		}
		skip += pageSize
	}
	if c.log != nil {
		c.log.Debug("loaded pool history",
			zap.String("pair", pair.Hex()),
			zap.Int("rows", len(out)))
	}
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, pair common.Address, start, end time.Time, skip int) ([]pairDayData, error) {
	payload, err := json.Marshal(graphRequest{
		Query: fmt.Sprintf(pairDayQuery, pageSize),
		Variables: map[string]any{
			"pair": strings.ToLower(pair.Hex()),
			"from": start.Unix(),
			"to":   end.Unix(),
			"skip": skip,
		},
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("graph query: http %d: %s", resp.StatusCode, string(body))
	}
	var decoded graphResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	if len(decoded.Errors) > 0 {
		return nil, fmt.Errorf("graph query: %s", decoded.Errors[0].Message)
	}
	return decoded.Data.PairDayDatas, nil
}

func poolPointFromRow(row pairDayData, feeRate float64) (market.PoolPoint, error) {
	tvl, err := decimal.NewFromString(row.ReserveUSD)
	if err != nil {
		return market.PoolPoint{}, fmt.Errorf("reserveUSD %q: %w", row.ReserveUSD, err)
	}
	volume, err := decimal.NewFromString(row.DailyVolumeUSD)
	if err != nil {
		return market.PoolPoint{}, fmt.Errorf("dailyVolumeUSD %q: %w", row.DailyVolumeUSD, err)
	}
	supply, err := decimal.NewFromString(row.TotalSupply)
	if err != nil {
		return market.PoolPoint{}, fmt.Errorf("totalSupply %q: %w", row.TotalSupply, err)
	}
	return market.PoolPoint{
		Time:      time.Unix(row.Date, 0).UTC(),
		TVL:       tvl.InexactFloat64(),
		Volume:    volume.InexactFloat64(),
		FeeRate:   feeRate,
		Liquidity: supply.Shift(18).BigInt(),
	}, nil
}

package market

import (
	"math"
	"math/big"
	"sort"
	"time"
)

// Loader output tables. Each loader produces one of these, indexed by
// timestamp; the join below lines them up into observations.

type PricePoint struct {
	Time  time.Time
	Price float64
}

type FundingPoint struct {
	Time time.Time
	Rate float64
}

type PoolPoint struct {
	Time      time.Time
	TVL       float64
	Volume    float64
	FeeRate   float64
	Liquidity *big.Int
}

// Join inner-joins the three loader tables on timestamp. Rows missing
// from any table are dropped, as are rows with non-finite values, so the
// engine only ever sees complete observations. Output is sorted ascending
// and deduplicated (last write wins on duplicate source timestamps).
func Join(prices []PricePoint, fundings []FundingPoint, pools []PoolPoint) []Observation {
	priceByTS := make(map[int64]PricePoint, len(prices))
	for _, p := range prices {
		priceByTS[p.Time.Unix()] = p
	}
	fundingByTS := make(map[int64]FundingPoint, len(fundings))
	for _, f := range fundings {
		fundingByTS[f.Time.Unix()] = f
	}

	out := make([]Observation, 0, len(pools))
	for _, pool := range pools {
		ts := pool.Time.Unix()
		price, ok := priceByTS[ts]
		if !ok {
			continue
		}
		funding, ok := fundingByTS[ts]
		if !ok {
			continue
		}
		obs := Observation{
			Timestamp:     pool.Time.UTC(),
			ETHPrice:      price.Price,
			FundingRate:   funding.Rate,
			PoolTVL:       pool.TVL,
			PoolVolume:    pool.Volume,
			PoolFeeRate:   pool.FeeRate,
			PoolLiquidity: pool.Liquidity,
		}
		if !obs.Valid() || !finite(obs.PoolTVL) || !finite(obs.PoolVolume) {
			continue
		}
		out = append(out, obs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return dedupe(out)
}

func dedupe(obs []Observation) []Observation {
	if len(obs) < 2 {
		return obs
	}
	out := obs[:1]
	for _, o := range obs[1:] {
		if o.Timestamp.Equal(out[len(out)-1].Timestamp) {
			out[len(out)-1] = o
			continue
		}
		out = append(out, o)
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

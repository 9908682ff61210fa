package market

import (
	"fmt"
	"math"
	"math/big"
	"time"
)

// Observation is one joined market snapshot: perp mark price and funding
// rate for the hedged asset plus pool-level analytics for the LP leg.
// PoolLiquidity is the pair's LP-token total supply in raw 18-decimal
// fixed point, as read from the contract or the subgraph.
type Observation struct {
	Timestamp     time.Time
	ETHPrice      float64
	FundingRate   float64
	PoolTVL       float64
	PoolVolume    float64
	PoolFeeRate   float64
	PoolLiquidity *big.Int
}

func (o Observation) Valid() bool {
	if o.ETHPrice <= 0 || math.IsNaN(o.ETHPrice) || math.IsInf(o.ETHPrice, 0) {
		return false
	}
	if math.IsNaN(o.FundingRate) {
		return false
	}
	return o.PoolLiquidity != nil && o.PoolLiquidity.Sign() >= 0
}

// Series is an ordered observation sequence. Construction enforces the
// input contract of the simulation: strictly increasing timestamps and
// no invalid rows.
type Series struct {
	obs []Observation
}

func NewSeries(obs []Observation) (*Series, error) {
	if len(obs) == 0 {
		return nil, fmt.Errorf("observation series is empty")
	}
	for i, o := range obs {
		if !o.Valid() {
			return nil, fmt.Errorf("observation %d at %s is invalid", i, o.Timestamp.UTC().Format(time.RFC3339))
		}
		if i > 0 && !obs[i-1].Timestamp.Before(o.Timestamp) {
			return nil, fmt.Errorf("timestamps not strictly increasing at index %d (%s)", i, o.Timestamp.UTC().Format(time.RFC3339))
		}
	}
	return &Series{obs: obs}, nil
}

func (s *Series) Len() int {
	return len(s.obs)
}

func (s *Series) At(i int) Observation {
	return s.obs[i]
}

func (s *Series) Observations() []Observation {
	out := make([]Observation, len(s.obs))
	copy(out, s.obs)
	return out
}

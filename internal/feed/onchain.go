package feed

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Method selectors for the Uniswap V2 pair contract.
var (
	getReservesSelector = common.Hex2Bytes("0902f1ac")
	totalSupplySelector = common.Hex2Bytes("18160ddd")
)

// ContractCaller is the subset of ethclient.Client used for pair reads.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// PoolState is a point-in-time read of a Uniswap V2 pair.
type PoolState struct {
	Reserve0    *big.Int
	Reserve1    *big.Int
	TotalSupply *big.Int
}

// OnchainReader reads pair reserves and LP supply over JSON-RPC.
type OnchainReader struct {
	caller ContractCaller
	pair   common.Address
}

func NewOnchainReader(caller ContractCaller, pair common.Address) *OnchainReader {
	return &OnchainReader{caller: caller, pair: pair}
}

func (r *OnchainReader) ReadPool(ctx context.Context) (PoolState, error) {
	reservesRaw, err := r.call(ctx, getReservesSelector)
	if err != nil {
		return PoolState{}, fmt.Errorf("getReserves: %w", err)
	}
	if len(reservesRaw) < 96 {
		return PoolState{}, fmt.Errorf("getReserves: short return data (%d bytes)", len(reservesRaw))
	}
	supplyRaw, err := r.call(ctx, totalSupplySelector)
	if err != nil {
		return PoolState{}, fmt.Errorf("totalSupply: %w", err)
	}
	if len(supplyRaw) < 32 {
		return PoolState{}, fmt.Errorf("totalSupply: short return data (%d bytes)", len(supplyRaw))
	}
	state := PoolState{
		Reserve0:    new(big.Int).SetBytes(reservesRaw[0:32]),
		Reserve1:    new(big.Int).SetBytes(reservesRaw[32:64]),
		TotalSupply: new(big.Int).SetBytes(supplyRaw[0:32]),
	}
	if state.Reserve0.Sign() == 0 || state.Reserve1.Sign() == 0 {
		return PoolState{}, errors.New("pair has empty reserves")
	}
	return state, nil
}

func (r *OnchainReader) call(ctx context.Context, selector []byte) ([]byte, error) {
	msg := ethereum.CallMsg{To: &r.pair, Data: selector}
	return r.caller.CallContract(ctx, msg, nil)
}

// Price returns the token1 price in token0 units, adjusting for decimals.
// For a USDC/WETH pair this is the ETH price in USD.
func (s PoolState) Price(token0Decimals, token1Decimals int) float64 {
	r0 := toFloat(s.Reserve0, token0Decimals)
	r1 := toFloat(s.Reserve1, token1Decimals)
	if r1 == 0 {
		return 0
	}
	return r0 / r1
}

// TVL returns the pool value in token0 units, assuming token0 is the
// USD-denominated side.
func (s PoolState) TVL(token0Decimals int) float64 {
	return 2 * toFloat(s.Reserve0, token0Decimals)
}

func toFloat(v *big.Int, decimals int) float64 {
	if v == nil {
		return 0
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), scale).Float64()
	return f
}

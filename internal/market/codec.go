package market

import (
	"fmt"
	"math/big"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	_ msgpack.CustomEncoder = (*PoolPoint)(nil)
	_ msgpack.CustomDecoder = (*PoolPoint)(nil)
)

// EncodeMsgpack writes liquidity as a decimal string; big.Int has no
// exported fields, so reflection-based encoding would drop it.
func (p *PoolPoint) EncodeMsgpack(enc *msgpack.Encoder) error {
	liquidity := ""
	if p.Liquidity != nil {
		liquidity = p.Liquidity.String()
	}
	return enc.EncodeMulti(p.Time, p.TVL, p.Volume, p.FeeRate, liquidity)
}

func (p *PoolPoint) DecodeMsgpack(dec *msgpack.Decoder) error {
	var liquidity string
	if err := dec.DecodeMulti(&p.Time, &p.TVL, &p.Volume, &p.FeeRate, &liquidity); err != nil {
		return err
	}
	if liquidity == "" {
		p.Liquidity = nil
		return nil
	}
	value, ok := new(big.Int).SetString(liquidity, 10)
	if !ok {
		return fmt.Errorf("invalid pool liquidity %q", liquidity)
	}
	p.Liquidity = value
	return nil
}

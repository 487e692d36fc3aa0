package redemption

import (
	"context"
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Rari-Capital/fuse-liquidator-bot/internal/chain"
)

const factoryABIJSON = `[
  {"constant":true,"inputs":[{"internalType":"address","name":"","type":"address"},{"internalType":"address","name":"","type":"address"}],"name":"getPair","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

const pairABIJSON = `[
  {"constant":true,"inputs":[],"name":"getReserves","outputs":[{"internalType":"uint112","name":"_reserve0","type":"uint112"},{"internalType":"uint112","name":"_reserve1","type":"uint112"},{"internalType":"uint32","name":"_blockTimestampLast","type":"uint32"}],"stateMutability":"view","type":"function"},
  {"constant":true,"inputs":[],"name":"token0","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

var (
	factoryABI = chain.MustABI(factoryABIJSON)
	pairABI    = chain.MustABI(pairABIJSON)
)

// AMM is one UniswapV2-style deployment.
type AMM struct {
	Name    string
	Factory common.Address
	Router  common.Address
}

// RouterSelector picks the router with the deepest token/wrapped-native pair.
// The first configured AMM is the default.
type RouterSelector struct {
	reader        ChainReader
	wrappedNative common.Address
	amms          []AMM
}

func NewRouterSelector(reader ChainReader, wrappedNative common.Address, amms []AMM) *RouterSelector {
	return &RouterSelector{
		reader:        reader,
		wrappedNative: wrappedNative,
		amms:          append([]AMM(nil), amms...),
	}
}

// Default returns the preferred router, or the zero address when none is
// configured.
func (s *RouterSelector) Default() common.Address {
	if s == nil || len(s.amms) == 0 {
		return common.Address{}
	}
	return s.amms[0].Router
}

// Best returns the router whose pair holds the largest reserve of token.
// Read failures skip that AMM; if no pair is found the default is returned.
func (s *RouterSelector) Best(ctx context.Context, token common.Address) common.Address {
	if s == nil || len(s.amms) == 0 {
		return common.Address{}
	}
	if len(s.amms) == 1 || s.reader == nil || token == (common.Address{}) || token == s.wrappedNative {
		return s.Default()
	}

	best := s.Default()
	var bestReserve *big.Int
	for _, amm := range s.amms {
		reserve, err := s.reserveOf(ctx, amm, token)
		if err != nil {
			log.Printf("[warn] router %s: liquidity read for %s failed: %v", amm.Name, token.Hex(), err)
			continue
		}
		if reserve == nil || reserve.Sign() == 0 {
			continue
		}
		if bestReserve == nil || reserve.Cmp(bestReserve) > 0 {
			best = amm.Router
			bestReserve = reserve
		}
	}
	return best
}

func (s *RouterSelector) reserveOf(ctx context.Context, amm AMM, token common.Address) (*big.Int, error) {
	out, err := s.reader.Call(ctx, amm.Factory, factoryABI, "getPair", token, s.wrappedNative)
	if err != nil {
		return nil, err
	}
	pair, err := singleAddress(out)
	if err != nil {
		return nil, err
	}
	if pair == (common.Address{}) {
		return nil, nil
	}

	out, err = s.reader.Call(ctx, pair, pairABI, "token0")
	if err != nil {
		return nil, err
	}
	token0, err := singleAddress(out)
	if err != nil {
		return nil, err
	}

	out, err = s.reader.Call(ctx, pair, pairABI, "getReserves")
	if err != nil {
		return nil, err
	}
	if len(out) < 2 {
		return nil, ErrUnexpectedReply
	}
	r0, ok0 := out[0].(*big.Int)
	r1, ok1 := out[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, ErrUnexpectedReply
	}
	if token0 == token {
		return r0, nil
	}
	return r1, nil
}

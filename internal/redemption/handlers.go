package redemption

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/Rari-Capital/fuse-liquidator-bot/internal/chain"
)

const curveLiquidatorABIJSON = `[
  {"inputs":[],"name":"oracle","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

const curveLpOracleABIJSON = `[
  {"inputs":[{"internalType":"address","name":"lpToken","type":"address"}],"name":"underlyingTokens","outputs":[{"internalType":"address[]","name":"","type":"address[]"}],"stateMutability":"view","type":"function"}
]`

const vaultABIJSON = `[
  {"inputs":[],"name":"token","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

var (
	curveLiquidatorABI = chain.MustABI(curveLiquidatorABIJSON)
	curveLpOracleABI   = chain.MustABI(curveLpOracleABIJSON)
	vaultABI           = chain.MustABI(vaultABIJSON)

	curveRedeemArgs = abi.Arguments{
		{Type: chain.MustType("uint256")},
		{Type: chain.MustType("address")},
	}
)

// curveLPHandler withdraws a Curve LP token into its first underlying coin.
type curveLPHandler struct {
	reader   ChainReader
	strategy common.Address
}

func (h curveLPHandler) Resolve(ctx context.Context, token common.Address) (Result, error) {
	out, err := h.reader.Call(ctx, h.strategy, curveLiquidatorABI, "oracle")
	if err != nil {
		return Result{}, fmt.Errorf("oracle(): %w", err)
	}
	oracle, err := singleAddress(out)
	if err != nil {
		return Result{}, fmt.Errorf("oracle(): %w", err)
	}

	out, err = h.reader.Call(ctx, oracle, curveLpOracleABI, "underlyingTokens", token)
	if err != nil {
		return Result{}, fmt.Errorf("underlyingTokens(%s): %w", token.Hex(), err)
	}
	if len(out) != 1 {
		return Result{}, fmt.Errorf("underlyingTokens: %w: %d values", ErrUnexpectedReply, len(out))
	}
	coins, ok := out[0].([]common.Address)
	if !ok || len(coins) == 0 {
		return Result{}, fmt.Errorf("underlyingTokens: %w: %T", ErrUnexpectedReply, out[0])
	}

	data, err := curveRedeemArgs.Pack(big.NewInt(0), coins[0])
	if err != nil {
		return Result{}, err
	}
	return Result{Data: data, Next: coins[0]}, nil
}

// yearnVaultHandler redeems vault shares for the vault's want token.
type yearnVaultHandler struct {
	reader ChainReader
}

func (h yearnVaultHandler) Resolve(ctx context.Context, token common.Address) (Result, error) {
	out, err := h.reader.Call(ctx, token, vaultABI, "token")
	if err != nil {
		return Result{}, fmt.Errorf("token(): %w", err)
	}
	next, err := singleAddress(out)
	if err != nil {
		return Result{}, fmt.Errorf("token(): %w", err)
	}
	return Result{Next: next}, nil
}

// stakedUnwrapHandler unstakes a derivative into the token listed in the
// table's unwraps section.
type stakedUnwrapHandler struct {
	table Table
}

func (h stakedUnwrapHandler) Resolve(_ context.Context, token common.Address) (Result, error) {
	next, ok := h.table.Unwraps[token]
	if !ok {
		return Result{}, fmt.Errorf("no unwrap target for %s", token.Hex())
	}
	return Result{Next: next}, nil
}

func singleAddress(out []any) (common.Address, error) {
	if len(out) != 1 {
		return common.Address{}, fmt.Errorf("%w: %d values", ErrUnexpectedReply, len(out))
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %T", ErrUnexpectedReply, out[0])
	}
	return addr, nil
}

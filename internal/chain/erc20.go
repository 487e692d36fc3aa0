package chain

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	erc20DecimalsSelector  = crypto.Keccak256([]byte("decimals()"))[:4]
	erc20BalanceOfSelector = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
	erc20AllowanceSelector = crypto.Keccak256([]byte("allowance(address,address)"))[:4]
	erc20ApproveSelector   = crypto.Keccak256([]byte("approve(address,uint256)"))[:4]
)

func balanceOfData(owner common.Address) []byte {
	data := make([]byte, 0, 4+32)
	data = append(data, erc20BalanceOfSelector...)
	return append(data, common.LeftPadBytes(owner.Bytes(), 32)...)
}

func allowanceData(owner, spender common.Address) []byte {
	data := make([]byte, 0, 4+32+32)
	data = append(data, erc20AllowanceSelector...)
	data = append(data, common.LeftPadBytes(owner.Bytes(), 32)...)
	return append(data, common.LeftPadBytes(spender.Bytes(), 32)...)
}

// ApproveData encodes approve(spender, amount).
func ApproveData(spender common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 4+32+32)
	data = append(data, erc20ApproveSelector...)
	data = append(data, common.LeftPadBytes(spender.Bytes(), 32)...)
	return append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
}

// MaxUint256 is the conventional "unlimited" allowance.
func MaxUint256() *big.Int {
	return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
}

func (c *Client) callUint256(ctx context.Context, to common.Address, data []byte) (*big.Int, error) {
	out, err := c.CallRaw(ctx, ethereum.CallMsg{To: &to, Data: data})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errEmptyResult
	}
	return new(big.Int).SetBytes(out), nil
}

// Decimals reads an ERC20's decimals.
func (c *Client) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	v, err := c.callUint256(ctx, token, erc20DecimalsSelector)
	if err != nil {
		return 0, fmt.Errorf("decimals(%s): %w", token.Hex(), err)
	}
	if !v.IsUint64() || v.Uint64() > math.MaxUint8 {
		return 0, fmt.Errorf("decimals(%s): out of range %s", token.Hex(), v)
	}
	return uint8(v.Uint64()), nil
}

func (c *Client) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	v, err := c.callUint256(ctx, token, balanceOfData(owner))
	if err != nil {
		return nil, fmt.Errorf("balanceOf(%s) on %s: %w", owner.Hex(), token.Hex(), err)
	}
	return v, nil
}

func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	v, err := c.callUint256(ctx, token, allowanceData(owner, spender))
	if err != nil {
		return nil, fmt.Errorf("allowance(%s,%s) on %s: %w", owner.Hex(), spender.Hex(), token.Hex(), err)
	}
	return v, nil
}

// NeedsApproval reports whether an allowance has dropped below half of the
// unlimited value, the point at which it is topped back up.
func NeedsApproval(allowance *big.Int) bool {
	if allowance == nil || allowance.Sign() <= 0 {
		return true
	}
	half := new(big.Int).Rsh(MaxUint256(), 1)
	return allowance.Cmp(half) < 0
}

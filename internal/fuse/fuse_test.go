package fuse

import (
	"context"
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

// abiCaller answers lens calls by packing canned outputs and unpacking them
// again, so decoding runs through the real ABI.
type abiCaller struct {
	t       *testing.T
	outputs map[string][]any
	calls   map[string][]any
}

func (c *abiCaller) Call(_ context.Context, _ common.Address, contractABI abi.ABI, method string, args ...any) ([]any, error) {
	c.calls[method] = args
	data, err := contractABI.Methods[method].Outputs.Pack(c.outputs[method]...)
	require.NoError(c.t, err)
	return contractABI.Unpack(method, data)
}

func wad(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func lensAsset(ctoken, underlying byte, borrow, supply *big.Int, member bool) LensAsset {
	z := big.NewInt(0)
	return LensAsset{
		CToken:             common.BytesToAddress([]byte{0xc0, ctoken}),
		UnderlyingToken:    common.BytesToAddress([]byte{underlying}),
		UnderlyingName:     "Token",
		UnderlyingSymbol:   "TKN",
		UnderlyingDecimals: big.NewInt(18),
		UnderlyingBalance:  z, SupplyRatePerBlock: z, BorrowRatePerBlock: z,
		TotalSupply: z, TotalBorrow: z,
		SupplyBalance:    supply,
		BorrowBalance:    borrow,
		Liquidity:        z,
		Membership:       member,
		ExchangeRate:     z,
		UnderlyingPrice:  wad(1),
		CollateralFactor: z, ReserveFactor: z, AdminFee: z, FuseFee: z,
	}
}

func lensUser(account byte, totalBorrow int64) LensUser {
	return LensUser{
		Account:         common.BytesToAddress([]byte{account}),
		TotalBorrow:     big.NewInt(totalBorrow),
		TotalCollateral: big.NewInt(1),
		Health:          big.NewInt(9e17),
		Assets: []LensAsset{
			lensAsset(1, 0x11, wad(10), big.NewInt(0), false),
			lensAsset(2, 0x22, big.NewInt(0), wad(20), true),
		},
	}
}

func TestLens_PoolUsersDecodeAndOrder(t *testing.T) {
	comptroller := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	caller := &abiCaller{t: t, calls: map[string][]any{}, outputs: map[string][]any{
		"getPoolUsersWithData": {
			[][]LensUser{{lensUser(0xa1, 5), lensUser(0xa2, 50)}},
			[]*big.Int{big.NewInt(5e17)},
			[]*big.Int{big.NewInt(108e16)},
		},
	}}

	lens := NewLens(caller, common.HexToAddress("0x00000000000000000000000000000000000001e5"))
	pools, err := lens.LiquidatablePositions(context.Background(), Filter{Comptrollers: []common.Address{comptroller, comptroller}})
	require.NoError(t, err)
	require.Len(t, pools, 1)

	p := pools[0]
	require.Equal(t, comptroller, p.Pool.Comptroller)
	require.Equal(t, "500000000000000000", p.Pool.CloseFactor.Dec())
	require.Equal(t, "1080000000000000000", p.Pool.LiquidationIncentive.Dec())
	require.Len(t, p.Borrowers, 2)
	require.Equal(t, common.BytesToAddress([]byte{0xa2}), p.Borrowers[0].Account, "largest borrow first")

	a := p.Borrowers[0].Assets
	require.Len(t, a, 2)
	require.Equal(t, uint8(18), a[0].Decimals)
	require.Equal(t, "TKN", a[0].Symbol)
	require.Equal(t, wad(10).String(), a[0].BorrowBalance.Dec())
	require.True(t, a[1].Membership)

	args := caller.calls["getPoolUsersWithData"]
	require.Equal(t, []common.Address{comptroller}, args[0], "duplicate comptrollers are queried once")
	require.Equal(t, wad(1), args[1])
}

func TestLens_PublicPoolsSkipDuplicates(t *testing.T) {
	public := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	caller := &abiCaller{t: t, calls: map[string][]any{}, outputs: map[string][]any{
		"getPublicPoolUsersWithData": {
			[]common.Address{public},
			[][]LensUser{{lensUser(0xa1, 5)}},
			[]*big.Int{big.NewInt(5e17)},
			[]*big.Int{big.NewInt(108e16)},
		},
	}}
	lens := NewLens(caller, common.Address{})
	pools, err := lens.LiquidatablePositions(context.Background(), Filter{PublicPools: true, Comptrollers: []common.Address{public}})
	require.NoError(t, err)
	require.Len(t, pools, 1)
	_, queried := caller.calls["getPoolUsersWithData"]
	require.False(t, queried)
}

func TestLens_MalformedBorrowerDoesNotDropOtherPools(t *testing.T) {
	good := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	bad := common.HexToAddress("0x00000000000000000000000000000000000000c2")
	broken := lensUser(0xa3, 7)
	broken.Assets[0].UnderlyingDecimals = big.NewInt(77)

	caller := &abiCaller{t: t, calls: map[string][]any{}, outputs: map[string][]any{
		"getPoolUsersWithData": {
			[][]LensUser{{lensUser(0xa1, 5)}, {broken, lensUser(0xa4, 3)}},
			[]*big.Int{big.NewInt(5e17), big.NewInt(5e17)},
			[]*big.Int{big.NewInt(108e16), big.NewInt(108e16)},
		},
	}}
	lens := NewLens(caller, common.Address{})
	pools, err := lens.LiquidatablePositions(context.Background(), Filter{Comptrollers: []common.Address{good, bad}})
	require.NoError(t, err)
	require.Len(t, pools, 2)

	require.Equal(t, good, pools[0].Pool.Comptroller)
	require.Len(t, pools[0].Borrowers, 1)
	require.Zero(t, pools[0].Dropped)

	require.Equal(t, bad, pools[1].Pool.Comptroller)
	require.Len(t, pools[1].Borrowers, 1)
	require.Equal(t, common.BytesToAddress([]byte{0xa4}), pools[1].Borrowers[0].Account)
	require.Equal(t, 1, pools[1].Dropped)
}

func TestLens_LengthMismatchFailsDecode(t *testing.T) {
	caller := &abiCaller{t: t, calls: map[string][]any{}, outputs: map[string][]any{
		"getPoolUsersWithData": {
			[][]LensUser{{lensUser(0xa1, 5)}},
			[]*big.Int{big.NewInt(5e17)},
			[]*big.Int{},
		},
	}}
	lens := NewLens(caller, common.Address{})
	_, err := lens.LiquidatablePositions(context.Background(), Filter{Comptrollers: []common.Address{common.HexToAddress("0xc1")}})
	require.ErrorContains(t, err, "length mismatch")
}

func TestPackCall(t *testing.T) {
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	data, err := PackCall("transfer(address,uint256)", []any{to, big.NewInt(7)})
	require.NoError(t, err)
	require.Equal(t, "a9059cbb", hex.EncodeToString(data[:4]))
	require.Len(t, data, 4+64)
	require.Equal(t, byte(7), data[67])

	_, err = PackCall("transfer(address,uint256)", []any{to})
	require.Error(t, err)
	_, err = PackCall("transfer", nil)
	require.Error(t, err)

	data, err = PackCall("safeLiquidate(address,address,address,uint256,address,address,address[],bytes[])", []any{
		to, to, to, big.NewInt(0), to, common.Address{}, []common.Address{to}, [][]byte{{0x01}},
	})
	require.NoError(t, err)
	require.Greater(t, len(data), 4+8*32)
	require.Equal(t, "safeLiquidate", MethodName("safeLiquidate(address)"))
}

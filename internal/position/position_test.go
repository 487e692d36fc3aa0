package position

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

const wad = "1000000000000000000"

func u(s string) *uint256.Int { return uint256.MustFromDecimal(s) }

func asset(id byte, price, borrow, supply string, member bool) Asset {
	return Asset{
		CToken:          common.BytesToAddress([]byte{0xc0, id}),
		Underlying:      common.BytesToAddress([]byte{id}),
		Decimals:        18,
		UnderlyingPrice: u(price),
		BorrowBalance:   u(borrow),
		SupplyBalance:   u(supply),
		Membership:      member,
	}
}

func TestNormalize_FiltersAndRanks(t *testing.T) {
	b := Borrower{
		Account: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Assets: []Asset{
			asset(1, wad, "5", "0", true),
			asset(2, "2000000000000000000", "10", "100", true),
			asset(3, wad, "0", "500", false), // not entered as collateral
			asset(4, wad, "0", "300", true),
		},
	}

	n, err := Normalize(b)
	require.NoError(t, err)
	require.Len(t, n.Debt, 2)
	require.Equal(t, byte(2), n.Debt[0].Underlying[19])
	require.Equal(t, "20", n.Debt[0].BorrowValue.Dec())
	require.Equal(t, byte(1), n.Debt[1].Underlying[19])

	require.Len(t, n.Collateral, 2)
	require.Equal(t, byte(4), n.Collateral[0].Underlying[19])
	require.Equal(t, byte(2), n.Collateral[1].Underlying[19])
	require.True(t, n.Liquidatable())

	for _, a := range n.Debt {
		require.False(t, a.BorrowBalance.IsZero())
	}
	for _, a := range n.Collateral {
		require.True(t, a.Membership)
		require.False(t, a.SupplyBalance.IsZero())
	}
}

func TestNormalize_StableOnTies(t *testing.T) {
	b := Borrower{Assets: []Asset{
		asset(7, wad, "10", "10", true),
		asset(8, wad, "10", "10", true),
		asset(9, wad, "10", "10", true),
	}}
	n, err := Normalize(b)
	require.NoError(t, err)
	for i, want := range []byte{7, 8, 9} {
		require.Equal(t, want, n.Debt[i].Underlying[19])
		require.Equal(t, want, n.Collateral[i].Underlying[19])
	}
}

func TestNormalize_Unliquidatable(t *testing.T) {
	n, err := Normalize(Borrower{Assets: []Asset{asset(1, wad, "0", "10", true)}})
	require.NoError(t, err)
	require.Empty(t, n.Debt)
	require.False(t, n.Liquidatable())

	n, err = Normalize(Borrower{Assets: []Asset{asset(1, wad, "10", "10", false)}})
	require.NoError(t, err)
	require.Empty(t, n.Collateral)
	require.False(t, n.Liquidatable())
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	b := Borrower{Assets: []Asset{asset(1, wad, "10", "10", true)}}
	_, err := Normalize(b)
	require.NoError(t, err)
	require.Nil(t, b.Assets[0].BorrowValue)
	require.Nil(t, b.Debt)
}

func TestNormalize_SixDecimalValue(t *testing.T) {
	// 1000 units of a 6-decimal token at 0.0005 native each.
	a := Asset{
		Decimals:        6,
		UnderlyingPrice: u("500000000000000000000000000"),
		BorrowBalance:   u("1000000000"),
		SupplyBalance:   u("0"),
	}
	n, err := Normalize(Borrower{Assets: []Asset{a}})
	require.NoError(t, err)
	require.Equal(t, "500000000000000000", n.Debt[0].BorrowValue.Dec())
}

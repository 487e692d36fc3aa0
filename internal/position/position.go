// Package position models a borrower's cross-margin position in a lending
// pool and normalizes it into ranked debt and collateral lists.
package position

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/Rari-Capital/fuse-liquidator-bot/internal/fixedpoint"
)

// NativeToken is the sentinel address used for the chain's native currency.
var NativeToken = common.Address{}

// IsNative reports whether token is the native currency sentinel.
func IsNative(token common.Address) bool { return token == NativeToken }

// Asset is one market entry of a borrower's position.
//
// UnderlyingPrice follows the pool oracle convention: the 1e18-scaled value of
// one base unit of the underlying, so balance*UnderlyingPrice/1e18 is the value
// in the 18-decimal native base regardless of the token's decimals.
type Asset struct {
	CToken          common.Address `json:"cToken"`
	Underlying      common.Address `json:"underlyingToken"`
	Symbol          string         `json:"underlyingSymbol,omitempty"`
	Decimals        uint8          `json:"underlyingDecimals"`
	UnderlyingPrice *uint256.Int   `json:"underlyingPrice"`
	BorrowBalance   *uint256.Int   `json:"borrowBalance"`
	SupplyBalance   *uint256.Int   `json:"supplyBalance"`
	Membership      bool           `json:"membership"`

	BorrowValue *uint256.Int `json:"borrowValue,omitempty"`
	SupplyValue *uint256.Int `json:"supplyValue,omitempty"`
}

// Native reports whether the asset's underlying is the native currency.
func (a Asset) Native() bool { return IsNative(a.Underlying) }

// Label returns the symbol when known, else the underlying address.
func (a Asset) Label() string {
	if a.Symbol != "" {
		return a.Symbol
	}
	return a.Underlying.Hex()
}

// Borrower is a single account's position across one pool.
type Borrower struct {
	Account      common.Address `json:"account"`
	TotalBorrow  *uint256.Int   `json:"totalBorrow,omitempty"`
	TotalCollat  *uint256.Int   `json:"totalCollateral,omitempty"`
	HealthFactor *uint256.Int   `json:"health,omitempty"`
	Assets       []Asset        `json:"assets"`

	// Populated by Normalize.
	Debt       []Asset `json:"-"`
	Collateral []Asset `json:"-"`
}

// Liquidatable reports whether a normalized borrower has both a debt and a
// collateral asset to act on.
func (b Borrower) Liquidatable() bool {
	return len(b.Debt) > 0 && len(b.Collateral) > 0
}

// Pool holds the per-pool liquidation parameters, both WAD-scaled.
type Pool struct {
	Comptroller          common.Address `json:"comptroller"`
	Name                 string         `json:"name,omitempty"`
	CloseFactor          *uint256.Int   `json:"closeFactor"`
	LiquidationIncentive *uint256.Int   `json:"liquidationIncentive"`
}

// PoolPositions groups the at-risk borrowers of one pool.
type PoolPositions struct {
	Pool      Pool       `json:"pool"`
	Borrowers []Borrower `json:"borrowers"`
	// Dropped counts borrower records that could not be decoded.
	Dropped int `json:"dropped,omitempty"`
}

// Normalize returns a copy of b with asset values computed and the debt and
// collateral lists filtered and ranked by value, largest first. Ties keep
// their input order.
func Normalize(b Borrower) (Borrower, error) {
	out := b
	out.Assets = make([]Asset, len(b.Assets))
	out.Debt = nil
	out.Collateral = nil

	for i, a := range b.Assets {
		if int(a.Decimals) >= fixedpoint.MaxDecimals {
			return Borrower{}, fmt.Errorf("asset %s: %w: %d", a.Label(), fixedpoint.ErrInvalidDecimals, a.Decimals)
		}
		price := orZero(a.UnderlyingPrice)
		borrow := orZero(a.BorrowBalance)
		supply := orZero(a.SupplyBalance)

		bv, err := fixedpoint.MulWad(borrow, price)
		if err != nil {
			return Borrower{}, fmt.Errorf("asset %s borrow value: %w", a.Label(), err)
		}
		sv, err := fixedpoint.MulWad(supply, price)
		if err != nil {
			return Borrower{}, fmt.Errorf("asset %s supply value: %w", a.Label(), err)
		}

		a.UnderlyingPrice = price
		a.BorrowBalance = borrow
		a.SupplyBalance = supply
		a.BorrowValue = bv
		a.SupplyValue = sv
		out.Assets[i] = a

		if !borrow.IsZero() {
			out.Debt = append(out.Debt, a)
		}
		if a.Membership && !supply.IsZero() {
			out.Collateral = append(out.Collateral, a)
		}
	}

	sort.SliceStable(out.Debt, func(i, j int) bool {
		return out.Debt[i].BorrowValue.Gt(out.Debt[j].BorrowValue)
	})
	sort.SliceStable(out.Collateral, func(i, j int) bool {
		return out.Collateral[i].SupplyValue.Gt(out.Collateral[j].SupplyValue)
	})
	return out, nil
}

func orZero(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return x
}

// Package fuse reads at-risk positions from a pool lens contract and encodes
// calls to the safe liquidator contract.
package fuse

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/Rari-Capital/fuse-liquidator-bot/internal/chain"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/fixedpoint"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/position"
)

const assetTuple = `{"components":[
  {"internalType":"address","name":"cToken","type":"address"},
  {"internalType":"address","name":"underlyingToken","type":"address"},
  {"internalType":"string","name":"underlyingName","type":"string"},
  {"internalType":"string","name":"underlyingSymbol","type":"string"},
  {"internalType":"uint256","name":"underlyingDecimals","type":"uint256"},
  {"internalType":"uint256","name":"underlyingBalance","type":"uint256"},
  {"internalType":"uint256","name":"supplyRatePerBlock","type":"uint256"},
  {"internalType":"uint256","name":"borrowRatePerBlock","type":"uint256"},
  {"internalType":"uint256","name":"totalSupply","type":"uint256"},
  {"internalType":"uint256","name":"totalBorrow","type":"uint256"},
  {"internalType":"uint256","name":"supplyBalance","type":"uint256"},
  {"internalType":"uint256","name":"borrowBalance","type":"uint256"},
  {"internalType":"uint256","name":"liquidity","type":"uint256"},
  {"internalType":"bool","name":"membership","type":"bool"},
  {"internalType":"uint256","name":"exchangeRate","type":"uint256"},
  {"internalType":"uint256","name":"underlyingPrice","type":"uint256"},
  {"internalType":"address","name":"oracle","type":"address"},
  {"internalType":"uint256","name":"collateralFactor","type":"uint256"},
  {"internalType":"uint256","name":"reserveFactor","type":"uint256"},
  {"internalType":"uint256","name":"adminFee","type":"uint256"},
  {"internalType":"uint256","name":"fuseFee","type":"uint256"},
  {"internalType":"bool","name":"borrowGuardianPaused","type":"bool"}
],"internalType":"struct FusePoolLens.FusePoolAsset[]","name":"assets","type":"tuple[]"}`

const userTuple = `{"components":[
  {"internalType":"address","name":"account","type":"address"},
  {"internalType":"uint256","name":"totalBorrow","type":"uint256"},
  {"internalType":"uint256","name":"totalCollateral","type":"uint256"},
  {"internalType":"uint256","name":"health","type":"uint256"},
  ` + assetTuple + `
],"internalType":"struct FusePoolLens.FusePoolUser[][]","name":"","type":"tuple[][]"}`

var lensABIJSON = `[
  {"inputs":[{"internalType":"uint256","name":"maxHealth","type":"uint256"}],
   "name":"getPublicPoolUsersWithData",
   "outputs":[
     {"internalType":"address[]","name":"","type":"address[]"},
     ` + userTuple + `,
     {"internalType":"uint256[]","name":"","type":"uint256[]"},
     {"internalType":"uint256[]","name":"","type":"uint256[]"}
   ],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"internalType":"address[]","name":"comptrollers","type":"address[]"},{"internalType":"uint256","name":"maxHealth","type":"uint256"}],
   "name":"getPoolUsersWithData",
   "outputs":[
     ` + userTuple + `,
     {"internalType":"uint256[]","name":"","type":"uint256[]"},
     {"internalType":"uint256[]","name":"","type":"uint256[]"}
   ],"stateMutability":"nonpayable","type":"function"}
]`

var lensABI = chain.MustABI(lensABIJSON)

// LensAsset mirrors FusePoolLens.FusePoolAsset field for field.
type LensAsset struct {
	CToken               common.Address
	UnderlyingToken      common.Address
	UnderlyingName       string
	UnderlyingSymbol     string
	UnderlyingDecimals   *big.Int
	UnderlyingBalance    *big.Int
	SupplyRatePerBlock   *big.Int
	BorrowRatePerBlock   *big.Int
	TotalSupply          *big.Int
	TotalBorrow          *big.Int
	SupplyBalance        *big.Int
	BorrowBalance        *big.Int
	Liquidity            *big.Int
	Membership           bool
	ExchangeRate         *big.Int
	UnderlyingPrice      *big.Int
	Oracle               common.Address
	CollateralFactor     *big.Int
	ReserveFactor        *big.Int
	AdminFee             *big.Int
	FuseFee              *big.Int
	BorrowGuardianPaused bool
}

// LensUser mirrors FusePoolLens.FusePoolUser.
type LensUser struct {
	Account         common.Address
	TotalBorrow     *big.Int
	TotalCollateral *big.Int
	Health          *big.Int
	Assets          []LensAsset
}

// Caller performs read-only contract calls.
type Caller interface {
	Call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...any) ([]any, error)
}

// Filter selects which pools to scan.
type Filter struct {
	PublicPools  bool
	Comptrollers []common.Address
	// MaxHealth is the WAD-scaled health ceiling; defaults to 1e18.
	MaxHealth *big.Int
}

// Lens reads positions from a FusePoolLens deployment.
type Lens struct {
	caller  Caller
	address common.Address
}

func NewLens(caller Caller, address common.Address) *Lens {
	return &Lens{caller: caller, address: address}
}

// LiquidatablePositions returns the under-water borrowers of the public pools
// (when enabled) and of each listed comptroller not already covered. Borrowers
// are ordered by total borrow, largest first. Borrower records that fail to
// decode are logged, left out and counted in PoolPositions.Dropped; only a
// malformed response as a whole is an error.
func (l *Lens) LiquidatablePositions(ctx context.Context, f Filter) ([]position.PoolPositions, error) {
	maxHealth := f.MaxHealth
	if maxHealth == nil || maxHealth.Sign() <= 0 {
		maxHealth = fixedpoint.WAD().ToBig()
	}

	var out []position.PoolPositions
	seen := make(map[common.Address]struct{})

	if f.PublicPools {
		res, err := l.caller.Call(ctx, l.address, lensABI, "getPublicPoolUsersWithData", maxHealth)
		if err != nil {
			return nil, fmt.Errorf("getPublicPoolUsersWithData: %w", err)
		}
		if len(res) < 4 {
			return nil, fmt.Errorf("getPublicPoolUsersWithData: %d return values", len(res))
		}
		comptrollers, ok := res[0].([]common.Address)
		if !ok {
			return nil, fmt.Errorf("getPublicPoolUsersWithData: unexpected comptrollers %T", res[0])
		}
		pools, err := gather(comptrollers, res[1], res[2], res[3])
		if err != nil {
			return nil, fmt.Errorf("getPublicPoolUsersWithData: %w", err)
		}
		for _, p := range pools {
			seen[p.Pool.Comptroller] = struct{}{}
		}
		out = append(out, pools...)
	}

	var rest []common.Address
	for _, c := range f.Comptrollers {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		rest = append(rest, c)
	}
	if len(rest) == 0 {
		return out, nil
	}

	res, err := l.caller.Call(ctx, l.address, lensABI, "getPoolUsersWithData", rest, maxHealth)
	if err != nil {
		return nil, fmt.Errorf("getPoolUsersWithData: %w", err)
	}
	if len(res) < 3 {
		return nil, fmt.Errorf("getPoolUsersWithData: %d return values", len(res))
	}
	pools, err := gather(rest, res[0], res[1], res[2])
	if err != nil {
		return nil, fmt.Errorf("getPoolUsersWithData: %w", err)
	}
	return append(out, pools...), nil
}

func gather(comptrollers []common.Address, rawUsers, rawClose, rawIncentive any) (pools []position.PoolPositions, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decode pool users: %v", r)
		}
	}()
	users := *abi.ConvertType(rawUsers, new([][]LensUser)).(*[][]LensUser)
	closeFactors, ok := rawClose.([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected close factors %T", rawClose)
	}
	incentives, ok := rawIncentive.([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected liquidation incentives %T", rawIncentive)
	}
	if len(users) != len(comptrollers) || len(closeFactors) != len(comptrollers) || len(incentives) != len(comptrollers) {
		return nil, fmt.Errorf("length mismatch: %d comptrollers, %d user sets, %d close factors, %d incentives",
			len(comptrollers), len(users), len(closeFactors), len(incentives))
	}

	for i, c := range comptrollers {
		cf, err := fixedpoint.FromBig(closeFactors[i])
		if err != nil {
			log.Printf("[warn] lens: skip pool %s: close factor: %v", c.Hex(), err)
			continue
		}
		li, err := fixedpoint.FromBig(incentives[i])
		if err != nil {
			log.Printf("[warn] lens: skip pool %s: incentive: %v", c.Hex(), err)
			continue
		}
		borrowers := make([]position.Borrower, 0, len(users[i]))
		dropped := 0
		for _, u := range users[i] {
			b, err := toBorrower(u)
			if err != nil {
				log.Printf("[warn] lens: pool %s: skip borrower: %v", c.Hex(), err)
				dropped++
				continue
			}
			borrowers = append(borrowers, b)
		}
		sort.SliceStable(borrowers, func(a, b int) bool {
			return borrowers[a].TotalBorrow.Gt(borrowers[b].TotalBorrow)
		})
		pools = append(pools, position.PoolPositions{
			Pool:      position.Pool{Comptroller: c, CloseFactor: cf, LiquidationIncentive: li},
			Borrowers: borrowers,
			Dropped:   dropped,
		})
	}
	return pools, nil
}

// toBorrower converts a lens record.
func toBorrower(u LensUser) (position.Borrower, error) {
	b := position.Borrower{Account: u.Account, Assets: make([]position.Asset, 0, len(u.Assets))}
	var err error
	if b.TotalBorrow, err = fixedpoint.FromBig(u.TotalBorrow); err != nil {
		return position.Borrower{}, fmt.Errorf("%s total borrow: %w", u.Account.Hex(), err)
	}
	if b.TotalCollat, err = fixedpoint.FromBig(u.TotalCollateral); err != nil {
		return position.Borrower{}, fmt.Errorf("%s total collateral: %w", u.Account.Hex(), err)
	}
	if b.HealthFactor, err = fixedpoint.FromBig(u.Health); err != nil {
		return position.Borrower{}, fmt.Errorf("%s health: %w", u.Account.Hex(), err)
	}
	for _, a := range u.Assets {
		asset, err := toAsset(a)
		if err != nil {
			return position.Borrower{}, fmt.Errorf("%s: %w", u.Account.Hex(), err)
		}
		b.Assets = append(b.Assets, asset)
	}
	return b, nil
}

func toAsset(a LensAsset) (position.Asset, error) {
	if a.UnderlyingDecimals == nil || !a.UnderlyingDecimals.IsUint64() || a.UnderlyingDecimals.Uint64() >= fixedpoint.MaxDecimals {
		return position.Asset{}, fmt.Errorf("asset %s: %w: %v", a.CToken.Hex(), fixedpoint.ErrInvalidDecimals, a.UnderlyingDecimals)
	}
	price, err := fixedpoint.FromBig(a.UnderlyingPrice)
	if err != nil {
		return position.Asset{}, fmt.Errorf("asset %s price: %w", a.CToken.Hex(), err)
	}
	borrow, err := fixedpoint.FromBig(a.BorrowBalance)
	if err != nil {
		return position.Asset{}, fmt.Errorf("asset %s borrow: %w", a.CToken.Hex(), err)
	}
	supply, err := fixedpoint.FromBig(a.SupplyBalance)
	if err != nil {
		return position.Asset{}, fmt.Errorf("asset %s supply: %w", a.CToken.Hex(), err)
	}
	return position.Asset{
		CToken:          a.CToken,
		Underlying:      a.UnderlyingToken,
		Symbol:          a.UnderlyingSymbol,
		Decimals:        uint8(a.UnderlyingDecimals.Uint64()),
		UnderlyingPrice: price,
		BorrowBalance:   borrow,
		SupplyBalance:   supply,
		Membership:      a.Membership,
	}, nil
}

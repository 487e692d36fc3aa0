package engine

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/Rari-Capital/fuse-liquidator-bot/internal/fixedpoint"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/position"
)

// Sizing is the repay and seize side of one liquidation. Amounts are in the
// respective token's native decimals; values are in the 18-decimal native base.
type Sizing struct {
	RepayAmount *uint256.Int
	RepayValue  *uint256.Int
	SeizeAmount *uint256.Int
	SeizeValue  *uint256.Int
	// Clamped is set when the borrower's collateral balance capped the seize.
	Clamped bool
}

// Size computes how much debt to repay and how much collateral that seizes,
// clamping to the collateral actually held. fee is the WAD-scaled protocol
// liquidation fee (zero to disable).
func Size(debt, collateral position.Asset, pool position.Pool, fee *uint256.Int) (Sizing, error) {
	if pool.CloseFactor == nil || pool.LiquidationIncentive == nil || pool.LiquidationIncentive.IsZero() {
		return Sizing{}, fmt.Errorf("%w: pool %s missing close factor or incentive", ErrConfiguration, pool.Comptroller.Hex())
	}
	if fee == nil {
		fee = new(uint256.Int)
	}

	debtPrice, err := fixedpoint.WholeUnitPrice(debt.UnderlyingPrice, debt.Decimals)
	if err != nil {
		return Sizing{}, fmt.Errorf("debt %s price: %w", debt.Label(), err)
	}
	if debtPrice.IsZero() {
		return Sizing{}, fmt.Errorf("%w: debt %s", ErrPriceUnavailable, debt.Label())
	}
	colPrice, err := fixedpoint.WholeUnitPrice(collateral.UnderlyingPrice, collateral.Decimals)
	if err != nil {
		return Sizing{}, fmt.Errorf("collateral %s price: %w", collateral.Label(), err)
	}
	if colPrice.IsZero() {
		return Sizing{}, fmt.Errorf("%w: collateral %s", ErrPriceUnavailable, collateral.Label())
	}

	repayAmount, err := fixedpoint.MulWad(debt.BorrowBalance, pool.CloseFactor)
	if err != nil {
		return Sizing{}, fmt.Errorf("repay amount: %w", err)
	}
	repay18, err := fixedpoint.ToBase18(repayAmount, debt.Decimals)
	if err != nil {
		return Sizing{}, fmt.Errorf("repay amount: %w", err)
	}
	repayValue, err := fixedpoint.MulWad(repay18, debtPrice)
	if err != nil {
		return Sizing{}, fmt.Errorf("repay value: %w", err)
	}

	netRepay, err := applyFee(repayValue, fee)
	if err != nil {
		return Sizing{}, err
	}
	seizeValue, err := fixedpoint.MulWad(netRepay, pool.LiquidationIncentive)
	if err != nil {
		return Sizing{}, fmt.Errorf("seize value: %w", err)
	}
	seize18, err := fixedpoint.DivWad(seizeValue, colPrice)
	if err != nil {
		return Sizing{}, fmt.Errorf("seize amount: %w", err)
	}

	held18, err := fixedpoint.ToBase18(collateral.SupplyBalance, collateral.Decimals)
	if err != nil {
		return Sizing{}, fmt.Errorf("collateral balance: %w", err)
	}

	if !seize18.Gt(held18) {
		seizeAmount, err := fixedpoint.FromBase18(seize18, collateral.Decimals)
		if err != nil {
			return Sizing{}, fmt.Errorf("seize amount: %w", err)
		}
		return Sizing{
			RepayAmount: repayAmount,
			RepayValue:  repayValue,
			SeizeAmount: seizeAmount,
			SeizeValue:  seizeValue,
		}, nil
	}

	// Seize everything held and derive the repay backwards from it.
	seizeValue, err = fixedpoint.MulWad(held18, colPrice)
	if err != nil {
		return Sizing{}, fmt.Errorf("clamped seize value: %w", err)
	}
	netRepay, err = fixedpoint.DivWad(seizeValue, pool.LiquidationIncentive)
	if err != nil {
		return Sizing{}, fmt.Errorf("clamped repay value: %w", err)
	}
	repayValue, err = removeFee(netRepay, fee)
	if err != nil {
		return Sizing{}, err
	}
	repay18, err = fixedpoint.DivWad(repayValue, debtPrice)
	if err != nil {
		return Sizing{}, fmt.Errorf("clamped repay amount: %w", err)
	}
	repayAmount, err = fixedpoint.FromBase18(repay18, debt.Decimals)
	if err != nil {
		return Sizing{}, fmt.Errorf("clamped repay amount: %w", err)
	}
	return Sizing{
		RepayAmount: repayAmount,
		RepayValue:  repayValue,
		SeizeAmount: new(uint256.Int).Set(collateral.SupplyBalance),
		SeizeValue:  seizeValue,
		Clamped:     true,
	}, nil
}

// applyFee returns v*(1e18-fee)/1e18.
func applyFee(v, fee *uint256.Int) (*uint256.Int, error) {
	if fee.IsZero() {
		return new(uint256.Int).Set(v), nil
	}
	cut, err := fixedpoint.MulWad(v, fee)
	if err != nil {
		return nil, fmt.Errorf("liquidation fee: %w", err)
	}
	return fixedpoint.SubFloor(v, cut), nil
}

// removeFee is the inverse of applyFee: v*1e18/(1e18-fee).
func removeFee(v, fee *uint256.Int) (*uint256.Int, error) {
	if fee.IsZero() {
		return new(uint256.Int).Set(v), nil
	}
	keep := fixedpoint.SubFloor(fixedpoint.WAD(), fee)
	out, err := fixedpoint.DivWad(v, keep)
	if err != nil {
		return nil, fmt.Errorf("liquidation fee: %w", err)
	}
	return out, nil
}

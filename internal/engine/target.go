package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/Rari-Capital/fuse-liquidator-bot/internal/fixedpoint"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/position"
)

// Target is the token seized collateral ends up in, with its whole-unit price
// in the native base.
type Target struct {
	Token          common.Address
	Price          *uint256.Int
	Decimals       uint8
	FromCollateral bool
}

func (e *Engine) inputRestricted() bool {
	return e.cfg.Mode == ModeDirect && len(e.inputs) > 0
}

func (e *Engine) inputAllowed(debt position.Asset) bool {
	if !e.inputRestricted() {
		return true
	}
	_, ok := e.inputs[debt.Underlying]
	return ok
}

// SelectTarget keeps the collateral's own underlying when it is an allowed
// output currency, otherwise falls back to the configured default.
func (e *Engine) SelectTarget(ctx context.Context, collateral position.Asset) (Target, error) {
	if _, ok := e.outputs[collateral.Underlying]; ok {
		price, err := fixedpoint.WholeUnitPrice(collateral.UnderlyingPrice, collateral.Decimals)
		if err != nil {
			return Target{}, fmt.Errorf("collateral %s price: %w", collateral.Label(), err)
		}
		if price.IsZero() {
			return Target{}, fmt.Errorf("%w: collateral %s", ErrPriceUnavailable, collateral.Label())
		}
		return Target{
			Token:          collateral.Underlying,
			Price:          price,
			Decimals:       collateral.Decimals,
			FromCollateral: true,
		}, nil
	}

	token := e.cfg.ExchangeTo
	if position.IsNative(token) {
		return Target{Token: token, Price: fixedpoint.WAD(), Decimals: fixedpoint.BaseDecimals}, nil
	}
	q, err := e.deps.Prices.Price(ctx, token)
	if err != nil {
		return Target{}, fmt.Errorf("%w: output %s: %v", ErrPriceUnavailable, token.Hex(), err)
	}
	if q.Price == nil || q.Price.IsZero() {
		return Target{}, fmt.Errorf("%w: output %s", ErrPriceUnavailable, token.Hex())
	}
	if err := fixedpoint.CheckDecimals(q.Decimals); err != nil {
		return Target{}, fmt.Errorf("%w: output %s: %v", ErrPriceUnavailable, token.Hex(), err)
	}
	return Target{Token: token, Price: q.Price, Decimals: q.Decimals}, nil
}

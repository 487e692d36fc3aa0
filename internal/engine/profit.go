package engine

import (
	"context"
	"fmt"
	"log"
	"math/big"

	"github.com/holiman/uint256"

	"github.com/Rari-Capital/fuse-liquidator-bot/internal/fixedpoint"
)

// Gas is the gas side of a candidate call.
type Gas struct {
	Limit            uint64
	Price            *uint256.Int
	Fee              *uint256.Int
	EstimationFailed bool
}

// Decision is the profitability gate's verdict.
type Decision struct {
	Accept bool
	Gas    Gas
	// SeizeOutput is the seized value expressed in the output token.
	SeizeOutput *uint256.Int
	// MinOutput is the on-chain floor: the minimum seize amount in direct mode,
	// the minimum profit in flash-loan mode. Both are in output token units.
	MinOutput *uint256.Int
}

func (e *Engine) estimateGas(ctx context.Context, call CallSpec) (uint64, bool) {
	limit, err := e.deps.Gas.EstimateGas(ctx, call)
	if err != nil || limit == 0 {
		fallback := e.cfg.fallbackGas()
		log.Printf("[warn] gas estimate for %s failed, using fallback %d: %v", call.Method, fallback, err)
		return fallback, true
	}
	return limit, false
}

func (e *Engine) gasPrice(ctx context.Context) (*uint256.Int, error) {
	p, err := e.deps.Gas.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	return fixedpoint.FromBig(p)
}

// toOutput converts a native-base value into output token units.
func toOutput(value *uint256.Int, t Target) (*uint256.Int, error) {
	if err := fixedpoint.CheckDecimals(t.Decimals); err != nil {
		return nil, err
	}
	return fixedpoint.MulDiv(value, fixedpoint.Pow10(t.Decimals), t.Price)
}

// Gate decides whether sizing s, paid out in target t, clears the configured
// profit floor once gas is paid. In flash-loan mode the floor is enforced by
// the contract and the gate only computes it.
func (e *Engine) Gate(ctx context.Context, s Sizing, t Target, call CallSpec) (Decision, error) {
	limit, failed := e.estimateGas(ctx, call)
	gas := Gas{Limit: limit, EstimationFailed: failed, Price: new(uint256.Int), Fee: new(uint256.Int)}

	needGasPrice := e.cfg.Mode == ModeDirect || !e.cfg.PrivateRelayExcludesGas
	if needGasPrice {
		price, err := e.gasPrice(ctx)
		if err != nil {
			return Decision{}, err
		}
		fee, overflow := new(uint256.Int).MulOverflow(price, uint256.NewInt(limit))
		if overflow {
			return Decision{}, fmt.Errorf("gas fee: %w", fixedpoint.ErrOverflow)
		}
		gas.Price = price
		gas.Fee = fee
	}

	seizeOut, err := toOutput(s.SeizeValue, t)
	if err != nil {
		return Decision{}, fmt.Errorf("seize output: %w", err)
	}

	switch e.cfg.Mode {
	case ModeDirect:
		minValue, err := fixedpoint.Add(s.RepayValue, gas.Fee)
		if err != nil {
			return Decision{}, err
		}
		if minValue, err = fixedpoint.Add(minValue, e.cfg.MinProfit); err != nil {
			return Decision{}, err
		}
		minOut, err := toOutput(minValue, t)
		if err != nil {
			return Decision{}, fmt.Errorf("min seize output: %w", err)
		}
		return Decision{
			Accept:      !seizeOut.Lt(minOut),
			Gas:         gas,
			SeizeOutput: seizeOut,
			MinOutput:   minOut,
		}, nil

	case ModeFlashLoan:
		minValue := new(uint256.Int).Set(e.cfg.MinProfit)
		if !e.cfg.PrivateRelayExcludesGas {
			if minValue, err = fixedpoint.Add(minValue, gas.Fee); err != nil {
				return Decision{}, err
			}
		}
		minOut, err := toOutput(minValue, t)
		if err != nil {
			return Decision{}, fmt.Errorf("min profit output: %w", err)
		}
		return Decision{Accept: true, Gas: gas, SeizeOutput: seizeOut, MinOutput: minOut}, nil
	}
	return Decision{}, fmt.Errorf("%w: financing mode %s", ErrConfiguration, e.cfg.Mode)
}

func bigOf(x *uint256.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x.ToBig()
}

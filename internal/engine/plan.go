package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/Rari-Capital/fuse-liquidator-bot/internal/position"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/redemption"
)

// Liquidator entry points.
const (
	MethodDirectNative = "safeLiquidate(address,address,address,uint256,address,address,address[],bytes[])"
	MethodDirectToken  = "safeLiquidate(address,uint256,address,address,uint256,address,address,address[],bytes[])"
	MethodFlashNative  = "safeLiquidateToEthWithFlashLoan(address,uint256,address,address,uint256,address,address,address[],bytes[],uint256)"
	MethodFlashToken   = "safeLiquidateToTokensWithFlashLoan(address,uint256,address,address,uint256,address,address,address,address[],bytes[],uint256)"
)

// CallSpec is a liquidator call: full method signature, ordered arguments and
// attached native value.
type CallSpec struct {
	Method string   `json:"method"`
	Args   []any    `json:"args"`
	Value  *big.Int `json:"value"`
}

// Plan is a fully specified liquidation. It is built fresh per evaluation and
// not modified after Evaluate returns it.
type Plan struct {
	Mode Mode `json:"-"`
	CallSpec

	GasLimit         uint64   `json:"gasLimit"`
	GasPrice         *big.Int `json:"gasPrice"`
	EstimationFailed bool     `json:"estimationFailed,omitempty"`

	Borrower         common.Address `json:"borrower"`
	Comptroller      common.Address `json:"comptroller"`
	DebtMarket       common.Address `json:"debtMarket"`
	DebtToken        common.Address `json:"debtToken"`
	CollateralMarket common.Address `json:"collateralMarket"`
	CollateralToken  common.Address `json:"collateralToken"`
	OutputToken      common.Address `json:"outputToken"`

	Sizing     Sizing          `json:"-"`
	MinOutput  *uint256.Int    `json:"-"`
	Redemption redemption.Plan `json:"redemption"`
}

// NativeDebt reports whether the repaid asset is the native currency.
func (p *Plan) NativeDebt() bool { return position.IsNative(p.DebtToken) }

type planInput struct {
	mode         Mode
	borrower     common.Address
	debt         position.Asset
	collateral   position.Asset
	sizing       Sizing
	minOutput    *uint256.Int
	target       Target
	redeem       redemption.Plan
	borrowRouter common.Address
	tip          *uint256.Int
}

// outputOverride is the token the seized collateral is in when the strategy
// chain hands it to the swap leg.
func (in planInput) outputOverride() common.Address {
	if in.redeem.Encoded() {
		return in.redeem.Output
	}
	return in.collateral.CToken
}

func buildCall(in planInput) CallSpec {
	repay := bigOf(in.sizing.RepayAmount)
	minOut := bigOf(in.minOutput)
	strategies := in.redeem.StrategyAddresses()
	data := in.redeem.StrategyData()
	native := in.debt.Native()

	switch {
	case in.mode == ModeDirect && native:
		return CallSpec{
			Method: MethodDirectNative,
			Args: []any{
				in.borrower,
				in.debt.CToken,
				in.collateral.CToken,
				minOut,
				in.outputOverride(),
				in.target.Token,
				strategies,
				data,
			},
			Value: repay,
		}
	case in.mode == ModeDirect:
		return CallSpec{
			Method: MethodDirectToken,
			Args: []any{
				in.borrower,
				repay,
				in.debt.CToken,
				in.collateral.CToken,
				minOut,
				in.outputOverride(),
				in.target.Token,
				strategies,
				data,
			},
			Value: new(big.Int),
		}
	case native:
		return CallSpec{
			Method: MethodFlashNative,
			Args: []any{
				in.borrower,
				repay,
				in.debt.CToken,
				in.collateral.CToken,
				minOut,
				in.target.Token,
				in.redeem.Router,
				strategies,
				data,
				bigOf(in.tip),
			},
			Value: new(big.Int),
		}
	default:
		return CallSpec{
			Method: MethodFlashToken,
			Args: []any{
				in.borrower,
				repay,
				in.debt.CToken,
				in.collateral.CToken,
				minOut,
				in.target.Token,
				in.borrowRouter,
				in.redeem.Router,
				strategies,
				data,
				bigOf(in.tip),
			},
			Value: new(big.Int),
		}
	}
}

func buildPlan(in planInput, pool position.Pool, d Decision) *Plan {
	call := buildCall(in)
	return &Plan{
		Mode:             in.mode,
		CallSpec:         call,
		GasLimit:         d.Gas.Limit,
		GasPrice:         bigOf(d.Gas.Price),
		EstimationFailed: d.Gas.EstimationFailed,
		Borrower:         in.borrower,
		Comptroller:      pool.Comptroller,
		DebtMarket:       in.debt.CToken,
		DebtToken:        in.debt.Underlying,
		CollateralMarket: in.collateral.CToken,
		CollateralToken:  in.collateral.Underlying,
		OutputToken:      in.target.Token,
		Sizing:           in.sizing,
		MinOutput:        new(uint256.Int).Set(d.MinOutput),
		Redemption:       in.redeem,
	}
}

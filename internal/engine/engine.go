// Package engine decides, for one at-risk borrower, whether a liquidation is
// worth sending and builds the exact liquidator call when it is.
package engine

import (
	"context"
	"fmt"
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Rari-Capital/fuse-liquidator-bot/internal/fixedpoint"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/position"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/pricecache"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/redemption"
)

// PriceOracle quotes tokens in the native base.
type PriceOracle interface {
	Price(ctx context.Context, token common.Address) (pricecache.Quote, error)
}

// GasOracle estimates liquidator calls.
type GasOracle interface {
	EstimateGas(ctx context.Context, call CallSpec) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Redeemer resolves collateral redemption chains.
type Redeemer interface {
	Resolve(ctx context.Context, token common.Address) (redemption.Plan, error)
}

// RouterPicker chooses the AMM router for a token's swap leg.
type RouterPicker interface {
	Best(ctx context.Context, token common.Address) common.Address
}

// Deps are the engine's collaborators.
type Deps struct {
	Prices   PriceOracle
	Gas      GasOracle
	Redeemer Redeemer
	Routers  RouterPicker
}

// Stage is how far an evaluation got.
type Stage string

const (
	StageNormalized       Stage = "normalized"
	StageTargetSelected   Stage = "target-selected"
	StageSized            Stage = "sized"
	StageStrategyResolved Stage = "strategy-resolved"
	StagePlanBuilt        Stage = "plan-built"
	StageRejected         Stage = "rejected"
)

// Outcome is the result of evaluating one borrower. Plan is nil for "no
// action"; Reason then says why.
type Outcome struct {
	Borrower common.Address
	Stage    Stage
	// Reached is the last stage completed before a rejection.
	Reached  Stage
	Reason   Reason
	Plan     *Plan
	Sizing   *Sizing
	Decision *Decision
}

// Engine evaluates borrowers. It holds no per-evaluation state and is safe for
// concurrent use as long as its collaborators are.
type Engine struct {
	cfg     Config
	deps    Deps
	outputs map[common.Address]struct{}
	inputs  map[common.Address]struct{}
}

func New(cfg Config, deps Deps) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if deps.Gas == nil || deps.Redeemer == nil {
		return nil, fmt.Errorf("%w: gas oracle and redeemer are required", ErrConfiguration)
	}
	if deps.Prices == nil && !position.IsNative(cfg.ExchangeTo) {
		return nil, fmt.Errorf("%w: price oracle required for output %s", ErrConfiguration, cfg.ExchangeTo.Hex())
	}
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:     cfg,
		deps:    deps,
		outputs: make(map[common.Address]struct{}, len(cfg.OutputCurrencies)),
		inputs:  make(map[common.Address]struct{}, len(cfg.InputCurrencies)),
	}
	for _, a := range cfg.OutputCurrencies {
		e.outputs[a] = struct{}{}
	}
	for _, a := range cfg.InputCurrencies {
		e.inputs[a] = struct{}{}
	}
	return e, nil
}

// Mode returns the configured financing mode.
func (e *Engine) Mode() Mode { return e.cfg.Mode }

func reject(b common.Address, reached Stage, r Reason) Outcome {
	return Outcome{Borrower: b, Stage: StageRejected, Reached: reached, Reason: r}
}

// Evaluate runs one borrower through normalization, target selection, sizing,
// redemption resolution and the profitability gate. A nil plan with a nil
// error means no action; an error means the borrower should be retried on a
// later cycle.
func (e *Engine) Evaluate(ctx context.Context, b position.Borrower, pool position.Pool) (Outcome, error) {
	n, err := position.Normalize(b)
	if err != nil {
		return reject(b.Account, "", ReasonNone), fmt.Errorf("normalize %s: %w", b.Account.Hex(), err)
	}
	if len(n.Debt) == 0 {
		return reject(b.Account, StageNormalized, ReasonNoDebt), nil
	}
	if len(n.Collateral) == 0 {
		return reject(b.Account, StageNormalized, ReasonNoCollateral), nil
	}
	debt, collateral := n.Debt[0], n.Collateral[0]

	if !e.inputAllowed(debt) {
		log.Printf("[liq] %s: debt %s is not a supported input currency", b.Account.Hex(), debt.Label())
		return reject(b.Account, StageNormalized, ReasonInputNotAllowed), nil
	}

	target, err := e.SelectTarget(ctx, collateral)
	if err != nil {
		return reject(b.Account, StageNormalized, ReasonNone), err
	}

	sizing, err := Size(debt, collateral, pool, e.cfg.LiquidationFee)
	if err != nil {
		return reject(b.Account, StageTargetSelected, ReasonNone), err
	}
	if sizing.RepayAmount.IsZero() || sizing.SeizeAmount.IsZero() {
		out := reject(b.Account, StageSized, ReasonZeroRepay)
		out.Sizing = &sizing
		return out, nil
	}

	redeem, err := e.deps.Redeemer.Resolve(ctx, collateral.Underlying)
	if err != nil {
		out := reject(b.Account, StageSized, ReasonNone)
		out.Sizing = &sizing
		return out, fmt.Errorf("redemption for %s: %w", collateral.Label(), err)
	}

	in := planInput{
		mode:         e.cfg.Mode,
		borrower:     b.Account,
		debt:         debt,
		collateral:   collateral,
		sizing:       sizing,
		minOutput:    nil,
		target:       target,
		redeem:       redeem,
		borrowRouter: redeem.Router,
		tip:          e.cfg.EthToCoinbase,
	}
	if e.cfg.Mode == ModeFlashLoan && !debt.Native() && e.deps.Routers != nil {
		if r := e.deps.Routers.Best(ctx, debt.Underlying); r != (common.Address{}) {
			in.borrowRouter = r
		}
	}

	decision, err := e.Gate(ctx, sizing, target, buildCall(in))
	if err != nil {
		out := reject(b.Account, StageStrategyResolved, ReasonNone)
		out.Sizing = &sizing
		return out, err
	}
	if !decision.Accept {
		log.Printf("[liq] %s: seized %s %s below minimum %s (repay %s %s)",
			b.Account.Hex(),
			fixedpoint.FormatUnits(decision.SeizeOutput, target.Decimals), tokenLabel(target.Token),
			fixedpoint.FormatUnits(decision.MinOutput, target.Decimals),
			fixedpoint.FormatUnits(sizing.RepayAmount, debt.Decimals), debt.Label())
		out := reject(b.Account, StageStrategyResolved, ReasonUnprofitable)
		out.Sizing = &sizing
		out.Decision = &decision
		return out, nil
	}

	in.minOutput = decision.MinOutput
	plan := buildPlan(in, pool, decision)
	return Outcome{
		Borrower: b.Account,
		Stage:    StagePlanBuilt,
		Reached:  StagePlanBuilt,
		Plan:     plan,
		Sizing:   &sizing,
		Decision: &decision,
	}, nil
}

func tokenLabel(token common.Address) string {
	if position.IsNative(token) {
		return "native"
	}
	return token.Hex()
}

// Package redemption resolves how seized collateral is unwound into a
// swappable token before the final AMM leg of a liquidation.
package redemption

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Tag names a redemption step kind.
type Tag string

const (
	CurveLP      Tag = "curve-lp"
	YearnVault   Tag = "yearn-vault"
	StakedUnwrap Tag = "staked-unwrap"
	// AMMSwap marks the final swap leg. It is executed by the liquidator's
	// router path and never encoded as a strategy.
	AMMSwap Tag = "amm-swap"
)

// maxSteps bounds chain length so a cyclic table cannot loop forever.
const maxSteps = 8

var (
	ErrUnknownTag      = errors.New("redemption: no handler registered for tag")
	ErrNoStrategy      = errors.New("redemption: no strategy contract configured for tag")
	ErrChainTooLong    = errors.New("redemption: step chain too long")
	ErrUnexpectedReply = errors.New("redemption: unexpected contract reply")
)

// ChainReader performs read-only contract calls.
type ChainReader interface {
	Call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...any) ([]any, error)
}

// Step is one unwrap operation applied to seized collateral.
type Step struct {
	Tag      Tag            `json:"tag"`
	Strategy common.Address `json:"strategy"`
	Data     []byte         `json:"data,omitempty"`
	Input    common.Address `json:"input"`
	Output   common.Address `json:"output"`
}

// Plan is the ordered set of steps for one collateral token. Steps compose
// left to right; an empty plan means the collateral is swapped directly.
type Plan struct {
	Steps  []Step         `json:"steps"`
	Router common.Address `json:"router"`
	Output common.Address `json:"output"`
}

// Encoded reports whether the plan carries any on-chain strategy.
func (p Plan) Encoded() bool {
	for _, s := range p.Steps {
		if s.Tag != AMMSwap {
			return true
		}
	}
	return false
}

// StrategyAddresses returns the strategy contracts in execution order.
func (p Plan) StrategyAddresses() []common.Address {
	out := make([]common.Address, 0, len(p.Steps))
	for _, s := range p.Steps {
		if s.Tag == AMMSwap {
			continue
		}
		out = append(out, s.Strategy)
	}
	return out
}

// StrategyData returns the encoded payload for each strategy, parallel to
// StrategyAddresses.
func (p Plan) StrategyData() [][]byte {
	out := make([][]byte, 0, len(p.Steps))
	for _, s := range p.Steps {
		if s.Tag == AMMSwap {
			continue
		}
		data := s.Data
		if data == nil {
			data = []byte{}
		}
		out = append(out, data)
	}
	return out
}

// Result is what a handler produces for one step.
type Result struct {
	Data   []byte
	Next   common.Address
	Router common.Address
}

// Handler resolves one step for token.
type Handler interface {
	Resolve(ctx context.Context, token common.Address) (Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, token common.Address) (Result, error)

func (f HandlerFunc) Resolve(ctx context.Context, token common.Address) (Result, error) {
	return f(ctx, token)
}

// Resolver maps collateral tokens to redemption plans.
type Resolver struct {
	table      Table
	handlers   map[Tag]Handler
	strategies map[Tag]common.Address
	routers    *RouterSelector
}

// NewResolver builds a resolver over table. Strategy contract addresses come
// from table.Strategies; handlers are registered with Register.
func NewResolver(table Table, routers *RouterSelector) *Resolver {
	return &Resolver{
		table:      table,
		handlers:   make(map[Tag]Handler),
		strategies: table.Strategies,
		routers:    routers,
	}
}

// Register installs h for tag, replacing any previous handler.
func (r *Resolver) Register(tag Tag, h Handler) {
	r.handlers[tag] = h
}

// RegisterDefaults installs the built-in handlers backed by reader.
func (r *Resolver) RegisterDefaults(reader ChainReader) {
	r.Register(CurveLP, curveLPHandler{reader: reader, strategy: r.strategies[CurveLP]})
	r.Register(YearnVault, yearnVaultHandler{reader: reader})
	r.Register(StakedUnwrap, stakedUnwrapHandler{table: r.table})
	r.Register(AMMSwap, HandlerFunc(func(_ context.Context, token common.Address) (Result, error) {
		return Result{Next: token}, nil
	}))
}

// Resolve returns the redemption plan for token. Tokens without a table entry
// resolve to an empty plan routed through the best available router.
func (r *Resolver) Resolve(ctx context.Context, token common.Address) (Plan, error) {
	entry, ok := r.table.Tokens[token]
	if !ok || len(entry.Steps) == 0 {
		router := r.routers.Best(ctx, token)
		return Plan{Steps: []Step{}, Router: router, Output: token}, nil
	}
	if len(entry.Steps) > maxSteps {
		return Plan{}, fmt.Errorf("%w: %s has %d steps", ErrChainTooLong, token.Hex(), len(entry.Steps))
	}

	plan := Plan{Steps: make([]Step, 0, len(entry.Steps))}
	current := token
	var preferred common.Address
	for _, tag := range entry.Steps {
		h, ok := r.handlers[tag]
		if !ok {
			return Plan{}, fmt.Errorf("%w %q (token %s)", ErrUnknownTag, tag, token.Hex())
		}
		strategy := r.strategies[tag]
		if tag != AMMSwap && strategy == (common.Address{}) {
			return Plan{}, fmt.Errorf("%w %q", ErrNoStrategy, tag)
		}

		res, err := h.Resolve(ctx, current)
		if err != nil {
			return Plan{}, fmt.Errorf("resolve %s step for %s: %w", tag, current.Hex(), err)
		}
		plan.Steps = append(plan.Steps, Step{
			Tag:      tag,
			Strategy: strategy,
			Data:     res.Data,
			Input:    current,
			Output:   res.Next,
		})
		if res.Router != (common.Address{}) {
			preferred = res.Router
		}
		current = res.Next
	}
	plan.Output = current

	switch {
	case entry.Router != nil:
		plan.Router = *entry.Router
	case preferred != (common.Address{}):
		plan.Router = preferred
	default:
		plan.Router = r.routers.Best(ctx, current)
	}
	return plan, nil
}

package engine

import "errors"

var (
	// ErrPriceUnavailable means a price needed for the decision could not be
	// obtained. The borrower is skipped for this cycle.
	ErrPriceUnavailable = errors.New("engine: price unavailable")
	// ErrConfiguration is fatal for the pass.
	ErrConfiguration = errors.New("engine: invalid configuration")
)

// Reason explains why an evaluation produced no plan.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonNoDebt          Reason = "no-debt"
	ReasonNoCollateral    Reason = "no-collateral"
	ReasonZeroRepay       Reason = "zero-repay"
	ReasonInputNotAllowed Reason = "input-not-allowed"
	ReasonUnprofitable    Reason = "unprofitable"
)

// Unliquidatable reports whether the position itself offers nothing to act on.
func (r Reason) Unliquidatable() bool {
	switch r {
	case ReasonNoDebt, ReasonNoCollateral, ReasonZeroRepay:
		return true
	default:
		return false
	}
}

// Veto reports whether a local policy rejected an otherwise valid liquidation.
func (r Reason) Veto() bool {
	return r == ReasonInputNotAllowed || r == ReasonUnprofitable
}

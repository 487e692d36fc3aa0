// Package fixedpoint implements the 256-bit integer arithmetic used to value
// and size liquidations.
//
// Amounts are unsigned integers in a token's native decimals. Values are
// unsigned integers in the 18-decimal base of the chain's native currency.
// Scaled fractions (close factor, liquidation incentive, fees) use WAD = 1e18.
package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// BaseDecimals is the number of decimals of the value base.
const BaseDecimals = 18

// MaxDecimals bounds token decimals accepted by the rescaling helpers.
const MaxDecimals = 36

var (
	ErrOverflow        = errors.New("fixedpoint: overflow")
	ErrDivisionByZero  = errors.New("fixedpoint: division by zero")
	ErrNegative        = errors.New("fixedpoint: negative value")
	ErrInvalidDecimals = errors.New("fixedpoint: invalid decimals")
)

var pow10 [MaxDecimals + 1]uint256.Int

func init() {
	ten := uint256.NewInt(10)
	pow10[0].SetOne()
	for i := 1; i <= MaxDecimals; i++ {
		pow10[i].Mul(&pow10[i-1], ten)
	}
}

// WAD returns a fresh 1e18.
func WAD() *uint256.Int {
	return Pow10(BaseDecimals)
}

// Pow10 returns a fresh 10^n. It panics for n outside [0, MaxDecimals], which
// is a programming error since every caller validates decimals first.
func Pow10(n uint8) *uint256.Int {
	if int(n) > MaxDecimals {
		panic(fmt.Sprintf("fixedpoint: 10^%d out of range", n))
	}
	return new(uint256.Int).Set(&pow10[n])
}

// MulDiv returns x*y/d truncated toward zero, using a 512-bit intermediate.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// MulWad returns x*y/1e18.
func MulWad(x, y *uint256.Int) (*uint256.Int, error) {
	return MulDiv(x, y, &pow10[BaseDecimals])
}

// DivWad returns x*1e18/y.
func DivWad(x, y *uint256.Int) (*uint256.Int, error) {
	return MulDiv(x, &pow10[BaseDecimals], y)
}

// Add returns x+y or ErrOverflow.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// SubFloor returns x-y, or zero when y > x.
func SubFloor(x, y *uint256.Int) *uint256.Int {
	if y.Gt(x) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(x, y)
}

// CheckDecimals rejects token decimals the rescaling helpers cannot handle.
func CheckDecimals(decimals uint8) error {
	if int(decimals) >= MaxDecimals {
		return fmt.Errorf("%w: %d", ErrInvalidDecimals, decimals)
	}
	return nil
}

// ToBase18 rescales an amount in native decimals to 18 decimals.
func ToBase18(amount *uint256.Int, decimals uint8) (*uint256.Int, error) {
	if err := CheckDecimals(decimals); err != nil {
		return nil, err
	}
	switch {
	case decimals == BaseDecimals:
		return new(uint256.Int).Set(amount), nil
	case decimals < BaseDecimals:
		z, overflow := new(uint256.Int).MulOverflow(amount, &pow10[BaseDecimals-decimals])
		if overflow {
			return nil, ErrOverflow
		}
		return z, nil
	default:
		return new(uint256.Int).Div(amount, &pow10[decimals-BaseDecimals]), nil
	}
}

// FromBase18 rescales an 18-decimal amount back to native decimals, truncating.
func FromBase18(amount18 *uint256.Int, decimals uint8) (*uint256.Int, error) {
	if err := CheckDecimals(decimals); err != nil {
		return nil, err
	}
	switch {
	case decimals == BaseDecimals:
		return new(uint256.Int).Set(amount18), nil
	case decimals < BaseDecimals:
		return new(uint256.Int).Div(amount18, &pow10[BaseDecimals-decimals]), nil
	default:
		z, overflow := new(uint256.Int).MulOverflow(amount18, &pow10[decimals-BaseDecimals])
		if overflow {
			return nil, ErrOverflow
		}
		return z, nil
	}
}

// WholeUnitPrice converts an oracle underlying price (the value of one base
// unit scaled by 1e18) into the value of one whole token in the 18-decimal
// base.
func WholeUnitPrice(underlyingPrice *uint256.Int, decimals uint8) (*uint256.Int, error) {
	if err := CheckDecimals(decimals); err != nil {
		return nil, err
	}
	switch {
	case decimals == BaseDecimals:
		return new(uint256.Int).Set(underlyingPrice), nil
	case decimals < BaseDecimals:
		return new(uint256.Int).Div(underlyingPrice, &pow10[BaseDecimals-decimals]), nil
	default:
		z, overflow := new(uint256.Int).MulOverflow(underlyingPrice, &pow10[decimals-BaseDecimals])
		if overflow {
			return nil, ErrOverflow
		}
		return z, nil
	}
}

// FromBig converts a non-negative big.Int that fits in 256 bits.
func FromBig(x *big.Int) (*uint256.Int, error) {
	if x == nil {
		return new(uint256.Int), nil
	}
	if x.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNegative, x)
	}
	z, overflow := uint256.FromBig(x)
	if overflow {
		return nil, fmt.Errorf("%w: %s", ErrOverflow, x)
	}
	return z, nil
}

// MustFromDecimal parses a base-10 constant and panics on error.
func MustFromDecimal(s string) *uint256.Int {
	return uint256.MustFromDecimal(s)
}

// ParseUnits converts a human decimal string ("0.05") into an integer amount
// with the given decimals. Digits past the precision are truncated.
func ParseUnits(raw string, decimals uint8) (*uint256.Int, error) {
	if err := CheckDecimals(decimals); err != nil {
		return nil, err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return new(uint256.Int), nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", raw, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %q", ErrNegative, raw)
	}
	return FromBig(d.Shift(int32(decimals)).BigInt())
}

// FormatUnits renders an integer amount with the given decimals.
func FormatUnits(amount *uint256.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount.ToBig(), -int32(decimals)).String()
}

// ToDecimal converts a fixed-point amount to a decimal for metrics and logs.
func ToDecimal(amount *uint256.Int, decimals uint8) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount.ToBig(), -int32(decimals))
}

// Float64 returns an approximate float, for metrics only.
func Float64(amount *uint256.Int, decimals uint8) float64 {
	f, _ := ToDecimal(amount, decimals).Float64()
	return f
}

package engine

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Mode is the financing strategy, fixed for the life of the process.
type Mode int

const (
	ModeDirect Mode = iota + 1
	ModeFlashLoan
)

func (m Mode) String() string {
	switch m {
	case ModeDirect:
		return "direct"
	case ModeFlashLoan:
		return "flashloan"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode accepts "direct" and "flashloan" ("uniswap" is the legacy name for
// flash-loan financing). Anything else, including an empty value, is an error.
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "direct":
		return ModeDirect, nil
	case "flashloan", "flash-loan", "uniswap":
		return ModeFlashLoan, nil
	case "":
		return 0, fmt.Errorf("%w: financing mode is not set", ErrConfiguration)
	default:
		return 0, fmt.Errorf("%w: unknown financing mode %q", ErrConfiguration, raw)
	}
}

const (
	DefaultFallbackGasDirect    uint64 = 600_000
	DefaultFallbackGasFlashLoan uint64 = 750_000
)

// Config holds the process-wide evaluation policy.
type Config struct {
	Mode Mode

	// OutputCurrencies lists tokens seized collateral may be kept in. The
	// zero address stands for the native currency.
	OutputCurrencies []common.Address
	// InputCurrencies lists debt tokens the bot holds inventory of. Only
	// enforced in direct mode.
	InputCurrencies []common.Address
	// ExchangeTo is the default output token when collateral is not in
	// OutputCurrencies.
	ExchangeTo common.Address

	// MinProfit is the profit floor in native wei.
	MinProfit *uint256.Int
	// LiquidationFee is the WAD-scaled protocol fee taken from the repay value
	// before the incentive is applied. Nil or zero disables it.
	LiquidationFee *uint256.Int

	FallbackGasDirect    uint64
	FallbackGasFlashLoan uint64

	// PrivateRelayExcludesGas leaves gas out of the flash-loan profit floor
	// when bundles are sent through a private relay that only charges on
	// inclusion.
	PrivateRelayExcludesGas bool
	// EthToCoinbase is the builder tip passed to flash-loan entry points.
	EthToCoinbase *uint256.Int
}

func (c Config) validate() error {
	if c.Mode != ModeDirect && c.Mode != ModeFlashLoan {
		return fmt.Errorf("%w: financing mode %s", ErrConfiguration, c.Mode)
	}
	if c.LiquidationFee != nil && !c.LiquidationFee.Lt(uint256.NewInt(1e18)) {
		return fmt.Errorf("%w: liquidation fee must be below 1e18", ErrConfiguration)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.MinProfit == nil {
		c.MinProfit = new(uint256.Int)
	}
	if c.LiquidationFee == nil {
		c.LiquidationFee = new(uint256.Int)
	}
	if c.EthToCoinbase == nil {
		c.EthToCoinbase = new(uint256.Int)
	}
	if c.FallbackGasDirect == 0 {
		c.FallbackGasDirect = DefaultFallbackGasDirect
	}
	if c.FallbackGasFlashLoan == 0 {
		c.FallbackGasFlashLoan = DefaultFallbackGasFlashLoan
	}
	return c
}

func (c Config) fallbackGas() uint64 {
	if c.Mode == ModeFlashLoan {
		return c.FallbackGasFlashLoan
	}
	return c.FallbackGasDirect
}

// Package config assembles the liquidator's settings from .env, the
// environment and command-line flags, in that order of increasing precedence.
package config

import (
	"crypto/ecdsa"
	"flag"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/joho/godotenv"

	"github.com/Rari-Capital/fuse-liquidator-bot/internal/engine"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/ethutil"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/fixedpoint"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/pricecache"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/redemption"
)

const (
	DefaultInterval        = 5 * time.Minute
	DefaultPoolConcurrency = 4
	DefaultRPCPerSecond    = 20
	DefaultNativeSymbol    = "ETH"
	DefaultLogMaxSizeMB    = 100
	DefaultWaitTimeout     = 3 * time.Minute
)

var (
	mainnetWETH = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

	// DefaultAMMs are the mainnet UniswapV2 and SushiSwap deployments.
	DefaultAMMs = []redemption.AMM{
		{
			Name:    "uniswap",
			Factory: common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"),
			Router:  common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"),
		},
		{
			Name:    "sushiswap",
			Factory: common.HexToAddress("0xC0AEe478e3658e2610c5F7A4A2E1777cE9e4f2Ac"),
			Router:  common.HexToAddress("0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F"),
		},
	}
)

// LoadDotenv reads .env from the working directory. A missing file is not an
// error.
func LoadDotenv() error {
	if err := godotenv.Load(); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

type Config struct {
	RPCURL        string
	RPCPerSecond  float64
	PrivateKey    *ecdsa.PrivateKey
	Account       common.Address
	Liquidator    common.Address
	PoolLens      common.Address
	WrappedNative common.Address
	NativeSymbol  string

	Engine engine.Config

	SupportAllPublicPools bool
	Comptrollers          []common.Address
	MaxHealth             *big.Int

	AMMs         []redemption.AMM
	StrategyFile string
	Strategies   redemption.Table

	PrivateRelayURL string

	CoinGeckoURL      string
	CoinGeckoPlatform string
	CoinGeckoCurrency string
	PriceCacheRedis   string
	PriceTTL          time.Duration

	PoolConcurrency    int
	Interval           time.Duration
	EnableLiquidations bool
	WaitTimeout        time.Duration

	MetricsAddr  string
	OutFile      string
	LogFile      string
	LogMaxSizeMB int
}

// Load parses flags from args and fills the rest from the environment. Call
// LoadDotenv first to pick up a .env file.
func Load(name string, args []string) (Config, error) {
	var cfg Config

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	var (
		intervalFlag string
		modeFlag     string
		strategyFlag string
		outFlag      string
		metricsFlag  string
		enableFlag   bool
	)
	fs.StringVar(&intervalFlag, "every", "", "Evaluation interval (e.g. 5m). Default from LIQUIDATION_INTERVAL_SECONDS or 5m.")
	fs.StringVar(&modeFlag, "mode", "", "Financing mode: direct or flashloan (default from LIQUIDATION_STRATEGY).")
	fs.StringVar(&strategyFlag, "strategies", "", "Redemption strategy YAML (default from STRATEGY_CONFIG_FILE).")
	fs.StringVar(&outFlag, "out", "", "Decision log JSONL path (default from OUT_FILE).")
	fs.StringVar(&metricsFlag, "metrics-addr", "", "Metrics/status listen address (default from METRICS_ADDR).")
	fs.BoolVar(&enableFlag, "enable-liquidations", false, "Send liquidation transactions (default false; set ENABLE_LIQUIDATIONS).")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	cfg.RPCURL = strings.TrimSpace(firstNonEmpty(os.Getenv("RPC_URL"), os.Getenv("RPC_WS_URL"), os.Getenv("WEB3_HTTP_PROVIDER_URL")))

	var err error
	if cfg.RPCPerSecond, err = envFloat("RPC_REQUESTS_PER_SECOND", DefaultRPCPerSecond); err != nil {
		return cfg, err
	}

	if pkHex := strings.TrimSpace(firstNonEmpty(os.Getenv("PRIVATE_KEY"), os.Getenv("ETHEREUM_ADMIN_PRIVATE_KEY"))); pkHex != "" {
		pk, err := crypto.HexToECDSA(strings.TrimPrefix(pkHex, "0x"))
		if err != nil {
			return cfg, fmt.Errorf("%w: invalid PRIVATE_KEY", engine.ErrConfiguration)
		}
		cfg.PrivateKey = pk
		cfg.Account = crypto.PubkeyToAddress(pk.PublicKey)
	} else if raw := strings.TrimSpace(os.Getenv("ETHEREUM_ADMIN_ACCOUNT")); raw != "" {
		if cfg.Account, err = hexAddress("ETHEREUM_ADMIN_ACCOUNT", raw); err != nil {
			return cfg, err
		}
	}

	if cfg.Liquidator, err = requiredAddress("LIQUIDATOR_ADDRESS", firstNonEmpty(os.Getenv("LIQUIDATOR_ADDRESS"), os.Getenv("FUSE_SAFE_LIQUIDATOR_CONTRACT_ADDRESS"))); err != nil {
		return cfg, err
	}
	if cfg.PoolLens, err = requiredAddress("POOL_LENS_ADDRESS", os.Getenv("POOL_LENS_ADDRESS")); err != nil {
		return cfg, err
	}
	cfg.WrappedNative = mainnetWETH
	if raw := strings.TrimSpace(os.Getenv("WRAPPED_NATIVE_ADDRESS")); raw != "" {
		if cfg.WrappedNative, err = hexAddress("WRAPPED_NATIVE_ADDRESS", raw); err != nil {
			return cfg, err
		}
	}
	cfg.NativeSymbol = strings.TrimSpace(firstNonEmpty(os.Getenv("NATIVE_SYMBOL"), DefaultNativeSymbol))

	if cfg.Engine, err = loadEngine(modeFlag); err != nil {
		return cfg, err
	}

	if cfg.SupportAllPublicPools, err = envBool("SUPPORT_ALL_PUBLIC_POOLS", false); err != nil {
		return cfg, err
	}
	if cfg.Comptrollers, err = ethutil.ParseAddressList(os.Getenv("SUPPORTED_POOL_COMPTROLLERS")); err != nil {
		return cfg, fmt.Errorf("%w: SUPPORTED_POOL_COMPTROLLERS: %v", engine.ErrConfiguration, err)
	}
	if !cfg.SupportAllPublicPools && len(cfg.Comptrollers) == 0 {
		return cfg, fmt.Errorf("%w: no pools selected (set SUPPORT_ALL_PUBLIC_POOLS or SUPPORTED_POOL_COMPTROLLERS)", engine.ErrConfiguration)
	}
	cfg.MaxHealth = fixedpoint.WAD().ToBig()
	if raw := strings.TrimSpace(os.Getenv("MAX_HEALTH_FACTOR")); raw != "" {
		h, err := fixedpoint.ParseUnits(raw, fixedpoint.BaseDecimals)
		if err != nil || h.IsZero() {
			return cfg, fmt.Errorf("%w: invalid MAX_HEALTH_FACTOR %q", engine.ErrConfiguration, raw)
		}
		cfg.MaxHealth = h.ToBig()
	}

	cfg.AMMs = DefaultAMMs
	if raw := strings.TrimSpace(os.Getenv("AMM_DEPLOYMENTS")); raw != "" {
		if cfg.AMMs, err = ParseAMMs(raw); err != nil {
			return cfg, err
		}
	}
	cfg.StrategyFile = strings.TrimSpace(firstNonEmpty(strategyFlag, os.Getenv("STRATEGY_CONFIG_FILE")))
	if cfg.Strategies, err = redemption.LoadTable(cfg.StrategyFile); err != nil {
		return cfg, fmt.Errorf("%w: %v", engine.ErrConfiguration, err)
	}

	cfg.PrivateRelayURL = strings.TrimSpace(os.Getenv("PRIVATE_RELAY_URL"))
	cfg.CoinGeckoURL = strings.TrimSpace(os.Getenv("COINGECKO_URL"))
	cfg.CoinGeckoPlatform = strings.TrimSpace(os.Getenv("COINGECKO_PLATFORM"))
	cfg.CoinGeckoCurrency = strings.TrimSpace(os.Getenv("COINGECKO_VS_CURRENCY"))
	cfg.PriceCacheRedis = strings.TrimSpace(os.Getenv("PRICE_CACHE_REDIS_URL"))
	cfg.PriceTTL = pricecache.DefaultTTL
	if raw := strings.TrimSpace(os.Getenv("PRICE_CACHE_TTL")); raw != "" {
		if cfg.PriceTTL, err = time.ParseDuration(raw); err != nil || cfg.PriceTTL <= 0 {
			return cfg, fmt.Errorf("%w: invalid PRICE_CACHE_TTL %q", engine.ErrConfiguration, raw)
		}
	}

	if cfg.PoolConcurrency, err = envInt("POOL_CONCURRENCY", DefaultPoolConcurrency); err != nil {
		return cfg, err
	}
	if cfg.PoolConcurrency < 1 {
		cfg.PoolConcurrency = 1
	}

	cfg.Interval = DefaultInterval
	if strings.TrimSpace(intervalFlag) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(intervalFlag))
		if err != nil {
			return cfg, fmt.Errorf("invalid --every duration %q: %w", intervalFlag, err)
		}
		cfg.Interval = d
	} else if secs, err := envInt("LIQUIDATION_INTERVAL_SECONDS", 0); err != nil {
		return cfg, err
	} else if secs > 0 {
		cfg.Interval = time.Duration(secs) * time.Second
	}

	cfg.EnableLiquidations = enableFlag
	if !cfg.EnableLiquidations {
		if cfg.EnableLiquidations, err = envBool("ENABLE_LIQUIDATIONS", false); err != nil {
			return cfg, err
		}
	}
	if cfg.EnableLiquidations && cfg.PrivateKey == nil {
		return cfg, fmt.Errorf("%w: private key required to send liquidations (set PRIVATE_KEY)", engine.ErrConfiguration)
	}
	cfg.WaitTimeout = DefaultWaitTimeout
	if raw := strings.TrimSpace(os.Getenv("TX_WAIT_TIMEOUT")); raw != "" {
		if cfg.WaitTimeout, err = time.ParseDuration(raw); err != nil {
			return cfg, fmt.Errorf("%w: invalid TX_WAIT_TIMEOUT %q: %v", engine.ErrConfiguration, raw, err)
		}
	}

	cfg.MetricsAddr = strings.TrimSpace(firstNonEmpty(metricsFlag, os.Getenv("METRICS_ADDR")))
	cfg.OutFile = strings.TrimSpace(firstNonEmpty(outFlag, os.Getenv("OUT_FILE")))
	cfg.LogFile = strings.TrimSpace(os.Getenv("LOG_FILE"))
	if cfg.LogMaxSizeMB, err = envInt("LOG_MAX_SIZE_MB", DefaultLogMaxSizeMB); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadEngine(modeFlag string) (engine.Config, error) {
	var ec engine.Config

	mode, err := engine.ParseMode(firstNonEmpty(modeFlag, os.Getenv("LIQUIDATION_STRATEGY")))
	if err != nil {
		return ec, err
	}
	ec.Mode = mode

	if ec.OutputCurrencies, err = ethutil.ParseTokenList(os.Getenv("SUPPORTED_OUTPUT_CURRENCIES")); err != nil {
		return ec, fmt.Errorf("%w: SUPPORTED_OUTPUT_CURRENCIES: %v", engine.ErrConfiguration, err)
	}
	if ec.InputCurrencies, err = ethutil.ParseTokenList(os.Getenv("SUPPORTED_INPUT_CURRENCIES")); err != nil {
		return ec, fmt.Errorf("%w: SUPPORTED_INPUT_CURRENCIES: %v", engine.ErrConfiguration, err)
	}
	if raw := strings.TrimSpace(os.Getenv("EXCHANGE_TO_TOKEN_ADDRESS")); raw != "" {
		if ec.ExchangeTo, err = ethutil.ParseToken(raw); err != nil {
			return ec, fmt.Errorf("%w: EXCHANGE_TO_TOKEN_ADDRESS: %v", engine.ErrConfiguration, err)
		}
	}

	if ec.MinProfit, err = envUnits("MINIMUM_PROFIT_NATIVE", firstNonEmpty(os.Getenv("MINIMUM_PROFIT_NATIVE"), os.Getenv("MINIMUM_PROFIT_ETH"))); err != nil {
		return ec, err
	}
	if ec.LiquidationFee, err = envUnits("LIQUIDATION_FEE", os.Getenv("LIQUIDATION_FEE")); err != nil {
		return ec, err
	}
	if ec.EthToCoinbase, err = envUnits("ETH_TO_COINBASE", os.Getenv("ETH_TO_COINBASE")); err != nil {
		return ec, err
	}
	if ec.PrivateRelayExcludesGas, err = envBool("PRIVATE_RELAY_EXCLUDES_GAS", false); err != nil {
		return ec, err
	}
	gasDirect, err := envInt("FALLBACK_GAS_DIRECT", 0)
	if err != nil {
		return ec, err
	}
	gasFlash, err := envInt("FALLBACK_GAS_FLASHLOAN", 0)
	if err != nil {
		return ec, err
	}
	if gasDirect < 0 || gasFlash < 0 {
		return ec, fmt.Errorf("%w: fallback gas must not be negative", engine.ErrConfiguration)
	}
	ec.FallbackGasDirect = uint64(gasDirect)
	ec.FallbackGasFlashLoan = uint64(gasFlash)
	return ec, nil
}

// ParseAMMs parses "factory:router" pairs separated by commas, optionally
// prefixed with "name=".
func ParseAMMs(raw string) ([]redemption.AMM, error) {
	var out []redemption.AMM
	for i, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name := fmt.Sprintf("amm%d", i)
		if k, v, ok := strings.Cut(part, "="); ok {
			name, part = strings.TrimSpace(k), strings.TrimSpace(v)
		}
		factoryRaw, routerRaw, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("%w: AMM_DEPLOYMENTS entry %q must be factory:router", engine.ErrConfiguration, part)
		}
		factory, err := hexAddress("AMM_DEPLOYMENTS factory", factoryRaw)
		if err != nil {
			return nil, err
		}
		router, err := hexAddress("AMM_DEPLOYMENTS router", routerRaw)
		if err != nil {
			return nil, err
		}
		out = append(out, redemption.AMM{Name: name, Factory: factory, Router: router})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: AMM_DEPLOYMENTS is empty", engine.ErrConfiguration)
	}
	return out, nil
}

func requiredAddress(key, raw string) (common.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return common.Address{}, fmt.Errorf("%w: %s required", engine.ErrConfiguration, key)
	}
	return hexAddress(key, raw)
}

func hexAddress(key, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: invalid %s %q", engine.ErrConfiguration, key, raw)
	}
	addr := common.HexToAddress(raw)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s is the zero address", engine.ErrConfiguration, key)
	}
	return addr, nil
}

func envUnits(key, raw string) (*uint256.Int, error) {
	v, err := fixedpoint.ParseUnits(raw, fixedpoint.BaseDecimals)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s %q", engine.ErrConfiguration, key, raw)
	}
	return v, nil
}

func envBool(key string, def bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envFloat(key string, def float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/Rari-Capital/fuse-liquidator-bot/internal/engine"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/redemption"
)

const (
	liquidatorHex = "0xCc29FE6A0e090D464Abb616E1AE4cEeA415c140E"
	lensHex       = "0x00000000000000000000000000000000000001e5"
	usdcHex       = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	testKey       = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LIQUIDATOR_ADDRESS", liquidatorHex)
	t.Setenv("POOL_LENS_ADDRESS", lensHex)
	t.Setenv("LIQUIDATION_STRATEGY", "direct")
	t.Setenv("SUPPORT_ALL_PUBLIC_POOLS", "true")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load("test", nil)
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress(liquidatorHex), cfg.Liquidator)
	require.Equal(t, engine.ModeDirect, cfg.Engine.Mode)
	require.Equal(t, DefaultInterval, cfg.Interval)
	require.Equal(t, DefaultPoolConcurrency, cfg.PoolConcurrency)
	require.Equal(t, 15*time.Minute, cfg.PriceTTL)
	require.Equal(t, "1000000000000000000", cfg.MaxHealth.String())
	require.Equal(t, DefaultAMMs, cfg.AMMs)
	require.True(t, cfg.Engine.MinProfit.IsZero())
	require.False(t, cfg.EnableLiquidations)
	require.Empty(t, cfg.Strategies.Tokens)
}

func TestLoad_FullEnvironment(t *testing.T) {
	setBaseEnv(t)
	dir := t.TempDir()
	table := filepath.Join(dir, "strategies.yaml")
	require.NoError(t, os.WriteFile(table, []byte(`
strategies:
  yearn-vault: "0x00000000000000000000000000000000000000f1"
tokens:
  "0x00000000000000000000000000000000000000a1":
    steps: [yearn-vault]
`), 0o644))

	t.Setenv("LIQUIDATION_STRATEGY", "uniswap")
	t.Setenv("PRIVATE_KEY", "0x"+testKey)
	t.Setenv("SUPPORTED_OUTPUT_CURRENCIES", "ETH,"+usdcHex)
	t.Setenv("SUPPORTED_INPUT_CURRENCIES", "ETH")
	t.Setenv("EXCHANGE_TO_TOKEN_ADDRESS", "ETH")
	t.Setenv("MINIMUM_PROFIT_ETH", "0.05")
	t.Setenv("LIQUIDATION_FEE", "0.028")
	t.Setenv("LIQUIDATION_INTERVAL_SECONDS", "60")
	t.Setenv("SUPPORTED_POOL_COMPTROLLERS", "0x00000000000000000000000000000000000000c1")
	t.Setenv("AMM_DEPLOYMENTS", "uni=0x0000000000000000000000000000000000000f01:0x0000000000000000000000000000000000000f02")
	t.Setenv("STRATEGY_CONFIG_FILE", table)
	t.Setenv("ENABLE_LIQUIDATIONS", "true")
	t.Setenv("POOL_CONCURRENCY", "0")
	t.Setenv("PRICE_CACHE_TTL", "90s")

	cfg, err := Load("test", []string{"-out", filepath.Join(dir, "decisions.jsonl")})
	require.NoError(t, err)

	require.Equal(t, engine.ModeFlashLoan, cfg.Engine.Mode)
	require.NotNil(t, cfg.PrivateKey)
	require.NotEqual(t, common.Address{}, cfg.Account)
	require.Equal(t, []common.Address{{}, common.HexToAddress(usdcHex)}, cfg.Engine.OutputCurrencies)
	require.Equal(t, []common.Address{{}}, cfg.Engine.InputCurrencies)
	require.Equal(t, common.Address{}, cfg.Engine.ExchangeTo)
	require.Equal(t, "50000000000000000", cfg.Engine.MinProfit.Dec())
	require.Equal(t, "28000000000000000", cfg.Engine.LiquidationFee.Dec())
	require.Equal(t, time.Minute, cfg.Interval)
	require.Len(t, cfg.Comptrollers, 1)
	require.Equal(t, "uni", cfg.AMMs[0].Name)
	require.Contains(t, cfg.Strategies.Tokens, common.HexToAddress("0xa1"))
	require.True(t, cfg.EnableLiquidations)
	require.Equal(t, 1, cfg.PoolConcurrency)
	require.Equal(t, 90*time.Second, cfg.PriceTTL)
	require.Equal(t, filepath.Join(dir, "decisions.jsonl"), cfg.OutFile)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("LIQUIDATION_INTERVAL_SECONDS", "60")

	cfg, err := Load("test", []string{"-mode", "flashloan", "-every", "15s"})
	require.NoError(t, err)
	require.Equal(t, engine.ModeFlashLoan, cfg.Engine.Mode)
	require.Equal(t, 15*time.Second, cfg.Interval)
}

func TestLoad_Errors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"missing mode", map[string]string{"LIQUIDATION_STRATEGY": ""}},
		{"unknown mode", map[string]string{"LIQUIDATION_STRATEGY": "leverage"}},
		{"missing liquidator", map[string]string{"LIQUIDATOR_ADDRESS": ""}},
		{"no pools", map[string]string{"SUPPORT_ALL_PUBLIC_POOLS": "false"}},
		{"bad output list", map[string]string{"SUPPORTED_OUTPUT_CURRENCIES": "dai"}},
		{"negative profit", map[string]string{"MINIMUM_PROFIT_NATIVE": "-1"}},
		{"enable without key", map[string]string{"ENABLE_LIQUIDATIONS": "true"}},
		{"bad key", map[string]string{"PRIVATE_KEY": "0x1234"}},
		{"bad amm", map[string]string{"AMM_DEPLOYMENTS": "0x0000000000000000000000000000000000000f01"}},
		{"bad price ttl", map[string]string{"PRICE_CACHE_TTL": "soon"}},
		{"bad wait timeout", map[string]string{"TX_WAIT_TIMEOUT": "forever"}},
		{"missing table", map[string]string{"STRATEGY_CONFIG_FILE": "/nonexistent/strategies.yaml"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load("test", nil)
			require.Error(t, err)
			require.True(t, errors.Is(err, engine.ErrConfiguration), "err=%v", err)
		})
	}
}

func TestParseAMMs(t *testing.T) {
	amms, err := ParseAMMs("0x0000000000000000000000000000000000000f01:0x0000000000000000000000000000000000000f02, sushi=0x0000000000000000000000000000000000000f03:0x0000000000000000000000000000000000000f04")
	require.NoError(t, err)
	require.Equal(t, []redemption.AMM{
		{Name: "amm0", Factory: common.HexToAddress("0xf01"), Router: common.HexToAddress("0xf02")},
		{Name: "sushi", Factory: common.HexToAddress("0xf03"), Router: common.HexToAddress("0xf04")},
	}, amms)

	_, err = ParseAMMs(" , ")
	require.Error(t, err)
}

func TestLoadDotenv_MissingFileIsFine(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	defer func() { _ = os.Chdir(wd) }()

	require.NoError(t, LoadDotenv())
}

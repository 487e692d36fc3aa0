// Package app wires configuration into a ready-to-run liquidator: node
// connection, price feed, redemption resolver, engine, sender and runner.
package app

import (
	"context"
	"fmt"
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Rari-Capital/fuse-liquidator-bot/internal/chain"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/coingecko"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/config"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/decisionlog"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/engine"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/ethutil"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/fuse"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/pricecache"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/redemption"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/runner"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/sender"
)

const priceKeyPrefix = "fuse-liquidator:price:"

type App struct {
	Config  config.Config
	Chain   *chain.Client
	ChainID *big.Int
	Engine  *engine.Engine
	Sender  *sender.Sender
	Runner  *runner.Runner
	Log     *decisionlog.Writer

	relay *sender.Relay
	store *pricecache.RedisStore
}

// Options adjust what Build assembles.
type Options struct {
	// EvaluateOnly builds a runner without a submitter.
	EvaluateOnly bool
}

// Build connects to the node and assembles every collaborator. The caller
// must Close the returned App.
func Build(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	rpcURL, err := chain.ValidateRPCURL(cfg.RPCURL)
	if err != nil {
		return nil, err
	}
	client, head, err := chain.Dial(ctx, rpcURL, cfg.RPCPerSecond)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Chain: client}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if a.ChainID, err = client.ChainID(ctx); err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	log.Printf("[cfg] rpc connected chain=%s head=%d mode=%s liquidator=%s",
		a.ChainID, head, cfg.Engine.Mode, cfg.Liquidator.Hex())
	log.Printf("[cfg] outputs=%s inputs=%s exchangeTo=%s",
		ethutil.JoinHex(cfg.Engine.OutputCurrencies, cfg.NativeSymbol),
		ethutil.JoinHex(cfg.Engine.InputCurrencies, cfg.NativeSymbol),
		ethutil.JoinHex([]common.Address{cfg.Engine.ExchangeTo}, cfg.NativeSymbol))

	gecko, err := coingecko.NewClient(cfg.CoinGeckoURL, cfg.CoinGeckoPlatform, cfg.CoinGeckoCurrency, 0)
	if err != nil {
		return nil, err
	}
	cacheOpts := []pricecache.Option{pricecache.WithTTL(cfg.PriceTTL)}
	if cfg.PriceCacheRedis != "" {
		if a.store, err = pricecache.NewRedisStore(cfg.PriceCacheRedis, priceKeyPrefix); err != nil {
			return nil, err
		}
		cacheOpts = append(cacheOpts, pricecache.WithStore(a.store))
	}
	prices := pricecache.New(gecko, client, cacheOpts...)

	routers := redemption.NewRouterSelector(client, cfg.WrappedNative, cfg.AMMs)
	resolver := redemption.NewResolver(cfg.Strategies, routers)
	resolver.RegisterDefaults(client)

	from := cfg.Account
	if from != (common.Address{}) {
		if bal, err := client.BalanceAt(ctx, from); err != nil {
			log.Printf("[warn] balance %s: %v", from.Hex(), err)
		} else {
			log.Printf("[cfg] account=%s balance=%s wei", from.Hex(), bal)
		}
	}
	estimator := sender.NewEstimator(client, from, cfg.Liquidator)
	if a.Engine, err = engine.New(cfg.Engine, engine.Deps{
		Prices:   prices,
		Gas:      estimator,
		Redeemer: resolver,
		Routers:  routers,
	}); err != nil {
		return nil, err
	}

	var submit runner.Submitter
	if !opts.EvaluateOnly {
		sopts := sender.Options{
			ChainID:     a.ChainID,
			Liquidator:  cfg.Liquidator,
			Key:         cfg.PrivateKey,
			DryRun:      !cfg.EnableLiquidations,
			WaitTimeout: cfg.WaitTimeout,
		}
		if cfg.PrivateRelayURL != "" {
			if a.relay, err = sender.DialRelay(ctx, cfg.PrivateRelayURL); err != nil {
				return nil, err
			}
			sopts.Relay = a.relay
		}
		if a.Sender, err = sender.New(client, sopts); err != nil {
			return nil, err
		}
		submit = a.Sender
	}

	a.Log = decisionlog.New(cfg.OutFile)
	lens := fuse.NewLens(client, cfg.PoolLens)
	if a.Runner, err = runner.New(lens, a.Engine, submit, runner.Options{
		Filter: fuse.Filter{
			PublicPools:  cfg.SupportAllPublicPools,
			Comptrollers: cfg.Comptrollers,
			MaxHealth:    cfg.MaxHealth,
		},
		Concurrency: cfg.PoolConcurrency,
		Timeout:     cfg.Interval,
		Log:         a.Log,
	}); err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

// Close releases connections and flushes the decision log.
func (a *App) Close() {
	if a == nil {
		return
	}
	if err := a.Log.Close(); err != nil {
		log.Printf("[warn] close decision log: %v", err)
	}
	a.relay.Close()
	if a.store != nil {
		_ = a.store.Close()
	}
	a.Chain.Close()
}

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Rari-Capital/fuse-liquidator-bot/internal/chain"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/config"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/sender"
)

// approve grants the liquidator contract an unlimited allowance on every
// supported input currency, for direct-mode liquidations.
func main() {
	log.SetFlags(0)

	var dryRun bool
	flag.BoolVar(&dryRun, "dry-run", false, "Only report which tokens need approval.")
	flag.Parse()

	if err := config.LoadDotenv(); err != nil {
		log.Printf("[warn] %v", err)
	}
	cfg, err := config.Load("approve", flag.Args())
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	if cfg.PrivateKey == nil {
		log.Fatalf("[fatal] PRIVATE_KEY required to approve tokens")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, dryRun); err != nil {
		log.Fatalf("[fatal] %v", err)
	}
}

func run(ctx context.Context, cfg config.Config, dryRun bool) error {
	if len(cfg.Engine.InputCurrencies) == 0 {
		return errors.New("SUPPORTED_INPUT_CURRENCIES is empty; nothing to approve")
	}
	rpcURL, err := chain.ValidateRPCURL(cfg.RPCURL)
	if err != nil {
		return err
	}
	client, _, err := chain.Dial(ctx, rpcURL, cfg.RPCPerSecond)
	if err != nil {
		return err
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return err
	}
	s, err := sender.New(client, sender.Options{
		ChainID:     chainID,
		Liquidator:  cfg.Liquidator,
		Key:         cfg.PrivateKey,
		DryRun:      dryRun,
		WaitTimeout: cfg.WaitTimeout,
	})
	if err != nil {
		return err
	}

	results, err := s.Approve(ctx, client, cfg.Engine.InputCurrencies)
	log.Printf("[info] approvals=%d account=%s", len(results), s.From().Hex())
	return err
}

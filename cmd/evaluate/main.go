package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Rari-Capital/fuse-liquidator-bot/internal/app"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/config"
)

// evaluate runs a single pass without sending anything and prints the report
// as JSON on stdout.
func main() {
	log.SetFlags(0)

	if err := config.LoadDotenv(); err != nil {
		log.Printf("[warn] %v", err)
	}
	cfg, err := config.Load("evaluate", os.Args[1:])
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	cfg.EnableLiquidations = false

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("[fatal] %v", err)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	bot, err := app.Build(ctx, cfg, app.Options{EvaluateOnly: true})
	if err != nil {
		return err
	}
	defer bot.Close()

	rep, err := bot.Runner.Pass(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Rari-Capital/fuse-liquidator-bot/internal/app"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/config"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/decisionlog"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/metrics"
	"github.com/Rari-Capital/fuse-liquidator-bot/internal/runner"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := config.LoadDotenv(); err != nil {
		log.Printf("[warn] %v", err)
	}
	cfg, err := config.Load("liquidator", os.Args[1:])
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	if cfg.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: 5,
			Compress:   true,
		}
		defer rotator.Close()
		log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bot, err := app.Build(ctx, cfg, app.Options{})
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	defer bot.Close()

	_ = bot.Log.Write(decisionlog.Record{Kind: decisionlog.KindStart, Mode: cfg.Engine.Mode.String(), DryRun: !cfg.EnableLiquidations})
	if !cfg.EnableLiquidations {
		log.Printf("[liq] dry-run: set ENABLE_LIQUIDATIONS=true (or --enable-liquidations) to submit transactions")
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           routes(bot.Runner),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Printf("[info] metrics listening on %s", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[warn] metrics server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := bot.Runner.Pass(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[warn] pass failed: %v", err)
		}
		select {
		case <-ctx.Done():
			_ = bot.Log.Write(decisionlog.Record{Kind: decisionlog.KindShutdown})
			log.Printf("[info] shutting down")
			return
		case <-ticker.C:
		}
	}
}

func routes(run *runner.Runner) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		last := run.Last()
		if last == nil {
			http.Error(w, "no pass completed yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(last)
	})
	r.Handle("/metrics", metrics.Handler())
	return r
}

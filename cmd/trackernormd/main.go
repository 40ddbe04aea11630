package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lucasjlepore/trackernorm/config"
	"github.com/lucasjlepore/trackernorm/pipeline"
	"github.com/lucasjlepore/trackernorm/store"
	"github.com/lucasjlepore/trackernorm/worker"
)

func main() {
	var (
		configPath = flag.String("config", "", "Optional config file (json, yaml, toml or env)")
		once       = flag.Bool("once", false, "Drain pending sessions once and exit")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [session files to enqueue...]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	level, err := cfg.Level()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: LOG_LEVEL: %v\n", err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(cfg, logger, flag.Args(), *once); err != nil {
		logger.Error("trackernormd stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger, enqueue []string, once bool) error {
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()
	if err := store.Migrate(db); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if n, err := db.RequeueProcessing(ctx); err != nil {
		return fmt.Errorf("requeue sessions: %w", err)
	} else if n > 0 {
		logger.Warn("requeued interrupted sessions", "count", n)
	}

	for _, path := range enqueue {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		format, _ := pipeline.DetectFormat(abs)
		id, err := db.CreateSession(ctx, abs, string(format))
		if err != nil {
			return err
		}
		logger.Info("session enqueued", "session_id", id, "file", abs)
	}

	proc := worker.NewProcessor(db, worker.WithLogger(logger))
	if once {
		n, err := proc.Drain(ctx, cfg.BatchSize)
		logger.Info("drain complete", "processed", n)
		return err
	}

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("metrics listening", "addr", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	logger.Info("worker started", "db", cfg.DBPath, "poll_interval", cfg.PollInterval, "batch_size", cfg.BatchSize)
	err = proc.Run(ctx, cfg.PollInterval, cfg.BatchSize)
	logger.Info("worker shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := metricsSrv.Shutdown(shutdownCtx); serr != nil {
		logger.Error("metrics shutdown error", "error", serr)
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

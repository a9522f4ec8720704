// Package main implements the FAQ retrieval API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/anarkh-ai/faq-retrieval/engine/embed"
	"github.com/anarkh-ai/faq-retrieval/engine/faqstore"
	"github.com/anarkh-ai/faq-retrieval/engine/retrieval"
	"github.com/anarkh-ai/faq-retrieval/engine/semantic"
	"github.com/anarkh-ai/faq-retrieval/pkg/config"
	"github.com/anarkh-ai/faq-retrieval/pkg/metrics"
	"github.com/anarkh-ai/faq-retrieval/pkg/mid"
)

func main() {
	configPath := flag.String("config", os.Getenv("FAQ_CONFIG"), "path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	for _, warn := range cfg.Validate() {
		logger.Warn("config", "warning", warn)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Connect to MySQL ---
	store, err := faqstore.Open(cfg.Database.DSN(), logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		// The table may already exist or the database may come up later;
		// requests surface connectivity problems on their own.
		logger.Warn("migrate faq table", "err", err)
	}

	// --- Connect to Qdrant ---
	vectorStore, err := semantic.New(cfg.Qdrant.Addr(), cfg.Qdrant.Collection, logger)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()

	// --- Embedding runtime client ---
	embedder := embed.New(cfg.Embedding.BaseURL, cfg.Embedding.Model, logger)

	// --- Build orchestrator ---
	reg := metrics.New()
	svc := retrieval.New(
		embedder,
		store,
		vectorStore,
		retrieval.Options{EmbedBatchSize: cfg.Embedding.BatchSize},
		logger,
		reg,
	)

	// --- Build HTTP server ---
	srvHandlers := newServer(svc, logger)
	handler := mid.Chain(srvHandlers.routes(reg),
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.Server.CORSOrigin),
		mid.OTel("faq-api"),
		mid.RateLimit(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Server.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

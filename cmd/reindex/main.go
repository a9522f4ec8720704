// Command reindex rebuilds the vector collection from the relational faq
// table. It is the same operation as POST /api/v1/faqs/initialize, packaged
// for cron jobs and one-off runs during deployment.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/anarkh-ai/faq-retrieval/engine/embed"
	"github.com/anarkh-ai/faq-retrieval/engine/faqstore"
	"github.com/anarkh-ai/faq-retrieval/engine/retrieval"
	"github.com/anarkh-ai/faq-retrieval/engine/semantic"
	"github.com/anarkh-ai/faq-retrieval/pkg/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("FAQ_CONFIG"), "path to config file (optional)")
	recreate := flag.Bool("recreate", true, "drop and recreate the collection before upserting")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	if err := run(*configPath, *recreate, logger); err != nil {
		logger.Error("reindex failed", "err", err)
		os.Exit(1)
	}
}

func run(configPath string, recreate bool, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := faqstore.Open(cfg.Database.DSN(), logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	vectorStore, err := semantic.New(cfg.Qdrant.Addr(), cfg.Qdrant.Collection, logger)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()

	embedder := embed.New(cfg.Embedding.BaseURL, cfg.Embedding.Model, logger)

	svc := retrieval.New(
		embedder,
		store,
		vectorStore,
		retrieval.Options{EmbedBatchSize: cfg.Embedding.BatchSize},
		logger,
		nil,
	)

	result := svc.InitializeFull(ctx, recreate)
	if !result.Success {
		return fmt.Errorf("%s", result.Message)
	}

	fmt.Printf("Reindexed %d of %d FAQs in %.2fs (model %s, dim %d)\n",
		result.ProcessedCount, result.TotalCount, result.ExecutionTime,
		result.ModelInfo.ModelName, result.ModelInfo.Dimension)
	return nil
}

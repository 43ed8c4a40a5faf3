package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/BDSE37/Podwise-sub002/internal/chunking"
	"github.com/BDSE37/Podwise-sub002/internal/config"
	"github.com/BDSE37/Podwise-sub002/internal/embedding"
	"github.com/BDSE37/Podwise-sub002/internal/ingest"
	"github.com/BDSE37/Podwise-sub002/internal/journal"
	"github.com/BDSE37/Podwise-sub002/internal/metadata"
	"github.com/BDSE37/Podwise-sub002/internal/ratelimit"
	"github.com/BDSE37/Podwise-sub002/internal/tagging"
	"github.com/BDSE37/Podwise-sub002/internal/transcripts"
	"github.com/BDSE37/Podwise-sub002/internal/vectorstore"
)

var (
	configFile = flag.String("config", "", "Path to configuration file (YAML)")
	once       = flag.Bool("once", false, "Run a single ingestion pass across every collection, then exit")
	interval   = flag.Duration("interval", 5*time.Minute, "Delay between ingestion cycles when not running -once")
	version    = flag.Bool("version", false, "Show version information")
	help       = flag.Bool("help", false, "Show help message")
)

func main() {
	flag.Parse()

	if *help {
		showHelp()
		return
	}
	if *version {
		fmt.Println("podwise-ingest v0.1.0")
		return
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := run(logger); err != nil {
		logger.WithError(err).Fatal("ingestion run failed")
	}
}

func run(logger *logrus.Logger) error {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orchestrator, metadataStore, err := wire(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("wire dependencies: %w", err)
	}

	for {
		collectionIDs, err := discoverCollections(ctx, metadataStore)
		if err != nil {
			logger.WithError(err).Error("failed to discover collections, skipping this cycle")
		} else {
			mode := ingest.ModeCycle
			if *once {
				mode = ingest.ModeOneShot
			}
			summary, err := orchestrator.Run(ctx, collectionIDs, mode)
			if err != nil {
				logger.WithError(err).Error("ingestion cycle reported a run-fatal error")
				return err
			}
			logger.WithFields(logrus.Fields{
				"documents_processed": len(summary.Outcomes),
				"collections_done":    len(summary.CollectionsOK),
			}).Info("ingestion cycle complete")
		}

		if *once {
			return nil
		}

		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received, exiting")
			return nil
		case <-time.After(*interval):
		}
	}
}

// discoverCollections lists every podcast ID known to the metadata
// store and maps it to its RSS_<podcast_id> transcript collection.
func discoverCollections(ctx context.Context, store *metadata.PgxStore) ([]string, error) {
	ids, err := store.ListPodcastIDs(ctx)
	if err != nil {
		return nil, err
	}
	collections := make([]string, len(ids))
	for i, id := range ids {
		collections[i] = transcripts.CollectionName(id)
	}
	return collections, nil
}

func wire(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*ingest.Orchestrator, *metadata.PgxStore, error) {
	transcriptStore, err := transcripts.New(ctx, transcripts.Config{
		Endpoint:        cfg.Transcripts.Endpoint,
		AccessKeyID:     cfg.Transcripts.AccessKeyID,
		SecretAccessKey: cfg.Transcripts.SecretAccessKey,
		UseSSL:          cfg.Transcripts.UseSSL,
		Bucket:          cfg.Transcripts.Bucket,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect transcript store: %w", err)
	}

	tagger, err := tagging.Load(cfg.Tagging.TagFilePath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("load tag registry: %w", err)
	}

	chunker := chunking.New(chunking.Config{MaxChunkSize: cfg.ChunkSize})

	pgxCfg, err := pgxpool.ParseConfig(cfg.Metadata.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("parse metadata dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect metadata store: %w", err)
	}
	metadataStore := metadata.NewPgxStore(pool, cfg.Metadata.Timeout)
	resolver := metadata.New(metadataStore, logger)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	cache := embedding.NewRedisCache(redisClient, "", logger)
	limiter := ratelimit.New(ratelimit.Config{
		Capacity:       cfg.Embedding.RateLimit.Capacity,
		RefillInterval: cfg.Embedding.RateLimit.RefillInterval,
	})
	provider := embedding.NewHTTPProvider(cfg.Embedding.Provider, cfg.Embedding.Endpoint, cfg.Embedding.APIKey,
		cfg.Embedding.Provider, cfg.Embedding.Dimension, cfg.Embedding.RequestDeadline)
	embedder := embedding.New(provider, cache, limiter, embedding.Config{
		MaxBatchSize: cfg.Embedding.BatchSize,
		BatchWindow:  cfg.Embedding.BatchWindow,
		CacheTTL:     24 * time.Hour,
	}, logger)

	writer, err := vectorstore.New(ctx, vectorstore.Config{
		Host:           cfg.Qdrant.Host,
		Port:           cfg.Qdrant.GRPCPort,
		CollectionName: cfg.Qdrant.Collection,
		VectorSize:     uint64(cfg.Embedding.Dimension),
		FlushTimeout:   cfg.Qdrant.Timeout,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect vector store: %w", err)
	}

	progress, err := journal.Load(cfg.Ingest.ProgressPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load progress journal: %w", err)
	}
	errJournal := journal.NewErrorJournal(cfg.Ingest.ErrorJournalPath+".json", cfg.Ingest.ErrorJournalPath+".csv")

	orchestrator := ingest.New(transcriptStore, chunker, tagger, embedder, resolver, writer, progress, errJournal,
		ingest.Config{
			ConcurrentWorkers: cfg.Ingest.ConcurrentWorkers,
			CycleSize:         cfg.Ingest.CycleSize,
			RetryAttempts:     cfg.Ingest.RetryAttempts,
		}, logger)

	return orchestrator, metadataStore, nil
}

func showHelp() {
	fmt.Print(`podwise-ingest - Podwise transcript ingestion pipeline

Usage:
  podwise-ingest [options]

Options:
  -config string
        Path to configuration file (YAML)
  -once
        Run a single ingestion pass across every collection, then exit
  -interval duration
        Delay between ingestion cycles when not running -once (default 5m)
  -version
        Show version information
  -help
        Show this help message

Examples:
  podwise-ingest -config config/podwise.yaml
  podwise-ingest -config config/podwise.yaml -once
`)
}

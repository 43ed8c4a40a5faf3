package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/BDSE37/Podwise-sub002/internal/config"
	"github.com/BDSE37/Podwise-sub002/internal/embedding"
	"github.com/BDSE37/Podwise-sub002/internal/model"
	"github.com/BDSE37/Podwise-sub002/internal/rag"
	"github.com/BDSE37/Podwise-sub002/internal/ratelimit"
	"github.com/BDSE37/Podwise-sub002/internal/vectorstore"
)

var (
	configFile = flag.String("config", "", "Path to configuration file (YAML)")
	query      = flag.String("query", "", "Query to answer; reads a line from stdin if omitted")
	deadlineMS = flag.Int("deadline-ms", 0, "Per-request deadline in milliseconds; 0 uses the configured default")
	jsonOutput = flag.Bool("json", false, "Print the full RAGResponse as JSON instead of just the answer text")
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
		fmt.Println("podwise-query v0.1.0")
		return
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := run(logger); err != nil {
		logger.WithError(err).Fatal("query run failed")
	}
}

func run(logger *logrus.Logger) error {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	q := strings.TrimSpace(*query)
	if q == "" {
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			return fmt.Errorf("no query given: pass -query or a line on stdin")
		}
		q = strings.TrimSpace(scanner.Text())
	}
	if q == "" {
		return fmt.Errorf("empty query")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	controller, err := wire(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("wire dependencies: %w", err)
	}

	deadline := time.Time{}
	ms := *deadlineMS
	if ms == 0 {
		ms = cfg.RequestDeadlineMS
	}
	if ms > 0 {
		deadline = time.Now().Add(time.Duration(ms) * time.Millisecond)
	}

	resp := controller.Answer(ctx, q, deadline)
	return printRAGResponse(resp)
}

// printRAGResponse renders a model.RAGResponse either as plain text or,
// with -json, as the full structure including sources and per-level
// confidences.
func printRAGResponse(resp model.RAGResponse) error {
	if *jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	fmt.Println(resp.Content)
	if len(resp.Sources) > 0 {
		fmt.Println("\nSources:", strings.Join(resp.Sources, ", "))
	}
	fmt.Printf("(level: %s, confidence: %.2f, took: %s)\n", resp.LevelUsed, resp.Confidence, resp.ProcessingTime)
	return nil
}

// wire constructs the six cascade levels, the terminal fallback, and
// the hierarchical controller, reusing the same storage and embedding
// infrastructure cmd/podwise-ingest wires on the write side.
func wire(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*rag.Controller, error) {
	vectorStore, err := vectorstore.New(ctx, vectorstore.Config{
		Host:           cfg.Qdrant.Host,
		Port:           cfg.Qdrant.GRPCPort,
		CollectionName: cfg.Qdrant.Collection,
		VectorSize:     uint64(cfg.Embedding.Dimension),
		FlushTimeout:   cfg.Qdrant.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect vector store: %w", err)
	}

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

	bm25 := rag.NewBM25Index()
	corpus, err := vectorStore.ScrollAll(ctx)
	if err != nil {
		logger.WithError(err).Warn("rag: failed to load BM25 corpus from vector store, sparse retrieval disabled for this run")
	} else {
		bm25.Index(corpus)
		logger.WithField("chunks", len(corpus)).Info("rag: BM25 corpus loaded")
	}

	ctrlCfg := controllerConfigFromThresholds(cfg.Thresholds)

	rewriter := rag.NewRewriter(ctrlCfg.Rewriter, logger)
	hybrid := rag.NewHybridSearcher(vectorStore, embedder, bm25, ctrlCfg.Hybrid, logger)
	augmenter := rag.NewAugmenter(vectorStore, ctrlCfg.Augment, logger)
	reranker := rag.NewReranker(ctrlCfg.Rerank, logger)
	compressor := rag.NewCompressor(ctrlCfg.Compress, logger)

	generalBackend := newGeneratorBackend(cfg.Generation.General)
	domainBackend := newGeneratorBackend(cfg.Generation.Domain)
	generator := rag.NewHybridGenerator(cfg.Generation.General.Name, generalBackend, cfg.Generation.Domain.Name, domainBackend, ctrlCfg.Generate, logger)

	fallbackBackend := newGeneratorBackend(cfg.Generation.Fallback)
	fallback := rag.NewSimpleFallback(fallbackBackend)

	controller := rag.NewController(rewriter, hybrid, augmenter, reranker, compressor, generator, fallback, logger)
	return controller, nil
}

// controllerConfigFromThresholds maps the configuration document's
// flat per-level thresholds onto the cascade's per-level config
// structs, falling back to each level's own documented default when a
// threshold is left at its YAML zero value.
func controllerConfigFromThresholds(t config.LevelThresholds) rag.ControllerConfig {
	cfg := rag.DefaultControllerConfig()
	if t.L1 != 0 {
		cfg.Rewriter.AcceptThreshold = t.L1
	}
	if t.L2 != 0 {
		cfg.Hybrid.AcceptThreshold = t.L2
	}
	if t.L3 != 0 {
		cfg.Augment.AcceptThreshold = t.L3
	}
	if t.L4 != 0 {
		cfg.Rerank.AcceptThreshold = t.L4
	}
	if t.L5 != 0 {
		cfg.Compress.AcceptThreshold = t.L5
	}
	if t.L6 != 0 {
		cfg.Generate.AcceptThreshold = t.L6
	}
	return cfg
}

func newGeneratorBackend(backend config.GeneratorBackendConfig) *rag.HTTPGenerator {
	return rag.NewHTTPGenerator(backend.Name, backend.Endpoint, backend.APIKey, backend.Model, backend.Timeout)
}

func showHelp() {
	fmt.Print(`podwise-query - Podwise hierarchical retrieval query tool

Usage:
  podwise-query -query "..." [options]

Options:
  -config string
        Path to configuration file (YAML)
  -query string
        Query to answer; reads a line from stdin if omitted
  -deadline-ms int
        Per-request deadline in milliseconds; 0 uses the configured default
  -json
        Print the full RAGResponse as JSON instead of just the answer text
  -version
        Show version information
  -help
        Show this help message

Examples:
  podwise-query -config config/podwise.yaml -query "可以推薦一個投資理財的 podcast 嗎"
  echo "有哪些學習 AI 的課程" | podwise-query -config config/podwise.yaml
`)
}

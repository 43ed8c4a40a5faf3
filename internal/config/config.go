// Package config loads Podwise's YAML configuration document, following
// the defaults-then-overlay-then-env-substitute pattern used throughout
// the reference platform's config loaders.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BDSE37/Podwise-sub002/internal/errs"
)

// LevelThresholds holds the per-level confidence acceptance thresholds
// for the hierarchical cascade.
type LevelThresholds struct {
	L1 float64 `yaml:"l1_threshold"`
	L2 float64 `yaml:"l2_threshold"`
	L3 float64 `yaml:"l3_threshold"`
	L4 float64 `yaml:"l4_threshold"`
	L5 float64 `yaml:"l5_threshold"`
	L6 float64 `yaml:"l6_threshold"`
}

// QdrantConfig configures the vector store connection.
type QdrantConfig struct {
	Host           string        `yaml:"host"`
	GRPCPort       int           `yaml:"grpc_port"`
	Collection     string        `yaml:"collection"`
	Timeout        time.Duration `yaml:"timeout"`
	ScoreThreshold float32       `yaml:"score_threshold"`
}

// MetadataStoreConfig configures the read-only relational metadata
// store.
type MetadataStoreConfig struct {
	DSN     string        `yaml:"dsn"`
	Timeout time.Duration `yaml:"timeout"`
}

// TranscriptStoreConfig configures the MinIO-backed source transcript
// object store.
type TranscriptStoreConfig struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`
	Bucket          string `yaml:"bucket"`
}

// RedisConfig configures the embedding cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// EmbeddingConfig configures the embedding adapter's batching queue.
type EmbeddingConfig struct {
	Provider        string        `yaml:"provider"`
	Endpoint        string        `yaml:"endpoint"`
	APIKey          string        `yaml:"api_key"`
	Dimension       int           `yaml:"embedding_dim"`
	BatchSize       int           `yaml:"embedding_batch_size"`
	BatchWindow     time.Duration `yaml:"embedding_batch_window"`
	RequestDeadline time.Duration `yaml:"embedding_deadline"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig paces outbound calls to the embedding provider.
type RateLimitConfig struct {
	Capacity       int           `yaml:"capacity"`
	RefillInterval time.Duration `yaml:"refill_interval"`
}

// TaggingConfig points at the lexicon CSV the registry loads at startup.
type TaggingConfig struct {
	TagFilePath string `yaml:"tag_file_path"`
}

// IngestConfig configures the orchestrator.
type IngestConfig struct {
	ConcurrentWorkers int `yaml:"concurrent_workers"`
	CycleSize         int `yaml:"cycle_size"`
	RetryAttempts     int `yaml:"retry_attempts"`
	ProgressPath      string `yaml:"progress_path"`
	ErrorJournalPath  string `yaml:"error_journal_path"`
	StatsPath         string `yaml:"stats_path"`
}

// GeneratorBackendConfig describes one chat-completion endpoint backing
// a Level 6 generator.
type GeneratorBackendConfig struct {
	Name     string        `yaml:"name"`
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// GenerationConfig configures Level 6's two-backend ensemble and the
// terminal fallback generator.
type GenerationConfig struct {
	General  GeneratorBackendConfig `yaml:"general"`
	Domain   GeneratorBackendConfig `yaml:"domain"`
	Fallback GeneratorBackendConfig `yaml:"fallback"`
}

// Config is the full Podwise configuration document.
type Config struct {
	ChunkSize          int                   `yaml:"chunk_size"`
	BatchSize          int                   `yaml:"batch_size"`
	Thresholds         LevelThresholds       `yaml:",inline"`
	RequestDeadlineMS  int                   `yaml:"request_deadline_ms"`
	RetryAttempts      int                   `yaml:"retry_attempts"`
	ConcurrentWorkers  int                   `yaml:"concurrent_workers"`
	FallbackStrategy   string                `yaml:"fallback_strategy"`

	Qdrant      QdrantConfig          `yaml:"qdrant"`
	Metadata    MetadataStoreConfig   `yaml:"metadata_store"`
	Transcripts TranscriptStoreConfig `yaml:"transcript_store"`
	Redis       RedisConfig           `yaml:"redis"`
	Embedding   EmbeddingConfig       `yaml:"embedding"`
	Tagging     TaggingConfig         `yaml:"tagging"`
	Ingest      IngestConfig          `yaml:"ingest"`
	Generation  GenerationConfig      `yaml:"generation"`
}

// Default returns the configuration populated with spec-mandated
// defaults, before any YAML overlay.
func Default() *Config {
	return &Config{
		ChunkSize:         1024,
		BatchSize:         50,
		RequestDeadlineMS: 30000,
		RetryAttempts:     3,
		ConcurrentWorkers: 4,
		FallbackStrategy:  "opaque",
		Thresholds: LevelThresholds{
			L1: 0.7, L2: 0.6, L3: 0.5, L4: 0.6, L5: 0.5, L6: 0.7,
		},
		Qdrant: QdrantConfig{
			Host: "localhost", GRPCPort: 6334, Collection: "podwise_chunks",
			Timeout: 30 * time.Second, ScoreThreshold: 0,
		},
		Metadata: MetadataStoreConfig{Timeout: 5 * time.Second},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		Embedding: EmbeddingConfig{
			Dimension: 1024, BatchSize: 32, BatchWindow: 50 * time.Millisecond,
			RequestDeadline: 30 * time.Second,
			RateLimit:       RateLimitConfig{Capacity: 10, RefillInterval: 100 * time.Millisecond},
		},
		Ingest: IngestConfig{
			ConcurrentWorkers: 4, CycleSize: 5, RetryAttempts: 3,
			ProgressPath:     "data/ingest_progress.json",
			ErrorJournalPath: "data/ingest_errors",
			StatsPath:        "data/ingest_stats.json",
		},
		Generation: GenerationConfig{
			General:  GeneratorBackendConfig{Name: "general", Timeout: 30 * time.Second},
			Domain:   GeneratorBackendConfig{Name: "domain", Timeout: 30 * time.Second},
			Fallback: GeneratorBackendConfig{Name: "fallback", Timeout: 30 * time.Second},
		},
	}
}

// Load reads a YAML document at path, overlaying it onto Default(), and
// expands ${VAR} references via os.ExpandEnv in the host, endpoint,
// address, DSN, credential, collection-name and tag-file-path fields
// listed in substituteEnv; other string fields are left as written.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.ConfigError, "config.load", err, fmt.Sprintf("read %s", path))
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errs.Wrap(errs.ConfigError, "config.load", err, "parse yaml")
	}

	substituteEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func substituteEnv(cfg *Config) {
	cfg.Qdrant.Host = os.ExpandEnv(cfg.Qdrant.Host)
	cfg.Metadata.DSN = os.ExpandEnv(cfg.Metadata.DSN)
	cfg.Transcripts.Endpoint = os.ExpandEnv(cfg.Transcripts.Endpoint)
	cfg.Transcripts.AccessKeyID = os.ExpandEnv(cfg.Transcripts.AccessKeyID)
	cfg.Transcripts.SecretAccessKey = os.ExpandEnv(cfg.Transcripts.SecretAccessKey)
	cfg.Redis.Addr = os.ExpandEnv(cfg.Redis.Addr)
	cfg.Redis.Password = os.ExpandEnv(cfg.Redis.Password)
	cfg.Embedding.Endpoint = os.ExpandEnv(cfg.Embedding.Endpoint)
	cfg.Embedding.APIKey = os.ExpandEnv(cfg.Embedding.APIKey)
	cfg.Qdrant.Collection = os.ExpandEnv(cfg.Qdrant.Collection)
	cfg.Tagging.TagFilePath = os.ExpandEnv(cfg.Tagging.TagFilePath)

	cfg.Generation.General.Endpoint = os.ExpandEnv(cfg.Generation.General.Endpoint)
	cfg.Generation.General.APIKey = os.ExpandEnv(cfg.Generation.General.APIKey)
	cfg.Generation.Domain.Endpoint = os.ExpandEnv(cfg.Generation.Domain.Endpoint)
	cfg.Generation.Domain.APIKey = os.ExpandEnv(cfg.Generation.Domain.APIKey)
	cfg.Generation.Fallback.Endpoint = os.ExpandEnv(cfg.Generation.Fallback.Endpoint)
	cfg.Generation.Fallback.APIKey = os.ExpandEnv(cfg.Generation.Fallback.APIKey)
}

func (c *Config) validate() error {
	if c.ChunkSize <= 0 {
		return errs.New(errs.ConfigError, "config.validate", "chunk_size must be positive")
	}
	if c.Tagging.TagFilePath == "" {
		return errs.New(errs.ConfigError, "config.validate", "tagging.tag_file_path is required")
	}
	return nil
}

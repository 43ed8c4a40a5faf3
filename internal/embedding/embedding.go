// Package embedding implements the Embedding Adapter: produces
// L2-normalized dense vectors for text batches, with a batching queue,
// a Redis-backed cache, rate-limited provider calls, and per-text
// failure isolation.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BDSE37/Podwise-sub002/internal/errs"
	"github.com/BDSE37/Podwise-sub002/internal/model"
)

// Provider is the external embedding capability: batching beyond a
// single call is the caller's concern, matching §6's "Embedding
// model — batching is the client's concern."
type Provider interface {
	Name() string
	Dimensions() int
	Health(ctx context.Context) error
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// Cache stores previously computed embeddings keyed by content hash.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, embedding []float32, ttl time.Duration)
}

// Config configures the Adapter's batching queue, per §5: release a
// batch when either MaxBatchSize texts accumulate or BatchWindow
// elapses, whichever comes first.
type Config struct {
	MaxBatchSize int
	BatchWindow  time.Duration
	CacheTTL     time.Duration
}

// DefaultConfig returns the spec's default batching parameters.
func DefaultConfig() Config {
	return Config{MaxBatchSize: 32, BatchWindow: 50 * time.Millisecond, CacheTTL: 24 * time.Hour}
}

// Limiter paces outbound provider calls; *ratelimit.TokenBucket
// satisfies it in production.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Adapter produces normalized embeddings for text batches, with an
// optional cache and per-text failure isolation.
type Adapter struct {
	provider Provider
	cache    Cache
	limiter  Limiter
	cfg      Config
	logger   *logrus.Logger
}

// New creates an Adapter. cache may be nil to disable caching. limiter
// may be nil to issue provider calls unpaced.
func New(provider Provider, cache Cache, limiter Limiter, cfg Config, logger *logrus.Logger) *Adapter {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultConfig().MaxBatchSize
	}
	if cfg.BatchWindow <= 0 {
		cfg.BatchWindow = DefaultConfig().BatchWindow
	}
	return &Adapter{provider: provider, cache: cache, limiter: limiter, cfg: cfg, logger: logger}
}

// Result pairs an embedding with a flag marking provider failure for
// that particular text (the writer excludes flagged rows from
// similarity rankings but keeps them for metadata lookup).
type Result struct {
	Vector []float32
	Failed bool
}

// Embed produces one normalized embedding per input text, resolving
// from cache first and batching the remainder to the provider in
// groups of at most cfg.MaxBatchSize.
func (a *Adapter) Embed(ctx context.Context, texts []string) ([]Result, error) {
	results := make([]Result, len(texts))
	var misses []int

	if a.cache != nil {
		for i, t := range texts {
			key := contentHash(t)
			if v, ok := a.cache.Get(ctx, key); ok {
				results[i] = Result{Vector: v}
				continue
			}
			misses = append(misses, i)
		}
	} else {
		for i := range texts {
			misses = append(misses, i)
		}
	}

	for start := 0; start < len(misses); start += a.cfg.MaxBatchSize {
		end := start + a.cfg.MaxBatchSize
		if end > len(misses) {
			end = len(misses)
		}
		batchIdx := misses[start:end]
		batchTexts := make([]string, len(batchIdx))
		for i, idx := range batchIdx {
			batchTexts[i] = texts[idx]
		}

		if a.limiter != nil {
			if err := a.limiter.Wait(ctx); err != nil {
				return nil, errs.Wrap(errs.TimeoutError, "embedding.rate_limit", err, "rate limiter wait canceled")
			}
		}

		vectors, err := a.provider.Encode(ctx, batchTexts)
		if err != nil {
			// The whole batch call failed: flag every text in it with
			// the zero-vector fallback rather than aborting the caller.
			a.logger.WithError(err).Warn("embedding batch failed, using zero vectors")
			for _, idx := range batchIdx {
				results[idx] = Result{Vector: zeroVector(a.provider.Dimensions()), Failed: true}
			}
			continue
		}

		for i, idx := range batchIdx {
			vec := vectors[i]
			normalized := l2Normalize(vec)
			failed := isZero(normalized)
			results[idx] = Result{Vector: normalized, Failed: failed}
			if a.cache != nil && !failed {
				a.cache.Set(ctx, contentHash(texts[idx]), normalized, a.cfg.CacheTTL)
			}
		}
	}

	return results, nil
}

func zeroVector(dim int) []float32 {
	if dim <= 0 {
		dim = model.EmbeddingDim
	}
	return make([]float32, dim)
}

func isZero(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}

func l2Normalize(v []float32) []float32 {
	var sumSq float64
	for _, f := range v {
		sumSq += float64(f) * float64(f)
	}
	if sumSq == 0 {
		return v
	}
	norm := math.Sqrt(sumSq)
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Batcher accumulates Submit calls from concurrent callers and releases
// a batch to fn when either MaxBatchSize texts have accumulated or
// BatchWindow has elapsed, whichever comes first — the §5 batching
// queue shared across ingestion workers.
type Batcher struct {
	mu      sync.Mutex
	cfg     Config
	pending []batchItem
	timer   *time.Timer
	fn      func(ctx context.Context, texts []string) ([]Result, error)
	logger  *logrus.Logger
}

type batchItem struct {
	text  string
	reply chan batchReply
}

type batchReply struct {
	result Result
	err    error
}

// NewBatcher creates a Batcher that calls fn to resolve each released
// batch.
func NewBatcher(cfg Config, fn func(ctx context.Context, texts []string) ([]Result, error), logger *logrus.Logger) *Batcher {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultConfig().MaxBatchSize
	}
	if cfg.BatchWindow <= 0 {
		cfg.BatchWindow = DefaultConfig().BatchWindow
	}
	return &Batcher{cfg: cfg, fn: fn, logger: logger}
}

// Submit enqueues a single text for embedding and blocks until its
// batch is released and resolved, or ctx is done.
func (b *Batcher) Submit(ctx context.Context, text string) (Result, error) {
	reply := make(chan batchReply, 1)
	b.enqueue(text, reply)

	select {
	case r := <-reply:
		return r.result, r.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (b *Batcher) enqueue(text string, reply chan batchReply) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, batchItem{text: text, reply: reply})

	if len(b.pending) >= b.cfg.MaxBatchSize {
		b.releaseLocked()
		return
	}
	if b.timer == nil {
		b.timer = time.AfterFunc(b.cfg.BatchWindow, b.onTimer)
	}
}

func (b *Batcher) onTimer() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releaseLocked()
}

// releaseLocked must be called with mu held.
func (b *Batcher) releaseLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if len(b.pending) == 0 {
		return
	}
	batch := b.pending
	b.pending = nil

	go func() {
		texts := make([]string, len(batch))
		for i, item := range batch {
			texts[i] = item.text
		}
		results, err := b.fn(context.Background(), texts)
		for i, item := range batch {
			if err != nil {
				item.reply <- batchReply{err: err}
				continue
			}
			item.reply <- batchReply{result: results[i]}
		}
	}()
}

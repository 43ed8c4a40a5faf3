package embedding

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	dim        int
	mu         sync.Mutex
	calls      [][]string
	failTexts  map[string]bool
	failBatch  bool
}

func newMockProvider(dim int) *mockProvider {
	return &mockProvider{dim: dim, failTexts: map[string]bool{}}
}

func (m *mockProvider) Name() string       { return "mock" }
func (m *mockProvider) Dimensions() int    { return m.dim }
func (m *mockProvider) Health(context.Context) error { return nil }

func (m *mockProvider) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]string{}, texts...))
	m.mu.Unlock()

	if m.failBatch {
		return nil, assertErr{"batch failed"}
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		if m.failTexts[t] {
			out[i] = make([]float32, m.dim)
			continue
		}
		v := make([]float32, m.dim)
		for j := range v {
			v[j] = float32(len(t) + j + 1)
		}
		out[i] = v
	}
	return out, nil
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }

type memCache struct {
	mu   sync.Mutex
	data map[string][]float32
}

func newMemCache() *memCache { return &memCache{data: map[string][]float32{}} }

func (c *memCache) Get(ctx context.Context, key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *memCache) Set(ctx context.Context, key string, embedding []float32, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = embedding
}

func TestEmbedNormalizesVectors(t *testing.T) {
	provider := newMockProvider(4)
	adapter := New(provider, nil, nil, DefaultConfig(), nil)

	results, err := adapter.Embed(context.Background(), []string{"hello", "world"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, r := range results {
		assert.False(t, r.Failed)
		var sumSq float64
		for _, f := range r.Vector {
			sumSq += float64(f) * float64(f)
		}
		assert.InDelta(t, 1.0, sumSq, 1e-4)
	}
}

func TestEmbedFlagsPerTextFailure(t *testing.T) {
	provider := newMockProvider(4)
	provider.failTexts["bad"] = true
	adapter := New(provider, nil, nil, DefaultConfig(), nil)

	results, err := adapter.Embed(context.Background(), []string{"good", "bad"})
	require.NoError(t, err)
	assert.False(t, results[0].Failed)
	assert.True(t, results[1].Failed)
	assert.True(t, isZero(results[1].Vector))
}

func TestEmbedUsesCache(t *testing.T) {
	provider := newMockProvider(4)
	cache := newMemCache()
	adapter := New(provider, cache, nil, DefaultConfig(), nil)

	_, err := adapter.Embed(context.Background(), []string{"cached text"})
	require.NoError(t, err)
	require.Len(t, provider.calls, 1)

	_, err = adapter.Embed(context.Background(), []string{"cached text"})
	require.NoError(t, err)
	// No new provider call: the second lookup was served from cache.
	assert.Len(t, provider.calls, 1)
}

func TestEmbedBatchesAtMaxSize(t *testing.T) {
	provider := newMockProvider(4)
	cfg := Config{MaxBatchSize: 2, BatchWindow: time.Hour, CacheTTL: time.Minute}
	adapter := New(provider, nil, nil, cfg, nil)

	texts := []string{"a", "b", "c", "d", "e"}
	_, err := adapter.Embed(context.Background(), texts)
	require.NoError(t, err)

	// 5 texts at batch size 2 -> 3 provider calls.
	assert.Len(t, provider.calls, 3)
}

func TestBatcherReleasesOnSize(t *testing.T) {
	provider := newMockProvider(4)
	cfg := Config{MaxBatchSize: 2, BatchWindow: time.Hour}
	batcher := NewBatcher(cfg, func(ctx context.Context, texts []string) ([]Result, error) {
		vecs, err := provider.Encode(ctx, texts)
		if err != nil {
			return nil, err
		}
		out := make([]Result, len(vecs))
		for i, v := range vecs {
			out[i] = Result{Vector: v}
		}
		return out, nil
	}, nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _, _ = batcher.Submit(context.Background(), "x") }()
	go func() { defer wg.Done(); _, _ = batcher.Submit(context.Background(), "y") }()
	wg.Wait()

	assert.Len(t, provider.calls, 1)
	assert.Len(t, provider.calls[0], 2)
}

func TestBatcherReleasesOnWindow(t *testing.T) {
	provider := newMockProvider(4)
	cfg := Config{MaxBatchSize: 100, BatchWindow: 20 * time.Millisecond}
	batcher := NewBatcher(cfg, func(ctx context.Context, texts []string) ([]Result, error) {
		vecs, err := provider.Encode(ctx, texts)
		if err != nil {
			return nil, err
		}
		out := make([]Result, len(vecs))
		for i, v := range vecs {
			out[i] = Result{Vector: v}
		}
		return out, nil
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := batcher.Submit(ctx, "solo")
	require.NoError(t, err)
	assert.Len(t, provider.calls, 1)
}

type fakeLimiter struct {
	waits   int
	blocked bool
}

func (f *fakeLimiter) Wait(ctx context.Context) error {
	f.waits++
	if f.blocked {
		return ctx.Err()
	}
	return nil
}

func TestEmbedWaitsOnLimiterBeforeEachBatch(t *testing.T) {
	provider := newMockProvider(4)
	limiter := &fakeLimiter{}
	adapter := New(provider, nil, limiter, Config{MaxBatchSize: 2, BatchWindow: time.Millisecond}, nil)

	_, err := adapter.Embed(context.Background(), []string{"a", "b", "c", "d"})
	require.NoError(t, err)
	assert.Equal(t, 2, limiter.waits, "one wait per provider batch call")
}

func TestEmbedPropagatesCanceledLimiterWait(t *testing.T) {
	provider := newMockProvider(4)
	limiter := &fakeLimiter{blocked: true}
	adapter := New(provider, nil, limiter, DefaultConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := adapter.Embed(ctx, []string{"a"})
	require.Error(t, err)
	assert.Empty(t, provider.calls)
}

package rag

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BDSE37/Podwise-sub002/internal/model"
)

// ControllerConfig bundles the six levels' acceptance thresholds under
// one constructor call, mirroring the pattern each Level type already
// uses individually.
type ControllerConfig struct {
	Rewriter RewriterConfig
	Hybrid   HybridConfig
	Augment  AugmentConfig
	Rerank   RerankConfig
	Compress CompressConfig
	Generate GenerateConfig
}

// DefaultControllerConfig returns every level's documented default
// threshold (§6).
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		Rewriter: DefaultRewriterConfig(),
		Hybrid:   DefaultHybridConfig(),
		Augment:  DefaultAugmentConfig(),
		Rerank:   DefaultRerankConfig(),
		Compress: DefaultCompressConfig(),
		Generate: DefaultGenerateConfig(),
	}
}

// Controller runs the six-level hierarchical retrieval cascade (§4.M):
// L1 rewrites, L2 retrieves, L3 augments, L4 reranks, L5 compresses,
// L6 generates. A level's rejection never halts the cascade — the
// next level still runs, fed the best available input — and if no
// level's output is ever accepted, the terminal fallback answers
// instead.
type Controller struct {
	rewriter  *Rewriter
	hybrid    *HybridSearcher
	augmenter *Augmenter
	reranker  *Reranker
	compress  *Compressor
	generate  *HybridGenerator
	fallback  FallbackGenerator

	logger  *logrus.Logger
	metrics *controllerMetrics
	now     func() time.Time
}

// NewController wires the six levels and the terminal fallback into
// one cascade.
func NewController(
	rewriter *Rewriter,
	hybrid *HybridSearcher,
	augmenter *Augmenter,
	reranker *Reranker,
	compress *Compressor,
	generate *HybridGenerator,
	fallback FallbackGenerator,
	logger *logrus.Logger,
) *Controller {
	if logger == nil {
		logger = logrus.New()
	}
	return &Controller{
		rewriter:  rewriter,
		hybrid:    hybrid,
		augmenter: augmenter,
		reranker:  reranker,
		compress:  compress,
		generate:  generate,
		fallback:  fallback,
		logger:    logger,
		metrics:   sharedControllerMetrics(),
		now:       time.Now,
	}
}

// Answer runs the full cascade for query against deadline, returning
// exactly one RAGResponse. deadline of zero value means no deadline
// beyond ctx's own.
func (c *Controller) Answer(ctx context.Context, query string, deadline time.Time) model.RAGResponse {
	start := c.now()
	if !deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	levelConfidences := map[model.Level]float64{}
	deepestAccepted := model.Level("none")

	// L1: Query Rewriter
	qctx := c.rewriter.Rewrite(ctx, query)
	levelConfidences[model.LevelL1] = qctx.Confidence
	l1Accepted := c.rewriter.Accept(qctx)
	c.recordLevel(model.LevelL1, l1Accepted)
	if l1Accepted {
		deepestAccepted = model.LevelL1
	}
	if c.deadlineExceeded(ctx) {
		return c.finish(c.runFallback(ctx, query, nil), start, levelConfidences, deepestAccepted)
	}

	// L2: Hybrid Searcher
	hybridResult, err := c.hybrid.Search(ctx, qctx)
	if err != nil {
		c.logger.WithError(err).Warn("rag: L2 hybrid search failed, advancing with empty candidates")
	}
	levelConfidences[model.LevelL2] = hybridResult.Confidence
	l2Accepted := c.hybrid.Accept(hybridResult)
	c.recordLevel(model.LevelL2, l2Accepted)
	if l2Accepted {
		deepestAccepted = model.LevelL2
	}
	candidates := hybridResult.Results
	if c.deadlineExceeded(ctx) {
		return c.finish(c.runFallback(ctx, query, candidates), start, levelConfidences, deepestAccepted)
	}

	// L3: Retrieval Augmentation
	augmentResult := c.augmenter.Augment(ctx, candidates)
	levelConfidences[model.LevelL3] = augmentResult.Confidence
	l3Accepted := c.augmenter.Accept(augmentResult)
	c.recordLevel(model.LevelL3, l3Accepted)
	if l3Accepted {
		deepestAccepted = model.LevelL3
		candidates = augmentResult.Results
	}
	if c.deadlineExceeded(ctx) {
		return c.finish(c.runFallback(ctx, query, candidates), start, levelConfidences, deepestAccepted)
	}

	// L4: Reranker
	rerankResult := c.reranker.Rerank(candidates)
	levelConfidences[model.LevelL4] = rerankResult.Confidence
	l4Accepted := c.reranker.Accept(rerankResult)
	c.recordLevel(model.LevelL4, l4Accepted)
	if l4Accepted {
		deepestAccepted = model.LevelL4
		candidates = rerankResult.Results
	}
	candidateCountAtL4 := len(candidates)
	if c.deadlineExceeded(ctx) {
		return c.finish(c.runFallback(ctx, query, candidates), start, levelConfidences, deepestAccepted)
	}

	// L5: Context Compressor
	compressResult := c.compress.Compress(candidates)
	levelConfidences[model.LevelL5] = compressResult.Confidence
	l5Accepted := c.compress.Accept(compressResult)
	c.recordLevel(model.LevelL5, l5Accepted)
	if l5Accepted {
		deepestAccepted = model.LevelL5
		candidates = compressResult.Results
	}
	if c.deadlineExceeded(ctx) {
		return c.finish(c.runFallback(ctx, query, candidates), start, levelConfidences, deepestAccepted)
	}

	// L6: Hybrid Generator
	genResult, err := c.generate.Generate(ctx, query, candidates, candidateCountAtL4)
	if err != nil {
		c.logger.WithError(err).Warn("rag: L6 generation failed, falling back")
		c.recordLevel(model.LevelL6, false)
		return c.finish(c.runFallback(ctx, query, candidates), start, levelConfidences, deepestAccepted)
	}
	levelConfidences[model.LevelL6] = genResult.Response.Confidence
	c.recordLevel(model.LevelL6, genResult.OK)
	if genResult.OK {
		deepestAccepted = model.LevelL6
		return c.finish(genResult.Response, start, levelConfidences, deepestAccepted)
	}

	// L6 ran but failed quality control even after its retry: the
	// cascade falls through to the terminal fallback regardless of
	// whether an earlier level had cleared its own threshold, since
	// only L6 produces answer text.
	return c.finish(c.runFallback(ctx, query, candidates), start, levelConfidences, deepestAccepted)
}

func (c *Controller) deadlineExceeded(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (c *Controller) runFallback(ctx context.Context, query string, candidates []model.SearchResult) model.RAGResponse {
	c.metrics.observeFallback()
	content, err := c.fallback.Generate(ctx, query, candidates)
	if err != nil {
		c.logger.WithError(err).Error("rag: terminal fallback failed")
		content = ""
	}
	return model.RAGResponse{
		Content:    content,
		Confidence: 0.8,
		Sources:    documentIDs(candidates),
		LevelUsed:  model.LevelFallback,
	}
}

func (c *Controller) finish(resp model.RAGResponse, start time.Time, levelConfidences map[model.Level]float64, deepestAccepted model.Level) model.RAGResponse {
	elapsed := c.now().Sub(start)
	resp.ProcessingTime = elapsed
	if resp.Metadata == nil {
		resp.Metadata = map[string]interface{}{}
	}
	resp.Metadata["level_confidences"] = levelConfidences
	resp.Metadata["deepest_accepted_level"] = deepestAccepted
	c.metrics.observeLatency(elapsed.Seconds())
	return resp
}

func (c *Controller) recordLevel(level model.Level, accepted bool) {
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	c.metrics.observeLevel(string(level), outcome)
}

func documentIDs(results []model.SearchResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.DocumentID
	}
	return ids
}

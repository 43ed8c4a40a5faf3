package rag

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/sirupsen/logrus"

	"github.com/BDSE37/Podwise-sub002/internal/embedding"
	"github.com/BDSE37/Podwise-sub002/internal/model"
	"github.com/BDSE37/Podwise-sub002/internal/vectorstore"
)

// VectorSearcher is the narrow vector-store access the hybrid searcher
// needs; *vectorstore.Store satisfies it in production.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, limit int, filter vectorstore.SearchFilter) ([]model.SearchResult, error)
}

// TextEmbedder is the narrow embedding access the hybrid searcher
// needs; *embedding.Adapter satisfies it in production.
type TextEmbedder interface {
	Embed(ctx context.Context, texts []string) ([]embedding.Result, error)
}

// SparseSearcher is the narrow lexical-index access the hybrid
// searcher needs; *BM25Index satisfies it.
type SparseSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error)
}

const hybridCandidateLimit = 10

// HybridConfig holds the L2 acceptance threshold.
type HybridConfig struct {
	AcceptThreshold float64
}

// DefaultHybridConfig returns the spec's 0.6 default.
func DefaultHybridConfig() HybridConfig {
	return HybridConfig{AcceptThreshold: 0.6}
}

// HybridSearcher implements Level 2: three retrievers (dense, sparse,
// semantic) run concurrently and are fused into a single ranked list
// (§4.H, §5's "three L2 retrievers execute in parallel and join before
// fusion").
type HybridSearcher struct {
	vectors  VectorSearcher
	embedder TextEmbedder
	sparse   SparseSearcher
	cfg      HybridConfig
	logger   *logrus.Logger
}

// NewHybridSearcher builds a HybridSearcher.
func NewHybridSearcher(vectors VectorSearcher, embedder TextEmbedder, sparse SparseSearcher, cfg HybridConfig, logger *logrus.Logger) *HybridSearcher {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.AcceptThreshold == 0 {
		cfg.AcceptThreshold = DefaultHybridConfig().AcceptThreshold
	}
	return &HybridSearcher{vectors: vectors, embedder: embedder, sparse: sparse, cfg: cfg, logger: logger}
}

// HybridResult is L2's output: the fused candidate list plus its
// confidence.
type HybridResult struct {
	Results    []model.SearchResult
	Confidence float64
}

// filterFor maps a QueryContext's domain to the category filter §4.H
// requires: business/education apply a category filter, general
// applies none.
func filterFor(qctx model.QueryContext) vectorstore.SearchFilter {
	switch qctx.Domain {
	case model.DomainBusiness:
		return vectorstore.SearchFilter{Category: "business"}
	case model.DomainEducation:
		return vectorstore.SearchFilter{Category: "education"}
	default:
		return vectorstore.SearchFilter{}
	}
}

// Search runs the dense, sparse, and semantic retrievers concurrently
// against qctx's rewritten query, then fuses their results.
func (h *HybridSearcher) Search(ctx context.Context, qctx model.QueryContext) (HybridResult, error) {
	filter := filterFor(qctx)

	var dense, sparse, semantic []model.SearchResult
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		results, err := h.denseSearch(gctx, qctx.RewrittenQuery, filter)
		if err != nil {
			h.logger.WithError(err).Warn("dense retriever failed, continuing with remaining retrievers")
			return nil
		}
		dense = results
		return nil
	})

	g.Go(func() error {
		results, err := h.sparse.Search(gctx, qctx.RewrittenQuery, hybridCandidateLimit)
		if err != nil {
			h.logger.WithError(err).Warn("sparse retriever failed, continuing with remaining retrievers")
			return nil
		}
		sparse = results
		return nil
	})

	g.Go(func() error {
		results, err := h.denseSearch(gctx, semanticExpand(qctx.RewrittenQuery), filter)
		if err != nil {
			h.logger.WithError(err).Warn("semantic retriever failed, continuing with remaining retrievers")
			return nil
		}
		// Relabel a copy: the searcher may hand the same slice to the
		// dense retriever, whose Source labels must survive.
		semantic = make([]model.SearchResult, len(results))
		for i, r := range results {
			r.Source = model.SourceSemantic
			semantic[i] = r
		}
		return nil
	})

	_ = g.Wait()

	fused := fuse(dense, sparse, semantic)
	confidence := hybridConfidence(fused)
	if len(fused) == 0 {
		confidence = 0
	}

	return HybridResult{Results: fused, Confidence: confidence}, nil
}

// Accept reports whether result's confidence clears the L2 threshold.
func (h *HybridSearcher) Accept(result HybridResult) bool {
	return result.Confidence >= h.cfg.AcceptThreshold
}

func (h *HybridSearcher) denseSearch(ctx context.Context, query string, filter vectorstore.SearchFilter) ([]model.SearchResult, error) {
	embeds, err := h.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(embeds) == 0 || embeds[0].Failed {
		return nil, nil
	}
	return h.vectors.Search(ctx, embeds[0].Vector, hybridCandidateLimit, filter)
}

// semanticExpand broadens the query for the semantic retriever by
// appending its synonym expansion, per §4.H's "same model with query
// expansion" option.
func semanticExpand(query string) string {
	expanded := expandSynonyms(query)
	if expanded == query {
		return query
	}
	return query + " " + expanded
}

// fuse unions the three candidate lists, deduping by document_id and
// keeping the maximum score, then sorts descending by score with a
// document_id tiebreak for determinism (§4.H, §5).
func fuse(lists ...[]model.SearchResult) []model.SearchResult {
	best := map[string]model.SearchResult{}
	methods := map[string]map[model.Source]struct{}{}

	for _, list := range lists {
		for _, r := range list {
			if existing, ok := best[r.DocumentID]; !ok || r.Score > existing.Score {
				best[r.DocumentID] = r
			}
			if methods[r.DocumentID] == nil {
				methods[r.DocumentID] = map[model.Source]struct{}{}
			}
			methods[r.DocumentID][r.Source] = struct{}{}
		}
	}

	fused := make([]model.SearchResult, 0, len(best))
	for id, r := range best {
		if r.Metadata == nil {
			r.Metadata = map[string]interface{}{}
		}
		var contributors []string
		for src := range methods[id] {
			contributors = append(contributors, string(src))
		}
		sort.Strings(contributors)
		r.Metadata["method"] = contributors
		fused = append(fused, r)
	}

	sortResultsDesc(fused)
	if len(fused) > hybridCandidateLimit {
		fused = fused[:hybridCandidateLimit]
	}
	return fused
}

// sortResultsDesc sorts by score descending, then document_id
// ascending, so identical inputs always produce identical output
// ordering (§5's ordering guarantee).
func sortResultsDesc(results []model.SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocumentID < results[j].DocumentID
	})
}

func hybridConfidence(results []model.SearchResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += r.Score
	}
	mean := sum / float64(len(results))
	countFactor := float64(len(results)) / 5.0
	if countFactor > 1 {
		countFactor = 1
	}
	return clip01(0.7*mean + 0.3*countFactor)
}

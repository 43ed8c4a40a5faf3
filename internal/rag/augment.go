package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/BDSE37/Podwise-sub002/internal/model"
)

// NeighborLookup fetches the single chunk at a given position within
// an episode; *vectorstore.Store satisfies it via FindByEpisodeIndex.
type NeighborLookup interface {
	FindByEpisodeIndex(ctx context.Context, episodeID int64, chunkIndex int) (*model.SearchResult, bool, error)
}

// AugmentConfig holds the L3 acceptance threshold.
type AugmentConfig struct {
	AcceptThreshold float64
}

// DefaultAugmentConfig returns the spec's 0.5 default.
func DefaultAugmentConfig() AugmentConfig {
	return AugmentConfig{AcceptThreshold: 0.5}
}

// Augmenter implements Level 3: retrieval augmentation by attaching
// neighboring chunks, category tags, and episode title to each
// candidate (§4.I). Augmentation never drops a candidate.
type Augmenter struct {
	neighbors NeighborLookup
	cfg       AugmentConfig
	logger    *logrus.Logger
}

// NewAugmenter builds an Augmenter.
func NewAugmenter(neighbors NeighborLookup, cfg AugmentConfig, logger *logrus.Logger) *Augmenter {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.AcceptThreshold == 0 {
		cfg.AcceptThreshold = DefaultAugmentConfig().AcceptThreshold
	}
	return &Augmenter{neighbors: neighbors, cfg: cfg, logger: logger}
}

// AugmentResult is L3's output.
type AugmentResult struct {
	Results    []model.SearchResult
	Confidence float64
}

// Augment attaches context to every candidate in results.
func (a *Augmenter) Augment(ctx context.Context, results []model.SearchResult) AugmentResult {
	if len(results) == 0 {
		return AugmentResult{}
	}

	augmented := make([]model.SearchResult, len(results))
	var succeeded int

	for i, r := range results {
		episodeID, chunkIndex, ok := episodeLocation(r)
		if !ok {
			augmented[i] = r
			continue
		}

		var parts []string
		if prev, found, err := a.neighbors.FindByEpisodeIndex(ctx, episodeID, chunkIndex-1); err == nil && found {
			parts = append(parts, prev.Content)
		}
		parts = append(parts, r.Content)
		if next, found, err := a.neighbors.FindByEpisodeIndex(ctx, episodeID, chunkIndex+1); err == nil && found {
			parts = append(parts, next.Content)
		}

		content := strings.Join(parts, " ... ")
		if title := stringMeta(r.Metadata, "episode_title"); title != "" {
			content = fmt.Sprintf("[%s] %s", title, content)
		}
		if category := stringMeta(r.Metadata, "category"); category != "" {
			content = fmt.Sprintf("%s (category: %s)", content, category)
		}

		out := r
		out.Content = content
		out.Score = minFloat(r.Score*1.1, 1.0)
		out.Source = model.SourceAugmented
		augmented[i] = out
		succeeded++
	}

	confidence := float64(succeeded) / float64(len(results))
	return AugmentResult{Results: augmented, Confidence: confidence}
}

// Accept reports whether result's confidence clears the L3 threshold.
func (a *Augmenter) Accept(result AugmentResult) bool {
	return result.Confidence >= a.cfg.AcceptThreshold
}

func episodeLocation(r model.SearchResult) (episodeID int64, chunkIndex int, ok bool) {
	episodeID, okA := int64Meta(r.Metadata, "episode_id")
	idx, okB := int64Meta(r.Metadata, "chunk_index")
	return episodeID, int(idx), okA && okB
}

func stringMeta(meta map[string]interface{}, key string) string {
	v, ok := meta[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func int64Meta(meta map[string]interface{}, key string) (int64, bool) {
	v, ok := meta[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

package rag

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BDSE37/Podwise-sub002/internal/model"
)

const (
	rerankWeightRelevance = 0.4
	rerankWeightFreshness = 0.2
	rerankWeightAuthority = 0.2
	rerankWeightDiversity = 0.1
	rerankWeightNovelty   = 0.1

	freshnessWindowDays = 365
	diversityPenalty    = 0.8
	diversityCapPerTag  = 3
	rerankSelectionSize = 5
)

// RerankConfig holds the L4 acceptance threshold.
type RerankConfig struct {
	AcceptThreshold float64
}

// DefaultRerankConfig returns the spec's 0.6 default.
func DefaultRerankConfig() RerankConfig {
	return RerankConfig{AcceptThreshold: 0.6}
}

// Reranker implements Level 4: a weighted-criteria score followed by a
// greedy diversity pass over the top candidates (§4.J).
type Reranker struct {
	cfg    RerankConfig
	logger *logrus.Logger
	now    func() time.Time
}

// NewReranker builds a Reranker.
func NewReranker(cfg RerankConfig, logger *logrus.Logger) *Reranker {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.AcceptThreshold == 0 {
		cfg.AcceptThreshold = DefaultRerankConfig().AcceptThreshold
	}
	return &Reranker{cfg: cfg, logger: logger, now: time.Now}
}

// RerankResult is L4's output.
type RerankResult struct {
	Results    []model.SearchResult
	Confidence float64
}

// Rerank reorders candidates per §4.J's weighted sum, then applies the
// diversity pass, keeping at most rerankSelectionSize results.
func (r *Reranker) Rerank(results []model.SearchResult) RerankResult {
	if len(results) == 0 {
		return RerankResult{}
	}

	tagCounts := primaryTagCounts(results)
	seenSoFar := map[string]int{}
	scored := make([]model.SearchResult, len(results))

	for i, cand := range results {
		tag := primaryTag(cand)
		diversity := 1.0
		if seenSoFar[tag] > 0 {
			diversity = diversityPenalty
		}
		seenSoFar[tag]++

		novelty := 1.0
		if n := tagCounts[tag]; n > 0 {
			novelty = 1.0 / float64(n)
		}

		final := rerankWeightRelevance*cand.Score +
			rerankWeightFreshness*freshness(stringMeta(cand.Metadata, "published_date"), r.now()) +
			rerankWeightAuthority*authority(cand.Metadata) +
			rerankWeightDiversity*diversity +
			rerankWeightNovelty*novelty

		out := cand
		out.Score = clip01(final)
		out.Source = model.SourceReranked
		scored[i] = out
	}

	sortResultsDesc(scored)
	selected := diversitySelect(scored)

	return RerankResult{Results: selected, Confidence: rerankConfidence(selected)}
}

// Accept reports whether result's confidence clears the L4 threshold.
func (r *Reranker) Accept(result RerankResult) bool {
	return result.Confidence >= r.cfg.AcceptThreshold
}

// diversitySelect greedily walks score-descending candidates, skipping
// any whose primary tag already appears among the selected
// diversityCapPerTag times, and stops once rerankSelectionSize are
// chosen (§4.J, I7).
func diversitySelect(scored []model.SearchResult) []model.SearchResult {
	counts := map[string]int{}
	var selected []model.SearchResult
	for _, cand := range scored {
		if len(selected) >= rerankSelectionSize {
			break
		}
		tag := primaryTag(cand)
		if counts[tag] >= diversityCapPerTag {
			continue
		}
		counts[tag]++
		selected = append(selected, cand)
	}
	return selected
}

func primaryTag(r model.SearchResult) string {
	tags := stringMeta(r.Metadata, "tags")
	if tags == "" {
		return ""
	}
	parts := strings.Split(tags, ",")
	return strings.TrimSpace(parts[0])
}

func primaryTagCounts(results []model.SearchResult) map[string]int {
	counts := map[string]int{}
	for _, r := range results {
		counts[primaryTag(r)]++
	}
	return counts
}

// freshness maps a published_date to [0,1], linear over a 365-day
// window: today scores 1, 365+ days old scores 0. Unparseable dates
// score a neutral 0.5 rather than penalizing missing metadata.
func freshness(publishedDate string, now time.Time) float64 {
	if publishedDate == "" {
		return 0.5
	}
	published, err := time.Parse("2006-01-02", publishedDate)
	if err != nil {
		return 0.5
	}
	daysOld := now.Sub(published).Hours() / 24
	if daysOld < 0 {
		daysOld = 0
	}
	return clip01(1 - daysOld/freshnessWindowDays)
}

// authority normalizes an Apple Podcasts rating (0-5 stars) to [0,1].
func authority(meta map[string]interface{}) float64 {
	rating, ok := int64Meta(meta, "apple_rating")
	if !ok || rating <= 0 {
		return 0
	}
	return clip01(float64(rating) / 5.0)
}

func rerankConfidence(results []model.SearchResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += r.Score
	}
	mean := sum / float64(len(results))

	var variance float64
	for _, r := range results {
		d := r.Score - mean
		variance += d * d
	}
	variance /= float64(len(results))

	return clip01(mean * (1 - variance))
}

// Package rag implements the hierarchical retrieval engine: the six
// cascade levels (L1-L6), the controller that runs them in sequence,
// and the offline evaluator.
package rag

import (
	"context"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/BDSE37/Podwise-sub002/internal/model"
)

// domainSynonyms expands a handful of common abbreviations and
// podcast-domain shorthand into fuller terms before retrieval. Kept
// small and explicit rather than a general thesaurus.
var domainSynonyms = map[string]string{
	"ai":    "人工智慧",
	"vc":    "創業投資",
	"roi":   "投資報酬率",
	"ipo":   "首次公開發行",
	"cfo":   "財務長",
	"ceo":   "執行長",
	"fintech": "金融科技",
}

// domainKeywords maps a domain to the terms that identify it. Checked
// in map order is non-deterministic in Go, so domainOrder fixes the
// precedence (business before education before technology) to keep
// classification deterministic.
var domainKeywords = map[model.Domain][]string{
	model.DomainBusiness:   {"投資", "創業", "股票", "財務", "市場", "商業", "理財", "股市"},
	model.DomainEducation:  {"學習", "教育", "課程", "考試", "學生", "老師"},
	model.DomainTechnology: {"科技", "軟體", "程式", "人工智慧", "演算法", "技術"},
}

var domainOrder = []model.Domain{model.DomainBusiness, model.DomainEducation, model.DomainTechnology}

var intentKeywords = map[model.Intent][]string{
	model.IntentRecommendation: {"推薦", "建議", "有什麼", "哪個好"},
	model.IntentAnalysis:       {"分析", "為什麼", "原因", "如何看待"},
	model.IntentSearch:         {"找", "搜尋", "查詢", "哪一集"},
}

var intentOrder = []model.Intent{model.IntentRecommendation, model.IntentAnalysis, model.IntentSearch}

// entityPattern approximates named-entity detection: runs of CJK or
// Latin capitalized tokens that look like proper nouns (show names,
// people, organizations), since no NER model is wired into this core.
var entityPattern = regexp.MustCompile(`[A-Z][a-zA-Z]{2,}|《[^》]+》|[\p{Han}]{2,}(?:公司|集團|基金會)`)

// RewriterConfig holds the L1 acceptance threshold.
type RewriterConfig struct {
	AcceptThreshold float64
}

// DefaultRewriterConfig returns the spec's 0.7 default.
func DefaultRewriterConfig() RewriterConfig {
	return RewriterConfig{AcceptThreshold: 0.7}
}

// Rewriter implements Level 1: query rewriting, intent/domain
// classification, and entity detection, each contributing to a
// weighted confidence score (§4.G).
type Rewriter struct {
	cfg    RewriterConfig
	logger *logrus.Logger
}

// NewRewriter builds a Rewriter.
func NewRewriter(cfg RewriterConfig, logger *logrus.Logger) *Rewriter {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.AcceptThreshold == 0 {
		cfg.AcceptThreshold = DefaultRewriterConfig().AcceptThreshold
	}
	return &Rewriter{cfg: cfg, logger: logger}
}

// Rewrite produces a QueryContext from the raw query. It never returns
// an error: a query that resolves to nothing distinctive still yields
// a QueryContext with confidence 0, per §4.G's "on failure" clause.
func (r *Rewriter) Rewrite(_ context.Context, query string) model.QueryContext {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return model.QueryContext{OriginalQuery: query, RewrittenQuery: query, Intent: model.IntentGeneral, Domain: model.DomainGeneral}
	}

	var confidence float64

	rewritten := expandSynonyms(trimmed)
	if rewritten != trimmed {
		confidence += 0.3
	}

	intent := classify(trimmed, intentOrder, intentKeywords, model.IntentGeneral)
	if intent != model.IntentGeneral {
		confidence += 0.2
	}

	entities := detectEntities(trimmed)
	confidence += min(float64(len(entities))*0.1, 0.2)

	domain := classify(trimmed, domainOrder, domainKeywords, model.DomainGeneral)
	if domain != model.DomainGeneral {
		confidence += 0.3
	}

	confidence = clip01(confidence)

	return model.QueryContext{
		OriginalQuery:  query,
		RewrittenQuery: rewritten,
		Intent:         intent,
		Entities:       entities,
		Domain:         domain,
		Confidence:     confidence,
	}
}

// Accept reports whether ctx's confidence clears the L1 threshold.
func (r *Rewriter) Accept(ctx model.QueryContext) bool {
	return ctx.Confidence >= r.cfg.AcceptThreshold
}

func expandSynonyms(query string) string {
	words := strings.Fields(query)
	changed := false
	for i, w := range words {
		if expansion, ok := domainSynonyms[strings.ToLower(w)]; ok {
			words[i] = expansion
			changed = true
		}
	}
	if !changed {
		return query
	}
	return strings.Join(words, " ")
}

func classify[T comparable](query string, order []T, table map[T][]string, zero T) T {
	for _, key := range order {
		for _, kw := range table[key] {
			if strings.Contains(query, kw) {
				return key
			}
		}
	}
	return zero
}

func detectEntities(query string) map[string]struct{} {
	matches := entityPattern.FindAllString(query, -1)
	entities := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		entities[m] = struct{}{}
	}
	return entities
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

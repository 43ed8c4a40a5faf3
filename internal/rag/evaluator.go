package rag

import (
	"regexp"
	"strings"

	"github.com/BDSE37/Podwise-sub002/internal/model"
)

var sourceTagPattern = regexp.MustCompile(`\[\d+\]`)

// EvaluationResult scores a RAGResponse against its originating query
// along the four offline axes §4.N specifies. It has no accept
// threshold of its own — unlike the six cascade levels, it is
// diagnostic, used by the comparison harness and by tests, not by the
// controller's accept/reject flow.
type EvaluationResult struct {
	Confidence float64
	Factuality float64
	Relevance  float64
	Coherence  float64
}

// Evaluator scores generated answers offline, independent of the
// cascade that produced them.
type Evaluator struct{}

// NewEvaluator builds an Evaluator. It holds no state.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate scores response against query and the candidates it was
// generated from.
func (e *Evaluator) Evaluate(query string, response model.RAGResponse, candidates []model.SearchResult) EvaluationResult {
	return EvaluationResult{
		Confidence: evaluateConfidence(response),
		Factuality: evaluateFactuality(response, candidates),
		Relevance:  evaluateRelevance(query, response),
		Coherence:  evaluateCoherence(response),
	}
}

// evaluateConfidence blends source count and answer length: more
// cited sources and a substantive (not truncated-feeling, not
// padded) answer both push confidence up.
func evaluateConfidence(response model.RAGResponse) float64 {
	sourceScore := clip01(float64(len(response.Sources)) / 3.0)
	words := len(strings.Fields(response.Content))
	lengthScore := clip01(float64(words) / 150.0)
	return clip01(0.5*sourceScore + 0.5*lengthScore)
}

// evaluateFactuality is the proportion of cited source tags ([1],
// [2], ...) that correspond to an actual source in response.Sources,
// i.e. the fraction of citations that are not fabricated.
func evaluateFactuality(response model.RAGResponse, candidates []model.SearchResult) float64 {
	tags := sourceTagPattern.FindAllString(response.Content, -1)
	if len(tags) == 0 {
		if len(candidates) == 0 {
			return 1.0
		}
		return 0
	}

	valid := 0
	for _, tag := range tags {
		n := len(tag) - 2 // strip brackets
		idx := 0
		for _, r := range tag[1 : 1+n] {
			idx = idx*10 + int(r-'0')
		}
		if idx >= 1 && idx <= len(response.Sources) {
			valid++
		}
	}
	return clip01(float64(valid) / float64(len(tags)))
}

// evaluateRelevance is the token-overlap ratio between the query and
// the answer: how many of the query's distinct terms reappear in the
// response.
func evaluateRelevance(query string, response model.RAGResponse) float64 {
	queryTerms := uniqueTerms(query)
	if len(queryTerms) == 0 {
		return 0
	}
	answerTerms := map[string]struct{}{}
	for _, t := range tokenizeCJK(strings.ToLower(response.Content)) {
		answerTerms[t] = struct{}{}
	}

	matched := 0
	for t := range queryTerms {
		if _, ok := answerTerms[t]; ok {
			matched++
		}
	}
	return clip01(float64(matched) / float64(len(queryTerms)))
}

// evaluateCoherence is 1 minus the normalized variance of sentence
// lengths: an answer whose sentences are all roughly the same length
// reads as more coherent than one alternating between fragments and
// run-ons.
func evaluateCoherence(response model.RAGResponse) float64 {
	sentences := strings.FieldsFunc(response.Content, func(r rune) bool {
		return r == '。' || r == '.' || r == '\n'
	})
	var lengths []float64
	for _, s := range sentences {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			lengths = append(lengths, float64(len([]rune(trimmed))))
		}
	}
	if len(lengths) < 2 {
		return 1.0
	}

	var sum float64
	for _, l := range lengths {
		sum += l
	}
	mean := sum / float64(len(lengths))
	if mean == 0 {
		return 1.0
	}

	var variance float64
	for _, l := range lengths {
		d := l - mean
		variance += d * d
	}
	variance /= float64(len(lengths))

	normalized := clip01(variance / (mean * mean))
	return clip01(1 - normalized)
}

func uniqueTerms(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, t := range tokenizeCJK(strings.ToLower(s)) {
		out[t] = struct{}{}
	}
	return out
}

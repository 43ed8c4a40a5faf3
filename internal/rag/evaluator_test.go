package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BDSE37/Podwise-sub002/internal/model"
)

func TestEvaluatorFactualityCountsValidCitations(t *testing.T) {
	e := NewEvaluator()
	response := model.RAGResponse{
		Content: "根據資料 [1][2] 可以看出趨勢 [3]",
		Sources: []string{"d1", "d2"},
	}
	result := e.Evaluate("趨勢", response, []model.SearchResult{{DocumentID: "d1"}, {DocumentID: "d2"}})
	// [1] and [2] reference real sources, [3] does not: 2/3.
	assert.InDelta(t, 2.0/3.0, result.Factuality, 0.001)
}

func TestEvaluatorFactualityNoCitationsNoCandidates(t *testing.T) {
	e := NewEvaluator()
	response := model.RAGResponse{Content: "沒有引用的回答"}
	result := e.Evaluate("問題", response, nil)
	assert.Equal(t, 1.0, result.Factuality)
}

func TestEvaluatorFactualityNoCitationsWithCandidates(t *testing.T) {
	e := NewEvaluator()
	response := model.RAGResponse{Content: "沒有引用的回答"}
	result := e.Evaluate("問題", response, []model.SearchResult{{DocumentID: "d1"}})
	assert.Equal(t, float64(0), result.Factuality)
}

func TestEvaluatorRelevanceMeasuresTokenOverlap(t *testing.T) {
	e := NewEvaluator()
	response := model.RAGResponse{Content: "投資 理財 的 基本觀念"}
	result := e.Evaluate("投資 理財 入門", response, nil)
	assert.Greater(t, result.Relevance, 0.0)
	assert.LessOrEqual(t, result.Relevance, 1.0)
}

func TestEvaluatorCoherencePenalizesHighVariance(t *testing.T) {
	e := NewEvaluator()
	uniform := model.RAGResponse{Content: "投資理財入門。股票市場分析。長期持有策略。"}
	skewed := model.RAGResponse{Content: "好。這是一段非常非常非常非常非常非常非常非常長的句子用來測試變異數。中。"}

	uniformResult := e.Evaluate("q", uniform, nil)
	skewedResult := e.Evaluate("q", skewed, nil)
	assert.Greater(t, uniformResult.Coherence, skewedResult.Coherence)
}

func TestEvaluatorConfidenceBlendsSourcesAndLength(t *testing.T) {
	e := NewEvaluator()
	short := model.RAGResponse{Content: "短答案", Sources: []string{"d1"}}
	long := model.RAGResponse{Sources: []string{"d1", "d2", "d3"}}
	for i := 0; i < 150; i++ {
		long.Content += "字 "
	}

	shortResult := e.Evaluate("q", short, nil)
	longResult := e.Evaluate("q", long, nil)
	assert.Greater(t, longResult.Confidence, shortResult.Confidence)
}

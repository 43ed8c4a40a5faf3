package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BDSE37/Podwise-sub002/internal/embedding"
	"github.com/BDSE37/Podwise-sub002/internal/model"
	"github.com/BDSE37/Podwise-sub002/internal/vectorstore"
)

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }

type fakeVectorSearcher struct {
	results []model.SearchResult
	err     error
}

func (f *fakeVectorSearcher) Search(_ context.Context, _ []float32, _ int, _ vectorstore.SearchFilter) ([]model.SearchResult, error) {
	return f.results, f.err
}

type fakeEmbedder struct {
	result embedding.Result
	err    error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([]embedding.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]embedding.Result, len(texts))
	for i := range texts {
		out[i] = f.result
	}
	return out, nil
}

type fakeSparseSearcher struct {
	results []model.SearchResult
	err     error
}

func (f *fakeSparseSearcher) Search(_ context.Context, _ string, _ int) ([]model.SearchResult, error) {
	return f.results, f.err
}

func TestHybridSearcherFusesAllThreeRetrievers(t *testing.T) {
	vectors := &fakeVectorSearcher{results: []model.SearchResult{
		{DocumentID: "d1", Score: 0.9, Source: model.SourceDense},
		{DocumentID: "d2", Score: 0.5, Source: model.SourceDense},
	}}
	sparse := &fakeSparseSearcher{results: []model.SearchResult{
		{DocumentID: "d2", Score: 0.8, Source: model.SourceSparse},
		{DocumentID: "d3", Score: 0.4, Source: model.SourceSparse},
	}}
	embedder := &fakeEmbedder{result: embedding.Result{Vector: []float32{0.1, 0.2}}}

	h := NewHybridSearcher(vectors, embedder, sparse, DefaultHybridConfig(), nil)
	result, err := h.Search(context.Background(), model.QueryContext{RewrittenQuery: "投資"})
	require.NoError(t, err)

	require.Len(t, result.Results, 3)
	// d2 keeps the max of its contributing scores (0.8 from sparse); the
	// fake vector searcher answers both the dense and the semantic
	// retriever, so all three retrievers contributed d2.
	var d2 *model.SearchResult
	for i := range result.Results {
		if result.Results[i].DocumentID == "d2" {
			d2 = &result.Results[i]
		}
	}
	require.NotNil(t, d2)
	assert.Equal(t, 0.8, d2.Score)
	methods, ok := d2.Metadata["method"].([]string)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"dense", "semantic", "sparse"}, methods)
}

func TestHybridSearcherGracefullyDegradesOnPartialFailure(t *testing.T) {
	vectors := &fakeVectorSearcher{err: assertErr{"vector store down"}}
	sparse := &fakeSparseSearcher{results: []model.SearchResult{
		{DocumentID: "d1", Score: 0.6, Source: model.SourceSparse},
	}}
	embedder := &fakeEmbedder{result: embedding.Result{Vector: []float32{0.1}}}

	h := NewHybridSearcher(vectors, embedder, sparse, DefaultHybridConfig(), nil)
	result, err := h.Search(context.Background(), model.QueryContext{RewrittenQuery: "投資"})
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "d1", result.Results[0].DocumentID)
}

func TestHybridSearcherEmptyResultHasZeroConfidence(t *testing.T) {
	vectors := &fakeVectorSearcher{}
	sparse := &fakeSparseSearcher{}
	embedder := &fakeEmbedder{result: embedding.Result{Failed: true}}

	h := NewHybridSearcher(vectors, embedder, sparse, DefaultHybridConfig(), nil)
	result, err := h.Search(context.Background(), model.QueryContext{RewrittenQuery: "投資"})
	require.NoError(t, err)
	assert.Empty(t, result.Results)
	assert.Equal(t, float64(0), result.Confidence)
	assert.False(t, h.Accept(result))
}

func TestFilterForMapsDomainToCategory(t *testing.T) {
	assert.Equal(t, "business", filterFor(model.QueryContext{Domain: model.DomainBusiness}).Category)
	assert.Equal(t, "education", filterFor(model.QueryContext{Domain: model.DomainEducation}).Category)
	assert.Equal(t, "", filterFor(model.QueryContext{Domain: model.DomainGeneral}).Category)
}

func TestSortResultsDescTiebreaksOnDocumentID(t *testing.T) {
	results := []model.SearchResult{
		{DocumentID: "z", Score: 0.5},
		{DocumentID: "a", Score: 0.5},
		{DocumentID: "m", Score: 0.9},
	}
	sortResultsDesc(results)
	assert.Equal(t, []string{"m", "a", "z"}, []string{results[0].DocumentID, results[1].DocumentID, results[2].DocumentID})
}

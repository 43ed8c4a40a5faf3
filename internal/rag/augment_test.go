package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BDSE37/Podwise-sub002/internal/model"
)

type fakeNeighborLookup struct {
	byKey map[string]model.SearchResult
}

func neighborKey(episodeID int64, chunkIndex int) string {
	return string(rune(episodeID)) + "#" + string(rune(chunkIndex))
}

func (f *fakeNeighborLookup) FindByEpisodeIndex(_ context.Context, episodeID int64, chunkIndex int) (*model.SearchResult, bool, error) {
	r, ok := f.byKey[neighborKey(episodeID, chunkIndex)]
	if !ok {
		return nil, false, nil
	}
	return &r, true, nil
}

func TestAugmenterAttachesNeighborsAndMetadata(t *testing.T) {
	lookup := &fakeNeighborLookup{byKey: map[string]model.SearchResult{
		neighborKey(1, 1): {Content: "previous chunk"},
		neighborKey(1, 3): {Content: "next chunk"},
	}}
	a := NewAugmenter(lookup, DefaultAugmentConfig(), nil)

	results := []model.SearchResult{
		{
			DocumentID: "d1",
			Content:    "middle chunk",
			Score:      0.5,
			Metadata: map[string]interface{}{
				"episode_id":    int64(1),
				"chunk_index":   2,
				"episode_title": "集數標題",
				"category":      "business",
			},
		},
	}

	result := a.Augment(context.Background(), results)
	require.Len(t, result.Results, 1)
	out := result.Results[0]
	assert.Contains(t, out.Content, "previous chunk")
	assert.Contains(t, out.Content, "middle chunk")
	assert.Contains(t, out.Content, "next chunk")
	assert.Contains(t, out.Content, "集數標題")
	assert.Contains(t, out.Content, "category: business")
	assert.Equal(t, model.SourceAugmented, out.Source)
	assert.InDelta(t, 0.55, out.Score, 0.001)
	assert.Equal(t, float64(1), result.Confidence)
	assert.True(t, a.Accept(result))
}

func TestAugmenterPassesThroughCandidatesWithoutLocation(t *testing.T) {
	lookup := &fakeNeighborLookup{byKey: map[string]model.SearchResult{}}
	a := NewAugmenter(lookup, DefaultAugmentConfig(), nil)

	results := []model.SearchResult{{DocumentID: "d1", Content: "no location metadata"}}
	result := a.Augment(context.Background(), results)

	require.Len(t, result.Results, 1)
	assert.Equal(t, "no location metadata", result.Results[0].Content)
	assert.Equal(t, float64(0), result.Confidence)
	assert.False(t, a.Accept(result))
}

func TestAugmenterNeverDropsCandidates(t *testing.T) {
	lookup := &fakeNeighborLookup{byKey: map[string]model.SearchResult{}}
	a := NewAugmenter(lookup, DefaultAugmentConfig(), nil)

	results := []model.SearchResult{
		{DocumentID: "d1"},
		{DocumentID: "d2", Metadata: map[string]interface{}{"episode_id": int64(5), "chunk_index": 0}},
	}
	result := a.Augment(context.Background(), results)
	assert.Len(t, result.Results, len(results))
}

func TestScoreCapAtOne(t *testing.T) {
	assert.Equal(t, 1.0, minFloat(1.5, 1.0))
	assert.Equal(t, 0.9, minFloat(0.9, 1.0))
}

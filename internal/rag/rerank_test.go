package rag

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BDSE37/Podwise-sub002/internal/model"
)

func fixedNow(t *testing.T, value string) func() time.Time {
	parsed, err := time.Parse("2006-01-02", value)
	require.NoError(t, err)
	return func() time.Time { return parsed }
}

func TestRerankerWeighsFreshnessAuthorityDiversityAndNovelty(t *testing.T) {
	r := NewReranker(DefaultRerankConfig(), nil)
	r.now = fixedNow(t, "2026-01-01")

	results := []model.SearchResult{
		{DocumentID: "a", Score: 0.8, Metadata: map[string]interface{}{"tags": "投資", "published_date": "2025-12-01", "apple_rating": int64(5)}},
		{DocumentID: "b", Score: 0.8, Metadata: map[string]interface{}{"tags": "投資", "published_date": "2020-01-01", "apple_rating": int64(1)}},
		{DocumentID: "c", Score: 0.8, Metadata: map[string]interface{}{"tags": "教育", "published_date": "2025-12-01", "apple_rating": int64(5)}},
	}

	result := r.Rerank(results)
	require.NotEmpty(t, result.Results)
	// a is fresher and more authoritative than b with the same primary
	// tag and input score, so it must rank above b.
	aIndex, bIndex := -1, -1
	for i, res := range result.Results {
		switch res.DocumentID {
		case "a":
			aIndex = i
		case "b":
			bIndex = i
		}
	}
	require.NotEqual(t, -1, aIndex)
	require.NotEqual(t, -1, bIndex)
	assert.Less(t, aIndex, bIndex)
}

func TestDiversitySelectCapsPerTagAndSize(t *testing.T) {
	var scored []model.SearchResult
	for i := 0; i < 6; i++ {
		scored = append(scored, model.SearchResult{
			DocumentID: string(rune('a' + i)),
			Score:      1.0 - float64(i)*0.01,
			Metadata:   map[string]interface{}{"tags": "投資"},
		})
	}
	selected := diversitySelect(scored)
	assert.LessOrEqual(t, len(selected), diversityCapPerTag)
}

func TestDiversitySelectStopsAtSelectionSize(t *testing.T) {
	var scored []model.SearchResult
	tags := []string{"a", "b", "c", "d", "e", "f"}
	for i, tag := range tags {
		scored = append(scored, model.SearchResult{
			DocumentID: tag,
			Score:      1.0 - float64(i)*0.01,
			Metadata:   map[string]interface{}{"tags": tag},
		})
	}
	selected := diversitySelect(scored)
	assert.Len(t, selected, rerankSelectionSize)
}

func TestFreshnessHandlesMissingAndUnparseableDates(t *testing.T) {
	now := fixedNow(t, "2026-01-01")()
	assert.Equal(t, 0.5, freshness("", now))
	assert.Equal(t, 0.5, freshness("not-a-date", now))
	assert.InDelta(t, 1.0, freshness("2026-01-01", now), 0.01)
}

func TestAuthorityNormalizesRating(t *testing.T) {
	assert.Equal(t, float64(0), authority(nil))
	assert.Equal(t, float64(0), authority(map[string]interface{}{"apple_rating": int64(0)}))
	assert.InDelta(t, 1.0, authority(map[string]interface{}{"apple_rating": int64(5)}), 0.01)
}

func TestPrimaryTagSplitsOnComma(t *testing.T) {
	r := model.SearchResult{Metadata: map[string]interface{}{"tags": "投資, 創業"}}
	assert.Equal(t, "投資", primaryTag(r))
	assert.Equal(t, "", primaryTag(model.SearchResult{}))
}

package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BDSE37/Podwise-sub002/internal/model"
)

func TestPointIDIsDeterministic(t *testing.T) {
	a := pointID("chunk-123")
	b := pointID("chunk-123")
	assert.Equal(t, a.GetUuid(), b.GetUuid())
}

func TestPointIDDiffersByChunkID(t *testing.T) {
	a := pointID("chunk-123")
	b := pointID("chunk-456")
	assert.NotEqual(t, a.GetUuid(), b.GetUuid())
}

func TestToPointCarriesPayloadFields(t *testing.T) {
	chunk := model.Chunk{
		ChunkID:      "chunk-1",
		ChunkIndex:   2,
		ChunkText:    "一些文字",
		Embedding:    make([]float32, model.EmbeddingDim),
		EpisodeID:    101,
		PodcastID:    7,
		PodcastName:  "商業洞察",
		Category:     "商業",
		Tags:         []string{"商業", "投資理財"},
		Language:     "zh",
		AppleRating:  4,
		EmbeddingBad: false,
	}

	point := toPoint(&chunk)
	assert.Equal(t, "chunk-1", point.Payload["chunk_id"].GetStringValue())
	assert.Equal(t, int64(101), point.Payload["episode_id"].GetIntegerValue())
	assert.Equal(t, "商業,投資理財", point.Payload["tags"].GetStringValue())
	assert.Len(t, point.Vectors.GetVector().GetData(), model.EmbeddingDim)
}

func TestSearchFilterBuildsCategoryAndPodcastConditions(t *testing.T) {
	podcastID := int64(7)
	f := SearchFilter{Category: "商業", PodcastID: &podcastID}
	built := f.build()
	assert.NotNil(t, built)
	assert.Len(t, built.Must, 2)
}

func TestSearchFilterEmptyReturnsNilFilter(t *testing.T) {
	f := SearchFilter{}
	assert.Nil(t, f.build())
}

func TestPayloadToMapDecodesKnownKinds(t *testing.T) {
	chunk := model.Chunk{ChunkID: "c1", Embedding: make([]float32, model.EmbeddingDim), AppleRating: 5, EmbeddingBad: true}
	point := toPoint(&chunk)
	m := payloadToMap(point.Payload)
	assert.Equal(t, "c1", m["chunk_id"])
	assert.Equal(t, int64(5), m["apple_rating"])
	assert.Equal(t, true, m["embedding_bad"])
}

func TestChunkFromPayloadRoundTripsToPointOutput(t *testing.T) {
	original := model.Chunk{
		ChunkID:       "chunk-9",
		ChunkIndex:    3,
		ChunkText:     "投資的第一課",
		EpisodeID:     42,
		PodcastID:     7,
		PodcastName:   "商業洞察",
		EpisodeTitle:  "第一集",
		Author:        "作者",
		Category:      "商業",
		Duration:      "30:00",
		PublishedDate: "2025-01-01",
		AppleRating:   4,
		Language:      "zh",
		CreatedAt:     "2025-01-02",
		SourceModel:   "text-embedding-3",
		Tags:          []string{"商業", "投資理財"},
		Embedding:     make([]float32, model.EmbeddingDim),
	}

	point := toPoint(&original)
	rebuilt := chunkFromPayload(point.Payload)

	assert.Equal(t, original.ChunkID, rebuilt.ChunkID)
	assert.Equal(t, original.ChunkIndex, rebuilt.ChunkIndex)
	assert.Equal(t, original.ChunkText, rebuilt.ChunkText)
	assert.Equal(t, original.EpisodeID, rebuilt.EpisodeID)
	assert.Equal(t, original.PodcastID, rebuilt.PodcastID)
	assert.Equal(t, original.AppleRating, rebuilt.AppleRating)
	assert.ElementsMatch(t, original.Tags, rebuilt.Tags)
}

func TestChunkFromPayloadHandlesEmptyTags(t *testing.T) {
	chunk := model.Chunk{ChunkID: "c1", Embedding: make([]float32, model.EmbeddingDim)}
	point := toPoint(&chunk)
	rebuilt := chunkFromPayload(point.Payload)
	assert.Empty(t, rebuilt.Tags)
}

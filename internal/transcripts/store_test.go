package transcripts

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionNameFormatsRSSPrefix(t *testing.T) {
	assert.Equal(t, "RSS_7", CollectionName(7))
	assert.Equal(t, "RSS_0", CollectionName(0))
}

func TestDocumentRoundTripsThroughJSON(t *testing.T) {
	doc := Document{
		File: "doc1.json",
		Chunks: []RawChunk{
			{ChunkText: "第一段", ChunkIndex: 0, EnhancedTags: []string{"投資理財"}},
		},
		EpisodeTitle:  "EP123 台灣半導體產業展望",
		EpisodeNumber: "123",
	}

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var decoded Document
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, doc, decoded)
}

func TestDocumentOmitsEmptyRawTranscriptFields(t *testing.T) {
	doc := Document{File: "doc1.json", Chunks: []RawChunk{{ChunkText: "x"}}}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "raw_transcript")
	assert.NotContains(t, string(data), "episode_title")
}

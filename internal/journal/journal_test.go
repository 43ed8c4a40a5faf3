package journal

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsEmptyProgress(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(filepath.Join(dir, "progress.json"))
	require.NoError(t, err)
	assert.Empty(t, s.Snapshot().CompletedCollections)
}

func TestRecordFileIsResumableAcrossReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "progress.json")

	s, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, s.RecordFile("RSS_1/doc1.json", 3))
	require.NoError(t, s.RecordFile("RSS_1/doc2.json", 2))

	reloaded, err := Load(path)
	require.NoError(t, err)
	snap := reloaded.Snapshot()
	assert.ElementsMatch(t, []string{"RSS_1/doc1.json", "RSS_1/doc2.json"}, snap.ProcessedFiles)
	assert.Equal(t, 5, snap.TotalChunks)
	assert.True(t, reloaded.IsFileDone("RSS_1/doc1.json"))
	assert.False(t, reloaded.IsFileDone("RSS_1/doc3.json"))
}

func TestRecordCollectionDoneTracksCompletion(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(filepath.Join(dir, "progress.json"))
	require.NoError(t, err)

	require.NoError(t, s.RecordCollectionDone("RSS_1"))
	assert.True(t, s.IsCollectionDone("RSS_1"))
	assert.False(t, s.IsCollectionDone("RSS_2"))
	assert.Equal(t, 1, s.Snapshot().CurrentCycle)
}

func TestProgressFileIsValidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "progress.json")
	s, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, s.RecordFile("doc.json", 1))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var p Progress
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, 1, p.TotalChunks)
}

func TestErrorJournalAppendsJSONAndCSV(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "errors.json")
	csvPath := filepath.Join(dir, "errors.csv")
	j := NewErrorJournal(jsonPath, csvPath)

	require.NoError(t, j.Append(context.Background(), ErrorRecord{
		CollectionID: "RSS_1", RSSID: "1", Title: "ep1", ErrorType: "DataError", Stage: "tag", Message: "boom",
	}))
	require.NoError(t, j.Append(context.Background(), ErrorRecord{
		CollectionID: "RSS_1", RSSID: "2", Title: "ep2", ErrorType: "TimeoutError", Stage: "embed", Message: "timeout",
	}))

	jsonData, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var records []ErrorRecord
	require.NoError(t, json.Unmarshal(jsonData, &records))
	assert.Len(t, records, 2)

	csvData, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Contains(t, string(csvData), "collection_id")
	assert.Contains(t, string(csvData), "boom")
	assert.Contains(t, string(csvData), "timeout")
}

func TestWriteStatsCreatesPerCycleFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteStats(dir, Stats{
		Cycle: 2, DocumentsAttempted: 5, DocumentsWritten: 4, ChunksWritten: 12,
		PerCollection: map[string]int{"RSS_1": 4},
	}))

	data, err := os.ReadFile(filepath.Join(dir, "cycle_2.json"))
	require.NoError(t, err)
	var s Stats
	require.NoError(t, json.Unmarshal(data, &s))
	assert.Equal(t, 4, s.DocumentsWritten)
}

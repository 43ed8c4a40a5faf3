package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPassesValidation(t *testing.T) {
	cfg := Default()
	cfg.Tagging.TagFilePath = "tags.csv"
	assert.NoError(t, cfg.validate())
}

func TestLoadOverlaysYAMLOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
chunk_size: 2048
tagging:
  tag_file_path: tags.csv
qdrant:
  host: qdrant.internal
embedding:
  provider: bge-m3
  endpoint: http://embedder:9000
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2048, cfg.ChunkSize)
	assert.Equal(t, "qdrant.internal", cfg.Qdrant.Host)
	assert.Equal(t, "bge-m3", cfg.Embedding.Provider)
	// Untouched defaults survive the overlay.
	assert.Equal(t, 4, cfg.ConcurrentWorkers)
	assert.Equal(t, 1024, cfg.Embedding.Dimension)
}

func TestLoadExpandsEnvVarsAfterOverlay(t *testing.T) {
	t.Setenv("PODWISE_QDRANT_HOST", "qdrant.prod")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tagging:
  tag_file_path: tags.csv
qdrant:
  host: ${PODWISE_QDRANT_HOST}
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "qdrant.prod", cfg.Qdrant.Host)
}

func TestLoadRejectsMissingTagFilePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunk_size: 512\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	require.Error(t, err)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 384, cfg.Vector.Dimensions)
	assert.Equal(t, 0.25, cfg.Vector.FallbackFloor)
	assert.Equal(t, 0.0, cfg.Vector.NativeFloor)
	assert.True(t, cfg.Vector.ValidateDocID)
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Vector, cfg.Vector)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
archive:
  root: /archives/2024
  database_path: /archives/2024/archive.db
vector:
  dimensions: 384
  fallback_floor: 0.4
  native_floor: 0.4
embedding:
  provider: genai
  genai_api_key: test-key
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/archives/2024", cfg.Archive.Root)
	assert.Equal(t, 0.4, cfg.Vector.FallbackFloor)
	assert.Equal(t, 0.4, cfg.Vector.NativeFloor)
	assert.Equal(t, "genai", cfg.Embedding.Provider)
	// Untouched fields keep defaults.
	assert.Equal(t, "all-minilm", cfg.Embedding.OllamaModel)
}

func TestLoadLoggingSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
logging:
  level: debug
  debug_mode: true
  categories:
    store: true
    vector: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.DebugMode)
	assert.Equal(t, map[string]bool{"store": true, "vector": false}, cfg.Logging.Categories)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vector:\n  dimensions: -1\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DIPREADER_DB", "/tmp/override.db")
	t.Setenv("DIPREADER_ROOT", "/tmp/archive")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/override.db", cfg.Archive.DatabasePath)
	assert.Equal(t, "/tmp/archive", cfg.Archive.Root)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Archive.Root = "/somewhere"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/somewhere", loaded.Archive.Root)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	content := `
storage:
  type: local
`
	err := os.WriteFile(configFile, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := Load(configFile)
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "tcp", cfg.Transport.Backend)
	assert.Equal(t, 300, cfg.Transport.TimeoutSecs)
	assert.Equal(t, 1, cfg.Transport.WorldSize)
	assert.Equal(t, 100_000_000, cfg.Shuffle.EdgeChunkRows)
	assert.Equal(t, 200, cfg.Shuffle.FeatureMsgCapMB)
}

func TestLoad_CustomValues(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	content := `
transport:
  rank: 2
  world_size: 4
  master_addr: 10.0.0.1
  master_port: 29500
shuffle:
  num_parts: 8
  edge_chunk_rows: 5000000
storage:
  type: local
  local_path: /tmp/storage
`
	err := os.WriteFile(configFile, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Transport.Rank)
	assert.Equal(t, 4, cfg.Transport.WorldSize)
	assert.Equal(t, "10.0.0.1", cfg.Transport.MasterAddr)
	assert.Equal(t, 29500, cfg.Transport.MasterPort)
	assert.Equal(t, 8, cfg.Shuffle.NumParts)
	assert.Equal(t, 5000000, cfg.Shuffle.EdgeChunkRows)
}

func TestLoad_BadTopology(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	content := `
transport:
  world_size: 3
shuffle:
  num_parts: 4
storage:
  type: local
`
	err := os.WriteFile(configFile, []byte(content), 0644)
	require.NoError(t, err)

	_, err = Load(configFile)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "multiple of world_size")
}

func TestLoad_COSWithCredentials(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	content := `
storage:
  type: cos
  bucket: test-bucket
  region: ap-guangzhou
  secret_id: test-id
  secret_key: test-key
`
	err := os.WriteFile(configFile, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := Load(configFile)
	require.NoError(t, err)
	assert.Equal(t, "cos", cfg.Storage.Type)
	assert.Equal(t, "test-bucket", cfg.Storage.Bucket)
}

func TestValidate_RankOutOfRange(t *testing.T) {
	cfg := &Config{
		Transport: TransportConfig{Rank: 4, WorldSize: 4},
		Storage:   StorageConfig{Type: "local"},
	}

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestValidate_PartsLessThanWorldSize(t *testing.T) {
	cfg := &Config{
		Transport: TransportConfig{Rank: 0, WorldSize: 4},
		Shuffle:   ShuffleConfig{NumParts: 2},
		Storage:   StorageConfig{Type: "local"},
	}

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "num_parts")
}

func TestValidate_UnsupportedStorageType(t *testing.T) {
	cfg := &Config{
		Transport: TransportConfig{Rank: 0, WorldSize: 1},
		Storage:   StorageConfig{Type: "s3"},
	}

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage type")
}

func TestLoad_FileNotFound(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}

func TestLoadFromReader(t *testing.T) {
	content := []byte(`
transport:
  world_size: 2
storage:
  type: local
`)
	cfg, err := LoadFromReader("yaml", content)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Transport.WorldSize)
	assert.Equal(t, "local", cfg.Storage.Type)
}

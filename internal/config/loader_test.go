package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProjectOverride_MissingFileReturnsZeroValue(t *testing.T) {
	dir := t.TempDir()
	override, err := LoadProjectOverride(dir)
	require.NoError(t, err)
	assert.Zero(t, override.ChunkSize)
}

func TestLoadProjectOverride_ParsesTOML(t *testing.T) {
	dir := t.TempDir()
	content := "chunk_size = 512\nchunk_overlap = 50\nconsolidation_threshold = 0.9\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".atlas.toml"), []byte(content), 0600))

	override, err := LoadProjectOverride(dir)
	require.NoError(t, err)
	assert.Equal(t, 512, override.ChunkSize)
	assert.Equal(t, 50, override.ChunkOverlap)
	assert.Equal(t, 0.9, override.ConsolidationThreshold)
}

func TestApplyProjectOverride_FallsBackToConfigDefaults(t *testing.T) {
	cfg := NewDefaultConfig()
	size, overlap, threshold := ApplyProjectOverride(cfg, ProjectOverride{})
	assert.Equal(t, cfg.Chunk.Size, size)
	assert.Equal(t, cfg.Chunk.Overlap, overlap)
	assert.Equal(t, cfg.Consolidation.SimilarityThreshold, threshold)
}

func TestApplyProjectOverride_OverridesNonZeroFields(t *testing.T) {
	cfg := NewDefaultConfig()
	size, overlap, threshold := ApplyProjectOverride(cfg, ProjectOverride{ChunkSize: 256})
	assert.Equal(t, 256, size)
	assert.Equal(t, cfg.Chunk.Overlap, overlap)
	assert.Equal(t, cfg.Consolidation.SimilarityThreshold, threshold)
}

func TestValidateConfigPath_RejectsOutsideAllowedDirs(t *testing.T) {
	err := validateConfigPath("/tmp/not-allowed/config.yaml")
	assert.Error(t, err)
}

// Package config provides configuration loading for atlasd.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables, then applies defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (STORAGE_HOST, CHUNK_SIZE, etc.)
//  2. YAML config file (~/.config/atlas/config.yaml)
//  3. Hardcoded defaults
//
// # Security considerations
//
// The configuration file must have 0600 or 0400 permissions and live under
// one of the allowed directories (~/.config/atlas/ or /etc/atlas/); files
// larger than 1MB are rejected.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "atlas", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Override with environment variables. STORAGE_HOST -> storage.host,
	// CONSOLIDATION_SIMILARITY_THRESHOLD -> consolidation.similarity_threshold.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		lower := strings.ToLower(s)
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := NewDefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// EnsureConfigDir creates the atlas config directory if it doesn't exist,
// with 0700 permissions (owner read/write/execute only).
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	configDir := filepath.Join(home, ".config", "atlas")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}
	return nil
}

// validateConfigPath checks if path is in an allowed directory, even if the
// file does not exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	allowedDirs := []string{
		filepath.Join(home, ".config", "atlas"),
		"/etc/atlas",
	}
	for _, dir := range allowedDirs {
		if strings.HasPrefix(resolvedPath, dir) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/atlas/ or /etc/atlas/")
}

// validateConfigFileProperties checks file permissions and size. Takes
// FileInfo from an already-opened file descriptor to avoid a TOCTOU race.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// ProjectOverride is the shape of a per-directory .atlas.toml override file,
// read at ingestion time so individual ingestion roots can tune chunking and
// consolidation without touching the daemon's global configuration.
type ProjectOverride struct {
	ChunkSize                  int     `toml:"chunk_size"`
	ChunkOverlap               int     `toml:"chunk_overlap"`
	ConsolidationThreshold     float64 `toml:"consolidation_threshold"`
}

// LoadProjectOverride reads a .atlas.toml file from dir, if present. It
// returns a zero-value ProjectOverride (not an error) when no override file
// exists, since overrides are optional per ingestion root.
func LoadProjectOverride(dir string) (ProjectOverride, error) {
	var override ProjectOverride
	path := filepath.Join(dir, ".atlas.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return override, nil
	}
	if _, err := toml.DecodeFile(path, &override); err != nil {
		return override, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return override, nil
}

// ApplyProjectOverride merges non-zero override fields onto a copy of cfg's
// chunk/consolidation settings, returning the effective values to use for
// this ingestion root.
func ApplyProjectOverride(cfg *Config, override ProjectOverride) (chunkSize, chunkOverlap int, consolidationThreshold float64) {
	chunkSize, chunkOverlap = cfg.Chunk.Size, cfg.Chunk.Overlap
	consolidationThreshold = cfg.Consolidation.SimilarityThreshold

	if override.ChunkSize > 0 {
		chunkSize = override.ChunkSize
	}
	if override.ChunkOverlap > 0 {
		chunkOverlap = override.ChunkOverlap
	}
	if override.ConsolidationThreshold > 0 {
		consolidationThreshold = override.ConsolidationThreshold
	}
	return chunkSize, chunkOverlap, consolidationThreshold
}

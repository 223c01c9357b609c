// Package config provides configuration loading for atlasd.
//
// Configuration is loaded from a YAML file, then overridden by environment
// variables, then defaulted. All parameters are grouped by the pipeline
// stage that consumes them: chunking, HNSW/quantization, search, and
// consolidation.
package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"regexp"
	"strings"
)

// Config holds the complete atlasd configuration.
type Config struct {
	Storage       StorageConfig       `koanf:"storage"`
	Embedding     EmbeddingConfig     `koanf:"embedding"`
	LLM           LLMConfig           `koanf:"llm"`
	Chunk         ChunkConfig         `koanf:"chunk"`
	HNSW          HNSWConfig          `koanf:"hnsw"`
	Quantization  QuantizationConfig  `koanf:"quantization"`
	Search        SearchConfig        `koanf:"search"`
	Consolidation ConsolidationConfig `koanf:"consolidation"`
	Server        ServerConfig        `koanf:"server"`
	Logging       LoggingConfig       `koanf:"logging"`
}

// StorageConfig selects and configures the vector storage backend.
type StorageConfig struct {
	Backend           string `koanf:"backend"` // only "qdrant" is built in
	Host              string `koanf:"host"`
	Port              int    `koanf:"port"`
	APIKey            Secret `koanf:"api_key"`
	UseTLS            bool   `koanf:"use_tls"`
	PrimaryCollection string `koanf:"primary_collection"`
}

// EmbeddingConfig configures the embedding backend client.
type EmbeddingConfig struct {
	Backend         string  `koanf:"backend"` // "http" is the built-in default
	BaseURL         string  `koanf:"base_url"`
	APIKey          Secret  `koanf:"api_key"`
	Model           string  `koanf:"model"`
	Dimensions      int     `koanf:"dimensions"`
	RateLimitRPS    float64 `koanf:"rate_limit_rps"`
	RateLimitBurst  int     `koanf:"rate_limit_burst"`
	ContextAware    bool    `koanf:"context_aware"`
	CodeAware       bool    `koanf:"code_aware"`
}

// LLMConfig configures the backend used for QNTM key generation and
// consolidation classification (the spec's json_llm capability).
type LLMConfig struct {
	Backend        string  `koanf:"backend"` // only "anthropic" is built in
	BaseURL        string  `koanf:"base_url"`
	APIKey         Secret  `koanf:"api_key"`
	Model          string  `koanf:"model"`
	RateLimitRPS   float64 `koanf:"rate_limit_rps"`
	RateLimitBurst int     `koanf:"rate_limit_burst"`
	MaxRetries     int     `koanf:"max_retries"`
}

// ChunkConfig controls the hierarchical chunker.
type ChunkConfig struct {
	Size       int      `koanf:"size"`    // target chunk size in tokens
	Overlap    int      `koanf:"overlap"` // token overlap between windows
	Separators []string `koanf:"separators"`
}

// HNSWConfig controls the storage backend's HNSW index parameters and the
// batch-mode toggle used during bulk ingestion.
type HNSWConfig struct {
	MDefault    int `koanf:"m_default"`
	MDisabled   int `koanf:"m_disabled"`
	EfConstruct int `koanf:"ef_construct"`
}

// QuantizationConfig controls optional scalar quantization on the primary
// and per-QNTM-key collections.
type QuantizationConfig struct {
	Enabled   bool    `koanf:"enabled"`
	Type      string  `koanf:"type"` // "int8"
	Quantile  float64 `koanf:"quantile"`
	AlwaysRAM bool    `koanf:"always_ram"`
}

// SearchConfig controls the default search-layer behavior.
type SearchConfig struct {
	DefaultLimit        int     `koanf:"default_limit"`
	HNSWEf              int     `koanf:"hnsw_ef"`
	QuantizationRescore bool    `koanf:"quantization_rescore"`
	Oversampling        float64 `koanf:"oversampling"`
}

// ConsolidationConfig controls the consolidation engine's defaults.
type ConsolidationConfig struct {
	Threshold           int     `koanf:"threshold"` // chunks-since-last-pass trigger
	SimilarityThreshold float64 `koanf:"similarity_threshold"`
	Allowed             bool    `koanf:"allowed"`
}

// ServerConfig controls the JSON-RPC/Unix-socket server.
type ServerConfig struct {
	SocketPath      string   `koanf:"socket_path"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig mirrors internal/logging.Config's koanf surface so it can be
// embedded under the top-level "logging" key without an import cycle; the
// logging package converts from this at startup.
type LoggingConfig struct {
	Level  string            `koanf:"level"`
	Format string            `koanf:"format"`
	Fields map[string]string `koanf:"fields"`
}

// NewDefaultConfig returns configuration with production-ready defaults,
// matching the parameter names and values from the specification.
func NewDefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend:           "qdrant",
			Host:              "localhost",
			Port:              6334,
			PrimaryCollection: "atlas_context",
		},
		Embedding: EmbeddingConfig{
			Backend:        "http",
			BaseURL:        "http://localhost:8080",
			Dimensions:     1024,
			RateLimitRPS:   10,
			RateLimitBurst: 5,
		},
		LLM: LLMConfig{
			Backend:        "anthropic",
			RateLimitRPS:   5,
			RateLimitBurst: 2,
			MaxRetries:     3,
		},
		Chunk: ChunkConfig{
			Size:       768,
			Overlap:    100,
			Separators: []string{"\n\n", "\n", ". ", " ", ""},
		},
		HNSW: HNSWConfig{
			MDefault:    16,
			MDisabled:   0,
			EfConstruct: 100,
		},
		Quantization: QuantizationConfig{
			Enabled:   false,
			Type:      "int8",
			Quantile:  0.99,
			AlwaysRAM: true,
		},
		Search: SearchConfig{
			DefaultLimit:        10,
			HNSWEf:              128,
			QuantizationRescore: true,
			Oversampling:        2.0,
		},
		Consolidation: ConsolidationConfig{
			Threshold:           500,
			SimilarityThreshold: 0.88,
			Allowed:             true,
		},
		Server: ServerConfig{
			SocketPath:      "/tmp/atlasd.sock",
			ShutdownTimeout: Duration(10_000_000_000), // 10s
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Fields: map[string]string{"service": "atlasd"},
		},
	}
}

// Validate checks the configuration for internal consistency and rejects
// values that would violate the storage/search invariants.
func (c *Config) Validate() error {
	if c.Storage.Backend != "qdrant" {
		return fmt.Errorf("unsupported storage backend: %q", c.Storage.Backend)
	}
	if err := validateHostname(c.Storage.Host); err != nil {
		return fmt.Errorf("invalid storage.host: %w", err)
	}
	if c.Storage.PrimaryCollection == "" {
		return errors.New("storage.primary_collection must not be empty")
	}

	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Embedding.BaseURL != "" {
		if err := validateURL(c.Embedding.BaseURL); err != nil {
			return fmt.Errorf("invalid embedding.base_url: %w", err)
		}
	}

	if c.Chunk.Size <= 0 {
		return fmt.Errorf("chunk.size must be positive, got %d", c.Chunk.Size)
	}
	if c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.Size {
		return fmt.Errorf("chunk.overlap (%d) must be >= 0 and < chunk.size (%d)", c.Chunk.Overlap, c.Chunk.Size)
	}
	if len(c.Chunk.Separators) == 0 {
		return errors.New("chunk.separators must not be empty")
	}

	if c.HNSW.MDefault <= 0 {
		return fmt.Errorf("hnsw.m_default must be positive, got %d", c.HNSW.MDefault)
	}
	if c.HNSW.MDisabled != 0 {
		return fmt.Errorf("hnsw.m_disabled must be 0, got %d", c.HNSW.MDisabled)
	}

	if c.Quantization.Enabled {
		if c.Quantization.Type != "int8" {
			return fmt.Errorf("unsupported quantization.type: %q", c.Quantization.Type)
		}
		if c.Quantization.Quantile <= 0 || c.Quantization.Quantile > 1 {
			return fmt.Errorf("quantization.quantile must be in (0, 1], got %f", c.Quantization.Quantile)
		}
	}

	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("search.default_limit must be positive, got %d", c.Search.DefaultLimit)
	}
	if c.Search.Oversampling < 1 {
		return fmt.Errorf("search.oversampling must be >= 1, got %f", c.Search.Oversampling)
	}

	if c.Consolidation.Threshold < 0 {
		return fmt.Errorf("consolidation.threshold must be non-negative, got %d", c.Consolidation.Threshold)
	}
	if c.Consolidation.SimilarityThreshold <= 0 || c.Consolidation.SimilarityThreshold > 1 {
		return fmt.Errorf("consolidation.similarity_threshold must be in (0, 1], got %f", c.Consolidation.SimilarityThreshold)
	}

	if c.Server.SocketPath == "" {
		return errors.New("server.socket_path must not be empty")
	}
	if err := validatePath(c.Server.SocketPath); err != nil {
		return fmt.Errorf("invalid server.socket_path: %w", err)
	}

	return nil
}

// validateHostname checks that a hostname is safe to pass to a dialer,
// rejecting shell metacharacters defensively even though no shell is
// involved in a gRPC dial.
func validateHostname(host string) error {
	if host == "" {
		return nil
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	hostnameRegex := regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)
	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format: %s", host)
	}
	invalidChars := []string{";", "\n", "\r", "$", "`", "|", "&", "<", ">", "(", ")"}
	for _, char := range invalidChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("invalid hostname: contains forbidden character %q", char)
		}
	}
	return nil
}

// validatePath checks a filesystem path for traversal sequences.
func validatePath(path string) error {
	if strings.Contains(path, "..") {
		return fmt.Errorf("path contains traversal sequence: %s", path)
	}
	if filepath.IsAbs(path) {
		clean := filepath.Clean(path)
		origDepth := strings.Count(path, string(filepath.Separator))
		cleanDepth := strings.Count(clean, string(filepath.Separator))
		if cleanDepth < origDepth-1 {
			return fmt.Errorf("path traversal detected: %s (resolves to %s)", path, clean)
		}
	}
	return nil
}

// validateURL restricts configured backend URLs to http/https.
func validateURL(urlStr string) error {
	if !strings.HasPrefix(urlStr, "http://") && !strings.HasPrefix(urlStr, "https://") {
		return fmt.Errorf("URL must use http:// or https:// scheme, got: %s", urlStr)
	}
	return nil
}

package embeddings

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("embeddings: empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("embeddings: invalid configuration")
)

// Embedder is the boundary the ingestion and search layers embed through.
// One batch call embeds every chunk of a file; a single-text call embeds a
// search query.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Config configures the embedding backend. BaseURL/Model/APIKey follow the
// OpenAI Chat Completions shape, which a local TEI (Text Embeddings
// Inference) server can also implement.
type Config struct {
	BaseURL   string
	Model     string
	APIKey    string
	Dimension int
}

// Validate checks that the config has enough information to dial a
// backend. Dimension must be known up front since the storage layer fails
// fast on a collection/embedding dimension mismatch.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// Service is the default Embedder, backed by langchaingo's OpenAI-shaped
// embedder client.
type Service struct {
	embedder  *embeddings.EmbedderImpl
	dimension int
}

// NewService dials an OpenAI-compatible embedding endpoint. For a local TEI
// server, set BaseURL to the server's address and leave APIKey empty.
func NewService(cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "placeholder" // langchaingo requires a non-empty token
	}

	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("embeddings: creating openai client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("embeddings: creating embedder: %w", err)
	}

	return &Service{embedder: embedder, dimension: cfg.Dimension}, nil
}

// Dimension returns the configured embedding dimension D, used by the
// storage layer to validate collections on first use.
func (s *Service) Dimension() int { return s.dimension }

// EmbedDocuments generates one embedding per text, preserving order. This
// is the pipeline's single bulk batch call per file.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embeddings: embedding documents: %w", err)
	}
	return vectors, nil
}

// EmbedQuery generates a single embedding for a search query.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embeddings: embedding query: %w", err)
	}
	return vector, nil
}

var _ Embedder = (*Service)(nil)

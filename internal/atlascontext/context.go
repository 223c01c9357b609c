package atlascontext

import (
	"context"
	"fmt"
	"sync"

	"github.com/atlasmemory/atlas/internal/atlaserr"
	"github.com/atlasmemory/atlas/internal/chunk"
	"github.com/atlasmemory/atlas/internal/config"
	"github.com/atlasmemory/atlas/internal/embeddings"
	"github.com/atlasmemory/atlas/internal/llm"
	"github.com/atlasmemory/atlas/internal/logging"
	"github.com/atlasmemory/atlas/internal/qntm"
	"github.com/atlasmemory/atlas/internal/storage"
	"go.uber.org/zap"
)

// Capabilities reports which optional features the current configuration
// can support, so callers degrade a feature instead of failing deep inside
// a request.
type Capabilities struct {
	// Consolidation is true when an LLM backend is configured and
	// consolidation is allowed (Consolidation.Allowed); the consolidation
	// engine's classification step needs the backend.
	Consolidation bool
	// QNTMGeneration is true when an LLM backend is configured; ingestion
	// cannot mint QNTM keys without one.
	QNTMGeneration bool
}

// Context is the process-wide backend registry. Construct one with New and
// share it across the ingestion, search and consolidation layers.
type Context struct {
	cfg    config.Config
	logger *logging.Logger

	storeOnce sync.Once
	store     storage.Store
	storeErr  error

	embedderOnce sync.Once
	embedder     embeddings.Embedder
	embedderErr  error

	llmOnce sync.Once
	llmC    llm.JSONBackend
	llmErr  error

	indexing *storage.IndexingCoordinator
	splitter *chunk.Splitter
	qntmGen  *qntm.Generator
	reuse    *qntm.ReuseCache
}

// New constructs a Context. Backends are not dialed until first use.
func New(cfg config.Config, logger *logging.Logger) *Context {
	return &Context{
		cfg:      cfg,
		logger:   logger,
		indexing: storage.NewIndexingCoordinator(),
		reuse:    qntm.NewReuseCache(),
	}
}

// Capabilities reports the features this configuration supports.
func (c *Context) Capabilities() Capabilities {
	configured := c.cfg.LLM.APIKey.IsSet() || c.cfg.LLM.BaseURL != ""
	return Capabilities{
		Consolidation:  configured && c.cfg.Consolidation.Allowed,
		QNTMGeneration: configured,
	}
}

// Store lazily dials the configured storage backend and returns the same
// instance (or the same error) on every subsequent call.
func (c *Context) Store(ctx context.Context) (storage.Store, error) {
	c.storeOnce.Do(func() {
		qcfg := storage.QdrantConfig{
			Host:   c.cfg.Storage.Host,
			Port:   c.cfg.Storage.Port,
			APIKey: c.cfg.Storage.APIKey.Value(),
			UseTLS: c.cfg.Storage.UseTLS,
		}
		qcfg.ApplyDefaults()

		store, err := storage.NewQdrantStore(qcfg)
		if err != nil {
			c.storeErr = atlaserr.New(atlaserr.KindBackendUnavailable, fmt.Sprintf("dialing storage backend %s:%d", c.cfg.Storage.Host, c.cfg.Storage.Port), err)
			return
		}
		c.store = store
		if c.logger != nil {
			c.logger.Info(ctx, "storage backend resolved", zap.String("host", c.cfg.Storage.Host))
		}
	})
	return c.store, c.storeErr
}

// Embedder lazily builds the configured embedding backend.
func (c *Context) Embedder(ctx context.Context) (embeddings.Embedder, error) {
	c.embedderOnce.Do(func() {
		svc, err := embeddings.NewService(embeddings.Config{
			BaseURL:   c.cfg.Embedding.BaseURL,
			Model:     c.cfg.Embedding.Model,
			APIKey:    c.cfg.Embedding.APIKey.Value(),
			Dimension: c.cfg.Embedding.Dimensions,
		})
		if err != nil {
			c.embedderErr = atlaserr.New(atlaserr.KindBackendUnavailable, "building embedding backend", err)
			return
		}
		c.embedder = svc
		if c.logger != nil {
			c.logger.Info(ctx, "embedding backend resolved", zap.String("model", c.cfg.Embedding.Model))
		}
	})
	return c.embedder, c.embedderErr
}

// LLM lazily builds the configured LLM backend used for QNTM generation and
// consolidation classification. Returns atlaserr.KindConfig if no backend
// is configured; this is expected and callers should treat it as the
// feature being unavailable, not a fatal startup error.
func (c *Context) LLM() (llm.JSONBackend, error) {
	c.llmOnce.Do(func() {
		client, err := llm.NewAnthropicClient(llm.Config{
			APIKey:  c.cfg.LLM.APIKey.Value(),
			Model:   c.cfg.LLM.Model,
			BaseURL: c.cfg.LLM.BaseURL,
		})
		if err != nil {
			c.llmErr = atlaserr.New(atlaserr.KindConfig, "building LLM backend", err)
			return
		}
		c.llmC = client
	})
	return c.llmC, c.llmErr
}

// Indexing returns the shared HNSW batch-mode coordinator. It never fails
// to resolve since it holds no external connection.
func (c *Context) Indexing() *storage.IndexingCoordinator {
	return c.indexing
}

// Splitter lazily builds the chunk splitter from the configured chunk
// parameters. It never redials an external backend, so failures are
// configuration errors only (an invalid chunk size/overlap combination).
func (c *Context) Splitter() (*chunk.Splitter, error) {
	if c.splitter != nil {
		return c.splitter, nil
	}
	tok, err := chunk.NewTokenizer()
	if err != nil {
		return nil, atlaserr.New(atlaserr.KindConfig, "building chunk tokenizer", err)
	}
	splitter, err := chunk.NewSplitter(chunk.Config{
		Separators:   c.cfg.Chunk.Separators,
		ChunkSize:    c.cfg.Chunk.Size,
		ChunkOverlap: c.cfg.Chunk.Overlap,
	}, tok)
	if err != nil {
		return nil, atlaserr.New(atlaserr.KindConfig, "building chunk splitter", err)
	}
	c.splitter = splitter
	return c.splitter, nil
}

// QNTMGenerator lazily builds the QNTM key generator bound to the
// configured LLM backend.
func (c *Context) QNTMGenerator() (*qntm.Generator, error) {
	if c.qntmGen != nil {
		return c.qntmGen, nil
	}
	backend, err := c.LLM()
	if err != nil {
		return nil, err
	}
	c.qntmGen = qntm.NewGenerator(backend)
	return c.qntmGen, nil
}

// ReuseCache returns the process-wide QNTM key reuse cache shared across
// ingestion runs so later batches prefer keys already minted by earlier
// ones.
func (c *Context) ReuseCache() *qntm.ReuseCache {
	return c.reuse
}

// Close releases every backend this Context has resolved so far. Safe to
// call even if no backend was ever used.
func (c *Context) Close() error {
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

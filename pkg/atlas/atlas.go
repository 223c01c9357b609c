package atlas

import (
	"context"
	"fmt"

	"github.com/atlasmemory/atlas/internal/atlascontext"
	"github.com/atlasmemory/atlas/internal/chunk"
	"github.com/atlasmemory/atlas/internal/config"
	"github.com/atlasmemory/atlas/internal/consolidate"
	"github.com/atlasmemory/atlas/internal/events"
	"github.com/atlasmemory/atlas/internal/ingest"
	"github.com/atlasmemory/atlas/internal/logging"
	"github.com/atlasmemory/atlas/internal/search"
	"github.com/atlasmemory/atlas/internal/storage"
	"go.uber.org/zap"
)

// App is the process-wide Application Service. One App backs one running
// atlasd; construct it once at startup and share it across every
// transport (the JSON-RPC socket, a future CLI one-shot command, tests).
type App struct {
	cfg    config.Config
	ctx    *atlascontext.Context
	logger *logging.Logger
	events *events.Bus

	autoConsolidate *ingest.AutoConsolidator
	watchers        []*ingest.Watcher
}

// New constructs an App over cfg. Backends are not dialed until first use
// (see atlascontext.Context).
func New(cfg config.Config, logger *logging.Logger) *App {
	a := &App{
		cfg:    cfg,
		ctx:    atlascontext.New(cfg, logger),
		logger: logger,
		events: events.NewBus(),
	}
	a.autoConsolidate = ingest.NewAutoConsolidator(cfg.Consolidation.Threshold, a.consolidationTrigger())
	return a
}

// consolidationTrigger adapts App.Consolidate to ingest.ConsolidationTrigger
// without ingest depending on this package.
func (a *App) consolidationTrigger() ingest.ConsolidationTrigger {
	return triggerFunc(func(ctx context.Context) error {
		_, err := a.Consolidate(ctx, ConsolidateRequest{})
		return err
	})
}

type triggerFunc func(ctx context.Context) error

func (f triggerFunc) Trigger(ctx context.Context) error { return f(ctx) }

// Close releases every backend the App has resolved and stops any running
// watchers.
func (a *App) Close() error {
	for _, w := range a.watchers {
		w.Stop()
	}
	return a.ctx.Close()
}

// Subscribe registers a new event subscriber for atlas.subscribe.
func (a *App) Subscribe(patterns []string) (uint64, <-chan events.Event) {
	return a.events.Subscribe(patterns)
}

// Unsubscribe removes a subscriber for atlas.unsubscribe.
func (a *App) Unsubscribe(id uint64) {
	a.events.Unsubscribe(id)
}

func (a *App) publish(eventType string, params map[string]any) {
	a.events.Publish(events.Event{Type: eventType, Params: params})
}

// Ingest runs one ingestion pass per requested path, optionally starting a
// watcher on it afterward, then rolls the results up into one response. A
// root carrying a .atlas.toml chunk_size/chunk_overlap override gets its own
// chunk splitter for that root's pass; its consolidation_threshold is not
// applied.
func (a *App) Ingest(ctx context.Context, req IngestRequest) (IngestResponse, error) {
	if len(req.Paths) == 0 {
		return IngestResponse{}, fmt.Errorf("atlas: ingest requires at least one path")
	}

	resp := IngestResponse{}
	for _, root := range req.Paths {
		a.publish("ingest.progress", map[string]any{"root": root})

		pipeline, err := a.pipelineForRoot(ctx, root)
		if err != nil {
			resp.Errors = append(resp.Errors, fmt.Sprintf("%s: %v", root, err))
			continue
		}

		discOpts := ingest.DiscoveryOptions{}
		result, err := pipeline.IngestDirectory(ctx, root, discOpts)
		if err != nil {
			resp.Errors = append(resp.Errors, fmt.Sprintf("%s: %v", root, err))
			continue
		}

		for _, fr := range result.Files {
			resp.FilesProcessed++
			resp.ChunksStored += fr.ChunksIngested
			if fr.Err != nil {
				resp.Errors = append(resp.Errors, fmt.Sprintf("%s: %v", fr.RelPath, fr.Err))
			}
		}

		if req.AllowConsolidation == nil || *req.AllowConsolidation {
			if req.ConsolidationThreshold > 0 && req.ConsolidationThreshold != a.cfg.Consolidation.Threshold {
				a.autoConsolidate = ingest.NewAutoConsolidator(req.ConsolidationThreshold, a.consolidationTrigger())
			}
			if err := a.autoConsolidate.RecordChunks(ctx, result.TotalChunks); err != nil {
				a.logger.Warn(ctx, "auto-consolidation pass failed", zap.String("root", root), zap.Error(err))
			}
		}

		if req.Watch {
			watcher, err := ingest.NewWatcher(root, discOpts, pipeline)
			if err != nil {
				resp.Errors = append(resp.Errors, fmt.Sprintf("%s: starting watcher: %v", root, err))
				continue
			}
			watcher.Start(ctx)
			a.watchers = append(a.watchers, watcher)
			go a.forwardWatchEvents(watcher)
		}
	}

	a.publish("ingest.complete", map[string]any{
		"filesProcessed": resp.FilesProcessed,
		"chunksStored":   resp.ChunksStored,
	})
	return resp, nil
}

func (a *App) forwardWatchEvents(w *ingest.Watcher) {
	for change := range w.Events() {
		a.publish("watch.file_changed", map[string]any{
			"filePath":  change.File.RelPath,
			"timestamp": change.Timestamp,
		})
	}
}

// Search runs atlas.search.
func (a *App) Search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	searcher, err := a.searcher(ctx)
	if err != nil {
		return nil, err
	}

	results, err := searcher.Search(ctx, search.Request{
		Query:        req.Query,
		Limit:        req.Limit,
		Since:        req.Since,
		QNTMKey:      req.QNTMKey,
		Rerank:       req.Rerank,
		ExpandQuery:  req.ExpandQuery,
		ContentType:  req.ContentType,
		AgentRole:    req.AgentRole,
		Consolidated: consolidationLevelFilter(req.ConsolidationLevel),
	})
	if err != nil {
		return nil, err
	}
	return toSearchResults(results), nil
}

// consolidationLevelFilter maps the wire-level consolidationLevel string to
// the search layer's tri-state filter: "raw" restricts to un-consolidated
// chunks, "consolidated" to consolidated ones, anything else (including
// "all" and the empty string) applies no filter.
func consolidationLevelFilter(level string) *bool {
	switch level {
	case "raw":
		f := false
		return &f
	case "consolidated":
		t := true
		return &t
	default:
		return nil
	}
}

// Timeline runs atlas.timeline.
func (a *App) Timeline(ctx context.Context, req TimelineRequest) ([]SearchResult, error) {
	searcher, err := a.searcher(ctx)
	if err != nil {
		return nil, err
	}
	since := req.Since
	results, err := searcher.Timeline(ctx, &since, req.Limit)
	if err != nil {
		return nil, err
	}
	return toSearchResults(results), nil
}

func toSearchResults(results []search.Result) []SearchResult {
	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{
			Text:       r.Text,
			FilePath:   r.FilePath,
			ChunkIndex: r.ChunkIndex,
			Score:      r.Score,
			CreatedAt:  r.CreatedAt,
			QNTMKey:    r.QNTMKey,
		}
	}
	return out
}

// Consolidate runs atlas.consolidate.
func (a *App) Consolidate(ctx context.Context, req ConsolidateRequest) (ConsolidateResponse, error) {
	consolidator, err := a.consolidator(ctx)
	if err != nil {
		return ConsolidateResponse{}, err
	}
	if req.Threshold > 0 {
		consolidator.SimilarityThreshold = req.Threshold
	}

	a.publish("consolidate.progress", map[string]any{"dryRun": req.DryRun})
	report, err := consolidator.Run(ctx, req.DryRun)
	if err != nil {
		return ConsolidateResponse{}, err
	}

	return ConsolidateResponse{
		CandidatesEvaluated:     report.CandidatesEvaluated,
		ConsolidationsPerformed: report.ConsolidationsPerformed,
		ChunksAbsorbed:          report.ChunksAbsorbed,
	}, nil
}

// GenerateQNTM runs atlas.generateQNTM.
func (a *App) GenerateQNTM(ctx context.Context, req GenerateQNTMRequest) (GenerateQNTMResponse, error) {
	generator, err := a.ctx.QNTMGenerator()
	if err != nil {
		return GenerateQNTMResponse{}, err
	}
	result, err := generator.Generate(ctx, req.Text, req.ExistingKeys, req.Context)
	if err != nil {
		return GenerateQNTMResponse{}, err
	}
	return GenerateQNTMResponse{Keys: result.Keys, Reasoning: result.Reasoning}, nil
}

// pipelineForRoot builds an ingestion Pipeline bound to the App's resolved
// backends, substituting a root-specific splitter when root carries a
// .atlas.toml chunk override. The override's consolidation threshold is
// not used here or by consolidation.
func (a *App) pipelineForRoot(ctx context.Context, root string) (*ingest.Pipeline, error) {
	store, err := a.ctx.Store(ctx)
	if err != nil {
		return nil, err
	}
	embedder, err := a.ctx.Embedder(ctx)
	if err != nil {
		return nil, err
	}
	generator, err := a.ctx.QNTMGenerator()
	if err != nil {
		return nil, err
	}

	splitter, err := a.splitterForRoot(root)
	if err != nil {
		return nil, err
	}

	return &ingest.Pipeline{
		Store:             store,
		Embedder:          embedder,
		Generator:         generator,
		Splitter:          splitter,
		ReuseCache:        a.ctx.ReuseCache(),
		Indexing:          a.ctx.Indexing(),
		PrimaryCollection: a.cfg.Storage.PrimaryCollection,
		HNSW:              storage.HNSWParams{M: a.cfg.HNSW.MDefault, EfConstruct: a.cfg.HNSW.EfConstruct},
		Quantization:      quantizationConfig(a.cfg),
		Logger:            a.logger,
	}, nil
}

// splitterForRoot returns the shared, process-wide splitter unless root
// carries a .atlas.toml with a chunk_size/chunk_overlap override, in which
// case a one-off splitter is built for just this ingestion root.
func (a *App) splitterForRoot(root string) (*chunk.Splitter, error) {
	override, err := config.LoadProjectOverride(root)
	if err != nil {
		return nil, err
	}
	if override.ChunkSize == 0 && override.ChunkOverlap == 0 {
		return a.ctx.Splitter()
	}

	chunkSize, chunkOverlap, _ := config.ApplyProjectOverride(&a.cfg, override)
	tok, err := chunk.NewTokenizer()
	if err != nil {
		return nil, err
	}
	return chunk.NewSplitter(chunk.Config{
		Separators:   a.cfg.Chunk.Separators,
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
	}, tok)
}

func (a *App) searcher(ctx context.Context) (*search.Searcher, error) {
	store, err := a.ctx.Store(ctx)
	if err != nil {
		return nil, err
	}
	embedder, err := a.ctx.Embedder(ctx)
	if err != nil {
		return nil, err
	}
	llmBackend, _ := a.ctx.LLM() // optional: query expansion degrades gracefully without one

	return &search.Searcher{
		Store:             store,
		Embedder:          embedder,
		LLM:               llmBackend,
		Reranker:          search.NewTermOverlapReranker(),
		PrimaryCollection: a.cfg.Storage.PrimaryCollection,
		DefaultLimit:      a.cfg.Search.DefaultLimit,
		Oversampling:      a.cfg.Search.Oversampling,
	}, nil
}

func (a *App) consolidator(ctx context.Context) (*consolidate.Consolidator, error) {
	store, err := a.ctx.Store(ctx)
	if err != nil {
		return nil, err
	}
	embedder, err := a.ctx.Embedder(ctx)
	if err != nil {
		return nil, err
	}
	llmBackend, err := a.ctx.LLM()
	if err != nil {
		return nil, err
	}

	return &consolidate.Consolidator{
		Store:               store,
		Embedder:            embedder,
		LLM:                 llmBackend,
		PrimaryCollection:   a.cfg.Storage.PrimaryCollection,
		HNSW:                storage.HNSWParams{M: a.cfg.HNSW.MDefault, EfConstruct: a.cfg.HNSW.EfConstruct},
		Quantization:        quantizationConfig(a.cfg),
		SimilarityThreshold: a.cfg.Consolidation.SimilarityThreshold,
		Logger:              a.logger,
	}, nil
}

func quantizationConfig(cfg config.Config) *storage.QuantizationConfig {
	if !cfg.Quantization.Enabled {
		return nil
	}
	return &storage.QuantizationConfig{
		Enabled:   cfg.Quantization.Enabled,
		Quantile:  cfg.Quantization.Quantile,
		AlwaysRAM: cfg.Quantization.AlwaysRAM,
	}
}

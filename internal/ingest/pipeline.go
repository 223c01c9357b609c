package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/atlasmemory/atlas/internal/atlaserr"
	"github.com/atlasmemory/atlas/internal/chunk"
	"github.com/atlasmemory/atlas/internal/embeddings"
	"github.com/atlasmemory/atlas/internal/logging"
	"github.com/atlasmemory/atlas/internal/qntm"
	"github.com/atlasmemory/atlas/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// chunkIDNamespace seeds deterministic, UUIDv5 chunk IDs so re-ingesting an
// unchanged file produces the same point IDs and upserts overwrite rather
// than duplicate.
var chunkIDNamespace = uuid.MustParse("6f2b8f2e-2b9f-4c7d-9f2a-6a0e7d5c4b31")

func chunkID(relPath string, index int) string {
	name := fmt.Sprintf("%s#%d", relPath, index)
	return uuid.NewSHA1(chunkIDNamespace, []byte(name)).String()
}

// Pipeline wires the chunk/embed/generate/upsert stages against one
// storage backend. Construct one per ingestion run (or share across runs;
// it holds no run-scoped state beyond what's passed to IngestDirectory).
type Pipeline struct {
	Store             storage.Store
	Embedder          embeddings.Embedder
	Generator         *qntm.Generator
	Splitter          *chunk.Splitter
	ReuseCache        *qntm.ReuseCache
	Indexing          *storage.IndexingCoordinator
	PrimaryCollection string
	HNSW              storage.HNSWParams
	Quantization      *storage.QuantizationConfig
	MaxConcurrency    int
	Logger            *logging.Logger
}

// FileResult reports the outcome of ingesting one discovered file.
type FileResult struct {
	RelPath        string
	ChunksIngested int
	Keys           []string
	Err            error
}

// Result aggregates a full directory ingestion run.
type Result struct {
	Root        string
	Files       []FileResult
	TotalChunks int
}

// IngestDirectory discovers eligible files under root, then ingests each
// one with HNSW batch-mode indexing disabled for the duration of the run,
// guaranteeing the index is rebuilt on every exit path (success, partial
// failure, or cancellation).
func (p *Pipeline) IngestDirectory(ctx context.Context, root string, discOpts DiscoveryOptions) (*Result, error) {
	files, err := Discover(root, discOpts)
	if err != nil {
		return nil, err
	}

	if err := p.ensurePrimaryCollection(ctx); err != nil {
		return nil, atlaserr.New(atlaserr.KindIngest, "ensuring primary collection", err)
	}

	gitRef := DetectGitRef(root)

	result := &Result{Root: root}
	err = p.Indexing.WithIndexingDisabled(ctx, p.Store, p.PrimaryCollection, func(ctx context.Context) error {
		for _, f := range files {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			fr := p.ingestFile(ctx, f, gitRef)
			result.Files = append(result.Files, fr)
			result.TotalChunks += fr.ChunksIngested
		}
		return nil
	})
	return result, err
}

// IngestFile ingests a single already-discovered file, outside of any
// batch-mode scope. Used by the file watcher, where toggling the index
// once per changed file would defeat the point of batch mode.
func (p *Pipeline) IngestFile(ctx context.Context, f DiscoveredFile) FileResult {
	return p.ingestFile(ctx, f, DetectGitRef(filepath.Dir(f.AbsPath)))
}

func (p *Pipeline) ingestFile(ctx context.Context, f DiscoveredFile, gitRef string) FileResult {
	content, err := os.ReadFile(f.AbsPath)
	if err != nil {
		return FileResult{RelPath: f.RelPath, Err: fmt.Errorf("ingest: reading %s: %w", f.RelPath, err)}
	}

	chunks := p.Splitter.Split(string(content))
	if len(chunks) == 0 {
		return FileResult{RelPath: f.RelPath}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := p.Embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return FileResult{RelPath: f.RelPath, Err: atlaserr.New(atlaserr.KindIngest, fmt.Sprintf("embedding chunks for %s", f.RelPath), err)}
	}

	items := p.Generator.GenerateBatch(ctx, texts, p.ReuseCache, f.RelPath, p.maxConcurrency())

	seen := make(map[string]struct{})
	var allKeys []string
	chunksIngested := 0

	for i, item := range items {
		if item.Err != nil {
			p.logWarn(ctx, "qntm key generation failed, skipping chunk", f.RelPath, chunks[i].Index, item.Err)
			continue
		}

		point := storage.Point{
			ID:     chunkID(f.RelPath, chunks[i].Index),
			Vector: vectors[i],
			Payload: map[string]any{
				"file_path":    f.RelPath,
				"chunk_index":  chunks[i].Index,
				"text":         chunks[i].Text,
				"qntm_keys":    item.Result.Keys,
				"created_at":   time.Now().UTC().Format(time.RFC3339Nano),
				"consolidated": false,
			},
		}
		if gitRef != "" {
			point.Payload["git_ref"] = gitRef
		}

		if err := p.upsertChunk(ctx, point, item.Result.Keys); err != nil {
			p.logWarn(ctx, "upserting chunk failed", f.RelPath, chunks[i].Index, err)
			continue
		}

		chunksIngested++
		for _, k := range item.Result.Keys {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				allKeys = append(allKeys, k)
			}
		}
	}

	return FileResult{RelPath: f.RelPath, ChunksIngested: chunksIngested, Keys: allKeys}
}

// upsertChunk writes point to the primary collection and to every
// QNTM-key-derived collection the chunk belongs to, sequentially and with
// wait=true, so a failure partway through leaves a well-defined subset of
// collections holding the point rather than a partially visible batch.
func (p *Pipeline) upsertChunk(ctx context.Context, point storage.Point, keys []string) error {
	if err := p.Store.Upsert(ctx, p.PrimaryCollection, []storage.Point{point}, true); err != nil {
		return fmt.Errorf("upserting to primary collection %s: %w", p.PrimaryCollection, err)
	}

	for _, key := range keys {
		collection := qntm.Sanitize(key)
		if err := p.ensureCollection(ctx, collection); err != nil {
			return fmt.Errorf("ensuring collection %s: %w", collection, err)
		}
		if err := p.Store.Upsert(ctx, collection, []storage.Point{point}, true); err != nil {
			return fmt.Errorf("upserting to collection %s: %w", collection, err)
		}
	}
	return nil
}

func (p *Pipeline) ensurePrimaryCollection(ctx context.Context) error {
	return p.ensureCollection(ctx, p.PrimaryCollection)
}

func (p *Pipeline) ensureCollection(ctx context.Context, name string) error {
	return p.Store.CreateCollection(ctx, name, storage.CollectionConfig{
		Dimension:    p.Embedder.Dimension(),
		HNSW:         p.HNSW,
		Quantization: p.Quantization,
	})
}

func (p *Pipeline) maxConcurrency() int {
	if p.MaxConcurrency <= 0 {
		return 4
	}
	return p.MaxConcurrency
}

func (p *Pipeline) logWarn(ctx context.Context, msg, relPath string, chunkIndex int, err error) {
	if p.Logger == nil {
		return
	}
	p.Logger.Warn(ctx, msg,
		zap.String("file_path", relPath),
		zap.Int("chunk_index", chunkIndex),
		zap.Error(err),
	)
}

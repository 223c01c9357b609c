package search

import (
	"context"
	"testing"
	"time"

	"github.com/atlasmemory/atlas/internal/llm"
	"github.com/atlasmemory/atlas/internal/storage"
)

type fakeStore struct {
	storage.Store // embed nil to satisfy the interface for methods the tests don't exercise

	searchCollection string
	searchLimit      int
	searchFilter     *storage.Filter
	searchHits       []storage.ScoredPoint

	scrollPoints []storage.Point
}

func (f *fakeStore) Search(ctx context.Context, name string, vector []float32, limit int, filter *storage.Filter, withPayload bool) ([]storage.ScoredPoint, error) {
	f.searchCollection = name
	f.searchLimit = limit
	f.searchFilter = filter
	return f.searchHits, nil
}

func (f *fakeStore) Scroll(ctx context.Context, name string, limit int, offset string, withPayload, withVector bool) ([]storage.Point, string, error) {
	return f.scrollPoints, "", nil
}

type fakeEmbedder struct{ dim int }

func (f fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

func (f fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, f.dim), nil
}

func (f fakeEmbedder) Dimension() int { return f.dim }

type fakeLLM struct {
	keysJSON  string
	available bool
}

func (f fakeLLM) Available() bool { return f.available }

func (f fakeLLM) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return `{"keys": [` + f.keysJSON + `]}`, nil
}

var _ llm.JSONBackend = fakeLLM{}

func hit(id, text, filePath string, chunkIndex int, score float32, createdAt time.Time, keys []string) storage.ScoredPoint {
	return storage.ScoredPoint{
		Point: storage.Point{
			ID: id,
			Payload: map[string]any{
				"text":        text,
				"file_path":   filePath,
				"chunk_index": chunkIndex,
				"created_at":  createdAt.Format(time.RFC3339Nano),
				"qntm_keys":   keys,
			},
		},
		Score: score,
	}
}

func TestSearch_UsesPrimaryCollectionWithoutQNTMKey(t *testing.T) {
	store := &fakeStore{searchHits: []storage.ScoredPoint{
		hit("a", "alpha content", "a.md", 0, 0.9, time.Now(), []string{"x ~ y ~ z"}),
	}}
	s := &Searcher{Store: store, Embedder: fakeEmbedder{dim: 4}, PrimaryCollection: "atlas_context", DefaultLimit: 10}

	results, err := s.Search(context.Background(), Request{Query: "alpha"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.searchCollection != "atlas_context" {
		t.Errorf("expected primary collection, got %s", store.searchCollection)
	}
	if len(results) != 1 || results[0].ID != "a" {
		t.Fatalf("unexpected results: %+v", results)
	}
	if results[0].QNTMKey != "x ~ y ~ z" {
		t.Errorf("expected qntm key projected from payload, got %q", results[0].QNTMKey)
	}
}

func TestSearch_QNTMKeySelectsSanitizedCollection(t *testing.T) {
	store := &fakeStore{}
	s := &Searcher{Store: store, Embedder: fakeEmbedder{dim: 4}, PrimaryCollection: "atlas_context", DefaultLimit: 10}

	_, err := s.Search(context.Background(), Request{Query: "q", QNTMKey: "Concept Alpha ~ Relates To ~ Concept Beta"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.searchCollection != "concept_alpha_relates_to_concept_beta" {
		t.Errorf("expected sanitized key collection, got %s", store.searchCollection)
	}
}

func TestSearch_ExpandQueryFallsBackToPrimaryWhenNoBackend(t *testing.T) {
	store := &fakeStore{}
	s := &Searcher{Store: store, Embedder: fakeEmbedder{dim: 4}, PrimaryCollection: "atlas_context", DefaultLimit: 10}

	_, err := s.Search(context.Background(), Request{Query: "q", ExpandQuery: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.searchCollection != "atlas_context" {
		t.Errorf("expected fallback to primary collection when no LLM configured, got %s", store.searchCollection)
	}
}

func TestSearch_ExpandQueryUsesExpandedKey(t *testing.T) {
	store := &fakeStore{}
	s := &Searcher{
		Store:             store,
		Embedder:          fakeEmbedder{dim: 4},
		LLM:               fakeLLM{keysJSON: `"expanded ~ from ~ query"`, available: true},
		PrimaryCollection: "atlas_context",
		DefaultLimit:      10,
	}

	_, err := s.Search(context.Background(), Request{Query: "q", ExpandQuery: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.searchCollection != "expanded_from_query" {
		t.Errorf("expected expansion-derived collection, got %s", store.searchCollection)
	}
}

func TestSearch_OversamplesWhenReranking(t *testing.T) {
	store := &fakeStore{}
	s := &Searcher{
		Store:             store,
		Embedder:          fakeEmbedder{dim: 4},
		Reranker:          NewTermOverlapReranker(),
		PrimaryCollection: "atlas_context",
		DefaultLimit:      10,
		Oversampling:      2.0,
	}

	_, err := s.Search(context.Background(), Request{Query: "q", Limit: 5, Rerank: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.searchLimit != 10 {
		t.Errorf("expected oversampled limit 10, got %d", store.searchLimit)
	}
}

func TestSearch_FilterAssemblySince(t *testing.T) {
	store := &fakeStore{}
	s := &Searcher{Store: store, Embedder: fakeEmbedder{dim: 4}, PrimaryCollection: "atlas_context", DefaultLimit: 10}

	since := time.Now().Add(-time.Hour)
	_, err := s.Search(context.Background(), Request{Query: "q", Since: &since})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.searchFilter == nil || len(store.searchFilter.Must) != 1 {
		t.Fatalf("expected one filter condition, got %+v", store.searchFilter)
	}
	cond := store.searchFilter.Must[0]
	if cond.Field != "created_at" || !cond.Range || !cond.After.Equal(since) {
		t.Errorf("unexpected condition: %+v", cond)
	}
}

func TestSearch_TieBreaksByCreatedAtThenID(t *testing.T) {
	now := time.Now()
	store := &fakeStore{searchHits: []storage.ScoredPoint{
		hit("b", "x", "f.md", 0, 0.5, now, nil),
		hit("a", "y", "f.md", 1, 0.5, now, nil),
		hit("c", "z", "f.md", 2, 0.5, now.Add(-time.Minute), nil),
	}}
	s := &Searcher{Store: store, Embedder: fakeEmbedder{dim: 4}, PrimaryCollection: "atlas_context", DefaultLimit: 10}

	results, err := s.Search(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "b" || results[2].ID != "c" {
		t.Errorf("expected order [a b c] (equal-score ties broken by created_at desc then id asc), got [%s %s %s]",
			results[0].ID, results[1].ID, results[2].ID)
	}
}

func TestTimeline_FiltersAndOrdersByCreatedAtDescending(t *testing.T) {
	now := time.Now()
	store := &fakeStore{scrollPoints: []storage.Point{
		{ID: "old", Payload: map[string]any{"created_at": now.Add(-2 * time.Hour).Format(time.RFC3339Nano)}},
		{ID: "mid", Payload: map[string]any{"created_at": now.Add(-time.Hour).Format(time.RFC3339Nano)}},
		{ID: "new", Payload: map[string]any{"created_at": now.Format(time.RFC3339Nano)}},
	}}
	s := &Searcher{Store: store, PrimaryCollection: "atlas_context", DefaultLimit: 10}

	since := now.Add(-90 * time.Minute)
	results, err := s.Timeline(context.Background(), &since, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results after since filter, got %d", len(results))
	}
	if results[0].ID != "new" || results[1].ID != "mid" {
		t.Errorf("expected [new mid], got [%s %s]", results[0].ID, results[1].ID)
	}
}

package consolidate

import (
	"context"
	"sync"
	"testing"

	"github.com/atlasmemory/atlas/internal/storage"
)

type fakeStore struct {
	mu          sync.Mutex
	collections map[string]storage.CollectionConfig
	points      map[string]map[string]storage.Point
	deleted     []string
}

func newFakeStore(primary string, seed []storage.Point) *fakeStore {
	s := &fakeStore{
		collections: map[string]storage.CollectionConfig{primary: {}},
		points:      map[string]map[string]storage.Point{primary: {}},
	}
	for _, p := range seed {
		s.points[primary][p.ID] = p
	}
	return s
}

func (s *fakeStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.collections[name]
	return ok, nil
}

func (s *fakeStore) CreateCollection(ctx context.Context, name string, cfg storage.CollectionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		s.collections[name] = cfg
		s.points[name] = map[string]storage.Point{}
	}
	return nil
}

func (s *fakeStore) GetCollectionInfo(ctx context.Context, name string) (storage.CollectionInfo, error) {
	return storage.CollectionInfo{}, nil
}

func (s *fakeStore) Upsert(ctx context.Context, name string, points []storage.Point, wait bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.points[name]; !ok {
		s.points[name] = map[string]storage.Point{}
	}
	for _, p := range points {
		s.points[name][p.ID] = p
	}
	return nil
}

func (s *fakeStore) Scroll(ctx context.Context, name string, limit int, offset string, withPayload, withVector bool) ([]storage.Point, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.Point, 0, len(s.points[name]))
	for _, p := range s.points[name] {
		out = append(out, p)
	}
	return out, "", nil
}

func (s *fakeStore) Search(ctx context.Context, name string, vector []float32, limit int, filter *storage.Filter, withPayload bool) ([]storage.ScoredPoint, error) {
	return nil, nil
}

func (s *fakeStore) Delete(ctx context.Context, name string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.points[name], id)
		s.deleted = append(s.deleted, id)
	}
	return nil
}

func (s *fakeStore) CreatePayloadIndex(ctx context.Context, name, field string, schema storage.PayloadFieldSchema) error {
	return nil
}

func (s *fakeStore) SetHNSWM(ctx context.Context, name string, m int) error { return nil }
func (s *fakeStore) Close() error                                          { return nil }

var _ storage.Store = (*fakeStore)(nil)

func (s *fakeStore) point(collection, id string) (storage.Point, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.points[collection][id]
	return p, ok
}

type fakeEmbedder struct{ dim int }

func (f fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dim)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}
func (f fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, f.dim), nil
}
func (f fakeEmbedder) Dimension() int { return f.dim }

type fakeLLM struct {
	classification string
	synthesis      string
	available      bool
}

func (f fakeLLM) Available() bool { return f.available }

func (f fakeLLM) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if systemPrompt == classificationSystemPrompt {
		return f.classification, nil
	}
	return f.synthesis, nil
}

var _ jsonBackend = fakeLLM{}

const primaryCollection = "atlas_context"

func identicalVector(dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = 1
	}
	return v
}

func TestRun_DuplicateWorkClusterMergesAndMarksParents(t *testing.T) {
	dim := 4
	vec := identicalVector(dim)
	seed := []storage.Point{
		{ID: "p1", Vector: vec, Payload: map[string]any{"text": "alpha", "qntm_keys": []string{"c ~ d ~ e"}, "file_path": "a.md", "created_at": "t1"}},
		{ID: "p2", Vector: vec, Payload: map[string]any{"text": "alpha again", "qntm_keys": []string{"c ~ d ~ e"}, "file_path": "b.md", "created_at": "t2"}},
		{ID: "p3", Vector: vec, Payload: map[string]any{"text": "alpha once more", "qntm_keys": []string{"c ~ d ~ e"}, "file_path": "c.md", "created_at": "t3"}},
	}
	store := newFakeStore(primaryCollection, seed)
	llm := fakeLLM{
		classification: `{"type": "duplicate_work", "direction": "convergent", "confidence": 0.95}`,
		synthesis:      `{"original_text": "S", "reasoning": "merged three near-identical chunks"}`,
		available:      true,
	}

	c := &Consolidator{
		Store:             store,
		Embedder:          fakeEmbedder{dim: dim},
		LLM:               llm,
		PrimaryCollection: primaryCollection,
	}

	report, err := c.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.ConsolidationsPerformed != 1 {
		t.Fatalf("expected 1 consolidation, got %d", report.ConsolidationsPerformed)
	}
	if report.ChunksAbsorbed != 3 {
		t.Errorf("expected 3 chunks absorbed, got %d", report.ChunksAbsorbed)
	}

	newID := report.ProposedMerges[0].NewID
	merged, ok := store.point(primaryCollection, newID)
	if !ok {
		t.Fatalf("expected consolidated chunk %s to be written", newID)
	}
	if merged.Payload["consolidated"] != true {
		t.Error("expected consolidated chunk to carry consolidated=true")
	}
	parents, _ := merged.Payload["parents"].([]string)
	if len(parents) != 3 {
		t.Errorf("expected 3 parents recorded, got %v", parents)
	}

	for _, id := range []string{"p1", "p2", "p3"} {
		p, ok := store.point(primaryCollection, id)
		if !ok {
			t.Fatalf("expected parent %s to still exist", id)
		}
		if p.Payload["consolidated"] != true {
			t.Errorf("expected parent %s marked consolidated=true, got %v", id, p.Payload["consolidated"])
		}
	}
}

func TestRun_DryRunPerformsNoWrites(t *testing.T) {
	dim := 4
	vec := identicalVector(dim)
	seed := []storage.Point{
		{ID: "p1", Vector: vec, Payload: map[string]any{"text": "alpha", "qntm_keys": []string{"c ~ d ~ e"}}},
		{ID: "p2", Vector: vec, Payload: map[string]any{"text": "alpha again", "qntm_keys": []string{"c ~ d ~ e"}}},
	}
	store := newFakeStore(primaryCollection, seed)
	llm := fakeLLM{
		classification: `{"type": "duplicate_work", "direction": "convergent", "confidence": 0.95}`,
		synthesis:      `{"original_text": "S", "reasoning": "r"}`,
		available:      true,
	}
	c := &Consolidator{Store: store, Embedder: fakeEmbedder{dim: dim}, LLM: llm, PrimaryCollection: primaryCollection}

	report, err := c.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.ConsolidationsPerformed != 0 || report.ChunksAbsorbed != 0 {
		t.Errorf("expected zero counts for dry run, got %+v", report)
	}
	if len(report.ProposedMerges) != 1 {
		t.Fatalf("expected one proposed merge, got %d", len(report.ProposedMerges))
	}
	if len(store.points[primaryCollection]) != 2 {
		t.Errorf("expected no new points written during dry run, got %d", len(store.points[primaryCollection]))
	}
}

func TestRun_LowConfidenceClassificationSkipsCluster(t *testing.T) {
	dim := 4
	vec := identicalVector(dim)
	seed := []storage.Point{
		{ID: "p1", Vector: vec, Payload: map[string]any{"text": "alpha", "qntm_keys": []string{"c ~ d ~ e"}}},
		{ID: "p2", Vector: vec, Payload: map[string]any{"text": "alpha again", "qntm_keys": []string{"c ~ d ~ e"}}},
	}
	store := newFakeStore(primaryCollection, seed)
	llm := fakeLLM{
		classification: `{"type": "duplicate_work", "direction": "convergent", "confidence": 0.1}`,
		available:      true,
	}
	c := &Consolidator{Store: store, Embedder: fakeEmbedder{dim: dim}, LLM: llm, PrimaryCollection: primaryCollection, ConfidenceFloor: 0.6}

	report, err := c.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.ConsolidationsPerformed != 0 {
		t.Errorf("expected low-confidence cluster to be skipped, got %d consolidations", report.ConsolidationsPerformed)
	}
}

func TestRun_IdempotentReRunProducesNoNewWrites(t *testing.T) {
	dim := 4
	vec := identicalVector(dim)
	seed := []storage.Point{
		{ID: "p1", Vector: vec, Payload: map[string]any{"text": "alpha", "qntm_keys": []string{"c ~ d ~ e"}}},
		{ID: "p2", Vector: vec, Payload: map[string]any{"text": "alpha again", "qntm_keys": []string{"c ~ d ~ e"}}},
	}
	store := newFakeStore(primaryCollection, seed)
	llm := fakeLLM{
		classification: `{"type": "duplicate_work", "direction": "convergent", "confidence": 0.95}`,
		synthesis:      `{"original_text": "S", "reasoning": "r"}`,
		available:      true,
	}
	c := &Consolidator{Store: store, Embedder: fakeEmbedder{dim: dim}, LLM: llm, PrimaryCollection: primaryCollection}

	if _, err := c.Run(context.Background(), false); err != nil {
		t.Fatalf("unexpected error on first run: %v", err)
	}
	countAfterFirst := len(store.points[primaryCollection])

	report2, err := c.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error on second run: %v", err)
	}
	if report2.ConsolidationsPerformed != 0 {
		t.Errorf("expected re-running over already-consolidated parents to perform no new consolidations, got %d", report2.ConsolidationsPerformed)
	}
	if len(store.points[primaryCollection]) != countAfterFirst {
		t.Errorf("expected no new points from idempotent re-run, got %d (was %d)", len(store.points[primaryCollection]), countAfterFirst)
	}
}

func TestRun_UnconfiguredLLMReturnsError(t *testing.T) {
	c := &Consolidator{Store: newFakeStore(primaryCollection, nil), Embedder: fakeEmbedder{dim: 4}, LLM: fakeLLM{available: false}, PrimaryCollection: primaryCollection}
	if _, err := c.Run(context.Background(), false); err == nil {
		t.Error("expected an error when no LLM backend is configured")
	}
}

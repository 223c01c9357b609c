package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/atlasmemory/atlas/internal/atlaserr"
	"github.com/atlasmemory/atlas/internal/embeddings"
	"github.com/atlasmemory/atlas/internal/llm"
	"github.com/atlasmemory/atlas/internal/qntm"
	"github.com/atlasmemory/atlas/internal/storage"
)

// Request is a single search invocation. Query and Limit are the only
// required fields; everything else narrows or reshapes the result set.
type Request struct {
	Query       string
	Limit       int
	Since       *time.Time
	QNTMKey     string
	Rerank      bool
	ExpandQuery bool

	// Consolidated, when non-nil, restricts results to chunks whose
	// consolidated payload field equals *Consolidated.
	Consolidated *bool
	ContentType  string
	AgentRole    string
}

// Result is one ranked hit, projected from a chunk's payload.
type Result struct {
	ID         string
	Text       string
	FilePath   string
	ChunkIndex int
	Score      float32
	CreatedAt  time.Time
	QNTMKey    string
}

// farFuture bounds an open-ended "since" range filter. storage.Condition's
// Range form always sets both ends (see conditionToQdrant); leaving Before
// at its zero value would turn an unbounded upper end into "before the
// Unix epoch minus millennia", rejecting everything. A century out is far
// enough past any real created_at value to behave as unbounded.
var farFuture = func() time.Time { return time.Now().UTC().AddDate(100, 0, 0) }

const defaultSearchLimit = 10

// Searcher executes search requests against one storage backend. Backends
// it depends on (LLM, Reranker) may be nil; Searcher degrades the
// corresponding optional feature rather than failing the request.
type Searcher struct {
	Store             storage.Store
	Embedder          embeddings.Embedder
	LLM               llm.JSONBackend
	Reranker          Reranker
	PrimaryCollection string
	DefaultLimit      int
	Oversampling      float64
}

// Search runs the full query pipeline: optional expansion, embedding,
// collection selection, filter assembly, vector search with oversampling
// when reranking, optional reranking, and deterministic ordering.
func (s *Searcher) Search(ctx context.Context, req Request) ([]Result, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = s.DefaultLimit
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	selectedKey := req.QNTMKey
	if selectedKey == "" && req.ExpandQuery {
		expanded, err := expandQuery(ctx, s.LLM, req.Query)
		if err == nil && len(expanded) > 0 {
			selectedKey = expanded[0]
		}
		// Expansion is an optional enhancement; a backend error or empty
		// result falls back to searching the primary collection rather
		// than failing the request.
	}

	collection := s.PrimaryCollection
	if selectedKey != "" {
		collection = qntm.Sanitize(selectedKey)
	}

	vector, err := s.Embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, atlaserr.New(atlaserr.KindBackendUnavailable, "search: embedding query", err)
	}

	filter := buildFilter(req)

	searchLimit := limit
	if req.Rerank {
		oversampling := s.Oversampling
		if oversampling < 1 {
			oversampling = 1
		}
		searchLimit = int(math.Ceil(float64(limit) * oversampling))
	}

	hits, err := s.Store.Search(ctx, collection, vector, searchLimit, filter, true)
	if err != nil {
		return nil, atlaserr.New(atlaserr.KindBackendUnavailable, fmt.Sprintf("search: querying collection %s", collection), err)
	}

	results := projectResults(hits, selectedKey)

	if req.Rerank && s.Reranker != nil {
		results, err = rerankResults(ctx, s.Reranker, req.Query, results)
		if err != nil {
			// Fall back to vector order; reranking is an optional quality
			// improvement, not a correctness requirement.
			results = projectResults(hits, selectedKey)
		}
	}

	sortResults(results)

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Timeline returns chunks ordered by created_at descending, optionally
// filtered by since, bounded by limit. It is a search with no vector
// component: collection is always the primary collection and ranking is
// purely temporal.
func (s *Searcher) Timeline(ctx context.Context, since *time.Time, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = s.DefaultLimit
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	// Scroll covers limit*4 points rather than the whole collection: a
	// heuristic that keeps the common case (recent timeline, no since
	// filter trimming most of it away) fast without a full collection
	// scan. Consolidation's candidate detection, which does need an
	// exhaustive scroll, paginates separately.
	points, _, err := s.Store.Scroll(ctx, s.PrimaryCollection, limit*4, "", true, false)
	if err != nil {
		return nil, atlaserr.New(atlaserr.KindBackendUnavailable, "timeline: scrolling primary collection", err)
	}

	scored := make([]storage.ScoredPoint, len(points))
	for i, p := range points {
		scored[i] = storage.ScoredPoint{Point: p}
	}
	scored = filterScrolled(scored, since)

	results := projectResults(scored, "")
	sort.SliceStable(results, func(i, j int) bool { return results[i].CreatedAt.After(results[j].CreatedAt) })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// filterScrolled applies a created_at >= since filter client-side, used by
// Timeline when the backing Store's Scroll does not accept a filter
// directly (storage.Store.Scroll has no filter parameter; Search does).
func filterScrolled(points []storage.ScoredPoint, since *time.Time) []storage.ScoredPoint {
	if since == nil {
		return points
	}
	out := points[:0:0]
	for _, p := range points {
		ts, ok := createdAt(p.Payload)
		if ok && !ts.Before(*since) {
			out = append(out, p)
		}
	}
	return out
}

func buildFilter(req Request) *storage.Filter {
	var conditions []storage.Condition
	if req.Since != nil {
		conditions = append(conditions, storage.Condition{Field: "created_at", Range: true, After: *req.Since, Before: farFuture()})
	}
	if req.Consolidated != nil {
		conditions = append(conditions, storage.Condition{Field: "consolidated", Value: *req.Consolidated})
	}
	if req.ContentType != "" {
		conditions = append(conditions, storage.Condition{Field: "content_type", Value: req.ContentType})
	}
	if req.AgentRole != "" {
		conditions = append(conditions, storage.Condition{Field: "agent_role", Value: req.AgentRole})
	}
	if len(conditions) == 0 {
		return nil
	}
	return &storage.Filter{Must: conditions}
}

func projectResults(hits []storage.ScoredPoint, selectedKey string) []Result {
	results := make([]Result, len(hits))
	for i, h := range hits {
		text, _ := h.Payload["text"].(string)
		filePath, _ := h.Payload["file_path"].(string)
		chunkIndex := 0
		if v, ok := h.Payload["chunk_index"].(int); ok {
			chunkIndex = v
		} else if v, ok := h.Payload["chunk_index"].(float64); ok {
			chunkIndex = int(v)
		}

		key := selectedKey
		if key == "" {
			if keys, ok := h.Payload["qntm_keys"].([]string); ok && len(keys) > 0 {
				key = keys[0]
			} else if keys, ok := h.Payload["qntm_keys"].([]any); ok && len(keys) > 0 {
				if s, ok := keys[0].(string); ok {
					key = s
				}
			}
		}

		ts, _ := createdAt(h.Payload)

		results[i] = Result{
			ID:         h.ID,
			Text:       text,
			FilePath:   filePath,
			ChunkIndex: chunkIndex,
			Score:      h.Score,
			CreatedAt:  ts,
			QNTMKey:    key,
		}
	}
	return results
}

func createdAt(payload map[string]any) (time.Time, bool) {
	raw, ok := payload["created_at"].(string)
	if !ok {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// rerankResults reorders results by Reranker output and overwrites each
// Score with the reranker's combined score, since the reranked order is
// the "final score" the ordering rule refers to.
func rerankResults(ctx context.Context, r Reranker, query string, results []Result) ([]Result, error) {
	candidates := make([]RerankCandidate, len(results))
	for i, res := range results {
		candidates[i] = RerankCandidate{ID: res.ID, Text: res.Text, Score: res.Score}
	}

	ranked, err := r.Rerank(ctx, query, candidates)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Result, len(results))
	for _, res := range results {
		byID[res.ID] = res
	}

	out := make([]Result, 0, len(ranked))
	for _, c := range ranked {
		res, ok := byID[c.ID]
		if !ok {
			continue
		}
		res.Score = c.Score
		out = append(out, res)
	}
	return out, nil
}

// sortResults orders by Score descending; ties break by CreatedAt
// descending, then ID ascending, for determinism across identical-score
// runs.
func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

package search

import (
	"context"
	"sort"
	"strings"
)

// RerankCandidate is a single search hit offered to a Reranker, carrying
// enough of the original vector-search result to score it against the
// query text.
type RerankCandidate struct {
	ID    string
	Text  string
	Score float32
}

// Reranker re-scores vector-search candidates against the query text.
// Atlas ships one implementation (TermOverlapReranker); other backends
// (cross-encoders, hosted rerank APIs) satisfy the same interface.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []RerankCandidate) ([]RerankCandidate, error)
}

// TermOverlapReranker blends each candidate's original vector score with
// the fraction of query terms it shares, weighted equally. It needs no
// external backend, so it is always available regardless of which LLM or
// embedding provider is configured.
type TermOverlapReranker struct{}

// NewTermOverlapReranker constructs a TermOverlapReranker.
func NewTermOverlapReranker() *TermOverlapReranker {
	return &TermOverlapReranker{}
}

const (
	originalScoreWeight = 0.5
	overlapScoreWeight  = 0.5
)

// Rerank sorts candidates by 0.5*originalScore + 0.5*termOverlap(query,
// text), descending. Each returned candidate's Score is replaced by that
// combined score.
func (r *TermOverlapReranker) Rerank(ctx context.Context, query string, candidates []RerankCandidate) ([]RerankCandidate, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}

	queryTerms := tokenize(query)
	if len(queryTerms) == 0 {
		out := make([]RerankCandidate, len(candidates))
		copy(out, candidates)
		sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
		return out, nil
	}

	type scored struct {
		candidate RerankCandidate
		combined  float32
	}
	ranked := make([]scored, len(candidates))
	for i, c := range candidates {
		overlap := termOverlap(queryTerms, tokenize(c.Text))
		ranked[i] = scored{
			candidate: c,
			combined:  originalScoreWeight*c.Score + overlapScoreWeight*overlap,
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].combined > ranked[j].combined })

	out := make([]RerankCandidate, len(ranked))
	for i, s := range ranked {
		c := s.candidate
		c.Score = s.combined
		out[i] = c
	}
	return out, nil
}

func tokenize(text string) []string {
	text = strings.ToLower(text)
	tokens := strings.FieldsFunc(text, func(r rune) bool { return !isWordRune(r) })
	filtered := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if len(t) > 2 && !stopwords[t] {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "is": true, "was": true,
	"are": true, "be": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true, "can": true, "this": true,
	"that": true, "these": true, "those": true,
}

// termOverlap returns the fraction of distinct queryTerms present in
// docTerms, in [0, 1].
func termOverlap(queryTerms, docTerms []string) float32 {
	if len(queryTerms) == 0 {
		return 0
	}
	present := make(map[string]bool, len(docTerms))
	for _, t := range docTerms {
		present[t] = true
	}
	matched := 0
	counted := make(map[string]bool, len(queryTerms))
	for _, qt := range queryTerms {
		if present[qt] && !counted[qt] {
			matched++
			counted[qt] = true
		}
	}
	return float32(matched) / float32(len(queryTerms))
}

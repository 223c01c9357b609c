package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/atlasmemory/atlas/internal/llm"
	"github.com/atlasmemory/atlas/internal/qntm"
)

const expansionSystemPrompt = `You expand search queries into QNTM-shaped keys: ternary semantic addresses of the form "subject ~ predicate ~ object" where each part is a snake_case identifier.

Given a natural-language query, propose up to 3 QNTM keys that content matching the query's intent is likely to be filed under. Respond with a single JSON object: {"keys": ["subject ~ predicate ~ object", ...]}. Respond with JSON only, no surrounding prose or code fences.`

type expansionResponse struct {
	Keys []string `json:"keys"`
}

// expandQuery asks backend for QNTM-shaped keys likely to match query's
// intent. Keys that fail grammar validation are dropped rather than
// failing the whole expansion; a malformed suggestion should narrow the
// candidate set, not abort the search.
func expandQuery(ctx context.Context, backend llm.JSONBackend, query string) ([]string, error) {
	if backend == nil || !backend.Available() {
		return nil, nil
	}

	raw, err := backend.CompleteJSON(ctx, expansionSystemPrompt, fmt.Sprintf("Query: %s", query))
	if err != nil {
		return nil, fmt.Errorf("search: expanding query: %w", err)
	}

	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var resp expansionResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, fmt.Errorf("search: invalid expansion JSON: %w", err)
	}

	keys := make([]string, 0, len(resp.Keys))
	for _, k := range resp.Keys {
		if qntm.Valid(k) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

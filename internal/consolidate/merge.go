package consolidate

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

const mergeSystemPrompt = `You synthesize a cluster of near-duplicate or related text chunks into one consolidated passage for a memory system. Produce text that captures the merged meaning without simply concatenating the inputs, plus a short rationale for how you merged them.

Respond with a single JSON object: {"original_text": "...", "reasoning": "..."}. Respond with JSON only, no surrounding prose or code fences.`

type mergeResponse struct {
	OriginalText string `json:"original_text"`
	Reasoning    string `json:"reasoning"`
}

func buildMergePrompt(members []clusterMember) string {
	var b strings.Builder
	b.WriteString("Chunks to merge:\n")
	for i, m := range members {
		fmt.Fprintf(&b, "%d. %s\n\n", i+1, m.Text)
	}
	return b.String()
}

// synthesize asks the LLM to produce a merged passage and rationale for
// members.
func synthesize(ctx context.Context, backend jsonBackend, members []clusterMember) (text, reasoning string, err error) {
	raw, err := backend.CompleteJSON(ctx, mergeSystemPrompt, buildMergePrompt(members))
	if err != nil {
		return "", "", fmt.Errorf("consolidate: synthesis backend call: %w", err)
	}

	var resp mergeResponse
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &resp); err != nil {
		return "", "", fmt.Errorf("consolidate: invalid synthesis JSON: %w", err)
	}
	if resp.OriginalText == "" {
		return "", "", fmt.Errorf("consolidate: synthesis returned empty original_text")
	}
	return resp.OriginalText, resp.Reasoning, nil
}

// consolidatedIDNamespace seeds deterministic consolidated-chunk IDs, kept
// distinct from ingest's chunkIDNamespace so the two ID spaces can never
// collide even given identical inputs.
var consolidatedIDNamespace = uuid.MustParse("9b6f1a3c-7e2d-4a58-9c0a-3f6b2d7e9c14")

// consolidatedID derives a fresh, deterministic id from the sorted parent
// ids and a digest of the synthesized text, so re-running consolidation
// over the same cluster and synthesis result produces the same id
// (idempotent re-runs write to the same point rather than duplicating).
func consolidatedID(parents []string, synthesizedText string) string {
	sorted := append([]string(nil), parents...)
	sort.Strings(sorted)
	name := strings.Join(sorted, ",") + "|" + synthesizedText
	return uuid.NewSHA1(consolidatedIDNamespace, []byte(name)).String()
}

// unionKeys merges each member's qntm keys, deduplicated, and bounded to
// the maxKeys most frequent across the cluster when the union exceeds it.
func unionKeys(memberKeys [][]string, maxKeys int) []string {
	freq := map[string]int{}
	var order []string
	for _, keys := range memberKeys {
		for _, k := range keys {
			if _, ok := freq[k]; !ok {
				order = append(order, k)
			}
			freq[k]++
		}
	}
	if maxKeys <= 0 || len(order) <= maxKeys {
		return order
	}

	sort.SliceStable(order, func(i, j int) bool { return freq[order[i]] > freq[order[j]] })
	return order[:maxKeys]
}

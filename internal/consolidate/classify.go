package consolidate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ClassificationType names the relationship a cluster's members share.
type ClassificationType string

const (
	DuplicateWork         ClassificationType = "duplicate_work"
	SequentialIteration   ClassificationType = "sequential_iteration"
	ContextualConvergence ClassificationType = "contextual_convergence"
)

// Classification is the LLM's verdict on one candidate cluster.
type Classification struct {
	Type       ClassificationType
	Direction  string // "convergent" | "forward" | "backward" | "unknown"
	Confidence float64
}

const classificationSystemPrompt = `You classify clusters of near-duplicate text chunks for a memory consolidation system. Given several chunks (with file paths and timestamps), classify their relationship as exactly one of:
- "duplicate_work": near-identical content across different files. Direction is "convergent".
- "sequential_iteration": ordered refinements on the same topic. Direction is "forward" or "backward", inferred from the timestamps.
- "contextual_convergence": distinct contexts expressing the same underlying concept. Direction is "unknown".

Respond with a single JSON object: {"type": "...", "direction": "...", "confidence": 0.0-1.0}. Respond with JSON only, no surrounding prose or code fences.`

type classificationResponse struct {
	Type       string  `json:"type"`
	Direction  string  `json:"direction"`
	Confidence float64 `json:"confidence"`
}

func buildClassificationPrompt(members []clusterMember) string {
	var b strings.Builder
	b.WriteString("Chunks:\n")
	for i, m := range members {
		fmt.Fprintf(&b, "%d. file=%s created_at=%s\n%s\n\n", i+1, m.FilePath, m.CreatedAt, m.Text)
	}
	return b.String()
}

func parseClassificationResponse(raw string) (Classification, error) {
	cleaned := stripCodeFences(raw)

	var resp classificationResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return Classification{}, fmt.Errorf("consolidate: invalid classification JSON: %w", err)
	}

	switch ClassificationType(resp.Type) {
	case DuplicateWork, SequentialIteration, ContextualConvergence:
	default:
		return Classification{}, fmt.Errorf("consolidate: unknown classification type %q", resp.Type)
	}

	return Classification{
		Type:       ClassificationType(resp.Type),
		Direction:  resp.Direction,
		Confidence: resp.Confidence,
	}, nil
}

func stripCodeFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}

// classifyCluster asks the LLM to classify members. ctx is threaded
// through for cancellation even though the current backend call is a
// single round trip with no internal retry loop (unlike qntm.Generate,
// a classification that fails its schema is treated as "skip this
// cluster" rather than retried, since clusters are re-evaluated on every
// consolidation pass anyway).
func classifyCluster(ctx context.Context, backend jsonBackend, members []clusterMember) (Classification, error) {
	raw, err := backend.CompleteJSON(ctx, classificationSystemPrompt, buildClassificationPrompt(members))
	if err != nil {
		return Classification{}, fmt.Errorf("consolidate: classification backend call: %w", err)
	}
	return parseClassificationResponse(raw)
}

package qntm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/atlasmemory/atlas/internal/atlaserr"
	"github.com/atlasmemory/atlas/internal/llm"
)

const (
	minKeys             = 1
	maxKeys             = 3
	maxGenerationRetry  = 3
	generationBaseDelay = 500 * time.Millisecond
	existingKeysSample  = 40
)

// GenerateResult is the outcome of one key-generation call.
type GenerateResult struct {
	Keys      []string
	Reasoning string
}

// Generator produces QNTM keys for chunk text via a JSON-completion backend.
type Generator struct {
	backend llm.JSONBackend
}

// NewGenerator wraps a JSON-completion backend for QNTM key generation.
func NewGenerator(backend llm.JSONBackend) *Generator {
	return &Generator{backend: backend}
}

type generationResponse struct {
	Keys      []string `json:"keys"`
	Reasoning string   `json:"reasoning"`
}

const systemPrompt = `You generate QNTM keys: ternary semantic addresses of the form "subject ~ predicate ~ object" where each part is a snake_case identifier (the object may be a bracketed list like "[a, b, c]").

Rules:
- Produce between 1 and 3 keys per chunk of text.
- Reuse a key from the provided existing-keys sample whenever it is semantically equivalent to a candidate key you would otherwise mint; do not create a near-duplicate of an existing key.
- Keys must be stable: semantically identical content must always map to the same key regardless of phrasing.
- Respond with a single JSON object: {"keys": ["subject ~ predicate ~ object", ...], "reasoning": "short rationale"}.
- Respond with JSON only, no surrounding prose or code fences.`

// Generate produces 1-3 QNTM keys for chunkText, preferring keys already
// present in existingKeys when semantically close. It retries on schema
// failures with exponential backoff, bounded by maxGenerationRetry.
func (g *Generator) Generate(ctx context.Context, chunkText string, existingKeys []string, chunkContext string) (GenerateResult, error) {
	if g.backend == nil || !g.backend.Available() {
		return GenerateResult{}, atlaserr.New(atlaserr.KindConfig, "qntm.Generate", fmt.Errorf("no json_llm backend configured"))
	}

	userPrompt := buildUserPrompt(chunkText, existingKeys, chunkContext)

	var lastErr error
	for attempt := 0; attempt <= maxGenerationRetry; attempt++ {
		if attempt > 0 {
			delay := generationBaseDelay * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return GenerateResult{}, ctx.Err()
			}
		}

		raw, err := g.backend.CompleteJSON(ctx, systemPrompt, userPrompt)
		if err != nil {
			lastErr = err
			continue
		}

		result, err := parseGenerationResponse(raw)
		if err != nil {
			lastErr = err
			continue
		}
		return result, nil
	}

	return GenerateResult{}, atlaserr.New(atlaserr.KindIngest, "qntm.Generate", fmt.Errorf("exhausted %d retries: %w", maxGenerationRetry, lastErr))
}

func buildUserPrompt(chunkText string, existingKeys []string, chunkContext string) string {
	var b strings.Builder
	sample := existingKeys
	if len(sample) > existingKeysSample {
		sample = sample[:existingKeysSample]
	}
	b.WriteString("Existing keys sample:\n")
	if len(sample) == 0 {
		b.WriteString("(none)\n")
	} else {
		for _, k := range sample {
			b.WriteString("- ")
			b.WriteString(k)
			b.WriteString("\n")
		}
	}
	if chunkContext != "" {
		b.WriteString("\nContext:\n")
		b.WriteString(chunkContext)
		b.WriteString("\n")
	}
	b.WriteString("\nChunk text:\n")
	b.WriteString(chunkText)
	return b.String()
}

// parseGenerationResponse validates the LLM's JSON response against the
// key-count and grammar constraints, stripping markdown code fences first.
func parseGenerationResponse(raw string) (GenerateResult, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var resp generationResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return GenerateResult{}, fmt.Errorf("qntm: invalid JSON response: %w", err)
	}

	if len(resp.Keys) < minKeys || len(resp.Keys) > maxKeys {
		return GenerateResult{}, fmt.Errorf("qntm: expected 1-3 keys, got %d", len(resp.Keys))
	}

	for _, k := range resp.Keys {
		if !Valid(k) {
			return GenerateResult{}, fmt.Errorf("qntm: key %q does not match the ternary grammar", k)
		}
	}

	return GenerateResult{Keys: resp.Keys, Reasoning: resp.Reasoning}, nil
}

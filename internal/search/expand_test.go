package search

import (
	"context"
	"testing"
)

type unavailableLLM struct{}

func (unavailableLLM) Available() bool { return false }
func (unavailableLLM) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "", nil
}

func TestExpandQuery_NilBackendReturnsNoKeys(t *testing.T) {
	keys, err := expandQuery(context.Background(), nil, "query")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("expected no keys, got %v", keys)
	}
}

func TestExpandQuery_UnavailableBackendReturnsNoKeys(t *testing.T) {
	keys, err := expandQuery(context.Background(), unavailableLLM{}, "query")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("expected no keys, got %v", keys)
	}
}

func TestExpandQuery_DropsInvalidKeysButKeepsValid(t *testing.T) {
	keys, err := expandQuery(context.Background(), fakeLLM{keysJSON: `"not a valid key", "concept_a ~ relates_to ~ concept_b"`, available: true}, "query")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 1 || keys[0] != "concept_a ~ relates_to ~ concept_b" {
		t.Errorf("expected only the grammatically valid key to survive, got %v", keys)
	}
}

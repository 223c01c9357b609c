package atlas

import (
	"testing"
	"time"

	"github.com/atlasmemory/atlas/internal/search"
)

func TestConsolidationLevelFilter(t *testing.T) {
	cases := map[string]*bool{
		"raw":          boolPtr(false),
		"consolidated": boolPtr(true),
		"":             nil,
		"all":          nil,
	}
	for level, want := range cases {
		got := consolidationLevelFilter(level)
		if (got == nil) != (want == nil) {
			t.Fatalf("level %q: expected nil-ness %v, got %v", level, want == nil, got == nil)
		}
		if got != nil && *got != *want {
			t.Fatalf("level %q: expected %v, got %v", level, *want, *got)
		}
	}
}

func boolPtr(b bool) *bool { return &b }

func TestToSearchResults_PreservesFieldsAndOrder(t *testing.T) {
	now := time.Now().UTC()
	in := []search.Result{
		{ID: "a", Text: "alpha", FilePath: "a.md", ChunkIndex: 0, Score: 0.9, CreatedAt: now, QNTMKey: "x ~ y ~ z"},
		{ID: "b", Text: "beta", FilePath: "b.md", ChunkIndex: 1, Score: 0.5, CreatedAt: now},
	}
	out := toSearchResults(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out))
	}
	if out[0].Text != "alpha" || out[0].QNTMKey != "x ~ y ~ z" || out[0].Score != 0.9 {
		t.Errorf("unexpected first result: %+v", out[0])
	}
	if out[1].FilePath != "b.md" || out[1].ChunkIndex != 1 {
		t.Errorf("unexpected second result: %+v", out[1])
	}
}

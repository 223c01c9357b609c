package chunk

import (
	"strings"
	"testing"
)

// wordTokenizer counts whitespace-separated words, giving deterministic,
// toolchain-independent token counts for tests (the real Tokenizer loads a
// tiktoken encoding table that isn't worth depending on in unit tests).
type wordTokenizer struct{}

func (wordTokenizer) Count(text string) int {
	return len(strings.Fields(text))
}

func TestNewSplitter_ValidatesConfig(t *testing.T) {
	tok := wordTokenizer{}
	if _, err := NewSplitter(Config{ChunkSize: 0}, tok); err == nil {
		t.Error("expected error for zero chunk size")
	}
	if _, err := NewSplitter(Config{ChunkSize: 10, ChunkOverlap: -1}, tok); err == nil {
		t.Error("expected error for negative overlap")
	}
	if _, err := NewSplitter(Config{ChunkSize: 10, ChunkOverlap: 10}, tok); err == nil {
		t.Error("expected error when overlap equals chunk size")
	}
	if _, err := NewSplitter(Config{ChunkSize: 10, ChunkOverlap: 2}, nil); err == nil {
		t.Error("expected error for nil tokenizer")
	}
}

func TestSplit_EmptyInput(t *testing.T) {
	s, err := NewSplitter(DefaultConfig(), wordTokenizer{})
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Split("   \n  "); got != nil {
		t.Errorf("expected nil chunks for blank input, got %v", got)
	}
}

func TestSplit_SmallTextProducesOneChunk(t *testing.T) {
	s, err := NewSplitter(Config{Separators: DefaultSeparators, ChunkSize: 50, ChunkOverlap: 5}, wordTokenizer{})
	if err != nil {
		t.Fatal(err)
	}
	chunks := s.Split("the quick brown fox jumps over the lazy dog")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d: %v", len(chunks), chunks)
	}
	if chunks[0].Index != 0 {
		t.Errorf("expected first chunk index 0, got %d", chunks[0].Index)
	}
}

func TestSplit_PrefersParagraphBoundaries(t *testing.T) {
	s, err := NewSplitter(Config{Separators: DefaultSeparators, ChunkSize: 6, ChunkOverlap: 1}, wordTokenizer{})
	if err != nil {
		t.Fatal(err)
	}
	text := "alpha beta gamma delta\n\nepsilon zeta eta theta\n\niota kappa lambda mu"
	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for long text, got %d", len(chunks))
	}
	for i, c := range chunks {
		if strings.TrimSpace(c.Text) == "" {
			t.Errorf("chunk %d is blank", i)
		}
	}
}

func TestSplit_IndicesAreSequential(t *testing.T) {
	s, err := NewSplitter(Config{Separators: DefaultSeparators, ChunkSize: 4, ChunkOverlap: 1}, wordTokenizer{})
	if err != nil {
		t.Fatal(err)
	}
	chunks := s.Split("one two three four five six seven eight nine ten eleven twelve")
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has Index %d", i, c.Index)
		}
	}
}

func TestSplit_OverlapCarriesTrailingContext(t *testing.T) {
	s, err := NewSplitter(Config{Separators: []string{" "}, ChunkSize: 4, ChunkOverlap: 2}, wordTokenizer{})
	if err != nil {
		t.Fatal(err)
	}
	chunks := s.Split("a b c d e f g h")
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	first := strings.Fields(chunks[0].Text)
	second := strings.Fields(chunks[1].Text)
	tail := first[len(first)-2:]
	if len(second) < 2 || second[0] != tail[0] || second[1] != tail[1] {
		t.Errorf("expected chunk 2 to start with overlap from chunk 1 tail %v, got %v", tail, second)
	}
}

func TestSplit_FallsBackToRuneSplitWhenNoSeparatorFits(t *testing.T) {
	s, err := NewSplitter(Config{Separators: []string{""}, ChunkSize: 3, ChunkOverlap: 1}, charTokenizer{})
	if err != nil {
		t.Fatal(err)
	}
	chunks := s.Split("abcdefghij")
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks from rune fallback, got %d", len(chunks))
	}
}

// charTokenizer counts runes, used to exercise the rune-level fallback path.
type charTokenizer struct{}

func (charTokenizer) Count(text string) int {
	return len([]rune(text))
}

package chunk

import (
	"fmt"
	"strings"
)

// DefaultSeparators is the recursive-split priority order: try to break on
// paragraphs first, then lines, then sentences, then words, and only fall
// back to splitting mid-word when nothing else fits the chunk size.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

const (
	// DefaultChunkSize is the target chunk size in tokens.
	DefaultChunkSize = 768
	// DefaultChunkOverlap is how many trailing tokens of one chunk are
	// repeated at the start of the next.
	DefaultChunkOverlap = 100
)

// Chunk is one windowed piece of a larger text, in source order.
type Chunk struct {
	Index int
	Text  string
}

// Config controls chunk size, overlap and the separator priority list.
type Config struct {
	Separators   []string
	ChunkSize    int
	ChunkOverlap int
}

// DefaultConfig returns spec.md's default chunking parameters.
func DefaultConfig() Config {
	return Config{
		Separators:   DefaultSeparators,
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
	}
}

// Splitter divides text into token-bounded, overlapping chunks.
type Splitter struct {
	cfg Config
	tok Tokenizer
}

// NewSplitter builds a Splitter. tok is required; cfg.Separators defaults to
// DefaultSeparators when empty.
func NewSplitter(cfg Config, tok Tokenizer) (*Splitter, error) {
	if tok == nil {
		return nil, fmt.Errorf("chunk: tokenizer is required")
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk: chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap < 0 {
		return nil, fmt.Errorf("chunk: chunk overlap must not be negative, got %d", cfg.ChunkOverlap)
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("chunk: chunk overlap (%d) must be smaller than chunk size (%d)", cfg.ChunkOverlap, cfg.ChunkSize)
	}
	if len(cfg.Separators) == 0 {
		cfg.Separators = DefaultSeparators
	}
	return &Splitter{cfg: cfg, tok: tok}, nil
}

// Split produces the chunks for text, in order, with Index starting at 0.
// Blank input yields no chunks.
func (s *Splitter) Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	pieces := s.splitRecursive(text, s.cfg.Separators)
	windows := s.mergeWindows(pieces)

	out := make([]Chunk, 0, len(windows))
	for _, w := range windows {
		if strings.TrimSpace(w) == "" {
			continue
		}
		out = append(out, Chunk{Index: len(out), Text: w})
	}
	return out
}

// splitRecursive breaks text on the first separator that actually shrinks
// it below the chunk size, falling through to the next separator in
// priority order for any piece still too large. The empty-string separator
// is the last resort and splits on individual runes.
func (s *Splitter) splitRecursive(text string, seps []string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if s.tok.Count(text) <= s.cfg.ChunkSize {
		return []string{text}
	}
	if len(seps) == 0 {
		return []string{text}
	}

	sep, rest := seps[0], seps[1:]
	var parts []string
	if sep == "" {
		parts = splitIntoRunes(text)
	} else {
		parts = strings.Split(text, sep)
	}

	var out []string
	for i, p := range parts {
		piece := p
		if sep != "" && i < len(parts)-1 {
			piece += sep
		}
		if piece == "" {
			continue
		}
		if s.tok.Count(piece) > s.cfg.ChunkSize {
			out = append(out, s.splitRecursive(piece, rest)...)
		} else {
			out = append(out, piece)
		}
	}
	return out
}

func splitIntoRunes(text string) []string {
	runes := []rune(text)
	out := make([]string, len(runes))
	for i, r := range runes {
		out[i] = string(r)
	}
	return out
}

// mergeWindows greedily packs split pieces into chunk-sized windows,
// carrying the trailing ChunkOverlap tokens of each window into the start
// of the next so concepts spanning a split point survive in at least one
// chunk whole.
func (s *Splitter) mergeWindows(pieces []string) []string {
	if len(pieces) == 0 {
		return nil
	}

	var chunks []string
	var window []string
	windowTokens := 0

	flush := func() {
		if len(window) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(window, ""))
	}

	overlapTail := func() []string {
		var tail []string
		tailTokens := 0
		for i := len(window) - 1; i >= 0 && tailTokens < s.cfg.ChunkOverlap; i-- {
			tail = append([]string{window[i]}, tail...)
			tailTokens += s.tok.Count(window[i])
		}
		return tail
	}

	for _, p := range pieces {
		pt := s.tok.Count(p)
		if windowTokens > 0 && windowTokens+pt > s.cfg.ChunkSize {
			flush()
			window = overlapTail()
			windowTokens = 0
			for _, w := range window {
				windowTokens += s.tok.Count(w)
			}
		}
		window = append(window, p)
		windowTokens += pt
	}
	flush()
	return chunks
}

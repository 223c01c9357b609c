// Package chunk splits ingested file text into overlapping windows sized in
// tokens rather than bytes, so each chunk fits the embedding backend's
// context budget regardless of how dense the source text is.
//
// Splitting is hierarchical: text is recursively divided on a priority list
// of separators (paragraph, line, sentence, word, rune), and the resulting
// pieces are packed into token-bounded windows with a configurable overlap
// so that a concept spanning a chunk boundary still appears in full in at
// least one chunk.
package chunk

// Package embeddings generates vector embeddings for chunk text via an
// OpenAI-compatible HTTP endpoint (OpenAI itself, or a self-hosted TEI
// server behind the same API shape), wrapped with langchaingo.
package embeddings

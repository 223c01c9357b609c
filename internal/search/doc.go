// Package search implements Atlas's multi-modal query layer: semantic
// vector search against a QNTM-key collection or the primary collection,
// optional payload filtering (temporal, consolidation level, equality),
// optional LLM-driven query expansion, and optional reranking.
package search

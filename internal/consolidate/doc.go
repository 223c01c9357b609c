// Package consolidate implements Atlas's consolidation engine: it scrolls
// the primary collection for near-duplicate chunk clusters, classifies
// each cluster with an LLM, and merges accepted clusters into a single
// provenance-carrying chunk while preserving the original chunks and the
// DAG of consolidated -> parents edges between them.
package consolidate

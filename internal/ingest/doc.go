// Package ingest walks a directory tree, chunks each eligible file,
// embeds and QNTM-keys the chunks, and upserts the results into the
// primary collection and every key-derived collection they belong to.
//
// The pipeline runs in four stages per file: hierarchical chunking,
// batch embedding, concurrent QNTM key generation, and a sequential,
// wait=true multi-collection upsert. Batch embedding and generation are
// the two points where a whole file's chunks move together; the final
// upsert is sequential per chunk so a failure partway through a file
// leaves the store in a well-defined, resumable state rather than a
// half-applied batch.
package ingest

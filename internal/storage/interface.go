// Package storage defines the polymorphic vector+metadata store boundary
// that the ingestion, search, and consolidation layers operate against.
package storage

import (
	"context"
	"errors"
)

// Sentinel errors for store operations. Wrap these with atlaserr where a
// Kind classification is needed by a caller.
var (
	ErrCollectionNotFound = errors.New("storage: collection not found")
	ErrCollectionExists   = errors.New("storage: collection already exists")
	ErrDimensionMismatch  = errors.New("storage: vector dimension mismatch")
	ErrInvalidCollection  = errors.New("storage: invalid collection name")
	ErrConnectionFailed   = errors.New("storage: failed to connect to backend")
	ErrIndexNotSupported  = errors.New("storage: backend does not support payload indexes")
)

// Store is the single boundary every pipeline stage (ingest, search,
// consolidate) talks through. Implementations must make CreateCollection
// idempotent under concurrent callers: racing creators converge on one
// collection with the configured dimension.
type Store interface {
	// CollectionExists reports whether name already exists.
	CollectionExists(ctx context.Context, name string) (bool, error)

	// CreateCollection creates name with the given geometry. Idempotent:
	// if the collection already exists with matching dimension, returns
	// nil; if it exists with a different dimension, returns
	// ErrDimensionMismatch.
	CreateCollection(ctx context.Context, name string, cfg CollectionConfig) error

	// GetCollectionInfo returns point count and dimension for name.
	// Returns ErrCollectionNotFound if absent.
	GetCollectionInfo(ctx context.Context, name string) (CollectionInfo, error)

	// Upsert writes points to name. If wait, the call blocks until the
	// points are durable.
	Upsert(ctx context.Context, name string, points []Point, wait bool) error

	// Scroll iterates all points in name. offset is opaque and passed back
	// as nextOffset; pass "" to start. An empty nextOffset signals the end.
	Scroll(ctx context.Context, name string, limit int, offset string, withPayload, withVector bool) (points []Point, nextOffset string, err error)

	// Search ranks points in name by similarity to vector, restricted by
	// filter (nil for no filter).
	Search(ctx context.Context, name string, vector []float32, limit int, filter *Filter, withPayload bool) ([]ScoredPoint, error)

	// Delete removes points by id from name. Idempotent.
	Delete(ctx context.Context, name string, ids []string) error

	// CreatePayloadIndex declares an index on field in name. Backends that
	// do not support payload indexes must no-op and return nil.
	CreatePayloadIndex(ctx context.Context, name, field string, schema PayloadFieldSchema) error

	// SetHNSWM updates the HNSW graph's M parameter for name, used to
	// toggle batch-load mode (M=0) and rebuild-on-exit (M=M_DEFAULT).
	SetHNSWM(ctx context.Context, name string, m int) error

	// Close releases backend connections.
	Close() error
}

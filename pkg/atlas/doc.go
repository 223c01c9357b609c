// Package atlas is Atlas's Application Service: the single object that
// wires the backend registry (internal/atlascontext), ingestion pipeline
// (internal/ingest), search layer (internal/search) and consolidation
// engine (internal/consolidate) behind the external-interface methods
// (atlas.ingest, atlas.search, atlas.consolidate, atlas.timeline,
// atlas.generateQNTM, atlas.health, atlas.status, atlas.subscribe /
// atlas.unsubscribe). internal/rpc is a thin JSON-RPC transport over this
// package; anything reachable over the socket is reachable here first.
package atlas

// Package events is the in-process notification bus behind atlas.subscribe
// and atlas.unsubscribe. It is a single-process subscriber list, not a
// distributed bus: grounded on the teacher's pkg/mcp.HandleSSE (channel
// subscribe, pattern-scoped subject, heartbeat-friendly select loop) but
// over Go channels instead of NATS, since nothing in this system needs a
// message broker shared across processes.
package events

// Package atlascontext is the process-wide backend registry: one Context
// per atlasd process, holding the storage, embedding and LLM backends the
// rest of the system depends on.
//
// Backends resolve lazily and once: the first caller to ask for a backend
// pays the dial/health-check cost and every later caller gets the same
// instance, including the error if resolution failed. This lets atlasd
// start up even when an optional backend (the LLM, used only for QNTM
// generation and consolidation) isn't reachable yet, deferring the failure
// to the first operation that actually needs it rather than refusing to
// boot.
//
// Capabilities reports which optional features the current configuration
// supports, so callers can skip a feature cleanly instead of hitting a
// configuration error deep in a request.
package atlascontext

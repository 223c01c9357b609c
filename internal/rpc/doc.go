// Package rpc is Atlas's external interface: a newline-delimited JSON-RPC
// 2.0 server over a Unix domain socket. It is a thin transport over
// pkg/atlas.App — every method here does request decoding, dispatch, and
// response encoding, never business logic.
//
// Grounded on the teacher's pkg/server (graceful Start/Shutdown over a
// cancellable context) and pkg/mcp/stdio (delegating request handlers,
// one method per external operation), adapted from Echo-over-HTTP and
// stdio framing to net.Listen("unix", ...) with bufio.Scanner/json.Encoder
// framing, since spec.md names a Unix socket transport.
package rpc

package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/atlasmemory/atlas/internal/events"
	"github.com/atlasmemory/atlas/pkg/atlas"
)

// Application is the subset of pkg/atlas.App the RPC transport depends on,
// declared locally so the server can be tested against a fake without
// dialing real backends.
type Application interface {
	Ingest(ctx context.Context, req atlas.IngestRequest) (atlas.IngestResponse, error)
	Search(ctx context.Context, req atlas.SearchRequest) ([]atlas.SearchResult, error)
	Timeline(ctx context.Context, req atlas.TimelineRequest) ([]atlas.SearchResult, error)
	Consolidate(ctx context.Context, req atlas.ConsolidateRequest) (atlas.ConsolidateResponse, error)
	GenerateQNTM(ctx context.Context, req atlas.GenerateQNTMRequest) (atlas.GenerateQNTMResponse, error)
	Health(ctx context.Context) atlas.HealthResponse
	Status(ctx context.Context) (atlas.StatusResponse, error)
	Subscribe(patterns []string) (uint64, <-chan events.Event)
	Unsubscribe(id uint64)
}

var _ Application = (*atlas.App)(nil)

// methodError pairs a JSON-RPC error code with the message to send,
// distinguishing malformed requests (invalid params) from method failures
// (internal error) in dispatch's caller.
type methodError struct {
	code    int
	message string
}

func (e *methodError) Error() string { return e.message }

func invalidParams(err error) *methodError {
	return &methodError{code: codeInvalidParams, message: fmt.Sprintf("invalid params: %v", err)}
}

func internalError(err error) *methodError {
	return &methodError{code: codeInternalError, message: err.Error()}
}

// dispatch decodes params and invokes the named method against app. The
// subscribe/unsubscribe methods are handled by the connection handler
// directly (they need the connection's notification channel), not here.
func dispatch(ctx context.Context, app Application, method string, params json.RawMessage) (any, *methodError) {
	switch method {
	case "atlas.ingest":
		var req atlas.IngestRequest
		if err := unmarshalParams(params, &req); err != nil {
			return nil, invalidParams(err)
		}
		resp, err := app.Ingest(ctx, req)
		if err != nil {
			return nil, internalError(err)
		}
		return resp, nil

	case "atlas.search":
		var req atlas.SearchRequest
		if err := unmarshalParams(params, &req); err != nil {
			return nil, invalidParams(err)
		}
		results, err := app.Search(ctx, req)
		if err != nil {
			return nil, internalError(err)
		}
		return results, nil

	case "atlas.timeline":
		var req atlas.TimelineRequest
		if err := unmarshalParams(params, &req); err != nil {
			return nil, invalidParams(err)
		}
		results, err := app.Timeline(ctx, req)
		if err != nil {
			return nil, internalError(err)
		}
		return results, nil

	case "atlas.consolidate":
		var req atlas.ConsolidateRequest
		if err := unmarshalParams(params, &req); err != nil {
			return nil, invalidParams(err)
		}
		resp, err := app.Consolidate(ctx, req)
		if err != nil {
			return nil, internalError(err)
		}
		return resp, nil

	case "atlas.generateQNTM":
		var req atlas.GenerateQNTMRequest
		if err := unmarshalParams(params, &req); err != nil {
			return nil, invalidParams(err)
		}
		resp, err := app.GenerateQNTM(ctx, req)
		if err != nil {
			return nil, internalError(err)
		}
		return resp, nil

	case "atlas.health":
		return app.Health(ctx), nil

	case "atlas.status":
		resp, err := app.Status(ctx)
		if err != nil {
			return nil, internalError(err)
		}
		return resp, nil

	default:
		return nil, &methodError{code: codeMethodNotFound, message: fmt.Sprintf("unknown method %q", method)}
	}
}

// unmarshalParams treats an absent/empty params frame as a zero-value
// request rather than a parse error, since several methods (atlas.health,
// atlas.status) take no params at all.
func unmarshalParams(params json.RawMessage, out any) error {
	if len(params) == 0 {
		return nil
	}
	return json.Unmarshal(params, out)
}

package atlas

import (
	"context"
	"time"
)

const (
	serviceOK          = "ok"
	serviceUnavailable = "unavailable"
	serviceUnhealthy   = "unhealthy"
)

// Health runs atlas.health: storage and the embedding backend are required
// (either failing makes the overall verdict unhealthy); the LLM backend is
// optional (json_llm degrades QNTM generation and consolidation, not search
// or ingestion's core path, so its absence is reported but only degrades
// the overall verdict rather than failing it), generalizing the teacher's
// multi-backend health aggregation (internal/vectorstore/health.go,
// internal/http/server.go's handleHealth) to Atlas's three backend classes.
func (a *App) Health(ctx context.Context) HealthResponse {
	services := make(map[string]string, 3)
	requiredUnhealthy := false

	if store, err := a.ctx.Store(ctx); err != nil {
		services["storage"] = serviceUnhealthy
		requiredUnhealthy = true
	} else if _, err := store.CollectionExists(ctx, a.cfg.Storage.PrimaryCollection); err != nil {
		services["storage"] = serviceUnhealthy
		requiredUnhealthy = true
	} else {
		services["storage"] = serviceOK
	}

	if _, err := a.ctx.Embedder(ctx); err != nil {
		services["embedding"] = serviceUnhealthy
		requiredUnhealthy = true
	} else {
		services["embedding"] = serviceOK
	}

	degraded := false
	backend, err := a.ctx.LLM()
	switch {
	case err != nil:
		services["llm"] = serviceUnavailable
		degraded = true
	case !backend.Available():
		services["llm"] = serviceUnavailable
		degraded = true
	default:
		services["llm"] = serviceOK
	}

	overall := HealthHealthy
	switch {
	case requiredUnhealthy:
		overall = HealthUnhealthy
	case degraded:
		overall = HealthDegraded
	}

	return HealthResponse{
		Overall:   overall,
		Timestamp: time.Now().UTC(),
		Services:  services,
	}
}

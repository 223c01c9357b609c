package atlas

import "context"

// Status runs atlas.status: collection size, storage connection parameters
// and a per-backend availability summary, generalizing the teacher's
// internal/http.handleStatus (per-service "ok"/"unavailable" map) from a
// fixed service registry to Atlas's backend set.
func (a *App) Status(ctx context.Context) (StatusResponse, error) {
	store, err := a.ctx.Store(ctx)
	if err != nil {
		return StatusResponse{}, err
	}

	info, err := store.GetCollectionInfo(ctx, a.cfg.Storage.PrimaryCollection)
	if err != nil {
		return StatusResponse{}, err
	}

	backends := map[string]string{"storage": serviceOK}
	if _, err := a.ctx.Embedder(ctx); err != nil {
		backends["embedding"] = serviceUnhealthy
	} else {
		backends["embedding"] = serviceOK
	}
	if llmBackend, err := a.ctx.LLM(); err != nil || !llmBackend.Available() {
		backends["llm"] = serviceUnavailable
	} else {
		backends["llm"] = serviceOK
	}

	return StatusResponse{
		Collection: CollectionStatus{
			Name:        info.Name,
			TotalChunks: info.PointCount,
			Dimension:   info.Dimension,
		},
		Storage: StorageStatus{
			Backend: a.cfg.Storage.Backend,
			Host:    a.cfg.Storage.Host,
			Port:    a.cfg.Storage.Port,
		},
		Backends: backends,
	}, nil
}

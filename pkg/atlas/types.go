package atlas

import "time"

// IngestRequest mirrors atlas.ingest's params.
type IngestRequest struct {
	Paths                  []string `json:"paths"`
	Recursive              bool     `json:"recursive,omitempty"`
	RootDir                string   `json:"rootDir,omitempty"`
	Watch                  bool     `json:"watch,omitempty"`
	Verbose                bool     `json:"verbose,omitempty"`
	ConsolidationThreshold int      `json:"consolidationThreshold,omitempty"`
	AllowConsolidation     *bool    `json:"allowConsolidation,omitempty"`
}

// IngestResponse mirrors atlas.ingest's result.
type IngestResponse struct {
	FilesProcessed int      `json:"filesProcessed"`
	ChunksStored   int      `json:"chunksStored"`
	Errors         []string `json:"errors"`
}

// SearchRequest mirrors atlas.search's params.
type SearchRequest struct {
	Query              string     `json:"query"`
	Limit              int        `json:"limit,omitempty"`
	Since              *time.Time `json:"since,omitempty"`
	QNTMKey            string     `json:"qntmKey,omitempty"`
	Rerank             bool       `json:"rerank,omitempty"`
	ConsolidationLevel string     `json:"consolidationLevel,omitempty"`
	ContentType        string     `json:"contentType,omitempty"`
	AgentRole          string     `json:"agentRole,omitempty"`
	Temperature        float64    `json:"temperature,omitempty"`
	ExpandQuery        bool       `json:"expandQuery,omitempty"`
}

// SearchResult mirrors one entry of atlas.search's / atlas.timeline's result.
type SearchResult struct {
	Text       string    `json:"text"`
	FilePath   string    `json:"filePath"`
	ChunkIndex int       `json:"chunkIndex"`
	Score      float32   `json:"score"`
	CreatedAt  time.Time `json:"createdAt"`
	QNTMKey    string    `json:"qntmKey,omitempty"`
}

// TimelineRequest mirrors atlas.timeline's params.
type TimelineRequest struct {
	Since time.Time `json:"since"`
	Limit int       `json:"limit,omitempty"`
}

// ConsolidateRequest mirrors atlas.consolidate's params. Threshold overrides
// the configured similarity threshold for this pass only.
type ConsolidateRequest struct {
	DryRun    bool    `json:"dryRun,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
}

// ConsolidateResponse mirrors atlas.consolidate's result.
type ConsolidateResponse struct {
	CandidatesEvaluated     int `json:"candidatesEvaluated"`
	ConsolidationsPerformed int `json:"consolidationsPerformed"`
	ChunksAbsorbed          int `json:"chunksAbsorbed"`
}

// GenerateQNTMRequest mirrors atlas.generateQNTM's params.
type GenerateQNTMRequest struct {
	Text         string   `json:"text"`
	ExistingKeys []string `json:"existingKeys,omitempty"`
	Context      string   `json:"context,omitempty"`
}

// GenerateQNTMResponse mirrors atlas.generateQNTM's result.
type GenerateQNTMResponse struct {
	Keys      []string `json:"keys"`
	Reasoning string   `json:"reasoning,omitempty"`
}

// HealthStatus is the overall health verdict atlas.health reports.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// HealthResponse mirrors atlas.health's result.
type HealthResponse struct {
	Overall   HealthStatus      `json:"overall"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

// CollectionStatus reports point counts for one collection.
type CollectionStatus struct {
	Name        string `json:"name"`
	TotalChunks int    `json:"totalChunks"`
	Dimension   int    `json:"dimension"`
}

// StorageStatus reports the storage backend's connection parameters.
type StorageStatus struct {
	Backend string `json:"backend"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// StatusResponse mirrors atlas.status's result.
type StatusResponse struct {
	Collection CollectionStatus  `json:"collection"`
	Storage    StorageStatus     `json:"storage"`
	Backends   map[string]string `json:"backends"`
}

// SubscribeRequest mirrors atlas.subscribe's / atlas.unsubscribe's params.
type SubscribeRequest struct {
	Events []string `json:"events"`
}

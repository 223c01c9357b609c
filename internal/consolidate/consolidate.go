package consolidate

import (
	"context"
	"fmt"
	"time"

	"github.com/atlasmemory/atlas/internal/atlaserr"
	"github.com/atlasmemory/atlas/internal/embeddings"
	"github.com/atlasmemory/atlas/internal/logging"
	"github.com/atlasmemory/atlas/internal/qntm"
	"github.com/atlasmemory/atlas/internal/storage"
	"go.uber.org/zap"
)

// jsonBackend is the subset of llm.JSONBackend consolidate depends on,
// declared locally so tests can supply a minimal double without importing
// internal/llm's concrete client.
type jsonBackend interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Available() bool
}

// clusterMember is one chunk pulled into a candidate cluster.
type clusterMember struct {
	ID        string
	Text      string
	FilePath  string
	CreatedAt string
	Keys      []string
}

const (
	defaultSimilarityThreshold = 0.88
	defaultConfidenceFloor     = 0.6
	defaultMaxUnionKeys        = 10
	scrollPageSize             = 256
)

// ProposedMerge describes one cluster's classification and synthesis
// outcome, whether or not it was actually written (see Report.DryRun).
type ProposedMerge struct {
	MemberIDs       []string
	Type            ClassificationType
	Direction       string
	Confidence      float64
	SynthesizedText string
	NewID           string
}

// Report summarizes one consolidation pass.
type Report struct {
	DryRun                  bool
	CandidatesEvaluated     int
	ConsolidationsPerformed int
	ChunksAbsorbed          int
	ProposedMerges          []ProposedMerge
}

// Consolidator runs consolidation passes over one storage backend.
type Consolidator struct {
	Store               storage.Store
	Embedder            embeddings.Embedder
	LLM                 jsonBackend
	PrimaryCollection   string
	HNSW                storage.HNSWParams
	Quantization        *storage.QuantizationConfig
	SimilarityThreshold float64
	ConfidenceFloor     float64
	MaxUnionKeys        int
	Logger              *logging.Logger
}

// Trigger runs a non-dry-run consolidation pass, satisfying
// ingest.ConsolidationTrigger so the auto-consolidation counter can invoke
// it without ingest depending on this package's types.
func (c *Consolidator) Trigger(ctx context.Context) error {
	_, err := c.Run(ctx, false)
	return err
}

// Run scrolls the primary collection, clusters near-duplicate chunks,
// classifies and (unless dryRun) merges each accepted cluster. A failed
// cluster aborts only that cluster; the pass continues over the rest.
func (c *Consolidator) Run(ctx context.Context, dryRun bool) (*Report, error) {
	if c.LLM == nil || !c.LLM.Available() {
		return nil, atlaserr.New(atlaserr.KindConsolidation, "consolidate.Run", fmt.Errorf("no json_llm backend configured"))
	}

	points, err := c.scrollAll(ctx)
	if err != nil {
		return nil, atlaserr.New(atlaserr.KindConsolidation, "scrolling primary collection", err)
	}

	byID := make(map[string]storage.Point, len(points))
	for _, p := range points {
		byID[p.ID] = p
	}

	report := &Report{DryRun: dryRun, CandidatesEvaluated: len(points)}

	candidates := make([]storage.Point, 0, len(points))
	for _, p := range points {
		if payloadBool(p.Payload, "consolidated") {
			continue
		}
		candidates = append(candidates, p)
	}

	clusters := clusterBySimilarity(candidates, c.similarityThreshold())
	for _, cluster := range clusters {
		if len(cluster) < 2 {
			continue
		}
		if clusterCreatesCycle(cluster, byID) {
			c.logWarn(ctx, "skipping cluster that would violate DAG invariant", cluster, nil)
			continue
		}

		members := make([]clusterMember, len(cluster))
		for i, id := range cluster {
			p := byID[id]
			members[i] = clusterMember{
				ID:        id,
				Text:      payloadString(p.Payload, "text"),
				FilePath:  payloadString(p.Payload, "file_path"),
				CreatedAt: payloadString(p.Payload, "created_at"),
				Keys:      payloadKeys(p.Payload),
			}
		}

		classification, err := classifyCluster(ctx, c.LLM, members)
		if err != nil {
			c.logWarn(ctx, "classification failed, skipping cluster", cluster, err)
			continue
		}
		if classification.Confidence < c.confidenceFloor() {
			continue
		}

		text, reasoning, err := synthesize(ctx, c.LLM, members)
		if err != nil {
			c.logWarn(ctx, "synthesis failed, skipping cluster", cluster, err)
			continue
		}

		memberKeys := make([][]string, len(members))
		for i, m := range members {
			memberKeys[i] = m.Keys
		}
		keys := unionKeys(memberKeys, c.maxUnionKeys())
		newID := consolidatedID(cluster, text)

		merge := ProposedMerge{
			MemberIDs:       cluster,
			Type:            classification.Type,
			Direction:       classification.Direction,
			Confidence:      classification.Confidence,
			SynthesizedText: text,
			NewID:           newID,
		}

		if !dryRun {
			if err := c.applyMerge(ctx, newID, cluster, keys, text, reasoning, classification, byID); err != nil {
				c.logWarn(ctx, "applying merge failed, skipping cluster", cluster, err)
				continue
			}
			report.ConsolidationsPerformed++
			report.ChunksAbsorbed += len(cluster)
		}

		report.ProposedMerges = append(report.ProposedMerges, merge)
	}

	return report, nil
}

// applyMerge embeds the synthesized text, writes the consolidated chunk to
// the primary collection and every unioned-key collection, and marks each
// parent consolidated=true in place. On failure after the consolidated
// chunk was written, it best-effort deletes the new id so a partial write
// doesn't leave an orphaned, unparented chunk behind.
func (c *Consolidator) applyMerge(ctx context.Context, newID string, parents, keys []string, text, reasoning string, classification Classification, byID map[string]storage.Point) error {
	vector, err := c.Embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return fmt.Errorf("embedding synthesized text: %w", err)
	}

	point := storage.Point{
		ID:     newID,
		Vector: vector[0],
		Payload: map[string]any{
			"text":                    text,
			"qntm_keys":               keys,
			"created_at":              time.Now().UTC().Format(time.RFC3339Nano),
			"consolidated":            true,
			"parents":                 parents,
			"consolidation_from":      parents,
			"consolidation_type":      string(classification.Type),
			"consolidation_direction": classification.Direction,
			"consolidation_reasoning": reasoning,
		},
	}

	if err := c.Store.Upsert(ctx, c.PrimaryCollection, []storage.Point{point}, true); err != nil {
		return fmt.Errorf("upserting consolidated chunk to primary collection: %w", err)
	}

	for _, key := range keys {
		collection := qntm.Sanitize(key)
		if err := c.Store.CreateCollection(ctx, collection, storage.CollectionConfig{
			Dimension:    c.Embedder.Dimension(),
			HNSW:         c.HNSW,
			Quantization: c.Quantization,
		}); err != nil {
			c.rollback(ctx, newID, keys)
			return fmt.Errorf("ensuring collection %s: %w", collection, err)
		}
		if err := c.Store.Upsert(ctx, collection, []storage.Point{point}, true); err != nil {
			c.rollback(ctx, newID, keys)
			return fmt.Errorf("upserting consolidated chunk to collection %s: %w", collection, err)
		}
	}

	if err := c.markParentsConsolidated(ctx, parents, byID); err != nil {
		c.rollback(ctx, newID, keys)
		return fmt.Errorf("marking parents consolidated: %w", err)
	}

	return nil
}

func (c *Consolidator) rollback(ctx context.Context, newID string, keys []string) {
	collections := []string{c.PrimaryCollection}
	for _, key := range keys {
		collections = append(collections, qntm.Sanitize(key))
	}
	for _, collection := range collections {
		if err := c.Store.Delete(ctx, collection, []string{newID}); err != nil && c.Logger != nil {
			c.Logger.Warn(ctx, "best-effort rollback of consolidated chunk failed", zap.String("collection", collection), zap.String("id", newID), zap.Error(err))
		}
	}
}

// markParentsConsolidated re-upserts each parent with consolidated=true,
// preserving its vector and the rest of its payload via byID (the same
// scroll snapshot Run already took, so this needs no extra round trip).
func (c *Consolidator) markParentsConsolidated(ctx context.Context, parents []string, byID map[string]storage.Point) error {
	for _, id := range parents {
		p, ok := byID[id]
		if !ok {
			continue
		}
		payload := clonePayload(p.Payload)
		payload["consolidated"] = true
		if err := c.Store.Upsert(ctx, c.PrimaryCollection, []storage.Point{{ID: p.ID, Vector: p.Vector, Payload: payload}}, true); err != nil {
			return err
		}
	}
	return nil
}

func (c *Consolidator) scrollAll(ctx context.Context) ([]storage.Point, error) {
	var all []storage.Point
	offset := ""
	for {
		points, next, err := c.Store.Scroll(ctx, c.PrimaryCollection, scrollPageSize, offset, true, true)
		if err != nil {
			return nil, err
		}
		all = append(all, points...)
		if next == "" {
			break
		}
		offset = next
	}
	return all, nil
}

func (c *Consolidator) similarityThreshold() float64 {
	if c.SimilarityThreshold <= 0 {
		return defaultSimilarityThreshold
	}
	return c.SimilarityThreshold
}

func (c *Consolidator) confidenceFloor() float64 {
	if c.ConfidenceFloor <= 0 {
		return defaultConfidenceFloor
	}
	return c.ConfidenceFloor
}

func (c *Consolidator) maxUnionKeys() int {
	if c.MaxUnionKeys <= 0 {
		return defaultMaxUnionKeys
	}
	return c.MaxUnionKeys
}

func (c *Consolidator) logWarn(ctx context.Context, msg string, cluster []string, err error) {
	if c.Logger == nil {
		return
	}
	fields := []zap.Field{zap.Strings("cluster", cluster)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	c.Logger.Warn(ctx, msg, fields...)
}

func payloadString(payload map[string]any, field string) string {
	s, _ := payload[field].(string)
	return s
}

func payloadKeys(payload map[string]any) []string {
	switch v := payload["qntm_keys"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func payloadBool(payload map[string]any, field string) bool {
	b, _ := payload[field].(bool)
	return b
}

func clonePayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}

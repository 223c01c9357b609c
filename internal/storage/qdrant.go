package storage

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// collectionNamePattern mirrors the sanitized QNTM collection-name charset:
// lowercase letters, digits, underscore, hyphen, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// QdrantConfig configures the gRPC connection to a Qdrant instance.
type QdrantConfig struct {
	Host                    string
	Port                    int
	APIKey                  string
	UseTLS                  bool
	MaxRetries              int
	RetryBackoff            time.Duration
	MaxMessageSize          int
	CircuitBreakerThreshold int
}

// ApplyDefaults fills unset fields with production-safe defaults.
func (c *QdrantConfig) ApplyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.CircuitBreakerThreshold == 0 {
		c.CircuitBreakerThreshold = 5
	}
}

// ValidateCollectionName rejects names outside the sanitized QNTM charset.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidCollection)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must match ^[a-z0-9_-]{1,64}$", ErrInvalidCollection, name)
	}
	return nil
}

// isTransientError reports whether err is a retriable gRPC condition.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore implements Store over Qdrant's native gRPC client.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig

	collections sync.Map // name -> cached dimension (int)

	circuitBreaker struct {
		mu       sync.Mutex
		failures int
		lastFail time.Time
	}
}

// NewQdrantStore dials Qdrant and verifies connectivity with a health
// check before returning.
func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	cfg.ApplyDefaults()

	dialOpts := []grpc.DialOption{
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
			grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
		),
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:        cfg.Host,
		Port:        cfg.Port,
		APIKey:      cfg.APIKey,
		UseTLS:      cfg.UseTLS,
		GrpcOptions: dialOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &QdrantStore{client: client, config: cfg}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check failed: %v", ErrConnectionFailed, err)
	}

	return store, nil
}

func (s *QdrantStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// retryOperation retries a transient-failing operation with exponential
// backoff, tripping a per-store circuit breaker after repeated failures.
func (s *QdrantStore) retryOperation(ctx context.Context, op string, fn func() error) error {
	backoff := s.config.RetryBackoff

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			s.resetCircuitBreaker()
			return nil
		}

		if s.isCircuitOpen() {
			return fmt.Errorf("%s: circuit breaker open", op)
		}
		if !isTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", op, err)
		}

		s.recordFailure()
		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", op, s.config.MaxRetries, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", op, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

func (s *QdrantStore) recordFailure() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures++
	s.circuitBreaker.lastFail = time.Now()
}

func (s *QdrantStore) resetCircuitBreaker() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures = 0
}

func (s *QdrantStore) isCircuitOpen() bool {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	if s.circuitBreaker.failures >= s.config.CircuitBreakerThreshold {
		if time.Since(s.circuitBreaker.lastFail) > 30*time.Second {
			s.circuitBreaker.failures = 0
			return false
		}
		return true
	}
	return false
}

func (s *QdrantStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	if err := ValidateCollectionName(name); err != nil {
		return false, err
	}
	if _, ok := s.collections.Load(name); ok {
		return true, nil
	}

	var exists bool
	err := s.retryOperation(ctx, "collection_exists", func() error {
		info, err := s.client.GetCollectionInfo(ctx, name)
		if err != nil {
			if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
				exists = false
				return nil
			}
			return err
		}
		exists = info != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("checking collection %s: %w", name, err)
	}
	return exists, nil
}

// CreateCollection is idempotent: if name already exists, its dimension is
// verified against cfg.Dimension and ErrDimensionMismatch is returned on
// mismatch (a fatal configuration error upstream); a racing create that
// converges on the same dimension is treated as success.
func (s *QdrantStore) CreateCollection(ctx context.Context, name string, cfg CollectionConfig) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}

	exists, err := s.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		info, err := s.GetCollectionInfo(ctx, name)
		if err != nil {
			return err
		}
		if info.Dimension != cfg.Dimension {
			return fmt.Errorf("%w: collection %s has dimension %d, configured %d", ErrDimensionMismatch, name, info.Dimension, cfg.Dimension)
		}
		return nil
	}

	m := uint64(cfg.HNSW.M)
	efConstruct := uint64(cfg.HNSW.EfConstruct)

	create := &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(cfg.Dimension),
			Distance: qdrant.Distance_Dot,
		}),
		HnswConfig: &qdrant.HnswConfigDiff{
			M:           &m,
			EfConstruct: &efConstruct,
		},
	}

	if cfg.Quantization != nil && cfg.Quantization.Enabled {
		create.QuantizationConfig = qdrant.NewQuantizationScalar(&qdrant.ScalarQuantization{
			Type:      qdrant.QuantizationType_Int8,
			Quantile:  qdrant.PtrOf(float32(cfg.Quantization.Quantile)),
			AlwaysRam: qdrant.PtrOf(cfg.Quantization.AlwaysRAM),
		})
	}

	err = s.retryOperation(ctx, "create_collection", func() error {
		createErr := s.client.CreateCollection(ctx, create)
		if createErr != nil {
			if st, ok := status.FromError(createErr); ok && st.Code() == grpccodes.AlreadyExists {
				return nil
			}
			return createErr
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}

	s.collections.Store(name, cfg.Dimension)
	return nil
}

func (s *QdrantStore) GetCollectionInfo(ctx context.Context, name string) (CollectionInfo, error) {
	if err := ValidateCollectionName(name); err != nil {
		return CollectionInfo{}, err
	}

	var info CollectionInfo
	err := s.retryOperation(ctx, "get_collection_info", func() error {
		collInfo, err := s.client.GetCollectionInfo(ctx, name)
		if err != nil {
			if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
				return ErrCollectionNotFound
			}
			return err
		}
		pointCount := 0
		if collInfo.PointsCount != nil {
			pointCount = int(*collInfo.PointsCount)
		}
		dimension := 0
		if params := collInfo.GetConfig().GetParams().GetVectorsConfig().GetParams(); params != nil {
			dimension = int(params.GetSize())
		}
		info = CollectionInfo{Name: name, PointCount: pointCount, Dimension: dimension}
		return nil
	})
	if err != nil {
		if err == ErrCollectionNotFound {
			return CollectionInfo{}, ErrCollectionNotFound
		}
		return CollectionInfo{}, fmt.Errorf("getting collection info for %s: %w", name, err)
	}
	return info, nil
}

func (s *QdrantStore) Upsert(ctx context.Context, name string, points []Point, wait bool) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}

	qpoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		qpoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: mapToPayload(p.Payload),
		}
	}

	return s.retryOperation(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: name,
			Points:         qpoints,
			Wait:           qdrant.PtrOf(wait),
		})
		return err
	})
}

func (s *QdrantStore) Scroll(ctx context.Context, name string, limit int, offset string, withPayload, withVector bool) ([]Point, string, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, "", err
	}

	req := &qdrant.ScrollPoints{
		CollectionName: name,
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(withPayload),
		WithVectors:    qdrant.NewWithVectors(withVector),
	}
	if offset != "" {
		req.Offset = qdrant.NewIDUUID(offset)
	}

	var scrolled []*qdrant.RetrievedPoint
	err := s.retryOperation(ctx, "scroll", func() error {
		resp, err := s.client.Scroll(ctx, req)
		if err != nil {
			return err
		}
		scrolled = resp
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("scrolling collection %s: %w", name, err)
	}

	points := make([]Point, len(scrolled))
	for i, rp := range scrolled {
		points[i] = Point{
			ID:      pointIDString(rp.GetId()),
			Payload: payloadToMap(rp.GetPayload()),
		}
		if withVector {
			points[i].Vector = rp.GetVectors().GetVector().GetData()
		}
	}

	nextOffset := ""
	if len(scrolled) == limit && limit > 0 {
		nextOffset = pointIDString(scrolled[len(scrolled)-1].GetId())
	}

	return points, nextOffset, nil
}

func (s *QdrantStore) Search(ctx context.Context, name string, vector []float32, limit int, filter *Filter, withPayload bool) ([]ScoredPoint, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("storage: limit must be positive, got %d", limit)
	}

	var qfilter *qdrant.Filter
	if filter != nil && len(filter.Must) > 0 {
		conditions := make([]*qdrant.Condition, 0, len(filter.Must))
		for _, c := range filter.Must {
			conditions = append(conditions, conditionToQdrant(c))
		}
		qfilter = &qdrant.Filter{Must: conditions}
	}

	var results []*qdrant.ScoredPoint
	err := s.retryOperation(ctx, "search", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: name,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(limit)),
			WithPayload:    qdrant.NewWithPayload(withPayload),
			Filter:         qfilter,
		})
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("searching collection %s: %w", name, err)
	}

	out := make([]ScoredPoint, len(results))
	for i, r := range results {
		out[i] = ScoredPoint{
			Point: Point{
				ID:      pointIDString(r.GetId()),
				Payload: payloadToMap(r.GetPayload()),
			},
			Score: r.GetScore(),
		}
	}
	return out, nil
}

// payloadToMap converts Qdrant's typed payload values to plain Go values,
// mirroring the value-kind switch used for search result extraction.
func payloadToMap(payload map[string]*qdrant.Value) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		switch val := v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			out[k] = val.StringValue
		case *qdrant.Value_IntegerValue:
			out[k] = val.IntegerValue
		case *qdrant.Value_DoubleValue:
			out[k] = val.DoubleValue
		case *qdrant.Value_BoolValue:
			out[k] = val.BoolValue
		case *qdrant.Value_ListValue:
			items := make([]any, 0, len(val.ListValue.GetValues()))
			for _, lv := range val.ListValue.GetValues() {
				items = append(items, payloadToMap(map[string]*qdrant.Value{"_": lv})["_"])
			}
			out[k] = items
		}
	}
	return out
}

// mapToPayload encodes plain Go values into Qdrant's typed payload map for
// upsert. Supported value kinds: string, bool, int/int64, float64, and
// []string (encoded as a list of string values).
func mapToPayload(m map[string]any) map[string]*qdrant.Value {
	out := make(map[string]*qdrant.Value, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
		case bool:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
		case int:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
		case int64:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
		case float64:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
		case []string:
			values := make([]*qdrant.Value, len(val))
			for i, s := range val {
				values[i] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
			}
			out[k] = &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}
		default:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprintf("%v", val)}}
		}
	}
	return out
}

func (s *QdrantStore) Delete(ctx context.Context, name string, ids []string) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDUUID(id))
	}

	return s.retryOperation(ctx, "delete", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: name,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Points{
					Points: &qdrant.PointsIdsList{Ids: pointIDs},
				},
			},
		})
		return err
	})
}

func (s *QdrantStore) CreatePayloadIndex(ctx context.Context, name, field string, schema PayloadFieldSchema) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}

	var fieldType qdrant.FieldType
	switch schema {
	case PayloadSchemaKeyword:
		fieldType = qdrant.FieldType_FieldTypeKeyword
	case PayloadSchemaDatetime:
		fieldType = qdrant.FieldType_FieldTypeDatetime
	case PayloadSchemaBool:
		fieldType = qdrant.FieldType_FieldTypeBool
	default:
		return fmt.Errorf("storage: unknown payload schema %q", schema)
	}

	return s.retryOperation(ctx, "create_payload_index", func() error {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: name,
			FieldName:      field,
			FieldType:      &fieldType,
		})
		return err
	})
}

// SetHNSWM toggles the HNSW graph's M parameter, used by the scoped batch
// mode helper in batchmode.go to disable/rebuild the index around a bulk
// upsert.
func (s *QdrantStore) SetHNSWM(ctx context.Context, name string, m int) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	mVal := uint64(m)
	return s.retryOperation(ctx, "update_collection_hnsw", func() error {
		_, err := s.client.UpdateCollection(ctx, &qdrant.UpdateCollection{
			CollectionName: name,
			HnswConfig:     &qdrant.HnswConfigDiff{M: &mVal},
		})
		return err
	})
}

func conditionToQdrant(c Condition) *qdrant.Condition {
	if c.Range {
		return &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: c.Field,
					Range: &qdrant.Range{
						Gte: qdrant.PtrOf(float64(c.After.Unix())),
						Lt:  qdrant.PtrOf(float64(c.Before.Unix())),
					},
				},
			},
		}
	}

	switch v := c.Value.(type) {
	case string:
		return &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   c.Field,
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: v}},
				},
			},
		}
	case bool:
		return &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   c.Field,
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: v}},
				},
			},
		}
	default:
		return &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   c.Field,
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: fmt.Sprintf("%v", v)}},
				},
			},
		}
	}
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return fmt.Sprintf("%d", id.GetNum())
}

var _ Store = (*QdrantStore)(nil)

package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/ragstore/internal/logging"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("ragstore.vectorstore.qdrant")

// QdrantConfig holds configuration for the Qdrant gRPC store.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string `koanf:"host"`

	// Port is the Qdrant gRPC port (NOT HTTP REST port).
	// Default: 6334 (gRPC), not 6333 (HTTP)
	Port int `koanf:"port"`

	// CollectionName is the collection all operations are bound to.
	CollectionName string `koanf:"collection"`

	// VectorSize is the dimensionality of embeddings.
	// MUST match the embedding provider's output dimensions.
	VectorSize uint64 `koanf:"vector_size"`

	// UseTLS enables TLS encryption for the gRPC connection.
	UseTLS bool `koanf:"use_tls"`

	// APIKey is the optional API key for authentication.
	APIKey string `koanf:"api_key"`

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB (to handle large exports)
	MaxMessageSize int `koanf:"max_message_size"`

	// DialTimeout is the timeout for establishing the connection.
	DialTimeout time.Duration `koanf:"dial_timeout"`

	// RequestTimeout is the default timeout for individual requests.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// MaxRetries is the number of retry attempts for transient failures.
	MaxRetries int `koanf:"max_retries"`

	// ScrollPageSize is the page size for scroll pagination.
	ScrollPageSize uint32 `koanf:"scroll_page_size"`

	// Distance is the similarity metric for the collection.
	// Default: Cosine
	Distance qdrant.Distance `koanf:"-"`
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024 // 50MB
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.ScrollPageSize == 0 {
		c.ScrollPageSize = 256
	}
	if c.Distance == 0 {
		c.Distance = qdrant.Distance_Cosine
	}
}

// Validate validates the configuration.
func (c *QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.CollectionName == "" {
		return fmt.Errorf("%w: collection name required", ErrInvalidConfig)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// QdrantStore implements Store using Qdrant's official Go client.
type QdrantStore struct {
	client *qdrant.Client
	config *QdrantConfig
	logger *logging.Logger
}

// NewQdrantStore connects to Qdrant and ensures the configured collection
// exists. The returned store is bound to that collection.
func NewQdrantStore(config *QdrantConfig, logger *logging.Logger) (*QdrantStore, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: config required", ErrInvalidConfig)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger required", ErrInvalidConfig)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	qdrantConfig := &qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		APIKey: config.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	}
	if !config.UseTLS {
		qdrantConfig.GrpcOptions = append(qdrantConfig.GrpcOptions,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
	}

	client, err := qdrant.NewClient(qdrantConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	s := &QdrantStore{
		client: client,
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		logger.Error(ctx, "qdrant health check failed",
			zap.String("host", config.Host),
			zap.Int("port", config.Port),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}

	if err := s.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info(ctx, "qdrant connection established",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.CollectionName),
	)

	return s, nil
}

// ensureCollection creates the bound collection if it does not exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	_, err := s.client.GetCollectionInfo(ctx, s.config.CollectionName)
	if err == nil {
		return nil
	}
	if st, ok := status.FromError(err); !ok || st.Code() != codes.NotFound {
		return fmt.Errorf("checking collection: %w", err)
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.CollectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.config.VectorSize,
			Distance: s.config.Distance,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", s.config.CollectionName, err)
	}
	return nil
}

// Scroll returns all points matching the filter, paginating internally.
func (s *QdrantStore) Scroll(ctx context.Context, filter *Filter, opts ScrollOptions) ([]*Point, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "qdrant.scroll")
	defer span.End()
	span.SetAttributes(attribute.String("collection", s.config.CollectionName))

	qdrantFilter := convertFilter(filter)
	var (
		all    []*Point
		seen   = make(map[string]struct{})
		offset *qdrant.PointId
	)

	for {
		var batch []*qdrant.RetrievedPoint
		err := s.retryOperation(ctx, func(ctx context.Context) error {
			res, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
				CollectionName: s.config.CollectionName,
				Filter:         qdrantFilter,
				Limit:          qdrant.PtrOf(s.config.ScrollPageSize),
				Offset:         offset,
				WithPayload:    qdrant.NewWithPayload(opts.WithPayload),
				WithVectors:    qdrant.NewWithVectors(opts.WithVector),
			})
			if err != nil {
				return err
			}
			batch = res
			return nil
		})
		if err != nil {
			span.SetStatus(otelcodes.Error, err.Error())
			return nil, err
		}

		var lastID string
		for _, rp := range batch {
			id := extractPointID(rp.Id)
			lastID = id
			// The offset point is included again on the next page.
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			all = append(all, &Point{
				ID:      id,
				Vector:  extractVectorOutput(rp.Vectors),
				Payload: extractPayload(rp.Payload),
			})
		}

		if uint32(len(batch)) < s.config.ScrollPageSize || lastID == "" {
			break
		}
		offset = qdrant.NewIDUUID(lastID)
	}

	span.SetAttributes(attribute.Int("points", len(all)))
	return all, nil
}

// BatchSave upserts points into the bound collection.
func (s *QdrantStore) BatchSave(ctx context.Context, points []*Point) error {
	if len(points) == 0 {
		return ErrEmptyPoints
	}

	ctx, span := tracer.Start(ctx, "qdrant.batch_save")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", s.config.CollectionName),
		attribute.Int("points", len(points)),
	)

	qdrantPoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		qdrantPoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: convertPayload(p.Payload),
		}
	}

	return s.retryOperation(ctx, func(ctx context.Context) error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.CollectionName,
			Points:         qdrantPoints,
		})
		return err
	})
}

// BatchDelete removes all points matching the filter.
func (s *QdrantStore) BatchDelete(ctx context.Context, filter *Filter) error {
	if err := filter.Validate(); err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, "qdrant.batch_delete")
	defer span.End()
	span.SetAttributes(attribute.String("collection", s.config.CollectionName))

	return s.retryOperation(ctx, func(ctx context.Context) error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.config.CollectionName,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
					Filter: convertFilter(filter),
				},
			},
		})
		return err
	})
}

// UpdatePayload merges the partial payload into every matching point.
func (s *QdrantStore) UpdatePayload(ctx context.Context, filter *Filter, payload map[string]interface{}) error {
	if err := filter.Validate(); err != nil {
		return err
	}
	if len(payload) == 0 {
		return ErrEmptyPayload
	}

	ctx, span := tracer.Start(ctx, "qdrant.update_payload")
	defer span.End()
	span.SetAttributes(attribute.String("collection", s.config.CollectionName))

	return s.retryOperation(ctx, func(ctx context.Context) error {
		_, err := s.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
			CollectionName: s.config.CollectionName,
			Payload:        convertPayload(payload),
			PointsSelector: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
					Filter: convertFilter(filter),
				},
			},
		})
		return err
	})
}

// Search performs similarity search in the bound collection.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, limit uint64, filter *Filter) ([]*ScoredPoint, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "qdrant.search")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", s.config.CollectionName),
		attribute.Int64("limit", int64(limit)),
	)

	var results []*qdrant.ScoredPoint
	err := s.retryOperation(ctx, func(ctx context.Context) error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.CollectionName,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(limit),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         convertFilter(filter),
		})
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	scored := make([]*ScoredPoint, len(results))
	for i, r := range results {
		scored[i] = &ScoredPoint{
			Point: Point{
				ID:      extractPointID(r.Id),
				Vector:  extractVectorOutput(r.Vectors),
				Payload: extractPayload(r.Payload),
			},
			Score: r.Score,
		}
	}
	return scored, nil
}

// EstimateSize returns the approximate wire size of a point batch in bytes.
func (s *QdrantStore) EstimateSize(points []*Point) int {
	return EstimatePointsSize(points)
}

// Close closes the client connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// retryOperation retries an operation with exponential backoff on transient
// gRPC failures. Permanent failures return immediately.
func (s *QdrantStore) retryOperation(ctx context.Context, operation func(ctx context.Context) error) error {
	var lastErr error
	backoff := time.Second
	startTime := time.Now()

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
		err := operation(opCtx)
		cancel()
		if err == nil {
			if attempt > 0 {
				s.logger.Info(ctx, "operation recovered after retries",
					zap.Int("attempts", attempt),
					zap.Duration("total_time", time.Since(startTime)),
				)
			}
			return nil
		}

		lastErr = err

		if !isTransientError(err) {
			return err
		}
		if attempt == s.config.MaxRetries {
			break
		}

		s.logger.Debug(ctx, "retrying operation after transient error",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", s.config.MaxRetries),
			zap.Error(err),
			zap.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("operation canceled: %w", ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	s.logger.Warn(ctx, "operation failed after all retries exhausted",
		zap.Int("total_attempts", s.config.MaxRetries+1),
		zap.Duration("total_time", time.Since(startTime)),
		zap.Error(lastErr),
	)

	return fmt.Errorf("operation failed after %d retries: %w", s.config.MaxRetries, lastErr)
}

// isTransientError checks if an error is transient and should be retried.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// EstimatePointsSize approximates the serialized size of points in bytes:
// 4 bytes per vector component plus the JSON-encoded payload and id.
func EstimatePointsSize(points []*Point) int {
	size := 0
	for _, p := range points {
		size += len(p.ID)
		size += 4 * len(p.Vector)
		if len(p.Payload) > 0 {
			if b, err := json.Marshal(p.Payload); err == nil {
				size += len(b)
			}
		}
	}
	return size
}

// Conversion helpers

func convertPayload(payload map[string]interface{}) map[string]*qdrant.Value {
	converted := make(map[string]*qdrant.Value, len(payload))
	for k, v := range payload {
		converted[k] = convertValue(v)
	}
	return converted
}

func convertValue(v interface{}) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	default:
		// Fallback to string representation
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprintf("%v", val)}}
	}
}

func extractPayload(payload map[string]*qdrant.Value) map[string]interface{} {
	if payload == nil {
		return nil
	}
	result := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		result[k] = extractValue(v)
	}
	return result
}

func extractValue(v *qdrant.Value) interface{} {
	if v == nil {
		return nil
	}
	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	default:
		return nil
	}
}

func extractPointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	if num := id.GetNum(); num != 0 {
		return fmt.Sprintf("%d", num)
	}
	return ""
}

func extractVectorOutput(vectors *qdrant.VectorsOutput) []float32 {
	if vectors == nil {
		return nil
	}
	if vec := vectors.GetVector(); vec != nil {
		if dense := vec.GetDense(); dense != nil {
			return dense.GetData()
		}
	}
	return nil
}

func convertFilter(f *Filter) *qdrant.Filter {
	if f == nil {
		return nil
	}
	filter := &qdrant.Filter{}
	for _, cond := range f.Must {
		if qc := convertCondition(cond); qc != nil {
			filter.Must = append(filter.Must, qc)
		}
	}
	return filter
}

func convertCondition(c Condition) *qdrant.Condition {
	if len(c.MatchAny) > 0 {
		return &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: c.Field,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keywords{
							Keywords: &qdrant.RepeatedStrings{Strings: c.MatchAny},
						},
					},
				},
			},
		}
	}
	if c.Match != nil {
		return &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: c.Field,
					Match: &qdrant.Match{
						MatchValue: convertMatch(c.Match),
					},
				},
			},
		}
	}
	return nil
}

func convertMatch(match interface{}) *qdrant.Match_Keyword {
	switch v := match.(type) {
	case string:
		return &qdrant.Match_Keyword{Keyword: v}
	default:
		return &qdrant.Match_Keyword{Keyword: fmt.Sprintf("%v", v)}
	}
}

// Ensure QdrantStore implements Store interface
var _ Store = (*QdrantStore)(nil)

// Package vectorstore provides vector storage implementations.
package vectorstore

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// qdrantTracer for OpenTelemetry instrumentation.
var qdrantTracer = otel.Tracer("schemactx.vectorstore.qdrant")

const qdrantBackend = "qdrant"

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// pointNamespace derives Qdrant point UUIDs from document ids.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("schemactx/document"))

// QdrantConfig holds configuration for Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (NOT HTTP REST port).
	// Default: 6334 (gRPC), not 6333 (HTTP)
	Port int

	// Collection is the collection holding every tenant's documents.
	// Default: "schema_context"
	Collection string

	// VectorSize is the dimensionality of embeddings.
	// Default: 512
	VectorSize int

	// UseTLS enables TLS encryption for gRPC connection.
	UseTLS bool

	// APIKey authenticates against Qdrant Cloud or secured deployments.
	APIKey string

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB
	MaxMessageSize int

	// Timeout bounds connection setup and the startup health check.
	// Default: 5s
	Timeout time.Duration
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port must be between 1 and 65535, got %d", ErrInvalidConfig, c.Port)
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.Collection)
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "schema_context"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 512
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
}

// ValidateCollectionName validates a collection name.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// IsTransientError checks if an error is transient.
// Returns true for network timeouts, temporary unavailability.
func IsTransientError(err error) bool {
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

// QdrantStore is a Store implementation using Qdrant's native gRPC client.
//
// All tenants share one cosine-distance collection with keyword payload indexes
// on the filter keys. Point ids are UUIDv5 digests of document ids; the document
// id itself travels in the payload.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger
}

// NewQdrantStore creates a new QdrantStore, verifying connectivity and creating
// the collection when it does not exist.
func NewQdrantStore(config QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if !config.UseTLS {
		logger.Warn("Qdrant gRPC using plaintext (TLS disabled)", zap.String("host", config.Host))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &QdrantStore{
		client: client,
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
	defer cancel()

	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}
	if err := store.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("QdrantStore initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.Collection),
		zap.Int("vector_size", config.VectorSize),
	)

	return store, nil
}

// ensureCollection creates the collection and its payload indexes if missing.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.ensureCollection")
	defer span.End()

	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		recordSpanError(span, err)
		return fmt.Errorf("checking collection %s: %w", s.config.Collection, err)
	}
	if exists {
		span.SetStatus(codes.Ok, "exists")
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.config.VectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		recordSpanError(span, err)
		return fmt.Errorf("creating collection %s: %w", s.config.Collection, err)
	}

	for _, key := range indexedKeys {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.config.Collection,
			FieldName:      key,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			recordSpanError(span, err)
			return fmt.Errorf("creating payload index %s: %w", key, err)
		}
	}

	span.SetStatus(codes.Ok, "created")
	return nil
}

// Upsert writes all valid documents in one batch. A failed batch reports every
// document in it as failed.
func (s *QdrantStore) Upsert(ctx context.Context, docs []Document) (written []string, err error) {
	start := time.Now()
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Upsert")
	defer span.End()
	defer func() { observe(qdrantBackend, "upsert", start, err) }()

	span.SetAttributes(
		attribute.Int("document_count", len(docs)),
		attribute.String("collection", s.config.Collection),
	)

	if len(docs) == 0 {
		return nil, ErrEmptyDocuments
	}

	failed := make(map[string]error)
	points := make([]*qdrant.PointStruct, 0, len(docs))
	ids := make([]string, 0, len(docs))

	for i, doc := range docs {
		if err := doc.Validate(s.config.VectorSize); err != nil {
			failed[failureKey(doc, i)] = err
			continue
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(doc.ID)),
			Vectors: qdrant.NewVectors(doc.Vector...),
			Payload: payloadFromDocument(doc),
		})
		ids = append(ids, doc.ID)
	}

	if len(points) > 0 {
		if err := ctx.Err(); err != nil {
			for _, id := range ids {
				failed[id] = err
			}
			ids = nil
		} else if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.Collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		}); err != nil {
			wrapped := fmt.Errorf("upserting points to collection %s: %w", s.config.Collection, err)
			for _, id := range ids {
				failed[id] = wrapped
			}
			ids = nil
			s.logger.Warn("qdrant upsert failed",
				zap.Bool("transient", IsTransientError(err)),
				zap.Error(err),
			)
		}
	}

	written = ids
	if written == nil {
		written = []string{}
	}
	observeUpsert(qdrantBackend, len(written), len(failed))
	span.SetAttributes(
		attribute.Int("documents_written", len(written)),
		attribute.Int("documents_failed", len(failed)),
	)

	written, err = upsertResult(written, failed)
	if err != nil {
		recordSpanError(span, err)
		return written, err
	}
	span.SetStatus(codes.Ok, "success")
	return written, nil
}

// Get returns matching documents ordered by id.
func (s *QdrantStore) Get(ctx context.Context, filter Filter) (docs []Document, err error) {
	start := time.Now()
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Get")
	defer span.End()
	defer func() { observe(qdrantBackend, "get", start, err) }()

	if err := filter.Validate(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	docs, err = s.scrollAll(ctx, filter)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("results_count", len(docs)))
	span.SetStatus(codes.Ok, "success")
	return docs, nil
}

// Count returns the exact number of matching points.
func (s *QdrantStore) Count(ctx context.Context, filter Filter) (int, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.config.Collection,
		Filter:         qdrantFilter(filter),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("counting points in collection %s: %w", s.config.Collection, err)
	}
	return int(n), nil
}

// Query runs a filtered cosine search. Ties are broken by id.
func (s *QdrantStore) Query(ctx context.Context, vector []float32, filter Filter, k int) (matches []Match, err error) {
	start := time.Now()
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Query")
	defer span.End()
	defer func() { observe(qdrantBackend, "query", start, err) }()

	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("k", k),
	)

	if err := validateQuery(vector, filter, k, s.config.VectorSize); err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	if IsZeroVector(vector) {
		docs, err := s.scrollAll(ctx, filter)
		if err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		matches = make([]Match, len(docs))
		for i, doc := range docs {
			matches[i] = Match{Document: doc, Distance: 1}
		}
		span.SetStatus(codes.Ok, "success")
		return truncate(matches, k), nil
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.config.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		Filter:         qdrantFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	matches = make([]Match, len(points))
	for i, p := range points {
		matches[i] = Match{
			Document: documentFromPayload(p.GetPayload(), p.GetVectors()),
			Distance: distanceFromSimilarity(float64(p.GetScore())),
		}
	}
	sortMatchesByID(matches)
	sortMatches(matches)

	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// Delete removes matching points.
func (s *QdrantStore) Delete(ctx context.Context, filter Filter) (removed int, err error) {
	start := time.Now()
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Delete")
	defer span.End()
	defer func() { observe(qdrantBackend, "delete", start, err) }()

	if err := filter.Validate(); err != nil {
		recordSpanError(span, err)
		return 0, err
	}

	removed, err = s.Count(ctx, filter)
	if err != nil {
		recordSpanError(span, err)
		return 0, err
	}
	if removed == 0 {
		span.SetStatus(codes.Ok, "nothing to delete")
		return 0, nil
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.config.Collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: qdrantFilter(filter),
			},
		},
	})
	if err != nil {
		recordSpanError(span, err)
		return 0, fmt.Errorf("deleting points from collection %s: %w", s.config.Collection, err)
	}

	span.SetAttributes(attribute.Int("removed", removed))
	span.SetStatus(codes.Ok, "success")
	return removed, nil
}

// Close closes the Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// scrollAll counts the filtered set and scrolls it in one page.
func (s *QdrantStore) scrollAll(ctx context.Context, filter Filter) ([]Document, error) {
	n, err := s.Count(ctx, filter)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []Document{}, nil
	}

	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.config.Collection,
		Filter:         qdrantFilter(filter),
		Limit:          qdrant.PtrOf(uint32(n)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("scrolling collection %s: %w", s.config.Collection, err)
	}

	docs := make([]Document, len(points))
	for i, p := range points {
		docs[i] = documentFromPayload(p.GetPayload(), p.GetVectors())
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// PointID maps a document id to its Qdrant point UUID.
func PointID(docID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(docID)).String()
}

// qdrantFilter converts a Filter into keyword match conditions.
func qdrantFilter(filter Filter) *qdrant.Filter {
	terms := filter.Terms()
	keys := make([]string, 0, len(terms))
	for k := range terms {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conditions := make([]*qdrant.Condition, 0, len(keys))
	for _, key := range keys {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: key,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: terms[key]},
					},
				},
			},
		})
	}
	return &qdrant.Filter{Must: conditions}
}

// payloadFromDocument stores metadata as string payload values alongside the
// content and document id.
func payloadFromDocument(doc Document) map[string]*qdrant.Value {
	payload := make(map[string]*qdrant.Value, len(doc.Metadata)+2)
	payload[payloadContentKey] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: doc.Content}}
	payload[payloadIDKey] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: doc.ID}}
	for k, v := range doc.Metadata {
		payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
	}
	return payload
}

// documentFromPayload reverses payloadFromDocument. Non-string payload values
// are not written by this package and are ignored.
func documentFromPayload(payload map[string]*qdrant.Value, vectors *qdrant.VectorsOutput) Document {
	doc := Document{Metadata: make(Metadata, len(payload))}
	for k, v := range payload {
		sv, ok := v.GetKind().(*qdrant.Value_StringValue)
		if !ok {
			continue
		}
		switch k {
		case payloadContentKey:
			doc.Content = sv.StringValue
		case payloadIDKey:
			doc.ID = sv.StringValue
		default:
			doc.Metadata[k] = sv.StringValue
		}
	}
	if vec := vectors.GetVector(); vec != nil {
		if dense := vec.GetDense(); dense != nil {
			doc.Vector = append([]float32(nil), dense.GetData()...)
		}
	}
	return doc
}

var _ Store = (*QdrantStore)(nil)

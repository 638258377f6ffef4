// Package vectorstore provides vector storage implementations.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("schemactx.vectorstore.chromem")

const chromemBackend = "chromem"

// errPrecomputedEmbeddings is returned if chromem ever asks for an embedding.
// Every document and query reaching chromem carries its vector.
var errPrecomputedEmbeddings = errors.New("chromem store requires precomputed embeddings")

// ChromemConfig holds configuration for chromem-go embedded vector database.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Default: "~/.config/schemactx/vectorstore"
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Collection is the collection holding every tenant's documents.
	// Default: "schema_context"
	Collection string

	// VectorSize is the expected embedding dimension.
	// Default: 512
	VectorSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/schemactx/vectorstore"
	}
	if c.Collection == "" {
		c.Collection = "schema_context"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 512
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.Collection)
}

// ChromemStore implements the Store interface using chromem-go.
//
// All tenants share one collection; tenant isolation is enforced by adding the
// tenant terms to every where-filter. chromem has no listing API, so Get runs a
// similarity query sized to the whole collection and returns documents in id order.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	config     ChromemConfig
	logger     *zap.Logger
}

// NewChromemStore creates a new ChromemStore with the given configuration.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	expandedPath, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}

	if err := os.MkdirAll(expandedPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
	}

	db, err := openChromemDB(expandedPath, config.Compress, logger)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	collection, err := db.GetOrCreateCollection(config.Collection, nil, precomputedEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", config.Collection, err)
	}

	logger.Info("ChromemStore initialized",
		zap.String("path", expandedPath),
		zap.Bool("compress", config.Compress),
		zap.Int("vector_size", config.VectorSize),
		zap.String("collection", config.Collection),
		zap.Int("documents", collection.Count()),
	)

	return &ChromemStore{
		db:         db,
		collection: collection,
		config:     config,
		logger:     logger,
	}, nil
}

// expandPath expands ~ to home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

func precomputedEmbeddingFunc(context.Context, string) ([]float32, error) {
	return nil, errPrecomputedEmbeddings
}

// Upsert adds documents one at a time; chromem replaces an existing id in place.
func (s *ChromemStore) Upsert(ctx context.Context, docs []Document) (written []string, err error) {
	start := time.Now()
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert")
	defer span.End()
	defer func() { observe(chromemBackend, "upsert", start, err) }()

	span.SetAttributes(
		attribute.Int("document_count", len(docs)),
		attribute.String("collection", s.config.Collection),
	)

	if len(docs) == 0 {
		return nil, ErrEmptyDocuments
	}

	written = make([]string, 0, len(docs))
	failed := make(map[string]error)

	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(docs); j++ {
				failed[failureKey(docs[j], j)] = err
			}
			break
		}
		if err := doc.Validate(s.config.VectorSize); err != nil {
			failed[failureKey(doc, i)] = err
			continue
		}

		stored := doc.Clone()
		if err := s.collection.AddDocument(ctx, chromem.Document{
			ID:        stored.ID,
			Content:   stored.Content,
			Metadata:  stored.Metadata,
			Embedding: stored.Vector,
		}); err != nil {
			failed[failureKey(doc, i)] = fmt.Errorf("adding document: %w", err)
			continue
		}
		written = append(written, doc.ID)
	}

	observeUpsert(chromemBackend, len(written), len(failed))
	span.SetAttributes(
		attribute.Int("documents_written", len(written)),
		attribute.Int("documents_failed", len(failed)),
	)

	written, err = upsertResult(written, failed)
	if err != nil {
		recordSpanError(span, err)
		s.logger.Warn("partial upsert to chromem",
			zap.String("collection", s.config.Collection),
			zap.Int("written", len(written)),
			zap.Int("failed", len(failed)),
			zap.Error(err),
		)
		return written, err
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("upserted documents to chromem",
		zap.String("collection", s.config.Collection),
		zap.Int("count", len(written)),
	)
	return written, nil
}

// Get returns matching documents ordered by id.
func (s *ChromemStore) Get(ctx context.Context, filter Filter) (docs []Document, err error) {
	start := time.Now()
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Get")
	defer span.End()
	defer func() { observe(chromemBackend, "get", start, err) }()

	if err := filter.Validate(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	results, err := s.queryAll(ctx, filter)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	docs = make([]Document, len(results))
	for i, r := range results {
		docs[i] = documentFromChromem(r)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })

	span.SetAttributes(attribute.Int("results_count", len(docs)))
	span.SetStatus(codes.Ok, "success")
	return docs, nil
}

// Count returns the number of matching documents.
func (s *ChromemStore) Count(ctx context.Context, filter Filter) (int, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	results, err := s.queryAll(ctx, filter)
	if err != nil {
		return 0, err
	}
	return len(results), nil
}

// Query runs a filtered similarity search. Ties are broken by id.
func (s *ChromemStore) Query(ctx context.Context, vector []float32, filter Filter, k int) (matches []Match, err error) {
	start := time.Now()
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Query")
	defer span.End()
	defer func() { observe(chromemBackend, "query", start, err) }()

	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("k", k),
	)

	if err := validateQuery(vector, filter, k, s.config.VectorSize); err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	// chromem normalizes the query; a zero vector would turn into NaNs.
	if IsZeroVector(vector) {
		results, err := s.queryAll(ctx, filter)
		if err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		matches = make([]Match, len(results))
		for i, r := range results {
			matches[i] = Match{Document: documentFromChromem(r), Distance: 1}
		}
		sortMatchesByID(matches)
		span.SetStatus(codes.Ok, "success")
		return truncate(matches, k), nil
	}

	// chromem requires nResults <= collection size and clamps to the filtered count.
	total := s.collection.Count()
	if total == 0 {
		span.SetStatus(codes.Ok, "empty collection")
		return []Match{}, nil
	}
	if k > total {
		k = total
	}

	results, err := s.collection.QueryEmbedding(ctx, vector, k, filter.Terms(), nil)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	matches = make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{
			Document: documentFromChromem(r),
			Distance: distanceFromSimilarity(float64(r.Similarity)),
		}
	}
	sortMatchesByID(matches)
	sortMatches(matches)

	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("queried chromem collection",
		zap.String("collection", s.config.Collection),
		zap.Int("k", k),
		zap.Int("results", len(matches)),
	)
	return matches, nil
}

// Delete removes matching documents.
func (s *ChromemStore) Delete(ctx context.Context, filter Filter) (removed int, err error) {
	start := time.Now()
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Delete")
	defer span.End()
	defer func() { observe(chromemBackend, "delete", start, err) }()

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

	if err := s.collection.Delete(ctx, filter.Terms(), nil); err != nil {
		recordSpanError(span, err)
		return 0, fmt.Errorf("deleting from collection %s: %w", s.config.Collection, err)
	}

	span.SetAttributes(attribute.Int("removed", removed))
	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("deleted documents from chromem",
		zap.String("tenant", filter.Tenant.String()),
		zap.Int("count", removed),
	)
	return removed, nil
}

// Close is a no-op; chromem persists every write immediately.
func (s *ChromemStore) Close() error {
	return nil
}

// queryAll returns every document matching filter using a probe query sized to
// the whole collection.
func (s *ChromemStore) queryAll(ctx context.Context, filter Filter) ([]chromem.Result, error) {
	total := s.collection.Count()
	if total == 0 {
		return nil, nil
	}
	results, err := s.collection.QueryEmbedding(ctx, unitProbe(s.config.VectorSize), total, filter.Terms(), nil)
	if err != nil {
		return nil, fmt.Errorf("listing collection %s: %w", s.config.Collection, err)
	}
	return results, nil
}

func documentFromChromem(r chromem.Result) Document {
	doc := Document{
		ID:       r.ID,
		Content:  r.Content,
		Metadata: Metadata(r.Metadata).Clone(),
	}
	if r.Embedding != nil {
		doc.Vector = make([]float32, len(r.Embedding))
		copy(doc.Vector, r.Embedding)
	}
	return doc
}

// sortMatchesByID orders matches by document id.
func sortMatchesByID(matches []Match) {
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Document.ID < matches[j].Document.ID
	})
}

var _ Store = (*ChromemStore)(nil)

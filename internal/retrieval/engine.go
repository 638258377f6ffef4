package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/schemactx/internal/logging"
	"github.com/fyrsmithlabs/schemactx/internal/schema"
	"github.com/fyrsmithlabs/schemactx/internal/vectorstore"
)

const instrumentationName = "github.com/fyrsmithlabs/schemactx/internal/retrieval"

const (
	defaultIngestConcurrency = 4

	// ingestBatchSize is the number of documents embedded per EmbedDocuments call.
	ingestBatchSize = 16
)

// Engine answers schema-context queries for a tenant over a Store.
//
// Engine holds no locks; concurrent calls only share the Store and Embedder,
// both of which are safe for concurrent use.
type Engine struct {
	embedder    vectorstore.Embedder
	store       vectorstore.Store
	aggregator  *Aggregator
	logger      *logging.Logger
	tracer      trace.Tracer
	concurrency int
}

// Option configures an Engine.
type Option func(*Engine)

// WithAggregator replaces the default table/relationship aggregator.
func WithAggregator(a *Aggregator) Option {
	return func(e *Engine) {
		if a != nil {
			e.aggregator = a
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTracer sets the tracer used for engine spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithIngestConcurrency bounds the number of concurrent embedding batches
// during Ingest. Non-positive values keep the default.
func WithIngestConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// NewEngine creates an Engine over the given embedder and store. The caller
// keeps ownership of the store.
func NewEngine(embedder vectorstore.Embedder, store vectorstore.Store, opts ...Option) (*Engine, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if store == nil {
		return nil, errors.New("vector store is required")
	}

	e := &Engine{
		embedder:    embedder,
		store:       store,
		aggregator:  NewAggregator(),
		logger:      logging.NewNop(),
		tracer:      otel.Tracer(instrumentationName),
		concurrency: defaultIngestConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search embeds the query once and returns the k documents of the tenant
// closest to it, grouped by type. k is clamped to the number of stored
// documents; a tenant without documents yields empty groups.
func (e *Engine) Search(ctx context.Context, req SearchRequest) (_ *SchemaContext, err error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "retrieval.search")
	defer span.End()
	defer func() { finishSpan(span, err) }()

	span.SetAttributes(
		attribute.String("tenant", req.Tenant.String()),
		attribute.String("schema_name", req.SchemaName),
		attribute.Int("k", req.K),
	)

	if req.K <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, req.K)
	}
	filter := vectorstore.ForTenant(req.Tenant).WithSchema(req.SchemaName)
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	vector, err := e.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	n, err := e.store.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("counting candidates: %w", err)
	}
	if n == 0 {
		e.logger.Debug(ctx, "search found no candidates", zap.String("tenant", req.Tenant.String()))
		return e.aggregator.Empty(), nil
	}
	k := min(req.K, n)

	matches, err := e.store.Query(ctx, vector, filter, k)
	if err != nil {
		return nil, fmt.Errorf("querying store: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]RankedResult, 0, len(matches))
	for _, m := range matches {
		r := RankedResult{
			Content:   m.Document.Content,
			Metadata:  m.Document.Metadata,
			Relevance: Relevance(m.Distance),
		}
		if req.IncludeEmbeddings {
			r.Embedding = m.Document.Vector
		}
		results = append(results, r)
	}

	sc, err := e.aggregator.Aggregate(results)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	e.logger.Info(ctx, "search completed",
		zap.String("tenant", req.Tenant.String()),
		zap.Int("candidates", n),
		zap.Int("results", len(results)),
		zap.Duration("duration", time.Since(start)),
	)
	return sc, nil
}

// GetAll returns every document of the tenant, optionally restricted to one
// database schema, grouped by type with relevance 1.
func (e *Engine) GetAll(ctx context.Context, tenant vectorstore.Tenant, schemaName string) (_ *SchemaContext, err error) {
	ctx, span := e.tracer.Start(ctx, "retrieval.get_all")
	defer span.End()
	defer func() { finishSpan(span, err) }()

	span.SetAttributes(
		attribute.String("tenant", tenant.String()),
		attribute.String("schema_name", schemaName),
	)

	filter := vectorstore.ForTenant(tenant).WithSchema(schemaName)
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	docs, err := e.store.Get(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("reading store: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]RankedResult, 0, len(docs))
	for _, d := range docs {
		results = append(results, RankedResult{
			Content:   d.Content,
			Metadata:  d.Metadata,
			Relevance: 1.0,
		})
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	return e.aggregator.Aggregate(results)
}

// Ingest renders every table and relationship of s, embeds them and writes
// them for the tenant. Re-ingesting an element replaces its previous document.
//
// When the store rejects some documents the report lists them under Failed and
// the returned error is the store's *vectorstore.PartialWriteError.
func (e *Engine) Ingest(ctx context.Context, tenant vectorstore.Tenant, s *schema.Schema) (_ *IngestReport, err error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "retrieval.ingest")
	defer span.End()
	defer func() { finishSpan(span, err) }()

	span.SetAttributes(attribute.String("tenant", tenant.String()))

	if s == nil {
		return nil, ErrNilSchema
	}
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	docs := schema.Documents(tenant, s)
	report := &IngestReport{Written: []string{}}
	for _, d := range docs {
		switch d.Metadata[vectorstore.KeyType] {
		case schema.TypeTable:
			report.Tables++
		case schema.TypeRelationship:
			report.Relationships++
		}
	}
	if len(docs) == 0 {
		return report, nil
	}

	if err := e.embed(ctx, docs); err != nil {
		return nil, err
	}

	written, err := e.store.Upsert(ctx, docs)
	if written != nil {
		report.Written = written
	}
	var partial *vectorstore.PartialWriteError
	if errors.As(err, &partial) {
		report.Failed = make(map[string]string, len(partial.Failed))
		for id, cause := range partial.Failed {
			report.Failed[id] = cause.Error()
		}
		e.logger.Warn(ctx, "ingest partially failed",
			zap.String("tenant", tenant.String()),
			zap.Int("written", len(report.Written)),
			zap.Int("failed", len(report.Failed)),
		)
		return report, err
	}
	if err != nil {
		return nil, fmt.Errorf("writing documents: %w", err)
	}

	span.SetAttributes(attribute.Int("documents", len(docs)))
	e.logger.Info(ctx, "ingest completed",
		zap.String("tenant", tenant.String()),
		zap.String("schema", s.Name),
		zap.Int("tables", report.Tables),
		zap.Int("relationships", report.Relationships),
		zap.Duration("duration", time.Since(start)),
	)
	return report, nil
}

// embed fills the Vector of every document, embedding batches concurrently.
func (e *Engine) embed(ctx context.Context, docs []vectorstore.Document) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for lo := 0; lo < len(docs); lo += ingestBatchSize {
		batch := docs[lo:min(lo+ingestBatchSize, len(docs))]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, d := range batch {
				texts[i] = d.Content
			}
			vectors, err := e.embedder.EmbedDocuments(gctx, texts)
			if err != nil {
				return fmt.Errorf("embedding documents: %w", err)
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("embedding documents: got %d vectors for %d texts", len(vectors), len(batch))
			}
			for i := range batch {
				batch[i].Vector = vectors[i]
			}
			return nil
		})
	}
	return g.Wait()
}

// DropConnection deletes every document of the tenant and returns how many
// were removed.
func (e *Engine) DropConnection(ctx context.Context, tenant vectorstore.Tenant) (_ int, err error) {
	ctx, span := e.tracer.Start(ctx, "retrieval.drop_connection")
	defer span.End()
	defer func() { finishSpan(span, err) }()

	span.SetAttributes(attribute.String("tenant", tenant.String()))

	removed, err := e.store.Delete(ctx, vectorstore.ForTenant(tenant))
	if err != nil {
		return 0, fmt.Errorf("deleting documents: %w", err)
	}

	e.logger.Info(ctx, "connection dropped",
		zap.String("tenant", tenant.String()),
		zap.Int("removed", removed),
	)
	return removed, nil
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "success")
}

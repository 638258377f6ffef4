package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var memoryTracer = otel.Tracer("schemactx.vectorstore.memory")

// indexedKeys are the metadata keys with posting lists. They cover every key a
// Filter can constrain.
var indexedKeys = []string{KeyType, KeyUserID, KeyConnectionID, KeySchemaName}

const memoryBackend = "memory"

// MemoryConfig holds configuration for the in-process store.
type MemoryConfig struct {
	// VectorSize is the expected embedding dimension.
	VectorSize int

	// SnapshotPath is the file the store is loaded from at construction and
	// written to on Flush and Close. Empty disables persistence.
	SnapshotPath string

	// Compress enables zstd compression of the snapshot.
	Compress bool
}

// ApplyDefaults sets default values for unset fields.
func (c *MemoryConfig) ApplyDefaults() {
	if c.VectorSize == 0 {
		c.VectorSize = 512
	}
}

// Validate validates the configuration.
func (c *MemoryConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// MemoryStore keeps documents in insertion order and resolves filters through
// roaring bitmap posting lists.
//
// Each document occupies an ordinal slot. Replacing a document swaps the pointer
// in its slot under the write lock, so readers observe either the old or the new
// version, never a mix. Stored documents are never mutated after insertion.
type MemoryStore struct {
	config MemoryConfig
	logger *zap.Logger

	mu       sync.RWMutex
	entries  []*Document
	ordinals map[string]uint32
	postings map[string]map[string]*roaring.Bitmap
	live     *roaring.Bitmap
	closing  bool // set before the final flush; writes are rejected
	closed   bool
}

// NewMemoryStore creates a MemoryStore, loading the snapshot if one exists.
func NewMemoryStore(config MemoryConfig, logger *zap.Logger) (*MemoryStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	s := &MemoryStore{
		config:   config,
		logger:   logger,
		ordinals: make(map[string]uint32),
		postings: make(map[string]map[string]*roaring.Bitmap),
		live:     roaring.New(),
	}

	if config.SnapshotPath != "" {
		path, err := expandPath(config.SnapshotPath)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		s.config.SnapshotPath = path

		snap, err := readSnapshot(path)
		if err != nil {
			return nil, fmt.Errorf("loading snapshot %s: %w", path, err)
		}
		if snap != nil {
			if snap.VectorSize != config.VectorSize {
				return nil, fmt.Errorf("%w: snapshot has dimension %d, store expects %d",
					ErrDimensionMismatch, snap.VectorSize, config.VectorSize)
			}
			for _, doc := range snap.Documents {
				d := doc
				s.putLocked(&d)
			}
		}
	}

	logger.Info("MemoryStore initialized",
		zap.Int("vector_size", config.VectorSize),
		zap.String("snapshot_path", s.config.SnapshotPath),
		zap.Int("documents", int(s.live.GetCardinality())),
	)

	return s, nil
}

// Upsert inserts or replaces documents one at a time.
func (s *MemoryStore) Upsert(ctx context.Context, docs []Document) (written []string, err error) {
	start := time.Now()
	ctx, span := memoryTracer.Start(ctx, "MemoryStore.Upsert")
	defer span.End()
	defer func() { observe(memoryBackend, "upsert", start, err) }()

	span.SetAttributes(attribute.Int("document_count", len(docs)))

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
		s.mu.Lock()
		if s.closing {
			s.mu.Unlock()
			failed[failureKey(doc, i)] = ErrStoreClosed
			continue
		}
		s.putLocked(&stored)
		s.mu.Unlock()

		written = append(written, doc.ID)
	}

	observeUpsert(memoryBackend, len(written), len(failed))
	span.SetAttributes(
		attribute.Int("documents_written", len(written)),
		attribute.Int("documents_failed", len(failed)),
	)

	written, err = upsertResult(written, failed)
	if err != nil {
		recordSpanError(span, err)
		s.logger.Warn("partial upsert",
			zap.Int("written", len(written)),
			zap.Int("failed", len(failed)),
			zap.Error(err),
		)
		return written, err
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("upserted documents", zap.Int("count", len(written)))
	return written, nil
}

// Get returns matching documents in insertion order.
func (s *MemoryStore) Get(ctx context.Context, filter Filter) (docs []Document, err error) {
	start := time.Now()
	_, span := memoryTracer.Start(ctx, "MemoryStore.Get")
	defer span.End()
	defer func() { observe(memoryBackend, "get", start, err) }()

	if err := filter.Validate(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	candidates := s.candidatesLocked(filter)
	docs = make([]Document, 0, candidates.GetCardinality())
	it := candidates.Iterator()
	for it.HasNext() {
		docs = append(docs, s.entries[it.Next()].Clone())
	}

	span.SetAttributes(attribute.Int("results_count", len(docs)))
	span.SetStatus(codes.Ok, "success")
	return docs, nil
}

// Count returns the number of matching documents.
func (s *MemoryStore) Count(ctx context.Context, filter Filter) (int, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrStoreClosed
	}
	return int(s.candidatesLocked(filter).GetCardinality()), nil
}

// Query ranks matching documents by cosine distance. Ties keep insertion order.
func (s *MemoryStore) Query(ctx context.Context, vector []float32, filter Filter, k int) (matches []Match, err error) {
	start := time.Now()
	ctx, span := memoryTracer.Start(ctx, "MemoryStore.Query")
	defer span.End()
	defer func() { observe(memoryBackend, "query", start, err) }()

	span.SetAttributes(attribute.Int("k", k))

	if err := validateQuery(vector, filter, k, s.config.VectorSize); err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	// Stored documents are immutable, so pointers stay valid after unlocking.
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	candidates := s.candidatesLocked(filter)
	entries := make([]*Document, 0, candidates.GetCardinality())
	it := candidates.Iterator()
	for it.HasNext() {
		entries = append(entries, s.entries[it.Next()])
	}
	s.mu.RUnlock()

	matches = make([]Match, 0, len(entries))
	for _, doc := range entries {
		if err := ctx.Err(); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		matches = append(matches, Match{Document: *doc, Distance: CosineDistance(vector, doc.Vector)})
	}
	sortMatches(matches)
	matches = truncate(matches, k)
	for i := range matches {
		matches[i].Document = matches[i].Document.Clone()
	}

	span.SetAttributes(
		attribute.Int("candidates", len(entries)),
		attribute.Int("results_count", len(matches)),
	)
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// Delete removes matching documents.
func (s *MemoryStore) Delete(ctx context.Context, filter Filter) (removed int, err error) {
	start := time.Now()
	_, span := memoryTracer.Start(ctx, "MemoryStore.Delete")
	defer span.End()
	defer func() { observe(memoryBackend, "delete", start, err) }()

	if err := filter.Validate(); err != nil {
		recordSpanError(span, err)
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return 0, ErrStoreClosed
	}

	candidates := s.candidatesLocked(filter)
	it := candidates.Iterator()
	for it.HasNext() {
		ord := it.Next()
		doc := s.entries[ord]
		s.unindexLocked(ord, doc.Metadata)
		delete(s.ordinals, doc.ID)
		s.entries[ord] = nil
		s.live.Remove(ord)
		removed++
	}

	span.SetAttributes(attribute.Int("removed", removed))
	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("deleted documents",
		zap.String("tenant", filter.Tenant.String()),
		zap.Int("count", removed),
	)
	return removed, nil
}

// Flush writes the snapshot when persistence is configured.
func (s *MemoryStore) Flush() error {
	if s.config.SnapshotPath == "" {
		return nil
	}

	s.mu.RLock()
	snap := &snapshot{
		Version:    snapshotVersion,
		VectorSize: s.config.VectorSize,
		Documents:  make([]Document, 0, s.live.GetCardinality()),
	}
	it := s.live.Iterator()
	for it.HasNext() {
		snap.Documents = append(snap.Documents, *s.entries[it.Next()])
	}
	s.mu.RUnlock()

	if err := writeSnapshot(s.config.SnapshotPath, s.config.Compress, snap); err != nil {
		return fmt.Errorf("writing snapshot %s: %w", s.config.SnapshotPath, err)
	}

	s.logger.Debug("flushed snapshot",
		zap.String("path", s.config.SnapshotPath),
		zap.Int("documents", len(snap.Documents)),
	)
	return nil
}

// Close flushes the snapshot and rejects further operations. Writes are
// rejected from the moment Close is called, so the snapshot holds every
// write that succeeded.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	s.mu.Unlock()

	err := s.Flush()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return err
}

// putLocked inserts doc or replaces the document with the same id in place.
// Caller must hold s.mu.Lock() or own s exclusively.
func (s *MemoryStore) putLocked(doc *Document) {
	if ord, ok := s.ordinals[doc.ID]; ok {
		s.unindexLocked(ord, s.entries[ord].Metadata)
		s.entries[ord] = doc
		s.indexLocked(ord, doc.Metadata)
		return
	}

	ord := uint32(len(s.entries))
	s.entries = append(s.entries, doc)
	s.ordinals[doc.ID] = ord
	s.live.Add(ord)
	s.indexLocked(ord, doc.Metadata)
}

// indexLocked adds ord to the posting list of every indexed key present in m.
func (s *MemoryStore) indexLocked(ord uint32, m Metadata) {
	for _, key := range indexedKeys {
		value, ok := m[key]
		if !ok {
			continue
		}
		values, ok := s.postings[key]
		if !ok {
			values = make(map[string]*roaring.Bitmap)
			s.postings[key] = values
		}
		bitmap, ok := values[value]
		if !ok {
			bitmap = roaring.New()
			values[value] = bitmap
		}
		bitmap.Add(ord)
	}
}

// unindexLocked removes ord from its posting lists and drops empty lists.
func (s *MemoryStore) unindexLocked(ord uint32, m Metadata) {
	for _, key := range indexedKeys {
		value, ok := m[key]
		if !ok {
			continue
		}
		bitmap, ok := s.postings[key][value]
		if !ok {
			continue
		}
		bitmap.Remove(ord)
		if bitmap.IsEmpty() {
			delete(s.postings[key], value)
			if len(s.postings[key]) == 0 {
				delete(s.postings, key)
			}
		}
	}
}

// candidatesLocked intersects the posting lists of every filter term.
// The result is a new bitmap owned by the caller.
func (s *MemoryStore) candidatesLocked(filter Filter) *roaring.Bitmap {
	result := s.live.Clone()
	for key, value := range filter.Terms() {
		bitmap, ok := s.postings[key][value]
		if !ok {
			return roaring.New()
		}
		result.And(bitmap)
		if result.IsEmpty() {
			return result
		}
	}
	return result
}

// recordSpanError marks the span as failed.
func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

var _ Store = (*MemoryStore)(nil)

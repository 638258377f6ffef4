// Package vectorstore defines the interface for vector storage operations.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrInvalidDocument indicates a document without an id.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrDimensionMismatch indicates a vector whose length differs from the store dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrZeroVector indicates a document vector with zero norm.
	ErrZeroVector = errors.New("document vector has zero norm")

	// ErrReservedKey indicates metadata using a key reserved for backend payloads.
	ErrReservedKey = errors.New("reserved metadata key")

	// ErrInvalidK indicates a non-positive result count.
	ErrInvalidK = errors.New("k must be positive")

	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("store is closed")

	// ErrConnectionFailed indicates gRPC connection issues.
	ErrConnectionFailed = errors.New("failed to connect to Qdrant")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// Metadata keys with store-level meaning. They are the only keys a Filter can
// constrain and the only keys indexed by MemoryStore.
const (
	KeyType         = "type"
	KeyUserID       = "user_id"
	KeyConnectionID = "connection_id"
	KeySchemaName   = "schema_name"
)

// Keys used by backends to carry content and the document id inside a payload.
const (
	payloadContentKey = "content"
	payloadIDKey      = "doc_id"
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	// Returns a slice of embeddings (one per input text) or an error.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is the interface for tenant-scoped vector storage.
//
// Implementations are safe for concurrent use. A Store is constructed once by its
// owner, shared by reference, and closed once; Close flushes pending state.
type Store interface {
	// Upsert inserts or fully replaces documents by id. Each document is written
	// atomically on its own. The returned slice lists the ids that were written;
	// when some documents failed the error is a *PartialWriteError.
	Upsert(ctx context.Context, docs []Document) ([]string, error)

	// Get returns every document matching the filter.
	Get(ctx context.Context, filter Filter) ([]Document, error)

	// Count returns the number of documents matching the filter.
	Count(ctx context.Context, filter Filter) (int, error)

	// Query returns up to k documents matching the filter ordered by ascending
	// cosine distance to vector. k is clamped to the number of candidates.
	Query(ctx context.Context, vector []float32, filter Filter, k int) ([]Match, error)

	// Delete removes every document matching the filter and returns how many
	// were removed.
	Delete(ctx context.Context, filter Filter) (int, error)

	// Close flushes pending state and releases resources.
	Close() error
}

// Match is a document returned by Store.Query together with its distance to the query.
type Match struct {
	Document Document
	Distance float64
}

// PartialWriteError reports the per-document outcome of an Upsert in which at
// least one document failed.
type PartialWriteError struct {
	// Written lists ids that were stored, in input order.
	Written []string

	// Failed maps document ids (or "#<index>" for documents without an id) to the
	// cause of their failure.
	Failed map[string]error
}

// Error implements the error interface.
func (e *PartialWriteError) Error() string {
	ids := e.FailedIDs()
	var b strings.Builder
	fmt.Fprintf(&b, "partial write: %d of %d documents failed", len(ids), len(ids)+len(e.Written))
	if len(ids) > 0 {
		fmt.Fprintf(&b, " (first: %s: %v)", ids[0], e.Failed[ids[0]])
	}
	return b.String()
}

// Unwrap exposes the individual failure causes to errors.Is and errors.As.
func (e *PartialWriteError) Unwrap() []error {
	ids := e.FailedIDs()
	errs := make([]error, 0, len(ids))
	for _, id := range ids {
		errs = append(errs, e.Failed[id])
	}
	return errs
}

// FailedIDs returns the failed document ids in sorted order.
func (e *PartialWriteError) FailedIDs() []string {
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// failureKey names a document in PartialWriteError.Failed.
func failureKey(doc Document, index int) string {
	if doc.ID != "" {
		return doc.ID
	}
	return fmt.Sprintf("#%d", index)
}

// upsertResult turns collected outcomes into Upsert's return values.
func upsertResult(written []string, failed map[string]error) ([]string, error) {
	if len(failed) == 0 {
		return written, nil
	}
	return written, &PartialWriteError{Written: written, Failed: failed}
}

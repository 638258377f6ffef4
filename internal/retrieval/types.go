package retrieval

import (
	"errors"
	"math"

	"github.com/fyrsmithlabs/schemactx/internal/vectorstore"
)

// RelevanceDistanceScale maps a store distance to relevance as
// 1 - distance/RelevanceDistanceScale. Every backend reports cosine distance,
// which lies in [0, 2].
const RelevanceDistanceScale = 2.0

var (
	// ErrInvalidK is returned for a non-positive result count.
	ErrInvalidK = vectorstore.ErrInvalidK

	// ErrUnknownType is returned when a document's type has no known group.
	ErrUnknownType = errors.New("unknown document type")

	// ErrNilSchema is returned by Ingest when no schema is given.
	ErrNilSchema = errors.New("schema is required")
)

// SearchRequest describes a ranked retrieval for one tenant.
type SearchRequest struct {
	Query             string
	Tenant            vectorstore.Tenant
	SchemaName        string // optional database schema restriction
	K                 int
	IncludeEmbeddings bool
}

// RankedResult is one retrieved document with its relevance.
type RankedResult struct {
	Content   string               `json:"content"`
	Metadata  vectorstore.Metadata `json:"metadata"`
	Relevance float64              `json:"relevance"`
	Embedding []float32            `json:"embedding,omitempty"`
}

// Type returns the document type recorded in the result's metadata.
func (r RankedResult) Type() string {
	return r.Metadata[vectorstore.KeyType]
}

// IngestReport summarizes one Ingest call.
type IngestReport struct {
	Tables        int               `json:"tables"`
	Relationships int               `json:"relationships"`
	Written       []string          `json:"written"`
	Failed        map[string]string `json:"failed,omitempty"`
}

// Relevance converts a cosine distance into a score in [0, 1]. It is
// monotonically non-increasing in distance.
func Relevance(distance float64) float64 {
	if math.IsNaN(distance) {
		return 0
	}
	r := 1 - distance/RelevanceDistanceScale
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	}
	return r
}

package vectorstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Metadata is the flat string map attached to every document.
type Metadata map[string]string

// Clone returns an independent copy.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Document is the unit of storage: rendered text, its metadata and its embedding.
type Document struct {
	ID       string    `json:"id"`
	Content  string    `json:"content"`
	Metadata Metadata  `json:"metadata"`
	Vector   []float32 `json:"vector,omitempty"`
}

// Clone returns a deep copy so stored documents never alias caller memory.
func (d Document) Clone() Document {
	out := Document{
		ID:       d.ID,
		Content:  d.Content,
		Metadata: d.Metadata.Clone(),
	}
	if d.Vector != nil {
		out.Vector = make([]float32, len(d.Vector))
		copy(out.Vector, d.Vector)
	}
	return out
}

// Validate checks the document against a store of the given dimension.
func (d Document) Validate(dimension int) error {
	if d.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDocument)
	}
	if err := TenantOf(d.Metadata).Validate(); err != nil {
		return err
	}
	for _, key := range []string{payloadContentKey, payloadIDKey} {
		if _, ok := d.Metadata[key]; ok {
			return fmt.Errorf("%w: %q", ErrReservedKey, key)
		}
	}
	if len(d.Vector) != dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(d.Vector), dimension)
	}
	if IsZeroVector(d.Vector) {
		return ErrZeroVector
	}
	return nil
}

// DocumentID derives the stable identifier of a schema element. The digest covers
// the element type, the tenant and the element's natural key, so re-ingesting the
// same element for the same tenant always targets the same document.
func DocumentID(docType string, tenant Tenant, naturalKey ...string) string {
	h := sha256.New()
	fields := append([]string{docType, tenant.UserID, tenant.ConnectionID}, naturalKey...)
	for i, f := range fields {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))
}

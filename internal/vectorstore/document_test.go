package vectorstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Document)
		wantErr error
	}{
		{"valid", func(*Document) {}, nil},
		{"missing id", func(d *Document) { d.ID = "" }, ErrInvalidDocument},
		{"missing user", func(d *Document) { delete(d.Metadata, KeyUserID) }, ErrMissingTenant},
		{"missing connection", func(d *Document) { d.Metadata[KeyConnectionID] = "" }, ErrMissingTenant},
		{"reserved content key", func(d *Document) { d.Metadata["content"] = "x" }, ErrReservedKey},
		{"reserved id key", func(d *Document) { d.Metadata["doc_id"] = "x" }, ErrReservedKey},
		{"short vector", func(d *Document) { d.Vector = d.Vector[:3] }, ErrDimensionMismatch},
		{"nil vector", func(d *Document) { d.Vector = nil }, ErrDimensionMismatch},
		{"zero vector", func(d *Document) { d.Vector = make([]float32, testDim) }, ErrZeroVector},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := testDoc(tenantA, "orders", "public", axis(0))
			tt.mutate(&doc)
			err := doc.Validate(testDim)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDocument_Clone(t *testing.T) {
	doc := testDoc(tenantA, "orders", "public", axis(0))
	clone := doc.Clone()

	clone.Metadata["table_name"] = "changed"
	clone.Vector[0] = 9

	assert.Equal(t, "orders", doc.Metadata["table_name"])
	assert.Equal(t, float32(1), doc.Vector[0])

	empty := Document{ID: "x"}.Clone()
	assert.Nil(t, empty.Metadata)
	assert.Nil(t, empty.Vector)
}

func TestDocumentID(t *testing.T) {
	id := DocumentID("table", tenantA, "public", "orders")

	assert.Len(t, id, 64)
	assert.Equal(t, id, DocumentID("table", tenantA, "public", "orders"), "stable across calls")
	assert.NotEqual(t, id, DocumentID("table", tenantB, "public", "orders"), "tenant is part of the id")
	assert.NotEqual(t, id, DocumentID("relationship", tenantA, "public", "orders"), "type is part of the id")
	assert.NotEqual(t, id, DocumentID("table", tenantA, "audit", "orders"))

	// Field boundaries are unambiguous.
	assert.NotEqual(t,
		DocumentID("table", tenantA, "ab", "c"),
		DocumentID("table", tenantA, "a", "bc"),
	)
}

func TestPartialWriteError(t *testing.T) {
	pwe := &PartialWriteError{
		Written: []string{"ok"},
		Failed: map[string]error{
			"b":  ErrZeroVector,
			"#2": ErrInvalidDocument,
		},
	}

	assert.Equal(t, []string{"#2", "b"}, pwe.FailedIDs())
	assert.Contains(t, pwe.Error(), "2 of 3 documents failed")
	assert.True(t, errors.Is(pwe, ErrZeroVector))
	assert.True(t, errors.Is(pwe, ErrInvalidDocument))
	assert.False(t, errors.Is(pwe, ErrDimensionMismatch))

	written, err := upsertResult([]string{"a"}, map[string]error{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, written)

	assert.Equal(t, "#3", failureKey(Document{}, 3))
	assert.Equal(t, "x", failureKey(Document{ID: "x"}, 3))
}

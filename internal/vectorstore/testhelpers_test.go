package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testDim = 8

var (
	tenantA = Tenant{UserID: "user-a", ConnectionID: "conn-1"}
	tenantB = Tenant{UserID: "user-b", ConnectionID: "conn-1"}
)

// axis returns the unit vector along dimension i.
func axis(i int) []float32 {
	v := make([]float32, testDim)
	v[i] = 1
	return v
}

// neg returns -v.
func neg(v []float32) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = -x
	}
	return out
}

// testDoc builds a valid table document for tenant t.
func testDoc(t Tenant, name, schemaName string, vec []float32) Document {
	md := t.Metadata()
	md[KeyType] = "table"
	md["table_name"] = name
	if schemaName != "" {
		md[KeySchemaName] = schemaName
	}
	return Document{
		ID:       DocumentID("table", t, name),
		Content:  "Table: " + name,
		Metadata: md,
		Vector:   vec,
	}
}

// createTestMemoryStore creates a memory store without persistence.
func createTestMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	store, err := NewMemoryStore(MemoryConfig{VectorSize: testDim}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// createTestChromemStore creates a chromem store in a unique temporary directory.
func createTestChromemStore(t *testing.T) *ChromemStore {
	t.Helper()
	store, err := NewChromemStore(ChromemConfig{
		Path:       t.TempDir(),
		Collection: "test_schema",
		VectorSize: testDim,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

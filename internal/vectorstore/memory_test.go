package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryConfig_Defaults(t *testing.T) {
	cfg := MemoryConfig{}
	cfg.ApplyDefaults()
	assert.Equal(t, 512, cfg.VectorSize)
	assert.NoError(t, cfg.Validate())

	bad := MemoryConfig{VectorSize: -4}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)
}

func TestMemoryStore_GetKeepsInsertionOrder(t *testing.T) {
	store := createTestMemoryStore(t)
	ctx := context.Background()

	names := []string{"zeta", "alpha", "mid"}
	for i, name := range names {
		_, err := store.Upsert(ctx, []Document{testDoc(tenantA, name, "public", axis(i))})
		require.NoError(t, err)
	}

	// Replacing a document keeps its slot.
	_, err := store.Upsert(ctx, []Document{testDoc(tenantA, "zeta", "public", axis(5))})
	require.NoError(t, err)

	docs, err := store.Get(ctx, ForTenant(tenantA))
	require.NoError(t, err)
	require.Len(t, docs, 3)
	for i, name := range names {
		assert.Equal(t, name, docs[i].Metadata["table_name"])
	}
	assert.Equal(t, axis(5), docs[0].Vector)
}

func TestMemoryStore_QueryTiesKeepInsertionOrder(t *testing.T) {
	store := createTestMemoryStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, []Document{
		testDoc(tenantA, "b", "public", axis(1)),
		testDoc(tenantA, "a", "public", axis(2)),
		testDoc(tenantA, "c", "public", axis(3)),
	})
	require.NoError(t, err)

	matches, err := store.Query(ctx, axis(0), ForTenant(tenantA), 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "b", matches[0].Document.Metadata["table_name"])
	assert.Equal(t, "a", matches[1].Document.Metadata["table_name"])
	assert.Equal(t, "c", matches[2].Document.Metadata["table_name"])
}

func TestMemoryStore_ResultsDoNotAliasStorage(t *testing.T) {
	store := createTestMemoryStore(t)
	ctx := context.Background()

	doc := testDoc(tenantA, "orders", "public", axis(0))
	_, err := store.Upsert(ctx, []Document{doc})
	require.NoError(t, err)

	doc.Vector[0] = 42
	doc.Metadata["table_name"] = "mutated"

	got, err := store.Get(ctx, ForTenant(tenantA))
	require.NoError(t, err)
	got[0].Metadata["table_name"] = "mutated again"
	got[0].Vector[1] = 7

	again, err := store.Get(ctx, ForTenant(tenantA))
	require.NoError(t, err)
	assert.Equal(t, "orders", again[0].Metadata["table_name"])
	assert.Equal(t, axis(0), again[0].Vector)
}

func TestMemoryStore_RejectsReservedKeys(t *testing.T) {
	store := createTestMemoryStore(t)

	doc := testDoc(tenantA, "orders", "public", axis(0))
	doc.Metadata[payloadContentKey] = "sneaky"

	_, err := store.Upsert(context.Background(), []Document{doc})
	assert.ErrorIs(t, err, ErrReservedKey)
}

func TestMemoryStore_DeleteThenReinsert(t *testing.T) {
	store := createTestMemoryStore(t)
	ctx := context.Background()

	doc := testDoc(tenantA, "orders", "public", axis(0))
	_, err := store.Upsert(ctx, []Document{doc})
	require.NoError(t, err)

	removed, err := store.Delete(ctx, ForTenant(tenantA))
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = store.Upsert(ctx, []Document{doc})
	require.NoError(t, err)

	matches, err := store.Query(ctx, axis(0), ForTenant(tenantA), 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, doc.ID, matches[0].Document.ID)
}

func TestMemoryStore_Concurrency(t *testing.T) {
	store := createTestMemoryStore(t)
	ctx := context.Background()

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			tenant := Tenant{UserID: fmt.Sprintf("user-%d", w), ConnectionID: "conn"}
			for i := 0; i < perWriter; i++ {
				_, err := store.Upsert(ctx, []Document{
					testDoc(tenant, fmt.Sprintf("t%d", i), "public", axis(i%testDim)),
				})
				assert.NoError(t, err)
				_, err = store.Query(ctx, axis(0), ForTenant(tenant), 3)
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < writers; w++ {
		tenant := Tenant{UserID: fmt.Sprintf("user-%d", w), ConnectionID: "conn"}
		n, err := store.Count(ctx, ForTenant(tenant))
		require.NoError(t, err)
		assert.Equal(t, perWriter, n)
	}
}

func TestMemoryStore_Snapshot(t *testing.T) {
	for _, compress := range []bool{false, true} {
		t.Run(fmt.Sprintf("compress=%v", compress), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state", "snapshot.bin")
			cfg := MemoryConfig{VectorSize: testDim, SnapshotPath: path, Compress: compress}
			ctx := context.Background()

			store, err := NewMemoryStore(cfg, zap.NewNop())
			require.NoError(t, err)
			_, err = store.Upsert(ctx, []Document{
				testDoc(tenantA, "orders", "public", axis(0)),
				testDoc(tenantA, "customers", "public", axis(1)),
				testDoc(tenantB, "orders", "public", axis(2)),
			})
			require.NoError(t, err)
			_, err = store.Delete(ctx, ForTenant(tenantB))
			require.NoError(t, err)
			require.NoError(t, store.Close())

			raw, err := os.ReadFile(path)
			require.NoError(t, err)
			if compress {
				assert.Equal(t, zstdMagic, raw[:4])
			} else {
				assert.NotEqual(t, zstdMagic, raw[:4])
			}

			reopened, err := NewMemoryStore(cfg, zap.NewNop())
			require.NoError(t, err)
			t.Cleanup(func() { _ = reopened.Close() })

			docs, err := reopened.Get(ctx, ForTenant(tenantA))
			require.NoError(t, err)
			require.Len(t, docs, 2)
			assert.Equal(t, "orders", docs[0].Metadata["table_name"])
			assert.Equal(t, "customers", docs[1].Metadata["table_name"])

			n, err := reopened.Count(ctx, ForTenant(tenantB))
			require.NoError(t, err)
			assert.Zero(t, n)

			matches, err := reopened.Query(ctx, axis(1), ForTenant(tenantA), 1)
			require.NoError(t, err)
			require.Len(t, matches, 1)
			assert.Equal(t, "customers", matches[0].Document.Metadata["table_name"])
		})
	}
}

func TestMemoryStore_SnapshotDimensionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.bin")

	store, err := NewMemoryStore(MemoryConfig{VectorSize: testDim, SnapshotPath: path}, zap.NewNop())
	require.NoError(t, err)
	_, err = store.Upsert(context.Background(), []Document{testDoc(tenantA, "orders", "public", axis(0))})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = NewMemoryStore(MemoryConfig{VectorSize: 16, SnapshotPath: path}, zap.NewNop())
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMemoryStore_CorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.bin")
	require.NoError(t, os.WriteFile(path, []byte("not a snapshot"), 0o600))

	_, err := NewMemoryStore(MemoryConfig{VectorSize: testDim, SnapshotPath: path}, zap.NewNop())
	assert.Error(t, err)
}

func TestMemoryStore_Closed(t *testing.T) {
	store, err := NewMemoryStore(MemoryConfig{VectorSize: testDim}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close(), "Close is idempotent")

	ctx := context.Background()
	_, err = store.Get(ctx, ForTenant(tenantA))
	assert.ErrorIs(t, err, ErrStoreClosed)

	_, err = store.Count(ctx, ForTenant(tenantA))
	assert.ErrorIs(t, err, ErrStoreClosed)

	_, err = store.Query(ctx, axis(0), ForTenant(tenantA), 1)
	assert.ErrorIs(t, err, ErrStoreClosed)

	_, err = store.Delete(ctx, ForTenant(tenantA))
	assert.ErrorIs(t, err, ErrStoreClosed)

	_, err = store.Upsert(ctx, []Document{testDoc(tenantA, "orders", "public", axis(0))})
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestMemoryStore_CloseKeepsAcknowledgedWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.bin")
	cfg := MemoryConfig{VectorSize: testDim, SnapshotPath: path}
	store, err := NewMemoryStore(cfg, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	var (
		mu    sync.Mutex
		acked = make(map[string]bool)
		wg    sync.WaitGroup
		start = make(chan struct{})
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			<-start
			for i := 0; i < 200; i++ {
				doc := testDoc(tenantA, fmt.Sprintf("t_%d_%d", w, i), "public", axis(i%testDim))
				written, err := store.Upsert(ctx, []Document{doc})
				if err != nil {
					assert.ErrorIs(t, err, ErrStoreClosed)
				}
				mu.Lock()
				for _, id := range written {
					acked[id] = true
				}
				mu.Unlock()
			}
		}(w)
	}

	close(start)
	require.NoError(t, store.Close())
	wg.Wait()

	reopened, err := NewMemoryStore(cfg, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	docs, err := reopened.Get(ctx, ForTenant(tenantA))
	require.NoError(t, err)
	persisted := make(map[string]bool, len(docs))
	for _, d := range docs {
		persisted[d.ID] = true
	}
	assert.Equal(t, acked, persisted, "every acknowledged write must be in the snapshot")
}

// Package vectorstore provides tenant-scoped vector storage for schema documents.
//
// A Store persists Documents (id, content, string metadata, embedding) and answers
// filtered nearest-neighbour queries. Every read and write is scoped to exactly one
// tenant, identified by the user_id and connection_id metadata keys. Filters without
// both keys are rejected with ErrMissingTenant; a Store never returns documents of a
// different tenant.
//
// # Backends
//
//   - MemoryStore (default): in-process, roaring bitmap posting lists over the filter
//     keys, optional zstd-compressed snapshot written on Flush/Close.
//   - ChromemStore: embedded chromem-go database persisted to a directory.
//   - QdrantStore: external Qdrant server over gRPC.
//
// All backends use cosine distance (1 - cosine similarity, range [0, 2]). A zero
// query vector has no direction; every candidate is then reported at distance 1.
//
// # Usage
//
//	store, err := vectorstore.NewMemoryStore(vectorstore.MemoryConfig{VectorSize: 512}, logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	filter := vectorstore.Filter{Tenant: vectorstore.Tenant{UserID: "u1", ConnectionID: "c1"}}
//	matches, err := store.Query(ctx, vector, filter, 5)
package vectorstore

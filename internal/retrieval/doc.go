// Package retrieval answers schema-context queries for a tenant.
//
// Engine embeds a natural-language query, ranks the tenant's stored table and
// relationship documents by cosine distance and groups them by type:
//
//	engine, err := retrieval.NewEngine(embedder, store, retrieval.WithLogger(logger))
//	sc, err := engine.Search(ctx, retrieval.SearchRequest{
//	    Query:  "total sales per customer",
//	    Tenant: vectorstore.Tenant{UserID: "user1", ConnectionID: "conn1"},
//	    K:      5,
//	})
//	for _, t := range sc.Tables() {
//	    fmt.Println(t.Relevance, t.Metadata["table_name"])
//	}
//
// Relevance is 1 - distance/RelevanceDistanceScale clamped to [0, 1]. GetAll
// returns the whole tenant schema with relevance 1. Ingest renders a
// schema.Schema into documents and writes them; DropConnection removes them.
package retrieval

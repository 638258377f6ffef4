package schema

import (
	"sort"
	"strings"

	"github.com/fyrsmithlabs/schemactx/internal/vectorstore"
)

// Metadata keys written by Documents in addition to the store-level keys.
const (
	KeyTableName        = "table_name"
	KeySourceTable      = "source_table"
	KeyTargetTable      = "target_table"
	KeyDatabase         = "database"
	KeyRelationshipType = "relationship_type"
)

// Documents renders every table and relationship of s into documents owned by
// tenant. Vectors are left empty for the caller to fill. Tables come first in
// schema order, then one document per (source_table, target_table) pair in
// first-seen order.
func Documents(tenant vectorstore.Tenant, s *Schema) []vectorstore.Document {
	docs := make([]vectorstore.Document, 0, len(s.Tables)+len(s.Relationships))

	for _, t := range s.Tables {
		md := tenant.Metadata()
		md[vectorstore.KeyType] = TypeTable
		md[KeyTableName] = t.Name
		setIfPresent(md, vectorstore.KeySchemaName, t.DBSchema)
		setIfPresent(md, KeyDatabase, s.Name)

		docs = append(docs, vectorstore.Document{
			ID:       vectorstore.DocumentID(TypeTable, tenant, t.Name),
			Content:  RenderTable(s.Name, t),
			Metadata: md,
		})
	}

	for _, g := range groupRelationships(s.Relationships) {
		md := tenant.Metadata()
		md[vectorstore.KeyType] = TypeRelationship
		md[KeySourceTable] = g.source
		md[KeyTargetTable] = g.target
		md[KeyRelationshipType] = strings.Join(relationshipTypes(g.rels), ",")
		setIfPresent(md, KeyDatabase, s.Name)
		setIfPresent(md, vectorstore.KeySchemaName, relationshipSchema(s, g.source, g.target))

		docs = append(docs, vectorstore.Document{
			ID:       vectorstore.DocumentID(TypeRelationship, tenant, g.source, g.target),
			Content:  RenderRelationships(g.source, g.target, g.rels),
			Metadata: md,
		})
	}

	return docs
}

// relationshipSchema is the db schema of the source table, falling back to
// the target table and then to a "schema.table" qualifier on either name.
func relationshipSchema(s *Schema, source, target string) string {
	for _, name := range []string{source, target} {
		if t, ok := s.Table(name); ok && t.DBSchema != "" {
			return t.DBSchema
		}
	}
	for _, name := range []string{source, target} {
		if qualifier, _, ok := strings.Cut(name, "."); ok && qualifier != "" {
			return qualifier
		}
	}
	return ""
}

type relationshipGroup struct {
	source, target string
	rels           []Relationship
}

// groupRelationships groups by (source, target) keeping first-seen order.
// Within a group links are ordered by source then target column.
func groupRelationships(rels []Relationship) []relationshipGroup {
	var groups []relationshipGroup
	index := map[[2]string]int{}
	for _, r := range rels {
		key := [2]string{r.SourceTable, r.TargetTable}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, relationshipGroup{source: r.SourceTable, target: r.TargetTable})
		}
		groups[i].rels = append(groups[i].rels, r)
	}
	for _, g := range groups {
		sort.SliceStable(g.rels, func(a, b int) bool {
			if g.rels[a].SourceColumn != g.rels[b].SourceColumn {
				return g.rels[a].SourceColumn < g.rels[b].SourceColumn
			}
			return g.rels[a].TargetColumn < g.rels[b].TargetColumn
		})
	}
	return groups
}

func setIfPresent(md vectorstore.Metadata, key, value string) {
	if value != "" {
		md[key] = value
	}
}

package schema

import (
	"fmt"
	"sort"
	"strings"
)

// RenderTable renders a table as the canonical text that gets embedded.
//
//	Table: orders
//	Database: shop
//	Schema: public
//	Columns:
//	- id (integer) PRIMARY KEY NOT NULL
//	- customer_id (integer) FOREIGN KEY -> customers.id NOT NULL
//	Primary keys: id
//	Foreign keys: customer_id -> customers.id
//	Description: Table orders in schema public has 2 columns ...
func RenderTable(database string, t Table) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Table: %s\n", t.Name)
	if database != "" {
		fmt.Fprintf(&b, "Database: %s\n", database)
	}
	if t.DBSchema != "" {
		fmt.Fprintf(&b, "Schema: %s\n", t.DBSchema)
	}

	b.WriteString("Columns:\n")
	for _, c := range t.Columns {
		b.WriteString("- ")
		b.WriteString(renderColumn(t, c))
		b.WriteByte('\n')
	}

	pks := primaryKeys(t)
	if len(pks) > 0 {
		fmt.Fprintf(&b, "Primary keys: %s\n", strings.Join(pks, ", "))
	}

	fks := sortedKeys(t.ForeignKeys)
	if len(fks) > 0 {
		links := make([]string, len(fks))
		for i, col := range fks {
			links[i] = col + " -> " + t.ForeignKeys[col]
		}
		fmt.Fprintf(&b, "Foreign keys: %s\n", strings.Join(links, ", "))
	}

	fmt.Fprintf(&b, "Description: %s", describeTable(t, pks, fks))
	return b.String()
}

func renderColumn(t Table, c Column) string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteString(" (")
	b.WriteString(c.DataType)
	if c.MaxLength != nil {
		fmt.Fprintf(&b, "(%d)", *c.MaxLength)
	}
	b.WriteByte(')')
	if t.IsPrimaryKey(c) {
		b.WriteString(" PRIMARY KEY")
	}
	if ref, ok := t.ForeignKeys[c.Name]; ok {
		b.WriteString(" FOREIGN KEY -> ")
		b.WriteString(ref)
	}
	if c.IsNullable {
		b.WriteString(" NULL")
	} else {
		b.WriteString(" NOT NULL")
	}
	return b.String()
}

// primaryKeys merges PrimaryKeys with flagged columns, in column order.
func primaryKeys(t Table) []string {
	var out []string
	for _, c := range t.Columns {
		if t.IsPrimaryKey(c) {
			out = append(out, c.Name)
		}
	}
	return out
}

func describeTable(t Table, pks, fks []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table %s", t.Name)
	if t.DBSchema != "" {
		fmt.Fprintf(&b, " in schema %s", t.DBSchema)
	}
	fmt.Fprintf(&b, " has %d %s", len(t.Columns), plural(len(t.Columns), "column", "columns"))

	if len(pks) > 0 {
		fmt.Fprintf(&b, ", identified by %s", strings.Join(pks, ", "))
	}

	if len(fks) > 0 {
		targets := make([]string, 0, len(fks))
		seen := map[string]bool{}
		for _, col := range fks {
			table, _, ok := SplitReference(t.ForeignKeys[col])
			if !ok || seen[table] {
				continue
			}
			seen[table] = true
			targets = append(targets, table)
		}
		if len(targets) > 0 {
			fmt.Fprintf(&b, ", and references %s", strings.Join(targets, ", "))
		}
	}
	b.WriteByte('.')
	return b.String()
}

// RenderRelationships renders every relationship between one source and one
// target table as a single document text.
func RenderRelationships(source, target string, rels []Relationship) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Relationship: %s -> %s\n", source, target)
	fmt.Fprintf(&b, "Source table: %s\n", source)
	fmt.Fprintf(&b, "Target table: %s\n", target)
	fmt.Fprintf(&b, "Type: %s\n", strings.Join(relationshipTypes(rels), ", "))

	b.WriteString("Links:\n")
	columns := make([]string, 0, len(rels))
	for _, r := range rels {
		fmt.Fprintf(&b, "- %s.%s -> %s.%s (%s)\n", r.SourceTable, r.SourceColumn, r.TargetTable, r.TargetColumn, r.Type)
		columns = append(columns, r.SourceColumn)
	}

	fmt.Fprintf(&b, "Description: %s references %s through %s.", source, target, strings.Join(columns, ", "))
	return b.String()
}

func relationshipTypes(rels []Relationship) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range rels {
		if !seen[r.Type] {
			seen[r.Type] = true
			out = append(out, r.Type)
		}
	}
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

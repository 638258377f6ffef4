// Package schema defines the database schema description accepted at ingestion
// and renders its tables and relationships into embeddable documents.
package schema

import (
	"encoding/json"
	"fmt"
	"io"
)

// Element types stored in document metadata.
const (
	TypeTable        = "table"
	TypeRelationship = "relationship"
)

// Relationship types produced by introspection. Other non-empty types, such
// as "inherits" or "belongs_to", are kept as given.
const (
	OneToOne   = "one_to_one"
	OneToMany  = "one_to_many"
	ManyToOne  = "many_to_one"
	ManyToMany = "many_to_many"
)

// Schema is one database's structure as extracted from its catalog.
type Schema struct {
	// Name is the database name.
	Name          string         `json:"name" validate:"required"`
	Tables        []Table        `json:"tables" validate:"dive"`
	Relationships []Relationship `json:"relationships" validate:"dive"`
}

// Table describes one table.
type Table struct {
	Name     string   `json:"name" validate:"required"`
	DBSchema string   `json:"db_schema"`
	Columns  []Column `json:"columns" validate:"dive"`

	PrimaryKeys []string `json:"primary_keys"`

	// ForeignKeys maps a local column to "table.column".
	ForeignKeys map[string]string `json:"foreign_keys"`
}

// Column describes one table column.
type Column struct {
	Name         string `json:"name" validate:"required"`
	DataType     string `json:"data_type" validate:"required"`
	IsPrimaryKey bool   `json:"is_primary_key"`
	IsNullable   bool   `json:"is_nullable"`
	MaxLength    *int   `json:"max_length,omitempty" validate:"omitempty,gt=0"`
}

// Relationship links a source column to a target column.
type Relationship struct {
	SourceTable  string `json:"source_table" validate:"required"`
	SourceColumn string `json:"source_column" validate:"required"`
	TargetTable  string `json:"target_table" validate:"required"`
	TargetColumn string `json:"target_column" validate:"required"`
	Type         string `json:"type" validate:"required"`
}

// Decode reads a JSON schema and validates it.
func Decode(r io.Reader) (*Schema, error) {
	var s Schema
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decoding schema: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Table returns the table with the given name.
func (s *Schema) Table(name string) (Table, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// IsPrimaryKey reports whether column is part of the table's primary key,
// either flagged on the column or listed in PrimaryKeys.
func (t Table) IsPrimaryKey(c Column) bool {
	if c.IsPrimaryKey {
		return true
	}
	for _, pk := range t.PrimaryKeys {
		if pk == c.Name {
			return true
		}
	}
	return false
}

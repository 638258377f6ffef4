package retrieval

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/fyrsmithlabs/schemactx/internal/schema"
)

// Group names for the built-in element types.
const (
	GroupTables        = "tables"
	GroupRelationships = "relationships"
)

// Aggregator groups ranked results by document type. The set of known types
// is fixed at construction; results of any other type are rejected.
type Aggregator struct {
	groups map[string]string // type -> group
	order  []string          // group names in output order
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithKind registers an additional document type and the group it lands in.
func WithKind(docType, group string) AggregatorOption {
	return func(a *Aggregator) {
		a.add(docType, group)
	}
}

// NewAggregator returns an aggregator knowing tables and relationships plus
// any kinds added through options.
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{groups: make(map[string]string)}
	a.add(schema.TypeTable, GroupTables)
	a.add(schema.TypeRelationship, GroupRelationships)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Aggregator) add(docType, group string) {
	a.groups[docType] = group
	for _, g := range a.order {
		if g == group {
			return
		}
	}
	a.order = append(a.order, group)
}

// Empty returns a context with every known group present and empty.
func (a *Aggregator) Empty() *SchemaContext {
	sc := &SchemaContext{
		order:  a.order,
		groups: make(map[string][]RankedResult, len(a.order)),
	}
	for _, g := range a.order {
		sc.groups[g] = []RankedResult{}
	}
	return sc
}

// Aggregate groups results by type, keeping their relative order within each
// group. It fails on the first result whose type is unknown.
func (a *Aggregator) Aggregate(results []RankedResult) (*SchemaContext, error) {
	sc := a.Empty()
	for _, r := range results {
		group, ok := a.groups[r.Type()]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownType, r.Type())
		}
		sc.groups[group] = append(sc.groups[group], r)
	}
	return sc, nil
}

// SchemaContext is retrieval output grouped by element type.
type SchemaContext struct {
	order  []string
	groups map[string][]RankedResult
}

// Tables returns the table results.
func (c *SchemaContext) Tables() []RankedResult {
	return c.groups[GroupTables]
}

// Relationships returns the relationship results.
func (c *SchemaContext) Relationships() []RankedResult {
	return c.groups[GroupRelationships]
}

// Group returns the results of a named group, or nil when unknown.
func (c *SchemaContext) Group(name string) []RankedResult {
	return c.groups[name]
}

// Groups returns the group names in output order.
func (c *SchemaContext) Groups() []string {
	return append([]string(nil), c.order...)
}

// Len returns the total number of results.
func (c *SchemaContext) Len() int {
	n := 0
	for _, rs := range c.groups {
		n += len(rs)
	}
	return n
}

// MarshalJSON encodes the groups as an object in output order. Known groups
// are always present as arrays.
func (c *SchemaContext) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, g := range c.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(g)
		if err != nil {
			return nil, err
		}
		results := c.groups[g]
		if results == nil {
			results = []RankedResult{}
		}
		val, err := json.Marshal(results)
		if err != nil {
			return nil, fmt.Errorf("encoding group %s: %w", g, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

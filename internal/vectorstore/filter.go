// Package vectorstore provides vector storage implementations.
package vectorstore

// Filter is a conjunctive equality predicate over document metadata. Tenant is
// mandatory; SchemaName and Type narrow the result when set.
type Filter struct {
	Tenant     Tenant
	SchemaName string
	Type       string
}

// ForTenant returns a filter matching every document of the tenant.
func ForTenant(t Tenant) Filter {
	return Filter{Tenant: t}
}

// WithSchema returns a copy of the filter restricted to one database schema.
func (f Filter) WithSchema(name string) Filter {
	f.SchemaName = name
	return f
}

// WithType returns a copy of the filter restricted to one element type.
func (f Filter) WithType(docType string) Filter {
	f.Type = docType
	return f
}

// Validate rejects filters without a complete tenant.
func (f Filter) Validate() error {
	return f.Tenant.Validate()
}

// Terms returns the filter as key/value equality terms. The map is freshly
// allocated and safe to pass to backends that retain it.
func (f Filter) Terms() map[string]string {
	terms := map[string]string{
		KeyUserID:       f.Tenant.UserID,
		KeyConnectionID: f.Tenant.ConnectionID,
	}
	if f.SchemaName != "" {
		terms[KeySchemaName] = f.SchemaName
	}
	if f.Type != "" {
		terms[KeyType] = f.Type
	}
	return terms
}

// Matches reports whether metadata satisfies every term of the filter.
func (f Filter) Matches(m Metadata) bool {
	for k, v := range f.Terms() {
		if m[k] != v {
			return false
		}
	}
	return true
}

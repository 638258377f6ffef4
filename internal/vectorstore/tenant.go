// Package vectorstore provides vector storage implementations.
package vectorstore

import (
	"errors"
	"fmt"
)

// ErrMissingTenant is returned when a filter or document lacks user_id or
// connection_id. Operations fail closed: no partial or cross-tenant results.
var ErrMissingTenant = errors.New("tenant user_id and connection_id are required")

// Tenant identifies the owner of a set of documents: one user's view of one
// database connection.
type Tenant struct {
	UserID       string `json:"user_id"`
	ConnectionID string `json:"connection_id"`
}

// Validate checks that both tenant fields are present.
func (t Tenant) Validate() error {
	switch {
	case t.UserID == "" && t.ConnectionID == "":
		return ErrMissingTenant
	case t.UserID == "":
		return fmt.Errorf("%w: missing user_id", ErrMissingTenant)
	case t.ConnectionID == "":
		return fmt.Errorf("%w: missing connection_id", ErrMissingTenant)
	}
	return nil
}

// Metadata returns the tenant as document metadata.
func (t Tenant) Metadata() Metadata {
	return Metadata{
		KeyUserID:       t.UserID,
		KeyConnectionID: t.ConnectionID,
	}
}

// String returns "user_id/connection_id".
func (t Tenant) String() string {
	return t.UserID + "/" + t.ConnectionID
}

// TenantOf reads the tenant recorded in document metadata.
func TenantOf(m Metadata) Tenant {
	return Tenant{
		UserID:       m[KeyUserID],
		ConnectionID: m[KeyConnectionID],
	}
}

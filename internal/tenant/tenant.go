// Package tenant provides tenant identification and validation.
//
// A tenant is the owning user or account and the unit of data isolation.
// Every stored point carries the tenant id in its payload; every query is
// scoped to exactly one tenant. Validation is fail-closed: operations reject
// empty or malformed tenant identifiers before touching the store.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"
)

// Tenant isolation errors - fail closed security model.
var (
	// ErrMissingTenant is returned when a tenant id is absent.
	ErrMissingTenant = errors.New("tenant id required")

	// ErrInvalidTenant is returned when a tenant identifier is malformed.
	ErrInvalidTenant = errors.New("invalid tenant identifier")
)

const maxIDLen = 128

// idPattern allows alphanumeric, hyphen, underscore.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateID checks a tenant identifier.
func ValidateID(id string) error {
	if id == "" {
		return ErrMissingTenant
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%w: invalid UTF-8", ErrInvalidTenant)
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("%w: exceeds max length %d", ErrInvalidTenant, maxIDLen)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: must be alphanumeric, hyphen or underscore", ErrInvalidTenant)
	}
	return nil
}

// ctxKey is the context key for the tenant id.
type ctxKey struct{}

// WithID adds a tenant id to the context.
func WithID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, tenantID)
}

// FromContext extracts the tenant id from context.
// Returns ErrMissingTenant if not present - fail closed.
func FromContext(ctx context.Context) (string, error) {
	id, ok := ctx.Value(ctxKey{}).(string)
	if !ok || id == "" {
		return "", ErrMissingTenant
	}
	return id, nil
}

package tenants

import (
	"context"
	"errors"
)

// ErrPrincipalNotFound is returned when the directory has no mapping for a principal.
// It is a definitive answer, not an outage.
var ErrPrincipalNotFound = errors.New("principal not found")

// Directory maps a principal's stable identifier to the tenant identifiers it may act as.
// Implementations must honor ctx cancellation and deadlines.
type Directory interface {
	TenantsForPrincipal(ctx context.Context, principalID string) ([]string, error)
}

// DirectoryFunc adapts a function into a Directory.
type DirectoryFunc func(ctx context.Context, principalID string) ([]string, error)

func (f DirectoryFunc) TenantsForPrincipal(ctx context.Context, principalID string) ([]string, error) {
	return f(ctx, principalID)
}

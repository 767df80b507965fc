// Package tenant carries the resolved tenant through a request's context and
// enforces it on every GORM statement against tenant-owned tables.
package tenant

import (
	"context"

	"blendcloud/internal/apierror"

	"github.com/google/uuid"
)

type ctxKey struct{}

var (
	// ErrNotResolved is returned whenever an operation needs a tenant and none is bound.
	ErrNotResolved = apierror.TenantNotResolved("No se pudo resolver el tenant de la operacion")
	// ErrMismatch is returned when a payload or a rebinding names another tenant.
	ErrMismatch = apierror.Forbidden("El tenant no coincide con el de la operacion")
)

// Bind attaches id to ctx. A context can be bound once: binding the same id
// again is a no-op, binding a different one fails with ErrMismatch.
func Bind(ctx context.Context, id uuid.UUID) (context.Context, error) {
	if id == uuid.Nil {
		return ctx, ErrNotResolved
	}
	if cur, ok := FromContext(ctx); ok {
		if cur == id {
			return ctx, nil
		}
		return ctx, ErrMismatch
	}
	return context.WithValue(ctx, ctxKey{}, id), nil
}

// FromContext returns the bound tenant, if any.
func FromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	id, ok := ctx.Value(ctxKey{}).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// Require returns the bound tenant or ErrNotResolved.
func Require(ctx context.Context) (uuid.UUID, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return uuid.Nil, ErrNotResolved
	}
	return id, nil
}

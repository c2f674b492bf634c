// Package auth carries the caller identity resolved by the upstream gateway.
package auth

import (
	"context"

	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/errors"
)

// UserContext is the identity of the current caller.
type UserContext struct {
	UserID     string
	TenantID   string // company id; empty when the user has no company
	Privileged bool
}

type ctxKey struct{}

// WithUserContext stores uc in ctx.
func WithUserContext(ctx context.Context, uc *UserContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, uc)
}

// GetUserContext returns the caller identity or an Unauthorized error.
func GetUserContext(ctx context.Context) (*UserContext, error) {
	uc, ok := ctx.Value(ctxKey{}).(*UserContext)
	if !ok || uc == nil || uc.UserID == "" {
		return nil, errors.Unauthorized("missing user identity")
	}
	return uc, nil
}

// CanAccessTenant reports whether the caller may read data owned by tenantID.
func (uc *UserContext) CanAccessTenant(tenantID string) bool {
	if uc.Privileged {
		return true
	}
	return uc.TenantID != "" && uc.TenantID == tenantID
}

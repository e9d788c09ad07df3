package core

import "context"

type scopeKey struct{}

// Scope carries the tenant and actor supplied by the (external) identity layer.
type Scope struct {
	TenantID string
	Actor    string
}

// WithScope returns a context carrying the given scope.
func WithScope(ctx context.Context, scope Scope) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFromContext returns the scope attached to ctx, or the zero Scope.
func ScopeFromContext(ctx context.Context) Scope {
	if ctx == nil {
		return Scope{}
	}
	if s, ok := ctx.Value(scopeKey{}).(Scope); ok {
		return s
	}
	return Scope{}
}

// TenantFromContext is shorthand for ScopeFromContext(ctx).TenantID.
func TenantFromContext(ctx context.Context) string {
	return ScopeFromContext(ctx).TenantID
}

// Package requesttrace carries request-scoped audit metadata: which request,
// bound to which tenant. Ledger writes stamp this so an upload batch can be
// traced back to the HTTP request that produced it.
package requesttrace

import (
	"context"
)

type contextKey struct{}

// AuditInfo captures request-scoped traceability metadata.
type AuditInfo struct {
	RequestID       string
	TenantSubdomain string
}

// IntoContext stores the AuditInfo in the provided context.
func IntoContext(ctx context.Context, audit AuditInfo) context.Context {
	return context.WithValue(ctx, contextKey{}, audit)
}

// FromContext extracts the AuditInfo, returning false when not present.
func FromContext(ctx context.Context) (AuditInfo, bool) {
	if ctx == nil {
		return AuditInfo{}, false
	}
	audit, ok := ctx.Value(contextKey{}).(AuditInfo)
	return audit, ok
}

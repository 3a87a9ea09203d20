// Package tenant defines the resolved tenant context threaded through every
// downstream call. Business logic never inspects hostnames itself; it receives
// a Context resolved once at the edge.
package tenant

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Features captures per-tenant feature toggles carried on the resolved context.
type Features struct {
	// Demo marks the shared demonstration tenant; ingestion into it is
	// allowed but flagged in batch summaries.
	Demo bool
}

// Context is the resolved routing identity of a request. It carries the
// encrypted data-store credentials verbatim; decryption is deferred until a
// connection is actually needed (see persistence.Connector).
type Context struct {
	ID           uuid.UUID
	Subdomain    string
	DisplayName  string
	SchemaName   string
	EncryptedDSN []byte
	Features     Features
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type ctxKey struct{}

// WithContext returns a derived context.Context carrying the tenant Context.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// FromContext extracts the tenant Context and a boolean indicating presence.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}

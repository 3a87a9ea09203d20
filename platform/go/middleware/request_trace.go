package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	platformlogging "github.com/channelpulse/channelpulse-saas/platform/go/logging"
	"github.com/channelpulse/channelpulse-saas/platform/go/requesttrace"
	"github.com/channelpulse/channelpulse-saas/platform/go/tenant"
)

// RequestTrace populates the context with request-scoped AuditInfo so services
// and stores can stamp traceability fields. It must run after the tenant
// routing middleware so the resolved subdomain is available.
func RequestTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID, _ := r.Context().Value(middleware.RequestIDKey).(string)

		audit := requesttrace.AuditInfo{RequestID: requestID}
		if tc, ok := tenant.FromContext(r.Context()); ok {
			audit.TenantSubdomain = tc.Subdomain
		}

		ctx := requesttrace.IntoContext(r.Context(), audit)
		if logger := platformlogging.FromRequest(r, nil); logger != nil && audit.TenantSubdomain != "" {
			ctx = platformlogging.WithLogger(ctx, logger.With(zap.String("tenant", audit.TenantSubdomain)))
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Package middleware resolves the tenant for each inbound request and attaches
// the resulting tenant.Context to the request context. Downstream handlers and
// services never look at hostnames themselves.
package middleware

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/channelpulse/channelpulse-saas/platform/go/tenant"
)

// OverrideHeader names the explicit tenant override header honored ahead of
// the Host subdomain.
const OverrideHeader = "X-Tenant-Override"

// Config controls middleware behavior.
type Config struct {
	// CacheTTL enables a small in-memory memo of resolved tenants to avoid
	// a registry round-trip per request; zero disables caching.
	CacheTTL time.Duration
}

// WithTenant resolves the request's tenant and stores it on the context.
// Inactive tenants are rejected with 403; resolution failures with 404.
func WithTenant(resolver *tenant.Resolver, cfg Config) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("tenant middleware: resolver is required")
	}

	var cache *memoCache
	if cfg.CacheTTL > 0 {
		cache = newMemoCache(cfg.CacheTTL)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hint := tenant.RoutingHint{
				Override: r.Header.Get(OverrideHeader),
				Host:     r.Host,
			}

			if tc, ok := cache.get(hint); ok {
				next.ServeHTTP(w, r.WithContext(tenant.WithContext(r.Context(), tc)))
				return
			}

			tc, err := resolver.Resolve(r.Context(), hint)
			if err != nil {
				switch {
				case errors.Is(err, tenant.ErrInactive):
					http.Error(w, "tenant is inactive", http.StatusForbidden)
				case errors.Is(err, tenant.ErrNotFound):
					http.Error(w, "tenant not found", http.StatusNotFound)
				default:
					http.Error(w, "tenant resolution failed", http.StatusInternalServerError)
				}
				return
			}

			cache.put(hint, tc)
			next.ServeHTTP(w, r.WithContext(tenant.WithContext(r.Context(), tc)))
		})
	}
}

type memoCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[tenant.RoutingHint]memoItem
}

type memoItem struct {
	tc        tenant.Context
	expiresAt time.Time
}

func newMemoCache(ttl time.Duration) *memoCache {
	return &memoCache{ttl: ttl, items: make(map[tenant.RoutingHint]memoItem)}
}

func (c *memoCache) get(hint tenant.RoutingHint) (tenant.Context, bool) {
	if c == nil {
		return tenant.Context{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[hint]
	if !ok || time.Now().After(item.expiresAt) {
		delete(c.items, hint)
		return tenant.Context{}, false
	}
	return item.tc, true
}

func (c *memoCache) put(hint tenant.RoutingHint, tc tenant.Context) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[hint] = memoItem{tc: tc, expiresAt: time.Now().Add(c.ttl)}
}

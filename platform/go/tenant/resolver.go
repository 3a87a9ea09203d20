package tenant

import (
	"context"
	"errors"
	"fmt"
)

// Errors surfaced by tenant resolution.
var (
	// ErrNotFound indicates no registry entry exists for the requested key.
	ErrNotFound = errors.New("tenant not found")
	// ErrInactive indicates the matched tenant is deactivated. Resolution
	// never degrades an inactive match to the default tenant.
	ErrInactive = errors.New("tenant is inactive")
)

// RoutingHint carries the raw routing inputs supplied by the transport layer.
type RoutingHint struct {
	// Override is an explicit tenant subdomain supplied out-of-band
	// (X-Tenant-Override header, CLI flag). Takes precedence over Host.
	Override string
	// Host is the request host header, possibly including a port.
	Host string
}

// Record is a registry row: the routing context plus its activation state.
type Record struct {
	Context
	IsActive bool
}

// Registry is the durable subdomain -> tenant mapping. Lookup returns the
// matching record regardless of its active flag so the resolver can
// distinguish "unknown" from "deactivated"; soft-deleted rows are reported as
// not found.
type Registry interface {
	Lookup(ctx context.Context, subdomain string) (Record, bool, error)
}

// Resolver binds routing hints to tenant contexts using a fixed fallback
// order: explicit override, then host subdomain, then the configured default
// tenant. Resolution is read-only and deterministic.
type Resolver struct {
	registry         Registry
	defaultSubdomain string
}

// NewResolver constructs a Resolver. defaultSubdomain names the demo/default
// tenant bound when neither hint matches.
func NewResolver(registry Registry, defaultSubdomain string) (*Resolver, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	defaultSubdomain = NormalizeSubdomain(defaultSubdomain)
	if defaultSubdomain == "" {
		return nil, errors.New("default tenant subdomain is required")
	}
	return &Resolver{registry: registry, defaultSubdomain: defaultSubdomain}, nil
}

// Resolve maps a RoutingHint to a tenant Context.
//
// An override or subdomain matching a registered but deactivated tenant fails
// with ErrInactive. Only hints matching nothing at all fall through to the
// default tenant.
func (r *Resolver) Resolve(ctx context.Context, hint RoutingHint) (Context, error) {
	if override := NormalizeSubdomain(hint.Override); override != "" {
		tc, found, err := r.lookup(ctx, override)
		if err != nil {
			return Context{}, err
		}
		if found {
			return tc, nil
		}
		// An explicit override naming an unknown tenant is a caller
		// error, not a reason to serve the default tenant's data.
		return Context{}, fmt.Errorf("override %q: %w", override, ErrNotFound)
	}

	if sub := SubdomainFromHost(hint.Host); sub != "" {
		tc, found, err := r.lookup(ctx, sub)
		if err != nil {
			return Context{}, err
		}
		if found {
			return tc, nil
		}
	}

	tc, found, err := r.lookup(ctx, r.defaultSubdomain)
	if err != nil {
		return Context{}, err
	}
	if !found {
		return Context{}, fmt.Errorf("default tenant %q: %w", r.defaultSubdomain, ErrNotFound)
	}
	return tc, nil
}

// lookup returns (ctx, true) for an active match and (zero, false) for no
// match. A deactivated match is an error, never a fallthrough.
func (r *Resolver) lookup(ctx context.Context, subdomain string) (Context, bool, error) {
	rec, found, err := r.registry.Lookup(ctx, subdomain)
	if err != nil {
		return Context{}, false, fmt.Errorf("lookup tenant %q: %w", subdomain, err)
	}
	if !found {
		return Context{}, false, nil
	}
	if !rec.IsActive {
		return Context{}, false, fmt.Errorf("tenant %q: %w", subdomain, ErrInactive)
	}

	tc := rec.Context
	if tc.Subdomain == r.defaultSubdomain {
		tc.Features.Demo = true
	}
	return tc, true, nil
}

package repo

import (
	"context"
	"fmt"

	"github.com/channelpulse/channelpulse-saas/platform/go/persistence"
)

// PoolProvisioner prepares a tenant schema by opening a short-lived pool
// against the tenant's own data store.
type PoolProvisioner struct{}

// Provision connects with the tenant DSN, creates the schema and applies the
// sales DDL, then releases the connection. The long-lived per-tenant pool is
// built later by the connector on first request.
func (PoolProvisioner) Provision(ctx context.Context, dsn, schemaName string) error {
	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: dsn})
	if err != nil {
		return fmt.Errorf("connect tenant data store: %w", err)
	}
	defer persistence.ClosePool(pool)

	return persistence.ProvisionTenantSchema(ctx, pool, schemaName)
}

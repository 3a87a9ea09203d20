package persistence

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/channelpulse/channelpulse-saas/platform/go/tenant"
	"github.com/channelpulse/channelpulse-saas/platform/go/vault"
)

// Connector lazily materializes tenant data-store handles from encrypted
// credentials. Decryption and pool creation happen on first use per tenant;
// subsequent requests reuse the cached handle.
//
// A vault integrity failure is returned verbatim (wrapping vault.ErrIntegrity)
// and nothing is cached: callers must abort rather than reach for another
// tenant's store.
type Connector struct {
	vault *vault.Vault

	mu      sync.Mutex
	handles map[uuid.UUID]*TenantDB
}

// NewConnector builds a Connector around the credential vault.
func NewConnector(v *vault.Vault) (*Connector, error) {
	if v == nil {
		return nil, fmt.Errorf("vault is required")
	}
	return &Connector{vault: v, handles: make(map[uuid.UUID]*TenantDB)}, nil
}

// Acquire returns the data-store handle for the resolved tenant context.
func (c *Connector) Acquire(ctx context.Context, tc tenant.Context) (*TenantDB, error) {
	if tc.ID == uuid.Nil {
		return nil, fmt.Errorf("tenant context is not resolved")
	}

	c.mu.Lock()
	db, ok := c.handles[tc.ID]
	c.mu.Unlock()
	if ok {
		return db, nil
	}

	dsn, err := c.vault.Open(tc.EncryptedDSN)
	if err != nil {
		return nil, fmt.Errorf("open credentials for tenant %s: %w", tc.Subdomain, err)
	}

	pool, err := NewPool(ctx, PoolConfig{ConnString: string(dsn)})
	if err != nil {
		return nil, fmt.Errorf("connect tenant %s store: %w", tc.Subdomain, err)
	}

	db, err = NewTenantDB(pool, tc.SchemaName)
	if err != nil {
		ClosePool(pool)
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.handles[tc.ID]; ok {
		// lost the race; keep the first handle
		db.Close()
		return existing, nil
	}
	c.handles[tc.ID] = db
	return db, nil
}

// Evict drops a cached handle, closing its pool. Used after credential
// rotation or tenant deactivation.
func (c *Connector) Evict(id uuid.UUID) {
	c.mu.Lock()
	db, ok := c.handles[id]
	delete(c.handles, id)
	c.mu.Unlock()
	if ok {
		db.Close()
	}
}

// Close releases every cached handle.
func (c *Connector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, db := range c.handles {
		db.Close()
		delete(c.handles, id)
	}
}

package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TenantDB is the resolved data-store handle for one tenant: a pool built from
// the tenant's own decrypted credentials plus the tenant's schema. All sales
// data access goes through WithTenant so the search_path scoping cannot be
// forgotten at a call site.
type TenantDB struct {
	pool       *pgxpool.Pool
	schemaName string
}

// NewTenantDB wraps an already-connected tenant pool.
func NewTenantDB(pool *pgxpool.Pool, schemaName string) (*TenantDB, error) {
	if pool == nil {
		return nil, fmt.Errorf("tenant pool is required")
	}
	schemaName = strings.TrimSpace(schemaName)
	if schemaName == "" {
		return nil, fmt.Errorf("tenant schema name is required")
	}
	return &TenantDB{pool: pool, schemaName: schemaName}, nil
}

// SchemaName returns the tenant schema this handle is bound to.
func (db *TenantDB) SchemaName() string {
	return db.schemaName
}

// WithTenant executes fn inside a transaction whose search_path is pinned to
// the tenant schema. set_config runs with the transaction-local flag set, so
// the setting evaporates with the transaction and never leaks into the
// pooled connection.
func (db *TenantDB) WithTenant(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tenant tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, true)`, db.schemaName); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Close releases the underlying pool.
func (db *TenantDB) Close() {
	ClosePool(db.pool)
}

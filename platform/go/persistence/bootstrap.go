package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/channelpulse/channelpulse-saas/database"
)

// BootstrapPlatformSchema creates the platform schema (if missing) and applies
// the registry/ledger DDL in one transaction:
//  1. platform/tenants.sql
//  2. platform/vendor_configs.sql
//  3. platform/upload_ledger.sql
//
// SQL is embedded at build time so binaries stay self-contained. The helper is
// idempotent and intended for CLI bootstrap and tests.
func BootstrapPlatformSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("bootstrap platform schema: pool is required")
	}

	var statements []string
	statements = append(statements, splitStatements(sqlassets.TenantsSQL)...)
	statements = append(statements, splitStatements(sqlassets.VendorConfigsSQL)...)
	statements = append(statements, splitStatements(sqlassets.UploadLedgerSQL)...)

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{PlatformSchema}.Sanitize()); err != nil {
		return fmt.Errorf("create platform schema: %w", err)
	}

	if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, true)`, PlatformSchema); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply platform ddl: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ProvisionTenantSchema creates a tenant's schema in its data store and
// applies the sales DDL. Idempotent; called at tenant provisioning time
// against the pool built from the tenant's own credentials.
func ProvisionTenantSchema(ctx context.Context, pool *pgxpool.Pool, schemaName string) error {
	if pool == nil {
		return fmt.Errorf("provision tenant schema: pool is required")
	}
	schemaName = strings.TrimSpace(schemaName)
	if schemaName == "" {
		return fmt.Errorf("provision tenant schema: schema name is required")
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schemaName}.Sanitize()); err != nil {
		return fmt.Errorf("create tenant schema: %w", err)
	}

	if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, true)`, schemaName); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}

	for _, stmt := range splitStatements(sqlassets.SalesRecordsSQL) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply tenant ddl: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// splitStatements breaks an embedded SQL asset into individual statements.
// Good enough for our DDL files: no string literals contain semicolons.
func splitStatements(sql string) []string {
	parts := strings.Split(sql, ";")
	statements := make([]string, 0, len(parts))
	for _, part := range parts {
		stmt := strings.TrimSpace(part)
		if stmt == "" {
			continue
		}
		statements = append(statements, stmt)
	}
	return statements
}

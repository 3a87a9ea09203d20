package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VendorConfigsTable is the fully-qualified vendor config table.
const VendorConfigsTable = PlatformSchema + ".vendor_configs"

// Vendor config scopes. A tenant-scoped config shadows the system default for
// the same vendor key.
const (
	ScopeSystem = "system"
	ScopeTenant = "tenant"
)

// ErrConfigNotFound is returned when no active config resolves for a
// (tenant, vendor key) pair, meaning the vendor is unsupported for that tenant.
var ErrConfigNotFound = errors.New("vendor config not found")

// VendorConfigRecord mirrors one vendor_configs row. Rules is the raw JSONB
// payload; decode through the rules package.
type VendorConfigRecord struct {
	ConfigID  uuid.UUID
	VendorKey string
	Scope     string
	TenantID  *uuid.UUID
	Version   int
	Rules     json.RawMessage
	RulesHash string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UpsertVendorConfigParams describes a new config version. TenantID must be
// nil exactly when Scope is system. The payload is expected to be validated by
// the caller (rules.Validate) before it reaches the store.
type UpsertVendorConfigParams struct {
	VendorKey string
	Scope     string
	TenantID  *uuid.UUID
	Rules     json.RawMessage
	Activate  bool
}

// VendorConfigStore provides PostgreSQL-backed access to vendor configs with
// two-tier (tenant shadows system) resolution.
type VendorConfigStore struct {
	pool *pgxpool.Pool
}

// NewVendorConfigStore creates a store; assumes bootstrap already applied the DDL.
func NewVendorConfigStore(pool *pgxpool.Pool) (*VendorConfigStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &VendorConfigStore{pool: pool}, nil
}

const vendorConfigColumns = `config_id, vendor_key, scope, tenant_id, version, rules, rules_hash,
    is_active, created_at, updated_at`

// Upsert appends a new config version for (vendor key, scope, tenant) and,
// when Activate is set, deactivates every earlier version of the same triple
// in the same transaction. Serializing activation through one tx is what keeps
// concurrent resolvers from observing two active versions.
func (s *VendorConfigStore) Upsert(ctx context.Context, params UpsertVendorConfigParams) (VendorConfigRecord, error) {
	if params.VendorKey == "" {
		return VendorConfigRecord{}, errors.New("vendor key is required")
	}
	if params.Scope != ScopeSystem && params.Scope != ScopeTenant {
		return VendorConfigRecord{}, fmt.Errorf("invalid scope %q", params.Scope)
	}
	if (params.Scope == ScopeSystem) != (params.TenantID == nil) {
		return VendorConfigRecord{}, errors.New("tenant id must be set exactly for tenant scope")
	}
	if len(params.Rules) == 0 {
		return VendorConfigRecord{}, errors.New("rules payload is required")
	}

	hash, err := RulesHash(params.Rules)
	if err != nil {
		return VendorConfigRecord{}, fmt.Errorf("compute rules hash: %w", err)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return VendorConfigRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	scopeCond := "scope = $2 AND tenant_id IS NULL"
	args := []any{params.VendorKey, params.Scope}
	if params.TenantID != nil {
		scopeCond = "scope = $2 AND tenant_id = $3"
		args = append(args, *params.TenantID)
	}

	var nextVersion int
	versionQuery := fmt.Sprintf(`SELECT COALESCE(MAX(version), 0) + 1 FROM %s WHERE vendor_key = $1 AND %s`,
		VendorConfigsTable, scopeCond)
	if err := tx.QueryRow(ctx, versionQuery, args...).Scan(&nextVersion); err != nil {
		return VendorConfigRecord{}, fmt.Errorf("next config version: %w", err)
	}

	if params.Activate {
		deactivate := fmt.Sprintf(`UPDATE %s SET is_active = FALSE, updated_at = NOW()
            WHERE vendor_key = $1 AND %s AND is_active = TRUE`, VendorConfigsTable, scopeCond)
		if _, err := tx.Exec(ctx, deactivate, args...); err != nil {
			return VendorConfigRecord{}, fmt.Errorf("deactivate previous versions: %w", err)
		}
	}

	insert := fmt.Sprintf(`
        INSERT INTO %s (config_id, vendor_key, scope, tenant_id, version, rules, rules_hash, is_active)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING %s
    `, VendorConfigsTable, vendorConfigColumns)

	rec, err := scanVendorConfig(tx.QueryRow(ctx, insert,
		uuid.New(), params.VendorKey, params.Scope, params.TenantID,
		nextVersion, []byte(params.Rules), hash, params.Activate))
	if err != nil {
		return VendorConfigRecord{}, fmt.Errorf("insert config version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return VendorConfigRecord{}, err
	}
	return rec, nil
}

// GetResolved returns the single config governing (tenant, vendor key):
// the tenant-scoped active config when present, else the system default, else
// ErrConfigNotFound. The precedence is evaluated inside one query so it is
// always computed fresh.
func (s *VendorConfigStore) GetResolved(ctx context.Context, tenantID uuid.UUID, vendorKey string) (VendorConfigRecord, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM %s
        WHERE vendor_key = $2 AND is_active = TRUE
          AND (scope = 'tenant' AND tenant_id = $1 OR scope = 'system')
        ORDER BY (scope = 'tenant') DESC
        LIMIT 1
    `, vendorConfigColumns, VendorConfigsTable)

	rec, err := scanVendorConfig(s.pool.QueryRow(ctx, query, tenantID, vendorKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VendorConfigRecord{}, ErrConfigNotFound
		}
		return VendorConfigRecord{}, err
	}
	return rec, nil
}

// ListVisible returns every config visible to a tenant: its own active configs
// first, then system defaults whose vendor key is not shadowed. Order within a
// tier is by vendor key for determinism.
func (s *VendorConfigStore) ListVisible(ctx context.Context, tenantID uuid.UUID) ([]VendorConfigRecord, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM %s c
        WHERE c.is_active = TRUE AND (
            c.scope = 'tenant' AND c.tenant_id = $1
            OR c.scope = 'system' AND NOT EXISTS (
                SELECT 1 FROM %s t
                WHERE t.is_active = TRUE AND t.scope = 'tenant'
                  AND t.tenant_id = $1 AND t.vendor_key = c.vendor_key
            )
        )
        ORDER BY (c.scope = 'tenant') DESC, c.vendor_key
    `, vendorConfigColumns, VendorConfigsTable, VendorConfigsTable)

	rows, err := s.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VendorConfigRecord
	for rows.Next() {
		rec, err := scanVendorConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanVendorConfig(row pgx.Row) (VendorConfigRecord, error) {
	var rec VendorConfigRecord
	var rules []byte
	err := row.Scan(&rec.ConfigID, &rec.VendorKey, &rec.Scope, &rec.TenantID, &rec.Version,
		&rules, &rec.RulesHash, &rec.IsActive, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return VendorConfigRecord{}, err
	}
	rec.Rules = json.RawMessage(rules)
	return rec, nil
}

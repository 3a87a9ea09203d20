package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PlatformSchema holds the shared registry tables (tenants, vendor_configs,
// upload ledger). Tenant sales data lives in per-tenant schemas; environment
// separation comes from separate databases.
const PlatformSchema = "platform"

// TenantsTable is the fully-qualified tenant registry table.
const TenantsTable = PlatformSchema + ".tenants"

// ErrTenantRowNotFound is returned when a registry row is absent.
var ErrTenantRowNotFound = errors.New("tenant registry row not found")

// TenantRow mirrors one tenants table row. EncryptedDSN is vault ciphertext;
// this layer never sees the plaintext connection string.
type TenantRow struct {
	TenantID      uuid.UUID
	Subdomain     string
	DisplayName   *string
	SchemaName    string
	EncryptedDSN  []byte
	IsActive      bool
	IsSoftDeleted bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TenantRegistryStore provides access to the tenant registry. It is the single
// source of truth for subdomain routing.
type TenantRegistryStore struct {
	pool *pgxpool.Pool
}

// NewTenantRegistryStore creates a store; assumes bootstrap already applied the DDL.
func NewTenantRegistryStore(pool *pgxpool.Pool) (*TenantRegistryStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &TenantRegistryStore{pool: pool}, nil
}

const tenantColumns = `tenant_id, subdomain, display_name, schema_name, encrypted_dsn,
    is_active, is_soft_deleted, created_at, updated_at`

// Create inserts a new tenant row. The partial unique index on subdomain
// rejects a second active tenant with the same subdomain.
func (s *TenantRegistryStore) Create(ctx context.Context, row TenantRow) (TenantRow, error) {
	if row.TenantID == uuid.Nil {
		return TenantRow{}, errors.New("tenant id is required")
	}
	if row.Subdomain == "" {
		return TenantRow{}, errors.New("subdomain is required")
	}
	if len(row.EncryptedDSN) == 0 {
		return TenantRow{}, errors.New("encrypted credentials are required")
	}

	query := fmt.Sprintf(`
        INSERT INTO %s (tenant_id, subdomain, display_name, schema_name, encrypted_dsn, is_active, is_soft_deleted)
        VALUES ($1, $2, $3, $4, $5, TRUE, FALSE)
        RETURNING %s
    `, TenantsTable, tenantColumns)

	return scanTenantRow(s.pool.QueryRow(ctx, query,
		row.TenantID, row.Subdomain, row.DisplayName, row.SchemaName, row.EncryptedDSN))
}

// GetBySubdomain returns the row for a subdomain, active or not. Soft-deleted
// rows are reported as not found so routing can never reach them.
func (s *TenantRegistryStore) GetBySubdomain(ctx context.Context, subdomain string) (TenantRow, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE subdomain = $1 AND is_soft_deleted = FALSE`,
		tenantColumns, TenantsTable)
	return scanTenantRow(s.pool.QueryRow(ctx, query, subdomain))
}

// Get returns a tenant row by id, excluding soft-deleted rows.
func (s *TenantRegistryStore) Get(ctx context.Context, id uuid.UUID) (TenantRow, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE tenant_id = $1 AND is_soft_deleted = FALSE`,
		tenantColumns, TenantsTable)
	return scanTenantRow(s.pool.QueryRow(ctx, query, id))
}

// List returns all non-deleted tenants ordered by creation time.
func (s *TenantRegistryStore) List(ctx context.Context) ([]TenantRow, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE is_soft_deleted = FALSE ORDER BY created_at`,
		tenantColumns, TenantsTable)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TenantRow
	for rows.Next() {
		row, err := scanTenantRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// SetActive toggles the activation flag. Deactivation is the supported way to
// retire a tenant; rows are never deleted so batch audit trails stay intact.
func (s *TenantRegistryStore) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	query := fmt.Sprintf(`UPDATE %s SET is_active = $2, updated_at = NOW()
        WHERE tenant_id = $1 AND is_soft_deleted = FALSE`, TenantsTable)

	tag, err := s.pool.Exec(ctx, query, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantRowNotFound
	}
	return nil
}

// RotateCredentials replaces the encrypted connection secret.
func (s *TenantRegistryStore) RotateCredentials(ctx context.Context, id uuid.UUID, encryptedDSN []byte) error {
	if len(encryptedDSN) == 0 {
		return errors.New("encrypted credentials are required")
	}

	query := fmt.Sprintf(`UPDATE %s SET encrypted_dsn = $2, updated_at = NOW()
        WHERE tenant_id = $1 AND is_soft_deleted = FALSE`, TenantsTable)

	tag, err := s.pool.Exec(ctx, query, id, encryptedDSN)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantRowNotFound
	}
	return nil
}

func scanTenantRow(row pgx.Row) (TenantRow, error) {
	var rec TenantRow
	err := row.Scan(&rec.TenantID, &rec.Subdomain, &rec.DisplayName, &rec.SchemaName,
		&rec.EncryptedDSN, &rec.IsActive, &rec.IsSoftDeleted, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TenantRow{}, ErrTenantRowNotFound
		}
		return TenantRow{}, err
	}
	return rec, nil
}

// Package repo adapts the shared persistence stores to the tenants domain and
// exposes the registry lookup used by the tenant resolver.
package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/channelpulse/channelpulse-saas/domains/tenants/be/service"
	"github.com/channelpulse/channelpulse-saas/platform/go/persistence"
	"github.com/channelpulse/channelpulse-saas/platform/go/tenant"
)

// PostgresRepository implements service.Repository and tenant.Registry on top
// of the shared tenant registry store.
type PostgresRepository struct {
	store *persistence.TenantRegistryStore
}

// NewPostgresRepository constructs a repository backed by TenantRegistryStore.
func NewPostgresRepository(store *persistence.TenantRegistryStore) *PostgresRepository {
	if store == nil {
		panic("tenant registry store is required")
	}
	return &PostgresRepository{store: store}
}

func (r *PostgresRepository) Create(ctx context.Context, t service.Tenant, encryptedDSN []byte) (service.Tenant, error) {
	row, err := r.store.Create(ctx, persistence.TenantRow{
		TenantID:     t.ID,
		Subdomain:    t.Subdomain,
		DisplayName:  t.DisplayName,
		SchemaName:   t.SchemaName,
		EncryptedDSN: encryptedDSN,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return service.Tenant{}, service.ErrSubdomainTaken
		}
		return service.Tenant{}, err
	}
	return toDomain(row), nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (service.Tenant, error) {
	row, err := r.store.Get(ctx, id)
	if err != nil {
		return service.Tenant{}, mapNotFound(err)
	}
	return toDomain(row), nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]service.Tenant, error) {
	rows, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]service.Tenant, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomain(row))
	}
	return out, nil
}

func (r *PostgresRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return mapNotFound(r.store.SetActive(ctx, id, active))
}

func (r *PostgresRepository) RotateCredentials(ctx context.Context, id uuid.UUID, encryptedDSN []byte) error {
	return mapNotFound(r.store.RotateCredentials(ctx, id, encryptedDSN))
}

// Lookup implements tenant.Registry: subdomain -> routing record, including
// deactivated tenants so the resolver can refuse them explicitly.
func (r *PostgresRepository) Lookup(ctx context.Context, subdomain string) (tenant.Record, bool, error) {
	row, err := r.store.GetBySubdomain(ctx, subdomain)
	if err != nil {
		if errors.Is(err, persistence.ErrTenantRowNotFound) {
			return tenant.Record{}, false, nil
		}
		return tenant.Record{}, false, err
	}

	rec := tenant.Record{
		Context: tenant.Context{
			ID:           row.TenantID,
			Subdomain:    row.Subdomain,
			SchemaName:   row.SchemaName,
			EncryptedDSN: row.EncryptedDSN,
			CreatedAt:    row.CreatedAt,
			UpdatedAt:    row.UpdatedAt,
		},
		IsActive: row.IsActive,
	}
	if row.DisplayName != nil {
		rec.DisplayName = *row.DisplayName
	}
	return rec, true, nil
}

func toDomain(row persistence.TenantRow) service.Tenant {
	return service.Tenant{
		ID:          row.TenantID,
		Subdomain:   row.Subdomain,
		DisplayName: row.DisplayName,
		SchemaName:  row.SchemaName,
		IsActive:    row.IsActive,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

func mapNotFound(err error) error {
	if errors.Is(err, persistence.ErrTenantRowNotFound) {
		return service.ErrNotFound
	}
	return err
}

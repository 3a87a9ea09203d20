// Package repo adapts the shared vendor config store to the domain service.
package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/channelpulse/channelpulse-saas/domains/vendor-configs/be/service"
	"github.com/channelpulse/channelpulse-saas/platform/go/persistence"
)

// Repository forwards to the platform vendor config store. The SQL lives in
// the persistence package because batches and the admin CLI share it.
type Repository struct {
	store *persistence.VendorConfigStore
}

var _ service.Repository = (*Repository)(nil)

// New constructs the persistence-backed repository.
func New(store *persistence.VendorConfigStore) *Repository {
	if store == nil {
		panic("vendor config store is required")
	}
	return &Repository{store: store}
}

func (r *Repository) Upsert(ctx context.Context, params persistence.UpsertVendorConfigParams) (persistence.VendorConfigRecord, error) {
	return r.store.Upsert(ctx, params)
}

func (r *Repository) GetResolved(ctx context.Context, tenantID uuid.UUID, vendorKey string) (persistence.VendorConfigRecord, error) {
	return r.store.GetResolved(ctx, tenantID, vendorKey)
}

func (r *Repository) ListVisible(ctx context.Context, tenantID uuid.UUID) ([]persistence.VendorConfigRecord, error) {
	return r.store.ListVisible(ctx, tenantID)
}

// Package repo binds the ingestion service to the platform stores: the
// ledger and config stores in the platform schema, and the per-tenant sales
// store reached through the credential connector.
package repo

import (
	"context"

	"github.com/channelpulse/channelpulse-saas/platform/go/persistence"
	"github.com/channelpulse/channelpulse-saas/platform/go/tenant"
)

// SalesWriter resolves the tenant's data-store handle on demand and inserts
// canonical records through it. Handles are cached by the connector, so the
// vault decrypt and pool dial only happen on a tenant's first batch.
type SalesWriter struct {
	connector *persistence.Connector
	store     *persistence.SalesStore
}

// NewSalesWriter constructs a SalesWriter.
func NewSalesWriter(connector *persistence.Connector, store *persistence.SalesStore) *SalesWriter {
	if connector == nil {
		panic("connector is required")
	}
	if store == nil {
		panic("sales store is required")
	}
	return &SalesWriter{connector: connector, store: store}
}

// Insert acquires the tenant handle and writes all records in one
// transaction. A credential integrity failure aborts here; it is never
// retried against a different store.
func (w *SalesWriter) Insert(ctx context.Context, tc tenant.Context, records []persistence.SalesRecord) (int, error) {
	db, err := w.connector.Acquire(ctx, tc)
	if err != nil {
		return 0, err
	}
	return w.store.InsertBatch(ctx, db, records)
}

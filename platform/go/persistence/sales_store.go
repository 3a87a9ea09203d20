package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// SalesRecord is the canonical, vendor-agnostic sales row inserted into a
// tenant's own schema. Every record traces back to exactly one upload batch
// and one vendor config version.
type SalesRecord struct {
	TenantID      uuid.UUID
	VendorKey     string
	BatchID       uuid.UUID
	ConfigVersion int
	Reseller      string
	ProductEAN    string
	PeriodYear    int
	PeriodMonth   int
	Quantity      int64
	NetAmount     decimal.Decimal
	Currency      string
}

// SalesStore batch-inserts canonical sales records through a tenant data-store
// handle. It holds no state; the handle carries the tenant binding.
type SalesStore struct{}

// NewSalesStore returns a SalesStore.
func NewSalesStore() *SalesStore {
	return &SalesStore{}
}

// InsertBatch writes all records in one transaction against the tenant's
// schema, using a single pgx batch round-trip. On success the full record
// count is returned; on failure the transaction rolls back and zero rows are
// persisted, so the returned count always reflects what is actually in the
// store.
func (s *SalesStore) InsertBatch(ctx context.Context, db *TenantDB, records []SalesRecord) (int, error) {
	if db == nil {
		return 0, errors.New("tenant db handle is required")
	}
	if len(records) == 0 {
		return 0, nil
	}

	err := db.WithTenant(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, rec := range records {
			batch.Queue(`
                INSERT INTO sales_records (
                    tenant_id, vendor_key, batch_id, config_version, reseller, product_ean,
                    period_year, period_month, quantity, net_amount, currency
                ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
            `, rec.TenantID, rec.VendorKey, rec.BatchID, rec.ConfigVersion, rec.Reseller,
				rec.ProductEAN, rec.PeriodYear, rec.PeriodMonth, rec.Quantity,
				rec.NetAmount, rec.Currency)
		}

		results := tx.SendBatch(ctx, batch)
		for range records {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("insert sales record: %w", err)
			}
		}
		return results.Close()
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// CountByBatch returns how many sales records a batch produced in the
// tenant's schema. Used by integration tests and audit tooling.
func (s *SalesStore) CountByBatch(ctx context.Context, db *TenantDB, batchID uuid.UUID) (int, error) {
	if db == nil {
		return 0, errors.New("tenant db handle is required")
	}

	var count int
	err := db.WithTenant(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `SELECT COUNT(*) FROM sales_records WHERE batch_id = $1`, batchID).Scan(&count)
	})
	return count, err
}

package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/channelpulse/channelpulse-saas/platform/go/requesttrace"
)

// Ledger tables.
const (
	UploadBatchesTable = PlatformSchema + ".upload_batches"
	RowErrorsTable     = PlatformSchema + ".row_errors"
)

// Upload batch statuses. Transitions are one-directional:
// pending -> processing -> completed | partial | failed.
const (
	BatchPending    = "pending"
	BatchProcessing = "processing"
	BatchCompleted  = "completed"
	BatchPartial    = "partial"
	BatchFailed     = "failed"
)

var (
	// ErrBatchNotFound is returned when a batch id is unknown.
	ErrBatchNotFound = errors.New("upload batch not found")
	// ErrDuplicateFingerprint is returned when the same file bytes were
	// already submitted for the tenant.
	ErrDuplicateFingerprint = errors.New("duplicate upload fingerprint")
	// ErrBatchTransition is returned on an attempt to move a batch
	// backwards or out of a terminal status.
	ErrBatchTransition = errors.New("invalid batch status transition")
)

// BatchRow mirrors one upload_batches row. RequestID, when present, names the
// HTTP request that submitted the file.
type BatchRow struct {
	BatchID       uuid.UUID
	TenantID      uuid.UUID
	Filename      string
	Fingerprint   string
	VendorKey     *string
	ConfigVersion *int
	Status        string
	TotalRows     int
	SucceededRows int
	FailedRows    int
	FailureReason *string
	RequestID     *string
	CreatedAt     time.Time
	CompletedAt   *time.Time
}

// RowErrorRow mirrors one row_errors row. Rows are append-only.
type RowErrorRow struct {
	BatchID   uuid.UUID
	RowIndex  int
	Field     string
	Kind      string
	Detail    string
	CreatedAt time.Time
}

// LedgerStore persists upload batches and their row-level failures. It is the
// sole read surface callers use to render upload results.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a store; assumes bootstrap already applied the DDL.
func NewLedgerStore(pool *pgxpool.Pool) (*LedgerStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &LedgerStore{pool: pool}, nil
}

const batchColumns = `batch_id, tenant_id, filename, fingerprint, vendor_key, config_version,
    status, total_rows, succeeded_rows, failed_rows, failure_reason, request_id, created_at, completed_at`

// StartBatch opens a pending batch, stamping the originating request id when
// the context carries audit info. The partial unique index on
// (tenant_id, fingerprint) turns a re-submission of identical bytes into
// ErrDuplicateFingerprint before any processing happens.
func (s *LedgerStore) StartBatch(ctx context.Context, tenantID uuid.UUID, filename, fingerprint string) (BatchRow, error) {
	if fingerprint == "" {
		return BatchRow{}, errors.New("fingerprint is required")
	}

	var requestID *string
	if audit, ok := requesttrace.FromContext(ctx); ok && audit.RequestID != "" {
		requestID = &audit.RequestID
	}

	query := fmt.Sprintf(`
        INSERT INTO %s (batch_id, tenant_id, filename, fingerprint, status, request_id)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING %s
    `, UploadBatchesTable, batchColumns)

	rec, err := scanBatchRow(s.pool.QueryRow(ctx, query, uuid.New(), tenantID, filename, fingerprint, BatchPending, requestID))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return BatchRow{}, ErrDuplicateFingerprint
		}
		return BatchRow{}, err
	}
	return rec, nil
}

// MarkDetected records the winning vendor config and moves the batch to
// processing. Only a pending batch may transition.
func (s *LedgerStore) MarkDetected(ctx context.Context, batchID uuid.UUID, vendorKey string, configVersion int) error {
	query := fmt.Sprintf(`UPDATE %s
        SET status = $2, vendor_key = $3, config_version = $4
        WHERE batch_id = $1 AND status = $5`, UploadBatchesTable)

	tag, err := s.pool.Exec(ctx, query, batchID, BatchProcessing, vendorKey, configVersion, BatchPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, batchID)
	}
	return nil
}

// RecordRowError appends one row-level failure. Errors are never updated or
// deleted; they live as long as their batch.
func (s *LedgerStore) RecordRowError(ctx context.Context, e RowErrorRow) error {
	query := fmt.Sprintf(`INSERT INTO %s (batch_id, row_index, field, kind, detail)
        VALUES ($1, $2, $3, $4, $5)`, RowErrorsTable)
	_, err := s.pool.Exec(ctx, query, e.BatchID, e.RowIndex, e.Field, e.Kind, e.Detail)
	return err
}

// FinalizeParams carries the terminal outcome of a batch.
type FinalizeParams struct {
	Status        string // completed | partial | failed
	TotalRows     int
	SucceededRows int
	FailedRows    int
	FailureReason *string
}

// Finalize moves a batch to its terminal status and stamps counts. A batch
// that is already terminal cannot be finalized again.
func (s *LedgerStore) Finalize(ctx context.Context, batchID uuid.UUID, params FinalizeParams) (BatchRow, error) {
	switch params.Status {
	case BatchCompleted, BatchPartial, BatchFailed:
	default:
		return BatchRow{}, fmt.Errorf("%w: %q is not terminal", ErrBatchTransition, params.Status)
	}

	query := fmt.Sprintf(`UPDATE %s
        SET status = $2, total_rows = $3, succeeded_rows = $4, failed_rows = $5,
            failure_reason = $6, completed_at = NOW()
        WHERE batch_id = $1 AND status IN ($7, $8)
        RETURNING %s`, UploadBatchesTable, batchColumns)

	rec, err := scanBatchRow(s.pool.QueryRow(ctx, query, batchID, params.Status,
		params.TotalRows, params.SucceededRows, params.FailedRows, params.FailureReason,
		BatchPending, BatchProcessing))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BatchRow{}, s.transitionError(ctx, batchID)
		}
		return BatchRow{}, err
	}
	return rec, nil
}

// GetBatch returns one batch by id.
func (s *LedgerStore) GetBatch(ctx context.Context, batchID uuid.UUID) (BatchRow, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE batch_id = $1`, batchColumns, UploadBatchesTable)
	rec, err := scanBatchRow(s.pool.QueryRow(ctx, query, batchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BatchRow{}, ErrBatchNotFound
		}
		return BatchRow{}, err
	}
	return rec, nil
}

// ListErrors returns a batch's row errors in source-row order. limit <= 0
// returns all rows.
func (s *LedgerStore) ListErrors(ctx context.Context, batchID uuid.UUID, limit int) ([]RowErrorRow, error) {
	query := fmt.Sprintf(`SELECT batch_id, row_index, field, kind, detail, created_at
        FROM %s WHERE batch_id = $1 ORDER BY row_index`, RowErrorsTable)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.pool.Query(ctx, query, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RowErrorRow
	for rows.Next() {
		var e RowErrorRow
		if err := rows.Scan(&e.BatchID, &e.RowIndex, &e.Field, &e.Kind, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// transitionError distinguishes "unknown batch" from "already terminal".
func (s *LedgerStore) transitionError(ctx context.Context, batchID uuid.UUID) error {
	current, err := s.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: batch %s is %s", ErrBatchTransition, batchID, current.Status)
}

func scanBatchRow(row pgx.Row) (BatchRow, error) {
	var rec BatchRow
	err := row.Scan(&rec.BatchID, &rec.TenantID, &rec.Filename, &rec.Fingerprint,
		&rec.VendorKey, &rec.ConfigVersion, &rec.Status, &rec.TotalRows,
		&rec.SucceededRows, &rec.FailedRows, &rec.FailureReason, &rec.RequestID,
		&rec.CreatedAt, &rec.CompletedAt)
	if err != nil {
		return BatchRow{}, err
	}
	return rec, nil
}

// Package service runs the ingestion pipeline: fingerprint, ledger batch,
// archive, vendor detection, row transformation and canonical insertion.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/channelpulse/channelpulse-saas/platform/go/persistence"
	"github.com/channelpulse/channelpulse-saas/platform/go/storage"
	"github.com/channelpulse/channelpulse-saas/platform/go/tenant"
)

// DefaultErrorSample bounds the number of row errors echoed in an ingest
// response. The full list stays queryable through the batch errors endpoint.
const DefaultErrorSample = 20

// Ledger records batch lifecycle and row errors in the platform schema.
type Ledger interface {
	StartBatch(ctx context.Context, tenantID uuid.UUID, filename, fingerprint string) (persistence.BatchRow, error)
	MarkDetected(ctx context.Context, batchID uuid.UUID, vendorKey string, configVersion int) error
	RecordRowError(ctx context.Context, e persistence.RowErrorRow) error
	Finalize(ctx context.Context, batchID uuid.UUID, params persistence.FinalizeParams) (persistence.BatchRow, error)
	GetBatch(ctx context.Context, batchID uuid.UUID) (persistence.BatchRow, error)
	ListErrors(ctx context.Context, batchID uuid.UUID, limit int) ([]persistence.RowErrorRow, error)
}

// ConfigSource lists the vendor configs visible to a tenant.
type ConfigSource interface {
	ListVisible(ctx context.Context, tenantID uuid.UUID) ([]persistence.VendorConfigRecord, error)
}

// SalesWriter inserts canonical records into the tenant's own data store.
type SalesWriter interface {
	Insert(ctx context.Context, tc tenant.Context, records []persistence.SalesRecord) (int, error)
}

// Summary is the outcome of one ingest call. ErrorSample holds at most
// DefaultErrorSample row errors in source order.
type Summary struct {
	Batch       persistence.BatchRow
	ErrorSample []RowError
}

// Service orchestrates the ingestion pipeline.
type Service struct {
	ledger        Ledger
	configs       ConfigSource
	sales         SalesWriter
	archive       storage.Archive
	insertTimeout time.Duration
	logger        *zap.Logger
}

// New constructs a Service. insertTimeout bounds the canonical insert phase;
// zero disables the bound.
func New(ledger Ledger, configs ConfigSource, sales SalesWriter, archive storage.Archive, insertTimeout time.Duration, logger *zap.Logger) *Service {
	if ledger == nil {
		panic("ledger is required")
	}
	if configs == nil {
		panic("config source is required")
	}
	if sales == nil {
		panic("sales writer is required")
	}
	if archive == nil {
		panic("archive is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		ledger:        ledger,
		configs:       configs,
		sales:         sales,
		archive:       archive,
		insertTimeout: insertTimeout,
		logger:        logger,
	}
}

// Ingest runs the full pipeline for one uploaded file. Batch-level failures
// (unreadable file, no or ambiguous vendor match, insert failure) finalize
// the batch as failed with a reason; row-level failures are recorded in the
// ledger and never block sibling rows.
func (s *Service) Ingest(ctx context.Context, tc tenant.Context, filename string, content []byte) (Summary, error) {
	fingerprint := persistence.FileFingerprint(content)

	batch, err := s.ledger.StartBatch(ctx, tc.ID, filename, fingerprint)
	if err != nil {
		if errors.Is(err, persistence.ErrDuplicateFingerprint) {
			return Summary{}, ErrDuplicateBatch
		}
		return Summary{}, fmt.Errorf("start batch: %w", err)
	}

	logger := s.logger.With(
		zap.String("tenant", tc.Subdomain),
		zap.String("batch_id", batch.BatchID.String()),
		zap.String("filename", filename),
	)

	if _, err := s.archive.Save(ctx, tc, batch.BatchID, filename, content); err != nil {
		return s.failBatch(ctx, logger, batch.BatchID, fmt.Sprintf("archive upload: %v", err), 0, 0)
	}

	src, err := ParseSource(filename, content)
	if err != nil {
		return s.failBatch(ctx, logger, batch.BatchID, fmt.Sprintf("parse upload: %v", err), 0, 0)
	}

	configs, err := s.configs.ListVisible(ctx, tc.ID)
	if err != nil {
		return s.failBatch(ctx, logger, batch.BatchID, fmt.Sprintf("load vendor configs: %v", err), 0, 0)
	}

	detection, err := Detect(src, configs)
	if err != nil {
		var detErr *DetectionError
		if errors.As(err, &detErr) {
			return s.failBatch(ctx, logger, batch.BatchID, detErr.Error(), 0, 0)
		}
		return s.failBatch(ctx, logger, batch.BatchID, fmt.Sprintf("vendor detection: %v", err), 0, 0)
	}
	logger = logger.With(zap.String("vendor_key", detection.VendorKey), zap.Int("config_version", detection.Version))

	if err := s.ledger.MarkDetected(ctx, batch.BatchID, detection.VendorKey, detection.Version); err != nil {
		return Summary{}, fmt.Errorf("mark batch detected: %w", err)
	}

	result, err := TransformRows(detection, tc.ID, batch.BatchID, src)
	if err != nil {
		return s.failBatch(ctx, logger, batch.BatchID, err.Error(), 0, 0)
	}

	for _, rowErr := range result.Errors {
		if err := s.ledger.RecordRowError(ctx, persistence.RowErrorRow{
			BatchID:  batch.BatchID,
			RowIndex: rowErr.RowIndex,
			Field:    rowErr.Field,
			Kind:     rowErr.Kind,
			Detail:   rowErr.Detail,
		}); err != nil {
			return Summary{}, fmt.Errorf("record row error: %w", err)
		}
	}

	insertCtx := ctx
	if s.insertTimeout > 0 {
		var cancel context.CancelFunc
		insertCtx, cancel = context.WithTimeout(ctx, s.insertTimeout)
		defer cancel()
	}

	total := len(result.Records) + len(result.Errors)

	inserted, err := s.sales.Insert(insertCtx, tc, result.Records)
	if err != nil {
		return s.failBatch(ctx, logger, batch.BatchID, fmt.Sprintf("insert sales records: %v", err), total, len(result.Errors))
	}

	status := persistence.BatchCompleted
	switch {
	case total == 0:
		return s.failBatch(ctx, logger, batch.BatchID, "file contains no data rows", 0, 0)
	case inserted == 0:
		status = persistence.BatchFailed
	case len(result.Errors) > 0:
		status = persistence.BatchPartial
	}

	var reason *string
	if status == persistence.BatchFailed {
		r := "every row was rejected"
		reason = &r
	}

	final, err := s.ledger.Finalize(ctx, batch.BatchID, persistence.FinalizeParams{
		Status:        status,
		TotalRows:     total,
		SucceededRows: inserted,
		FailedRows:    len(result.Errors),
		FailureReason: reason,
	})
	if err != nil {
		return Summary{}, fmt.Errorf("finalize batch: %w", err)
	}

	logger.Info("batch ingested",
		zap.String("status", final.Status),
		zap.Int("total_rows", final.TotalRows),
		zap.Int("succeeded_rows", final.SucceededRows),
		zap.Int("failed_rows", final.FailedRows),
	)

	return Summary{Batch: final, ErrorSample: sampleErrors(result.Errors)}, nil
}

// GetBatch returns one of the tenant's batches. A batch belonging to another
// tenant reads as not found.
func (s *Service) GetBatch(ctx context.Context, tc tenant.Context, batchID uuid.UUID) (persistence.BatchRow, error) {
	batch, err := s.ledger.GetBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, persistence.ErrBatchNotFound) {
			return persistence.BatchRow{}, ErrBatchNotFound
		}
		return persistence.BatchRow{}, err
	}
	if batch.TenantID != tc.ID {
		return persistence.BatchRow{}, ErrBatchNotFound
	}
	return batch, nil
}

// ListErrors returns a batch's row errors in source order, after the same
// ownership check as GetBatch. limit <= 0 returns everything.
func (s *Service) ListErrors(ctx context.Context, tc tenant.Context, batchID uuid.UUID, limit int) ([]RowError, error) {
	if _, err := s.GetBatch(ctx, tc, batchID); err != nil {
		return nil, err
	}

	rows, err := s.ledger.ListErrors(ctx, batchID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]RowError, 0, len(rows))
	for _, row := range rows {
		out = append(out, RowError{RowIndex: row.RowIndex, Field: row.Field, Kind: row.Kind, Detail: row.Detail})
	}
	return out, nil
}

// failBatch finalizes a batch as failed with a reason and returns the summary.
// total and failed carry whatever counts are known at the point of failure so
// the batch row stays consistent with the row errors already recorded.
// Failing to finalize is surfaced instead of the original reason: a batch
// stuck in processing is the bigger problem.
func (s *Service) failBatch(ctx context.Context, logger *zap.Logger, batchID uuid.UUID, reason string, total, failed int) (Summary, error) {
	final, err := s.ledger.Finalize(ctx, batchID, persistence.FinalizeParams{
		Status:        persistence.BatchFailed,
		TotalRows:     total,
		FailedRows:    failed,
		FailureReason: &reason,
	})
	if err != nil {
		return Summary{}, fmt.Errorf("finalize failed batch: %w", err)
	}

	logger.Warn("batch failed", zap.String("reason", reason))
	return Summary{Batch: final}, nil
}

func sampleErrors(all []RowError) []RowError {
	if len(all) <= DefaultErrorSample {
		return all
	}
	return all[:DefaultErrorSample]
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/channelpulse/channelpulse-saas/platform/go/persistence"
	"github.com/channelpulse/channelpulse-saas/platform/go/tenant"
)

// fakeLedger keeps batches and row errors in memory while enforcing the same
// status transitions as the real store.
type fakeLedger struct {
	batches      map[uuid.UUID]persistence.BatchRow
	fingerprints map[string]bool
	rowErrors    []persistence.RowErrorRow
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		batches:      make(map[uuid.UUID]persistence.BatchRow),
		fingerprints: make(map[string]bool),
	}
}

func (l *fakeLedger) StartBatch(_ context.Context, tenantID uuid.UUID, filename, fingerprint string) (persistence.BatchRow, error) {
	key := tenantID.String() + "/" + fingerprint
	if l.fingerprints[key] {
		return persistence.BatchRow{}, persistence.ErrDuplicateFingerprint
	}
	l.fingerprints[key] = true

	batch := persistence.BatchRow{
		BatchID:     uuid.New(),
		TenantID:    tenantID,
		Filename:    filename,
		Fingerprint: fingerprint,
		Status:      persistence.BatchPending,
		CreatedAt:   time.Now(),
	}
	l.batches[batch.BatchID] = batch
	return batch, nil
}

func (l *fakeLedger) MarkDetected(_ context.Context, batchID uuid.UUID, vendorKey string, configVersion int) error {
	batch, ok := l.batches[batchID]
	if !ok {
		return persistence.ErrBatchNotFound
	}
	if batch.Status != persistence.BatchPending {
		return persistence.ErrBatchTransition
	}
	batch.Status = persistence.BatchProcessing
	batch.VendorKey = &vendorKey
	batch.ConfigVersion = &configVersion
	l.batches[batchID] = batch
	return nil
}

func (l *fakeLedger) RecordRowError(_ context.Context, e persistence.RowErrorRow) error {
	l.rowErrors = append(l.rowErrors, e)
	return nil
}

func (l *fakeLedger) Finalize(_ context.Context, batchID uuid.UUID, params persistence.FinalizeParams) (persistence.BatchRow, error) {
	batch, ok := l.batches[batchID]
	if !ok {
		return persistence.BatchRow{}, persistence.ErrBatchNotFound
	}
	if batch.Status != persistence.BatchPending && batch.Status != persistence.BatchProcessing {
		return persistence.BatchRow{}, persistence.ErrBatchTransition
	}
	now := time.Now()
	batch.Status = params.Status
	batch.TotalRows = params.TotalRows
	batch.SucceededRows = params.SucceededRows
	batch.FailedRows = params.FailedRows
	batch.FailureReason = params.FailureReason
	batch.CompletedAt = &now
	l.batches[batchID] = batch
	return batch, nil
}

func (l *fakeLedger) GetBatch(_ context.Context, batchID uuid.UUID) (persistence.BatchRow, error) {
	batch, ok := l.batches[batchID]
	if !ok {
		return persistence.BatchRow{}, persistence.ErrBatchNotFound
	}
	return batch, nil
}

func (l *fakeLedger) ListErrors(_ context.Context, batchID uuid.UUID, limit int) ([]persistence.RowErrorRow, error) {
	var out []persistence.RowErrorRow
	for _, e := range l.rowErrors {
		if e.BatchID == batchID {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeConfigSource struct {
	configs []persistence.VendorConfigRecord
}

func (f *fakeConfigSource) ListVisible(context.Context, uuid.UUID) ([]persistence.VendorConfigRecord, error) {
	return f.configs, nil
}

type fakeSalesWriter struct {
	inserted []persistence.SalesRecord
	failWith error
}

func (f *fakeSalesWriter) Insert(_ context.Context, _ tenant.Context, records []persistence.SalesRecord) (int, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}
	f.inserted = append(f.inserted, records...)
	return len(records), nil
}

type fakeArchive struct {
	saved map[uuid.UUID]string
}

func (f *fakeArchive) Save(_ context.Context, _ tenant.Context, batchID uuid.UUID, filename string, _ []byte) (string, error) {
	if f.saved == nil {
		f.saved = make(map[uuid.UUID]string)
	}
	f.saved[batchID] = filename
	return "/archive/" + filename, nil
}

func testTenant() tenant.Context {
	return tenant.Context{ID: uuid.New(), Subdomain: "acme", SchemaName: "tenant_acme"}
}

func acmeConfig(t *testing.T) persistence.VendorConfigRecord {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"signature": map[string]any{"filename_glob": "acme-*.csv"},
		"mappings": []any{
			map[string]any{"source": "EAN", "field": "product_ean"},
			map[string]any{"source": "Store", "field": "reseller"},
			map[string]any{"source": "Month", "field": "period"},
			map[string]any{"source": "Units", "field": "quantity"},
			map[string]any{"source": "Net", "field": "net_amount"},
		},
		"validation": map[string]any{"ean_digits": true},
		"transform":  map[string]any{"currency": "EUR", "period_layout": "2006-01"},
	})
	require.NoError(t, err)
	return persistence.VendorConfigRecord{
		ConfigID:  uuid.New(),
		VendorKey: "acme",
		Scope:     persistence.ScopeSystem,
		Version:   2,
		Rules:     raw,
		IsActive:  true,
	}
}

func newTestService(t *testing.T, ledger *fakeLedger, sales *fakeSalesWriter, configs ...persistence.VendorConfigRecord) *Service {
	t.Helper()
	return New(ledger, &fakeConfigSource{configs: configs}, sales, &fakeArchive{}, time.Minute, zap.NewNop())
}

func TestIngestCompletedBatch(t *testing.T) {
	ledger := newFakeLedger()
	sales := &fakeSalesWriter{}
	svc := newTestService(t, ledger, sales, acmeConfig(t))

	content := []byte("EAN,Store,Month,Units,Net\n4006381333931,north,2025-01,5,100.00\n40163933,south,2025-02,2,50.00\n")
	summary, err := svc.Ingest(context.Background(), testTenant(), "acme-2025.csv", content)
	require.NoError(t, err)

	require.Equal(t, persistence.BatchCompleted, summary.Batch.Status)
	require.Equal(t, 2, summary.Batch.TotalRows)
	require.Equal(t, 2, summary.Batch.SucceededRows)
	require.Zero(t, summary.Batch.FailedRows)
	require.Empty(t, summary.ErrorSample)
	require.Len(t, sales.inserted, 2)

	require.NotNil(t, summary.Batch.VendorKey)
	require.Equal(t, "acme", *summary.Batch.VendorKey)
	require.NotNil(t, summary.Batch.ConfigVersion)
	require.Equal(t, 2, *summary.Batch.ConfigVersion)
}

func TestIngestPartialBatchRecordsRowErrors(t *testing.T) {
	ledger := newFakeLedger()
	sales := &fakeSalesWriter{}
	svc := newTestService(t, ledger, sales, acmeConfig(t))

	content := []byte("EAN,Store,Month,Units,Net\n4006381333931,north,2025-01,5,100.00\nbad-ean,north,2025-01,5,100.00\n")
	summary, err := svc.Ingest(context.Background(), testTenant(), "acme-2025.csv", content)
	require.NoError(t, err)

	require.Equal(t, persistence.BatchPartial, summary.Batch.Status)
	require.Equal(t, 2, summary.Batch.TotalRows)
	require.Equal(t, 1, summary.Batch.SucceededRows)
	require.Equal(t, 1, summary.Batch.FailedRows)
	require.Len(t, sales.inserted, 1)

	recorded, err := ledger.ListErrors(context.Background(), summary.Batch.BatchID, 0)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	require.Equal(t, 3, recorded[0].RowIndex)
}

func TestIngestDuplicateFingerprint(t *testing.T) {
	ledger := newFakeLedger()
	svc := newTestService(t, ledger, &fakeSalesWriter{}, acmeConfig(t))
	tc := testTenant()

	content := []byte("EAN,Store,Month,Units,Net\n4006381333931,north,2025-01,5,100.00\n")
	_, err := svc.Ingest(context.Background(), tc, "acme-2025.csv", content)
	require.NoError(t, err)

	_, err = svc.Ingest(context.Background(), tc, "acme-2025-renamed.csv", content)
	require.ErrorIs(t, err, ErrDuplicateBatch)
}

func TestIngestSameBytesDifferentTenants(t *testing.T) {
	ledger := newFakeLedger()
	svc := newTestService(t, ledger, &fakeSalesWriter{}, acmeConfig(t))

	content := []byte("EAN,Store,Month,Units,Net\n4006381333931,north,2025-01,5,100.00\n")
	_, err := svc.Ingest(context.Background(), testTenant(), "acme-2025.csv", content)
	require.NoError(t, err)

	// Fingerprints are scoped per tenant; another tenant may submit the
	// same bytes.
	_, err = svc.Ingest(context.Background(), testTenant(), "acme-2025.csv", content)
	require.NoError(t, err)
}

func TestIngestNoMatchingVendorFailsBatch(t *testing.T) {
	ledger := newFakeLedger()
	svc := newTestService(t, ledger, &fakeSalesWriter{}, acmeConfig(t))

	content := []byte("Totally,Different\nlayout,here\n")
	summary, err := svc.Ingest(context.Background(), testTenant(), "mystery.csv", content)
	require.NoError(t, err)

	require.Equal(t, persistence.BatchFailed, summary.Batch.Status)
	require.NotNil(t, summary.Batch.FailureReason)
	require.Contains(t, *summary.Batch.FailureReason, "no vendor config")
	require.Nil(t, summary.Batch.VendorKey)
}

func TestIngestAmbiguousDetectionFailsBatch(t *testing.T) {
	ledger := newFakeLedger()
	twin := acmeConfig(t)
	twin.ConfigID = uuid.New()
	twin.VendorKey = "acme-twin"
	svc := newTestService(t, ledger, &fakeSalesWriter{}, acmeConfig(t), twin)

	content := []byte("EAN,Store,Month,Units,Net\n4006381333931,north,2025-01,5,100.00\n")
	summary, err := svc.Ingest(context.Background(), testTenant(), "acme-2025.csv", content)
	require.NoError(t, err)

	require.Equal(t, persistence.BatchFailed, summary.Batch.Status)
	require.Contains(t, *summary.Batch.FailureReason, "ambiguous")
}

func TestIngestInsertFailureFailsBatchAtomically(t *testing.T) {
	ledger := newFakeLedger()
	sales := &fakeSalesWriter{failWith: errors.New("connection reset")}
	svc := newTestService(t, ledger, sales, acmeConfig(t))

	content := []byte("EAN,Store,Month,Units,Net\n4006381333931,north,2025-01,5,100.00\nbad-ean,north,2025-01,5,100.00\n")
	summary, err := svc.Ingest(context.Background(), testTenant(), "acme-2025.csv", content)
	require.NoError(t, err)

	require.Equal(t, persistence.BatchFailed, summary.Batch.Status)
	require.Contains(t, *summary.Batch.FailureReason, "insert sales records")
	require.Empty(t, sales.inserted)

	// The batch row must stay consistent with the row errors already
	// recorded: the transform rejections are counted even though the insert
	// never happened.
	require.Equal(t, 2, summary.Batch.TotalRows)
	require.Zero(t, summary.Batch.SucceededRows)
	require.Equal(t, 1, summary.Batch.FailedRows)

	recorded, err := ledger.ListErrors(context.Background(), summary.Batch.BatchID, 0)
	require.NoError(t, err)
	require.Len(t, recorded, summary.Batch.FailedRows)
}

func TestIngestUnreadableFileFailsBatch(t *testing.T) {
	ledger := newFakeLedger()
	svc := newTestService(t, ledger, &fakeSalesWriter{}, acmeConfig(t))

	summary, err := svc.Ingest(context.Background(), testTenant(), "acme-2025.xlsx", []byte("not a workbook"))
	require.NoError(t, err)
	require.Equal(t, persistence.BatchFailed, summary.Batch.Status)
	require.Contains(t, *summary.Batch.FailureReason, "parse upload")
}

func TestIngestEmptyFileFailsBatch(t *testing.T) {
	ledger := newFakeLedger()
	svc := newTestService(t, ledger, &fakeSalesWriter{}, acmeConfig(t))

	summary, err := svc.Ingest(context.Background(), testTenant(), "acme-2025.csv", []byte("EAN,Store,Month,Units,Net\n"))
	require.NoError(t, err)
	require.Equal(t, persistence.BatchFailed, summary.Batch.Status)
	require.Contains(t, *summary.Batch.FailureReason, "no data rows")
}

func TestIngestErrorSampleIsBounded(t *testing.T) {
	ledger := newFakeLedger()
	svc := newTestService(t, ledger, &fakeSalesWriter{}, acmeConfig(t))

	content := "EAN,Store,Month,Units,Net\n"
	for i := 0; i < DefaultErrorSample+10; i++ {
		content += "bad-ean,north,2025-01,1,1.00\n"
	}
	content += "4006381333931,north,2025-01,1,1.00\n"

	summary, err := svc.Ingest(context.Background(), testTenant(), "acme-2025.csv", []byte(content))
	require.NoError(t, err)

	require.Equal(t, persistence.BatchPartial, summary.Batch.Status)
	require.Equal(t, DefaultErrorSample+10, summary.Batch.FailedRows)
	require.Len(t, summary.ErrorSample, DefaultErrorSample)

	// The ledger still holds the full error list.
	recorded, err := ledger.ListErrors(context.Background(), summary.Batch.BatchID, 0)
	require.NoError(t, err)
	require.Len(t, recorded, DefaultErrorSample+10)
}

func TestGetBatchEnforcesTenantOwnership(t *testing.T) {
	ledger := newFakeLedger()
	svc := newTestService(t, ledger, &fakeSalesWriter{}, acmeConfig(t))
	owner := testTenant()

	content := []byte("EAN,Store,Month,Units,Net\n4006381333931,north,2025-01,5,100.00\n")
	summary, err := svc.Ingest(context.Background(), owner, "acme-2025.csv", content)
	require.NoError(t, err)

	got, err := svc.GetBatch(context.Background(), owner, summary.Batch.BatchID)
	require.NoError(t, err)
	require.Equal(t, summary.Batch.BatchID, got.BatchID)

	other := testTenant()
	_, err = svc.GetBatch(context.Background(), other, summary.Batch.BatchID)
	require.ErrorIs(t, err, ErrBatchNotFound)

	_, err = svc.ListErrors(context.Background(), other, summary.Batch.BatchID, 0)
	require.ErrorIs(t, err, ErrBatchNotFound)
}

func TestIngestRowIndicesMatchSourceRows(t *testing.T) {
	ledger := newFakeLedger()
	svc := newTestService(t, ledger, &fakeSalesWriter{}, acmeConfig(t))

	content := "EAN,Store,Month,Units,Net\n"
	bad := map[int]bool{4: true, 7: true}
	for row := 2; row <= 8; row++ {
		if bad[row] {
			content += "bad,north,2025-01,1,1.00\n"
		} else {
			content += fmt.Sprintf("4006381333931,north,2025-01,%d,1.00\n", row)
		}
	}

	summary, err := svc.Ingest(context.Background(), testTenant(), "acme-2025.csv", []byte(content))
	require.NoError(t, err)

	errs, err := svc.ListErrors(context.Background(), testTenantWithID(summary.Batch.TenantID), summary.Batch.BatchID, 0)
	require.NoError(t, err)
	require.Len(t, errs, 2)
	require.Equal(t, 4, errs[0].RowIndex)
	require.Equal(t, 7, errs[1].RowIndex)
}

func testTenantWithID(id uuid.UUID) tenant.Context {
	return tenant.Context{ID: id, Subdomain: "acme", SchemaName: "tenant_acme"}
}

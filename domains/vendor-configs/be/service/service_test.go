package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/channelpulse/channelpulse-saas/platform/go/persistence"
)

type mockRepository struct {
	upsertFn      func(ctx context.Context, params persistence.UpsertVendorConfigParams) (persistence.VendorConfigRecord, error)
	getResolvedFn func(ctx context.Context, tenantID uuid.UUID, vendorKey string) (persistence.VendorConfigRecord, error)
	listVisibleFn func(ctx context.Context, tenantID uuid.UUID) ([]persistence.VendorConfigRecord, error)
}

func (m *mockRepository) Upsert(ctx context.Context, params persistence.UpsertVendorConfigParams) (persistence.VendorConfigRecord, error) {
	if m.upsertFn == nil {
		panic("upsertFn not configured")
	}
	return m.upsertFn(ctx, params)
}

func (m *mockRepository) GetResolved(ctx context.Context, tenantID uuid.UUID, vendorKey string) (persistence.VendorConfigRecord, error) {
	if m.getResolvedFn == nil {
		panic("getResolvedFn not configured")
	}
	return m.getResolvedFn(ctx, tenantID, vendorKey)
}

func (m *mockRepository) ListVisible(ctx context.Context, tenantID uuid.UUID) ([]persistence.VendorConfigRecord, error) {
	if m.listVisibleFn == nil {
		panic("listVisibleFn not configured")
	}
	return m.listVisibleFn(ctx, tenantID)
}

func validRules(t *testing.T) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"signature": map[string]any{"filename_glob": "acme-*.xlsx"},
		"mappings": []any{
			map[string]any{"source": "EAN", "field": "product_ean"},
			map[string]any{"source": "Store", "field": "reseller"},
			map[string]any{"source": "Month", "field": "period"},
			map[string]any{"source": "Units", "field": "quantity"},
			map[string]any{"source": "Net", "field": "net_amount"},
		},
		"transform": map[string]any{"currency": "EUR", "period_layout": "2006-01"},
	})
	require.NoError(t, err)
	return raw
}

func TestUpsertNormalizesVendorKey(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{}
	repo.upsertFn = func(ctx context.Context, params persistence.UpsertVendorConfigParams) (persistence.VendorConfigRecord, error) {
		require.Equal(t, "acme-distribution", params.VendorKey)
		return persistence.VendorConfigRecord{
			ConfigID:  uuid.New(),
			VendorKey: params.VendorKey,
			Scope:     params.Scope,
			Version:   1,
			Rules:     params.Rules,
			IsActive:  params.Activate,
		}, nil
	}

	svc := New(repo)
	cfg, err := svc.Upsert(context.Background(), UpsertInput{
		VendorKey: "  Acme-Distribution ",
		Scope:     persistence.ScopeSystem,
		Rules:     validRules(t),
		Activate:  true,
	})
	require.NoError(t, err)
	require.Equal(t, "acme-distribution", cfg.VendorKey)
	require.True(t, cfg.IsActive)
}

func TestUpsertRejectsInvalidRulesBeforeStorage(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{}
	repo.upsertFn = func(ctx context.Context, params persistence.UpsertVendorConfigParams) (persistence.VendorConfigRecord, error) {
		t.Fatal("invalid payload reached the repository")
		return persistence.VendorConfigRecord{}, nil
	}

	svc := New(repo)
	_, err := svc.Upsert(context.Background(), UpsertInput{
		VendorKey: "acme",
		Scope:     persistence.ScopeSystem,
		Rules:     json.RawMessage(`{"signature":{},"mappings":[],"transform":{}}`),
	})
	require.ErrorIs(t, err, ErrInvalidRules)
}

func TestUpsertRejectsInvalidVendorKey(t *testing.T) {
	t.Parallel()

	svc := New(&mockRepository{})
	_, err := svc.Upsert(context.Background(), UpsertInput{
		VendorKey: "Bad Key!",
		Scope:     persistence.ScopeSystem,
		Rules:     validRules(t),
	})
	require.ErrorIs(t, err, ErrInvalidVendor)
}

func TestUpsertEnforcesScopeTenantIDAgreement(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{}
	repo.upsertFn = func(ctx context.Context, params persistence.UpsertVendorConfigParams) (persistence.VendorConfigRecord, error) {
		t.Fatal("mismatched scope reached the repository")
		return persistence.VendorConfigRecord{}, nil
	}
	svc := New(repo)
	tenantID := uuid.New()

	cases := []struct {
		name     string
		scope    string
		tenantID *uuid.UUID
	}{
		{"system scope with tenant id", persistence.ScopeSystem, &tenantID},
		{"tenant scope without tenant id", persistence.ScopeTenant, nil},
		{"unknown scope", "global", nil},
	}
	for _, tc := range cases {
		_, err := svc.Upsert(context.Background(), UpsertInput{
			VendorKey: "acme",
			Scope:     tc.scope,
			TenantID:  tc.tenantID,
			Rules:     validRules(t),
		})
		require.ErrorIs(t, err, ErrScopeForbidden, tc.name)
	}
}

func TestGetResolvedMapsNotFound(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{}
	repo.getResolvedFn = func(ctx context.Context, tenantID uuid.UUID, vendorKey string) (persistence.VendorConfigRecord, error) {
		require.Equal(t, "acme", vendorKey)
		return persistence.VendorConfigRecord{}, persistence.ErrConfigNotFound
	}

	svc := New(repo)
	_, err := svc.GetResolved(context.Background(), uuid.New(), "ACME")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListVisible(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	repo := &mockRepository{}
	repo.listVisibleFn = func(ctx context.Context, got uuid.UUID) ([]persistence.VendorConfigRecord, error) {
		require.Equal(t, tenantID, got)
		return []persistence.VendorConfigRecord{
			{ConfigID: uuid.New(), VendorKey: "acme", Scope: persistence.ScopeTenant, TenantID: &tenantID, Version: 3},
			{ConfigID: uuid.New(), VendorKey: "globex", Scope: persistence.ScopeSystem, Version: 1},
		}, nil
	}

	svc := New(repo)
	configs, err := svc.ListVisible(context.Background(), tenantID)
	require.NoError(t, err)
	require.Len(t, configs, 2)
	require.Equal(t, persistence.ScopeTenant, configs[0].Scope)
	require.Equal(t, "globex", configs[1].VendorKey)
}

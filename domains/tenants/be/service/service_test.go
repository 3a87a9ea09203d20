package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/channelpulse/channelpulse-saas/platform/go/vault"
)

type mockRepository struct {
	createFn    func(ctx context.Context, t Tenant, encryptedDSN []byte) (Tenant, error)
	getFn       func(ctx context.Context, id uuid.UUID) (Tenant, error)
	listFn      func(ctx context.Context) ([]Tenant, error)
	setActiveFn func(ctx context.Context, id uuid.UUID, active bool) error
	rotateFn    func(ctx context.Context, id uuid.UUID, encryptedDSN []byte) error
}

func (m *mockRepository) Create(ctx context.Context, t Tenant, encryptedDSN []byte) (Tenant, error) {
	if m.createFn == nil {
		panic("createFn not configured")
	}
	return m.createFn(ctx, t, encryptedDSN)
}

func (m *mockRepository) Get(ctx context.Context, id uuid.UUID) (Tenant, error) {
	if m.getFn == nil {
		panic("getFn not configured")
	}
	return m.getFn(ctx, id)
}

func (m *mockRepository) List(ctx context.Context) ([]Tenant, error) {
	if m.listFn == nil {
		panic("listFn not configured")
	}
	return m.listFn(ctx)
}

func (m *mockRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	if m.setActiveFn == nil {
		panic("setActiveFn not configured")
	}
	return m.setActiveFn(ctx, id, active)
}

func (m *mockRepository) RotateCredentials(ctx context.Context, id uuid.UUID, encryptedDSN []byte) error {
	if m.rotateFn == nil {
		panic("rotateFn not configured")
	}
	return m.rotateFn(ctx, id, encryptedDSN)
}

type mockProvisioner struct {
	provisionFn func(ctx context.Context, dsn, schemaName string) error
}

func (m *mockProvisioner) Provision(ctx context.Context, dsn, schemaName string) error {
	if m.provisionFn == nil {
		return nil
	}
	return m.provisionFn(ctx, dsn, schemaName)
}

type mockEvictor struct {
	evicted []uuid.UUID
}

func (m *mockEvictor) Evict(id uuid.UUID) {
	m.evicted = append(m.evicted, id)
}

func testVault(t *testing.T) *vault.Vault {
	t.Helper()
	key := make([]byte, vault.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	v, err := vault.New(key)
	require.NoError(t, err)
	return v
}

func TestServiceCreateSealsCredentials(t *testing.T) {
	t.Parallel()

	v := testVault(t)
	repo := &mockRepository{}

	var sealedDSN []byte
	repo.createFn = func(ctx context.Context, tn Tenant, encryptedDSN []byte) (Tenant, error) {
		require.Equal(t, "acme", tn.Subdomain)
		require.Equal(t, "tenant_acme", tn.SchemaName)
		require.True(t, tn.IsActive)
		require.NotEqual(t, uuid.Nil, tn.ID)
		sealedDSN = encryptedDSN
		return tn, nil
	}

	svc := New(repo, v, &mockProvisioner{}, nil)

	created, err := svc.Create(context.Background(), CreateInput{
		Subdomain: " Acme ",
		DSN:       "postgres://acme:secret@db/acme",
	})
	require.NoError(t, err)
	require.Equal(t, "acme", created.Subdomain)

	// The plaintext DSN must never reach the repository.
	require.NotContains(t, string(sealedDSN), "secret")
	plain, err := v.Open(sealedDSN)
	require.NoError(t, err)
	require.Equal(t, "postgres://acme:secret@db/acme", string(plain))
}

func TestServiceCreateProvisionsSchemaFirst(t *testing.T) {
	t.Parallel()

	v := testVault(t)
	repo := &mockRepository{}
	repo.createFn = func(ctx context.Context, tn Tenant, encryptedDSN []byte) (Tenant, error) {
		t.Fatal("registry row written despite provisioning failure")
		return Tenant{}, nil
	}

	boom := errors.New("schema create failed")
	prov := &mockProvisioner{provisionFn: func(ctx context.Context, dsn, schemaName string) error {
		require.Equal(t, "tenant_north_eu", schemaName)
		return boom
	}}

	svc := New(repo, v, prov, nil)

	_, err := svc.Create(context.Background(), CreateInput{
		Subdomain: "north-eu",
		DSN:       "postgres://north:pw@db/north",
	})
	require.ErrorIs(t, err, boom)
}

func TestServiceCreateRejectsInvalidSubdomain(t *testing.T) {
	t.Parallel()

	svc := New(&mockRepository{}, testVault(t), &mockProvisioner{}, nil)

	for _, sub := range []string{"", "has space", "Ütf", "-leading", "trailing-", "dots.here"} {
		_, err := svc.Create(context.Background(), CreateInput{Subdomain: sub, DSN: "postgres://x"})
		require.ErrorIs(t, err, ErrInvalidSubdomain, "subdomain %q", sub)
	}
}

func TestServiceCreateRequiresDSN(t *testing.T) {
	t.Parallel()

	svc := New(&mockRepository{}, testVault(t), &mockProvisioner{}, nil)

	_, err := svc.Create(context.Background(), CreateInput{Subdomain: "acme", DSN: "  "})
	require.ErrorIs(t, err, ErrMissingDataSource)
}

func TestServiceCreateSubdomainConflict(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{}
	repo.createFn = func(ctx context.Context, tn Tenant, encryptedDSN []byte) (Tenant, error) {
		return Tenant{}, ErrSubdomainTaken
	}

	svc := New(repo, testVault(t), &mockProvisioner{}, nil)

	_, err := svc.Create(context.Background(), CreateInput{Subdomain: "acme", DSN: "postgres://x"})
	require.ErrorIs(t, err, ErrSubdomainTaken)
}

func TestServiceRotateCredentials(t *testing.T) {
	t.Parallel()

	v := testVault(t)
	repo := &mockRepository{}
	id := uuid.New()

	repo.rotateFn = func(ctx context.Context, got uuid.UUID, encryptedDSN []byte) error {
		require.Equal(t, id, got)
		plain, err := v.Open(encryptedDSN)
		require.NoError(t, err)
		require.Equal(t, "postgres://rotated", string(plain))
		return nil
	}

	svc := New(repo, v, &mockProvisioner{}, nil)
	require.NoError(t, svc.RotateCredentials(context.Background(), id, "postgres://rotated"))

	require.ErrorIs(t, svc.RotateCredentials(context.Background(), id, ""), ErrMissingDataSource)
}

func TestServiceRotateCredentialsEvictsCachedHandle(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{}
	id := uuid.New()
	evictor := &mockEvictor{}

	rotated := false
	repo.rotateFn = func(ctx context.Context, got uuid.UUID, encryptedDSN []byte) error {
		require.Empty(t, evictor.evicted, "handle evicted before the new credentials were stored")
		rotated = true
		return nil
	}

	svc := New(repo, testVault(t), &mockProvisioner{}, evictor)
	require.NoError(t, svc.RotateCredentials(context.Background(), id, "postgres://rotated"))
	require.True(t, rotated)
	require.Equal(t, []uuid.UUID{id}, evictor.evicted)
}

func TestServiceRotateCredentialsFailureKeepsHandle(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{}
	evictor := &mockEvictor{}
	repo.rotateFn = func(ctx context.Context, id uuid.UUID, encryptedDSN []byte) error {
		return errors.New("registry write failed")
	}

	svc := New(repo, testVault(t), &mockProvisioner{}, evictor)
	require.Error(t, svc.RotateCredentials(context.Background(), uuid.New(), "postgres://rotated"))
	require.Empty(t, evictor.evicted)
}

func TestServiceDeactivateEvictsCachedHandle(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{}
	id := uuid.New()
	evictor := &mockEvictor{}
	repo.setActiveFn = func(ctx context.Context, got uuid.UUID, active bool) error {
		return nil
	}

	svc := New(repo, testVault(t), &mockProvisioner{}, evictor)

	require.NoError(t, svc.SetActive(context.Background(), id, false))
	require.Equal(t, []uuid.UUID{id}, evictor.evicted)

	// reactivation leaves the (empty) cache alone
	require.NoError(t, svc.SetActive(context.Background(), id, true))
	require.Equal(t, []uuid.UUID{id}, evictor.evicted)
}

func TestServiceSetActive(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{}
	id := uuid.New()
	repo.setActiveFn = func(ctx context.Context, got uuid.UUID, active bool) error {
		require.Equal(t, id, got)
		require.False(t, active)
		return nil
	}

	svc := New(repo, testVault(t), &mockProvisioner{}, nil)
	require.NoError(t, svc.SetActive(context.Background(), id, false))
}

// Package service implements the tenant registry operations: provisioning new
// tenants with vault-sealed credentials and administering their lifecycle.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/channelpulse/channelpulse-saas/platform/go/tenant"
	"github.com/channelpulse/channelpulse-saas/platform/go/vault"
)

// Errors returned by the service layer.
var (
	ErrNotFound          = errors.New("tenant not found")
	ErrSubdomainTaken    = errors.New("subdomain already has an active tenant")
	ErrInvalidSubdomain  = errors.New("invalid subdomain")
	ErrMissingDataSource = errors.New("data-store connection string is required")
)

// Tenant is the domain model for a registry entry.
type Tenant struct {
	ID          uuid.UUID
	Subdomain   string
	DisplayName *string
	SchemaName  string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateInput represents the request to provision a tenant. DSN is the
// plaintext connection string for the tenant's isolated data store; it is
// sealed by the vault before it ever reaches persistence and is not retained.
type CreateInput struct {
	Subdomain   string
	DisplayName *string
	DSN         string
}

// Repository abstracts registry persistence.
type Repository interface {
	Create(ctx context.Context, t Tenant, encryptedDSN []byte) (Tenant, error)
	Get(ctx context.Context, id uuid.UUID) (Tenant, error)
	List(ctx context.Context) ([]Tenant, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	RotateCredentials(ctx context.Context, id uuid.UUID, encryptedDSN []byte) error
}

// SchemaProvisioner prepares the tenant's schema inside its own data store.
type SchemaProvisioner interface {
	Provision(ctx context.Context, dsn, schemaName string) error
}

// HandleEvictor drops any cached data-store handle for a tenant. Rotation and
// deactivation must go through it so a pool built from stale credentials
// stops serving immediately.
type HandleEvictor interface {
	Evict(id uuid.UUID)
}

// Service provides tenant registry operations.
type Service struct {
	repo        Repository
	vault       *vault.Vault
	provisioner SchemaProvisioner
	evictor     HandleEvictor
}

// New constructs a Service with required dependencies. evictor may be nil when
// no handle cache exists in the process, as in the admin CLI.
func New(repo Repository, v *vault.Vault, provisioner SchemaProvisioner, evictor HandleEvictor) *Service {
	if repo == nil {
		panic("tenants repo is required")
	}
	if v == nil {
		panic("vault is required")
	}
	if provisioner == nil {
		panic("schema provisioner is required")
	}
	return &Service{repo: repo, vault: v, provisioner: provisioner, evictor: evictor}
}

// Create provisions a new tenant: validates the subdomain, prepares the
// tenant schema in the target data store, seals the credentials and writes
// the registry row. The schema is provisioned before the row becomes routable
// so a resolvable tenant always has a working store behind it.
func (s *Service) Create(ctx context.Context, input CreateInput) (Tenant, error) {
	sub := tenant.NormalizeSubdomain(input.Subdomain)
	if err := validateSubdomain(sub); err != nil {
		return Tenant{}, err
	}
	if strings.TrimSpace(input.DSN) == "" {
		return Tenant{}, ErrMissingDataSource
	}

	t := Tenant{
		ID:         uuid.New(),
		Subdomain:  sub,
		SchemaName: "tenant_" + strings.ReplaceAll(sub, "-", "_"),
		IsActive:   true,
	}
	t.DisplayName = input.DisplayName

	if err := s.provisioner.Provision(ctx, input.DSN, t.SchemaName); err != nil {
		return Tenant{}, fmt.Errorf("provision tenant schema: %w", err)
	}

	sealed, err := s.vault.Seal([]byte(input.DSN))
	if err != nil {
		return Tenant{}, fmt.Errorf("seal tenant credentials: %w", err)
	}

	return s.repo.Create(ctx, t, sealed)
}

// Get returns a tenant by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Tenant, error) {
	return s.repo.Get(ctx, id)
}

// List returns all registered tenants.
func (s *Service) List(ctx context.Context) ([]Tenant, error) {
	return s.repo.List(ctx)
}

// SetActive toggles routing for a tenant. Deactivation does not touch the
// tenant's data; batches and sales records stay queryable for audit. Any
// cached data-store handle is dropped on deactivation.
func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return err
	}
	if !active {
		s.evict(id)
	}
	return nil
}

// RotateCredentials seals a new DSN for an existing tenant and drops any
// handle still built from the previous credentials.
func (s *Service) RotateCredentials(ctx context.Context, id uuid.UUID, dsn string) error {
	if strings.TrimSpace(dsn) == "" {
		return ErrMissingDataSource
	}
	sealed, err := s.vault.Seal([]byte(dsn))
	if err != nil {
		return fmt.Errorf("seal tenant credentials: %w", err)
	}
	if err := s.repo.RotateCredentials(ctx, id, sealed); err != nil {
		return err
	}
	s.evict(id)
	return nil
}

func (s *Service) evict(id uuid.UUID) {
	if s.evictor != nil {
		s.evictor.Evict(id)
	}
}

func validateSubdomain(sub string) error {
	if sub == "" {
		return ErrInvalidSubdomain
	}
	for _, r := range sub {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' {
			continue
		}
		return fmt.Errorf("%w: %q", ErrInvalidSubdomain, sub)
	}
	if strings.HasPrefix(sub, "-") || strings.HasSuffix(sub, "-") {
		return fmt.Errorf("%w: %q", ErrInvalidSubdomain, sub)
	}
	return nil
}

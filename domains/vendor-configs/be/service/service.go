// Package service implements vendor config management: validated rule
// payloads, versioned upserts, and two-tier tenant/system resolution.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/channelpulse/channelpulse-saas/platform/go/persistence"
	"github.com/channelpulse/channelpulse-saas/platform/go/rules"
)

// Errors returned by the service layer.
var (
	ErrNotFound       = errors.New("vendor config not found")
	ErrInvalidRules   = errors.New("invalid rules payload")
	ErrInvalidVendor  = errors.New("invalid vendor key")
	ErrScopeForbidden = errors.New("scope not permitted for this caller")
)

// Config is the domain model for a vendor config version.
type Config struct {
	ID        uuid.UUID
	VendorKey string
	Scope     string
	TenantID  *uuid.UUID
	Version   int
	Rules     json.RawMessage
	RulesHash string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UpsertInput describes a new config version to register.
type UpsertInput struct {
	VendorKey string
	Scope     string
	TenantID  *uuid.UUID
	Rules     json.RawMessage
	Activate  bool
}

// Repository abstracts vendor config persistence.
type Repository interface {
	Upsert(ctx context.Context, params persistence.UpsertVendorConfigParams) (persistence.VendorConfigRecord, error)
	GetResolved(ctx context.Context, tenantID uuid.UUID, vendorKey string) (persistence.VendorConfigRecord, error)
	ListVisible(ctx context.Context, tenantID uuid.UUID) ([]persistence.VendorConfigRecord, error)
}

// Service provides vendor config operations.
type Service struct {
	repo Repository
}

// New constructs a Service instance.
func New(repo Repository) *Service {
	if repo == nil {
		panic("vendor configs repo is required")
	}
	return &Service{repo: repo}
}

// Upsert validates the rules payload and registers it as the next version for
// (vendor key, scope, tenant). Invalid payloads never reach storage.
func (s *Service) Upsert(ctx context.Context, input UpsertInput) (Config, error) {
	key, err := persistence.NormalizeVendorKey(input.VendorKey)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidVendor, err)
	}

	if err := validateScope(input.Scope, input.TenantID); err != nil {
		return Config{}, err
	}

	if _, err := rules.Validate(input.Rules); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}

	rec, err := s.repo.Upsert(ctx, persistence.UpsertVendorConfigParams{
		VendorKey: key,
		Scope:     input.Scope,
		TenantID:  input.TenantID,
		Rules:     input.Rules,
		Activate:  input.Activate,
	})
	if err != nil {
		return Config{}, err
	}
	return toDomain(rec), nil
}

// GetResolved returns the single config governing (tenant, vendor key). The
// tenant-scoped config shadows the system default entirely; rules are never
// merged across tiers.
func (s *Service) GetResolved(ctx context.Context, tenantID uuid.UUID, vendorKey string) (Config, error) {
	key, err := persistence.NormalizeVendorKey(vendorKey)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidVendor, err)
	}

	rec, err := s.repo.GetResolved(ctx, tenantID, key)
	if err != nil {
		if errors.Is(err, persistence.ErrConfigNotFound) {
			return Config{}, ErrNotFound
		}
		return Config{}, err
	}
	return toDomain(rec), nil
}

// ListVisible returns the effective config set for a tenant: its own configs
// plus unshadowed system defaults.
func (s *Service) ListVisible(ctx context.Context, tenantID uuid.UUID) ([]Config, error) {
	recs, err := s.repo.ListVisible(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]Config, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toDomain(rec))
	}
	return out, nil
}

// validateScope ensures the scope names a known tier and the tenant id is
// present exactly when the scope is tenant.
func validateScope(scope string, tenantID *uuid.UUID) error {
	switch scope {
	case persistence.ScopeSystem:
		if tenantID != nil {
			return fmt.Errorf("%w: system scope does not take a tenant id", ErrScopeForbidden)
		}
	case persistence.ScopeTenant:
		if tenantID == nil {
			return fmt.Errorf("%w: tenant scope requires a tenant id", ErrScopeForbidden)
		}
	default:
		return fmt.Errorf("%w: unknown scope %q", ErrScopeForbidden, scope)
	}
	return nil
}

func toDomain(rec persistence.VendorConfigRecord) Config {
	return Config{
		ID:        rec.ConfigID,
		VendorKey: rec.VendorKey,
		Scope:     rec.Scope,
		TenantID:  rec.TenantID,
		Version:   rec.Version,
		Rules:     rec.Rules,
		RulesHash: rec.RulesHash,
		IsActive:  rec.IsActive,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

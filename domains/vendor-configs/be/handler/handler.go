// Package handler exposes the vendor config endpoints. Read endpoints are
// tenant-scoped; the upsert endpoint lives under the admin router.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/channelpulse/channelpulse-saas/domains/vendor-configs/be/service"
	"github.com/channelpulse/channelpulse-saas/platform/go/httpapi"
	platformlogging "github.com/channelpulse/channelpulse-saas/platform/go/logging"
	"github.com/channelpulse/channelpulse-saas/platform/go/tenant"
)

// Handler wires the vendor configs service to the HTTP surface.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("vendor configs service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the tenant-scoped read endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{vendorKey}", h.get)
}

// AdminRoutes mounts the config management endpoints.
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Post("/", h.upsert)
}

type configResponse struct {
	ConfigID  uuid.UUID       `json:"configId"`
	VendorKey string          `json:"vendorKey"`
	Scope     string          `json:"scope"`
	TenantID  *uuid.UUID      `json:"tenantId,omitempty"`
	Version   int             `json:"version"`
	Rules     json.RawMessage `json:"rules"`
	RulesHash string          `json:"rulesHash"`
	IsActive  bool            `json:"isActive"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type upsertRequest struct {
	VendorKey string          `json:"vendorKey"`
	Scope     string          `json:"scope"`
	TenantID  *uuid.UUID      `json:"tenantId,omitempty"`
	Rules     json.RawMessage `json:"rules"`
	Activate  bool            `json:"activate"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenant.FromContext(r.Context())
	if !ok {
		h.writeError(r.Context(), w, errors.New("no tenant in context"), "listVendorConfigs")
		return
	}

	configs, err := h.svc.ListVisible(r.Context(), tc.ID)
	if err != nil {
		h.writeError(r.Context(), w, err, "listVendorConfigs")
		return
	}

	items := make([]configResponse, 0, len(configs))
	for _, c := range configs {
		items = append(items, toAPIConfig(c))
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenant.FromContext(r.Context())
	if !ok {
		h.writeError(r.Context(), w, errors.New("no tenant in context"), "getVendorConfig")
		return
	}

	cfg, err := h.svc.GetResolved(r.Context(), tc.ID, chi.URLParam(r, "vendorKey"))
	if err != nil {
		h.writeError(r.Context(), w, err, "getVendorConfig")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toAPIConfig(cfg))
}

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteProblem(w, httpapi.ProblemDetails{
			Type:   httpapi.ProblemTypeValidation,
			Title:  "Invalid request body",
			Status: http.StatusBadRequest,
			Detail: err.Error(),
		})
		return
	}

	cfg, err := h.svc.Upsert(r.Context(), service.UpsertInput{
		VendorKey: req.VendorKey,
		Scope:     req.Scope,
		TenantID:  req.TenantID,
		Rules:     req.Rules,
		Activate:  req.Activate,
	})
	if err != nil {
		h.writeError(r.Context(), w, err, "upsertVendorConfig")
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, toAPIConfig(cfg))
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error, op string) {
	var problem httpapi.ProblemDetails
	switch {
	case errors.Is(err, service.ErrNotFound):
		problem = httpapi.ProblemDetails{
			Type:   httpapi.ProblemTypeNotFound,
			Title:  "Vendor config not found",
			Status: http.StatusNotFound,
		}
	case errors.Is(err, service.ErrInvalidRules), errors.Is(err, service.ErrInvalidVendor):
		problem = httpapi.ProblemDetails{
			Type:   httpapi.ProblemTypeValidation,
			Title:  "Validation failed",
			Status: http.StatusBadRequest,
			Detail: err.Error(),
		}
	case errors.Is(err, service.ErrScopeForbidden):
		problem = httpapi.ProblemDetails{
			Type:   httpapi.ProblemTypeForbidden,
			Title:  "Scope not permitted",
			Status: http.StatusForbidden,
			Detail: err.Error(),
		}
	default:
		problem = httpapi.ProblemDetails{
			Type:   httpapi.ProblemTypeInternal,
			Title:  "Internal server error",
			Status: http.StatusInternalServerError,
		}
	}

	logger := h.loggerFrom(ctx)
	fields := []zap.Field{zap.String("operation", op), zap.Int("status", problem.Status), zap.Error(err)}
	if problem.Status >= http.StatusInternalServerError {
		logger.Error("vendor config operation failed", fields...)
	} else {
		logger.Warn("vendor config request rejected", fields...)
	}

	httpapi.WriteProblem(w, problem)
}

func (h *Handler) loggerFrom(ctx context.Context) *zap.Logger {
	if logger, ok := platformlogging.FromContext(ctx); ok {
		return logger
	}
	return h.logger
}

func toAPIConfig(c service.Config) configResponse {
	return configResponse{
		ConfigID:  c.ID,
		VendorKey: c.VendorKey,
		Scope:     c.Scope,
		TenantID:  c.TenantID,
		Version:   c.Version,
		Rules:     c.Rules,
		RulesHash: c.RulesHash,
		IsActive:  c.IsActive,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

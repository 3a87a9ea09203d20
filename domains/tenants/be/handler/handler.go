// Package handler exposes the tenant administration endpoints. These are
// platform-level routes, not tenant-scoped ones, so they sit outside the
// tenant routing middleware.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/channelpulse/channelpulse-saas/domains/tenants/be/service"
	"github.com/channelpulse/channelpulse-saas/platform/go/httpapi"
	platformlogging "github.com/channelpulse/channelpulse-saas/platform/go/logging"
)

// Handler wires the tenants service to the admin HTTP surface.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the admin tenant endpoints on the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{tenantID}", h.get)
	r.Post("/{tenantID}/activate", h.setActive(true))
	r.Post("/{tenantID}/deactivate", h.setActive(false))
	r.Post("/{tenantID}/credentials", h.rotateCredentials)
}

type tenantResponse struct {
	TenantID    uuid.UUID `json:"tenantId"`
	Subdomain   string    `json:"subdomain"`
	DisplayName *string   `json:"displayName,omitempty"`
	SchemaName  string    `json:"schemaName"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type createTenantRequest struct {
	Subdomain   string  `json:"subdomain"`
	DisplayName *string `json:"displayName,omitempty"`
	DSN         string  `json:"dsn"`
}

type rotateCredentialsRequest struct {
	DSN string `json:"dsn"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.svc.List(r.Context())
	if err != nil {
		h.writeError(r.Context(), w, err, "listTenants")
		return
	}

	items := make([]tenantResponse, 0, len(tenants))
	for _, t := range tenants {
		items = append(items, toAPITenant(t))
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteProblem(w, httpapi.ProblemDetails{
			Type:   httpapi.ProblemTypeValidation,
			Title:  "Invalid request body",
			Status: http.StatusBadRequest,
			Detail: err.Error(),
		})
		return
	}

	created, err := h.svc.Create(r.Context(), service.CreateInput{
		Subdomain:   req.Subdomain,
		DisplayName: req.DisplayName,
		DSN:         req.DSN,
	})
	if err != nil {
		h.writeError(r.Context(), w, err, "createTenant")
		return
	}

	w.Header().Set("Location", "/api/v1/admin/tenants/"+created.ID.String())
	httpapi.WriteJSON(w, http.StatusCreated, toAPITenant(created))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	t, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(r.Context(), w, err, "getTenant")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toAPITenant(t))
}

func (h *Handler) setActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.tenantID(w, r)
		if !ok {
			return
		}

		if err := h.svc.SetActive(r.Context(), id, active); err != nil {
			h.writeError(r.Context(), w, err, "setTenantActive")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) rotateCredentials(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	var req rotateCredentialsRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteProblem(w, httpapi.ProblemDetails{
			Type:   httpapi.ProblemTypeValidation,
			Title:  "Invalid request body",
			Status: http.StatusBadRequest,
			Detail: err.Error(),
		})
		return
	}

	if err := h.svc.RotateCredentials(r.Context(), id, req.DSN); err != nil {
		h.writeError(r.Context(), w, err, "rotateTenantCredentials")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) tenantID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		httpapi.WriteProblem(w, httpapi.ProblemDetails{
			Type:   httpapi.ProblemTypeValidation,
			Title:  "Invalid tenant id",
			Status: http.StatusBadRequest,
			Detail: "tenantID must be a UUID",
		})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error, op string) {
	var problem httpapi.ProblemDetails
	switch {
	case errors.Is(err, service.ErrNotFound):
		problem = httpapi.ProblemDetails{
			Type:   httpapi.ProblemTypeNotFound,
			Title:  "Tenant not found",
			Status: http.StatusNotFound,
		}
	case errors.Is(err, service.ErrSubdomainTaken):
		problem = httpapi.ProblemDetails{
			Type:   httpapi.ProblemTypeConflict,
			Title:  "Subdomain already in use",
			Status: http.StatusConflict,
		}
	case errors.Is(err, service.ErrInvalidSubdomain), errors.Is(err, service.ErrMissingDataSource):
		problem = httpapi.ProblemDetails{
			Type:   httpapi.ProblemTypeValidation,
			Title:  "Validation failed",
			Status: http.StatusBadRequest,
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
		logger.Error("tenant admin operation failed", fields...)
	} else {
		logger.Warn("tenant admin request rejected", fields...)
	}

	httpapi.WriteProblem(w, problem)
}

func (h *Handler) loggerFrom(ctx context.Context) *zap.Logger {
	if logger, ok := platformlogging.FromContext(ctx); ok {
		return logger
	}
	return h.logger
}

func toAPITenant(t service.Tenant) tenantResponse {
	return tenantResponse{
		TenantID:    t.ID,
		Subdomain:   t.Subdomain,
		DisplayName: t.DisplayName,
		SchemaName:  t.SchemaName,
		IsActive:    t.IsActive,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

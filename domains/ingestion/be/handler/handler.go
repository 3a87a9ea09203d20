// Package handler exposes the tenant-scoped ingestion endpoints: file upload
// plus batch and error lookups.
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/channelpulse/channelpulse-saas/domains/ingestion/be/service"
	"github.com/channelpulse/channelpulse-saas/platform/go/httpapi"
	platformlogging "github.com/channelpulse/channelpulse-saas/platform/go/logging"
	"github.com/channelpulse/channelpulse-saas/platform/go/persistence"
	"github.com/channelpulse/channelpulse-saas/platform/go/tenant"
)

// MaxUploadBytes caps one uploaded report file.
const MaxUploadBytes = 32 << 20

// Handler wires the ingestion service to the HTTP surface.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("ingestion service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the ingestion endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/ingest", h.ingest)
	r.Get("/batches/{batchID}", h.getBatch)
	r.Get("/batches/{batchID}/errors", h.listErrors)
}

type batchResponse struct {
	BatchID       uuid.UUID  `json:"batchId"`
	Filename      string     `json:"filename"`
	Fingerprint   string     `json:"fingerprint"`
	VendorKey     *string    `json:"vendorKey,omitempty"`
	ConfigVersion *int       `json:"configVersion,omitempty"`
	Status        string     `json:"status"`
	TotalRows     int        `json:"totalRows"`
	SucceededRows int        `json:"succeededRows"`
	FailedRows    int        `json:"failedRows"`
	FailureReason *string    `json:"failureReason,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

type ingestResponse struct {
	Batch       batchResponse      `json:"batch"`
	ErrorSample []service.RowError `json:"errorSample,omitempty"`
	// Demo marks batches ingested into the shared demonstration tenant.
	Demo bool `json:"demo,omitempty"`
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenant.FromContext(r.Context())
	if !ok {
		h.writeError(r.Context(), w, errors.New("no tenant in context"), "ingestUpload")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		httpapi.WriteProblem(w, httpapi.ProblemDetails{
			Type:   httpapi.ProblemTypeValidation,
			Title:  "Invalid upload",
			Status: http.StatusBadRequest,
			Detail: `multipart field "file" is required`,
		})
		return
	}
	defer file.Close() // nolint:errcheck

	content, err := io.ReadAll(file)
	if err != nil {
		httpapi.WriteProblem(w, httpapi.ProblemDetails{
			Type:   httpapi.ProblemTypeValidation,
			Title:  "Invalid upload",
			Status: http.StatusBadRequest,
			Detail: "could not read upload body",
		})
		return
	}

	summary, err := h.svc.Ingest(r.Context(), tc, header.Filename, content)
	if err != nil {
		h.writeError(r.Context(), w, err, "ingestUpload")
		return
	}

	httpapi.WriteJSON(w, http.StatusCreated, ingestResponse{
		Batch:       toAPIBatch(summary.Batch),
		ErrorSample: summary.ErrorSample,
		Demo:        tc.Features.Demo,
	})
}

func (h *Handler) getBatch(w http.ResponseWriter, r *http.Request) {
	tc, batchID, ok := h.scope(w, r)
	if !ok {
		return
	}

	batch, err := h.svc.GetBatch(r.Context(), tc, batchID)
	if err != nil {
		h.writeError(r.Context(), w, err, "getBatch")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toAPIBatch(batch))
}

func (h *Handler) listErrors(w http.ResponseWriter, r *http.Request) {
	tc, batchID, ok := h.scope(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			httpapi.WriteProblem(w, httpapi.ProblemDetails{
				Type:   httpapi.ProblemTypeValidation,
				Title:  "Invalid limit",
				Status: http.StatusBadRequest,
				Detail: "limit must be a non-negative integer",
			})
			return
		}
		limit = parsed
	}

	rowErrors, err := h.svc.ListErrors(r.Context(), tc, batchID, limit)
	if err != nil {
		h.writeError(r.Context(), w, err, "listBatchErrors")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"items": rowErrors})
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (tenant.Context, uuid.UUID, bool) {
	tc, ok := tenant.FromContext(r.Context())
	if !ok {
		h.writeError(r.Context(), w, errors.New("no tenant in context"), "resolveBatchScope")
		return tenant.Context{}, uuid.Nil, false
	}

	batchID, err := uuid.Parse(chi.URLParam(r, "batchID"))
	if err != nil {
		httpapi.WriteProblem(w, httpapi.ProblemDetails{
			Type:   httpapi.ProblemTypeValidation,
			Title:  "Invalid batch id",
			Status: http.StatusBadRequest,
			Detail: "batchID must be a UUID",
		})
		return tenant.Context{}, uuid.Nil, false
	}
	return tc, batchID, true
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error, op string) {
	var problem httpapi.ProblemDetails
	switch {
	case errors.Is(err, service.ErrDuplicateBatch):
		problem = httpapi.ProblemDetails{
			Type:   httpapi.ProblemTypeConflict,
			Title:  "Duplicate upload",
			Status: http.StatusConflict,
			Detail: "this exact file was already submitted",
		}
	case errors.Is(err, service.ErrBatchNotFound):
		problem = httpapi.ProblemDetails{
			Type:   httpapi.ProblemTypeNotFound,
			Title:  "Batch not found",
			Status: http.StatusNotFound,
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
		logger.Error("ingestion operation failed", fields...)
	} else {
		logger.Warn("ingestion request rejected", fields...)
	}

	httpapi.WriteProblem(w, problem)
}

func (h *Handler) loggerFrom(ctx context.Context) *zap.Logger {
	if logger, ok := platformlogging.FromContext(ctx); ok {
		return logger
	}
	return h.logger
}

func toAPIBatch(b persistence.BatchRow) batchResponse {
	return batchResponse{
		BatchID:       b.BatchID,
		Filename:      b.Filename,
		Fingerprint:   b.Fingerprint,
		VendorKey:     b.VendorKey,
		ConfigVersion: b.ConfigVersion,
		Status:        b.Status,
		TotalRows:     b.TotalRows,
		SucceededRows: b.SucceededRows,
		FailedRows:    b.FailedRows,
		FailureReason: b.FailureReason,
		CreatedAt:     b.CreatedAt,
		CompletedAt:   b.CompletedAt,
	}
}

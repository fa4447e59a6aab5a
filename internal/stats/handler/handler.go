// Package handler exposes the tenant-stats HTTP API.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/internal/stats"
	apperrors "github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/pkg/errors"
	"github.com/Sumit-MSIS/capstone-multiagent-doc-intelligence--sub000/pkg/logger"
)

type Handler struct {
	svc    *stats.Service
	logger *slog.Logger
}

func New(svc *stats.Service) *Handler {
	return &Handler{
		svc:    svc,
		logger: slog.Default().With("component", "stats-handler"),
	}
}

// updateResponse is the wire shape for POST /tenant-stats/update. Callers
// always receive a well-formed aggregate, possibly neutral, plus a
// human-readable message; internal reconciliation problems never become 5xx.
type updateResponse struct {
	TenantID        string  `json:"tenant_id"`
	TotalChunkCount int64   `json:"total_chunk_count"`
	TotalTermLength int64   `json:"total_term_length"`
	AvgDocLength    float64 `json:"average_document_length"`
	Message         string  `json:"message"`
}

// Update applies one mutation event and responds once the event's batch has
// been flushed.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var ev stats.MutationEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	snap, err := h.svc.Apply(ctx, ev)
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, updateResponse{
			TenantID:        snap.TenantID,
			TotalChunkCount: snap.TotalChunkCount,
			TotalTermLength: snap.TotalTermLength,
			AvgDocLength:    snap.AvgDocLength,
			Message:         "statistics updated",
		})

	case errors.Is(err, apperrors.ErrInvalidInput):
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())

	case errors.Is(err, stats.ErrBootstrapDegraded):
		log.Warn("serving degraded statistics", "tenant_id", ev.TenantID)
		h.writeJSON(w, http.StatusOK, updateResponse{
			TenantID:     ev.TenantID,
			AvgDocLength: stats.NeutralAvgDocLength,
			Message:      "statistics temporarily degraded: corpus store unreachable",
		})

	default:
		// Flush wait interrupted (client went away, server shutting
		// down). Still a well-formed degraded aggregate, not a 5xx.
		log.Warn("flush wait interrupted", "tenant_id", ev.TenantID, "error", err)
		h.writeJSON(w, http.StatusOK, updateResponse{
			TenantID:     ev.TenantID,
			AvgDocLength: stats.NeutralAvgDocLength,
			Message:      "statistics update accepted but not confirmed",
		})
	}
}

// Get returns the current in-memory aggregate for a tenant without applying
// a mutation.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant")
	if tenantID == "" {
		tenantID = strings.TrimPrefix(r.URL.Path, "/tenant-stats/")
	}
	if tenantID == "" || strings.Contains(tenantID, "/") {
		h.writeError(w, http.StatusBadRequest, "tenant id is required")
		return
	}
	snap, ok := h.svc.Peek(tenantID)
	if !ok {
		err := apperrors.New(apperrors.ErrTenantNotFound, http.StatusNotFound, "tenant not tracked by this process")
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Message)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// Package handlers implements the HTTP API over the security monitor.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/telhawk-systems/secmon/internal/errs"
	"github.com/telhawk-systems/secmon/internal/httputil"
	"github.com/telhawk-systems/secmon/internal/logging"
	"github.com/telhawk-systems/secmon/internal/models"
	"github.com/telhawk-systems/secmon/internal/monitor"
	"github.com/telhawk-systems/secmon/internal/repository"
)

type Handler struct {
	monitor *monitor.Monitor
	repo    repository.Repository
	logger  *slog.Logger
}

func NewHandler(m *monitor.Monitor, repo repository.Repository, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		monitor: m,
		repo:    repo,
		logger:  logger.With(logging.Component("http")),
	}
}

// HealthCheck handles GET /healthz.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// RecordEvent handles POST /api/v1/events.
func (h *Handler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	var event models.SecurityEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.monitor.RecordEvent(r.Context(), &event); err != nil {
		var ve *errs.ValidationError
		if errors.As(err, &ve) {
			httputil.WriteError(w, http.StatusBadRequest, ve.Error())
			return
		}
		h.logger.Error("event ingestion failed", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to record event")
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"id": event.ID})
}

// ListAlerts handles GET /api/v1/alerts. The optional "acknowledged" query
// parameter filters by acknowledgment state.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	var acknowledged *bool
	if raw := r.URL.Query().Get("acknowledged"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "acknowledged must be a boolean")
			return
		}
		acknowledged = &parsed
	}

	alerts, err := h.repo.List(r.Context(), acknowledged)
	if err != nil {
		h.logger.Error("alert listing failed", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []*models.SecurityAlert{}
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"total":  len(alerts),
	})
}

// AcknowledgeAlert handles POST /api/v1/alerts/{id}/ack.
func (h *Handler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/v1/alerts/"), "/ack")
	if id == "" {
		httputil.WriteError(w, http.StatusBadRequest, "alert ID required")
		return
	}

	if err := h.monitor.Acknowledge(r.Context(), id); err != nil {
		var nf *errs.NotFoundError
		if errors.As(err, &nf) {
			httputil.WriteError(w, http.StatusNotFound, nf.Error())
			return
		}
		h.logger.Error("alert acknowledgment failed", logging.AlertID(id), logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to acknowledge alert")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"id": id, "status": "acknowledged"})
}

// Snapshot handles GET /api/v1/snapshot.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.monitor.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("snapshot failed", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to build snapshot")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, snapshot)
}

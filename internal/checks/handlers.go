package checks

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/HerbHall/netsage/pkg/models"
	"github.com/HerbHall/netsage/pkg/plugin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CheckRequest is the body for creating or updating a check.
// @Description Health check definition. target is a host (ping), host:port (tcp), or URL (http).
type CheckRequest struct {
	Name            string `json:"name" example:"office gateway"`
	CheckType       string `json:"check_type" example:"ping"`
	Target          string `json:"target" example:"10.0.0.1"`
	IntervalSeconds int    `json:"interval_seconds" example:"60"`
	Enabled         *bool  `json:"enabled,omitempty"`
}

// Routes implements plugin.HTTPProvider. Mounted under /api/v1/checks/.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "", Handler: m.handleListChecks},
		{Method: "POST", Path: "", Handler: m.handleCreateCheck},
		{Method: "GET", Path: "/{id}", Handler: m.handleGetCheck},
		{Method: "PUT", Path: "/{id}", Handler: m.handleUpdateCheck},
		{Method: "DELETE", Path: "/{id}", Handler: m.handleDeleteCheck},
		{Method: "POST", Path: "/{id}/run", Handler: m.handleRunCheck},
		{Method: "GET", Path: "/{id}/results", Handler: m.handleListResults},
		{Method: "GET", Path: "/alerts", Handler: m.handleListAlerts},
	}
}

// handleListChecks returns all registered checks.
//
//	@Summary		List checks
//	@Description	Returns all registered health checks.
//	@Tags			checks
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200 {array} Check
//	@Failure		500 {object} models.APIProblem
//	@Router			/checks [get]
func (m *Module) handleListChecks(w http.ResponseWriter, r *http.Request) {
	checks, err := m.store.ListChecks(r.Context())
	if err != nil {
		m.logger.Error("list checks failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list checks")
		return
	}
	if checks == nil {
		checks = []Check{}
	}
	writeJSON(w, http.StatusOK, checks)
}

// handleCreateCheck registers a new check.
//
//	@Summary		Create check
//	@Description	Registers a new health check. It starts running on the next scheduler tick.
//	@Tags			checks
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request body CheckRequest true "Check definition"
//	@Success		201 {object} Check
//	@Failure		400 {object} models.APIProblem
//	@Router			/checks [post]
func (m *Module) handleCreateCheck(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := validateCheckRequest(req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	now := time.Now().UTC()
	check := &Check{
		ID:              uuid.NewString(),
		Name:            req.Name,
		CheckType:       req.CheckType,
		Target:          req.Target,
		IntervalSeconds: req.IntervalSeconds,
		Enabled:         true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.Enabled != nil {
		check.Enabled = *req.Enabled
	}
	if check.IntervalSeconds <= 0 {
		check.IntervalSeconds = 60
	}

	if err := m.store.InsertCheck(r.Context(), check); err != nil {
		m.logger.Error("create check failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store check")
		return
	}
	writeJSON(w, http.StatusCreated, check)
}

// handleGetCheck returns one check by ID.
//
//	@Summary		Get check
//	@Description	Returns a single health check.
//	@Tags			checks
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id path string true "Check ID"
//	@Success		200 {object} Check
//	@Failure		404 {object} models.APIProblem
//	@Router			/checks/{id} [get]
func (m *Module) handleGetCheck(w http.ResponseWriter, r *http.Request) {
	check, ok := m.loadCheck(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, check)
}

// handleUpdateCheck replaces a check's definition.
//
//	@Summary		Update check
//	@Description	Updates a health check definition.
//	@Tags			checks
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id path string true "Check ID"
//	@Param			request body CheckRequest true "Check definition"
//	@Success		200 {object} Check
//	@Failure		400 {object} models.APIProblem
//	@Failure		404 {object} models.APIProblem
//	@Router			/checks/{id} [put]
func (m *Module) handleUpdateCheck(w http.ResponseWriter, r *http.Request) {
	check, ok := m.loadCheck(w, r)
	if !ok {
		return
	}

	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := validateCheckRequest(req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	check.Name = req.Name
	check.CheckType = req.CheckType
	check.Target = req.Target
	if req.IntervalSeconds > 0 {
		check.IntervalSeconds = req.IntervalSeconds
	}
	if req.Enabled != nil {
		check.Enabled = *req.Enabled
	}

	if err := m.store.UpdateCheck(r.Context(), check); err != nil {
		m.logger.Error("update check failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store check")
		return
	}
	writeJSON(w, http.StatusOK, check)
}

// handleDeleteCheck removes a check and its history.
//
//	@Summary		Delete check
//	@Description	Removes a health check and its result history.
//	@Tags			checks
//	@Security		BearerAuth
//	@Param			id path string true "Check ID"
//	@Success		204
//	@Failure		404 {object} models.APIProblem
//	@Router			/checks/{id} [delete]
func (m *Module) handleDeleteCheck(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted, err := m.store.DeleteCheck(r.Context(), id)
	if err != nil {
		m.logger.Error("delete check failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete check")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "check "+id+" not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRunCheck runs a check immediately and returns its latest result.
//
//	@Summary		Run check now
//	@Description	Runs a health check immediately, outside the normal cadence.
//	@Tags			checks
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id path string true "Check ID"
//	@Success		200 {object} CheckResult
//	@Failure		404 {object} models.APIProblem
//	@Router			/checks/{id}/run [post]
func (m *Module) handleRunCheck(w http.ResponseWriter, r *http.Request) {
	check, ok := m.loadCheck(w, r)
	if !ok {
		return
	}

	m.scheduler.RunNow(r.Context(), *check)

	result, err := m.store.LatestResult(r.Context(), check.ID)
	if err != nil || result == nil {
		m.logger.Error("run-now result fetch failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "check ran but result could not be loaded")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleListResults returns recent results for a check.
//
//	@Summary		Check results
//	@Description	Returns recent results for a check, newest first.
//	@Tags			checks
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id path string true "Check ID"
//	@Param			limit query int false "Max results (default 100)"
//	@Success		200 {array} CheckResult
//	@Failure		404 {object} models.APIProblem
//	@Router			/checks/{id}/results [get]
func (m *Module) handleListResults(w http.ResponseWriter, r *http.Request) {
	check, ok := m.loadCheck(w, r)
	if !ok {
		return
	}

	results, err := m.store.ListResults(r.Context(), check.ID, parseLimit(r, 100))
	if err != nil {
		m.logger.Error("list results failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list results")
		return
	}
	if results == nil {
		results = []CheckResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

// handleListAlerts returns alerts, optionally only active ones.
//
//	@Summary		List alerts
//	@Description	Returns triggered alerts, newest first. Use active=true for unresolved only.
//	@Tags			checks
//	@Produce		json
//	@Security		BearerAuth
//	@Param			active query bool false "Only unresolved alerts"
//	@Param			limit query int false "Max alerts (default 100)"
//	@Success		200 {array} Alert
//	@Failure		500 {object} models.APIProblem
//	@Router			/checks/alerts [get]
func (m *Module) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	alerts, err := m.store.ListAlerts(r.Context(), activeOnly, parseLimit(r, 100))
	if err != nil {
		m.logger.Error("list alerts failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (m *Module) loadCheck(w http.ResponseWriter, r *http.Request) (*Check, bool) {
	id := r.PathValue("id")
	check, err := m.store.GetCheck(r.Context(), id)
	if err != nil {
		m.logger.Error("get check failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load check")
		return nil, false
	}
	if check == nil {
		writeError(w, http.StatusNotFound, "check "+id+" not found")
		return nil, false
	}
	return check, true
}

func validateCheckRequest(req CheckRequest) string {
	if strings.TrimSpace(req.Name) == "" {
		return "name is required"
	}
	switch req.CheckType {
	case "ping", "tcp", "http":
	default:
		return "check_type must be ping, tcp, or http"
	}
	if strings.TrimSpace(req.Target) == "" {
		return "target is required"
	}
	return ""
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.APIProblem{
		Type:   "https://netsage.com/problems/checks-error",
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	})
}

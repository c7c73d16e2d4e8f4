package settings

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/HerbHall/netsage/pkg/models"
	"go.uber.org/zap"
)

// ControllerResponse is a controller config with the credential redacted.
// @Description A configured local controller. The API key is never returned.
type ControllerResponse struct {
	ID        string `json:"id" example:"ctl-1"`
	Name      string `json:"name" example:"Head Office"`
	Enabled   bool   `json:"enabled"`
	BaseURL   string `json:"base_url" example:"https://10.0.0.1"`
	Site      string `json:"site" example:"default"`
	VerifySSL bool   `json:"verify_ssl"`
	KeySet    bool   `json:"key_set"`
}

// ControllerRequest is the body for creating or updating a controller.
// @Description Controller configuration. api_key holds either an API key or "user:pass".
type ControllerRequest struct {
	ID        string `json:"id" example:"ctl-1"`
	Name      string `json:"name" example:"Head Office"`
	Enabled   *bool  `json:"enabled,omitempty"`
	BaseURL   string `json:"base_url" example:"https://10.0.0.1"`
	APIKey    string `json:"api_key,omitempty"`
	Site      string `json:"site,omitempty" example:"default"`
	VerifySSL bool   `json:"verify_ssl"`
}

// CloudResponse is the cloud fleet config with the credential redacted.
// @Description Cloud fleet API configuration. The API key is never returned.
type CloudResponse struct {
	Enabled bool   `json:"enabled"`
	BaseURL string `json:"base_url,omitempty" example:"https://api.ui.com"`
	KeySet  bool   `json:"key_set"`
}

// CloudRequest is the body for updating the cloud fleet config.
// @Description Cloud fleet API configuration update.
type CloudRequest struct {
	Enabled bool   `json:"enabled"`
	APIKey  string `json:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
}

func redactController(c models.ControllerConfig) ControllerResponse {
	return ControllerResponse{
		ID:        c.ID,
		Name:      c.Name,
		Enabled:   c.Enabled,
		BaseURL:   c.BaseURL,
		Site:      c.Site,
		VerifySSL: c.VerifySSL,
		KeySet:    c.APIKey != "",
	}
}

// handleListControllers returns all configured controllers.
//
//	@Summary		List controllers
//	@Description	Returns all configured local controllers in monitoring order.
//	@Tags			settings
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200 {array} ControllerResponse
//	@Failure		500 {object} models.APIProblem
//	@Router			/settings/controllers [get]
func (m *Module) handleListControllers(w http.ResponseWriter, r *http.Request) {
	controllers, err := m.repo.ListControllers(r.Context())
	if err != nil {
		m.logger.Error("list controllers failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list controllers")
		return
	}

	out := make([]ControllerResponse, 0, len(controllers))
	for _, c := range controllers {
		out = append(out, redactController(c))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCreateController adds a new controller.
//
//	@Summary		Add controller
//	@Description	Adds a local controller to the monitored fleet.
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request body ControllerRequest true "Controller config"
//	@Success		201 {object} ControllerResponse
//	@Failure		400 {object} models.APIProblem
//	@Failure		409 {object} models.APIProblem
//	@Router			/settings/controllers [post]
func (m *Module) handleCreateController(w http.ResponseWriter, r *http.Request) {
	var req ControllerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	cfg, errMsg := controllerFromRequest(req, models.ControllerConfig{Enabled: true, Site: "default"})
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if _, err := m.repo.GetController(r.Context(), cfg.ID); err == nil {
		writeError(w, http.StatusConflict, "controller "+cfg.ID+" already exists")
		return
	} else if !errors.Is(err, sql.ErrNoRows) {
		m.logger.Error("controller lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store controller")
		return
	}

	if err := m.repo.UpsertController(r.Context(), cfg); err != nil {
		m.logger.Error("create controller failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store controller")
		return
	}

	m.notifyChanged(r.Context(), "controller", cfg.ID)
	writeJSON(w, http.StatusCreated, redactController(cfg))
}

// handleGetController returns one controller by ID.
//
//	@Summary		Get controller
//	@Description	Returns a single configured controller.
//	@Tags			settings
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id path string true "Controller ID"
//	@Success		200 {object} ControllerResponse
//	@Failure		404 {object} models.APIProblem
//	@Router			/settings/controllers/{id} [get]
func (m *Module) handleGetController(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	c, err := m.repo.GetController(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "controller "+id+" not found")
		return
	}
	if err != nil {
		m.logger.Error("get controller failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load controller")
		return
	}
	writeJSON(w, http.StatusOK, redactController(c))
}

// handleUpdateController replaces an existing controller's configuration.
// An empty api_key in the request keeps the stored credential.
//
//	@Summary		Update controller
//	@Description	Updates a configured controller. Omit api_key to keep the stored credential.
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id path string true "Controller ID"
//	@Param			request body ControllerRequest true "Controller config"
//	@Success		200 {object} ControllerResponse
//	@Failure		400 {object} models.APIProblem
//	@Failure		404 {object} models.APIProblem
//	@Router			/settings/controllers/{id} [put]
func (m *Module) handleUpdateController(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := m.repo.GetController(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "controller "+id+" not found")
		return
	}
	if err != nil {
		m.logger.Error("get controller failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load controller")
		return
	}

	var req ControllerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.ID = id
	cfg, errMsg := controllerFromRequest(req, existing)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if err := m.repo.UpsertController(r.Context(), cfg); err != nil {
		m.logger.Error("update controller failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store controller")
		return
	}

	m.notifyChanged(r.Context(), "controller", id)
	writeJSON(w, http.StatusOK, redactController(cfg))
}

// handleDeleteController removes a controller from the monitored fleet.
//
//	@Summary		Delete controller
//	@Description	Removes a controller from the monitored fleet.
//	@Tags			settings
//	@Security		BearerAuth
//	@Param			id path string true "Controller ID"
//	@Success		204
//	@Failure		404 {object} models.APIProblem
//	@Router			/settings/controllers/{id} [delete]
func (m *Module) handleDeleteController(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted, err := m.repo.DeleteController(r.Context(), id)
	if err != nil {
		m.logger.Error("delete controller failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete controller")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "controller "+id+" not found")
		return
	}

	m.notifyChanged(r.Context(), "controller", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleGetCloud returns the cloud fleet API configuration.
//
//	@Summary		Get cloud config
//	@Description	Returns the cloud fleet API configuration.
//	@Tags			settings
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200 {object} CloudResponse
//	@Failure		500 {object} models.APIProblem
//	@Router			/settings/cloud [get]
func (m *Module) handleGetCloud(w http.ResponseWriter, r *http.Request) {
	c, err := m.repo.GetCloud(r.Context())
	if err != nil {
		m.logger.Error("get cloud config failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load cloud config")
		return
	}
	writeJSON(w, http.StatusOK, CloudResponse{
		Enabled: c.Enabled,
		BaseURL: c.BaseURL,
		KeySet:  c.APIKey != "",
	})
}

// handlePutCloud updates the cloud fleet API configuration.
// An empty api_key keeps the stored credential.
//
//	@Summary		Update cloud config
//	@Description	Updates the cloud fleet API configuration. Omit api_key to keep the stored credential.
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request body CloudRequest true "Cloud config"
//	@Success		200 {object} CloudResponse
//	@Failure		400 {object} models.APIProblem
//	@Router			/settings/cloud [put]
func (m *Module) handlePutCloud(w http.ResponseWriter, r *http.Request) {
	var req CloudRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.BaseURL != "" && !validBaseURL(req.BaseURL) {
		writeError(w, http.StatusBadRequest, "base_url must be an absolute http(s) URL")
		return
	}

	existing, err := m.repo.GetCloud(r.Context())
	if err != nil {
		m.logger.Error("get cloud config failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load cloud config")
		return
	}

	cfg := models.CloudConfig{
		Enabled: req.Enabled,
		APIKey:  req.APIKey,
		BaseURL: req.BaseURL,
	}
	if cfg.APIKey == "" {
		cfg.APIKey = existing.APIKey
	}
	if cfg.Enabled && cfg.APIKey == "" {
		writeError(w, http.StatusBadRequest, "api_key is required to enable the cloud fleet API")
		return
	}

	if err := m.repo.PutCloud(r.Context(), cfg); err != nil {
		m.logger.Error("put cloud config failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store cloud config")
		return
	}

	m.notifyChanged(r.Context(), "cloud", "")
	writeJSON(w, http.StatusOK, CloudResponse{
		Enabled: cfg.Enabled,
		BaseURL: cfg.BaseURL,
		KeySet:  cfg.APIKey != "",
	})
}

// controllerFromRequest validates a request against an existing (or default)
// controller and returns the merged config, or a non-empty error message.
func controllerFromRequest(req ControllerRequest, base models.ControllerConfig) (models.ControllerConfig, string) {
	if req.ID == "" {
		return models.ControllerConfig{}, "id is required"
	}
	if strings.ContainsAny(req.ID, " /") {
		return models.ControllerConfig{}, "id must not contain spaces or slashes"
	}
	if req.BaseURL == "" {
		return models.ControllerConfig{}, "base_url is required"
	}
	if !validBaseURL(req.BaseURL) {
		return models.ControllerConfig{}, "base_url must be an absolute http(s) URL"
	}

	cfg := base
	cfg.ID = req.ID
	cfg.Name = req.Name
	cfg.BaseURL = strings.TrimRight(req.BaseURL, "/")
	cfg.VerifySSL = req.VerifySSL
	if cfg.Name == "" {
		cfg.Name = req.ID
	}
	if req.Enabled != nil {
		cfg.Enabled = *req.Enabled
	}
	if req.Site != "" {
		cfg.Site = req.Site
	}
	if req.APIKey != "" {
		cfg.APIKey = req.APIKey
	}
	if cfg.APIKey == "" {
		return models.ControllerConfig{}, "api_key is required"
	}
	return cfg, ""
}

func validBaseURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
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
		Type:   "https://netsage.com/problems/settings-error",
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	})
}

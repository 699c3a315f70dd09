// Package api exposes the engine's read accessors and operator actions over HTTP.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"opswatch/internal/catalog"
	"opswatch/internal/probe"
	"opswatch/internal/service"
	"opswatch/internal/settings"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Handlers binds HTTP requests to the engine service.
type Handlers struct {
	svc     *service.Service
	metrics http.Handler
	logger  zerolog.Logger
}

// NewHandlers builds Handlers. metrics may be nil, in which case /metrics is not served.
func NewHandlers(svc *service.Service, metrics http.Handler, logger zerolog.Logger) *Handlers {
	return &Handlers{svc: svc, metrics: metrics, logger: logger.With().Str("component", "api").Logger()}
}

// HealthChecksResponse is the current probe state.
type HealthChecksResponse struct {
	Snapshot probe.HealthSnapshot  `json:"snapshot"`
	Previous *probe.HealthSnapshot `json:"previous,omitempty"`
	Results  []probe.CheckResult   `json:"results"`
	Findings []probe.Finding       `json:"findings"`
	Degraded bool                  `json:"degraded"`
}

// HandleHealthChecks returns the latest run.
func (h *Handlers) HandleHealthChecks(c *gin.Context) {
	run := h.svc.Prober.Current()
	if run == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no probe run yet", Code: "NO_RUN"})
		return
	}
	c.JSON(http.StatusOK, HealthChecksResponse{
		Snapshot: run.Snapshot,
		Previous: h.svc.Prober.Previous(),
		Results:  run.Results,
		Findings: run.Findings,
		Degraded: run.Degraded,
	})
}

// HandleHealthReport returns the plain-text export of the latest run.
func (h *Handlers) HandleHealthReport(c *gin.Context) {
	run := h.svc.Prober.Current()
	if run == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no probe run yet", Code: "NO_RUN"})
		return
	}
	c.String(http.StatusOK, probe.Report(*run))
}

// HandleRefresh runs probes and guardrails synchronously.
func (h *Handlers) HandleRefresh(c *gin.Context) {
	run, eval := h.svc.Refresh(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"health": run, "guardrails": eval})
}

// HandleGuardrails returns the latest evaluation.
func (h *Handlers) HandleGuardrails(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Monitor.Current())
}

// HandleCatalogFindings returns the latest scan.
func (h *Handlers) HandleCatalogFindings(c *gin.Context) {
	res := h.svc.Scanner.Current()
	if res == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no catalog scan yet", Code: "NO_SCAN"})
		return
	}
	c.JSON(http.StatusOK, res)
}

// HandleCatalogScan runs a scan now.
func (h *Handlers) HandleCatalogScan(c *gin.Context) {
	res, err := h.svc.ScanCatalog(c.Request.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("catalog scan failed")
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: catalog.ErrUnavailable.Error(), Code: "UPSTREAM_FAILED"})
		return
	}
	c.JSON(http.StatusOK, res)
}

// HandleListDecisions returns every entry, newest first.
func (h *Handlers) HandleListDecisions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"entries": h.svc.Log.List()})
}

// HandleAckDecision marks one entry reviewed.
func (h *Handlers) HandleAckDecision(c *gin.Context) {
	id := c.Param("id")
	if !h.svc.Log.MarkReviewed(c.Request.Context(), id) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown decision " + id, Code: "NOT_FOUND"})
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleClearDecisions wipes the log. It requires ?confirm=true.
func (h *Handlers) HandleClearDecisions(c *gin.Context) {
	if c.Query("confirm") != "true" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "clearing the decision log requires confirm=true", Code: "CONFIRMATION_REQUIRED"})
		return
	}
	h.svc.Log.Clear(c.Request.Context())
	h.logger.Warn().Str("remote", c.ClientIP()).Msg("decision log cleared")
	c.Status(http.StatusNoContent)
}

// ConfigResponse describes the effective guardrails.
type ConfigResponse struct {
	Guardrails settings.Guardrails `json:"guardrails"`
	Defaults   settings.Guardrails `json:"defaults"`
	Overridden bool                `json:"overridden"`
}

func (h *Handlers) configResponse() ConfigResponse {
	return ConfigResponse{
		Guardrails: h.svc.Settings.Get(),
		Defaults:   settings.Defaults(),
		Overridden: h.svc.Settings.Overridden(),
	}
}

// HandleGetConfig returns the guardrails in effect.
func (h *Handlers) HandleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.configResponse())
}

// HandlePutConfig validates and persists an edit. Invalid input leaves the current value in place.
func (h *Handlers) HandlePutConfig(c *gin.Context) {
	var req settings.Patch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "INVALID_REQUEST"})
		return
	}
	if _, err := h.svc.Settings.Update(c.Request.Context(), req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: settings.Describe(err), Code: "INVALID_GUARDRAILS"})
		return
	}
	c.JSON(http.StatusOK, h.configResponse())
}

// HandleResetConfig restores the defaults.
func (h *Handlers) HandleResetConfig(c *gin.Context) {
	h.svc.Settings.Reset(c.Request.Context())
	c.JSON(http.StatusOK, h.configResponse())
}

// AutoRefreshRequest toggles the periodic loops.
type AutoRefreshRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// HandleAutoRefresh suspends or resumes periodic execution.
func (h *Handlers) HandleAutoRefresh(c *gin.Context) {
	var req AutoRefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "enabled is required", Code: "INVALID_REQUEST"})
		return
	}
	h.svc.SetAutoRefresh(*req.Enabled)
	c.JSON(http.StatusOK, gin.H{"auto_refresh": h.svc.AutoRefresh()})
}

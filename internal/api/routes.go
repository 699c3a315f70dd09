package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts every engine endpoint on rg.
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	health := rg.Group("/health")
	{
		health.GET("/checks", h.HandleHealthChecks)
		health.GET("/report", h.HandleHealthReport)
		health.POST("/refresh", h.HandleRefresh)
	}

	rg.GET("/guardrails", h.HandleGuardrails)

	catalog := rg.Group("/catalog")
	{
		catalog.GET("/findings", h.HandleCatalogFindings)
		catalog.POST("/scan", h.HandleCatalogScan)
	}

	decisions := rg.Group("/decisions")
	{
		decisions.GET("", h.HandleListDecisions)
		decisions.POST("/:id/ack", h.HandleAckDecision)
		decisions.DELETE("", h.HandleClearDecisions)
	}

	rg.GET("/config", h.HandleGetConfig)
	rg.PUT("/config", h.HandlePutConfig)
	rg.DELETE("/config", h.HandleResetConfig)

	rg.PUT("/auto-refresh", h.HandleAutoRefresh)

	if h.metrics != nil {
		rg.GET("/metrics", gin.WrapH(h.metrics))
	}
}

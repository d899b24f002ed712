package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/submitsession/api/models"
	"github.com/moyoez/submitsession/tool"
)

// Status reports server status for local clients.
// GET /api/submission/v1/status
func Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"running":           true,
		"notify_ws_enabled": models.GetNotifyHub() != nil,
		"endpoint":          tool.GetCurrentConfig().Endpoint,
	})
}

// ConfigGet returns the loaded config with the API key masked.
// GET /api/submission/v1/config
func ConfigGet(c *gin.Context) {
	cfg := *tool.GetCurrentConfig()
	if cfg.APIKey != "" {
		cfg.APIKey = "********"
	}
	c.JSON(http.StatusOK, cfg)
}

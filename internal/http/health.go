package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type HealthController struct {
	version string
}

func NewHealthController(version string) *HealthController {
	return &HealthController{version: version}
}

// Health reports service liveness.
// GET /api/health
func (hc *HealthController) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": hc.version})
}

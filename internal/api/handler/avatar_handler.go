package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health handles GET /api/v1/avatars/health
func (h *AvatarHandler) Health(c *gin.Context) {
	report := h.avatars.HealthCheck(c.Request.Context())
	status := http.StatusOK
	if !report.OK {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

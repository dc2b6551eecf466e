package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	MonitorID string
	Version   string
	startTime time.Time
}

func NewHealthHandler(monitorID, version string) *HealthHandler {
	return &HealthHandler{
		MonitorID: monitorID,
		Version:   version,
		startTime: time.Now(),
	}
}

type HealthResponse struct {
	Status    string  `json:"status" example:"healthy"`
	MonitorID string  `json:"monitor_id" example:"monitor-1"`
	Version   string  `json:"version" example:"1.0.0"`
	Uptime    float64 `json:"uptime_seconds"`
}

type MonitorInfoResponse struct {
	MonitorID    string   `json:"monitor_id" example:"monitor-1"`
	Status       string   `json:"status" example:"running"`
	Version      string   `json:"version" example:"1.0.0"`
	Capabilities []string `json:"capabilities"`
}

// @Summary Health check
// @Description Check if the monitor service is healthy and responsive
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		MonitorID: h.MonitorID,
		Version:   h.Version,
		Uptime:    time.Since(h.startTime).Seconds(),
	})
}

// @Summary Monitor information
// @Description Get basic service information and capabilities
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} MonitorInfoResponse
// @Router / [get]
func (h *HealthHandler) MonitorInfo(c *gin.Context) {
	c.JSON(http.StatusOK, MonitorInfoResponse{
		MonitorID: h.MonitorID,
		Status:    "running",
		Version:   h.Version,
		Capabilities: []string{
			"camera_alerts",
			"host_monitoring",
			"camera_monitoring",
		},
	})
}

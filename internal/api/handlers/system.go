package handlers

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"digefx-monitor-go/internal/models"
)

// SystemStats is the slice of the lifecycle manager the system
// endpoints read from.
type SystemStats interface {
	HostStats() models.HostSnapshot
	History(limit int) []*models.AlertEvent
}

// SystemHandler serves host resource stats and recent alert history.
type SystemHandler struct {
	MonitorID string
	stats     SystemStats
}

func NewSystemHandler(monitorID string, stats SystemStats) *SystemHandler {
	return &SystemHandler{
		MonitorID: monitorID,
		stats:     stats,
	}
}

// @Summary Get system stats
// @Description Get host resource usage and Go runtime statistics
// @Tags system
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /system/stats [get]
func (h *SystemHandler) GetStats(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	host := h.stats.HostStats()

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"host": gin.H{
			"cpu_percent":  host.CPUPercent,
			"mem_percent":  host.MemPercent,
			"disk_percent": host.DiskPercent,
			"online":       host.Online,
			"timestamp":    host.Timestamp,
		},
		"runtime": gin.H{
			"monitor_id": h.MonitorID,
			"memory_mb":  m.Alloc / 1024 / 1024,
			"cpu_cores":  runtime.NumCPU(),
			"goroutines": runtime.NumGoroutine(),
			"go_version": runtime.Version(),
		},
		"timestamp": time.Now().Unix(),
	})
}

// @Summary Get recent alert events
// @Description Get the most recent alert events, newest first
// @Tags system
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /system/events [get]
func (h *SystemHandler) GetRecentEvents(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	events := h.stats.History(limit)

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"count":     len(events),
		"events":    events,
		"timestamp": time.Now().Unix(),
	})
}

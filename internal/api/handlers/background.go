package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"digefx-monitor-go/internal/logging"
	"digefx-monitor-go/internal/services/lifecycle"
)

// AlertSubsystem is the slice of the lifecycle manager the background
// endpoints drive.
type AlertSubsystem interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
	Status() lifecycle.StatusReport
	Running() bool
	Healthy() bool
}

// BackgroundHandler exposes the alert subsystem's control surface:
// status, start/stop/restart and a liveness summary.
type BackgroundHandler struct {
	subsystem AlertSubsystem
}

func NewBackgroundHandler(subsystem AlertSubsystem) *BackgroundHandler {
	return &BackgroundHandler{subsystem: subsystem}
}

// Status returns the aggregated alert-processing snapshot.
func (h *BackgroundHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.subsystem.Status())
}

// Start starts alert processing. Starting a running subsystem is a
// no-op that still confirms the resulting state.
func (h *BackgroundHandler) Start(c *gin.Context) {
	if err := h.subsystem.Start(c.Request.Context()); err != nil {
		logging.Error(c).Err(err).Msg("Failed to start alert processing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logging.Info(c).Msg("Alert processing started")
	c.JSON(http.StatusOK, gin.H{
		"status":     "started",
		"is_running": h.subsystem.Running(),
	})
}

// Stop stops alert processing; health monitors keep running.
func (h *BackgroundHandler) Stop(c *gin.Context) {
	if err := h.subsystem.Stop(c.Request.Context()); err != nil {
		logging.Error(c).Err(err).Msg("Failed to stop alert processing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logging.Info(c).Msg("Alert processing stopped")
	c.JSON(http.StatusOK, gin.H{
		"status":     "stopped",
		"is_running": h.subsystem.Running(),
	})
}

// Restart stops and restarts alert processing.
func (h *BackgroundHandler) Restart(c *gin.Context) {
	if err := h.subsystem.Restart(c.Request.Context()); err != nil {
		logging.Error(c).Err(err).Msg("Failed to restart alert processing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logging.Info(c).Msg("Alert processing restarted")
	c.JSON(http.StatusOK, gin.H{
		"status":     "restarted",
		"is_running": h.subsystem.Running(),
	})
}

// Health is a boolean-style liveness summary for external probing.
func (h *BackgroundHandler) Health(c *gin.Context) {
	status := "stopped"
	if h.subsystem.Running() {
		status = "running"
	}
	c.JSON(http.StatusOK, gin.H{
		"healthy":   h.subsystem.Healthy(),
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}

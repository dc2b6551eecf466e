package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"digefx-monitor-go/internal/services/lifecycle"
)

type fakeSubsystem struct {
	running  bool
	healthy  bool
	startErr error
	stopErr  error

	startCalls   int
	stopCalls    int
	restartCalls int
}

func (f *fakeSubsystem) Start(context.Context) error {
	f.startCalls++
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeSubsystem) Stop(context.Context) error {
	f.stopCalls++
	if f.stopErr != nil {
		return f.stopErr
	}
	f.running = false
	return nil
}

func (f *fakeSubsystem) Restart(ctx context.Context) error {
	f.restartCalls++
	if err := f.Stop(ctx); err != nil {
		return err
	}
	return f.Start(ctx)
}

func (f *fakeSubsystem) Status() lifecycle.StatusReport {
	status := "stopped"
	if f.running {
		status = "running"
	}
	return lifecycle.StatusReport{Status: status, IsRunning: f.running}
}

func (f *fakeSubsystem) Running() bool { return f.running }
func (f *fakeSubsystem) Healthy() bool { return f.healthy }

func backgroundRouter(sub AlertSubsystem) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewBackgroundHandler(sub)
	r := gin.New()
	r.GET("/background/status", h.Status)
	r.POST("/background/start", h.Start)
	r.POST("/background/stop", h.Stop)
	r.POST("/background/restart", h.Restart)
	r.GET("/background/health", h.Health)
	return r
}

func doRequest(t *testing.T, r *gin.Engine, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return w, body
}

func TestStartReturnsResultingState(t *testing.T) {
	sub := &fakeSubsystem{healthy: true}
	r := backgroundRouter(sub)

	w, body := doRequest(t, r, http.MethodPost, "/background/start")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body["status"] != "started" || body["is_running"] != true {
		t.Fatalf("unexpected body: %v", body)
	}
	if sub.startCalls != 1 {
		t.Fatalf("startCalls = %d, want 1", sub.startCalls)
	}
}

func TestStartErrorMapsTo500(t *testing.T) {
	sub := &fakeSubsystem{startErr: errors.New("registry unreachable")}
	r := backgroundRouter(sub)

	w, body := doRequest(t, r, http.MethodPost, "/background/start")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if body["error"] != "registry unreachable" {
		t.Fatalf("error = %v", body["error"])
	}
}

func TestStopThenHealthReportsStopped(t *testing.T) {
	sub := &fakeSubsystem{running: true, healthy: true}
	r := backgroundRouter(sub)

	w, body := doRequest(t, r, http.MethodPost, "/background/stop")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body["is_running"] != false {
		t.Fatalf("is_running = %v, want false", body["is_running"])
	}

	_, health := doRequest(t, r, http.MethodGet, "/background/health")
	if health["status"] != "stopped" {
		t.Fatalf("health status = %v, want stopped", health["status"])
	}
	if health["healthy"] != true {
		t.Fatalf("healthy = %v, want true", health["healthy"])
	}
}

func TestRestartDelegates(t *testing.T) {
	sub := &fakeSubsystem{running: true, healthy: true}
	r := backgroundRouter(sub)

	w, body := doRequest(t, r, http.MethodPost, "/background/restart")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body["status"] != "restarted" || body["is_running"] != true {
		t.Fatalf("unexpected body: %v", body)
	}
	if sub.restartCalls != 1 {
		t.Fatalf("restartCalls = %d, want 1", sub.restartCalls)
	}
}

func TestStatusReflectsSubsystem(t *testing.T) {
	sub := &fakeSubsystem{running: true}
	r := backgroundRouter(sub)

	w, body := doRequest(t, r, http.MethodGet, "/background/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body["status"] != "running" || body["is_running"] != true {
		t.Fatalf("unexpected body: %v", body)
	}
}

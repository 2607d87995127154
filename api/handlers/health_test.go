package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) HealthStatus {
	t.Helper()
	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	return status
}

func TestHealthHandler_NoChecks(t *testing.T) {
	h := NewHealthHandler("v1.2.3", zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	status := decodeHealth(t, w)
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "v1.2.3", status.Version)
	assert.Empty(t, status.Checks)
}

func TestHealthHandler_Checks(t *testing.T) {
	h := NewHealthHandler("dev", nil)
	h.RegisterCheck(NewCheck("runstore", func(context.Context) error { return nil }))
	h.RegisterCheck(NewCheck("llm", func(context.Context) error { return errors.New("ollama: connection refused") }))

	w := httptest.NewRecorder()
	h.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	status := decodeHealth(t, w)
	assert.Equal(t, "unhealthy", status.Status)
	require.Len(t, status.Checks, 2)
	assert.Equal(t, "pass", status.Checks["runstore"].Status)
	assert.Equal(t, "fail", status.Checks["llm"].Status)
	assert.Contains(t, status.Checks["llm"].Message, "connection refused")
	assert.NotEmpty(t, status.Checks["llm"].Latency)
}

func TestHealthHandler_CheckHonoursContext(t *testing.T) {
	h := NewHealthHandler("dev", zap.NewNop())
	h.RegisterCheck(NewCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	status := h.Evaluate(ctx)
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "fail", status.Checks["slow"].Status)
}

func TestHealthHandler_Healthz(t *testing.T) {
	h := NewHealthHandler("dev", zap.NewNop())
	h.RegisterCheck(NewCheck("llm", func(context.Context) error { return errors.New("down") }))

	w := httptest.NewRecorder()
	h.HandleHealthz(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decodeHealth(t, w).Status)
}

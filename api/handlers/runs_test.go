package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/crewflow/agent/crews"
	"github.com/BaSui01/crewflow/config"
	"github.com/BaSui01/crewflow/internal/runstore"
	"github.com/BaSui01/crewflow/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRunMux(t *testing.T) (*http.ServeMux, *runstore.Store) {
	t.Helper()
	store, err := runstore.Open(config.DatabaseConfig{
		Driver: "sqlite", Name: ":memory:", MaxOpenConns: 1, MaxIdleConns: 1,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	h := NewRunHandler(store, zap.NewNop())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/runs", h.HandleListRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", h.HandleGetRun)
	return mux, store
}

func TestRunHandler_GetRun(t *testing.T) {
	mux, store := newRunMux(t)
	ctx := context.Background()

	require.NoError(t, store.Start(ctx, "run-1", "research-write", map[string]any{"topic": "Go"}))
	require.NoError(t, store.RecordTask(ctx, "run-1", 0, &crews.TaskOutput{Name: "plan", Agent: "Content Planner", Raw: "Outline"}))
	require.NoError(t, store.Finish(ctx, "run-1", &crews.CrewOutput{
		Raw: "Outline", TokenUsage: llm.ChatUsage{TotalTokens: 42},
	}, nil))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data runstore.RunRecord `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, runstore.StatusSucceeded, resp.Data.Status)
	assert.Equal(t, 42, resp.Data.TotalTokens)
	require.Len(t, resp.Data.Tasks, 1)
	assert.Equal(t, "Content Planner", resp.Data.Tasks[0].Agent)
}

func TestRunHandler_GetRunNotFound(t *testing.T) {
	mux, _ := newRunMux(t)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/missing", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNotFound, decodeResponse(t, w).Error.Code)
}

func TestRunHandler_ListRuns(t *testing.T) {
	mux, store := newRunMux(t)
	ctx := context.Background()
	require.NoError(t, store.Start(ctx, "a", "research-write", nil))
	require.NoError(t, store.Start(ctx, "b", "event-planning", nil))
	require.NoError(t, store.Finish(ctx, "b", nil, errors.New("boom")))

	tests := []struct {
		name   string
		query  string
		status int
		count  int
	}{
		{"all", "", http.StatusOK, 2},
		{"filter by crew", "?crew=event-planning", http.StatusOK, 1},
		{"limit", "?limit=1", http.StatusOK, 1},
		{"bad limit", "?limit=abc", http.StatusBadRequest, 0},
		{"no match", "?crew=nope", http.StatusOK, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs"+tt.query, nil))
			require.Equal(t, tt.status, w.Code)
			if tt.status != http.StatusOK {
				return
			}
			var resp struct {
				Data []runstore.RunRecord `json:"data"`
			}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.NotNil(t, resp.Data)
			assert.Len(t, resp.Data, tt.count)
		})
	}
}

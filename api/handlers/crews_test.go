package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/crewflow/agent/crews"
	"github.com/BaSui01/crewflow/catalog"
	"github.com/BaSui01/crewflow/internal/runner"
	"github.com/BaSui01/crewflow/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeKickoffer struct {
	got    runner.Request
	result *runner.Result
	err    error
}

func (f *fakeKickoffer) Kickoff(_ context.Context, req runner.Request) (*runner.Result, error) {
	f.got = req
	return f.result, f.err
}

func (f *fakeKickoffer) Crews() []runner.CrewInfo {
	return []runner.CrewInfo{{Name: "research-write", Description: "Plan, write and edit a blog article."}}
}

func newMux(h *CrewHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/crews", h.HandleListCrews)
	mux.HandleFunc("POST /api/v1/crews/{name}/kickoff", h.HandleKickoff)
	return mux
}

func TestCrewHandler_ListCrews(t *testing.T) {
	h := NewCrewHandler(&fakeKickoffer{}, zap.NewNop())
	w := httptest.NewRecorder()
	newMux(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/crews", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Success bool              `json:"success"`
		Data    []runner.CrewInfo `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "research-write", resp.Data[0].Name)
}

func TestCrewHandler_Kickoff(t *testing.T) {
	k := &fakeKickoffer{result: &runner.Result{
		RunID:  "run-1",
		Crew:   "research-write",
		Inputs: map[string]any{"topic": "Go"},
		Output: &crews.CrewOutput{
			RunID: "run-1",
			Raw:   "Edited post",
			TasksOutput: []*crews.TaskOutput{
				{Name: "plan", Agent: "Content Planner", Raw: "Outline", Duration: 1500 * time.Millisecond},
				{Name: "edit", Agent: "Content Editor", Raw: "Edited post", OutputPath: "/tmp/post.md"},
			},
			TokenUsage: llm.ChatUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
			Duration:   3 * time.Second,
		},
	}}
	h := NewCrewHandler(k, zap.NewNop())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/crews/research-write/kickoff",
		strings.NewReader(`{"inputs":{"topic":"Go"}}`))
	newMux(h).ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "research-write", k.got.Crew)
	assert.Equal(t, "Go", k.got.Inputs["topic"])
	assert.Nil(t, k.got.Human, "HTTP kickoff never asks for human feedback")

	var resp struct {
		Data KickoffResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "run-1", resp.Data.RunID)
	assert.Equal(t, "Edited post", resp.Data.Raw)
	assert.Equal(t, 15, resp.Data.TokenUsage.TotalTokens)
	assert.Equal(t, "3s", resp.Data.Duration)
	require.Len(t, resp.Data.Tasks, 2)
	assert.Equal(t, "1.5s", resp.Data.Tasks[0].Duration)
	assert.Equal(t, "/tmp/post.md", resp.Data.Tasks[1].OutputPath)
}

func TestCrewHandler_KickoffEmptyBody(t *testing.T) {
	k := &fakeKickoffer{result: &runner.Result{RunID: "run-2", Crew: "customer-support"}}
	h := NewCrewHandler(k, zap.NewNop())

	w := httptest.NewRecorder()
	newMux(h).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/crews/customer-support/kickoff", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, k.got.Inputs)
	var resp struct {
		Data KickoffResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.NotNil(t, resp.Data.Tasks)
}

func TestCrewHandler_KickoffErrors(t *testing.T) {
	failed := &runner.Result{RunID: "run-9", Crew: "event-planning"}
	tests := []struct {
		name          string
		result        *runner.Result
		err           error
		wantStatus    int
		wantCode      string
		wantRetryable bool
		wantRunID     bool
	}{
		{
			name:       "unknown crew",
			err:        fmt.Errorf("%w: %q", catalog.ErrUnknownCrew, "nope"),
			wantStatus: http.StatusNotFound,
			wantCode:   CodeNotFound,
		},
		{
			name:          "busy",
			err:           runner.ErrBusy,
			wantStatus:    http.StatusTooManyRequests,
			wantCode:      CodeTooManyRuns,
			wantRetryable: true,
		},
		{
			name:   "llm unavailable",
			result: failed,
			err: &crews.TaskError{Task: "venue_task", Err: &llm.Error{
				Code: llm.ErrProviderUnavailable, Message: "connection refused", Retryable: true, Provider: "ollama",
			}},
			wantStatus:    http.StatusServiceUnavailable,
			wantCode:      string(llm.ErrProviderUnavailable),
			wantRetryable: true,
			wantRunID:     true,
		},
		{
			name:       "timeout",
			result:     failed,
			err:        fmt.Errorf("task venue_task: %w", context.DeadlineExceeded),
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   CodeCrewFailed,
			wantRunID:  true,
		},
		{
			name:       "crew failure",
			result:     failed,
			err:        errors.New("read venue details: no such file"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   CodeCrewFailed,
			wantRunID:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewCrewHandler(&fakeKickoffer{result: tt.result, err: tt.err}, zap.NewNop())
			w := httptest.NewRecorder()
			newMux(h).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/crews/event-planning/kickoff", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.wantRetryable, resp.Error.Retryable)
			if tt.wantRunID {
				assert.Equal(t, "run-9", resp.Error.Details["run_id"])
			} else {
				assert.Nil(t, resp.Error.Details)
			}
		})
	}
}

func TestCrewHandler_KickoffBadBody(t *testing.T) {
	k := &fakeKickoffer{}
	h := NewCrewHandler(k, zap.NewNop())

	w := httptest.NewRecorder()
	newMux(h).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/crews/research-write/kickoff",
		strings.NewReader(`{"inputs": [1,2]}`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, k.got.Crew, "runner must not be called")
}

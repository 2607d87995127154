package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/crewflow/llm"
	"github.com/BaSui01/crewflow/llm/providers"
	"github.com/BaSui01/crewflow/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func boolPtr(b bool) *bool { return &b }

// ---------------------------------------------------------------------------
// New() constructor
// ---------------------------------------------------------------------------

func TestNew_Defaults(t *testing.T) {
	tests := []struct {
		name             string
		cfg              Config
		logger           *zap.Logger
		wantEndpoint     string
		wantModels       string
		wantToolsSupport bool
	}{
		{
			name:             "all defaults applied",
			cfg:              Config{ProviderName: "test"},
			wantEndpoint:     "/v1/chat/completions",
			wantModels:       "/v1/models",
			wantToolsSupport: true,
		},
		{
			name: "custom endpoint paths preserved",
			cfg: Config{
				ProviderName:   "custom",
				EndpointPath:   "/api/chat",
				ModelsEndpoint: "/api/tags",
			},
			logger:           zap.NewNop(),
			wantEndpoint:     "/api/chat",
			wantModels:       "/api/tags",
			wantToolsSupport: true,
		},
		{
			name:             "supports tools false",
			cfg:              Config{ProviderName: "no-tools", SupportsTools: boolPtr(false)},
			wantEndpoint:     "/v1/chat/completions",
			wantModels:       "/v1/models",
			wantToolsSupport: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg, tt.logger)
			assert.Equal(t, tt.wantEndpoint, p.Cfg.EndpointPath)
			assert.Equal(t, tt.wantModels, p.Cfg.ModelsEndpoint)
			assert.Equal(t, tt.cfg.ProviderName, p.Name())
			assert.Equal(t, tt.wantToolsSupport, p.SupportsNativeFunctionCalling())
			assert.NotNil(t, p.Logger)
			assert.NotNil(t, p.RewriterChain)
		})
	}
}

func TestNew_Timeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, New(Config{}, nil).Client.Timeout)
	assert.Equal(t, 5*time.Second, New(Config{Timeout: 5 * time.Second}, nil).Client.Timeout)
}

// ---------------------------------------------------------------------------
// Completion
// ---------------------------------------------------------------------------

func TestProvider_Completion_Success(t *testing.T) {
	var captured providers.OpenAICompatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_ = json.NewEncoder(w).Encode(providers.OpenAICompatResponse{
			ID:      "resp-1",
			Model:   captured.Model,
			Created: 1700000000,
			Choices: []providers.OpenAICompatChoice{{
				FinishReason: "stop",
				Message:      providers.OpenAICompatMessage{Role: "assistant", Content: "Hello!"},
			}},
			Usage: &providers.OpenAICompatUsage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7},
		})
	}))
	defer server.Close()

	p := New(Config{ProviderName: "openai", APIKey: "sk-test", BaseURL: server.URL, DefaultModel: "gpt-4o-mini"}, nil)
	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: "Hi"}},
		Temperature: 0.2,
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", captured.Model)
	assert.False(t, captured.Stream)
	assert.InDelta(t, 0.2, captured.Temperature, 0.0001)
	require.Len(t, captured.Messages, 1)

	msg, ok := resp.FirstMessage()
	require.True(t, ok)
	assert.Equal(t, "Hello!", msg.Content)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, 7, resp.Usage.TotalTokens)
	assert.Equal(t, time.Unix(1700000000, 0), resp.CreatedAt)
}

func TestProvider_Completion_ToolCalls(t *testing.T) {
	var rawBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rawBody))
		fmt.Fprint(w, `{"id":"r","model":"m","choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","tool_calls":[{"id":"call_1","type":"function","function":{"name":"web_search","arguments":"{\"query\":\"venues\"}"}}]}}]}`)
	}))
	defer server.Close()

	p := New(Config{ProviderName: "openai", BaseURL: server.URL}, nil)
	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages:   []llm.Message{{Role: llm.RoleUser, Content: "find venues"}},
		Tools:      []llm.ToolSchema{{Name: "web_search", Description: "Search", Parameters: json.RawMessage(`{"type":"object"}`)}},
		ToolChoice: "auto",
	})
	require.NoError(t, err)

	tools, ok := rawBody["tools"].([]any)
	require.True(t, ok)
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "web_search", fn["name"])
	assert.Contains(t, fn, "parameters")
	assert.Equal(t, "auto", rawBody["tool_choice"])

	msg, _ := resp.FirstMessage()
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "web_search", msg.ToolCalls[0].Name)
	assert.JSONEq(t, `{"query":"venues"}`, string(msg.ToolCalls[0].Arguments))
}

func TestProvider_Completion_DropsToolsWithoutNativeSupport(t *testing.T) {
	var rawBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rawBody))
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	defer server.Close()

	p := New(Config{ProviderName: "ollama", BaseURL: server.URL, SupportsTools: boolPtr(false)}, nil)
	_, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages:   []llm.Message{{Role: llm.RoleUser, Content: "x"}},
		Tools:      []llm.ToolSchema{{Name: "web_search"}},
		ToolChoice: "auto",
	})
	require.NoError(t, err)
	assert.NotContains(t, rawBody, "tools")
	assert.NotContains(t, rawBody, "tool_choice")
}

func TestProvider_Completion_HTTPError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCode  llm.ErrorCode
		retryable bool
	}{
		{"401 unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, llm.ErrUnauthorized, false},
		{"429 rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow"}}`, llm.ErrRateLimited, true},
		{"503 unavailable", http.StatusServiceUnavailable, `oops`, llm.ErrUpstreamError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			p := New(Config{ProviderName: "openai", BaseURL: server.URL}, nil)
			_, err := p.Completion(context.Background(), &llm.ChatRequest{})
			require.Error(t, err)
			var llmErr *llm.Error
			require.ErrorAs(t, err, &llmErr)
			assert.Equal(t, tt.wantCode, llmErr.Code)
			assert.Equal(t, tt.retryable, llmErr.Retryable)
			assert.Equal(t, "openai", llmErr.Provider)
		})
	}
}

func TestProvider_Completion_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{not json`)
	}))
	defer server.Close()

	p := New(Config{ProviderName: "openai", BaseURL: server.URL}, nil)
	_, err := p.Completion(context.Background(), &llm.ChatRequest{})
	require.Error(t, err)
	assert.True(t, llm.IsRetryable(err))
}

func TestProvider_Completion_NilRequest(t *testing.T) {
	p := New(Config{ProviderName: "openai", BaseURL: "http://unused"}, nil)
	_, err := p.Completion(context.Background(), nil)
	var llmErr *llm.Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, llm.ErrInvalidRequest, llmErr.Code)
}

func TestProvider_Completion_RequestHook(t *testing.T) {
	var captured providers.OpenAICompatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer server.Close()

	p := New(Config{
		ProviderName: "openai",
		BaseURL:      server.URL,
		RequestHook: func(_ *llm.ChatRequest, body *providers.OpenAICompatRequest) {
			body.MaxTokens = 42
		},
	}, nil)
	_, err := p.Completion(context.Background(), &llm.ChatRequest{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, 42, captured.MaxTokens)
}

// ---------------------------------------------------------------------------
// Stream
// ---------------------------------------------------------------------------

func TestProvider_Stream_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body providers.OpenAICompatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"s\",\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: {\"id\":\"s\",\"choices\":[{\"delta\":{\"content\":\"lo\"},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	p := New(Config{ProviderName: "openai", BaseURL: server.URL}, nil)
	ch, err := p.Stream(context.Background(), &llm.ChatRequest{})
	require.NoError(t, err)

	content, streamErr := testutil.CollectStreamContent(ch)
	assert.Nil(t, streamErr)
	assert.Equal(t, "Hello", content)
}

func TestProvider_Stream_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	p := New(Config{ProviderName: "openai", BaseURL: server.URL}, nil)
	_, err := p.Stream(context.Background(), &llm.ChatRequest{})
	var llmErr *llm.Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, llm.ErrUnauthorized, llmErr.Code)
}

func TestStreamSSE_MalformedChunk(t *testing.T) {
	body := io.NopCloser(strings.NewReader("data: {broken\n\n"))
	ch := StreamSSE(context.Background(), body, "openai")

	_, streamErr := testutil.CollectStreamContent(ch)
	require.NotNil(t, streamErr)
	assert.Equal(t, llm.ErrUpstreamError, streamErr.Code)
}

func TestStreamSSE_ToolCallDelta(t *testing.T) {
	body := io.NopCloser(strings.NewReader(
		"data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"id\":\"c1\",\"type\":\"function\",\"function\":{\"name\":\"web_scrape\",\"arguments\":\"{}\"}}]}}]}\n\ndata: [DONE]\n",
	))
	ch := StreamSSE(context.Background(), body, "openai")

	var chunks []llm.StreamChunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	require.Len(t, chunks, 1)
	require.Len(t, chunks[0].Delta.ToolCalls, 1)
	assert.Equal(t, "web_scrape", chunks[0].Delta.ToolCalls[0].Name)
}

// ---------------------------------------------------------------------------
// HealthCheck
// ---------------------------------------------------------------------------

func TestProvider_HealthCheck(t *testing.T) {
	healthy := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		if !healthy {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer server.Close()

	p := New(Config{ProviderName: "openai", BaseURL: server.URL}, nil)
	status, err := p.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)

	healthy = false
	status, err = p.HealthCheck(context.Background())
	require.Error(t, err)
	assert.False(t, status.Healthy)
}

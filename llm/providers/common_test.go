package providers

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/BaSui01/crewflow/llm"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		msg           string
		expectedCode  llm.ErrorCode
		expectedRetry bool
	}{
		{"401 未授权", http.StatusUnauthorized, "Invalid API key", llm.ErrUnauthorized, false},
		{"403 禁止", http.StatusForbidden, "Access denied", llm.ErrForbidden, false},
		{"429 限流", http.StatusTooManyRequests, "slow down", llm.ErrRateLimited, true},
		{"400 普通参数错误", http.StatusBadRequest, "bad field", llm.ErrInvalidRequest, false},
		{"400 配额关键字", http.StatusBadRequest, "Quota exceeded for project", llm.ErrQuotaExceeded, false},
		{"400 信用关键字", http.StatusBadRequest, "insufficient CREDIT", llm.ErrQuotaExceeded, false},
		{"404 模型未拉取", http.StatusNotFound, `model "deepseek-r1:8b" not found`, llm.ErrProviderUnavailable, false},
		{"502 网关错误", http.StatusBadGateway, "", llm.ErrUpstreamError, true},
		{"503 服务不可用", http.StatusServiceUnavailable, "", llm.ErrUpstreamError, true},
		{"504 网关超时", http.StatusGatewayTimeout, "", llm.ErrUpstreamError, true},
		{"529 模型过载", 529, "overloaded", llm.ErrModelOverloaded, true},
		{"500 内部错误", http.StatusInternalServerError, "boom", llm.ErrUpstreamError, true},
		{"418 其他客户端错误", http.StatusTeapot, "teapot", llm.ErrUpstreamError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapHTTPError(tt.status, tt.msg, "ollama")
			assert.Equal(t, tt.expectedCode, err.Code)
			assert.Equal(t, tt.expectedRetry, err.Retryable)
			assert.Equal(t, tt.status, err.HTTPStatus)
			assert.Equal(t, "ollama", err.Provider)
			assert.Equal(t, tt.msg, err.Message)
		})
	}
}

func TestProperty_MapHTTPErrorRetryableFor5xx(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("all 5xx statuses are retryable", prop.ForAll(
		func(status int, msg string) bool {
			err := MapHTTPError(status, msg, "openai")
			return err.Retryable && err.HTTPStatus == status
		},
		gen.IntRange(500, 599),
		gen.AlphaString(),
	))

	properties.Property("4xx statuses other than 429 are not retryable", prop.ForAll(
		func(status int) bool {
			err := MapHTTPError(status, "x", "openai")
			return err.Retryable == (status == http.StatusTooManyRequests)
		},
		gen.IntRange(400, 499),
	))

	properties.TestingRun(t)
}

func TestReadErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{"OpenAI 错误格式", `{"error":{"message":"bad key","type":"auth"}}`, "bad key (type: auth)"},
		{"无类型", `{"error":{"message":"bad key"}}`, "bad key"},
		{"Ollama 错误格式", `{"error":"model not found"}`, "model not found"},
		{"纯文本", "  upstream exploded\n", "upstream exploded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ReadErrorMessage(strings.NewReader(tt.body)))
		})
	}
}

func TestConvertToolsToOpenAI(t *testing.T) {
	assert.Nil(t, ConvertToolsToOpenAI(nil))

	tools := ConvertToolsToOpenAI([]llm.ToolSchema{
		{Name: "web_search", Description: "Search the internet", Parameters: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}}}`)},
		{Name: "Search Tool", Description: "no args"},
	})
	require.Len(t, tools, 2)

	data, err := json.Marshal(tools[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "function",
		"function": {
			"name": "web_search",
			"description": "Search the internet",
			"parameters": {"type":"object","properties":{"query":{"type":"string"}}}
		}
	}`, string(data))

	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(tools[1].Function.Parameters))
}

func TestConvertMessagesToOpenAI_EncodesArgumentsAsString(t *testing.T) {
	out := ConvertMessagesToOpenAI([]llm.Message{
		{Role: llm.RoleSystem, Content: "sys"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Name: "web_scrape", Arguments: json.RawMessage(`{"url":"https://x"}`)}}},
		{Role: llm.RoleTool, ToolCallID: "c1", Content: "page"},
	})
	require.Len(t, out, 3)
	assert.Equal(t, "system", out[0].Role)
	require.Len(t, out[1].ToolCalls, 1)
	assert.Equal(t, "function", out[1].ToolCalls[0].Type)
	assert.Equal(t, `"{\"url\":\"https://x\"}"`, string(out[1].ToolCalls[0].Function.Arguments))
	assert.Equal(t, "c1", out[2].ToolCallID)
}

func TestConvertToolCallsFromOpenAI(t *testing.T) {
	calls := ConvertToolCallsFromOpenAI([]OpenAICompatToolCall{
		{ID: "a", Function: OpenAICompatCallTarget{Name: "web_search", Arguments: json.RawMessage(`"{\"query\":\"go\"}"`)}},
		{Function: OpenAICompatCallTarget{Name: "web_scrape", Arguments: json.RawMessage(`{"url":"u"}`)}},
		{ID: "c", Function: OpenAICompatCallTarget{Name: "noop", Arguments: json.RawMessage(`""`)}},
	})
	require.Len(t, calls, 3)
	assert.Equal(t, "a", calls[0].ID)
	assert.JSONEq(t, `{"query":"go"}`, string(calls[0].Arguments))
	assert.True(t, strings.HasPrefix(calls[1].ID, "call_"), "missing IDs are generated")
	assert.JSONEq(t, `{"url":"u"}`, string(calls[1].Arguments))
	assert.JSONEq(t, `{}`, string(calls[2].Arguments))
}

func TestToLLMChatResponse(t *testing.T) {
	resp := ToLLMChatResponse(OpenAICompatResponse{
		ID:    "r1",
		Model: "deepseek-r1:8b",
		Choices: []OpenAICompatChoice{{
			FinishReason: "stop",
			Message:      OpenAICompatMessage{Role: "assistant", Content: "hi"},
		}},
		Usage: &OpenAICompatUsage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7},
	}, "ollama")

	msg, ok := resp.FirstMessage()
	require.True(t, ok)
	assert.Equal(t, "hi", msg.Content)
	assert.Equal(t, llm.RoleAssistant, msg.Role)
	assert.Equal(t, "ollama", resp.Provider)
	assert.Equal(t, 7, resp.Usage.TotalTokens)
}

func TestChooseModel_Priority(t *testing.T) {
	assert.Equal(t, "req", ChooseModel(&llm.ChatRequest{Model: "req"}, "cfg", "fb"))
	assert.Equal(t, "cfg", ChooseModel(&llm.ChatRequest{}, "cfg", "fb"))
	assert.Equal(t, "fb", ChooseModel(nil, "", "fb"))
}

func TestBearerTokenHeaders(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "http://localhost", nil)
	BearerTokenHeaders(r, "")
	assert.Empty(t, r.Header.Get("Authorization"))
	assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

	BearerTokenHeaders(r, "sk-1")
	assert.Equal(t, "Bearer sk-1", r.Header.Get("Authorization"))
}

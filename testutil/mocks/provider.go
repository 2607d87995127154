// MockProvider 的 LLM 提供商测试模拟实现。
//
// 支持按调用顺序脚本化的响应（文本或工具调用）、流式输出与错误注入场景。
package mocks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/crewflow/llm"
)

// ScriptedReply 描述一次 Completion 调用的返回
type ScriptedReply struct {
	Content   string
	ToolCalls []llm.ToolCall
	Err       error
}

// Reply 构造文本回复
func Reply(content string) ScriptedReply { return ScriptedReply{Content: content} }

// CallTool 构造单个工具调用回复，args 会被编码为 JSON
func CallTool(id, name string, args map[string]any) ScriptedReply {
	raw, _ := json.Marshal(args)
	if args == nil {
		raw = []byte(`{}`)
	}
	return ScriptedReply{ToolCalls: []llm.ToolCall{{ID: id, Name: name, Arguments: raw}}}
}

// MockProvider 是 LLM Provider 的模拟实现
type MockProvider struct {
	mu sync.Mutex

	name         string
	nativeTools  bool
	script       []ScriptedReply
	fallback     string
	err          error
	streamChunks []string

	promptTokens     int
	completionTokens int

	calls          []MockProviderCall
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

	delay     time.Duration
	failAfter int
	callCount int
}

// MockProviderCall 记录单次调用
type MockProviderCall struct {
	Request  *llm.ChatRequest
	Response *llm.ChatResponse
	Error    error
}

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{
		name:             "mock",
		nativeTools:      true,
		fallback:         "Mock response",
		promptTokens:     10,
		completionTokens: 20,
	}
}

// WithName 设置 Provider 名称
func (m *MockProvider) WithName(name string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
	return m
}

// WithNativeTools 设置是否支持原生函数调用
func (m *MockProvider) WithNativeTools(enabled bool) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nativeTools = enabled
	return m
}

// WithResponse 设置脚本耗尽后的固定响应内容
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = response
	return m
}

// WithScript 追加按顺序消费的响应
func (m *MockProvider) WithScript(replies ...ScriptedReply) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, replies...)
	return m
}

// WithError 设置返回错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithStreamChunks 设置流式响应块
func (m *MockProvider) WithStreamChunks(chunks []string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamChunks = chunks
	return m
}

// WithTokenUsage 设置 Token 使用量
func (m *MockProvider) WithTokenUsage(prompt, completion int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptTokens = prompt
	m.completionTokens = completion
	return m
}

// WithDelay 设置响应延迟
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithFailAfter 设置在第 N 次调用后失败
func (m *MockProvider) WithFailAfter(n int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WithCompletionFunc 设置自定义 Completion 函数，优先于脚本
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

// Name 返回 Provider 名称
func (m *MockProvider) Name() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name
}

// SupportsNativeFunctionCalling 返回是否支持原生函数调用
func (m *MockProvider) SupportsNativeFunctionCalling() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nativeTools
}

// HealthCheck 执行健康检查
func (m *MockProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return &llm.HealthStatus{Healthy: false}, m.err
	}
	return &llm.HealthStatus{Healthy: true, Latency: 10 * time.Millisecond}, nil
}

// Completion 生成响应
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCount++
	reqCopy := cloneRequest(req)

	if m.failAfter > 0 && m.callCount > m.failAfter {
		err := errors.New("mock provider: configured to fail after N calls")
		m.calls = append(m.calls, MockProviderCall{Request: reqCopy, Error: err})
		return nil, err
	}
	if m.err != nil {
		m.calls = append(m.calls, MockProviderCall{Request: reqCopy, Error: m.err})
		return nil, m.err
	}
	if fn := m.completionFunc; fn != nil {
		// 自定义函数可能阻塞等待其他并发调用，调用期间不持有锁
		m.mu.Unlock()
		resp, err := fn(ctx, req)
		m.mu.Lock()
		m.calls = append(m.calls, MockProviderCall{Request: reqCopy, Response: resp, Error: err})
		return resp, err
	}

	reply := ScriptedReply{Content: m.fallback}
	if len(m.script) > 0 {
		reply = m.script[0]
		m.script = m.script[1:]
	}
	if reply.Err != nil {
		m.calls = append(m.calls, MockProviderCall{Request: reqCopy, Error: reply.Err})
		return nil, reply.Err
	}

	resp := &llm.ChatResponse{
		ID:       fmt.Sprintf("mock-response-%d", m.callCount),
		Provider: m.name,
		Model:    req.Model,
		Choices: []llm.ChatChoice{{
			Index:        0,
			FinishReason: "stop",
			Message: llm.Message{
				Role:      llm.RoleAssistant,
				Content:   reply.Content,
				ToolCalls: reply.ToolCalls,
			},
		}},
		Usage: llm.ChatUsage{
			PromptTokens:     m.promptTokens,
			CompletionTokens: m.completionTokens,
			TotalTokens:      m.promptTokens + m.completionTokens,
		},
		CreatedAt: time.Now(),
	}
	if len(reply.ToolCalls) > 0 {
		resp.Choices[0].FinishReason = "tool_calls"
	}

	m.calls = append(m.calls, MockProviderCall{Request: reqCopy, Response: resp})
	return resp, nil
}

// Stream 流式生成响应
func (m *MockProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCount++
	if m.err != nil {
		return nil, m.err
	}

	chunks := m.streamChunks
	if len(chunks) == 0 {
		chunks = []string{m.fallback}
	}
	name := m.name

	ch := make(chan llm.StreamChunk, len(chunks))
	go func() {
		defer close(ch)
		for i, content := range chunks {
			chunk := llm.StreamChunk{
				ID:       "mock-chunk-id",
				Provider: name,
				Model:    req.Model,
				Index:    i,
				Delta:    llm.Message{Role: llm.RoleAssistant, Content: content},
			}
			if i == len(chunks)-1 {
				chunk.FinishReason = "stop"
			}
			select {
			case <-ctx.Done():
				return
			case ch <- chunk:
			}
		}
	}()
	return ch, nil
}

// Calls 返回所有调用记录的副本
func (m *MockProvider) Calls() []MockProviderCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockProviderCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount 返回调用次数
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// LastRequest 返回最近一次请求
func (m *MockProvider) LastRequest() *llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1].Request
}

// Remaining 返回尚未消费的脚本响应数
func (m *MockProvider) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.script)
}

var _ llm.Provider = (*MockProvider)(nil)

func cloneRequest(req *llm.ChatRequest) *llm.ChatRequest {
	if req == nil {
		return nil
	}
	out := *req
	out.Messages = append([]llm.Message(nil), req.Messages...)
	out.Tools = append([]llm.ToolSchema(nil), req.Tools...)
	return &out
}

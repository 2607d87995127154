package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/crewflow/llm"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ToolFunc defines the tool function signature.
type ToolFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// ToolMetadata describes tool metadata.
type ToolMetadata struct {
	Schema      llm.ToolSchema   // Tool JSON Schema
	RateLimit   *RateLimitConfig // Rate limit config (optional)
	Timeout     time.Duration    // Execution timeout (default 30s)
	CacheTTL    time.Duration    // Result cache TTL, zero disables caching
	Description string           // Detailed description
}

// RateLimitConfig defines rate limit configuration.
type RateLimitConfig struct {
	MaxCalls int           // Maximum calls
	Window   time.Duration // Time window
}

// ToolResult represents tool execution result.
type ToolResult struct {
	ToolCallID string          `json:"tool_call_id"`
	Name       string          `json:"name"`
	Result     json.RawMessage `json:"result"`
	Error      string          `json:"error,omitempty"`
	Cached     bool            `json:"cached,omitempty"`
	Duration   time.Duration   `json:"duration"`
}

// Observation renders the result as the text fed back to the model.
func (r ToolResult) Observation() string {
	if r.Error != "" {
		return "Error: " + r.Error
	}
	var s string
	if err := json.Unmarshal(r.Result, &s); err == nil {
		return s
	}
	return string(r.Result)
}

// ToMessage converts the result into a tool-role message.
func (r ToolResult) ToMessage() llm.Message {
	return llm.Message{
		Role:       llm.RoleTool,
		Content:    r.Observation(),
		Name:       r.Name,
		ToolCallID: r.ToolCallID,
	}
}

// ToolRegistry defines tool registry interface.
type ToolRegistry interface {
	Register(name string, fn ToolFunc, metadata ToolMetadata) error
	Unregister(name string) error
	Get(name string) (ToolFunc, ToolMetadata, error)
	List() []llm.ToolSchema
	Has(name string) bool
}

// ToolExecutor defines tool executor interface.
type ToolExecutor interface {
	Execute(ctx context.Context, calls []llm.ToolCall) []ToolResult
	ExecuteOne(ctx context.Context, call llm.ToolCall) ToolResult
}

// Observer receives tool execution events (metrics).
type Observer interface {
	ObserveToolCall(tool, status string, duration time.Duration)
	ObserveToolCache(tool string, hit bool)
}

// ====== 实现：DefaultRegistry ======

type DefaultRegistry struct {
	mu         sync.RWMutex
	tools      map[string]ToolFunc
	metadata   map[string]ToolMetadata
	rateLimits map[string]*rate.Limiter // 工具级别的速率限制器
	logger     *zap.Logger
}

// NewDefaultRegistry 创建默认的工具注册中心。
func NewDefaultRegistry(logger *zap.Logger) *DefaultRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultRegistry{
		tools:      make(map[string]ToolFunc),
		metadata:   make(map[string]ToolMetadata),
		rateLimits: make(map[string]*rate.Limiter),
		logger:     logger.With(zap.String("component", "tool_registry")),
	}
}

func (r *DefaultRegistry) Register(name string, fn ToolFunc, metadata ToolMetadata) error {
	if fn == nil {
		return fmt.Errorf("tool %s: nil function", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}

	if metadata.Schema.Name == "" {
		metadata.Schema.Name = name
	}
	if metadata.Schema.Name != name {
		return fmt.Errorf("tool name mismatch: schema.Name=%s, register name=%s", metadata.Schema.Name, name)
	}
	if metadata.Timeout == 0 {
		metadata.Timeout = 30 * time.Second
	}

	r.tools[name] = fn
	r.metadata[name] = metadata

	if rl := metadata.RateLimit; rl != nil && rl.MaxCalls > 0 && rl.Window > 0 {
		every := rate.Every(rl.Window / time.Duration(rl.MaxCalls))
		r.rateLimits[name] = rate.NewLimiter(every, rl.MaxCalls)
	}

	r.logger.Debug("tool registered", zap.String("name", name), zap.Duration("timeout", metadata.Timeout))
	return nil
}

func (r *DefaultRegistry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return fmt.Errorf("tool %s not found", name)
	}

	delete(r.tools, name)
	delete(r.metadata, name)
	delete(r.rateLimits, name)
	return nil
}

func (r *DefaultRegistry) Get(name string) (ToolFunc, ToolMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.tools[name]
	if !ok {
		return nil, ToolMetadata{}, fmt.Errorf("tool %s not found", name)
	}
	return fn, r.metadata[name], nil
}

// List returns the schemas sorted by name.
func (r *DefaultRegistry) List() []llm.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]llm.ToolSchema, 0, len(r.metadata))
	for _, meta := range r.metadata {
		schemas = append(schemas, meta.Schema)
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas
}

func (r *DefaultRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Allow 检查是否触发速率限制
func (r *DefaultRegistry) Allow(name string) error {
	r.mu.RLock()
	limiter, ok := r.rateLimits[name]
	r.mu.RUnlock()
	if !ok || limiter.Allow() {
		return nil
	}
	return fmt.Errorf("tool %s: no tokens available", name)
}

// ====== 实现：DefaultExecutor ======

// ExecutorOption configures a DefaultExecutor.
type ExecutorOption func(*DefaultExecutor)

// WithResultCache enables result caching for tools with CacheTTL > 0.
func WithResultCache(cache ResultCache) ExecutorOption {
	return func(e *DefaultExecutor) { e.cache = cache }
}

// WithObserver attaches an execution observer.
func WithObserver(o Observer) ExecutorOption {
	return func(e *DefaultExecutor) { e.observer = o }
}

// WithMaxParallel bounds concurrent tool calls within one Execute.
func WithMaxParallel(n int) ExecutorOption {
	return func(e *DefaultExecutor) { e.maxParallel = n }
}

type DefaultExecutor struct {
	registry    ToolRegistry
	cache       ResultCache
	observer    Observer
	maxParallel int
	logger      *zap.Logger
}

// NewDefaultExecutor 创建默认的工具执行器。
func NewDefaultExecutor(registry ToolRegistry, logger *zap.Logger, opts ...ExecutorOption) *DefaultExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &DefaultExecutor{
		registry: registry,
		logger:   logger.With(zap.String("component", "tool_executor")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs all calls concurrently; results keep the order of calls.
func (e *DefaultExecutor) Execute(ctx context.Context, calls []llm.ToolCall) []ToolResult {
	results := make([]ToolResult, len(calls))

	var g errgroup.Group
	if e.maxParallel > 0 {
		g.SetLimit(e.maxParallel)
	}
	for i, call := range calls {
		g.Go(func() error {
			results[i] = e.ExecuteOne(ctx, call)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (e *DefaultExecutor) ExecuteOne(ctx context.Context, call llm.ToolCall) ToolResult {
	start := time.Now()
	result := ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
	}
	finish := func(status string) ToolResult {
		result.Duration = time.Since(start)
		if e.observer != nil {
			e.observer.ObserveToolCall(call.Name, status, result.Duration)
		}
		return result
	}

	// 1. 获取工具函数和元数据
	fn, meta, err := e.registry.Get(call.Name)
	if err != nil {
		result.Error = fmt.Sprintf("tool not found: %s", err.Error())
		e.logger.Warn("tool not found", zap.String("name", call.Name))
		return finish("not_found")
	}

	// 2. 检查速率限制（如果注册表支持）
	if limiter, ok := e.registry.(interface{ Allow(string) error }); ok {
		if err := limiter.Allow(call.Name); err != nil {
			result.Error = fmt.Sprintf("rate limit exceeded: %s", err.Error())
			e.logger.Warn("rate limit exceeded", zap.String("name", call.Name))
			return finish("rate_limited")
		}
	}

	// 3. 参数校验：必须是 JSON 对象，空参数按 {} 处理
	args := call.Arguments
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	var obj map[string]any
	if err := json.Unmarshal(args, &obj); err != nil {
		result.Error = fmt.Sprintf("invalid arguments: %s", err.Error())
		e.logger.Warn("invalid tool arguments", zap.String("name", call.Name), zap.Error(err))
		return finish("invalid_arguments")
	}

	// 4. 查询结果缓存
	cacheable := e.cache != nil && meta.CacheTTL > 0
	key := ""
	if cacheable {
		key = CacheKey(call.Name, args)
		cached, hit, err := e.cache.Get(ctx, key)
		if err != nil {
			e.logger.Warn("tool cache lookup failed", zap.String("name", call.Name), zap.Error(err))
		}
		if e.observer != nil {
			e.observer.ObserveToolCache(call.Name, hit)
		}
		if hit {
			result.Result = cached
			result.Cached = true
			return finish("cached")
		}
	}

	// 5. 执行工具（带超时控制）
	execCtx, cancel := context.WithTimeout(ctx, meta.Timeout)
	defer cancel()

	type outcome struct {
		res json.RawMessage
		err error
	}
	// 带缓冲，超时后 goroutine 仍可退出
	doneChan := make(chan outcome, 1)
	go func() {
		res, err := fn(execCtx, args)
		doneChan <- outcome{res, err}
	}()

	timedOut := func() ToolResult {
		result.Error = fmt.Sprintf("execution timeout after %s", meta.Timeout)
		if ctx.Err() != nil {
			result.Error = fmt.Sprintf("execution cancelled: %s", ctx.Err())
		}
		e.logger.Warn("tool execution timeout",
			zap.String("name", call.Name),
			zap.Duration("timeout", meta.Timeout))
		return finish("timeout")
	}

	select {
	case done := <-doneChan:
		if done.err != nil && execCtx.Err() != nil {
			// 工具因上下文结束而返回
			return timedOut()
		}
		if done.err != nil {
			result.Error = done.err.Error()
			e.logger.Warn("tool execution failed",
				zap.String("name", call.Name),
				zap.Error(done.err),
				zap.Duration("duration", time.Since(start)))
			return finish("error")
		}
		result.Result = done.res
		if cacheable {
			if err := e.cache.Set(ctx, key, done.res, meta.CacheTTL); err != nil {
				e.logger.Warn("tool cache store failed", zap.String("name", call.Name), zap.Error(err))
			}
		}
		e.logger.Debug("tool executed",
			zap.String("name", call.Name),
			zap.Duration("duration", time.Since(start)))
		return finish("success")

	case <-execCtx.Done():
		return timedOut()
	}
}

package middleware

import (
	"context"
	"fmt"

	llmpkg "github.com/BaSui01/crewflow/llm"
)

// RequestRewriter 请求改写器接口
// 用于在请求发送到上游 API 之前进行参数清理和转换
type RequestRewriter interface {
	// Rewrite 改写请求，返回改写后的请求
	Rewrite(ctx context.Context, req *llmpkg.ChatRequest) (*llmpkg.ChatRequest, error)

	// Name 返回改写器名称（用于日志和调试）
	Name() string
}

// RewriterChain 按顺序执行多个改写器
type RewriterChain struct {
	rewriters []RequestRewriter
}

// NewRewriterChain 创建改写器链
func NewRewriterChain(rewriters ...RequestRewriter) *RewriterChain {
	return &RewriterChain{rewriters: rewriters}
}

// Execute 执行改写器链，任何一个失败则中断并返回错误
func (c *RewriterChain) Execute(ctx context.Context, req *llmpkg.ChatRequest) (*llmpkg.ChatRequest, error) {
	if c == nil || len(c.rewriters) == 0 {
		return req, nil
	}

	var err error
	for _, rewriter := range c.rewriters {
		req, err = rewriter.Rewrite(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("rewriter [%s] failed: %w", rewriter.Name(), err)
		}
	}
	return req, nil
}

// AddRewriter 动态添加改写器
func (c *RewriterChain) AddRewriter(rewriter RequestRewriter) {
	c.rewriters = append(c.rewriters, rewriter)
}

// EmptyToolsCleaner 当请求的 Tools 为空时清除 ToolChoice，
// 避免上游返回 400（OpenAI 兼容接口不允许无 tools 时设置 tool_choice）
type EmptyToolsCleaner struct{}

// NewEmptyToolsCleaner 创建空工具清理器
func NewEmptyToolsCleaner() *EmptyToolsCleaner {
	return &EmptyToolsCleaner{}
}

func (r *EmptyToolsCleaner) Name() string { return "empty_tools_cleaner" }

func (r *EmptyToolsCleaner) Rewrite(_ context.Context, req *llmpkg.ChatRequest) (*llmpkg.ChatRequest, error) {
	if req == nil {
		return req, nil
	}
	if len(req.Tools) == 0 {
		req.ToolChoice = ""
	}
	return req, nil
}

// ToolsDropper 在 Provider 不支持原生 Function Calling 时移除 Tools。
// 部分本地模型（如 deepseek-r1）收到 tools 字段会直接报错。
type ToolsDropper struct {
	supported func() bool
}

// NewToolsDropper 创建工具移除器，supported 返回当前 Provider 的能力。
func NewToolsDropper(supported func() bool) *ToolsDropper {
	return &ToolsDropper{supported: supported}
}

func (r *ToolsDropper) Name() string { return "tools_dropper" }

func (r *ToolsDropper) Rewrite(_ context.Context, req *llmpkg.ChatRequest) (*llmpkg.ChatRequest, error) {
	if req == nil || len(req.Tools) == 0 || r.supported == nil || r.supported() {
		return req, nil
	}
	out := *req
	out.Tools = nil
	out.ToolChoice = ""
	return &out, nil
}

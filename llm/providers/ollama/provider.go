package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/crewflow/llm"
	"github.com/BaSui01/crewflow/llm/providers"
	"github.com/BaSui01/crewflow/llm/providers/openaicompat"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL 本地 Ollama 默认地址
	DefaultBaseURL = "http://localhost:11434"
	// DefaultModel 默认模型
	DefaultModel = "deepseek-r1:8b"

	tagsEndpoint = "/api/tags"
)

// 不支持原生工具调用的模型前缀
var noToolModels = []string{"deepseek-r1", "gemma", "phi", "llava", "codellama"}

// Provider 通过 Ollama 的 OpenAI 兼容接口访问本地模型。
type Provider struct {
	*openaicompat.Provider
	keepThinking bool
}

// NewProvider 创建 Ollama Provider
func NewProvider(cfg providers.OllamaConfig, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		// 本地推理模型首 token 较慢
		cfg.Timeout = 5 * time.Minute
	}
	nativeTools := cfg.NativeTools
	if nativeTools == nil {
		v := SupportsTools(cfg.Model)
		nativeTools = &v
	}

	base := openaicompat.New(openaicompat.Config{
		ProviderName:   "ollama",
		APIKey:         cfg.APIKey,
		BaseURL:        strings.TrimSuffix(strings.TrimRight(cfg.BaseURL, "/"), "/v1"),
		DefaultModel:   cfg.Model,
		FallbackModel:  DefaultModel,
		Timeout:        cfg.Timeout,
		ModelsEndpoint: tagsEndpoint,
		SupportsTools:  nativeTools,
	}, logger)

	return &Provider{Provider: base, keepThinking: cfg.KeepThinking}
}

// SupportsTools 根据模型名推断是否支持原生工具调用
func SupportsTools(model string) bool {
	name := strings.ToLower(model)
	for _, prefix := range noToolModels {
		if strings.HasPrefix(name, prefix) {
			return false
		}
	}
	return true
}

// Completion 调用本地模型并移除推理块
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	resp, err := p.Provider.Completion(ctx, req)
	if err != nil {
		return nil, err
	}
	if !p.keepThinking {
		for i := range resp.Choices {
			resp.Choices[i].Message.Content = llm.StripThinking(resp.Choices[i].Message.Content)
		}
	}
	return resp, nil
}

// Stream 流式调用本地模型，推理块内的增量被丢弃
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	in, err := p.Provider.Stream(ctx, req)
	if err != nil || p.keepThinking {
		return in, err
	}

	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		var f thinkFilter
		for chunk := range in {
			chunk.Delta.Content = f.Feed(chunk.Delta.Content)
			if chunk.Delta.Content == "" && chunk.FinishReason == "" && chunk.Err == nil && len(chunk.Delta.ToolCalls) == 0 {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case out <- chunk:
			}
		}
	}()
	return out, nil
}

// Model 本地模型信息
type Model struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	Digest     string    `json:"digest"`
	ModifiedAt time.Time `json:"modified_at"`
}

// ListModels 返回本地已拉取的模型
func (p *Provider) ListModels(ctx context.Context) ([]Model, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.Endpoint(tagsEndpoint), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return nil, &llm.Error{
			Code:       llm.ErrProviderUnavailable,
			Message:    err.Error(),
			HTTPStatus: http.StatusServiceUnavailable,
			Retryable:  true,
			Provider:   p.Name(),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, providers.MapHTTPError(resp.StatusCode, providers.ReadErrorMessage(resp.Body), p.Name())
	}

	var tags struct {
		Models []Model `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode %s: %w", tagsEndpoint, err)
	}
	return tags.Models, nil
}

// HasModel 判断模型是否已在本地拉取；未带 tag 的名称匹配 :latest
func (p *Provider) HasModel(ctx context.Context, model string) (bool, error) {
	models, err := p.ListModels(ctx)
	if err != nil {
		return false, err
	}
	want := model
	if !strings.Contains(want, ":") {
		want += ":latest"
	}
	for _, m := range models {
		if m.Name == want || m.Name == model {
			return true, nil
		}
	}
	return false, nil
}

// thinkFilter 在流式增量上跟踪 <think> 块状态
type thinkFilter struct {
	inside  bool
	pending string
}

func (f *thinkFilter) Feed(delta string) string {
	s := f.pending + delta
	f.pending = ""
	var b strings.Builder
	for len(s) > 0 {
		tag := "<think>"
		if f.inside {
			tag = "</think>"
		}
		if i := strings.Index(s, tag); i >= 0 {
			if !f.inside {
				b.WriteString(s[:i])
			}
			s = s[i+len(tag):]
			f.inside = !f.inside
			continue
		}
		// 保留可能是标签前缀的尾部，等待下一个增量
		keep := partialSuffix(s, tag)
		if !f.inside {
			b.WriteString(s[:len(s)-keep])
		}
		f.pending = s[len(s)-keep:]
		break
	}
	return b.String()
}

func partialSuffix(s, tag string) int {
	for n := len(tag) - 1; n > 0; n-- {
		if n <= len(s) && strings.HasSuffix(s, tag[:n]) {
			return n
		}
	}
	return 0
}

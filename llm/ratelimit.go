package llm

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitedProvider 在调用内层 Provider 前按令牌桶等待，
// 用于保护本地推理服务（如 Ollama）不被并发任务压垮。
type RateLimitedProvider struct {
	inner   Provider
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewRateLimitedProvider 以每秒 rps 个请求、突发 burst 包装 Provider。
// burst 小于 1 时按 1 处理。
func NewRateLimitedProvider(inner Provider, rps float64, burst int, logger *zap.Logger) *RateLimitedProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger.With(zap.String("component", "rate_limited_provider"), zap.String("provider", inner.Name())),
	}
}

var _ Provider = (*RateLimitedProvider)(nil)

func (p *RateLimitedProvider) Name() string                        { return p.inner.Name() }
func (p *RateLimitedProvider) SupportsNativeFunctionCalling() bool { return p.inner.SupportsNativeFunctionCalling() }

func (p *RateLimitedProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	return p.inner.HealthCheck(ctx)
}

func (p *RateLimitedProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.Completion(ctx, req)
}

func (p *RateLimitedProvider) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.Stream(ctx, req)
}

func (p *RateLimitedProvider) wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		p.logger.Debug("rate limit wait aborted", zap.Error(err))
		return &Error{
			Code:      ErrRateLimited,
			Message:   err.Error(),
			Retryable: false,
			Provider:  p.inner.Name(),
		}
	}
	return nil
}

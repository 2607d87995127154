package providers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/BaSui01/crewflow/llm"
	"go.uber.org/zap"
)

// RetryConfig holds retry configuration for a provider wrapper.
type RetryConfig struct {
	MaxRetries    int           `json:"max_retries" yaml:"max_retries"`       // Maximum retry attempts, default 3
	InitialDelay  time.Duration `json:"initial_delay" yaml:"initial_delay"`   // Initial backoff delay, default 1s
	MaxDelay      time.Duration `json:"max_delay" yaml:"max_delay"`           // Maximum backoff delay, default 30s
	BackoffFactor float64       `json:"backoff_factor" yaml:"backoff_factor"` // Exponential backoff factor, default 2.0
	RetryableOnly bool          `json:"retryable_only" yaml:"retryable_only"` // Only retry errors marked Retryable
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		RetryableOnly: true,
	}
}

// RetryableProvider wraps an llm.Provider with exponential-backoff retry logic.
type RetryableProvider struct {
	inner  llm.Provider
	config RetryConfig
	logger *zap.Logger
}

// NewRetryableProvider creates a retrying wrapper around the given provider.
func NewRetryableProvider(inner llm.Provider, config RetryConfig, logger *zap.Logger) *RetryableProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.BackoffFactor <= 0 {
		config.BackoffFactor = 2.0
	}
	return &RetryableProvider{
		inner:  inner,
		config: config,
		logger: logger.With(zap.String("component", "retry_provider"), zap.String("provider", inner.Name())),
	}
}

var _ llm.Provider = (*RetryableProvider)(nil)

func (p *RetryableProvider) Name() string { return p.inner.Name() }
func (p *RetryableProvider) SupportsNativeFunctionCalling() bool {
	return p.inner.SupportsNativeFunctionCalling()
}
func (p *RetryableProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return p.inner.HealthCheck(ctx)
}

// Unwrap returns the wrapped provider.
func (p *RetryableProvider) Unwrap() llm.Provider { return p.inner }

// Completion performs a chat completion with retry on transient errors.
func (p *RetryableProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	return withRetry(ctx, p, "completion", func() (*llm.ChatResponse, error) {
		return p.inner.Completion(ctx, req)
	})
}

// Stream retries only the connection-establishment phase; mid-stream errors surface as chunks.
func (p *RetryableProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	return withRetry(ctx, p, "stream", func() (<-chan llm.StreamChunk, error) {
		return p.inner.Stream(ctx, req)
	})
}

func withRetry[T any](ctx context.Context, p *RetryableProvider, op string, call func() (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.calculateDelay(attempt)
			p.logger.Debug("retrying "+op,
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}

		out, err := call()
		if err == nil {
			return out, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		if p.config.RetryableOnly && !llm.IsRetryable(err) {
			return zero, err
		}

		p.logger.Warn(op+" failed, will retry",
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	return zero, fmt.Errorf("%s failed after %d retries: %w", op, p.config.MaxRetries, lastErr)
}

func (p *RetryableProvider) calculateDelay(attempt int) time.Duration {
	delay := float64(p.config.InitialDelay) * math.Pow(p.config.BackoffFactor, float64(attempt-1))
	if p.config.MaxDelay > 0 && delay > float64(p.config.MaxDelay) {
		delay = float64(p.config.MaxDelay)
	}
	return time.Duration(delay)
}

// Package factory provides a centralized factory for creating LLM Provider
// instances from a model reference such as "ollama/deepseek-r1:8b". It
// imports the provider sub-packages and applies the retry and rate-limit
// wrappers, keeping the llm package free of import cycles.
package factory

import (
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/crewflow/llm"
	"github.com/BaSui01/crewflow/llm/providers"
	"github.com/BaSui01/crewflow/llm/providers/ollama"
	"github.com/BaSui01/crewflow/llm/providers/openaicompat"
	"go.uber.org/zap"
)

const openAIBaseURL = "https://api.openai.com"

// ProviderConfig is the generic configuration accepted by the factory.
type ProviderConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// MaxRetries > 0 wraps the provider with RetryableProvider.
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	// RPS > 0 wraps the provider with RateLimitedProvider.
	RPS   float64 `json:"rps,omitempty" yaml:"rps,omitempty"`
	Burst int     `json:"burst,omitempty" yaml:"burst,omitempty"`

	// NativeTools overrides tool-calling capability detection.
	NativeTools  *bool `json:"native_tools,omitempty" yaml:"native_tools,omitempty"`
	KeepThinking bool  `json:"keep_thinking,omitempty" yaml:"keep_thinking,omitempty"`
}

// NewProvider creates the provider named by ref.Provider, bound to ref.Model.
//
// Supported names: ollama, openai, and openai-compatible (requires BaseURL).
func NewProvider(ref llm.ModelRef, cfg ProviderConfig, logger *zap.Logger) (llm.Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	base := providers.BaseProviderConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   ref.Model,
		Timeout: cfg.Timeout,
	}

	var p llm.Provider
	switch strings.ToLower(ref.Provider) {
	case "ollama":
		p = ollama.NewProvider(providers.OllamaConfig{
			BaseProviderConfig: base,
			NativeTools:        cfg.NativeTools,
			KeepThinking:       cfg.KeepThinking,
		}, logger)

	case "openai":
		if cfg.BaseURL == "" {
			base.BaseURL = openAIBaseURL
		}
		if base.APIKey == "" {
			return nil, fmt.Errorf("provider openai: api_key is required")
		}
		p = openaicompat.New(openaicompat.Config{
			ProviderName:  "openai",
			APIKey:        base.APIKey,
			BaseURL:       base.BaseURL,
			DefaultModel:  base.Model,
			FallbackModel: "gpt-4o-mini",
			Timeout:       base.Timeout,
			SupportsTools: cfg.NativeTools,
		}, logger)

	case "openai-compatible", "openai_compatible":
		// 通用 OpenAI 兼容服务：vLLM、LM Studio、OpenRouter 等
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("provider %s: base_url is required", ref.Provider)
		}
		logger.Info("creating generic OpenAI-compatible provider",
			zap.String("base_url", cfg.BaseURL),
			zap.String("model", ref.Model))
		p = openaicompat.New(openaicompat.Config{
			ProviderName:  "openai-compatible",
			APIKey:        base.APIKey,
			BaseURL:       base.BaseURL,
			DefaultModel:  base.Model,
			Timeout:       base.Timeout,
			SupportsTools: cfg.NativeTools,
		}, logger)

	default:
		return nil, fmt.Errorf("unknown provider %q: supported providers are %s",
			ref.Provider, strings.Join(SupportedProviders(), ", "))
	}

	return Wrap(p, cfg, logger), nil
}

// NewProviderFromRef parses a model reference string and creates the provider.
func NewProviderFromRef(ref string, cfg ProviderConfig, logger *zap.Logger) (llm.Provider, error) {
	parsed, err := llm.ParseModelRef(ref)
	if err != nil {
		return nil, err
	}
	return NewProvider(parsed, cfg, logger)
}

// Wrap applies retry (innermost) and rate limiting according to cfg.
func Wrap(p llm.Provider, cfg ProviderConfig, logger *zap.Logger) llm.Provider {
	if cfg.MaxRetries > 0 {
		rc := providers.DefaultRetryConfig()
		rc.MaxRetries = cfg.MaxRetries
		p = providers.NewRetryableProvider(p, rc, logger)
	}
	if cfg.RPS > 0 {
		p = llm.NewRateLimitedProvider(p, cfg.RPS, cfg.Burst, logger)
	}
	return p
}

// SupportedProviders returns the list of provider names understood by NewProvider.
func SupportedProviders() []string {
	return []string{"ollama", "openai", "openai-compatible"}
}

package providers

import "time"

// BaseProviderConfig 所有 Provider 共享的基础配置字段。
type BaseProviderConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// OpenAIConfig OpenAI 及 OpenAI 兼容服务配置
type OpenAIConfig struct {
	BaseProviderConfig `yaml:",inline"`
	Organization       string `json:"organization,omitempty" yaml:"organization,omitempty"`
}

// OllamaConfig 本地 Ollama 配置
type OllamaConfig struct {
	BaseProviderConfig `yaml:",inline"`
	// NativeTools 模型是否支持原生工具调用；nil 时按模型名推断
	NativeTools *bool `json:"native_tools,omitempty" yaml:"native_tools,omitempty"`
	// KeepThinking 为 true 时保留 <think> 推理块
	KeepThinking bool `json:"keep_thinking,omitempty" yaml:"keep_thinking,omitempty"`
}

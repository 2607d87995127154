// Package factory 根据模型引用（如 "ollama/deepseek-r1:8b"）创建 LLM Provider，
// 并按配置叠加重试与限流包装。
package factory

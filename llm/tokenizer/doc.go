// Package tokenizer 提供统一的 Token 计数接口，
// 支持 tiktoken 精确计数与 CJK 估算器，用于 Agent 执行时的上下文窗口裁剪。
package tokenizer

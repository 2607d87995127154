package tokenizer

import (
	"strings"
)

// Tokenizer 是统一的 token 计数接口.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// CountMessages 返回消息列表的总 token 数,
	// 包括每条消息的开销（角色标记、分隔符等）。
	CountMessages(messages []Message) (int, error)

	// Truncate 将文本截断到不超过 maxTokens 个 token.
	Truncate(text string, maxTokens int) (string, error)

	// MaxTokens 返回模型的最大上下文长度.
	MaxTokens() int

	// Name 返回分词器的名称.
	Name() string
}

// Message 是一个轻量级消息结构, 由 tokenizer 包使用
// 以避免与 llm 包的循环依赖。
type Message struct {
	Role    string
	Content string
}

const (
	perMessageOverhead = 4
	conversationEnd    = 3
	defaultWindow      = 8192
)

// 上下文窗口，按模型名前缀匹配（最长前缀优先）
var contextWindows = map[string]int{
	"gpt-4o":        128000,
	"gpt-4-turbo":   128000,
	"gpt-4":         8192,
	"gpt-3.5-turbo": 16385,
	"deepseek-r1":   131072,
	"deepseek-v":    65536,
	"llama3.1":      131072,
	"llama3.2":      131072,
	"llama3":        8192,
	"qwen2.5":       32768,
	"mistral":       32768,
	"gemma2":        8192,
	"phi3":          4096,
}

// ContextWindow 返回模型的上下文窗口；未知模型返回 8192。
// 接受带 provider 前缀（"ollama/deepseek-r1:8b"）或 tag 的名称。
func ContextWindow(model string) int {
	name := normalizeModel(model)
	best, window := 0, defaultWindow
	for prefix, w := range contextWindows {
		if strings.HasPrefix(name, prefix) && len(prefix) > best {
			best, window = len(prefix), w
		}
	}
	return window
}

// ForModel 返回模型的分词器：tiktoken 编码可用时精确计数，否则回退到估算器。
func ForModel(model string) Tokenizer {
	window := ContextWindow(model)
	t := NewTiktokenTokenizer(model, window)
	if err := t.init(); err != nil {
		return NewEstimatorTokenizer(model, window)
	}
	return t
}

func normalizeModel(model string) string {
	name := strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}

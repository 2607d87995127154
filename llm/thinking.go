package llm

import (
	"regexp"
	"strings"
)

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThinking 移除 <think>...</think> 推理块；未闭合的块从开标签起全部移除
func StripThinking(content string) string {
	out := thinkBlock.ReplaceAllString(content, "")
	if i := strings.Index(out, "<think>"); i >= 0 {
		out = out[:i]
	}
	// 部分模型省略开标签，只输出 </think>
	if i := strings.LastIndex(out, "</think>"); i >= 0 {
		out = out[i+len("</think>"):]
	}
	return strings.TrimSpace(out)
}

package structured

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON 表示文本中没有可识别的 JSON。
var ErrNoJSON = errors.New("no JSON object or array found")

var (
	thinkBlock  = regexp.MustCompile(`(?is)<think>.*?(</think>|$)`)
	fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)\\n?```")
)

// ExtractJSON 返回 text 中第一个括号平衡的 JSON 对象或数组。
// 推理块会先被移除；若存在代码块，优先在代码块内查找。
func ExtractJSON(text string) (string, error) {
	text = thinkBlock.ReplaceAllString(text, "")
	if i := strings.Index(text, "</think>"); i >= 0 {
		text = text[i+len("</think>"):]
	}

	for _, m := range fencedBlock.FindAllStringSubmatch(text, -1) {
		if s, ok := firstBalanced(m[1]); ok {
			return s, nil
		}
	}
	if s, ok := firstBalanced(text); ok {
		return s, nil
	}
	return "", ErrNoJSON
}

// firstBalanced 扫描第一个 { 或 [，按括号深度匹配，忽略字符串内的括号。
func firstBalanced(s string) (string, bool) {
	for start := 0; start < len(s); start++ {
		if s[start] != '{' && s[start] != '[' {
			continue
		}
		if end := matchClose(s, start); end > 0 {
			return s[start : end+1], true
		}
	}
	return "", false
}

func matchClose(s string, start int) int {
	var stack []byte
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}

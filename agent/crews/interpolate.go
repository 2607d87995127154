package crews

import (
	"fmt"
	"regexp"
)

var placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_\-]*)\}`)

// Interpolate replaces {name} with fmt.Sprint(inputs[name]).
// Placeholders without a matching input are left untouched.
func Interpolate(text string, inputs map[string]any) string {
	if len(inputs) == 0 || text == "" {
		return text
	}
	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		key := m[1 : len(m)-1]
		if v, ok := inputs[key]; ok {
			return fmt.Sprint(v)
		}
		return m
	})
}

// Placeholders 返回文本中出现的占位符名称（去重，按出现顺序）。
func Placeholders(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range placeholder.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

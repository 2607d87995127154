package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// inputFlags 收集可重复的 --input key=value
type inputFlags []string

func (f *inputFlags) String() string { return strings.Join(*f, ",") }

func (f *inputFlags) Set(v string) error {
	if !strings.Contains(v, "=") {
		return fmt.Errorf("input %q must be key=value", v)
	}
	*f = append(*f, v)
	return nil
}

// parseInputs 先读取 YAML 文件，再用 key=value 覆盖。
// 值按 YAML 标量解析，"500" 得到整数，"true" 得到布尔值。
func parseInputs(pairs []string, file string) (map[string]any, error) {
	inputs := map[string]any{}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read inputs file: %w", err)
		}
		if err := yaml.Unmarshal(data, &inputs); err != nil {
			return nil, fmt.Errorf("parse inputs file %s: %w", file, err)
		}
		if inputs == nil {
			inputs = map[string]any{}
		}
	}

	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("input %q must be key=value", pair)
		}
		inputs[key] = scalar(raw)
	}
	return inputs, nil
}

func scalar(raw string) any {
	if strings.TrimSpace(raw) == "" {
		return raw
	}
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	switch v.(type) {
	case int, float64, bool:
		return v
	default:
		return raw
	}
}

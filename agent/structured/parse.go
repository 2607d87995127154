package structured

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Parse 从模型回答中解析出 T：提取 JSON、按 T 的 schema 校验、反序列化。
func Parse[T any](text string) (*T, error) {
	schema, err := SchemaFor[T]()
	if err != nil {
		return nil, fmt.Errorf("generate schema: %w", err)
	}
	var out T
	if _, err := ParseInto(text, schema, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ParseWithSchema 按给定 schema 解析为通用 map（或数组）。
func ParseWithSchema(text string, schema *JSONSchema) (any, string, error) {
	var out any
	raw, err := ParseInto(text, schema, &out)
	if err != nil {
		return nil, raw, err
	}
	return out, raw, nil
}

// ParseInto 提取并校验 JSON 后写入 dst，返回提取出的 JSON 文本。
func ParseInto(text string, schema *JSONSchema, dst any) (string, error) {
	if dst == nil || reflect.ValueOf(dst).Kind() != reflect.Ptr {
		return "", fmt.Errorf("destination must be a non-nil pointer")
	}
	raw, err := ExtractJSON(text)
	if err != nil {
		return "", err
	}
	if err := Validate(schema, []byte(raw)); err != nil {
		return raw, err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return raw, &ValidationErrors{Errors: []ParseError{{Message: fmt.Sprintf("JSON parse error: %v", err)}}}
	}
	return raw, nil
}

// ToMap 把结构体值转换为 map，用于 TaskOutput.JSON。
func ToMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

package structured

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ParseError represents a validation error with field path.
type ParseError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors represents multiple validation errors.
type ValidationErrors struct {
	Errors []ParseError `json:"errors"`
}

// Error implements the error interface.
func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed with %d errors: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Validate 按 schema 校验 JSON 数据：必填字段与基础类型。
// 未在 schema 中声明的字段会被忽略。
func Validate(schema *JSONSchema, data []byte) error {
	if schema == nil {
		return nil
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return &ValidationErrors{Errors: []ParseError{{Message: fmt.Sprintf("invalid JSON: %v", err)}}}
	}

	var errs []ParseError
	validateValue(value, schema, "", &errs)
	if len(errs) > 0 {
		return &ValidationErrors{Errors: errs}
	}
	return nil
}

func validateValue(value any, schema *JSONSchema, path string, errs *[]ParseError) {
	if schema.Type == "" {
		return
	}
	if value == nil {
		*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("expected %s, got null", schema.Type)})
		return
	}

	switch schema.Type {
	case TypeString:
		if _, ok := value.(string); !ok {
			typeMismatch(value, schema.Type, path, errs)
		}
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			typeMismatch(value, schema.Type, path, errs)
		}
	case TypeNumber:
		if _, ok := value.(float64); !ok {
			typeMismatch(value, schema.Type, path, errs)
		}
	case TypeInteger:
		n, ok := value.(float64)
		if !ok {
			typeMismatch(value, schema.Type, path, errs)
		} else if n != math.Trunc(n) {
			*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("expected integer, got %v", n)})
		}
	case TypeArray:
		arr, ok := value.([]any)
		if !ok {
			typeMismatch(value, schema.Type, path, errs)
			return
		}
		if schema.Items != nil {
			for i, item := range arr {
				validateValue(item, schema.Items, fmt.Sprintf("%s[%d]", path, i), errs)
			}
		}
	case TypeObject:
		obj, ok := value.(map[string]any)
		if !ok {
			typeMismatch(value, schema.Type, path, errs)
			return
		}
		for _, name := range schema.Required {
			if _, present := obj[name]; !present {
				*errs = append(*errs, ParseError{Path: joinPath(path, name), Message: "required field missing"})
			}
		}
		names := make([]string, 0, len(schema.Properties))
		for name := range schema.Properties {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if v, present := obj[name]; present {
				validateValue(v, schema.Properties[name], joinPath(path, name), errs)
			}
		}
	}
}

func typeMismatch(value any, want SchemaType, path string, errs *[]ParseError) {
	*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("expected %s, got %s", want, jsonKind(value))})
}

func jsonKind(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return "null"
	}
}

func joinPath(base, segment string) string {
	if base == "" {
		return segment
	}
	return base + "." + segment
}

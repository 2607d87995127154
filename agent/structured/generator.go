package structured

import (
	"fmt"
	"reflect"
	"strings"
)

// GenerateSchema 从 Go 类型生成 JSON Schema。
// 支持 string、整数、浮点、bool、slice/array 与 struct（含指针）。
// 字段名取自 json 标签；没有 omitempty 的字段视为必填。
// 可选的 jsonschema:"description=..." 标签写入字段描述。
func GenerateSchema(t reflect.Type) (*JSONSchema, error) {
	return generate(t, map[reflect.Type]bool{})
}

// MustGenerateSchema 与 GenerateSchema 相同，失败时 panic。
func MustGenerateSchema(t reflect.Type) *JSONSchema {
	s, err := GenerateSchema(t)
	if err != nil {
		panic(err)
	}
	return s
}

// SchemaFor 返回 T 的 schema。
func SchemaFor[T any]() (*JSONSchema, error) {
	return GenerateSchema(reflect.TypeOf((*T)(nil)).Elem())
}

func generate(t reflect.Type, visiting map[reflect.Type]bool) (*JSONSchema, error) {
	if t == nil {
		return nil, fmt.Errorf("cannot generate schema for nil type")
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.String:
		return &JSONSchema{Type: TypeString}, nil
	case reflect.Bool:
		return &JSONSchema{Type: TypeBoolean}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &JSONSchema{Type: TypeInteger}, nil
	case reflect.Float32, reflect.Float64:
		return &JSONSchema{Type: TypeNumber}, nil
	case reflect.Slice, reflect.Array:
		items, err := generate(t.Elem(), visiting)
		if err != nil {
			return nil, fmt.Errorf("array element: %w", err)
		}
		return NewArraySchema(items), nil
	case reflect.Struct:
		return generateStruct(t, visiting)
	default:
		return nil, fmt.Errorf("unsupported type: %s", t.Kind())
	}
}

func generateStruct(t reflect.Type, visiting map[reflect.Type]bool) (*JSONSchema, error) {
	// 递归类型只展开一层
	if visiting[t] {
		return &JSONSchema{Type: TypeObject}, nil
	}
	visiting[t] = true
	defer delete(visiting, t)

	schema := NewObjectSchema()
	schema.Title = t.Name()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		name, omitEmpty := jsonFieldName(field)
		if name == "-" {
			continue
		}

		fieldSchema, err := generate(field.Type, visiting)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field.Name, err)
		}
		if desc := tagOption(field.Tag.Get("jsonschema"), "description"); desc != "" {
			fieldSchema.Description = desc
		}

		schema.Properties[name] = fieldSchema
		if !omitEmpty && field.Type.Kind() != reflect.Ptr {
			schema.Required = append(schema.Required, name)
		}
	}
	return schema, nil
}

func jsonFieldName(field reflect.StructField) (name string, omitEmpty bool) {
	tag := field.Tag.Get("json")
	if tag == "" {
		return field.Name, false
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	if name == "" {
		name = field.Name
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" || opt == "omitzero" {
			omitEmpty = true
		}
	}
	return name, omitEmpty
}

// tagOption 读取 "k1=v1;k2=v2" 形式标签中的某一项。
func tagOption(tag, key string) string {
	for _, part := range strings.Split(tag, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && k == key {
			return v
		}
	}
	return ""
}

package structured

import "encoding/json"

// SchemaType represents JSON Schema types.
type SchemaType string

const (
	TypeString  SchemaType = "string"
	TypeNumber  SchemaType = "number"
	TypeInteger SchemaType = "integer"
	TypeBoolean SchemaType = "boolean"
	TypeObject  SchemaType = "object"
	TypeArray   SchemaType = "array"
)

// JSONSchema is the subset of JSON Schema produced by GenerateSchema.
type JSONSchema struct {
	Title       string                 `json:"title,omitempty"`
	Description string                 `json:"description,omitempty"`
	Type        SchemaType             `json:"type,omitempty"`
	Properties  map[string]*JSONSchema `json:"properties,omitempty"`
	Required    []string               `json:"required,omitempty"`
	Items       *JSONSchema            `json:"items,omitempty"`
}

// NewObjectSchema creates a new object schema.
func NewObjectSchema() *JSONSchema {
	return &JSONSchema{
		Type:       TypeObject,
		Properties: make(map[string]*JSONSchema),
	}
}

// NewArraySchema creates a new array schema with the specified items schema.
func NewArraySchema(items *JSONSchema) *JSONSchema {
	return &JSONSchema{Type: TypeArray, Items: items}
}

// ToJSON 序列化为紧凑 JSON。
func (s *JSONSchema) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// ToJSONIndent 序列化为缩进 JSON，用于提示词。
func (s *JSONSchema) ToJSONIndent() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// RawMessage 返回可直接放入工具参数或请求中的 JSON。
func (s *JSONSchema) RawMessage() json.RawMessage {
	b, err := s.ToJSON()
	if err != nil {
		return nil
	}
	return b
}

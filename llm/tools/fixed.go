package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BaSui01/crewflow/llm"
)

// emptyObjectSchema 零参数工具的 schema
var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// NewFixedTool binds fn to fixedArgs. Arguments supplied by the model are
// accepted and ignored, so the tool can be called with {} or anything else.
func NewFixedTool(name, description string, fn ToolFunc, fixedArgs json.RawMessage) (ToolFunc, ToolMetadata) {
	if len(fixedArgs) == 0 {
		fixedArgs = json.RawMessage(`{}`)
	}
	bound := func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		return fn(ctx, fixedArgs)
	}
	return bound, ToolMetadata{
		Schema: llm.ToolSchema{
			Name:        name,
			Description: description,
			Parameters:  emptyObjectSchema,
		},
		Timeout:     30 * time.Second,
		Description: description,
	}
}

package crews

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/crewflow/llm"
	"github.com/BaSui01/crewflow/llm/tools"
)

var emptyParameters = json.RawMessage(`{"type":"object","properties":{}}`)

// Tool 是 Agent 可调用的工具。Name 可以包含空格，发送给模型时会被规范化。
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
	Func        tools.ToolFunc
	Timeout     time.Duration
	CacheTTL    time.Duration
	RateLimit   *tools.RateLimitConfig
}

// NewTool 由 ToolFunc 与元数据构造 Tool。
func NewTool(fn tools.ToolFunc, meta tools.ToolMetadata) Tool {
	return Tool{
		Name:        meta.Schema.Name,
		Description: meta.Schema.Description,
		Parameters:  meta.Schema.Parameters,
		Func:        fn,
		Timeout:     meta.Timeout,
		CacheTTL:    meta.CacheTTL,
		RateLimit:   meta.RateLimit,
	}
}

// ToolFromRegistry 把注册中心中的工具适配为 Tool。
func ToolFromRegistry(reg tools.ToolRegistry, name string) (Tool, error) {
	fn, meta, err := reg.Get(name)
	if err != nil {
		return Tool{}, err
	}
	return NewTool(fn, meta), nil
}

// FunctionName 把显示名转换为函数调用可接受的名称（[a-z0-9_]）。
func FunctionName(name string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}

func (t Tool) schema() llm.ToolSchema {
	params := t.Parameters
	if len(params) == 0 {
		params = emptyParameters
	}
	return llm.ToolSchema{
		Name:        FunctionName(t.Name),
		Description: t.Description,
		Parameters:  params,
	}
}

func (t Tool) metadata() tools.ToolMetadata {
	return tools.ToolMetadata{
		Schema:      t.schema(),
		Timeout:     t.Timeout,
		CacheTTL:    t.CacheTTL,
		RateLimit:   t.RateLimit,
		Description: t.Description,
	}
}

// buildToolRegistry registers every tool under its function name.
func buildToolRegistry(list []Tool, reg *tools.DefaultRegistry) error {
	for _, t := range list {
		if t.Func == nil {
			return fmt.Errorf("tool %q has no function", t.Name)
		}
		meta := t.metadata()
		if meta.Schema.Name == "" {
			return fmt.Errorf("tool %q has an empty function name", t.Name)
		}
		if err := reg.Register(meta.Schema.Name, t.Func, meta); err != nil {
			return err
		}
	}
	return nil
}

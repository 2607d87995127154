package crews

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/BaSui01/crewflow/agent/structured"
	"github.com/BaSui01/crewflow/llm"
)

// Task 描述一个交给 Agent 的工作单元。
type Task struct {
	Name           string
	Description    string
	ExpectedOutput string
	Agent          *Agent

	// Context 为 nil 时使用此前所有已完成任务的输出；
	// 非 nil（含空切片）时只使用列出的任务。
	Context []*Task

	OutputFile string
	// OutputJSON 要求最终答案是该 Go 类型的 JSON；OutputSchema 可直接给出 schema。
	OutputJSON     reflect.Type
	OutputSchema   *structured.JSONSchema
	HumanInput     bool
	AsyncExecution bool
}

// displayName 返回任务名称，未命名时使用描述摘要。
func (t *Task) displayName() string {
	if t.Name != "" {
		return t.Name
	}
	return summarize(t.Description)
}

func (t *Task) wantsJSON() bool {
	return t.OutputJSON != nil || t.OutputSchema != nil
}

func (t *Task) schema() (*structured.JSONSchema, error) {
	if t.OutputSchema != nil {
		return t.OutputSchema, nil
	}
	if t.OutputJSON == nil {
		return nil, nil
	}
	return structured.GenerateSchema(t.OutputJSON)
}

// TaskOutput 是任务的执行结果。
type TaskOutput struct {
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description"`
	Summary     string         `json:"summary"`
	Raw         string         `json:"raw"`
	JSON        map[string]any `json:"json,omitempty"`
	// Value 是 OutputJSON 类型的解码结果（指针）。
	Value      any           `json:"-"`
	Agent      string        `json:"agent"`
	OutputPath string        `json:"output_path,omitempty"`
	Duration   time.Duration `json:"duration"`
	TokenUsage llm.ChatUsage `json:"token_usage"`
}

// String 有 JSON 时返回缩进 JSON，否则返回原始文本。
func (o *TaskOutput) String() string {
	if o == nil {
		return ""
	}
	if o.JSON != nil {
		if b, err := json.MarshalIndent(o.JSON, "", "  "); err == nil {
			return string(b)
		}
	}
	return o.Raw
}

// parseStructured decodes raw into the task's schema.
func (t *Task) parseStructured(raw string, out *TaskOutput) error {
	schema, err := t.schema()
	if err != nil {
		return fmt.Errorf("generate output schema: %w", err)
	}

	if t.OutputJSON != nil {
		ptr := reflect.New(t.OutputJSON)
		if _, err := structured.ParseInto(raw, schema, ptr.Interface()); err != nil {
			return err
		}
		m, err := structured.ToMap(ptr.Interface())
		if err != nil {
			// 非对象类型（如切片）
			var generic any
			b, _ := json.Marshal(ptr.Interface())
			_ = json.Unmarshal(b, &generic)
			m = asObject(generic)
		}
		out.JSON, out.Value = m, ptr.Interface()
		return nil
	}

	v, _, err := structured.ParseWithSchema(raw, schema)
	if err != nil {
		return err
	}
	out.JSON, out.Value = asObject(v), v
	return nil
}

func asObject(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{"items": v}
}

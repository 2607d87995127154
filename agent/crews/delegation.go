package crews

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/crewflow/llm/tools"
)

const (
	DelegateWorkToolName = "Delegate work to coworker"
	AskQuestionToolName  = "Ask question to coworker"

	// 同事需要完整执行一个任务，本地模型可能很慢
	delegationTimeout = 15 * time.Minute
)

func delegationTools(coworkers []*Agent) []Tool {
	roles := coworkerRoles(coworkers)
	list := strings.Join(roles, ", ")
	return []Tool{
		{
			Name: DelegateWorkToolName,
			Description: fmt.Sprintf("Delegate a specific task to one of the following coworkers: %s\n"+
				"The input to this tool should be the coworker, the task you want them to do, and ALL necessary "+
				"context to execute the task, they know nothing about the task, so share absolutely everything you "+
				"know, don't reference things but instead explain them.", list),
			Parameters: coworkerParameters("task", "The task to delegate"),
			Func:       coworkerFunc(coworkers, "task"),
			Timeout:    delegationTimeout,
		},
		{
			Name: AskQuestionToolName,
			Description: fmt.Sprintf("Ask a specific question to one of the following coworkers: %s\n"+
				"The input to this tool should be the coworker, the question you have for them, and ALL necessary "+
				"context to ask the question properly, they know nothing about the question, so share absolutely "+
				"everything you know, don't reference things but instead explain them.", list),
			Parameters: coworkerParameters("question", "The question to ask"),
			Func:       coworkerFunc(coworkers, "question"),
			Timeout:    delegationTimeout,
		},
	}
}

func coworkerParameters(field, description string) json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			field:      map[string]string{"type": "string", "description": description},
			"context":  map[string]string{"type": "string", "description": "All the context the coworker needs"},
			"coworker": map[string]string{"type": "string", "description": "The role of the coworker"},
		},
		"required": []string{field, "context", "coworker"},
	}
	b, _ := json.Marshal(schema)
	return b
}

func coworkerFunc(coworkers []*Agent, field string) tools.ToolFunc {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var params map[string]json.RawMessage
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		request := flexString(params[field])
		if request == "" {
			return nil, fmt.Errorf("%s is required", field)
		}
		name := flexString(params["coworker"])

		coworker := findCoworker(coworkers, name)
		if coworker == nil {
			return nil, fmt.Errorf("coworker %q not found, it must be one of the following options: %s",
				name, strings.Join(coworkerRoles(coworkers), ", "))
		}

		task := &Task{
			Name:           field + " for " + coworker.Role,
			Description:    request,
			ExpectedOutput: coworkerExpectedOutput,
		}
		out, err := coworker.asDelegate().Execute(ctx, task, flexString(params["context"]))
		if err != nil {
			return nil, fmt.Errorf("coworker %q failed: %w", coworker.Role, err)
		}
		return json.Marshal(out.Raw)
	}
}

// asDelegate 返回不带委派工具的副本，避免委派链无限递归。
func (a *Agent) asDelegate() *Agent {
	cp := *a
	env := *a.environment()
	env.coworkers = nil
	cp.env = &env
	return &cp
}

func findCoworker(coworkers []*Agent, name string) *Agent {
	want := normalizeRole(name)
	if want == "" {
		return nil
	}
	for _, c := range coworkers {
		if normalizeRole(c.Role) == want {
			return c
		}
	}
	return nil
}

func normalizeRole(s string) string {
	s = strings.Trim(strings.TrimSpace(s), `"'`)
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func coworkerRoles(coworkers []*Agent) []string {
	roles := make([]string, 0, len(coworkers))
	for _, c := range coworkers {
		roles = append(roles, c.Role)
	}
	return roles
}

// flexString 接受字符串或任意 JSON 值（对象按原文返回）。
func flexString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}

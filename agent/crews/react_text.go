package crews

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/BaSui01/crewflow/llm"
)

// toolMode 决定工具如何提供给模型
type toolMode int

const (
	toolsNone toolMode = iota
	// toolsNative 通过 Chat 请求的 tools 字段发送 schema
	toolsNative
	// toolsText 在提示词中描述工具，从回复文本解析 Action / Action Input
	toolsText
)

func (m toolMode) String() string {
	switch m {
	case toolsNative:
		return "native"
	case toolsText:
		return "text"
	default:
		return "none"
	}
}

const observationPrefix = "Observation: "

var (
	actionLine       = regexp.MustCompile(`(?m)^[ \t]*\**Action\**[ \t]*:[ \t]*(.*)$`)
	actionInputLabel = regexp.MustCompile(`(?m)^[ \t]*\**Action Input\**[ \t]*:`)
	observationLabel = regexp.MustCompile(`(?m)^[ \t]*\**Observation\**[ \t]*:`)
	finalAnswerLabel = regexp.MustCompile(`\**Final Answer\**[ \t]*:`)
)

// textToolsPrompt 描述可用工具以及 ReAct 文本格式。
func textToolsPrompt(list []Tool) string {
	var b strings.Builder
	b.WriteString("You ONLY have access to the following tools, and should NEVER make up tools that are not listed here:\n\n")
	names := make([]string, len(list))
	for i, t := range list {
		names[i] = t.Name
		fmt.Fprintf(&b, "Tool Name: %s\nTool Arguments: %s\nTool Description: %s\n\n", t.Name, t.schema().Parameters, t.Description)
	}
	fmt.Fprintf(&b, "IMPORTANT: Use the following format in your response:\n\n"+
		"```\n"+
		"Thought: you should always think about what to do\n"+
		"Action: the action to take, only one name of [%s], just the name, exactly as it's written.\n"+
		"Action Input: the input to the action, just a simple JSON object, enclosed in curly braces, using \" to wrap keys and values.\n"+
		"Observation: the result of the action\n"+
		"```\n\n"+
		"Once all necessary information is gathered, return the following format:\n\n"+
		"```\n"+
		"Thought: I now know the final answer\n"+
		"Final Answer: the final answer to the original input question\n"+
		"```", strings.Join(names, ", "))
	return b.String()
}

// textAction 是从回复文本中解析出的一次工具调用
type textAction struct {
	Tool      string
	Arguments json.RawMessage
	// Text 截止到 Action Input；模型自己编写的 Observation 会被丢弃
	Text string
}

// parseReAct 解析 ReAct 文本回复。
// 有 Action（且位于 Final Answer 之前）时返回动作；否则返回最终答案。
// 两者都没有时整段文本作为最终答案。
func parseReAct(content string) (*textAction, string) {
	text := llm.StripThinking(content)

	final := finalAnswerLabel.FindStringIndex(text)
	act := actionLine.FindStringSubmatchIndex(text)
	if act != nil && (final == nil || act[0] < final[0]) {
		name := strings.TrimSpace(strings.Trim(strings.TrimSpace(text[act[2]:act[3]]), "`*\"'"))
		end := len(text)
		input := ""
		if loc := actionInputLabel.FindStringIndex(text[act[1]:]); loc != nil {
			start := act[1] + loc[1]
			if obs := observationLabel.FindStringIndex(text[start:]); obs != nil {
				end = start + obs[0]
			}
			if fa := finalAnswerLabel.FindStringIndex(text[start:end]); fa != nil {
				end = start + fa[0]
			}
			// 一次只执行一个动作
			if next := actionLine.FindStringIndex(text[start:end]); next != nil {
				end = start + next[0]
			}
			input = text[start:end]
		} else {
			end = act[1]
		}
		if name != "" {
			return &textAction{
				Tool:      name,
				Arguments: actionArguments(input),
				Text:      strings.TrimSpace(text[:end]),
			}, ""
		}
	}

	return nil, finalAnswer(text)
}

// finalAnswer 取 "Final Answer:" 之后的文本；没有该标记时返回整段文本。
func finalAnswer(text string) string {
	if loc := finalAnswerLabel.FindStringIndex(text); loc != nil {
		return strings.TrimSpace(strings.TrimLeft(text[loc[1]:], "* \t"))
	}
	return strings.TrimSpace(text)
}

// actionArguments 把 Action Input 规范化为 JSON 对象。
// 非 JSON 输入包装为 {"input": "..."}。
func actionArguments(input string) json.RawMessage {
	s := strings.TrimSpace(input)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if s == "" {
		return json.RawMessage(`{}`)
	}
	if i, j := strings.Index(s, "{"), strings.LastIndex(s, "}"); i >= 0 && j > i {
		if obj := s[i : j+1]; json.Valid([]byte(obj)) {
			return json.RawMessage(obj)
		}
	}
	b, _ := json.Marshal(map[string]string{"input": s})
	return b
}

func isObservation(m llm.Message) bool {
	return m.Role == llm.RoleTool ||
		(m.Role == llm.RoleUser && strings.HasPrefix(m.Content, observationPrefix))
}

package crews

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/crewflow/llm"
	"github.com/BaSui01/crewflow/llm/tokenizer"
	"github.com/BaSui01/crewflow/llm/tools"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultMaxIterations 单个任务内 LLM 调用的默认上限
const DefaultMaxIterations = 15

const (
	observationFloor = 256
	truncatedMarker  = "\n[TRUNCATED]"
	maxEmptyAnswers  = 2
)

var tracer = otel.Tracer("crewflow/crews")

// Agent 是具有角色设定的 LLM 执行者。
type Agent struct {
	Role            string
	Goal            string
	Backstory       string
	AllowDelegation bool
	Verbose         bool

	LLM           llm.Provider
	Model         string
	Tools         []Tool
	MaxIterations int
	Temperature   float32
	// Tokenizer 为空时按 Model 选择
	Tokenizer tokenizer.Tokenizer

	env *execEnv
}

// execEnv 是 Crew 在一次运行中注入给 Agent 副本的环境。
type execEnv struct {
	crew      string
	logger    *zap.Logger
	verbose   bool
	observer  Observer
	toolObs   tools.Observer
	cache     tools.ResultCache
	usage     *usageCounter
	coworkers []*Agent
}

type usageCounter struct {
	mu sync.Mutex
	u  llm.ChatUsage
}

func (c *usageCounter) add(u llm.ChatUsage) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.u.Add(u)
	c.mu.Unlock()
}

func (c *usageCounter) total() llm.ChatUsage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.u
}

func (a *Agent) environment() *execEnv {
	if a.env != nil {
		return a.env
	}
	return &execEnv{logger: zap.NewNop(), observer: nopObserver{}}
}

var tokenizers sync.Map

func (a *Agent) tokenizer() tokenizer.Tokenizer {
	if a.Tokenizer != nil {
		return a.Tokenizer
	}
	if tk, ok := tokenizers.Load(a.Model); ok {
		return tk.(tokenizer.Tokenizer)
	}
	tk, _ := tokenizers.LoadOrStore(a.Model, tokenizer.ForModel(a.Model))
	return tk.(tokenizer.Tokenizer)
}

// toolset 返回本次执行可用的工具，含委派工具。
func (a *Agent) toolset(env *execEnv) []Tool {
	list := append([]Tool(nil), a.Tools...)
	if a.AllowDelegation && len(env.coworkers) > 0 {
		list = append(list, delegationTools(env.coworkers)...)
	}
	return list
}

// Execute 运行任务直到得到最终答案。
// taskContext 是上游任务输出或委派方提供的背景。
func (a *Agent) Execute(ctx context.Context, task *Task, taskContext string) (*TaskOutput, error) {
	if task == nil {
		return nil, fmt.Errorf("agent %q: nil task", a.Role)
	}
	if a.LLM == nil {
		return nil, fmt.Errorf("agent %q: no LLM configured", a.Role)
	}

	env := a.environment()
	start := time.Now()
	ctx, span := tracer.Start(ctx, "crews.agent.execute", trace.WithAttributes(
		attribute.String("agent.role", a.Role),
		attribute.String("task.name", task.displayName()),
	))
	defer span.End()

	toolList := a.toolset(env)
	mode := toolsNone
	if len(toolList) > 0 {
		mode = toolsText
		if a.LLM.SupportsNativeFunctionCalling() {
			mode = toolsNative
		}
	}

	var schemaJSON string
	if task.wantsJSON() {
		schema, err := task.schema()
		if err != nil {
			return nil, fmt.Errorf("agent %q: output schema: %w", a.Role, err)
		}
		b, _ := schema.ToJSONIndent()
		schemaJSON = string(b)
	}

	prompt := taskPrompt(task, taskContext, mode != toolsNone)
	if schemaJSON != "" {
		prompt += schemaInstruction(schemaJSON)
	}
	system := systemPrompt(a)
	if mode == toolsText {
		system += "\n\n" + textToolsPrompt(toolList)
	}
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: prompt},
	}

	run := &agentRun{agent: a, env: env}
	run.log("agent started task", zap.String("task", task.displayName()), zap.Int("tools", len(toolList)), zap.Stringer("tool_mode", mode))

	answer, err := run.loop(ctx, messages, toolList, mode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("agent %q: %w", a.Role, err)
	}

	out := &TaskOutput{
		Name:        task.Name,
		Description: task.Description,
		Summary:     summarize(task.Description),
		Raw:         answer,
		Agent:       a.Role,
	}

	if task.wantsJSON() {
		if perr := task.parseStructured(answer, out); perr != nil {
			run.log("final answer is not valid JSON, asking for conversion", zap.Error(perr))
			retry := append(run.messages,
				llm.Message{Role: llm.RoleAssistant, Content: answer},
				llm.Message{Role: llm.RoleUser, Content: jsonOnlyPrompt(schemaJSON, perr)},
			)
			msg, err := run.call(ctx, retry, nil)
			if err != nil {
				return nil, fmt.Errorf("agent %q: json conversion: %w", a.Role, err)
			}
			fixed := llm.StripThinking(msg.Content)
			if err := task.parseStructured(fixed, out); err != nil {
				span.SetStatus(codes.Error, "invalid output")
				return nil, fmt.Errorf("agent %q: %w: %v", a.Role, ErrInvalidOutput, err)
			}
			out.Raw = fixed
		}
	}

	out.TokenUsage = run.usage
	out.Duration = time.Since(start)
	run.log("agent finished task",
		zap.String("task", task.displayName()),
		zap.String("final_answer", out.Raw),
		zap.Int("total_tokens", run.usage.TotalTokens),
		zap.Duration("duration", out.Duration))
	return out, nil
}

// agentRun 保存一次 Execute 的可变状态
type agentRun struct {
	agent    *Agent
	env      *execEnv
	usage    llm.ChatUsage
	messages []llm.Message
}

func (r *agentRun) log(msg string, fields ...zap.Field) {
	fields = append(fields, zap.String("agent", r.agent.Role))
	if r.agent.Verbose || r.env.verbose {
		r.env.logger.Info(msg, fields...)
		return
	}
	r.env.logger.Debug(msg, fields...)
}

func (r *agentRun) loop(ctx context.Context, messages []llm.Message, toolList []Tool, mode toolMode) (string, error) {
	var (
		executor *tools.DefaultExecutor
		schemas  []llm.ToolSchema
	)
	if mode != toolsNone {
		reg := tools.NewDefaultRegistry(r.env.logger)
		if err := buildToolRegistry(toolList, reg); err != nil {
			return "", err
		}
		var opts []tools.ExecutorOption
		if r.env.cache != nil {
			opts = append(opts, tools.WithResultCache(r.env.cache))
		}
		if r.env.toolObs != nil {
			opts = append(opts, tools.WithObserver(r.env.toolObs))
		}
		executor = tools.NewDefaultExecutor(reg, r.env.logger, opts...)
		if mode == toolsNative {
			schemas = reg.List()
		}
	}

	maxIter := r.agent.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	empty := 0
	for i := 0; i < maxIter; i++ {
		messages = r.fitContext(messages)
		msg, err := r.call(ctx, messages, schemas)
		if err != nil {
			return "", fmt.Errorf("llm call failed at iteration %d: %w", i+1, err)
		}

		if mode == toolsText {
			act, final := parseReAct(msg.Content)
			if act != nil {
				messages = append(messages, r.runTextAction(ctx, executor, i, act)...)
				if err := ctx.Err(); err != nil {
					return "", err
				}
				continue
			}
			msg.Content = final
			msg.ToolCalls = nil
		}

		if len(msg.ToolCalls) == 0 || mode != toolsNative {
			answer := finalAnswer(llm.StripThinking(msg.Content))
			if answer == "" && empty < maxEmptyAnswers {
				empty++
				messages = append(messages,
					llm.Message{Role: llm.RoleAssistant, Content: msg.Content},
					llm.Message{Role: llm.RoleUser, Content: "Your answer was empty. Give your Final Answer now."})
				continue
			}
			r.messages = messages
			return answer, nil
		}

		for _, call := range msg.ToolCalls {
			r.log("tool call", zap.String("tool", call.Name), zap.ByteString("arguments", call.Arguments))
		}
		results := executor.Execute(ctx, msg.ToolCalls)

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   msg.Content,
			ToolCalls: msg.ToolCalls,
		})
		for _, res := range results {
			r.log("tool result",
				zap.String("tool", res.Name),
				zap.Bool("cached", res.Cached),
				zap.String("error", res.Error),
				zap.Duration("duration", res.Duration))
			messages = append(messages, res.ToMessage())
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}

	r.log("max iterations reached, forcing final answer", zap.Int("max_iterations", maxIter))
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: forceFinalAnswer})
	messages = r.fitContext(messages)
	msg, err := r.call(ctx, messages, nil)
	if err != nil {
		return "", fmt.Errorf("forced final answer: %w", err)
	}
	answer := finalAnswer(llm.StripThinking(msg.Content))
	if mode == toolsText {
		act, final := parseReAct(msg.Content)
		if act != nil {
			final = ""
		}
		answer = final
	}
	if len(msg.ToolCalls) > 0 || answer == "" {
		return "", fmt.Errorf("%w (%d)", ErrMaxIterations, maxIter)
	}
	r.messages = messages
	return answer, nil
}

// runTextAction 执行文本格式的工具调用，返回追加到对话中的消息。
func (r *agentRun) runTextAction(ctx context.Context, executor *tools.DefaultExecutor, iter int, act *textAction) []llm.Message {
	call := llm.ToolCall{
		ID:        fmt.Sprintf("react_%d", iter+1),
		Name:      FunctionName(act.Tool),
		Arguments: act.Arguments,
	}
	r.log("tool call", zap.String("tool", call.Name), zap.ByteString("arguments", call.Arguments), zap.Stringer("tool_mode", toolsText))
	res := executor.ExecuteOne(ctx, call)
	r.log("tool result",
		zap.String("tool", res.Name),
		zap.Bool("cached", res.Cached),
		zap.String("error", res.Error),
		zap.Duration("duration", res.Duration))
	return []llm.Message{
		{Role: llm.RoleAssistant, Content: act.Text},
		{Role: llm.RoleUser, Content: observationPrefix + res.Observation()},
	}
}

// call 发起一次 Completion；schemas 为空时不携带工具。
func (r *agentRun) call(ctx context.Context, messages []llm.Message, schemas []llm.ToolSchema) (llm.Message, error) {
	a := r.agent
	req := &llm.ChatRequest{
		Model:       a.Model,
		Messages:    messages,
		Temperature: a.Temperature,
		Tools:       schemas,
	}
	if len(schemas) > 0 {
		req.ToolChoice = "auto"
	}

	ctx, span := tracer.Start(ctx, "crews.llm.completion", trace.WithAttributes(
		attribute.String("llm.provider", a.LLM.Name()),
		attribute.String("llm.model", a.Model),
		attribute.Int("llm.messages", len(messages)),
	))
	defer span.End()

	start := time.Now()
	resp, err := a.LLM.Completion(ctx, req)
	var usage llm.ChatUsage
	if resp != nil {
		usage = resp.Usage
	}
	r.env.observer.ObserveLLMCall(a.LLM.Name(), a.Model, statusOf(err), usage, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return llm.Message{}, err
	}

	r.usage.Add(usage)
	r.env.usage.add(usage)
	span.SetAttributes(attribute.Int("llm.total_tokens", usage.TotalTokens))

	msg, ok := resp.FirstMessage()
	if !ok {
		return llm.Message{}, fmt.Errorf("no choices in LLM response")
	}
	return msg, nil
}

// fitContext 在估算的 prompt token 超出窗口时截断最早的工具观察结果。
func (r *agentRun) fitContext(messages []llm.Message) []llm.Message {
	tk := r.agent.tokenizer()
	window := tk.MaxTokens()
	reserve := window / 4
	if reserve > 4096 {
		reserve = 4096
	}
	trimmed, n := trimObservations(messages, tk, window-reserve)
	if n > 0 {
		r.log("truncated tool observations to fit the context window", zap.Int("truncated", n), zap.Int("window", window))
	}
	return trimmed
}

func trimObservations(messages []llm.Message, tk tokenizer.Tokenizer, budget int) ([]llm.Message, int) {
	total := countTokens(messages, tk)
	if total <= budget {
		return messages, 0
	}

	out := append([]llm.Message(nil), messages...)
	truncated := 0
	for i := range out {
		if total <= budget {
			break
		}
		if !isObservation(out[i]) || strings.HasSuffix(out[i].Content, truncatedMarker) {
			continue
		}
		cut, err := tk.Truncate(out[i].Content, observationFloor)
		if err != nil || len(cut) >= len(out[i].Content) {
			continue
		}
		out[i].Content = cut + truncatedMarker
		truncated++
		total = countTokens(out, tk)
	}
	return out, truncated
}

func countTokens(messages []llm.Message, tk tokenizer.Tokenizer) int {
	tm := make([]tokenizer.Message, len(messages))
	for i, m := range messages {
		content := m.Content
		for _, tc := range m.ToolCalls {
			content += tc.Name + string(tc.Arguments)
		}
		tm[i] = tokenizer.Message{Role: string(m.Role), Content: content}
	}
	n, err := tk.CountMessages(tm)
	if err != nil {
		return 0
	}
	return n
}

package crews

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/crewflow/llm"
	"github.com/BaSui01/crewflow/llm/tools"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Process 定义任务处理方式.
type Process string

const (
	ProcessSequential   Process = "sequential"
	ProcessHierarchical Process = "hierarchical"
)

// MaxFeedbackRounds 单个任务最多接受的人工反馈轮数
const MaxFeedbackRounds = 3

const (
	managerRole      = "Crew Manager"
	managerGoal      = "Manage the team to complete the task in the best way possible."
	managerBackstory = "You are a seasoned manager with a knack for getting the best out of your team. " +
		"You are also known for your ability to delegate work to the right people, and to ask the right " +
		"questions to get the best out of your team. Even though you don't perform tasks by yourself, you " +
		"have a lot of experience in the field, which allows you to properly evaluate the work of your team members."
)

// Crew 代表一组协同完成任务的 Agent。
type Crew struct {
	Name    string
	Agents  []*Agent
	Tasks   []*Task
	Process Process
	// Manager 层级流程的管理者；为空时用 ManagerLLM 构造默认管理者
	Manager    *Agent
	ManagerLLM llm.Provider
	Verbose    bool

	HumanInput HumanInputProvider
	OutputDir  string

	Logger       *zap.Logger
	Observer     Observer
	ToolObserver tools.Observer
	ToolCache    tools.ResultCache
	// TaskCallback 在每个任务完成后调用（异步任务可能并发调用）
	TaskCallback func(runID string, index int, output *TaskOutput)
}

// CrewOutput 是一次 Kickoff 的结果。
type CrewOutput struct {
	RunID       string         `json:"run_id"`
	Raw         string         `json:"raw"`
	JSON        map[string]any `json:"json,omitempty"`
	TasksOutput []*TaskOutput  `json:"tasks_output"`
	TokenUsage  llm.ChatUsage  `json:"token_usage"`
	Duration    time.Duration  `json:"duration"`
}

// String 返回最后一个任务的结果
func (o *CrewOutput) String() string {
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

// Kickoff 以新的运行 ID 执行 crew。
func (c *Crew) Kickoff(ctx context.Context, inputs map[string]any) (*CrewOutput, error) {
	return c.KickoffWithID(ctx, uuid.NewString(), inputs)
}

// KickoffWithID 用 inputs 填充模板并执行全部任务。
// 原始的 Agent 与 Task 不会被修改。
func (c *Crew) KickoffWithID(ctx context.Context, runID string, inputs map[string]any) (out *CrewOutput, err error) {
	start := time.Now()
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "crew"), zap.String("crew", c.Name), zap.String("run_id", runID))
	var observer Observer = nopObserver{}
	if c.Observer != nil {
		observer = c.Observer
	}

	ctx, span := tracer.Start(ctx, "crews.kickoff", trace.WithAttributes(
		attribute.String("crew.name", c.Name),
		attribute.String("crew.run_id", runID),
		attribute.String("crew.process", string(c.process())),
	))
	defer func() {
		observer.ObserveCrewRun(c.Name, statusOf(err), time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("crew run failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		}
		span.End()
	}()

	p, err := c.prepare(inputs)
	if err != nil {
		return nil, err
	}

	usage := &usageCounter{}
	p.attachEnv(&execEnv{
		crew:     c.Name,
		logger:   logger,
		verbose:  c.Verbose,
		observer: observer,
		toolObs:  c.ToolObserver,
		cache:    c.ToolCache,
		usage:    usage,
	})

	logger.Info("crew run started", zap.Int("agents", len(p.agents)), zap.Int("tasks", len(p.tasks)))

	r := &crewRun{
		crew:     c,
		plan:     p,
		runID:    runID,
		logger:   logger,
		observer: observer,
		outputs:  make([]*TaskOutput, len(p.tasks)),
	}
	if err := r.execute(ctx); err != nil {
		return nil, err
	}

	last := r.outputs[len(r.outputs)-1]
	out = &CrewOutput{
		RunID:       runID,
		Raw:         last.Raw,
		JSON:        last.JSON,
		TasksOutput: r.outputs,
		TokenUsage:  usage.total(),
		Duration:    time.Since(start),
	}
	logger.Info("crew run completed",
		zap.Duration("duration", out.Duration),
		zap.Int("total_tokens", out.TokenUsage.TotalTokens))
	return out, nil
}

func (c *Crew) process() Process {
	if c.Process == "" {
		return ProcessSequential
	}
	return c.Process
}

// plan 是 Kickoff 使用的插值副本
type plan struct {
	agents  []*Agent
	tasks   []*Task
	index   map[*Task]int
	manager *Agent
}

func (c *Crew) prepare(inputs map[string]any) (*plan, error) {
	if len(c.Tasks) == 0 {
		return nil, ErrNoTasks
	}
	process := c.process()
	if process != ProcessSequential && process != ProcessHierarchical {
		return nil, fmt.Errorf("unknown process %q", process)
	}

	p := &plan{index: make(map[*Task]int, len(c.Tasks))}
	copies := make(map[*Agent]*Agent)
	copyAgent := func(a *Agent) *Agent {
		if a == nil {
			return nil
		}
		if cp, ok := copies[a]; ok {
			return cp
		}
		cp := *a
		cp.Role = Interpolate(a.Role, inputs)
		cp.Goal = Interpolate(a.Goal, inputs)
		cp.Backstory = Interpolate(a.Backstory, inputs)
		cp.Tools = append([]Tool(nil), a.Tools...)
		cp.env = nil
		copies[a] = &cp
		p.agents = append(p.agents, &cp)
		return &cp
	}
	for _, a := range c.Agents {
		if a == nil {
			return nil, fmt.Errorf("crew %q: nil agent", c.Name)
		}
		copyAgent(a)
	}

	original := make(map[*Task]int, len(c.Tasks))
	p.tasks = make([]*Task, len(c.Tasks))
	for i, t := range c.Tasks {
		if t == nil {
			return nil, fmt.Errorf("crew %q: task %d is nil", c.Name, i+1)
		}
		original[t] = i
		cp := *t
		cp.Description = Interpolate(t.Description, inputs)
		cp.ExpectedOutput = Interpolate(t.ExpectedOutput, inputs)
		cp.OutputFile = Interpolate(t.OutputFile, inputs)
		cp.Agent = copyAgent(t.Agent)
		cp.Context = nil
		p.tasks[i] = &cp
		p.index[&cp] = i
	}

	for i, t := range c.Tasks {
		if t.Context == nil {
			continue
		}
		linked := make([]*Task, 0, len(t.Context))
		for _, ct := range t.Context {
			j, ok := original[ct]
			if !ok {
				return nil, &TaskError{Index: i, Task: t.displayName(), Err: fmt.Errorf("context task is not part of the crew")}
			}
			if j >= i {
				return nil, &TaskError{Index: i, Task: t.displayName(), Err: fmt.Errorf("context task %q does not run before it", ct.displayName())}
			}
			linked = append(linked, p.tasks[j])
		}
		p.tasks[i].Context = linked
	}

	if process == ProcessHierarchical {
		switch {
		case c.Manager != nil:
			m := *c.Manager
			m.AllowDelegation = true
			p.manager = &m
		case c.ManagerLLM != nil:
			p.manager = &Agent{
				Role:            managerRole,
				Goal:            managerGoal,
				Backstory:       managerBackstory,
				AllowDelegation: true,
				LLM:             c.ManagerLLM,
			}
		default:
			return nil, fmt.Errorf("crew %q: hierarchical process requires a manager agent or manager LLM", c.Name)
		}
		if len(p.agents) == 0 {
			return nil, fmt.Errorf("crew %q: hierarchical process requires at least one agent", c.Name)
		}
	} else {
		for i, t := range p.tasks {
			if t.Agent == nil {
				return nil, &TaskError{Index: i, Task: t.displayName(), Err: ErrNoAgent}
			}
		}
	}

	allAsync := true
	for _, t := range p.tasks {
		allAsync = allAsync && t.AsyncExecution
	}
	if last := p.tasks[len(p.tasks)-1]; last.AsyncExecution && !allAsync {
		return nil, fmt.Errorf("crew %q: the last task cannot be asynchronous unless every task is", c.Name)
	}
	return p, nil
}

// attachEnv 为每个 Agent 副本注入运行环境与同事列表。
func (p *plan) attachEnv(base *execEnv) {
	for _, a := range p.agents {
		env := *base
		if a.AllowDelegation {
			for _, other := range p.agents {
				if other != a {
					env.coworkers = append(env.coworkers, other)
				}
			}
		}
		a.env = &env
	}
	if p.manager != nil {
		env := *base
		env.coworkers = append([]*Agent(nil), p.agents...)
		p.manager.env = &env
	}
}

type crewRun struct {
	crew     *Crew
	plan     *plan
	runID    string
	logger   *zap.Logger
	observer Observer

	mu      sync.Mutex
	outputs []*TaskOutput
}

// execute 按顺序执行任务；异步任务在下一个同步任务（或依赖它的任务）之前汇合。
func (r *crewRun) execute(ctx context.Context) error {
	var (
		g       *errgroup.Group
		gctx    context.Context
		pending = map[int]bool{}
	)
	join := func() error {
		if g == nil {
			return nil
		}
		err := g.Wait()
		g, pending = nil, map[int]bool{}
		return err
	}

	for i, t := range r.plan.tasks {
		if r.dependsOnPending(t, pending) {
			if err := join(); err != nil {
				return err
			}
		}
		if t.AsyncExecution {
			if g == nil {
				g, gctx = errgroup.WithContext(ctx)
			}
			taskContext := r.contextFor(i)
			pending[i] = true
			g.Go(func() error { return r.runTask(gctx, i, taskContext) })
			continue
		}
		if err := join(); err != nil {
			return err
		}
		if err := r.runTask(ctx, i, r.contextFor(i)); err != nil {
			return err
		}
	}
	return join()
}

func (r *crewRun) dependsOnPending(t *Task, pending map[int]bool) bool {
	for _, ct := range t.Context {
		if pending[r.plan.index[ct]] {
			return true
		}
	}
	return false
}

// contextFor 汇总任务 i 的上下文：显式 Context，或此前全部已完成的输出。
func (r *crewRun) contextFor(i int) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.plan.tasks[i]
	var parts []string
	if t.Context == nil {
		for j := 0; j < i; j++ {
			if out := r.outputs[j]; out != nil {
				parts = append(parts, out.Raw)
			}
		}
	} else {
		for _, ct := range t.Context {
			if out := r.outputs[r.plan.index[ct]]; out != nil {
				parts = append(parts, out.Raw)
			}
		}
	}
	return strings.Join(parts, contextSeparator)
}

func (r *crewRun) runTask(ctx context.Context, i int, taskContext string) (err error) {
	t := r.plan.tasks[i]
	name := t.displayName()
	start := time.Now()

	ctx, span := tracer.Start(ctx, "crews.task", trace.WithAttributes(
		attribute.String("crew.name", r.crew.Name),
		attribute.String("task.name", name),
		attribute.Int("task.index", i),
		attribute.Bool("task.async", t.AsyncExecution),
	))
	defer func() {
		r.observer.ObserveTask(r.crew.Name, name, time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	executor := t.Agent
	if r.plan.manager != nil {
		executor = r.plan.manager
	}
	r.logger.Info("task started",
		zap.Int("index", i+1),
		zap.String("task", name),
		zap.String("agent", executor.Role),
		zap.Bool("async", t.AsyncExecution))

	out, err := executor.Execute(ctx, t, taskContext)
	if err == nil {
		out, err = r.reviewWithHuman(ctx, executor, t, taskContext, out)
	}
	if err == nil && t.OutputFile != "" {
		out.OutputPath, err = writeOutputFile(r.crew.OutputDir, t.OutputFile, out)
	}
	if err != nil {
		return &TaskError{Index: i, Task: name, Err: err}
	}

	out.Name = t.Name
	out.Duration = time.Since(start)

	r.mu.Lock()
	r.outputs[i] = out
	r.mu.Unlock()

	if r.crew.TaskCallback != nil {
		r.crew.TaskCallback(r.runID, i, out)
	}
	r.logger.Info("task completed",
		zap.Int("index", i+1),
		zap.String("task", name),
		zap.String("agent", out.Agent),
		zap.String("output_path", out.OutputPath),
		zap.Duration("duration", out.Duration))
	return nil
}

// reviewWithHuman 收集人工反馈；非空反馈触发重做，最多 MaxFeedbackRounds 轮。
func (r *crewRun) reviewWithHuman(ctx context.Context, a *Agent, t *Task, taskContext string, out *TaskOutput) (*TaskOutput, error) {
	if !t.HumanInput || r.crew.HumanInput == nil {
		return out, nil
	}
	usage := out.TokenUsage
	for round := 1; round <= MaxFeedbackRounds; round++ {
		feedback, err := r.crew.HumanInput.Feedback(ctx, t, out)
		if err != nil {
			return nil, fmt.Errorf("read human feedback: %w", err)
		}
		feedback = strings.TrimSpace(feedback)
		if feedback == "" {
			break
		}
		r.logger.Info("revising task with human feedback", zap.String("task", t.displayName()), zap.Int("round", round))

		revised := feedbackPrompt(out.Raw, feedback)
		if taskContext != "" {
			revised = taskContext + contextSeparator + revised
		}
		next, err := a.Execute(ctx, t, revised)
		if err != nil {
			return nil, err
		}
		usage.Add(next.TokenUsage)
		out = next
	}
	out.TokenUsage = usage
	return out, nil
}

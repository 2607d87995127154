package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/BaSui01/crewflow/agent/crews"
	"github.com/BaSui01/crewflow/catalog"
	"github.com/BaSui01/crewflow/config"
	"github.com/BaSui01/crewflow/internal/ctxkeys"
	"github.com/BaSui01/crewflow/llm/tools"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrBusy 并发运行数已达上限
var ErrBusy = errors.New("too many concurrent crew runs")

// RunStore 持久化运行记录，由 internal/runstore 实现。
type RunStore interface {
	Start(ctx context.Context, id, crew string, inputs map[string]any) error
	RecordTask(ctx context.Context, runID string, index int, out *crews.TaskOutput) error
	Finish(ctx context.Context, id string, out *crews.CrewOutput, runErr error) error
}

// Options 配置 Runner。
type Options struct {
	// Deps 是构建 crew 的模板，Inputs 在每次运行时替换
	Deps         catalog.Deps
	Crew         config.CrewConfig
	Cache        tools.ResultCache
	Store        RunStore
	Observer     crews.Observer
	ToolObserver tools.Observer
	// MaxConcurrent 为 0 时不限制
	MaxConcurrent int
	// IsolateOutputs 为 true 时每次运行写入 <output_dir>/<run_id>，并发运行互不覆盖输出文件
	IsolateOutputs bool
	Logger         *zap.Logger
}

// Request 描述一次 kickoff。
type Request struct {
	Crew   string
	Inputs map[string]any
	// Human 为 nil 或配置关闭人工输入时自动接受
	Human crews.HumanInputProvider
	// Out 接收 AfterRun 的输出，nil 时丢弃
	Out io.Writer
	// OnTask 在每个任务完成后调用；异步任务可能并发调用
	OnTask func(index int, out *crews.TaskOutput)
}

// Result 是一次 kickoff 的结果；失败时 RunID 仍然有效。
type Result struct {
	RunID  string            `json:"run_id"`
	Crew   string            `json:"crew"`
	Inputs map[string]any    `json:"inputs"`
	Output *crews.CrewOutput `json:"output,omitempty"`
	// OutputDir 是本次运行写出文件的目录
	OutputDir string `json:"output_dir,omitempty"`
}

// Runner 执行目录中的 crew。
type Runner struct {
	opts   Options
	sem    chan struct{}
	logger *zap.Logger
	newID  func() string
}

// New 创建 Runner。
func New(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		opts:   opts,
		logger: logger.With(zap.String("component", "runner")),
		newID:  uuid.NewString,
	}
	if opts.MaxConcurrent > 0 {
		r.sem = make(chan struct{}, opts.MaxConcurrent)
	}
	return r
}

// Kickoff 构建并运行 req.Crew，成功后执行 AfterRun。
func (r *Runner) Kickoff(ctx context.Context, req Request) (*Result, error) {
	entry, err := catalog.Lookup(req.Crew)
	if err != nil {
		return nil, err
	}

	if r.sem != nil {
		select {
		case r.sem <- struct{}{}:
			defer func() { <-r.sem }()
		default:
			return nil, ErrBusy
		}
	}

	inputs := entry.Inputs(req.Inputs)
	deps := r.opts.Deps
	deps.Inputs = inputs
	if deps.Logger == nil {
		deps.Logger = r.logger
	}
	crew, err := entry.Build(deps)
	if err != nil {
		return nil, fmt.Errorf("build crew %s: %w", entry.Name, err)
	}
	res := &Result{RunID: r.newID(), Crew: entry.Name, Inputs: inputs}
	r.configure(crew, req, res.RunID)
	res.OutputDir = crew.OutputDir
	ctx = ctxkeys.WithRunID(ctx, res.RunID)
	logger := r.logger.With(zap.String("crew", entry.Name), zap.String("run_id", res.RunID))
	if reqID, ok := ctxkeys.RequestID(ctx); ok {
		logger = logger.With(zap.String("request_id", reqID))
	}
	if sub, ok := ctxkeys.Subject(ctx); ok {
		logger = logger.With(zap.String("subject", sub))
	}

	// 运行记录写入不应因请求取消而丢失
	storeCtx := context.WithoutCancel(ctx)
	if r.opts.Store != nil {
		if err := r.opts.Store.Start(storeCtx, res.RunID, entry.Name, inputs); err != nil {
			logger.Warn("failed to record run start", zap.Error(err))
		}
	}
	if r.opts.Store != nil || req.OnTask != nil {
		crew.TaskCallback = func(runID string, index int, out *crews.TaskOutput) {
			if r.opts.Store != nil {
				if err := r.opts.Store.RecordTask(storeCtx, runID, index, out); err != nil {
					logger.Warn("failed to record task output", zap.String("task", out.Name), zap.Error(err))
				}
			}
			if req.OnTask != nil {
				req.OnTask(index, out)
			}
		}
	}

	start := time.Now()
	out, runErr := crew.KickoffWithID(ctx, res.RunID, inputs)
	res.Output = out

	if r.opts.Store != nil {
		if err := r.opts.Store.Finish(storeCtx, res.RunID, out, runErr); err != nil {
			logger.Warn("failed to record run result", zap.Error(err))
		}
	}
	if runErr != nil {
		logger.Error("crew run failed", zap.Duration("duration", time.Since(start)), zap.Error(runErr))
		return res, runErr
	}
	logger.Info("crew run finished",
		zap.Duration("duration", time.Since(start)),
		zap.Int("total_tokens", out.TokenUsage.TotalTokens))

	if entry.AfterRun != nil {
		w := req.Out
		if w == nil {
			w = io.Discard
		}
		if err := entry.AfterRun(out, crew.OutputDir, w); err != nil {
			return res, fmt.Errorf("crew %s post-processing: %w", entry.Name, err)
		}
	}
	return res, nil
}

func (r *Runner) configure(crew *crews.Crew, req Request, runID string) {
	cfg := r.opts.Crew
	if cfg.OutputDir != "" {
		crew.OutputDir = cfg.OutputDir
	}
	if r.opts.IsolateOutputs {
		base := crew.OutputDir
		if base == "" {
			base = "."
		}
		crew.OutputDir = filepath.Join(base, runID)
	}
	crew.Verbose = crew.Verbose || cfg.Verbose
	crew.HumanInput = crews.AutoApprove{}
	if cfg.HumanInput && req.Human != nil {
		crew.HumanInput = req.Human
	}
	crew.Logger = r.logger
	if r.opts.Observer != nil {
		crew.Observer = r.opts.Observer
	}
	if r.opts.ToolObserver != nil {
		crew.ToolObserver = r.opts.ToolObserver
	}
	if r.opts.Cache != nil {
		crew.ToolCache = r.opts.Cache
	}
}

// CrewInfo 描述目录中的一个 crew。
type CrewInfo struct {
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	DefaultInputs map[string]any `json:"default_inputs"`
}

// Crews 列出所有可运行的 crew。
func (r *Runner) Crews() []CrewInfo {
	names := catalog.Names()
	out := make([]CrewInfo, 0, len(names))
	for _, name := range names {
		e, err := catalog.Lookup(name)
		if err != nil {
			continue
		}
		out = append(out, CrewInfo{Name: e.Name, Description: e.Description, DefaultInputs: e.Inputs(nil)})
	}
	return out
}

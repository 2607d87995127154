package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/BaSui01/crewflow/agent/crews"
	"github.com/BaSui01/crewflow/catalog"
	"github.com/BaSui01/crewflow/internal/runner"
	"github.com/BaSui01/crewflow/llm"
	"go.uber.org/zap"
)

// Kickoffer 执行目录中的 crew，由 runner.Runner 实现
type Kickoffer interface {
	Kickoff(ctx context.Context, req runner.Request) (*runner.Result, error)
	Crews() []runner.CrewInfo
}

// KickoffRequest kickoff 请求体；inputs 覆盖 crew 的默认输入
type KickoffRequest struct {
	Inputs map[string]any `json:"inputs,omitempty"`
}

// TaskResult 单个任务的输出
type TaskResult struct {
	Name       string         `json:"name"`
	Agent      string         `json:"agent"`
	Raw        string         `json:"raw"`
	JSON       map[string]any `json:"json,omitempty"`
	OutputPath string         `json:"output_path,omitempty"`
	Duration   string         `json:"duration"`
}

// KickoffResponse kickoff 结果
type KickoffResponse struct {
	RunID      string         `json:"run_id"`
	Crew       string         `json:"crew"`
	Inputs     map[string]any `json:"inputs"`
	OutputDir  string         `json:"output_dir,omitempty"`
	Raw        string         `json:"raw"`
	JSON       map[string]any `json:"json,omitempty"`
	Tasks      []TaskResult   `json:"tasks"`
	TokenUsage llm.ChatUsage  `json:"token_usage"`
	Duration   string         `json:"duration"`
}

// CrewHandler crew 目录与 kickoff 处理器
type CrewHandler struct {
	runner Kickoffer
	logger *zap.Logger
}

// NewCrewHandler 创建 CrewHandler
func NewCrewHandler(r Kickoffer, logger *zap.Logger) *CrewHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CrewHandler{runner: r, logger: logger.With(zap.String("component", "crew_handler"))}
}

// HandleListCrews 处理 GET /api/v1/crews
func (h *CrewHandler) HandleListCrews(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.runner.Crews())
}

// HandleKickoff 处理 POST /api/v1/crews/{name}/kickoff。
// 运行是同步的，且不会请求人工反馈。
func (h *CrewHandler) HandleKickoff(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		WriteErrorMessage(w, http.StatusBadRequest, CodeInvalidRequest, "crew name is required", h.logger)
		return
	}

	var req KickoffRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	res, err := h.runner.Kickoff(r.Context(), runner.Request{Crew: name, Inputs: req.Inputs})
	if err != nil {
		h.writeRunError(w, res, err)
		return
	}
	WriteSuccess(w, toKickoffResponse(res))
}

func (h *CrewHandler) writeRunError(w http.ResponseWriter, res *runner.Result, err error) {
	status, info := runError(res, err)
	WriteError(w, status, info, h.logger)
}

// runError 把 kickoff 错误映射为 HTTP 状态码与错误信息
func runError(res *runner.Result, err error) (int, *ErrorInfo) {
	info := &ErrorInfo{Code: CodeCrewFailed, Message: err.Error()}
	if res != nil && res.RunID != "" {
		info.Details = map[string]any{"run_id": res.RunID}
	}

	status := http.StatusInternalServerError
	var llmErr *llm.Error
	switch {
	case errors.Is(err, catalog.ErrUnknownCrew):
		status, info.Code = http.StatusNotFound, CodeNotFound
	case errors.Is(err, runner.ErrBusy):
		status, info.Code, info.Retryable = http.StatusTooManyRequests, CodeTooManyRuns, true
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.As(err, &llmErr):
		status, info.Code, info.Retryable = llmStatus(llmErr), string(llmErr.Code), llmErr.Retryable
	}
	return status, info
}

// llmStatus 把上游 LLM 错误映射为网关类状态码
func llmStatus(e *llm.Error) int {
	switch {
	case e.Code == llm.ErrProviderUnavailable:
		return http.StatusServiceUnavailable
	case e.HTTPStatus == http.StatusGatewayTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func toKickoffResponse(res *runner.Result) KickoffResponse {
	resp := KickoffResponse{
		RunID:     res.RunID,
		Crew:      res.Crew,
		Inputs:    res.Inputs,
		OutputDir: res.OutputDir,
		Tasks:     []TaskResult{},
	}
	out := res.Output
	if out == nil {
		return resp
	}
	resp.Raw = out.Raw
	resp.JSON = out.JSON
	resp.TokenUsage = out.TokenUsage
	resp.Duration = out.Duration.Round(time.Millisecond).String()
	for _, t := range out.TasksOutput {
		resp.Tasks = append(resp.Tasks, toTaskResult(t))
	}
	return resp
}

func toTaskResult(t *crews.TaskOutput) TaskResult {
	return TaskResult{
		Name:       t.Name,
		Agent:      t.Agent,
		Raw:        t.Raw,
		JSON:       t.JSON,
		OutputPath: t.OutputPath,
		Duration:   t.Duration.Round(time.Millisecond).String(),
	}
}

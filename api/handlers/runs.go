package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/BaSui01/crewflow/internal/runstore"
	"go.uber.org/zap"
)

// RunReader 读取运行记录，由 runstore.Store 实现
type RunReader interface {
	Get(ctx context.Context, id string) (*runstore.RunRecord, error)
	List(ctx context.Context, crew string, limit int) ([]runstore.RunRecord, error)
}

// RunHandler 运行记录查询处理器
type RunHandler struct {
	store  RunReader
	logger *zap.Logger
}

// NewRunHandler 创建 RunHandler
func NewRunHandler(store RunReader, logger *zap.Logger) *RunHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunHandler{store: store, logger: logger.With(zap.String("component", "run_handler"))}
}

// HandleListRuns 处理 GET /api/v1/runs?crew=&limit=
func (h *RunHandler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			WriteErrorMessage(w, http.StatusBadRequest, CodeInvalidRequest, "limit must be a non-negative integer", h.logger)
			return
		}
		limit = n
	}

	runs, err := h.store.List(r.Context(), q.Get("crew"), limit)
	if err != nil {
		WriteErrorMessage(w, http.StatusInternalServerError, CodeInternal, err.Error(), h.logger)
		return
	}
	if runs == nil {
		runs = []runstore.RunRecord{}
	}
	WriteSuccess(w, runs)
}

// HandleGetRun 处理 GET /api/v1/runs/{id}
func (h *RunHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := h.store.Get(r.Context(), id)
	if errors.Is(err, runstore.ErrNotFound) {
		WriteErrorMessage(w, http.StatusNotFound, CodeNotFound, err.Error(), h.logger)
		return
	}
	if err != nil {
		WriteErrorMessage(w, http.StatusInternalServerError, CodeInternal, err.Error(), h.logger)
		return
	}
	WriteSuccess(w, run)
}

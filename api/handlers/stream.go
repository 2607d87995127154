package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/BaSui01/crewflow/agent/crews"
	"github.com/BaSui01/crewflow/internal/runner"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

const (
	streamReadTimeout  = 30 * time.Second
	streamWriteTimeout = 10 * time.Second
)

// 流事件类型
const (
	EventTask   = "task"
	EventResult = "result"
	EventError  = "error"
)

// StreamEvent 是 websocket 上发送的一条消息
type StreamEvent struct {
	Type   string           `json:"type"`
	Index  *int             `json:"index,omitempty"`
	Task   *TaskResult      `json:"task,omitempty"`
	Result *KickoffResponse `json:"result,omitempty"`
	Status int              `json:"status,omitempty"`
	Error  *ErrorInfo       `json:"error,omitempty"`
}

// StreamHandler 通过 websocket 运行 crew 并推送任务进度。
//
// 客户端连接后先发送一条 KickoffRequest，随后依次收到每个完成任务的
// task 事件，最后是 result 或 error 事件，服务端随即正常关闭连接。
type StreamHandler struct {
	runner Kickoffer
	logger *zap.Logger
	// OriginPatterns 允许的跨域来源；为空时只接受同源
	OriginPatterns []string
}

// NewStreamHandler 创建 StreamHandler
func NewStreamHandler(r Kickoffer, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{runner: r, logger: logger.With(zap.String("component", "stream_handler"))}
}

// streamConn 串行化 websocket 写操作；异步任务的回调可能并发到达
type streamConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *streamConn) send(ctx context.Context, ev StreamEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.conn, ev)
}

// HandleStream 处理 GET /api/v1/crews/{name}/stream
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.OriginPatterns})
	if err != nil {
		// Accept 已写出错误响应
		h.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()
	sc := &streamConn{conn: conn}

	readCtx, cancel := context.WithTimeout(r.Context(), streamReadTimeout)
	req, err := readKickoffRequest(readCtx, conn)
	cancel()
	if err != nil {
		h.logger.Debug("failed to read kickoff request", zap.Error(err))
		_ = sc.send(r.Context(), StreamEvent{
			Type:   EventError,
			Status: http.StatusBadRequest,
			Error:  &ErrorInfo{Code: CodeInvalidRequest, Message: "first message must be a JSON kickoff request"},
		})
		_ = conn.Close(websocket.StatusUnsupportedData, "invalid kickoff request")
		return
	}

	// 客户端断开时取消运行
	ctx := conn.CloseRead(r.Context())

	res, err := h.runner.Kickoff(ctx, runner.Request{
		Crew:   name,
		Inputs: req.Inputs,
		OnTask: func(index int, out *crews.TaskOutput) {
			task := toTaskResult(out)
			if err := sc.send(ctx, StreamEvent{Type: EventTask, Index: &index, Task: &task}); err != nil {
				h.logger.Debug("failed to send task event", zap.String("task", out.Name), zap.Error(err))
			}
		},
	})
	if err != nil {
		status, info := runError(res, err)
		h.logger.Warn("streamed crew run failed", zap.String("crew", name), zap.Int("status", status), zap.Error(err))
		_ = sc.send(ctx, StreamEvent{Type: EventError, Status: status, Error: info})
		_ = conn.Close(websocket.StatusNormalClosure, "run failed")
		return
	}

	result := toKickoffResponse(res)
	if err := sc.send(ctx, StreamEvent{Type: EventResult, Result: &result}); err != nil {
		h.logger.Debug("failed to send result", zap.Error(err))
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func readKickoffRequest(ctx context.Context, conn *websocket.Conn) (KickoffRequest, error) {
	var req KickoffRequest
	typ, data, err := conn.Read(ctx)
	if err != nil {
		return req, err
	}
	if typ != websocket.MessageText {
		return req, fmt.Errorf("expected text message, got %v", typ)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("decode kickoff request: %w", err)
	}
	return req, nil
}

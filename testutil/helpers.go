// 提供通用的测试辅助函数和断言
package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BaSui01/crewflow/llm"
)

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	t.Helper()
	return TestContextWithTimeout(t, 30*time.Second)
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// MustJSON 将值序列化为 JSON，失败时终止测试
func MustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

// CollectStreamContent 读取流直到关闭，返回拼接内容和第一个错误
func CollectStreamContent(ch <-chan llm.StreamChunk) (string, *llm.Error) {
	var content string
	for chunk := range ch {
		if chunk.Err != nil {
			return content, chunk.Err
		}
		content += chunk.Delta.Content
	}
	return content, nil
}

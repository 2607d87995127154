package crews

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// HumanInputProvider 在任务完成后收集人工反馈；返回空字符串表示接受。
type HumanInputProvider interface {
	Feedback(ctx context.Context, task *Task, output *TaskOutput) (string, error)
}

// ConsoleHumanInput 打印任务结果并从 In 读取一行反馈。
// 输入由单个后台 goroutine 按行读取；被取消的 Feedback 不会丢失或抢占下一行。
type ConsoleHumanInput struct {
	mu     sync.Mutex
	out    io.Writer
	reader *bufio.Reader

	start   sync.Once
	lines   chan string
	readErr error // 在 lines 关闭前写入
}

// NewConsoleHumanInput 创建控制台反馈提供者。
func NewConsoleHumanInput(in io.Reader, out io.Writer) *ConsoleHumanInput {
	return &ConsoleHumanInput{out: out, reader: bufio.NewReader(in), lines: make(chan string)}
}

// readLines 持续读取输入直到 EOF 或出错，然后关闭 lines。
func (c *ConsoleHumanInput) readLines() {
	defer close(c.lines)
	for {
		line, err := c.reader.ReadString('\n')
		if line != "" || err == nil {
			c.lines <- line
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.readErr = err
			}
			return
		}
	}
}

func (c *ConsoleHumanInput) Feedback(ctx context.Context, task *Task, output *TaskOutput) (string, error) {
	// 异步任务可能同时请求反馈，串行化终端交互
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	fmt.Fprintf(c.out, "\n\n## Task: %s\n## Agent: %s\n## Final Result:\n%s\n\n", task.displayName(), output.Agent, output.String())
	fmt.Fprint(c.out, "=====\n## Provide feedback on the Final Result, or press Enter to accept it:\n=====\n> ")

	c.start.Do(func() { go c.readLines() })

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			// EOF 视为接受
			return "", c.readErr
		}
		return strings.TrimSpace(line), nil
	}
}

// AutoApprove 总是接受任务输出。
type AutoApprove struct{}

func (AutoApprove) Feedback(context.Context, *Task, *TaskOutput) (string, error) { return "", nil }

// ScriptedHumanInput 按顺序返回预设的反馈，用尽后接受。
type ScriptedHumanInput struct {
	mu        sync.Mutex
	responses []string
}

// NewScriptedHumanInput 创建预设反馈提供者。
func NewScriptedHumanInput(responses ...string) *ScriptedHumanInput {
	return &ScriptedHumanInput{responses: responses}
}

func (s *ScriptedHumanInput) Feedback(context.Context, *Task, *TaskOutput) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.responses) == 0 {
		return "", nil
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	return next, nil
}

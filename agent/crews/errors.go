package crews

import (
	"errors"
	"fmt"
)

var (
	// ErrNoAgent 顺序流程中任务没有指定执行者
	ErrNoAgent = errors.New("task has no agent")
	// ErrMaxIterations 达到最大迭代次数后仍未得到最终答案
	ErrMaxIterations = errors.New("max iterations reached without a final answer")
	// ErrInvalidOutput 最终答案无法解析为要求的结构
	ErrInvalidOutput = errors.New("final answer does not match the output schema")
	// ErrNoTasks crew 中没有任务
	ErrNoTasks = errors.New("crew has no tasks")
)

// TaskError wraps a failure with the task that caused it.
type TaskError struct {
	Index int
	Task  string
	Err   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %d (%s) failed: %v", e.Index+1, e.Task, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

package engine

import (
	"fmt"
	"time"

	"yqhp/taskflow/pkg/types"
)

// TimeoutError is the cancellation cause when an execution exceeds its timeout.
type TimeoutError struct {
	ExecutionID string
	Timeout     time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution %s timed out after %s", e.ExecutionID, e.Timeout)
}

// Kind implements types.KindedError.
func (e *TimeoutError) Kind() types.ErrorKind {
	return types.ErrKindTimeout
}

// CancellationError is the cancellation cause when an execution is cancelled.
type CancellationError struct {
	ExecutionID string
}

// Error implements the error interface.
func (e *CancellationError) Error() string {
	return fmt.Sprintf("execution %s cancelled", e.ExecutionID)
}

// Kind implements types.KindedError.
func (e *CancellationError) Kind() types.ErrorKind {
	return types.ErrKindCancelled
}

// NodeError 记录节点的最终失败：节点 ID、尝试次数和最后一次错误。
// 分类（Kind）沿 Unwrap 链从 Cause 中取得。
type NodeError struct {
	NodeID   string
	Action   string
	Attempts int
	Cause    error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s (%s) failed after %d attempt(s): %v", e.NodeID, e.Action, e.Attempts, e.Cause)
}

// Unwrap returns the underlying error.
func (e *NodeError) Unwrap() error {
	return e.Cause
}

// FallbackError 表示降级动作也失败了，同时保留主动作的最后一次错误。
type FallbackError struct {
	Fallback string
	Primary  error
	Cause    error
}

// Error implements the error interface.
func (e *FallbackError) Error() string {
	return fmt.Sprintf("fallback %s failed: %v (primary error: %v)", e.Fallback, e.Cause, e.Primary)
}

// Unwrap returns the fallback error.
func (e *FallbackError) Unwrap() error {
	return e.Cause
}

// FailFastError is reported through OnExecutionError when fail-fast aborts an execution.
type FailFastError struct {
	NodeID string
	Cause  error
}

// Error implements the error interface.
func (e *FailFastError) Error() string {
	return fmt.Sprintf("fail-fast: execution aborted after node %s failed: %v", e.NodeID, e.Cause)
}

// Unwrap returns the underlying error.
func (e *FailFastError) Unwrap() error {
	return e.Cause
}

// PanicError wraps a panic raised by an action.
type PanicError struct {
	Action string
	Value  any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("action panicked: %v", e.Value)
	}
	return fmt.Sprintf("action %s panicked: %v", e.Action, e.Value)
}

// Kind implements types.KindedError.
func (e *PanicError) Kind() types.ErrorKind {
	return types.ErrKindActionExecution
}

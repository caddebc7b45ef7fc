// Package capability defines how the engine invokes actions.
//
// The engine only sees the Capability interface; concrete actions live in a
// Registry and are looked up by name at invocation time, so new actions can be
// registered without touching the engine.
package capability

import (
	"context"
	"errors"
	"fmt"

	"yqhp/taskflow/pkg/types"
)

// Result 表示一次能力调用的结果。
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// NewSuccessResult creates a successful result.
func NewSuccessResult(message string, data any) *Result {
	return &Result{
		Success: true,
		Message: message,
		Data:    data,
	}
}

// NewFailureResult creates a failure result.
func NewFailureResult(message string) *Result {
	return &Result{
		Success: false,
		Message: message,
	}
}

// Capability 是引擎调用动作的唯一入口。
type Capability interface {
	Invoke(ctx context.Context, action string, params map[string]any) (*Result, error)
}

// CapabilityFunc adapts a function to the Capability interface.
type CapabilityFunc func(ctx context.Context, action string, params map[string]any) (*Result, error)

// Invoke implements Capability.
func (f CapabilityFunc) Invoke(ctx context.Context, action string, params map[string]any) (*Result, error) {
	return f(ctx, action, params)
}

// ActionError 表示能力调用失败，Code 用于区分未注册、执行失败、超时和取消。
type ActionError struct {
	Code    types.ErrorKind
	Action  string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ActionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] action %s: %s: %v", e.Code, e.Action, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] action %s: %s", e.Code, e.Action, e.Message)
}

// Unwrap returns the underlying error.
func (e *ActionError) Unwrap() error {
	return e.Cause
}

// Kind implements types.KindedError.
func (e *ActionError) Kind() types.ErrorKind {
	return e.Code
}

// NewActionNotFoundError creates an error for an unregistered action.
func NewActionNotFoundError(action string) *ActionError {
	return &ActionError{
		Code:    types.ErrKindActionNotFound,
		Action:  action,
		Message: "no capability registered for action",
	}
}

// NewActionExecutionError wraps an error returned by an action.
func NewActionExecutionError(action, message string, cause error) *ActionError {
	kind := types.ErrKindActionExecution
	if cause != nil {
		if k := types.KindOf(cause); k == types.ErrKindTimeout || k == types.ErrKindCancelled {
			kind = k
		}
	}
	return &ActionError{
		Code:    kind,
		Action:  action,
		Message: message,
		Cause:   cause,
	}
}

// Call 调用能力并把结果规范化：成功时返回数据，否则返回 *ActionError。
func Call(ctx context.Context, c Capability, action string, params map[string]any) (any, error) {
	result, err := c.Invoke(ctx, action, params)
	if err != nil {
		var ae *ActionError
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, NewActionExecutionError(action, "invocation failed", err)
	}
	if result == nil {
		return nil, NewActionExecutionError(action, "action returned no result", nil)
	}
	if !result.Success {
		msg := result.Message
		if msg == "" {
			msg = "action reported failure"
		}
		return nil, NewActionExecutionError(action, msg, nil)
	}
	return result.Data, nil
}

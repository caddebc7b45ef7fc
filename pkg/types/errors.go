package types

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind 对失败进行分类，NodeOutcome 和 ValidationReport 都使用它。
type ErrorKind string

const (
	// ErrKindCircularDependency 任务图中存在环。
	ErrKindCircularDependency ErrorKind = "CIRCULAR_DEPENDENCY"
	// ErrKindValidation 任务图或网模型结构不合法。
	ErrKindValidation ErrorKind = "VALIDATION"
	// ErrKindCircuitOpen 熔断器处于打开状态，调用被拒绝。
	ErrKindCircuitOpen ErrorKind = "CIRCUIT_OPEN"
	// ErrKindActionExecution 能力调用返回了错误。
	ErrKindActionExecution ErrorKind = "ACTION_EXECUTION"
	// ErrKindActionNotFound 没有注册对应名称的能力。
	ErrKindActionNotFound ErrorKind = "ACTION_NOT_FOUND"
	// ErrKindTimeout 执行超时。
	ErrKindTimeout ErrorKind = "TIMEOUT"
	// ErrKindCancelled 执行被取消。
	ErrKindCancelled ErrorKind = "CANCELLED"
	// ErrKindMalformedNet 网模型不满足单源点/汇点约束。
	ErrKindMalformedNet ErrorKind = "MALFORMED_NET"
	// ErrKindStateBoundExceeded 状态空间探索或仿真步数达到上限。
	ErrKindStateBoundExceeded ErrorKind = "STATE_BOUND_EXCEEDED"
	// ErrKindAmbiguousChoice 确定性仿真遇到多个可触发变迁。
	ErrKindAmbiguousChoice ErrorKind = "AMBIGUOUS_CHOICE"
)

// KindedError is implemented by every typed error in taskflow.
type KindedError interface {
	error
	Kind() ErrorKind
}

// KindOf 返回错误链上第一个带分类的错误类型。
// context.Canceled / context.DeadlineExceeded 分别映射为 CANCELLED / TIMEOUT。
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var kinded KindedError
	if errors.As(err, &kinded) {
		return kinded.Kind()
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrKindTimeout
	case errors.Is(err, context.Canceled):
		return ErrKindCancelled
	}
	return ErrKindActionExecution
}

// ValidationError represents a structural problem in a task graph, intent list
// or net model.
type ValidationError struct {
	Field   string // Field that failed validation
	Message string // Error message
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Kind implements KindedError.
func (e *ValidationError) Kind() ErrorKind {
	return ErrKindValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// StateBoundExceededError 表示可达性分析或仿真触达了配置的上限。
// 它只作为报告的一部分返回，不会中断调用方。
type StateBoundExceededError struct {
	Bound    int
	Explored int
	What     string // "states" or "steps"
}

// Error implements the error interface.
func (e *StateBoundExceededError) Error() string {
	return fmt.Sprintf("%s bound %d exceeded after exploring %d", e.What, e.Bound, e.Explored)
}

// Kind implements KindedError.
func (e *StateBoundExceededError) Kind() ErrorKind {
	return ErrKindStateBoundExceeded
}

// IsValidationError checks if the error is a validation error.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

package petri

import (
	"errors"
	"fmt"

	"yqhp/taskflow/pkg/types"
)

// MalformedNetError 表示网不满足单源点、至少一个汇点的结构约束。
type MalformedNetError struct {
	NetID  string
	Reason string
}

// Error implements the error interface.
func (e *MalformedNetError) Error() string {
	return fmt.Sprintf("malformed net %q: %s", e.NetID, e.Reason)
}

// Kind implements types.KindedError.
func (e *MalformedNetError) Kind() types.ErrorKind {
	return types.ErrKindMalformedNet
}

// IsMalformedNet checks if the error is a malformed net error.
func IsMalformedNet(err error) bool {
	var me *MalformedNetError
	return errors.As(err, &me)
}

// NotEnabledError is returned by Fire when the transition lacks input tokens.
type NotEnabledError struct {
	TransitionID string
	Marking      Marking
}

// Error implements the error interface.
func (e *NotEnabledError) Error() string {
	return fmt.Sprintf("transition %q is not enabled in marking %s", e.TransitionID, e.Marking)
}

// Kind implements types.KindedError.
func (e *NotEnabledError) Kind() types.ErrorKind {
	return types.ErrKindValidation
}

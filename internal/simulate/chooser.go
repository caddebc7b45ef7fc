package simulate

import (
	"context"
	"errors"
	"fmt"

	"yqhp/taskflow/internal/petri"
	"yqhp/taskflow/pkg/types"
)

// Choice 是提供给选择器的候选变迁。
type Choice struct {
	TransitionID string `json:"transition_id"`
	Label        string `json:"label,omitempty"`
	Action       string `json:"action,omitempty"`
}

// ChoiceRequest 仿真在排他选择处挂起时发出的请求。
type ChoiceRequest struct {
	RunID   string        `json:"run_id"`
	Step    int           `json:"step"`
	Marking petri.Marking `json:"marking"`
	Options []Choice      `json:"options"`
}

// Chooser 在交互模式下决定下一个触发的变迁。
// 返回值可以是变迁 ID 或 guard 标签；ctx 取消时应尽快返回 ctx.Err()。
type Chooser interface {
	Choose(ctx context.Context, req ChoiceRequest) (string, error)
}

// ChooserFunc adapts a function to the Chooser interface.
type ChooserFunc func(ctx context.Context, req ChoiceRequest) (string, error)

// Choose implements Chooser.
func (f ChooserFunc) Choose(ctx context.Context, req ChoiceRequest) (string, error) {
	return f(ctx, req)
}

// ErrChooserClosed is returned when the ChannelChooser was closed while waiting.
var ErrChooserClosed = errors.New("chooser closed")

// ChannelChooser 基于通道的选择器：请求从 Requests 读出，答案通过 Answer 写回。
type ChannelChooser struct {
	requests chan ChoiceRequest
	answers  chan string
	done     chan struct{}
}

// NewChannelChooser creates a ChannelChooser.
func NewChannelChooser() *ChannelChooser {
	return &ChannelChooser{
		requests: make(chan ChoiceRequest),
		answers:  make(chan string),
		done:     make(chan struct{}),
	}
}

// Requests returns the channel of pending choice requests.
func (c *ChannelChooser) Requests() <-chan ChoiceRequest {
	return c.requests
}

// Answer 提交选择，阻塞直到仿真取走答案或 ctx 结束。
func (c *ChannelChooser) Answer(ctx context.Context, choice string) error {
	select {
	case c.answers <- choice:
		return nil
	case <-c.done:
		return ErrChooserClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 关闭选择器，挂起中的 Choose 返回 ErrChooserClosed。只能调用一次。
func (c *ChannelChooser) Close() {
	close(c.done)
}

// Choose implements Chooser.
func (c *ChannelChooser) Choose(ctx context.Context, req ChoiceRequest) (string, error) {
	select {
	case c.requests <- req:
	case <-c.done:
		return "", ErrChooserClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case choice := <-c.answers:
		return choice, nil
	case <-c.done:
		return "", ErrChooserClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// AmbiguousChoiceError 确定性模式遇到排他选择且没有可用的预设决策。
type AmbiguousChoiceError struct {
	Step    int
	Enabled []string
}

// Error implements the error interface.
func (e *AmbiguousChoiceError) Error() string {
	return fmt.Sprintf("ambiguous choice at step %d: %d transitions enabled %v", e.Step, len(e.Enabled), e.Enabled)
}

// Kind implements types.KindedError.
func (e *AmbiguousChoiceError) Kind() types.ErrorKind {
	return types.ErrKindAmbiguousChoice
}

// InvalidChoiceError 选择器返回的值不对应任何候选变迁。
type InvalidChoiceError struct {
	Step    int
	Choice  string
	Options []string
}

// Error implements the error interface.
func (e *InvalidChoiceError) Error() string {
	return fmt.Sprintf("invalid choice %q at step %d, expected one of %v", e.Choice, e.Step, e.Options)
}

// Kind implements types.KindedError.
func (e *InvalidChoiceError) Kind() types.ErrorKind {
	return types.ErrKindValidation
}

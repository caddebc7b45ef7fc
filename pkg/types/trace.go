package types

import "time"

// TraceEventType 追踪事件类型。
type TraceEventType string

const (
	TraceEventStart    TraceEventType = "start"
	TraceEventAttempt  TraceEventType = "attempt"
	TraceEventComplete TraceEventType = "complete"
	TraceEventSkip     TraceEventType = "skip"
	TraceEventError    TraceEventType = "error"
)

// TraceEvent 是执行追踪中的一条事件，追加后不可修改。
// NodeID 为空表示执行级别的事件。
type TraceEvent struct {
	Seq         uint64         `json:"seq"`
	ExecutionID string         `json:"execution_id"`
	NodeID      string         `json:"node_id,omitempty"`
	Type        TraceEventType `json:"type"`
	Action      string         `json:"action,omitempty"`
	Attempt     int            `json:"attempt,omitempty"`
	Fallback    bool           `json:"fallback,omitempty"`
	Message     string         `json:"message,omitempty"`
	Kind        ErrorKind      `json:"error_kind,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// TraceSink 是可解释性/追踪存储的接口。
type TraceSink interface {
	// Append 追加事件并返回带序号的副本
	Append(event TraceEvent) TraceEvent
	// Trace 返回某次执行的完整有序事件
	Trace(executionID string) []TraceEvent
}

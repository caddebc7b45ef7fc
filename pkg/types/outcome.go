package types

import "time"

// OutcomeStatus 节点的终态。
type OutcomeStatus string

const (
	// OutcomeSuccess indicates the node's action (or its fallback) succeeded.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeFailed indicates the node failed after its retry policy was exhausted.
	OutcomeFailed OutcomeStatus = "failed"
	// OutcomeSkipped indicates the node never ran.
	OutcomeSkipped OutcomeStatus = "skipped"
)

// 节点被跳过的原因
const (
	SkipReasonDependencyFailed = "dependency failed"
	SkipReasonCancelled        = "execution cancelled"
	SkipReasonTimeout          = "execution timed out"
	SkipReasonFailFast         = "fail-fast: execution aborted"
)

// NodeOutcome 是节点在一次执行中的唯一终态记录，记录后不可修改。
type NodeOutcome struct {
	NodeID       string        `json:"node_id"`
	Status       OutcomeStatus `json:"status"`
	Data         any           `json:"data,omitempty"`
	Err          error         `json:"-"`
	ErrorMessage string        `json:"error,omitempty"`
	Kind         ErrorKind     `json:"error_kind,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	Attempts     int           `json:"attempts"`
	UsedFallback bool          `json:"used_fallback,omitempty"`
	StartedAt    time.Time     `json:"started_at,omitempty"`
	FinishedAt   time.Time     `json:"finished_at"`
}

// NewSuccessOutcome creates a Success outcome.
func NewSuccessOutcome(nodeID string, data any, attempts int, startedAt time.Time) *NodeOutcome {
	return &NodeOutcome{
		NodeID:     nodeID,
		Status:     OutcomeSuccess,
		Data:       data,
		Attempts:   attempts,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
	}
}

// NewFailedOutcome creates a Failed outcome classified by the error's kind.
func NewFailedOutcome(nodeID string, err error, attempts int, startedAt time.Time) *NodeOutcome {
	o := &NodeOutcome{
		NodeID:     nodeID,
		Status:     OutcomeFailed,
		Err:        err,
		Kind:       KindOf(err),
		Attempts:   attempts,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
	}
	if err != nil {
		o.ErrorMessage = err.Error()
	}
	return o
}

// NewSkippedOutcome creates a Skipped outcome.
func NewSkippedOutcome(nodeID, reason string) *NodeOutcome {
	return &NodeOutcome{
		NodeID:     nodeID,
		Status:     OutcomeSkipped,
		Reason:     reason,
		FinishedAt: time.Now(),
	}
}

// IsSuccess 判断节点是否成功。
func (o *NodeOutcome) IsSuccess() bool {
	return o.Status == OutcomeSuccess
}

// IsFailed 判断节点是否失败。
func (o *NodeOutcome) IsFailed() bool {
	return o.Status == OutcomeFailed
}

// IsSkipped 判断节点是否被跳过。
func (o *NodeOutcome) IsSkipped() bool {
	return o.Status == OutcomeSkipped
}

// Duration 返回节点耗时，跳过的节点为 0。
func (o *NodeOutcome) Duration() time.Duration {
	if o.StartedAt.IsZero() {
		return 0
	}
	return o.FinishedAt.Sub(o.StartedAt)
}

// ExecutionStatus represents the terminal status of an execution.
type ExecutionStatus string

const (
	// ExecutionStatusRunning indicates the execution is still running.
	ExecutionStatusRunning ExecutionStatus = "running"
	// ExecutionStatusCompleted indicates every node succeeded.
	ExecutionStatusCompleted ExecutionStatus = "completed"
	// ExecutionStatusFailed indicates at least one node failed.
	ExecutionStatusFailed ExecutionStatus = "failed"
	// ExecutionStatusCancelled indicates the execution was cancelled.
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
	// ExecutionStatusTimeout indicates the execution timed out.
	ExecutionStatusTimeout ExecutionStatus = "timeout"
)

// ExecutionResult 汇总一次执行中所有节点的结果。
// 执行开始时创建，节点结束时逐步填充，进入终态后冻结。
type ExecutionResult struct {
	ExecutionID string                  `json:"execution_id"`
	GraphID     string                  `json:"graph_id"`
	Status      ExecutionStatus         `json:"status"`
	Success     bool                    `json:"success"`
	Message     string                  `json:"message"`
	Data        map[string]any          `json:"data,omitempty"`
	Outcomes    map[string]*NodeOutcome `json:"outcomes"`
	// Order 节点进入终态的顺序
	Order      []string  `json:"order"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	// Err 聚合了所有失败节点的错误
	Err error `json:"-"`
}

// Outcome 返回指定节点的结果。
func (r *ExecutionResult) Outcome(nodeID string) (*NodeOutcome, bool) {
	o, ok := r.Outcomes[nodeID]
	return o, ok
}

// Count 统计某种状态的节点数。
func (r *ExecutionResult) Count(status OutcomeStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Duration 返回执行总耗时。
func (r *ExecutionResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

package simulate

import (
	"time"

	"yqhp/taskflow/internal/petri"
)

// Mode 仿真模式
type Mode string

const (
	// ModeDeterministic fires the only possible transition and consults
	// preselected decisions at exclusive choices.
	ModeDeterministic Mode = "deterministic"
	// ModeInteractive asks a Chooser at exclusive choices.
	ModeInteractive Mode = "interactive"
)

// RunState 仿真运行状态
type RunState string

const (
	StateReady         RunState = "ready"
	StateRunning       RunState = "running"
	StateCompleted     RunState = "completed"
	StateDeadlocked    RunState = "deadlocked"
	StateBoundExceeded RunState = "bound_exceeded"
	StateCancelled     RunState = "cancelled"
	StateAmbiguous     RunState = "ambiguous"
	// StateFailed 交互选择无效或选择器返回错误
	StateFailed RunState = "failed"
)

// IsTerminal reports whether s is a final state.
func (s RunState) IsTerminal() bool {
	return s != StateReady && s != StateRunning
}

// SimulationStep 一次变迁触发。
// TokenID 是沿第一条输入弧移动的令牌，Consumed/Produced 列出所有涉及的令牌。
type SimulationStep struct {
	Index         int           `json:"index"`
	TransitionID  string        `json:"transition_id"`
	Label         string        `json:"label,omitempty"`
	MarkingBefore petri.Marking `json:"marking_before"`
	MarkingAfter  petri.Marking `json:"marking_after"`
	TokenID       string        `json:"token_id"`
	Consumed      []string      `json:"consumed"`
	Produced      []string      `json:"produced"`
	Timestamp     time.Time     `json:"timestamp"`
}

// SimulationTrace 一次仿真的完整记录，运行期间只追加，结束后只读。
type SimulationTrace struct {
	RunID        string           `json:"run_id"`
	NetID        string           `json:"net_id"`
	Mode         Mode             `json:"mode"`
	State        RunState         `json:"state"`
	Steps        []SimulationStep `json:"steps"`
	FinalMarking petri.Marking    `json:"final_marking"`
	// Tokens 结束时每个库所上的令牌 ID
	Tokens     map[string][]string `json:"tokens"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Error      string              `json:"error,omitempty"`
	Err        error               `json:"-"`
}

// Len returns the number of steps.
func (t *SimulationTrace) Len() int {
	return len(t.Steps)
}

// Fired returns the fired transition IDs in order.
func (t *SimulationTrace) Fired() []string {
	ids := make([]string, len(t.Steps))
	for i, s := range t.Steps {
		ids[i] = s.TransitionID
	}
	return ids
}

// Package tracer records an ordered, append-only trace of events per execution.
package tracer

import (
	"sync"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"yqhp/taskflow/pkg/types"
)

// executionTrace holds the events of one execution behind its own lock.
type executionTrace struct {
	mu     sync.Mutex
	seq    uint64
	events []types.TraceEvent
}

// Tracer 实现 types.TraceSink。
// 不同执行之间互不阻塞，同一执行内的追加按序号严格递增。
type Tracer struct {
	mu         sync.RWMutex
	executions map[string]*executionTrace
	order      []string
	clock      clockwork.Clock
	logger     *zap.Logger
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithClock sets the time source used for events without a timestamp.
func WithClock(clock clockwork.Clock) Option {
	return func(t *Tracer) {
		t.clock = clock
	}
}

// WithLogger sets the logger; every appended event is written at debug level.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracer) {
		t.logger = logger
	}
}

// New creates a new Tracer.
func New(opts ...Option) *Tracer {
	t := &Tracer{
		executions: make(map[string]*executionTrace),
		clock:      clockwork.NewRealClock(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Append 追加事件，分配序号后返回副本。
func (t *Tracer) Append(event types.TraceEvent) types.TraceEvent {
	et := t.getOrCreate(event.ExecutionID)

	et.mu.Lock()
	et.seq++
	event.Seq = et.seq
	if event.Timestamp.IsZero() {
		event.Timestamp = t.clock.Now()
	}
	et.events = append(et.events, event)
	et.mu.Unlock()

	if ce := t.logger.Check(zap.DebugLevel, "trace event"); ce != nil {
		ce.Write(
			zap.String("execution_id", event.ExecutionID),
			zap.Uint64("seq", event.Seq),
			zap.String("type", string(event.Type)),
			zap.String("node_id", event.NodeID),
			zap.String("action", event.Action),
			zap.Int("attempt", event.Attempt),
			zap.Bool("fallback", event.Fallback),
			zap.String("message", event.Message),
		)
	}
	return event
}

// Trace returns a copy of the ordered events of an execution.
// Unknown execution IDs yield an empty slice.
func (t *Tracer) Trace(executionID string) []types.TraceEvent {
	t.mu.RLock()
	et, ok := t.executions[executionID]
	t.mu.RUnlock()
	if !ok {
		return []types.TraceEvent{}
	}

	et.mu.Lock()
	defer et.mu.Unlock()
	out := make([]types.TraceEvent, len(et.events))
	copy(out, et.events)
	return out
}

// Executions 返回已记录的执行 ID，按首次出现的顺序。
func (t *Tracer) Executions() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// NodeEvents returns the events of one node in an execution.
func (t *Tracer) NodeEvents(executionID, nodeID string) []types.TraceEvent {
	var out []types.TraceEvent
	for _, e := range t.Trace(executionID) {
		if e.NodeID == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// Count 按事件类型统计某次执行的事件数量。
func (t *Tracer) Count(executionID string) map[types.TraceEventType]int {
	counts := make(map[types.TraceEventType]int)
	for _, e := range t.Trace(executionID) {
		counts[e.Type]++
	}
	return counts
}

func (t *Tracer) getOrCreate(executionID string) *executionTrace {
	t.mu.RLock()
	et, ok := t.executions[executionID]
	t.mu.RUnlock()
	if ok {
		return et
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if et, ok = t.executions[executionID]; ok {
		return et
	}
	et = &executionTrace{}
	t.executions[executionID] = et
	t.order = append(t.order, executionID)
	return et
}

var _ types.TraceSink = (*Tracer)(nil)

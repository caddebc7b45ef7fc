package types

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ExecutionOptions 单次执行的选项，零值表示沿用引擎配置。
type ExecutionOptions struct {
	// MaxConcurrency 覆盖引擎的最大并发数
	MaxConcurrency int `yaml:"max_concurrency,omitempty" json:"max_concurrency,omitempty"`
	// Timeout 整个执行的超时时间
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	// FailFast 首个节点失败后停止调度
	FailFast bool `yaml:"fail_fast,omitempty" json:"fail_fast,omitempty"`
	// Debug 输出节点参数等调试日志
	Debug bool `yaml:"debug,omitempty" json:"debug,omitempty"`
}

// ExecutionContext holds per-execution user/session data and options.
// It is created for one execution attempt and discarded when the attempt finishes.
type ExecutionContext struct {
	// ExecutionID is the unique ID of this execution.
	ExecutionID string

	// Values holds user/session values visible to every node.
	Values map[string]any

	// Options holds execution options.
	Options ExecutionOptions

	mu sync.RWMutex
}

// NewExecutionContext creates a new ExecutionContext with a fresh execution ID.
func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{
		ExecutionID: uuid.NewString(),
		Values:      make(map[string]any),
	}
}

// WithExecutionID sets the execution ID.
func (c *ExecutionContext) WithExecutionID(id string) *ExecutionContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ExecutionID = id
	return c
}

// WithValues sets the values map.
func (c *ExecutionContext) WithValues(values map[string]any) *ExecutionContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Values = values
	return c
}

// WithOptions sets the execution options.
func (c *ExecutionContext) WithOptions(opts ExecutionOptions) *ExecutionContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Options = opts
	return c
}

// SetValue sets a value.
func (c *ExecutionContext) SetValue(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Values == nil {
		c.Values = make(map[string]any)
	}
	c.Values[key] = value
}

// GetValue gets a value.
func (c *ExecutionContext) GetValue(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	val, ok := c.Values[key]
	return val, ok
}

// Snapshot 返回 Values 的深拷贝，供节点参数合并使用。
func (c *ExecutionContext) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Values == nil {
		return make(map[string]any)
	}
	return CloneParams(c.Values)
}

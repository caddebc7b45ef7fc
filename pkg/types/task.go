package types

import "time"

// TaskNode 表示任务图中的一个节点，即一次能力（action）调用。
type TaskNode struct {
	ID                string         `yaml:"id" json:"id"`
	Name              string         `yaml:"name,omitempty" json:"name,omitempty"`
	Action            string         `yaml:"action" json:"action"`
	InputParams       map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
	DependsOn         []string       `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	MaxRetries        int            `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	RetryDelayMs      int64          `yaml:"retry_delay_ms,omitempty" json:"retry_delay_ms,omitempty"`
	BackoffMultiplier float64        `yaml:"backoff_multiplier,omitempty" json:"backoff_multiplier,omitempty"`
	FallbackAction    string         `yaml:"fallback,omitempty" json:"fallback,omitempty"`
}

// RetryDelay 返回基础重试延迟。
func (n *TaskNode) RetryDelay() time.Duration {
	return time.Duration(n.RetryDelayMs) * time.Millisecond
}

// HasFallback 判断节点是否配置了降级 action。
func (n *TaskNode) HasFallback() bool {
	return n.FallbackAction != ""
}

// DisplayName 返回用于展示的节点名称。
func (n *TaskNode) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}

// Clone 深拷贝节点，参数中的嵌套 map/slice 也会被复制。
func (n *TaskNode) Clone() TaskNode {
	clone := *n
	if n.DependsOn != nil {
		clone.DependsOn = append([]string(nil), n.DependsOn...)
	}
	if n.InputParams != nil {
		clone.InputParams = CloneParams(n.InputParams)
	}
	return clone
}

// CloneParams 递归复制参数 map。
func CloneParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneParams(val)
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = cloneValue(item)
		}
		return items
	default:
		return v
	}
}

package capability

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Action 是注册表中的一个具名动作。
type Action interface {
	// Name returns the action name used by TaskNode.Action.
	Name() string

	// Description returns a human-readable description.
	Description() string

	// Invoke runs the action with already-resolved params.
	Invoke(ctx context.Context, params map[string]any) (*Result, error)
}

// funcAction adapts a plain function into an Action.
type funcAction struct {
	name        string
	description string
	fn          func(ctx context.Context, params map[string]any) (*Result, error)
}

// Func 用函数快速创建一个动作。
func Func(name, description string, fn func(ctx context.Context, params map[string]any) (*Result, error)) Action {
	return &funcAction{name: name, description: description, fn: fn}
}

func (a *funcAction) Name() string        { return a.name }
func (a *funcAction) Description() string { return a.description }
func (a *funcAction) Invoke(ctx context.Context, params map[string]any) (*Result, error) {
	return a.fn(ctx, params)
}

// Registry 管理动作的注册和查找，同时实现 Capability 接口。
type Registry struct {
	actions map[string]Action
	mu      sync.RWMutex
}

// NewRegistry 创建一个新的动作注册表。
func NewRegistry() *Registry {
	return &Registry{
		actions: make(map[string]Action),
	}
}

// Register 注册动作。
// 如果同名动作已注册，则返回错误。
func (r *Registry) Register(action Action) error {
	if action == nil {
		return fmt.Errorf("不能注册空动作")
	}

	name := action.Name()
	if name == "" {
		return fmt.Errorf("动作名称不能为空")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[name]; exists {
		return fmt.Errorf("动作已注册: %s", name)
	}

	r.actions[name] = action
	return nil
}

// MustRegister 注册动作，如果出错则 panic。
func (r *Registry) MustRegister(action Action) {
	if err := r.Register(action); err != nil {
		panic(err)
	}
}

// Unregister 移除给定名称的动作。
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.actions, name)
}

// Get 按名称获取动作，不存在时返回 nil。
func (r *Registry) Get(name string) Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.actions[name]
}

// GetOrError 按名称获取动作，如果不存在则返回 ACTION_NOT_FOUND 错误。
func (r *Registry) GetOrError(name string) (Action, error) {
	action := r.Get(name)
	if action == nil {
		return nil, NewActionNotFoundError(name)
	}
	return action, nil
}

// Has 检查给定名称是否已注册。
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.actions[name]
	return exists
}

// Names 返回所有已注册的动作名称（已排序）。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count 返回已注册动作的数量。
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions)
}

// RegisterAlias 为已注册的动作创建别名。
func (r *Registry) RegisterAlias(alias, target string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if action, exists := r.actions[target]; exists {
		r.actions[alias] = action
	}
}

// Invoke implements Capability.
func (r *Registry) Invoke(ctx context.Context, action string, params map[string]any) (*Result, error) {
	a, err := r.GetOrError(action)
	if err != nil {
		return nil, err
	}
	return a.Invoke(ctx, params)
}

var _ Capability = (*Registry)(nil)

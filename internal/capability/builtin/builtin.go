// Package builtin provides a small set of demo actions used by the CLI for dry
// runs: wait, echo, set_variable and fail.
package builtin

import (
	"fmt"

	"github.com/jonboulle/clockwork"

	"yqhp/taskflow/internal/capability"
)

// RegisterAll registers all built-in actions using the real clock.
func RegisterAll(registry *capability.Registry) {
	RegisterAllWithClock(registry, clockwork.NewRealClock())
}

// RegisterAllWithClock registers all built-in actions; wait uses the given clock.
func RegisterAllWithClock(registry *capability.Registry, clock clockwork.Clock) {
	registry.MustRegister(Wait(clock))
	registry.MustRegister(Echo())
	registry.MustRegister(SetVariable())
	registry.MustRegister(Fail())
}

// requiredParam extracts a required parameter from params map.
func requiredParam[T any](params map[string]any, key string) (T, error) {
	var zero T
	val, ok := params[key]
	if !ok {
		return zero, fmt.Errorf("必需参数 '%s' 缺失", key)
	}
	typed, ok := val.(T)
	if !ok {
		return zero, fmt.Errorf("参数 '%s' 类型无效，期望 %T，实际 %T", key, zero, val)
	}
	return typed, nil
}

// optionalParam extracts an optional parameter from params map with default value.
func optionalParam[T any](params map[string]any, key string, defaultVal T) T {
	val, ok := params[key]
	if !ok {
		return defaultVal
	}
	typed, ok := val.(T)
	if !ok {
		return defaultVal
	}
	return typed
}

// toInt64 converts a numeric value to int64.
func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case float32:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

package capability

import (
	"fmt"
	"strings"

	"github.com/ohler55/ojg/jp"

	"yqhp/taskflow/pkg/types"
)

// ReferencePrefix 以此前缀开头的字符串参数会被当作 JSONPath 表达式解析。
const ReferencePrefix = "$."

// MergeParams 把节点参数覆盖到上下文值上，节点参数优先。
// 两个输入都不会被修改。
func MergeParams(values, input map[string]any) map[string]any {
	merged := make(map[string]any, len(values)+len(input))
	for k, v := range types.CloneParams(values) {
		merged[k] = v
	}
	for k, v := range types.CloneParams(input) {
		merged[k] = v
	}
	return merged
}

// NewScope 构建 JSONPath 的求值根：
//
//	{"context": values, "nodes": {nodeID: data}}
func NewScope(values map[string]any, nodes map[string]any) map[string]any {
	if values == nil {
		values = map[string]any{}
	}
	if nodes == nil {
		nodes = map[string]any{}
	}
	return map[string]any{
		"context": values,
		"nodes":   nodes,
	}
}

// ResolveParams 递归解析参数中的 "$." 引用。
// 单个匹配返回该值，多个匹配返回切片，无匹配返回 ValidationError。
func ResolveParams(params map[string]any, scope map[string]any) (map[string]any, error) {
	if params == nil {
		return nil, nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		resolved, err := resolveValue(v, scope, k)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}

func resolveValue(v any, scope map[string]any, field string) (any, error) {
	switch val := v.(type) {
	case string:
		if !strings.HasPrefix(val, ReferencePrefix) {
			return val, nil
		}
		return lookup(val, scope, field)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			resolved, err := resolveValue(item, scope, field+"."+k)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := resolveValue(item, scope, fmt.Sprintf("%s[%d]", field, i))
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

func lookup(expr string, scope map[string]any, field string) (any, error) {
	path, err := jp.ParseString(expr)
	if err != nil {
		return nil, types.NewValidationError("params."+field, fmt.Sprintf("invalid JSONPath expression '%s': %v", expr, err))
	}
	results := path.Get(scope)
	switch len(results) {
	case 0:
		return nil, types.NewValidationError("params."+field, fmt.Sprintf("JSONPath '%s' returned no results", expr))
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

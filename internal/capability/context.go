package capability

import (
	"context"

	"yqhp/taskflow/pkg/types"
)

type contextKey int

const (
	execCtxKey contextKey = iota
	nodeKey
)

// WithExecutionContext 把执行上下文放入 ctx，供需要读写会话数据的动作使用。
func WithExecutionContext(ctx context.Context, execCtx *types.ExecutionContext) context.Context {
	return context.WithValue(ctx, execCtxKey, execCtx)
}

// ExecutionContextFrom returns the execution context stored in ctx, if any.
func ExecutionContextFrom(ctx context.Context) (*types.ExecutionContext, bool) {
	execCtx, ok := ctx.Value(execCtxKey).(*types.ExecutionContext)
	return execCtx, ok && execCtx != nil
}

// WithNodeID records the ID of the node being invoked.
func WithNodeID(ctx context.Context, nodeID string) context.Context {
	return context.WithValue(ctx, nodeKey, nodeID)
}

// NodeIDFrom returns the node ID stored in ctx, or "".
func NodeIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(nodeKey).(string)
	return id
}

package types

import "context"

// ExecutionCallback 定义执行过程中的回调接口
// 引擎在调度协程中同步调用，用于外部实时推送执行进度，核心不关心传输方式
type ExecutionCallback interface {
	// OnExecutionStart 执行开始时调用
	// nodeCount: 任务图中的节点总数
	OnExecutionStart(ctx context.Context, execCtx *ExecutionContext, graphID string, nodeCount int)

	// OnNodeStart 节点被派发到工作池时调用
	OnNodeStart(ctx context.Context, executionID string, node *TaskNode)

	// OnNodeComplete 节点成功或失败时调用
	OnNodeComplete(ctx context.Context, executionID string, node *TaskNode, outcome *NodeOutcome)

	// OnNodeSkipped 节点被跳过时调用
	OnNodeSkipped(ctx context.Context, executionID string, node *TaskNode, outcome *NodeOutcome)

	// OnExecutionError 执行被取消、超时或 fail-fast 中止时调用
	OnExecutionError(ctx context.Context, executionID string, err error)

	// OnExecutionComplete 整个执行进入终态时调用
	OnExecutionComplete(ctx context.Context, result *ExecutionResult)
}

// NoopCallback 空实现，用于不需要回调的场景
type NoopCallback struct{}

func (n *NoopCallback) OnExecutionStart(ctx context.Context, execCtx *ExecutionContext, graphID string, nodeCount int) {
}

func (n *NoopCallback) OnNodeStart(ctx context.Context, executionID string, node *TaskNode) {}

func (n *NoopCallback) OnNodeComplete(ctx context.Context, executionID string, node *TaskNode, outcome *NodeOutcome) {
}

func (n *NoopCallback) OnNodeSkipped(ctx context.Context, executionID string, node *TaskNode, outcome *NodeOutcome) {
}

func (n *NoopCallback) OnExecutionError(ctx context.Context, executionID string, err error) {}

func (n *NoopCallback) OnExecutionComplete(ctx context.Context, result *ExecutionResult) {}

// 确保 NoopCallback 实现了 ExecutionCallback 接口
var _ ExecutionCallback = (*NoopCallback)(nil)

// MultiCallback 把回调依次转发给多个实现
type MultiCallback []ExecutionCallback

func (m MultiCallback) OnExecutionStart(ctx context.Context, execCtx *ExecutionContext, graphID string, nodeCount int) {
	for _, cb := range m {
		cb.OnExecutionStart(ctx, execCtx, graphID, nodeCount)
	}
}

func (m MultiCallback) OnNodeStart(ctx context.Context, executionID string, node *TaskNode) {
	for _, cb := range m {
		cb.OnNodeStart(ctx, executionID, node)
	}
}

func (m MultiCallback) OnNodeComplete(ctx context.Context, executionID string, node *TaskNode, outcome *NodeOutcome) {
	for _, cb := range m {
		cb.OnNodeComplete(ctx, executionID, node, outcome)
	}
}

func (m MultiCallback) OnNodeSkipped(ctx context.Context, executionID string, node *TaskNode, outcome *NodeOutcome) {
	for _, cb := range m {
		cb.OnNodeSkipped(ctx, executionID, node, outcome)
	}
}

func (m MultiCallback) OnExecutionError(ctx context.Context, executionID string, err error) {
	for _, cb := range m {
		cb.OnExecutionError(ctx, executionID, err)
	}
}

func (m MultiCallback) OnExecutionComplete(ctx context.Context, result *ExecutionResult) {
	for _, cb := range m {
		cb.OnExecutionComplete(ctx, result)
	}
}

var _ ExecutionCallback = MultiCallback(nil)

package dag

import "yqhp/taskflow/pkg/types"

// Builder 以链式调用的方式收集节点，最终调用 Build 生成任务图。
type Builder struct {
	id     string
	rootID string
	nodes  []types.TaskNode
}

// NewBuilder creates a new Builder for the graph with the given ID.
func NewBuilder(id string) *Builder {
	return &Builder{id: id}
}

// Add appends a node.
func (b *Builder) Add(node types.TaskNode) *Builder {
	b.nodes = append(b.nodes, node)
	return b
}

// Then 追加一个依赖上一个节点的节点，用于快速描述顺序流程。
func (b *Builder) Then(id, action string, params map[string]any) *Builder {
	node := types.TaskNode{ID: id, Action: action, InputParams: params}
	if len(b.nodes) > 0 {
		node.DependsOn = []string{b.nodes[len(b.nodes)-1].ID}
	}
	return b.Add(node)
}

// Root designates the root (final sink) node.
func (b *Builder) Root(id string) *Builder {
	b.rootID = id
	return b
}

// Build validates and builds the TaskGraph.
func (b *Builder) Build() (*TaskGraph, error) {
	return Build(b.id, b.nodes, b.rootID)
}

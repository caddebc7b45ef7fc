package dag

import (
	"fmt"

	"github.com/duke-git/lancet/v2/slice"

	"yqhp/taskflow/pkg/types"
)

// TaskGraph is an immutable, validated DAG of TaskNodes.
//
// It is safe for concurrent read-only use by any number of executions and
// verification calls.
type TaskGraph struct {
	id string

	// nodes is the source-of-truth list in declaration order.
	nodes []*types.TaskNode

	// index lets us go from node ID -> position in O(1).
	index map[string]int

	// deps[i] holds the dependency indices of node i.
	deps [][]int

	// dependents[i] is the reverse adjacency of deps.
	dependents [][]int

	// order is a deterministic topological order (Kahn, declaration order ties).
	order []int

	root *types.TaskNode
}

// Build 校验节点并构建任务图。
// rootID 为空时，如果只有一个没有下游的节点，则自动选为根节点。
func Build(id string, nodes []types.TaskNode, rootID string) (*TaskGraph, error) {
	if len(nodes) == 0 {
		return nil, types.NewValidationError("nodes", "task graph must have at least one node")
	}

	g := &TaskGraph{
		id:         id,
		nodes:      make([]*types.TaskNode, len(nodes)),
		index:      make(map[string]int, len(nodes)),
		deps:       make([][]int, len(nodes)),
		dependents: make([][]int, len(nodes)),
	}

	for i := range nodes {
		node := nodes[i].Clone()
		path := fmt.Sprintf("nodes[%d]", i)
		if err := validateNode(&node, path); err != nil {
			return nil, err
		}
		if _, exists := g.index[node.ID]; exists {
			return nil, types.NewValidationError(path+".id", fmt.Sprintf("duplicate node ID: %s", node.ID))
		}
		node.DependsOn = slice.Unique(node.DependsOn)
		g.index[node.ID] = i
		g.nodes[i] = &node
	}

	// 解析依赖
	for i, node := range g.nodes {
		for _, depID := range node.DependsOn {
			if depID == node.ID {
				return nil, types.NewValidationError(
					fmt.Sprintf("nodes[%d].depends_on", i),
					fmt.Sprintf("node %q depends on itself", node.ID))
			}
			depIdx, ok := g.index[depID]
			if !ok {
				return nil, types.NewValidationError(
					fmt.Sprintf("nodes[%d].depends_on", i),
					fmt.Sprintf("node %q depends on unknown node %q", node.ID, depID))
			}
			g.deps[i] = append(g.deps[i], depIdx)
			g.dependents[depIdx] = append(g.dependents[depIdx], i)
		}
	}

	if err := g.detectCycle(); err != nil {
		return nil, err
	}
	g.order = g.topoSort()

	root, err := g.resolveRoot(rootID)
	if err != nil {
		return nil, err
	}
	g.root = root

	return g, nil
}

// validateNode 校验单个节点并规范化默认值。
func validateNode(node *types.TaskNode, path string) error {
	if node.ID == "" {
		return types.NewValidationError(path+".id", "node ID is required")
	}
	if node.Action == "" {
		return types.NewValidationError(path+".action", "node action is required")
	}
	if node.MaxRetries < 0 {
		return types.NewValidationError(path+".max_retries", "max retries must be non-negative")
	}
	if node.RetryDelayMs < 0 {
		return types.NewValidationError(path+".retry_delay_ms", "retry delay must be non-negative")
	}
	if node.BackoffMultiplier == 0 {
		node.BackoffMultiplier = 1.0
	}
	if node.BackoffMultiplier < 1.0 {
		return types.NewValidationError(path+".backoff_multiplier", "backoff multiplier must be >= 1.0")
	}
	return nil
}

// detectCycle 按声明顺序做 DFS，返回第一个在栈上重复出现的节点。
func (g *TaskGraph) detectCycle() error {
	const (
		white = iota
		gray
		black
	)
	color := make([]int, len(g.nodes))
	var stack []int

	var visit func(i int) error
	visit = func(i int) error {
		color[i] = gray
		stack = append(stack, i)
		for _, dep := range g.deps[i] {
			switch color[dep] {
			case gray:
				cycle := make([]string, 0, len(stack)+1)
				start := 0
				for pos, idx := range stack {
					if idx == dep {
						start = pos
						break
					}
				}
				for _, idx := range stack[start:] {
					cycle = append(cycle, g.nodes[idx].ID)
				}
				cycle = append(cycle, g.nodes[dep].ID)
				return &CircularDependencyError{NodeID: g.nodes[dep].ID, Cycle: cycle}
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[i] = black
		return nil
	}

	for i := range g.nodes {
		if color[i] == white {
			if err := visit(i); err != nil {
				return err
			}
		}
	}
	return nil
}

// topoSort computes a deterministic topological order using Kahn's algorithm.
func (g *TaskGraph) topoSort() []int {
	indegree := make([]int, len(g.nodes))
	for i := range g.nodes {
		indegree[i] = len(g.deps[i])
	}

	queue := make([]int, 0, len(g.nodes))
	for i := range g.nodes {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	order := make([]int, 0, len(g.nodes))
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		order = append(order, curr)
		for _, next := range g.dependents[curr] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	return order
}

func (g *TaskGraph) resolveRoot(rootID string) (*types.TaskNode, error) {
	if rootID != "" {
		idx, ok := g.index[rootID]
		if !ok {
			return nil, types.NewValidationError("root", fmt.Sprintf("root node %q not found", rootID))
		}
		if len(g.dependents[idx]) > 0 {
			return nil, types.NewValidationError("root", fmt.Sprintf("root node %q has dependents", rootID))
		}
		return g.nodes[idx], nil
	}

	sinks := g.Sinks()
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return nil, nil
}

// ID returns the graph ID.
func (g *TaskGraph) ID() string {
	return g.id
}

// Len returns the number of nodes.
func (g *TaskGraph) Len() int {
	return len(g.nodes)
}

// Nodes returns the nodes in declaration order.
// The returned pointers must be treated as read-only.
func (g *TaskGraph) Nodes() []*types.TaskNode {
	out := make([]*types.TaskNode, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Node looks up a node by ID.
func (g *TaskGraph) Node(id string) (*types.TaskNode, bool) {
	idx, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return g.nodes[idx], true
}

// Root returns the designated sink node, or nil.
func (g *TaskGraph) Root() *types.TaskNode {
	return g.root
}

// Dependencies returns the IDs of the nodes that id depends on.
func (g *TaskGraph) Dependencies(id string) []string {
	idx, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.idsOf(g.deps[idx])
}

// Dependents returns the IDs of the nodes that depend on id.
func (g *TaskGraph) Dependents(id string) []string {
	idx, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.idsOf(g.dependents[idx])
}

// TopologicalOrder returns node IDs such that every node follows its dependencies.
func (g *TaskGraph) TopologicalOrder() []string {
	return g.idsOf(g.order)
}

// Roots 返回没有依赖的节点（声明顺序）。
func (g *TaskGraph) Roots() []*types.TaskNode {
	var out []*types.TaskNode
	for i, n := range g.nodes {
		if len(g.deps[i]) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// Sinks 返回没有下游的节点（声明顺序）。
func (g *TaskGraph) Sinks() []*types.TaskNode {
	var out []*types.TaskNode
	for i, n := range g.nodes {
		if len(g.dependents[i]) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// TransitiveDependents 返回 id 的所有（直接或间接）下游节点，按 BFS 顺序。
func (g *TaskGraph) TransitiveDependents(id string) []string {
	idx, ok := g.index[id]
	if !ok {
		return nil
	}
	seen := make([]bool, len(g.nodes))
	queue := append([]int(nil), g.dependents[idx]...)
	var out []int
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		if seen[curr] {
			continue
		}
		seen[curr] = true
		out = append(out, curr)
		queue = append(queue, g.dependents[curr]...)
	}
	return g.idsOf(out)
}

func (g *TaskGraph) idsOf(indices []int) []string {
	ids := make([]string, len(indices))
	for i, idx := range indices {
		ids[i] = g.nodes[idx].ID
	}
	return ids
}

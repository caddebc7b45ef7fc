// Package parser reads workflow definitions from YAML.
//
// A workflow file describes its steps either as explicit task nodes with
// dependencies or as a flat list of intents joined by connectives. Both forms
// produce a petri net for verification; node lists and intent lists without
// exclusive choices also produce an executable task graph.
package parser

import (
	"yqhp/taskflow/internal/dag"
	"yqhp/taskflow/internal/petri"
	"yqhp/taskflow/pkg/types"
)

// Workflow 工作流文件的内容
type Workflow struct {
	ID          string                 `yaml:"id" json:"id"`
	Name        string                 `yaml:"name,omitempty" json:"name,omitempty"`
	Description string                 `yaml:"description,omitempty" json:"description,omitempty"`
	Root        string                 `yaml:"root,omitempty" json:"root,omitempty"`
	Variables   map[string]any         `yaml:"variables,omitempty" json:"variables,omitempty"`
	Options     types.ExecutionOptions `yaml:"options,omitempty" json:"options,omitempty"`
	Nodes       []types.TaskNode       `yaml:"nodes,omitempty" json:"nodes,omitempty"`
	Intents     []petri.Intent         `yaml:"intents,omitempty" json:"intents,omitempty"`
}

// DisplayName returns the workflow name, or its ID when unnamed.
func (w *Workflow) DisplayName() string {
	if w.Name != "" {
		return w.Name
	}
	return w.ID
}

// TaskGraph 构建可执行的任务图。含排他选择的意图列表无法执行，返回 ValidationError。
func (w *Workflow) TaskGraph() (*dag.TaskGraph, error) {
	if len(w.Nodes) > 0 {
		return dag.Build(w.ID, w.Nodes, w.Root)
	}
	f, err := petri.CompileIntents(w.Intents)
	if err != nil {
		return nil, err
	}
	return petri.TaskGraphFromFlow(w.ID, f)
}

// Net builds the workflow's petri net.
func (w *Workflow) Net() (*petri.NetModel, error) {
	if len(w.Nodes) > 0 {
		g, err := w.TaskGraph()
		if err != nil {
			return nil, err
		}
		return petri.FromTaskGraph(g)
	}
	return petri.BuildFromIntents(w.ID, w.Intents)
}

// ExecutionContext 以工作流变量和选项创建新的执行上下文。
func (w *Workflow) ExecutionContext() *types.ExecutionContext {
	return types.NewExecutionContext().
		WithValues(types.CloneParams(w.Variables)).
		WithOptions(w.Options)
}

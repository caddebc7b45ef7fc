package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"yqhp/taskflow/internal/dag"
	"yqhp/taskflow/internal/petri"
	"yqhp/taskflow/pkg/types"
)

// YAMLParser parses YAML workflow definitions.
type YAMLParser struct{}

// NewYAMLParser creates a new YAMLParser.
func NewYAMLParser() *YAMLParser {
	return &YAMLParser{}
}

// Parse 解析并校验工作流定义。
// 结构错误（环、未知依赖、混用 parallel 和 choice）在这里就会返回。
func (p *YAMLParser) Parse(data []byte) (*Workflow, error) {
	var workflow Workflow

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // 严格模式：未知字段报错

	if err := decoder.Decode(&workflow); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, NewParseError(0, 0, "empty workflow definition", err)
		}
		return nil, p.wrapYAMLError(err)
	}

	if err := p.validate(&workflow); err != nil {
		return nil, err
	}
	return &workflow, nil
}

// ParseFile parses a workflow definition from a file.
func (p *YAMLParser) ParseFile(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewParseError(0, 0, fmt.Sprintf("failed to read file: %s", path), err)
	}
	return p.Parse(data)
}

// wrapYAMLError converts a YAML error to a ParseError with line information.
func (p *YAMLParser) wrapYAMLError(err error) error {
	errStr := err.Error()
	line, column := extractLineColumn(errStr)
	return NewParseError(line, column, cleanYAMLErrorMessage(errStr), err)
}

// extractLineColumn attempts to extract line and column from YAML error message.
func extractLineColumn(errStr string) (int, int) {
	var line, column int

	if idx := strings.Index(errStr, "line "); idx != -1 {
		fmt.Sscanf(errStr[idx:], "line %d", &line)
	}
	if idx := strings.Index(errStr, "column "); idx != -1 {
		fmt.Sscanf(errStr[idx:], "column %d", &column)
	}
	return line, column
}

// cleanYAMLErrorMessage creates a cleaner error message.
func cleanYAMLErrorMessage(errStr string) string {
	errStr = strings.TrimPrefix(errStr, "yaml: ")
	errStr = strings.TrimPrefix(errStr, "unmarshal errors:\n  ")
	if len(errStr) > 0 {
		errStr = strings.ToUpper(errStr[:1]) + errStr[1:]
	}
	return errStr
}

func (p *YAMLParser) validate(w *Workflow) error {
	if w.ID == "" {
		return types.NewValidationError("id", "workflow ID is required")
	}
	switch {
	case len(w.Nodes) == 0 && len(w.Intents) == 0:
		return types.NewValidationError("nodes", "workflow must define nodes or intents")
	case len(w.Nodes) > 0 && len(w.Intents) > 0:
		return types.NewValidationError("intents", "nodes and intents are mutually exclusive")
	}
	if w.Options.MaxConcurrency < 0 {
		return types.NewValidationError("options.max_concurrency", "must be non-negative")
	}
	if w.Options.Timeout < 0 {
		return types.NewValidationError("options.timeout", "must be non-negative")
	}
	if len(w.Intents) > 0 && w.Root != "" {
		return types.NewValidationError("root", "root is only supported with nodes")
	}

	if len(w.Nodes) > 0 {
		_, err := dag.Build(w.ID, w.Nodes, w.Root)
		return err
	}
	_, err := petri.CompileIntents(w.Intents)
	return err
}

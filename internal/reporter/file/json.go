// Package file writes execution results, verification reports and simulation
// traces as JSON documents.
package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-multierror"

	"yqhp/taskflow/internal/simulate"
	"yqhp/taskflow/internal/verify"
	"yqhp/taskflow/pkg/types"
)

// JSONConfig holds configuration for the JSON writer.
type JSONConfig struct {
	// Pretty enables pretty-printed JSON output.
	Pretty bool `yaml:"pretty"`
	// IncludeTimestamp adds generated_at to each document.
	IncludeTimestamp bool `yaml:"include_timestamp"`
}

// DefaultJSONConfig returns the default JSON writer configuration.
func DefaultJSONConfig() *JSONConfig {
	return &JSONConfig{
		Pretty:           true,
		IncludeTimestamp: true,
	}
}

// ExecutionDocument 一次执行的导出内容
type ExecutionDocument struct {
	GeneratedAt *time.Time             `json:"generated_at,omitempty"`
	Workflow    string                 `json:"workflow"`
	Result      *types.ExecutionResult `json:"result"`
	Errors      []string               `json:"errors,omitempty"`
	Trace       []types.TraceEvent     `json:"trace,omitempty"`
}

// VerificationEntry 单个文件的分析结果
type VerificationEntry struct {
	Source string                   `json:"source"`
	Report *verify.ValidationReport `json:"report,omitempty"`
	Error  string                   `json:"error,omitempty"`
}

// VerificationDocument 一次 verify 命令的导出内容
type VerificationDocument struct {
	GeneratedAt *time.Time          `json:"generated_at,omitempty"`
	Entries     []VerificationEntry `json:"entries"`
}

// SimulationDocument 一次仿真的导出内容
type SimulationDocument struct {
	GeneratedAt *time.Time                `json:"generated_at,omitempty"`
	Workflow    string                    `json:"workflow"`
	Trace       *simulate.SimulationTrace `json:"trace"`
}

// JSONWriter writes documents to files.
type JSONWriter struct {
	config *JSONConfig
	now    func() time.Time
}

// NewJSONWriter creates a new JSON writer.
func NewJSONWriter(config *JSONConfig) *JSONWriter {
	if config == nil {
		config = DefaultJSONConfig()
	}
	return &JSONWriter{config: config, now: time.Now}
}

// WriteExecution exports an execution result and its trace events.
func (w *JSONWriter) WriteExecution(path, workflow string, result *types.ExecutionResult, trace []types.TraceEvent) error {
	doc := &ExecutionDocument{
		GeneratedAt: w.timestamp(),
		Workflow:    workflow,
		Result:      result,
		Errors:      flattenErrors(result.Err),
		Trace:       trace,
	}
	return w.write(path, doc)
}

// WriteVerification exports the reports of one verify run.
func (w *JSONWriter) WriteVerification(path string, entries []VerificationEntry) error {
	return w.write(path, &VerificationDocument{
		GeneratedAt: w.timestamp(),
		Entries:     entries,
	})
}

// WriteSimulation exports a simulation trace.
func (w *JSONWriter) WriteSimulation(path, workflow string, trace *simulate.SimulationTrace) error {
	return w.write(path, &SimulationDocument{
		GeneratedAt: w.timestamp(),
		Workflow:    workflow,
		Trace:       trace,
	})
}

func (w *JSONWriter) timestamp() *time.Time {
	if !w.config.IncludeTimestamp {
		return nil
	}
	ts := w.now()
	return &ts
}

func (w *JSONWriter) write(path string, v any) error {
	var (
		data []byte
		err  error
	)
	if w.config.Pretty {
		data, err = sonic.ConfigStd.MarshalIndent(v, "", "  ")
	} else {
		data, err = sonic.ConfigStd.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("序列化失败: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建目录失败: %w", err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("写入文件失败: %w", err)
	}
	return nil
}

// ReadJSON decodes a previously written document.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取文件失败: %w", err)
	}
	return sonic.Unmarshal(data, v)
}

// flattenErrors 展开 multierror，单个错误原样返回
func flattenErrors(err error) []string {
	if err == nil {
		return nil
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		out := make([]string, 0, len(merr.Errors))
		for _, e := range merr.Errors {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}

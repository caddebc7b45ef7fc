// Package console prints execution progress, verification reports and
// simulation traces to a terminal.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"yqhp/taskflow/internal/simulate"
	"yqhp/taskflow/internal/verify"
	"yqhp/taskflow/pkg/types"
)

// 直方图记录微秒，上限一小时
const (
	histogramMin     = 1
	histogramMax     = int64(time.Hour / time.Microsecond)
	histogramSigFigs = 3
)

// Config holds configuration for the console reporter.
type Config struct {
	// ShowNodes prints a line for every node event.
	ShowNodes bool `yaml:"show_nodes"`
	// ColorOutput enables colored output.
	ColorOutput bool `yaml:"color_output"`
	// Writer is the output writer (defaults to os.Stdout).
	Writer io.Writer `yaml:"-"`
}

// DefaultConfig returns the default console reporter configuration.
func DefaultConfig() *Config {
	return &Config{
		ShowNodes:   true,
		ColorOutput: true,
		Writer:      os.Stdout,
	}
}

// Reporter prints execution progress. It implements types.ExecutionCallback.
type Reporter struct {
	config *Config
	writer io.Writer

	mu        sync.Mutex
	total     int
	finished  int
	latencies *hdrhistogram.Histogram
}

var _ types.ExecutionCallback = (*Reporter)(nil)

// New creates a new console reporter.
func New(config *Config) *Reporter {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Writer == nil {
		config.Writer = os.Stdout
	}
	return &Reporter{
		config:    config,
		writer:    config.Writer,
		latencies: hdrhistogram.New(histogramMin, histogramMax, histogramSigFigs),
	}
}

// OnExecutionStart prints the header.
func (r *Reporter) OnExecutionStart(ctx context.Context, execCtx *types.ExecutionContext, graphID string, nodeCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.total = nodeCount
	r.finished = 0
	r.latencies.Reset()

	r.writeLine("")
	r.writeLine(r.colorize("=== Workflow Execution Started ===", colorCyan))
	r.writeLine(fmt.Sprintf("Graph: %s | Nodes: %d | Execution: %s", graphID, nodeCount, execCtx.ExecutionID))
	r.writeLine("")
}

// OnNodeStart prints the node being dispatched.
func (r *Reporter) OnNodeStart(ctx context.Context, executionID string, node *types.TaskNode) {
	if !r.config.ShowNodes {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeLine(fmt.Sprintf("  %s %s (%s)", r.colorize("▶", colorBlue), node.DisplayName(), node.Action))
}

// OnNodeComplete records the node latency and prints its outcome.
func (r *Reporter) OnNodeComplete(ctx context.Context, executionID string, node *types.TaskNode, outcome *types.NodeOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.finished++
	if d := outcome.Duration(); d > 0 {
		_ = r.latencies.RecordValue(clampMicros(d))
	}
	if !r.config.ShowNodes {
		return
	}

	progress := r.progress()
	if outcome.IsSuccess() {
		extra := ""
		if outcome.UsedFallback {
			extra = " via fallback"
		}
		r.writeLine(fmt.Sprintf("  %s %s %s | attempts=%d%s | %s",
			r.colorize("✔", colorGreen), node.DisplayName(), progress,
			outcome.Attempts, extra, formatDuration(outcome.Duration())))
		return
	}
	r.writeLine(fmt.Sprintf("  %s %s %s | attempts=%d | %s: %s",
		r.colorize("✘", colorRed), node.DisplayName(), progress,
		outcome.Attempts, outcome.Kind, outcome.ErrorMessage))
}

// OnNodeSkipped prints the skip reason.
func (r *Reporter) OnNodeSkipped(ctx context.Context, executionID string, node *types.TaskNode, outcome *types.NodeOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.finished++
	if !r.config.ShowNodes {
		return
	}
	r.writeLine(fmt.Sprintf("  %s %s %s | %s",
		r.colorize("-", colorYellow), node.DisplayName(), r.progress(), outcome.Reason))
}

// OnExecutionError prints why the execution stopped early.
func (r *Reporter) OnExecutionError(ctx context.Context, executionID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeLine(r.colorize(fmt.Sprintf("  ! %s", err), colorRed))
}

// OnExecutionComplete prints the summary and the latency percentiles.
func (r *Reporter) OnExecutionComplete(ctx context.Context, result *types.ExecutionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	statusColor := colorGreen
	if !result.Success {
		statusColor = colorRed
	}

	r.writeLine("")
	r.writeLine(r.colorize("=== Execution Summary ===", colorCyan))
	r.writeLine(fmt.Sprintf("Status: %s", r.colorize(string(result.Status), statusColor)))
	r.writeLine(fmt.Sprintf("Message: %s", result.Message))
	r.writeLine(fmt.Sprintf("Total Duration: %s", formatDuration(result.Duration())))
	r.writeLine(fmt.Sprintf("Succeeded: %d | Failed: %d | Skipped: %d",
		result.Count(types.OutcomeSuccess),
		result.Count(types.OutcomeFailed),
		result.Count(types.OutcomeSkipped)))

	if r.latencies.TotalCount() > 0 {
		r.writeLine(fmt.Sprintf("Node Latency: min=%s avg=%s max=%s",
			formatMicros(r.latencies.Min()),
			formatMicros(int64(r.latencies.Mean())),
			formatMicros(r.latencies.Max())))
		r.writeLine(fmt.Sprintf("Percentiles: p50=%s p90=%s p99=%s",
			formatMicros(r.latencies.ValueAtQuantile(50)),
			formatMicros(r.latencies.ValueAtQuantile(90)),
			formatMicros(r.latencies.ValueAtQuantile(99))))
	}
	r.writeLine(r.colorize("=========================", colorCyan))
	r.writeLine("")
}

// LatencyCount returns how many node latencies have been recorded.
func (r *Reporter) LatencyCount() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latencies.TotalCount()
}

// PrintReport prints a reachability analysis report.
func (r *Reporter) PrintReport(source string, report *verify.ValidationReport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.writeLine(r.colorize(fmt.Sprintf("=== Verification: %s ===", source), colorCyan))
	r.writeLine(fmt.Sprintf("Net: %s | States: %d/%d | Complete: %t",
		report.NetID, report.StatesExplored, report.StateBound, report.Complete))
	for _, res := range report.Results {
		r.writeLine(fmt.Sprintf("  %-18s %s  %s", res.Property, r.verdict(res.Verdict), res.Message))
		if len(res.Marking) > 0 {
			r.writeLine(fmt.Sprintf("  %-18s marking %s", "", res.Marking))
		}
		if len(res.Path) > 0 {
			r.writeLine(fmt.Sprintf("  %-18s path    %s", "", strings.Join(res.Path, " → ")))
		}
	}
	r.writeLine(fmt.Sprintf("Verdict: %s", r.verdict(report.Verdict())))
	r.writeLine("")
}

// PrintTrace prints a simulation trace step by step.
func (r *Reporter) PrintTrace(trace *simulate.SimulationTrace) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.writeLine(r.colorize(fmt.Sprintf("=== Simulation: %s (%s) ===", trace.NetID, trace.Mode), colorCyan))
	for _, step := range trace.Steps {
		name := step.TransitionID
		if step.Label != "" && step.Label != step.TransitionID {
			name = fmt.Sprintf("%s [%s]", step.TransitionID, step.Label)
		}
		r.writeLine(fmt.Sprintf("  %3d  %-28s %s → %s  (%s)",
			step.Index, name, step.MarkingBefore, step.MarkingAfter, step.TokenID))
	}

	stateColor := colorGreen
	if trace.State != simulate.StateCompleted {
		stateColor = colorRed
	}
	r.writeLine(fmt.Sprintf("State: %s | Steps: %d | Final: %s",
		r.colorize(string(trace.State), stateColor), trace.Len(), trace.FinalMarking))
	if trace.Error != "" {
		r.writeLine(fmt.Sprintf("Error: %s", trace.Error))
	}
	r.writeLine("")
}

// PrintChoice prints an interactive choice prompt.
func (r *Reporter) PrintChoice(req simulate.ChoiceRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.writeLine(fmt.Sprintf("Step %d, marking %s. Choose one:", req.Step, req.Marking))
	for i, opt := range req.Options {
		label := opt.Label
		if label == "" {
			label = opt.TransitionID
		}
		r.writeLine(fmt.Sprintf("  [%d] %s (%s)", i+1, label, opt.TransitionID))
	}
	r.write("> ")
}

func (r *Reporter) progress() string {
	return fmt.Sprintf("[%d/%d]", r.finished, r.total)
}

func (r *Reporter) verdict(v verify.Verdict) string {
	switch v {
	case verify.VerdictPass:
		return r.colorize(string(v), colorGreen)
	case verify.VerdictFail:
		return r.colorize(string(v), colorRed)
	default:
		return r.colorize(string(v), colorYellow)
	}
}

func (r *Reporter) write(s string) {
	fmt.Fprint(r.writer, s)
}

func (r *Reporter) writeLine(s string) {
	fmt.Fprintln(r.writer, s)
}

func clampMicros(d time.Duration) int64 {
	us := d.Microseconds()
	if us < histogramMin {
		return histogramMin
	}
	if us > histogramMax {
		return histogramMax
	}
	return us
}

func formatMicros(us int64) string {
	return formatDuration(time.Duration(us) * time.Microsecond)
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// Color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
)

func (r *Reporter) colorize(s string, color string) string {
	if !r.config.ColorOutput {
		return s
	}
	return color + s + colorReset
}

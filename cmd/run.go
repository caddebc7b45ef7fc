package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yqhp/taskflow/internal/capability"
	"yqhp/taskflow/internal/capability/builtin"
	"yqhp/taskflow/internal/engine"
	"yqhp/taskflow/internal/parser"
	"yqhp/taskflow/internal/reporter/console"
	"yqhp/taskflow/internal/reporter/file"
	"yqhp/taskflow/pkg/logger"
	"yqhp/taskflow/pkg/types"
)

var (
	// run 命令的 flags
	runMaxConcurrency int
	runTimeout        time.Duration
	runFailFast       bool
	runJSONOutput     string
)

// runCmd 是 run 子命令
var runCmd = &cobra.Command{
	Use:   "run <workflow.yaml>",
	Short: "执行工作流",
	Long: `使用内置 action（echo、wait、set_variable、fail）执行工作流文件。

节点按依赖并发调度，失败的节点按配置重试、降级，
其下游节点被跳过。Ctrl+C 取消执行，未开始的节点被跳过。`,
	Example: `  # 基本执行
  taskflow run examples/etl.yaml

  # 限制并发并设置超时
  taskflow run --max-concurrency 2 --timeout 30s examples/etl.yaml

  # 输出结果和追踪到文件
  taskflow run --out-json out/etl.json examples/etl.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflow,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVar(&runMaxConcurrency, "max-concurrency", 0, "最大并发节点数 (覆盖工作流配置)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "整个执行的超时时间 (覆盖工作流配置)")
	runCmd.Flags().BoolVar(&runFailFast, "fail-fast", false, "首个节点失败后停止调度")
	runCmd.Flags().StringVar(&runJSONOutput, "out-json", "", "输出 JSON 结果到文件")
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	workflowPath := args[0]

	workflow, err := parser.NewYAMLParser().ParseFile(workflowPath)
	if err != nil {
		return fmt.Errorf("解析工作流失败: %w", err)
	}
	graph, err := workflow.TaskGraph()
	if err != nil {
		return fmt.Errorf("构建任务图失败: %w", err)
	}

	// 应用命令行参数覆盖
	if runMaxConcurrency > 0 {
		workflow.Options.MaxConcurrency = runMaxConcurrency
	}
	if runTimeout > 0 {
		workflow.Options.Timeout = runTimeout
	}
	if runFailFast {
		workflow.Options.FailFast = true
	}
	if debug {
		workflow.Options.Debug = true
	}

	registry := capability.NewRegistry()
	builtin.RegisterAll(registry)

	var callback types.ExecutionCallback = &types.NoopCallback{}
	if !quiet {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, Banner, Version)
		fmt.Fprintf(out, "  %s\n", workflow.DisplayName())
		if workflow.Description != "" {
			fmt.Fprintf(out, "  %s\n", workflow.Description)
		}
		callback = console.New(&console.Config{ShowNodes: true, ColorOutput: !noColor, Writer: out})
	}

	eng := engine.New(appConfig, registry,
		engine.WithCallback(callback),
		engine.WithLogger(logger.Named("engine")))

	// 处理关闭信号
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := eng.Execute(ctx, graph, workflow.ExecutionContext())
	if err != nil {
		return fmt.Errorf("执行失败: %w", err)
	}
	logger.Info("执行结束",
		zap.String("execution_id", result.ExecutionID),
		zap.String("status", string(result.Status)),
		zap.Duration("duration", result.Duration()))

	if runJSONOutput != "" {
		trace := eng.Tracer().Trace(result.ExecutionID)
		if err := file.NewJSONWriter(nil).WriteExecution(runJSONOutput, workflowPath, result, trace); err != nil {
			return fmt.Errorf("写入 JSON 输出失败: %w", err)
		}
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "结果已写入: %s\n", runJSONOutput)
		}
	}

	if !result.Success {
		return fmt.Errorf("工作流 %s %s: %s", workflow.ID, result.Status, result.Message)
	}
	return nil
}

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yqhp/taskflow/internal/parser"
	"yqhp/taskflow/internal/reporter/console"
	"yqhp/taskflow/internal/reporter/file"
	"yqhp/taskflow/internal/simulate"
	"yqhp/taskflow/pkg/logger"
)

var (
	// simulate 命令的 flags
	simChoices     []string
	simInteractive bool
	simMaxSteps    int
	simJSONOutput  string
)

// simulateCmd 是 simulate 子命令
var simulateCmd = &cobra.Command{
	Use:   "simulate <workflow.yaml>",
	Short: "逐个令牌仿真工作流",
	Long: `从源库所的一个令牌开始逐步触发变迁。

遇到排他选择时，确定性模式依次使用 --choose 指定的分支（guard 标签或变迁 ID），
交互模式从标准输入读取选择（输入序号、标签或变迁 ID）。`,
	Example: `  # 走 pass 分支
  taskflow simulate --choose pass examples/release.yaml

  # 交互选择
  taskflow simulate --interactive examples/release.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: simulateWorkflow,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().StringArrayVar(&simChoices, "choose", nil, "排他选择处依次使用的分支 (可多次指定)")
	simulateCmd.Flags().BoolVarP(&simInteractive, "interactive", "i", false, "从标准输入读取选择")
	simulateCmd.Flags().IntVar(&simMaxSteps, "max-steps", 0, "最多触发的变迁数 (覆盖配置)")
	simulateCmd.Flags().StringVar(&simJSONOutput, "out-json", "", "输出 JSON 追踪到文件")
}

func simulateWorkflow(cmd *cobra.Command, args []string) error {
	workflowPath := args[0]

	workflow, err := parser.NewYAMLParser().ParseFile(workflowPath)
	if err != nil {
		return fmt.Errorf("解析工作流失败: %w", err)
	}
	net, err := workflow.Net()
	if err != nil {
		return fmt.Errorf("构建 Petri 网失败: %w", err)
	}

	opts := simulate.Options{
		Mode:      simulate.ModeDeterministic,
		MaxSteps:  appConfig.Simulation.MaxSteps,
		Decisions: simChoices,
	}
	if simMaxSteps > 0 {
		opts.MaxSteps = simMaxSteps
	}

	printer := console.New(&console.Config{ColorOutput: !noColor, Writer: cmd.OutOrStdout()})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		trace  *simulate.SimulationTrace
		runErr error
	)
	if simInteractive {
		chooser := simulate.NewChannelChooser()
		defer chooser.Close()
		opts.Mode = simulate.ModeInteractive
		opts.Chooser = chooser

		sim, err := simulate.New(net, opts, simulate.WithLogger(logger.Named("simulate")))
		if err != nil {
			return err
		}
		trace, runErr = runInteractive(ctx, sim, chooser, cmd.InOrStdin(), printer)
	} else {
		sim, err := simulate.New(net, opts, simulate.WithLogger(logger.Named("simulate")))
		if err != nil {
			return err
		}
		trace, runErr = sim.Run(ctx)
	}
	if trace == nil {
		return runErr
	}

	logger.Info("仿真结束",
		zap.String("run_id", trace.RunID),
		zap.String("state", string(trace.State)),
		zap.Int("steps", trace.Len()))
	if !quiet {
		printer.PrintTrace(trace)
	}

	if simJSONOutput != "" {
		if err := file.NewJSONWriter(nil).WriteSimulation(simJSONOutput, workflowPath, trace); err != nil {
			return fmt.Errorf("写入 JSON 输出失败: %w", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	if trace.State != simulate.StateCompleted {
		return fmt.Errorf("仿真未完成: %s", trace.State)
	}
	return nil
}

// runInteractive 在后台运行仿真，前台读取标准输入回答选择请求。
// 输入结束时取消仿真。
func runInteractive(ctx context.Context, sim *simulate.Simulator, chooser *simulate.ChannelChooser,
	in io.Reader, printer *console.Reporter) (*simulate.SimulationTrace, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		trace *simulate.SimulationTrace
		err   error
	}
	done := make(chan result, 1)
	go func() {
		trace, err := sim.Run(ctx)
		done <- result{trace, err}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case r := <-done:
			return r.trace, r.err
		case req := <-chooser.Requests():
			printer.PrintChoice(req)
			select {
			case line, ok := <-lines:
				if !ok {
					cancel()
					continue
				}
				if err := chooser.Answer(ctx, resolveChoice(line, req)); err != nil {
					cancel()
				}
			case <-ctx.Done():
			}
		}
	}
}

// resolveChoice 把输入的序号转换为变迁 ID，其它输入原样交给仿真器匹配
func resolveChoice(input string, req simulate.ChoiceRequest) string {
	input = strings.TrimSpace(input)
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(req.Options) {
		return req.Options[n-1].TransitionID
	}
	return input
}

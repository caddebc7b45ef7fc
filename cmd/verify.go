package cmd

import (
	"context"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"yqhp/taskflow/internal/parser"
	"yqhp/taskflow/internal/reporter/console"
	"yqhp/taskflow/internal/reporter/file"
	"yqhp/taskflow/internal/verify"
	"yqhp/taskflow/pkg/logger"
)

var (
	// verify 命令的 flags
	verifyStateBound int
	verifyMaxTokens  int
	verifyJSONOutput string
)

// verifyCmd 是 verify 子命令
var verifyCmd = &cobra.Command{
	Use:   "verify <workflow.yaml>...",
	Short: "对工作流做可达性分析",
	Long: `把工作流转换为 Petri 网，在状态上限内穷举可达标识，
检查无死锁、终态可达、活性和有界性。任一性质 FAIL 时返回非零退出码。`,
	Example: `  # 验证单个文件
  taskflow verify examples/release.yaml

  # 同时验证多个文件并导出报告
  taskflow verify --out-json out/verify.json examples/*.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: verifyWorkflows,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().IntVar(&verifyStateBound, "state-bound", 0, "最多探索的标识数 (覆盖配置)")
	verifyCmd.Flags().IntVar(&verifyMaxTokens, "max-tokens", 0, "单个库所允许的最大令牌数 (覆盖配置)")
	verifyCmd.Flags().StringVar(&verifyJSONOutput, "out-json", "", "输出 JSON 报告到文件")
}

func verifyWorkflows(cmd *cobra.Command, args []string) error {
	opts := verify.Options{
		StateBound:        appConfig.Verification.StateBound,
		MaxTokensPerPlace: appConfig.Verification.MaxTokensPerPlace,
	}
	if verifyStateBound > 0 {
		opts.StateBound = verifyStateBound
	}
	if verifyMaxTokens > 0 {
		opts.MaxTokensPerPlace = verifyMaxTokens
	}
	analyzer := verify.NewAnalyzer(opts, verify.WithLogger(logger.Named("verify")))

	entries := make([]file.VerificationEntry, len(args))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range args {
		g.Go(func() error {
			entries[i] = verifyFile(ctx, analyzer, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var failed, broken int
	printer := console.New(&console.Config{ColorOutput: !noColor, Writer: cmd.OutOrStdout()})
	for _, entry := range entries {
		if entry.Error != "" {
			broken++
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", entry.Source, entry.Error)
			continue
		}
		if entry.Report.Failed() {
			failed++
		}
		if !quiet {
			printer.PrintReport(entry.Source, entry.Report)
		}
	}

	if verifyJSONOutput != "" {
		if err := file.NewJSONWriter(nil).WriteVerification(verifyJSONOutput, entries); err != nil {
			return fmt.Errorf("写入 JSON 输出失败: %w", err)
		}
	}

	if failed > 0 || broken > 0 {
		return fmt.Errorf("验证未通过: %d 个文件存在 FAIL, %d 个文件无法分析", failed, broken)
	}
	return nil
}

// verifyFile 解析并分析单个文件，错误记录在条目中而不是中断其它文件
func verifyFile(ctx context.Context, analyzer *verify.Analyzer, path string) file.VerificationEntry {
	entry := file.VerificationEntry{Source: path}

	workflow, err := parser.NewYAMLParser().ParseFile(path)
	if err != nil {
		entry.Error = err.Error()
		return entry
	}
	net, err := workflow.Net()
	if err != nil {
		entry.Error = err.Error()
		return entry
	}
	report, err := analyzer.Analyze(ctx, net)
	if err != nil {
		entry.Error = err.Error()
		return entry
	}

	logger.Debug("分析完成",
		zap.String("source", path),
		zap.String("verdict", string(report.Verdict())),
		zap.Int("states", report.StatesExplored))
	entry.Report = report
	return entry
}

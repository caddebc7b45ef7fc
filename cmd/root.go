// Package cmd 提供 taskflow CLI 的命令实现
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yqhp/taskflow/internal/config"
	"yqhp/taskflow/pkg/logger"
)

const (
	// Version 是当前版本号
	Version = "0.1.0"
	// Banner 是启动时显示的 ASCII 艺术
	Banner = `
   _            _     __ _
  | |_ __ _ ___| | __/ _| | _____      __
  | __/ _' / __| |/ / |_| |/ _ \ \ /\ / /
  | || (_| \__ \   <|  _| | (_) \ V  V /
   \__\__,_|___/_|\_\_| |_|\___/ \_/\_/   %s
`
)

var (
	// 全局配置
	cfgFile  string
	debug    bool
	quiet    bool
	noColor  bool
	setFlags []string

	// appConfig 在 PersistentPreRunE 中加载，之后只读
	appConfig *config.Config
)

// rootCmd 是根命令
var rootCmd = &cobra.Command{
	Use:   "taskflow",
	Short: "任务图执行与流程验证工具",
	Long: `taskflow 执行带依赖的任务图（重试、降级、熔断），
把工作流转换为 Petri 网做可达性分析，并支持逐个令牌的仿真。`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// 全局 flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "启用调试日志")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "静默模式")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "禁用彩色输出")
	rootCmd.PersistentFlags().StringArrayVar(&setFlags, "set", nil, "覆盖配置项 (可多次指定)，格式: engine.max_concurrency=4")

	// 禁用默认的 completion 命令
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// 自定义版本模板
	rootCmd.SetVersionTemplate(fmt.Sprintf(Banner, Version) + "\n")
}

// loadConfig 按 默认值 < 配置文件 < 环境变量 < --set 的顺序加载配置并初始化日志
func loadConfig(cmd *cobra.Command, args []string) error {
	overrides, err := config.ParseSetFlags(setFlags)
	if err != nil {
		return err
	}
	cfg, err := config.NewLoader().WithConfigPath(cfgFile).WithCmdArgs(overrides).Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置无效: %w", err)
	}

	logger.Init(cfg.Logging.LoggerConfig())
	if debug {
		logger.EnableDebug()
	}
	logger.Debug("配置已加载", zap.String("config", cfgFile), zap.Int("overrides", len(overrides)))

	appConfig = cfg
	return nil
}

// GetRootCmd 返回根命令（用于测试）
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// Package config 提供 taskflow 的配置管理功能。
// 支持从 YAML 文件、环境变量和命令行参数加载配置，
// 优先级顺序为：默认值 < YAML 文件 < 环境变量 < 命令行参数（--set key=value）。
// 加载完成后的 Config 视为只读，以指针形式传给执行引擎、分析器和仿真器。
package config

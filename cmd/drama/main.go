// =============================================================================
// Drama 主入口
// =============================================================================
// 多角色对话引擎的命令行入口，包含交互式聊天、HTTP/WebSocket 服务与名册校验
//
// 使用方法:
//
//	drama chat                            # 在终端中与伙伴聊天
//	drama serve                           # 启动服务
//	drama serve --config drama.yaml       # 指定配置文件
//	drama serve --watch                   # 名册变更时热重载
//	drama roster validate roster.yaml     # 校验名册文件
//	drama version                         # 显示版本信息
// =============================================================================

package main

import (
	"os"

	"github.com/spf13/cobra"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "drama",
		Short:         "Multi-party dialogue engine for LLM companions",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.Version = Version
	root.SetVersionTemplate("{{.Version}}\n")
	root.PersistentFlags().StringP("config", "c", "", "Path to config file (YAML)")
	root.PersistentFlags().String("roster", "", "Path to roster file, overrides the configured one")

	root.AddCommand(chatCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(rosterCmd())
	root.AddCommand(versionCmd())
	return root
}

// Package cmd 提供 tinybase 命令行工具的所有子命令实现。
// 本文件实现 version 命令。
package cmd

import (
	"runtime"

	"github.com/spf13/cobra"
)

// 构建信息由发布脚本通过 -ldflags 写入，
// 直接 go build 得到的二进制显示为开发版本。
var (
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)

var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show CLI version and build information",
	Run: func(cmd *cobra.Command, args []string) {
		if versionShort {
			cmd.Println(Version)
			return
		}
		cmd.Printf("tinybase %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
		cmd.Printf("%s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Print only the version number")
	rootCmd.AddCommand(versionCmd)
}

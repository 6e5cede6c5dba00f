// Package cmd 提供 tinybase 命令行工具的所有子命令实现。
// 本文件实现 stats 和 status 命令，用于查询系统统计与健康状态。
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// statsCmd 是 stats 命令的 cobra.Command 实例。
// 显示注册函数数量与调用记录的聚合统计。
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show system statistics",
	RunE:  runStats,
}

// statusCmd 是 status 命令的 cobra.Command 实例。
// 检查网关的就绪状态（含存储连通性）。
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check gateway health",
	RunE:  runStatus,
}

// init 注册 stats 和 status 命令到根命令。
func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(statusCmd)
}

// runStats 是 stats 命令的执行函数。
func runStats(cmd *cobra.Command, args []string) error {
	client := NewClient()
	stats, err := client.GetStats()
	if err != nil {
		return err
	}
	return NewPrinter().PrintStats(stats)
}

// runStatus 是 status 命令的执行函数。
func runStatus(cmd *cobra.Command, args []string) error {
	client := NewClient()
	status, err := client.GetHealth()
	if err != nil {
		return err
	}
	fmt.Printf("Gateway: %s\n", colorStatus(status["status"]))
	return nil
}

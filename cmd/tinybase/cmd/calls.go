// Package cmd 提供 tinybase 命令行工具的所有子命令实现。
// 本文件实现 calls 和 call 命令，用于查询调用记录。
package cmd

import (
	"github.com/spf13/cobra"
)

// callsCmd 是 calls 命令的 cobra.Command 实例。
// 该命令用于查询调用记录列表，支持按函数名、状态、触发方式和时间范围过滤。
var callsCmd = &cobra.Command{
	Use:   "calls",
	Short: "List call records",
	Long: `List call records with optional filters.

Examples:
  # List recent calls
  tinybase calls

  # Calls of a specific function
  tinybase calls --function add_numbers

  # Failed calls since a point in time
  tinybase calls --status failed --since 2026-08-01T00:00:00Z

  # Calls fired by the scheduler
  tinybase calls --trigger schedule`,
	RunE: runCalls,
}

// callCmd 是 call 命令的 cobra.Command 实例。
// 该命令用于查看单条调用记录的完整详情。
var callCmd = &cobra.Command{
	Use:   "call <id>",
	Short: "Show details of a call record",
	Args:  cobra.ExactArgs(1),
	RunE:  runCall,
}

// calls 命令的标志变量
var (
	callsFunction string // 按函数名过滤
	callsStatus   string // 按状态过滤
	callsTrigger  string // 按触发方式过滤
	callsSince    string // 起始时间
	callsUntil    string // 结束时间
	callsOffset   int    // 分页偏移
	callsLimit    int    // 分页大小
)

// init 注册 calls 和 call 命令并设置命令行标志。
func init() {
	rootCmd.AddCommand(callsCmd)
	rootCmd.AddCommand(callCmd)

	callsCmd.Flags().StringVarP(&callsFunction, "function", "f", "", "Filter by function name")
	callsCmd.Flags().StringVarP(&callsStatus, "status", "s", "", "Filter by status (succeeded/failed)")
	callsCmd.Flags().StringVar(&callsTrigger, "trigger", "", "Filter by trigger type (manual/schedule)")
	callsCmd.Flags().StringVar(&callsSince, "since", "", "Only calls at or after this time (RFC3339)")
	callsCmd.Flags().StringVar(&callsUntil, "until", "", "Only calls before this time (RFC3339)")
	callsCmd.Flags().IntVar(&callsOffset, "offset", 0, "Pagination offset")
	callsCmd.Flags().IntVarP(&callsLimit, "limit", "n", 20, "Maximum number of records")
}

// runCalls 是 calls 命令的执行函数。
func runCalls(cmd *cobra.Command, args []string) error {
	client := NewClient()
	calls, total, err := client.ListCalls(CallFilter{
		Function:    callsFunction,
		Status:      callsStatus,
		TriggerType: callsTrigger,
		Since:       callsSince,
		Until:       callsUntil,
		Offset:      callsOffset,
		Limit:       callsLimit,
	})
	if err != nil {
		return err
	}
	return NewPrinter().PrintCalls(calls, total)
}

// runCall 是 call 命令的执行函数。
func runCall(cmd *cobra.Command, args []string) error {
	client := NewClient()
	rec, err := client.GetCall(args[0])
	if err != nil {
		return err
	}
	return NewPrinter().PrintCall(rec)
}

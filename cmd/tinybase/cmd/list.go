// Package cmd 提供 tinybase 命令行工具的所有子命令实现。
// 本文件实现 list 和 get 命令，用于查询已注册的函数。
//
// 默认以表格形式显示函数列表，包括名称、访问级别、超时等信息。
// 支持以 JSON 或 YAML 格式输出，也支持 ls 作为命令别名。
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

// listCmd 是 list 命令的 cobra.Command 实例。
// 该命令用于列出网关上所有已注册的函数。
// 支持 ls 作为命令别名，可配置输出格式（table/json/yaml）。
var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all registered functions",
	Long: `List all registered functions.

Examples:
  # List all functions
  tinybase list

  # Output as JSON
  tinybase list -o json

  # Only functions callable without credentials
  tinybase list --access public`,
	RunE: runList,
}

// getCmd 是 get 命令的 cobra.Command 实例。
// 该命令用于查看单个函数的详细信息，包括输入输出结构。
var getCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Show details of a function",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

var (
	listAccess string // Filter by access level
	listSearch string // Search query
)

// init 注册 list 和 get 命令到根命令。
func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	listCmd.Flags().StringVarP(&listAccess, "access", "a", "", "Filter by access level (public/authenticated/admin)")
	listCmd.Flags().StringVarP(&listSearch, "search", "q", "", "Search by name or description")
}

// runList 是 list 命令的执行函数。
func runList(cmd *cobra.Command, args []string) error {
	client := NewClient()
	functions, err := client.ListFunctions()
	if err != nil {
		return err
	}

	// Apply client-side filtering
	filtered := make([]FunctionInfo, 0)
	for _, fn := range functions {
		if listAccess != "" && !strings.EqualFold(fn.AccessLevel, listAccess) {
			continue
		}
		if listSearch != "" {
			query := strings.ToLower(listSearch)
			if !strings.Contains(strings.ToLower(fn.Name), query) &&
				!strings.Contains(strings.ToLower(fn.Description), query) {
				continue
			}
		}
		filtered = append(filtered, fn)
	}

	return NewPrinter().PrintFunctions(filtered)
}

// runGet 是 get 命令的执行函数。
func runGet(cmd *cobra.Command, args []string) error {
	client := NewClient()
	fn, err := client.GetFunction(args[0])
	if err != nil {
		return err
	}
	return NewPrinter().PrintFunction(fn)
}

// Package cmd 提供 tinybase 命令行工具的所有子命令实现。
// 本文件实现 invoke 命令，用于调用服务端函数。
//
// 支持多种方式提供调用参数：
//   - 使用 --data 参数直接提供 JSON 数据
//   - 使用 --file 参数从文件读取 JSON 数据
//   - 通过标准输入（stdin）管道传递数据
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// invokeCmd 是 invoke 命令的 cobra.Command 实例。
// 该命令用于调用指定的函数并等待执行结果。
// 调用参数可以通过命令行参数、文件或标准输入提供。
var invokeCmd = &cobra.Command{
	Use:   "invoke <name>",
	Short: "Invoke a function",
	Long: `Invoke a function and wait for the result.

Examples:
  # Invoke with JSON data
  tinybase invoke add_numbers --data '{"x": 1, "y": 2}'

  # Invoke with data from file
  tinybase invoke hello --file event.json

  # Invoke from stdin
  echo '{"name": "World"}' | tinybase invoke hello

  # Invoke an authenticated function with a token
  tinybase invoke hello --token $TOKEN --data '{}'`,
	Args: cobra.ExactArgs(1),
	RunE: runInvoke,
}

// invoke 命令的标志变量
var (
	invokeData string // JSON 格式的调用参数
	invokeFile string // 包含 JSON 参数的文件路径
)

// init 注册 invoke 命令并设置命令行标志。
func init() {
	rootCmd.AddCommand(invokeCmd)

	invokeCmd.Flags().StringVarP(&invokeData, "data", "d", "", "JSON payload")
	invokeCmd.Flags().StringVarP(&invokeFile, "file", "f", "", "JSON payload file")
}

// runInvoke 是 invoke 命令的执行函数。
// 该函数执行以下操作：
//  1. 获取要调用的函数名称
//  2. 从命令行参数、文件或标准输入获取 JSON 参数
//  3. 验证 JSON 格式是否正确
//  4. 调用函数并输出结果
//
// 参数：
//   - cmd: cobra 命令对象
//   - args: 命令行参数，args[0] 是函数名称
//
// 返回值：
//   - error: 调用失败时返回错误信息
func runInvoke(cmd *cobra.Command, args []string) error {
	name := args[0]

	// Get payload from various sources
	var payload json.RawMessage

	switch {
	case invokeData != "":
		payload = json.RawMessage(invokeData)
	case invokeFile != "":
		data, err := os.ReadFile(invokeFile)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		payload = data
	default:
		// Try reading from stdin
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
			if len(data) > 0 {
				payload = data
			}
		}
	}

	// Default to empty object if no payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	// Validate JSON
	if !json.Valid(payload) {
		return fmt.Errorf("invalid JSON payload")
	}

	client := NewClient()
	printer := NewPrinter()

	result, err := client.InvokeFunction(name, payload)
	if err != nil {
		return err
	}

	// For JSON/YAML output, just print the result
	format := viper.GetString("output")
	if format == "json" || format == "yaml" {
		return printer.PrintInvokeResult(result)
	}

	fmt.Printf("Function '%s' invoked (%s).\n\n", name, colorStatus(result.Status))
	return printer.PrintInvokeResult(result)
}

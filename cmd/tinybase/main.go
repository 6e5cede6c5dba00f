// Package main 是 tinybase 命令行工具的入口点
// tinybase 是用于调用函数和查询调用记录的 CLI 工具
package main

import (
	"os"

	"github.com/oriys/tinybase/cmd/tinybase/cmd"
)

// main 是 CLI 工具的主函数
// 它调用 cmd 包的 Execute 函数来解析和执行用户命令
func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Package cmd 包含 tinybase CLI 工具的所有命令实现
// 使用 cobra 框架构建命令行接口
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// 全局命令行标志变量
var (
	cfgFile   string // 配置文件路径
	apiURL    string // 网关服务器地址
	outputFmt string // 输出格式（table/json/yaml）
	authToken string // JWT 令牌
	apiKey    string // API 密钥
)

// rootCmd 是 CLI 的根命令
// 所有子命令都挂载在这个根命令下
var rootCmd = &cobra.Command{
	Use:   "tinybase",
	Short: "Tinybase - server function runtime CLI",
	Long: `tinybase 是调用服务端函数并查询调用记录的命令行工具。

使用示例:
  # 调用函数
  tinybase invoke add_numbers --data '{"x": 1, "y": 2}'

  # 列出所有已注册的函数
  tinybase list

  # 查询最近的调用记录
  tinybase calls --function add_numbers --limit 10

  # 查看某次调用的详情
  tinybase call 6f1c2b3a-...`,
}

// Execute 执行根命令
// 这是 CLI 的入口函数，由 main 包调用
//
// 返回:
//   - error: 命令执行错误
func Execute() error {
	return rootCmd.Execute()
}

// init 初始化命令行工具
// 注册全局标志和配置初始化函数
func init() {
	// 在命令执行前初始化配置
	cobra.OnInitialize(initConfig)

	// 注册持久化标志（所有子命令都可使用）
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径（默认为 $HOME/.tinybase.yaml）")
	rootCmd.PersistentFlags().StringVarP(&apiURL, "api-url", "u", "http://localhost:8090", "网关服务器地址")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "输出格式（table、json、yaml）")
	rootCmd.PersistentFlags().StringVarP(&authToken, "token", "t", "", "JWT 令牌（Authorization: Bearer）")
	rootCmd.PersistentFlags().StringVarP(&apiKey, "api-key", "k", "", "API 密钥（X-API-Key 请求头）")

	// 将标志绑定到 viper 配置
	viper.BindPFlag("api_url", rootCmd.PersistentFlags().Lookup("api-url"))
	viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
	viper.BindPFlag("api_key", rootCmd.PersistentFlags().Lookup("api-key"))
}

// initConfig 初始化配置
// 按优先级加载配置：命令行标志 > 环境变量 > 配置文件
func initConfig() {
	if cfgFile != "" {
		// 使用用户指定的配置文件
		viper.SetConfigFile(cfgFile)
	} else {
		// 获取用户主目录
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		// 搜索配置文件的路径
		viper.AddConfigPath(home) // 在主目录查找
		viper.AddConfigPath(".")  // 在当前目录查找
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tinybase") // 配置文件名（不含扩展名）
	}

	// 设置环境变量前缀
	// 环境变量格式：TINYBASE_<KEY>，如 TINYBASE_API_URL
	viper.SetEnvPrefix("TINYBASE")
	viper.AutomaticEnv() // 自动读取环境变量

	// 读取配置文件（如果存在）
	_ = viper.ReadInConfig()
}

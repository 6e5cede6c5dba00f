// Package cmd 提供 tinybase 命令行工具的所有子命令实现。
// 本文件实现输出格式化打印功能，支持多种输出格式。
//
// Printer 支持以下输出格式：
//   - table: 表格格式（默认），适合人类阅读
//   - json:  JSON 格式，适合程序处理
//   - yaml:  YAML 格式，适合配置文件
package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Printer 是格式化输出的处理器。
// 根据配置的输出格式（table/json/yaml）将数据格式化后输出到指定的 writer。
type Printer struct {
	format string    // 输出格式：table、json 或 yaml
	writer io.Writer // 输出目标，默认为 os.Stdout
}

// NewPrinter 创建一个新的 Printer 实例。
// 从 viper 配置中读取 output 格式，如果未配置则默认使用 table 格式。
func NewPrinter() *Printer {
	format := viper.GetString("output")
	if format == "" {
		format = "table"
	}
	return &Printer{
		format: format,
		writer: os.Stdout,
	}
}

// PrintFunctions 打印函数列表。
func (p *Printer) PrintFunctions(functions []FunctionInfo) error {
	switch p.format {
	case "json":
		return p.printJSON(functions)
	case "yaml":
		return p.printYAML(functions)
	default:
		return p.printFunctionsTable(functions)
	}
}

// PrintFunction 打印单个函数的详细信息。
func (p *Printer) PrintFunction(fn *FunctionInfo) error {
	switch p.format {
	case "json":
		return p.printJSON(fn)
	case "yaml":
		return p.printYAML(fn)
	default:
		return p.printFunctionDetail(fn)
	}
}

// PrintCalls 打印调用记录列表。
func (p *Printer) PrintCalls(calls []CallRecord, total int64) error {
	switch p.format {
	case "json":
		return p.printJSON(calls)
	case "yaml":
		return p.printYAML(calls)
	default:
		return p.printCallsTable(calls, total)
	}
}

// PrintCall 打印单条调用记录的详细信息。
func (p *Printer) PrintCall(rec *CallRecord) error {
	switch p.format {
	case "json":
		return p.printJSON(rec)
	case "yaml":
		return p.printYAML(rec)
	default:
		return p.printCallDetail(rec)
	}
}

// PrintInvokeResult 打印函数调用结果。
func (p *Printer) PrintInvokeResult(result *InvokeResult) error {
	switch p.format {
	case "json":
		return p.printJSON(result)
	case "yaml":
		return p.printYAML(result)
	default:
		return p.printInvokeResultDetail(result)
	}
}

// PrintStats 打印系统统计信息。
func (p *Printer) PrintStats(stats *Stats) error {
	switch p.format {
	case "json":
		return p.printJSON(stats)
	case "yaml":
		return p.printYAML(stats)
	default:
		return p.printStatsDetail(stats)
	}
}

// printJSON 以 JSON 格式输出数据。
// 使用 2 空格缩进美化输出。
func (p *Printer) printJSON(v interface{}) error {
	enc := json.NewEncoder(p.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printYAML 以 YAML 格式输出数据。
// 使用 2 空格缩进。
func (p *Printer) printYAML(v interface{}) error {
	enc := yaml.NewEncoder(p.writer)
	enc.SetIndent(2)
	return enc.Encode(v)
}

// printFunctionsTable 以表格形式输出函数列表。
// 显示名称、访问级别、超时和描述。
func (p *Printer) printFunctionsTable(functions []FunctionInfo) error {
	if len(functions) == 0 {
		fmt.Fprintln(p.writer, "No functions registered.")
		return nil
	}

	w := tabwriter.NewWriter(p.writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tACCESS\tTIMEOUT\tTAGS\tDESCRIPTION")

	for _, fn := range functions {
		timeout := "-"
		if fn.TimeoutSec > 0 {
			timeout = fmt.Sprintf("%ds", fn.TimeoutSec)
		}
		tags := "-"
		if len(fn.Tags) > 0 {
			tags = strings.Join(fn.Tags, ",")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			fn.Name,
			fn.AccessLevel,
			timeout,
			tags,
			truncate(fn.Description, 50),
		)
	}

	return w.Flush()
}

// printFunctionDetail 以详细格式输出单个函数信息。
// 包含输入输出结构的缩进 JSON。
func (p *Printer) printFunctionDetail(fn *FunctionInfo) error {
	fmt.Fprintf(p.writer, "Name:        %s\n", fn.Name)
	fmt.Fprintf(p.writer, "Access:      %s\n", fn.AccessLevel)
	if fn.Description != "" {
		fmt.Fprintf(p.writer, "Description: %s\n", fn.Description)
	}
	if fn.TimeoutSec > 0 {
		fmt.Fprintf(p.writer, "Timeout:     %d seconds\n", fn.TimeoutSec)
	}
	if len(fn.Tags) > 0 {
		fmt.Fprintf(p.writer, "Tags:        %s\n", strings.Join(fn.Tags, ", "))
	}

	if len(fn.InputShape) > 0 {
		fmt.Fprintln(p.writer, "\nInput:")
		p.printIndentedJSON(fn.InputShape)
	}
	if len(fn.OutputShape) > 0 {
		fmt.Fprintln(p.writer, "\nOutput:")
		p.printIndentedJSON(fn.OutputShape)
	}

	return nil
}

// printCallsTable 以表格形式输出调用记录列表。
// 显示记录ID、函数名、状态、触发方式、耗时、错误类型和时间。
func (p *Printer) printCallsTable(calls []CallRecord, total int64) error {
	if len(calls) == 0 {
		fmt.Fprintln(p.writer, "No calls found.")
		return nil
	}

	w := tabwriter.NewWriter(p.writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFUNCTION\tSTATUS\tTRIGGER\tDURATION\tERROR\tCREATED")

	for _, rec := range calls {
		errType := rec.ErrorType
		if errType == "" {
			errType = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%dms\t%s\t%s\n",
			truncate(rec.ID, 12),
			rec.FunctionName,
			colorStatus(rec.Status),
			rec.TriggerType,
			rec.DurationMs,
			errType,
			timeAgo(rec.CreatedAt),
		)
	}

	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(p.writer, "\nShowing %d of %d calls.\n", len(calls), total)
	return nil
}

// printCallDetail 以详细格式输出单条调用记录。
func (p *Printer) printCallDetail(rec *CallRecord) error {
	fmt.Fprintf(p.writer, "ID:           %s\n", rec.ID)
	fmt.Fprintf(p.writer, "Function:     %s\n", rec.FunctionName)
	fmt.Fprintf(p.writer, "Status:       %s\n", colorStatus(rec.Status))
	fmt.Fprintf(p.writer, "Trigger:      %s\n", rec.TriggerType)
	if rec.TriggerID != "" {
		fmt.Fprintf(p.writer, "Trigger ID:   %s\n", rec.TriggerID)
	}
	if rec.UserID != "" {
		fmt.Fprintf(p.writer, "User:         %s\n", rec.UserID)
	}
	fmt.Fprintf(p.writer, "Duration:     %d ms\n", rec.DurationMs)
	if rec.ErrorType != "" {
		fmt.Fprintf(p.writer, "Error Type:   %s\n", rec.ErrorType)
	}
	if rec.ErrorMessage != "" {
		fmt.Fprintf(p.writer, "Error:        %s\n", rec.ErrorMessage)
	}
	fmt.Fprintf(p.writer, "Created:      %s\n", rec.CreatedAt.Format(time.RFC3339))
	return nil
}

// printInvokeResultDetail 以详细格式输出调用结果。
func (p *Printer) printInvokeResultDetail(result *InvokeResult) error {
	fmt.Fprintf(p.writer, "Call ID:  %s\n", result.CallID)
	fmt.Fprintf(p.writer, "Status:   %s\n", colorStatus(result.Status))
	fmt.Fprintf(p.writer, "Duration: %d ms\n", result.DurationMs)

	if result.ErrorType != "" {
		fmt.Fprintf(p.writer, "Error:    [%s] %s\n", result.ErrorType, result.ErrorMessage)
		return nil
	}

	if len(result.Result) > 0 {
		fmt.Fprintln(p.writer, "\nResult:")
		p.printIndentedJSON(result.Result)
	}

	return nil
}

// printStatsDetail 以详细格式输出系统统计。
func (p *Printer) printStatsDetail(stats *Stats) error {
	fmt.Fprintf(p.writer, "Registered functions: %d\n", stats.Functions)

	if stats.Calls != nil {
		fmt.Fprintf(p.writer, "Total calls:          %d\n", stats.Calls.Total)
		fmt.Fprintf(p.writer, "Succeeded:            %d\n", stats.Calls.Succeeded)
		fmt.Fprintf(p.writer, "Failed:               %d\n", stats.Calls.Failed)
		fmt.Fprintf(p.writer, "Avg duration:         %.1f ms\n", stats.Calls.AvgDurationMs)

		if len(stats.Calls.ByFunction) > 0 {
			fmt.Fprintln(p.writer, "\nCalls by function:")
			w := tabwriter.NewWriter(p.writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FUNCTION\tCALLS")
			for name, count := range stats.Calls.ByFunction {
				fmt.Fprintf(w, "%s\t%d\n", name, count)
			}
			w.Flush()
		}
	}

	return nil
}

// printIndentedJSON 输出缩进格式化的 JSON，解析失败时原样输出。
func (p *Printer) printIndentedJSON(raw json.RawMessage) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err == nil {
		fmt.Fprintln(p.writer, pretty.String())
	} else {
		fmt.Fprintln(p.writer, string(raw))
	}
}

// ====== 辅助函数 ======

// colorStatus 根据状态值返回带颜色的字符串。
// 使用 ANSI 转义序列：
//   - 绿色: succeeded、success、ready、healthy
//   - 红色: failed、error、unhealthy
func colorStatus(status string) string {
	switch strings.ToLower(status) {
	case "succeeded", "success", "ready", "healthy":
		return "\033[32m" + status + "\033[0m" // Green
	case "failed", "error", "unhealthy":
		return "\033[31m" + status + "\033[0m" // Red
	default:
		return status
	}
}

// timeAgo 将时间转换为相对时间字符串。
// 例如："5s ago"、"3m ago"、"2h ago"、"1d ago"
func timeAgo(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	d := time.Since(t)

	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// truncate 截断字符串到指定长度。
// 如果字符串超过最大长度，则截断并添加 "..." 后缀。
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

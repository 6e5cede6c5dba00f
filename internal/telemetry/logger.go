// Package telemetry 提供 OpenTelemetry 分布式追踪功能的封装。
// 本文件实现日志与追踪的集成，通过 Logrus Hook 自动将追踪上下文
// （Trace ID、Span ID）注入到日志条目中，便于日志与追踪数据的关联。
package telemetry

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// LogrusHook 是一个 Logrus 钩子，用于自动将追踪上下文添加到日志条目中。
// 当日志条目携带有效追踪上下文时，会追加 trace_id、span_id 和
// trace_sampled 字段。
type LogrusHook struct{}

// NewLogrusHook 创建一个新的 LogrusHook 实例。
// 将返回的钩子添加到 Logrus Logger 即可启用自动追踪上下文注入。
func NewLogrusHook() *LogrusHook {
	return &LogrusHook{}
}

// Levels 返回该钩子触发的日志级别列表，所有级别均触发。
func (h *LogrusHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire 在日志条目生成时被调用，向日志添加追踪上下文信息。
// 需要日志条目通过 WithContext 携带上下文才会生效。
func (h *LogrusHook) Fire(entry *logrus.Entry) error {
	ctx := entry.Context
	if ctx == nil {
		return nil
	}

	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return nil
	}

	spanCtx := span.SpanContext()
	entry.Data["trace_id"] = spanCtx.TraceID().String()
	entry.Data["span_id"] = spanCtx.SpanID().String()
	if spanCtx.IsSampled() {
		entry.Data["trace_sampled"] = true
	}

	return nil
}

// EntryWithTraceContext 向现有日志条目添加追踪上下文字段。
// 如果上下文中没有有效的 Span，原样返回日志条目。
func EntryWithTraceContext(ctx context.Context, entry *logrus.Entry) *logrus.Entry {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return entry
	}

	spanCtx := span.SpanContext()
	return entry.WithFields(logrus.Fields{
		"trace_id":      spanCtx.TraceID().String(),
		"span_id":       spanCtx.SpanID().String(),
		"trace_sampled": spanCtx.IsSampled(),
	})
}

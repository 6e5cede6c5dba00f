// Package metrics 提供 Prometheus 指标采集与上报的统一封装。
// 该包集中定义运行时关键指标（调度、处理器执行、审计写入等），
// 便于在各模块复用并保持标签一致。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 封装运行时指标集合。
// 所有字段均为 Prometheus 指标类型，通过辅助方法更新指标值。
type Metrics struct {
	// ========== 调度相关指标 ==========

	// DispatchesTotal 调度尝试总次数计数器
	// 标签: function, trigger, status
	DispatchesTotal *prometheus.CounterVec

	// DispatchErrors 调度失败计数器，按错误类型分类
	// 标签: function, error_type
	DispatchErrors *prometheus.CounterVec

	// HandlerDuration 处理器执行耗时直方图（单位：毫秒），
	// 只统计执行阶段，与调用记录的 duration_ms 口径一致
	// 标签: function
	HandlerDuration *prometheus.HistogramVec

	// InflightDispatches 正在执行的调用数量
	InflightDispatches prometheus.Gauge

	// ========== 注册表相关指标 ==========

	// RegisteredFunctions 已注册的函数总数
	RegisteredFunctions prometheus.Gauge

	// ========== 审计相关指标 ==========

	// RecordWriteFailures 调用记录写入失败计数器。
	// 该指标非零意味着审计数据丢失，需要告警。
	RecordWriteFailures prometheus.Counter
}

// NewMetrics 创建并注册全部运行时指标。
//
// 参数:
//   - namespace: 指标命名空间（如 "tinybase"）
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		DispatchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Total number of dispatch attempts",
		}, []string{"function", "trigger", "status"}),

		DispatchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_errors_total",
			Help:      "Total number of failed dispatches by error type",
		}, []string{"function", "error_type"}),

		HandlerDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_duration_ms",
			Help:      "Handler execution duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"function"}),

		InflightDispatches: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight_dispatches",
			Help:      "Number of dispatches currently executing",
		}),

		RegisteredFunctions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_functions",
			Help:      "Number of functions in the registry",
		}),

		RecordWriteFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_write_failures_total",
			Help:      "Total number of call record writes that failed (audit data loss)",
		}),
	}
}

// ObserveDispatch 记录一次调度的结果指标。
func (m *Metrics) ObserveDispatch(function, trigger, status, errorType string, durationMs int64) {
	if m == nil {
		return
	}
	m.DispatchesTotal.WithLabelValues(function, trigger, status).Inc()
	if errorType != "" {
		m.DispatchErrors.WithLabelValues(function, errorType).Inc()
	}
	if durationMs > 0 {
		m.HandlerDuration.WithLabelValues(function).Observe(float64(durationMs))
	}
}

// Package engine 实现函数调用的调度引擎。
// 引擎是所有触发来源的共同入口：无论调用来自 HTTP 请求还是定时调度器，
// 都经过同一条调度管线——解析、门禁、输入校验、执行、输出校验、记录。
// 每次调度尝试恰好产生一条调用记录，无论失败发生在哪个阶段；
// 处理器的错误和异常都在调度边界被捕获并分类，绝不穿透到触发适配器。
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oriys/tinybase/internal/access"
	"github.com/oriys/tinybase/internal/config"
	"github.com/oriys/tinybase/internal/domain"
	"github.com/oriys/tinybase/internal/metrics"
	"github.com/oriys/tinybase/internal/registry"
	"github.com/oriys/tinybase/internal/schema"
)

// UnitOfWorkOpener 为每次调用打开独占的事务性存储句柄。
type UnitOfWorkOpener interface {
	Begin(ctx context.Context) (domain.UnitOfWork, error)
}

// RecordSink 是调用记录写入成功后的下游消费方（事件总线、实时推送等）。
// 下游消费失败不得影响记录本身的持久化，实现方需自行吞掉错误。
type RecordSink interface {
	PublishCallRecorded(rec *domain.CallRecord)
}

// DispatchRequest 表示一次调度请求。
type DispatchRequest struct {
	// FunctionName 是要调用的函数名称
	FunctionName string
	// Trigger 是触发来源（manual/schedule）
	Trigger domain.TriggerType
	// TriggerID 是触发调度的标识，仅定时触发时存在
	TriggerID string
	// Caller 是已解析的调用者身份，nil 表示匿名
	Caller *domain.Caller
	// Payload 是原始的 JSON 输入载荷，可以为空
	Payload json.RawMessage
}

// DispatchResult 表示一次调度的最终结果。
// 失败时 ErrorType 携带错误分类，ErrorMessage 携带面向调用者的描述。
type DispatchResult struct {
	// CallID 是本次调用尝试的唯一标识，与调用记录的 ID 相同
	CallID string `json:"call_id"`
	// Status 是调用的最终状态（succeeded/failed）
	Status domain.CallStatus `json:"status"`
	// Result 是成功时的输出值
	Result map[string]any `json:"result,omitempty"`
	// ErrorType 是失败时的错误类型分类
	ErrorType string `json:"error_type,omitempty"`
	// ErrorMessage 是失败时的错误描述
	ErrorMessage string `json:"error,omitempty"`
	// DurationMs 是处理器执行耗时（毫秒），处理器未执行时为 0
	DurationMs int64 `json:"duration_ms"`
}

// Succeeded 判断调度是否成功。
func (r *DispatchResult) Succeeded() bool {
	return r.Status == domain.CallStatusSucceeded
}

// outcome 是调度管线内部的阶段结果，由 finish 统一转换为记录和响应。
type outcome struct {
	status     domain.CallStatus
	result     map[string]any
	errType    string
	errMsg     string
	durationMs int64
}

// failure 构造一个失败的阶段结果。
func failure(errType, errMsg string, durationMs int64) outcome {
	return outcome{
		status:     domain.CallStatusFailed,
		errType:    errType,
		errMsg:     errMsg,
		durationMs: durationMs,
	}
}

// Engine 是调度引擎。
// 并发执行的调用数量由信号量限制在配置的上限内，
// 达到上限时按配置的策略立即拒绝或排队等待。
type Engine struct {
	cfg      config.DispatcherConfig
	registry *registry.Registry
	records  domain.CallRecordRepository
	uow      UnitOfWorkOpener
	metrics  *metrics.Metrics
	logger   *logrus.Logger
	sinks    []RecordSink

	// sem 是并发上限信号量，容量为 MaxConcurrent
	sem chan struct{}
}

// New 创建调度引擎。
func New(cfg config.DispatcherConfig, reg *registry.Registry, records domain.CallRecordRepository, uow UnitOfWorkOpener, m *metrics.Metrics, logger *logrus.Logger) *Engine {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 64
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 30 * time.Second
	}
	return &Engine{
		cfg:      cfg,
		registry: reg,
		records:  records,
		uow:      uow,
		metrics:  m,
		logger:   logger,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
	}
}

// AddRecordSink 注册一个调用记录的下游消费方。
// 只应在引擎开始服务流量之前调用。
func (e *Engine) AddRecordSink(sink RecordSink) {
	e.sinks = append(e.sinks, sink)
}

// Dispatch 执行一次完整的调度。
// 管线阶段依次为：解析函数、门禁裁决、输入校验、获取并发额度、
// 打开事务、执行处理器、输出校验、提交或回滚。
// 任何阶段失败都会短路后续阶段，但调用记录总会被写入。
// 返回值永远非 nil，失败以 ErrorType 编码而不以 error 返回。
func (e *Engine) Dispatch(ctx context.Context, req *DispatchRequest) *DispatchResult {
	callID := domain.NewRequestID()
	log := e.logger.WithFields(logrus.Fields{
		"call_id":  callID,
		"function": req.FunctionName,
		"trigger":  string(req.Trigger),
	})

	// 解析函数
	desc, err := e.registry.Resolve(req.FunctionName)
	if err != nil {
		return e.finish(log, req, callID,
			failure(domain.ErrorTypeNotFound, fmt.Sprintf("function %q is not registered", req.FunctionName), 0))
	}

	// 门禁裁决。拒绝是终结性的：不校验输入、不执行处理器
	if decision := access.Authorize(desc.AccessLevel, req.Caller); !decision.Allowed {
		return e.finish(log, req, callID,
			failure(domain.ErrorTypeAuthorization, decision.Reason, 0))
	}

	// 输入校验，失败时汇总全部违规项
	payload, err := schema.ValidateInput(desc.InputShape, req.Payload)
	if err != nil {
		return e.finish(log, req, callID,
			failure(domain.ErrorTypeValidation, err.Error(), 0))
	}

	// 获取并发额度
	release, err := e.acquire(ctx)
	if err != nil {
		return e.finish(log, req, callID,
			failure(domain.ErrorTypeRuntimeBusy, err.Error(), 0))
	}
	defer release()

	return e.finish(log, req, callID, e.execute(ctx, req, callID, desc, payload, log))
}

// acquire 获取一个并发执行额度，返回释放函数。
// 额度已满时按配置策略处理："reject" 立即失败，
// "queue" 排队等待直至拿到额度或请求上下文被取消。
func (e *Engine) acquire(ctx context.Context) (func(), error) {
	select {
	case e.sem <- struct{}{}:
	default:
		if e.cfg.OnSaturation != "queue" {
			return nil, domain.ErrRuntimeBusy
		}
		select {
		case e.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: cancelled while queued", domain.ErrRuntimeBusy)
		}
	}

	if e.metrics != nil {
		e.metrics.InflightDispatches.Inc()
	}
	return func() {
		<-e.sem
		if e.metrics != nil {
			e.metrics.InflightDispatches.Dec()
		}
	}, nil
}

// handlerReturn 是处理器协程的返回值。
type handlerReturn struct {
	output map[string]any
	err    error
}

// execute 运行执行阶段：打开事务、构建上下文、执行处理器、
// 校验输出并提交或回滚。耗时只统计处理器执行本身。
func (e *Engine) execute(ctx context.Context, req *DispatchRequest, callID string, desc *domain.Descriptor, payload map[string]any, log *logrus.Entry) outcome {
	// 为本次调用打开独占的事务句柄
	uow, err := e.uow.Begin(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to open storage transaction")
		return failure(domain.ErrorTypeHandler, "failed to open storage transaction", 0)
	}

	timeout := desc.Timeout(e.cfg.HandlerTimeout)
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	callCtx := domain.NewContext(execCtx, callID, desc.Name, req.Trigger, req.TriggerID, req.Caller, uow)

	// 处理器在独立协程中执行，异常在协程内捕获并转换为错误
	done := make(chan handlerReturn, 1)
	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- handlerReturn{err: domain.NewHandlerError("PanicError", fmt.Sprintf("handler panic: %v", r))}
			}
		}()
		output, err := desc.Handler(callCtx, payload)
		done <- handlerReturn{output: output, err: err}
	}()

	var ret handlerReturn
	select {
	case ret = <-done:
	case <-execCtx.Done():
		// 立即回滚并返回，处理器协程运行至返回后其结果被丢弃。
		// 审计记录区分上游取消与时间预算耗尽
		uow.Rollback()
		msg := domain.ErrHandlerTimeout.Error()
		if errors.Is(execCtx.Err(), context.Canceled) {
			msg = "dispatch cancelled by caller"
		}
		return failure(domain.ErrorTypeTimeout, msg, time.Since(start).Milliseconds())
	}
	durationMs := time.Since(start).Milliseconds()

	if ret.err != nil {
		uow.Rollback()
		return classifyHandlerError(ret.err, durationMs)
	}

	// 输出校验：处理器自身的产出违反声明的输出模式属于函数缺陷，
	// 与调用者的输入错误严格区分
	result, err := schema.ValidateOutput(desc.OutputShape, ret.output)
	if err != nil {
		uow.Rollback()
		return failure(domain.ErrorTypeOutputValidation, err.Error(), durationMs)
	}

	if err := uow.Commit(); err != nil {
		log.WithError(err).Error("Failed to commit storage transaction")
		return failure(domain.ErrorTypeHandler, "failed to commit storage transaction", durationMs)
	}

	return outcome{
		status:     domain.CallStatusSucceeded,
		result:     result,
		durationMs: durationMs,
	}
}

// classifyHandlerError 将处理器返回的错误分类。
// 超时错误归为 TimeoutError；带种类标识的应用级错误保留其种类作为
// error_type（如 "ValueError"），用于诊断；其余错误统一归为 HandlerError。
func classifyHandlerError(err error, durationMs int64) outcome {
	if errors.Is(err, context.DeadlineExceeded) {
		return failure(domain.ErrorTypeTimeout, domain.ErrHandlerTimeout.Error(), durationMs)
	}

	var he *domain.HandlerError
	if errors.As(err, &he) && he.Kind != "" {
		return failure(he.Kind, he.Message, durationMs)
	}

	return failure(domain.ErrorTypeHandler, err.Error(), durationMs)
}

// finish 将阶段结果转换为调用记录和调度响应。
// 记录写入失败不改变调度结果，但必须显式暴露：记录错误日志并累加告警指标。
func (e *Engine) finish(log *logrus.Entry, req *DispatchRequest, callID string, oc outcome) *DispatchResult {
	rec := &domain.CallRecord{
		ID:           callID,
		FunctionName: req.FunctionName,
		TriggerType:  req.Trigger,
		TriggerID:    req.TriggerID,
		Status:       oc.status,
		DurationMs:   oc.durationMs,
		ErrorMessage: oc.errMsg,
		ErrorType:    oc.errType,
		CreatedAt:    time.Now(),
	}
	if req.Caller != nil && !req.Caller.System {
		rec.UserID = req.Caller.UserID
	}

	if err := e.records.Insert(rec); err != nil {
		// 审计数据丢失，指标非零时需要告警
		log.WithError(err).Error("Failed to write call record")
		if e.metrics != nil {
			e.metrics.RecordWriteFailures.Inc()
		}
	} else {
		for _, sink := range e.sinks {
			sink.PublishCallRecorded(rec)
		}
	}

	e.metrics.ObserveDispatch(req.FunctionName, string(req.Trigger), string(oc.status), oc.errType, oc.durationMs)

	if oc.status == domain.CallStatusSucceeded {
		log.WithField("duration_ms", oc.durationMs).Info("Dispatch completed")
	} else {
		log.WithFields(logrus.Fields{
			"error_type": oc.errType,
			"error":      oc.errMsg,
		}).Warn("Dispatch failed")
	}

	return &DispatchResult{
		CallID:       callID,
		Status:       oc.status,
		Result:       oc.result,
		ErrorType:    oc.errType,
		ErrorMessage: oc.errMsg,
		DurationMs:   oc.durationMs,
	}
}

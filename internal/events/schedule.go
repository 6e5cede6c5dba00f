// Package events 提供平台事件总线与定时触发适配。
// 本文件实现定时触发适配器：订阅调度器进程发布的触发事件，
// 以平台内部主体的身份转交给调度引擎执行。
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oriys/tinybase/internal/domain"
	"github.com/oriys/tinybase/internal/engine"
)

// ScheduleFireEvent 是定时触发事件的载荷。
type ScheduleFireEvent struct {
	// ScheduleID 是定时任务的标识
	ScheduleID string `json:"schedule_id"`
	// FunctionName 是要调用的函数名称
	FunctionName string `json:"function_name"`
	// Payload 是随触发一起定义的 JSON 输入载荷
	Payload json.RawMessage `json:"payload,omitempty"`
}

// PublishScheduleFire 发布一次定时触发事件，由调度器进程在到点时调用。
func (eb *EventBus) PublishScheduleFire(ctx context.Context, fire *ScheduleFireEvent) error {
	data, err := json.Marshal(fire)
	if err != nil {
		return err
	}
	event := &Event{
		ID:        domain.NewRequestID(),
		Type:      SubjectScheduleFire,
		Source:    "scheduler",
		Subject:   SubjectScheduleFire,
		Data:      data,
		Timestamp: time.Now(),
	}
	return eb.Publish(ctx, SubjectScheduleFire, event)
}

// ScheduleAckEvent 是一次定时触发的执行回执。
type ScheduleAckEvent struct {
	// ScheduleID 是触发本次调用的定时任务标识
	ScheduleID string `json:"schedule_id"`
	// CallID 是调用记录的标识
	CallID string `json:"call_id"`
	// Status 是调用的最终状态（succeeded/failed）
	Status string `json:"status"`
	// ErrorType 是失败时的错误类型分类
	ErrorType string `json:"error_type,omitempty"`
}

// publishScheduleAck 发布一次定时触发的执行回执。
// 回执仅供调度器进程观测，发布失败不影响调用本身。
func (eb *EventBus) publishScheduleAck(ctx context.Context, ack *ScheduleAckEvent) error {
	data, err := json.Marshal(ack)
	if err != nil {
		return err
	}
	event := &Event{
		ID:        domain.NewRequestID(),
		Type:      SubjectScheduleAck,
		Source:    "gateway",
		Subject:   SubjectScheduleAck,
		Data:      data,
		Timestamp: time.Now(),
	}
	return eb.Publish(ctx, SubjectScheduleAck, event)
}

// ScheduleTrigger 是定时触发适配器。
// 它订阅触发事件并调用调度引擎，调用以内部主体身份执行，
// 不受函数访问级别约束；调用失败由引擎记录，适配器只记录日志。
type ScheduleTrigger struct {
	bus    *EventBus
	engine *engine.Engine
	logger *logrus.Logger
}

// NewScheduleTrigger 创建定时触发适配器。
func NewScheduleTrigger(bus *EventBus, eng *engine.Engine, logger *logrus.Logger) *ScheduleTrigger {
	return &ScheduleTrigger{
		bus:    bus,
		engine: eng,
		logger: logger,
	}
}

// Start 开始消费定时触发事件，ctx 取消时停止。
// 消息始终被确认：无论调用结果如何，记录都已写入，
// 重试投递只会造成重复执行。
func (t *ScheduleTrigger) Start(ctx context.Context) error {
	return t.bus.Subscribe(ctx, SubjectScheduleFire, "tinybase-gateway", func(event *Event) error {
		var fire ScheduleFireEvent
		if err := json.Unmarshal(event.Data, &fire); err != nil {
			// 载荷损坏无法重试，记录后按已处理确认
			t.logger.WithError(err).WithField("event_id", event.ID).Error("Failed to unmarshal schedule fire event")
			return nil
		}

		result := t.engine.Dispatch(ctx, &engine.DispatchRequest{
			FunctionName: fire.FunctionName,
			Trigger:      domain.TriggerSchedule,
			TriggerID:    fire.ScheduleID,
			Caller:       domain.SystemCaller(),
			Payload:      fire.Payload,
		})

		log := t.logger.WithFields(logrus.Fields{
			"schedule_id": fire.ScheduleID,
			"function":    fire.FunctionName,
			"call_id":     result.CallID,
		})
		if result.Succeeded() {
			log.WithField("duration_ms", result.DurationMs).Info("Scheduled call completed")
		} else {
			log.WithFields(logrus.Fields{
				"error_type": result.ErrorType,
				"error":      result.ErrorMessage,
			}).Warn("Scheduled call failed")
		}

		// 回执发布失败只记录日志：记录已持久化，回执是旁路观测
		if err := t.bus.publishScheduleAck(ctx, &ScheduleAckEvent{
			ScheduleID: fire.ScheduleID,
			CallID:     result.CallID,
			Status:     string(result.Status),
			ErrorType:  result.ErrorType,
		}); err != nil {
			log.WithError(err).Warn("Failed to publish schedule ack")
		}
		return nil
	})
}

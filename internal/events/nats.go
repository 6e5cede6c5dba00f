// Package events 提供平台事件总线与定时触发适配。
// 当前实现基于 NATS JetStream：调度器进程发布定时触发事件，
// 网关订阅并转交给调度引擎执行；引擎写入的调用记录也会以事件形式发布，
// 供审计消费方订阅。
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/oriys/tinybase/internal/domain"
)

// 事件 subject 常量定义
const (
	// SubjectScheduleFire 是定时触发事件的 subject
	SubjectScheduleFire = "schedule.fire"
	// SubjectScheduleAck 是定时触发回执的 subject
	SubjectScheduleAck = "schedule.ack"
	// SubjectCallRecorded 是调用记录写入事件的 subject
	SubjectCallRecorded = "call.recorded"
)

// EventBus 封装 NATS/JetStream 连接与常用发布/订阅操作。
type EventBus struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger *logrus.Logger
}

// Event 表示平台内部事件（JSON 格式）。
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Subject   string          `json:"subject"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// EventHandler 定义事件处理回调。
type EventHandler func(event *Event) error

// NewEventBus 创建 EventBus 并初始化所需的 JetStream Stream。
func NewEventBus(natsURL string, logger *logrus.Logger) (*EventBus, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	// 为定时触发/调用记录初始化 Stream（不存在则创建，存在则尝试更新配置）
	streams := []nats.StreamConfig{
		{
			Name:     "SCHEDULES",
			Subjects: []string{"schedule.>"},
			Storage:  nats.FileStorage,
			MaxAge:   24 * time.Hour, // 保留 1 天
		},
		{
			Name:     "CALLS",
			Subjects: []string{"call.>"},
			Storage:  nats.FileStorage,
			MaxAge:   24 * time.Hour * 7, // 保留 7 天
		},
	}

	for _, cfg := range streams {
		_, err := js.AddStream(&cfg)
		if err != nil && err != nats.ErrStreamNameAlreadyInUse {
			// 失败时尝试更新（例如 Stream 已存在但配置不同）
			js.UpdateStream(&cfg)
		}
	}

	return &EventBus{
		conn:   nc,
		js:     js,
		logger: logger,
	}, nil
}

// Close 关闭底层 NATS 连接。
func (eb *EventBus) Close() error {
	eb.conn.Close()
	return nil
}

// Publish 发布事件到指定 subject。
func (eb *EventBus) Publish(ctx context.Context, subject string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = eb.js.Publish(subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.WithFields(logrus.Fields{
		"subject":  subject,
		"event_id": event.ID,
		"type":     event.Type,
	}).Debug("Event published")

	return nil
}

// Subscribe 以指定的 durable 名称订阅匹配 subject 的事件。
// ctx 取消时将自动取消订阅。
func (eb *EventBus) Subscribe(ctx context.Context, subject, durable string, handler EventHandler) error {
	sub, err := eb.js.Subscribe(subject, func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			eb.logger.WithError(err).Error("Failed to unmarshal event")
			msg.Nak()
			return
		}

		if err := handler(&event); err != nil {
			eb.logger.WithError(err).WithField("event_id", event.ID).Error("Failed to handle event")
			msg.Nak()
			return
		}

		msg.Ack()
	}, nats.Durable(durable), nats.ManualAck())

	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
	}()

	return nil
}

// PublishCallRecorded 发布“调用记录已写入”事件。
// 该方法实现了调度引擎的记录下游接口，发布失败只记录日志，
// 绝不影响调用记录本身的持久化。
func (eb *EventBus) PublishCallRecorded(rec *domain.CallRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		eb.logger.WithError(err).Error("Failed to marshal call record event")
		return
	}
	event := &Event{
		ID:        rec.ID,
		Type:      SubjectCallRecorded,
		Source:    "engine",
		Subject:   SubjectCallRecorded,
		Data:      data,
		Timestamp: time.Now(),
	}
	if err := eb.Publish(context.Background(), SubjectCallRecorded, event); err != nil {
		eb.logger.WithError(err).WithField("call_id", rec.ID).Error("Failed to publish call recorded event")
	}
}

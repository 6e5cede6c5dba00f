// Package scheduler 实现定时调度服务。
// 调度器进程从 YAML 定义加载定时任务，在到点时通过事件总线发布触发事件，
// 由网关消费并执行实际的函数调用。调度器自身不执行任何处理器。
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/oriys/tinybase/internal/events"
)

// Schedule 是一条定时任务的定义。
type Schedule struct {
	// ID 是定时任务的唯一标识，随触发事件传递并记入调用记录
	ID string `yaml:"id"`
	// Cron 是触发时间表达式（支持秒级，6 字段）
	Cron string `yaml:"cron"`
	// Function 是要调用的函数名称
	Function string `yaml:"function"`
	// Payload 是随触发一起发送的输入载荷
	Payload map[string]any `yaml:"payload,omitempty"`
}

// scheduleFile 是定时任务定义文件的顶层结构。
type scheduleFile struct {
	Schedules []Schedule `yaml:"schedules"`
}

// LoadSchedules 从 YAML 文件加载定时任务定义并校验。
func LoadSchedules(path string) ([]Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schedules file: %w", err)
	}

	var file scheduleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse schedules file: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Schedules))
	for i, s := range file.Schedules {
		if s.ID == "" || s.Cron == "" || s.Function == "" {
			return nil, fmt.Errorf("schedule %d: id, cron and function are required", i)
		}
		if _, ok := seen[s.ID]; ok {
			return nil, fmt.Errorf("duplicate schedule id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
	}

	return file.Schedules, nil
}

// Firer 定义触发发布能力，由 NATS 事件总线实现。
type Firer interface {
	PublishScheduleFire(ctx context.Context, fire *events.ScheduleFireEvent) error
}

// CronManager 管理定时任务的注册与触发。
type CronManager struct {
	cron   *cron.Cron
	firer  Firer
	logger *logrus.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID // scheduleID -> cronEntryID
}

// NewCronManager 创建一个新的 CronManager。
func NewCronManager(firer Firer, logger *logrus.Logger) *CronManager {
	return &CronManager{
		cron:    cron.New(cron.WithSeconds()), // 支持秒级
		firer:   firer,
		logger:  logger,
		entries: make(map[string]cron.EntryID),
	}
}

// Start 启动 Cron 调度器。
func (cm *CronManager) Start() {
	cm.cron.Start()
	cm.logger.Info("Cron manager started")
}

// Reload 用给定的定义集合替换全部定时任务。
// 表达式无效的任务被跳过并记录错误，其余任务正常注册。
func (cm *CronManager) Reload(schedules []Schedule) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	// 先清空现有任务
	for _, entryID := range cm.entries {
		cm.cron.Remove(entryID)
	}
	cm.entries = make(map[string]cron.EntryID)

	for _, s := range schedules {
		cm.addSchedule(s)
	}

	cm.logger.WithField("count", len(cm.entries)).Info("Loaded cron schedules")
}

// addSchedule 将一条定时任务注册到 cron 调度器。
// 调用此方法前必须持有 cm.mu 锁。
func (cm *CronManager) addSchedule(s Schedule) {
	// 载荷在注册时序列化一次，触发时直接发送
	var payload json.RawMessage
	if s.Payload != nil {
		data, err := json.Marshal(s.Payload)
		if err != nil {
			cm.logger.WithError(err).WithField("schedule_id", s.ID).Error("Failed to marshal schedule payload")
			return
		}
		payload = data
	}

	entryID, err := cm.cron.AddFunc(s.Cron, func() {
		cm.logger.WithFields(logrus.Fields{
			"schedule_id": s.ID,
			"function":    s.Function,
			"cron":        s.Cron,
		}).Info("Firing schedule")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := cm.firer.PublishScheduleFire(ctx, &events.ScheduleFireEvent{
			ScheduleID:   s.ID,
			FunctionName: s.Function,
			Payload:      payload,
		})
		if err != nil {
			cm.logger.WithError(err).WithField("schedule_id", s.ID).Error("Failed to publish schedule fire event")
		}
	})

	if err != nil {
		cm.logger.WithError(err).WithFields(logrus.Fields{
			"schedule_id": s.ID,
			"cron":        s.Cron,
		}).Error("Failed to add schedule")
		return
	}

	cm.entries[s.ID] = entryID
}

// Stop 停止 Cron 调度器，等待正在执行的触发回调完成。
func (cm *CronManager) Stop() {
	ctx := cm.cron.Stop()
	<-ctx.Done()
	cm.logger.Info("Cron manager stopped")
}

// Package main 是定时调度服务的入口点。
// 调度服务独立于网关运行：从 YAML 定义加载定时任务，
// 到点时通过 NATS 发布触发事件，由网关消费并执行函数调用。
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/oriys/tinybase/internal/config"
	"github.com/oriys/tinybase/internal/events"
	"github.com/oriys/tinybase/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	// 使用 JSON 格式便于日志收集系统解析
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	logger.Info("Starting scheduler service...")

	// 连接事件总线：触发事件经由 NATS 送达网关
	bus, err := events.NewEventBus(cfg.Events.NATSURL, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to NATS")
	}
	defer bus.Close()

	// 加载定时任务定义并注册
	schedules, err := scheduler.LoadSchedules(cfg.Schedules.File)
	if err != nil {
		logger.WithError(err).WithField("file", cfg.Schedules.File).Fatal("Failed to load schedules")
	}

	manager := scheduler.NewCronManager(bus, logger)
	manager.Reload(schedules)
	manager.Start()
	defer manager.Stop()

	// 监听定义文件的变更并热加载（可选）
	if cfg.Schedules.WatchFile {
		watcher := scheduler.NewWatcher(cfg.Schedules.File, manager, logger)
		if err := watcher.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to watch schedules file")
		}
		defer watcher.Stop()
		logger.WithField("file", cfg.Schedules.File).Info("Watching schedules file for changes")
	}

	logger.WithField("schedules", len(schedules)).Info("Scheduler service started successfully")

	// 等待关闭信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down scheduler service...")
}

// Package main 是函数运行时网关服务的入口点。
// 网关负责接收函数调用请求（手动触发和定时触发），
// 经由调度引擎统一执行并记录每次调用的结果。
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/oriys/tinybase/internal/api"
	"github.com/oriys/tinybase/internal/auth"
	"github.com/oriys/tinybase/internal/config"
	"github.com/oriys/tinybase/internal/domain"
	"github.com/oriys/tinybase/internal/engine"
	"github.com/oriys/tinybase/internal/events"
	"github.com/oriys/tinybase/internal/functions"
	"github.com/oriys/tinybase/internal/metrics"
	"github.com/oriys/tinybase/internal/registry"
	"github.com/oriys/tinybase/internal/storage"
	"github.com/oriys/tinybase/internal/telemetry"
)

// redisRecordSink 将调用记录累加到 Redis 统计缓存。
// 缓存失败只记录日志，不影响调用记录的持久化。
type redisRecordSink struct {
	store  *storage.RedisStore
	logger *logrus.Logger
}

func (s *redisRecordSink) PublishCallRecorded(rec *domain.CallRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.store.RecordCall(ctx, rec); err != nil {
		s.logger.WithError(err).WithField("call_id", rec.ID).Warn("Failed to update call stats cache")
	}
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	// 使用 JSON 格式输出日志，便于日志收集和分析
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load config")
	}

	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}
	if cfg.Logging.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	logger.Info("Starting TinyBase Gateway")

	// 初始化遥测系统 (OpenTelemetry)
	if cfg.Telemetry.Enabled {
		tel, err := telemetry.New(context.Background(), telemetry.Config{
			Enabled:     cfg.Telemetry.Enabled,
			Endpoint:    cfg.Telemetry.Endpoint,
			ServiceName: cfg.Telemetry.ServiceName,
			SampleRate:  cfg.Telemetry.SampleRate,
			Environment: cfg.Telemetry.Environment,
		})
		if err != nil {
			// 遥测初始化失败不影响主服务运行
			logger.WithError(err).Warn("Failed to initialize telemetry, continuing without tracing")
		} else {
			defer tel.Shutdown(context.Background())
			// 日志自动关联追踪上下文
			logger.AddHook(telemetry.NewLogrusHook())
			logger.WithFields(logrus.Fields{
				"endpoint":    cfg.Telemetry.Endpoint,
				"sample_rate": cfg.Telemetry.SampleRate,
			}).Info("Telemetry initialized")
		}
	}

	// 初始化 PostgreSQL 存储：调用记录与 API Key 的权威数据源
	pgStore, err := storage.NewPostgresStore(cfg.Storage.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to PostgreSQL")
	}
	defer pgStore.Close()

	// 初始化 Redis 统计缓存（可选）
	var redisStore *storage.RedisStore
	if cfg.Storage.Redis.Enabled {
		redisStore, err = storage.NewRedisStore(cfg.Storage.Redis)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redisStore.Close()
	}

	// 初始化 Prometheus 指标收集器
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics(cfg.Metrics.Namespace)
	}

	// 构建注册表：注册全部内置函数后封闭，运行期间只读
	reg := registry.New()
	for _, desc := range functions.All() {
		if err := reg.Register(desc); err != nil {
			logger.WithError(err).WithField("function", desc.Name).Fatal("Failed to register function")
		}
	}
	reg.Seal()
	if m != nil {
		m.RegisteredFunctions.Set(float64(reg.Len()))
	}
	logger.WithField("functions", reg.Len()).Info("Function registry sealed")

	// 调度引擎：所有触发来源的共同入口
	eng := engine.New(cfg.Dispatcher, reg, pgStore, pgStore, m, logger)

	// 调用记录的下游消费方
	streamHub := api.NewStreamHub(logger)
	eng.AddRecordSink(streamHub)
	defer streamHub.Close()

	// Redis 可用时：计数器作为写入端，统计查询和推送回放作为读取端
	var statsProvider api.StatsProvider = pgStore
	if redisStore != nil {
		eng.AddRecordSink(&redisRecordSink{store: redisStore, logger: logger})
		streamHub.SetHistory(redisStore)

		names := make([]string, 0, reg.Len())
		for _, desc := range reg.List() {
			names = append(names, desc.Name)
		}
		statsProvider = storage.NewStatsCache(redisStore, pgStore, names, logger)
	}

	// 定时触发适配器：消费调度器进程发布的触发事件
	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()
	if cfg.Events.Enabled {
		bus, err := events.NewEventBus(cfg.Events.NATSURL, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to NATS")
		}
		defer bus.Close()
		eng.AddRecordSink(bus)

		trigger := events.NewScheduleTrigger(bus, eng, logger)
		if err := trigger.Start(rootCtx); err != nil {
			logger.WithError(err).Fatal("Failed to start schedule trigger")
		}
		logger.Info("Schedule trigger started")
	}

	// 认证中间件（可选）：解析 JWT / API Key 为调用者身份
	var authMw *auth.Middleware
	if cfg.Auth.Enabled {
		jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, 24*time.Hour)
		authMw = auth.NewMiddleware(jwtManager, cfg.Auth.APIKeyHeader, pgStore)
	}

	handler := api.NewHandler(eng, reg, pgStore, statsProvider, pgStore, pgStore, logger)
	router := api.NewRouter(&api.RouterConfig{
		Handler:        handler,
		AuthMiddleware: authMw,
		StreamHub:      streamHub,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	// 启动钩子在开始服务流量之前执行
	functions.RunStartupHooks(rootCtx, logger)

	// 指标端口与主服务端口不同时，单独启动指标服务器
	var metricsServer *http.Server
	if cfg.Metrics.Enabled && cfg.Server.MetricsPort != cfg.Server.HTTPPort {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.MetricsPort),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			logger.WithField("port", cfg.Server.MetricsPort).Info("Starting metrics server")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Fatal("Metrics server failed")
			}
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second, // 函数执行可能较长
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Server.HTTPPort).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	// 等待关闭信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// 优雅关闭：等待现有请求处理完成
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server shutdown error")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.WithError(err).Error("Metrics server shutdown error")
		}
	}

	functions.RunShutdownHooks(ctx, logger)

	logger.Info("Server stopped")
}

// Package api 提供函数运行时网关的 HTTP API 处理程序。
// 本文件负责配置 HTTP 路由器和中间件，将 HTTP 请求映射到相应的处理器方法。
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oriys/tinybase/internal/auth"
	"github.com/oriys/tinybase/internal/telemetry"
)

// RouterConfig 路由器配置选项。
type RouterConfig struct {
	// Handler API 处理器
	Handler *Handler
	// AuthMiddleware 认证中间件（可选，未配置时所有请求均为匿名）
	AuthMiddleware *auth.Middleware
	// StreamHub 调用记录实时推送中心（可选）
	StreamHub *StreamHub
	// RequestTimeout 单个请求的超时时间，零值时默认 60 秒
	RequestTimeout time.Duration
}

// NewRouter 创建并配置 HTTP 路由器。
//
// 路由结构：
//
//	/health               - 基本健康检查
//	/health/ready         - 就绪探针（验证存储连接）
//	/health/live          - 存活探针
//	/metrics              - Prometheus 指标端点
//	/functions/{name}     - 函数调用端点（手动触发）
//	/api/v1/functions     - 注册表查询 API
//	/api/v1/calls         - 调用记录审计 API
//	/api/v1/calls/stream  - 调用记录实时推送（WebSocket）
//	/api/v1/apikeys       - API Key 签发（仅管理员）
//	/api/v1/stats         - 系统统计 API
func NewRouter(cfg *RouterConfig) *chi.Mux {
	h := cfg.Handler
	r := chi.NewRouter()

	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}

	// 中间件按照添加顺序执行，形成洋葱模型
	r.Use(telemetry.HTTPMiddleware("tinybase-gateway"))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Compress(5, "application/json", "text/plain"))
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(corsMiddleware)

	// 健康检查端点 - 用于负载均衡器和 Kubernetes 探针
	r.Get("/health", h.Health)
	r.Get("/health/ready", h.Ready)
	r.Get("/health/live", h.Live)

	// Prometheus 指标端点
	r.Handle("/metrics", promhttp.Handler())

	// 函数调用端点 - 手动触发适配器
	r.Group(func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware.Resolve)
		}
		r.Post("/functions/{name}", h.InvokeFunction)
	})

	// API v1 路由组
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware.Resolve)
		}

		r.Route("/functions", func(r chi.Router) {
			// GET /api/v1/functions - 获取已注册函数列表
			r.Get("/", h.ListFunctions)
			// GET /api/v1/functions/{name} - 获取单个函数描述
			r.Get("/{name}", h.GetFunction)
		})

		r.Route("/calls", func(r chi.Router) {
			// GET /api/v1/calls - 分页查询调用记录
			r.Get("/", h.ListCalls)
			if cfg.StreamHub != nil {
				// GET /api/v1/calls/stream - 实时推送调用记录
				r.Get("/stream", cfg.StreamHub.ServeStream)
			}
			// GET /api/v1/calls/{id} - 获取单条调用记录
			r.Get("/{id}", h.GetCall)
		})

		// POST /api/v1/apikeys - 签发 API Key（仅管理员）
		r.Post("/apikeys", h.CreateAPIKey)

		// GET /api/v1/stats - 系统统计
		r.Get("/stats", h.Stats)
	})

	return r
}

// corsMiddleware 是处理跨域资源共享(CORS)的中间件。
// 生产环境建议将 Access-Control-Allow-Origin 限制为特定域名。
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		// 预检请求直接返回
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

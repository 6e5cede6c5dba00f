// Package config 提供函数运行时的配置管理功能。
// 该包负责从 YAML 配置文件加载配置，并支持通过环境变量覆盖敏感配置项
// （如数据库密码和 JWT 密钥）。配置涵盖服务器、认证、调度器、
// 存储、事件、日志、指标和遥测等方面的设置。
package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是应用程序的主配置结构体，包含所有子系统的配置。
// 该结构体通过 YAML 标签与配置文件进行映射。
type Config struct {
	// Server 服务器配置，包括 HTTP 端口和超时设置
	Server ServerConfig `yaml:"server"`
	// Auth 认证配置，包括 JWT 和 API Key 相关设置
	Auth AuthConfig `yaml:"auth"`
	// Dispatcher 调度引擎配置，包括并发上限和处理器超时
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	// Storage 存储配置，包括 PostgreSQL 和 Redis 连接信息
	Storage StorageConfig `yaml:"storage"`
	// Events 事件配置，包括 NATS 连接信息
	Events EventsConfig `yaml:"events"`
	// Schedules 定时调度服务配置（仅 scheduler 进程使用）
	Schedules SchedulesConfig `yaml:"schedules"`
	// Logging 日志配置，包括日志级别和格式
	Logging LoggingConfig `yaml:"logging"`
	// Metrics 指标配置，用于 Prometheus 监控
	Metrics MetricsConfig `yaml:"metrics"`
	// Telemetry 遥测配置，用于分布式追踪
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig 服务器配置结构体。
type ServerConfig struct {
	// HTTPPort 是网关对外提供 API 的端口，默认 8090
	HTTPPort int `yaml:"http_port"`
	// MetricsPort 是 Prometheus 指标端口，与 HTTPPort 不同时单独监听，默认 9090
	MetricsPort int `yaml:"metrics_port"`
	// ShutdownTimeout 是优雅关闭的最长等待时间，默认 30 秒
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// RequestTimeout 是单个 HTTP 请求的超时时间，默认 60 秒
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// AuthConfig 认证配置结构体。
// 运行时只消费已解析的身份：JWT 与 API Key 都解析为调用者的用户标识和角色。
type AuthConfig struct {
	// Enabled 是否启用身份解析；禁用时所有请求均为匿名调用者
	Enabled bool `yaml:"enabled"`
	// JWTSecret 是验证 JWT 的密钥，可通过 TINYBASE_AUTH_JWT_SECRET 覆盖
	JWTSecret string `yaml:"jwt_secret"`
	// APIKeyHeader 是携带 API Key 的请求头名称，默认 X-API-Key
	APIKeyHeader string `yaml:"api_key_header"`
}

// DispatcherConfig 调度引擎配置结构体。
type DispatcherConfig struct {
	// MaxConcurrent 是并发执行的调用上限，默认 64
	MaxConcurrent int `yaml:"max_concurrent"`
	// OnSaturation 是达到并发上限时的策略："reject"（默认）立即以
	// RuntimeBusyError 拒绝，"queue" 排队等待直至请求上下文取消
	OnSaturation string `yaml:"on_saturation"`
	// HandlerTimeout 是处理器执行的默认超时时间，默认 30 秒
	HandlerTimeout time.Duration `yaml:"handler_timeout"`
}

// StorageConfig 存储配置结构体。
type StorageConfig struct {
	// Postgres PostgreSQL 连接配置
	Postgres PostgresConfig `yaml:"postgres"`
	// Redis Redis 连接配置
	Redis RedisConfig `yaml:"redis"`
}

// PostgresConfig PostgreSQL 配置结构体。
type PostgresConfig struct {
	// Host 数据库主机地址
	Host string `yaml:"host"`
	// Port 数据库端口
	Port int `yaml:"port"`
	// User 数据库用户名
	User string `yaml:"user"`
	// Password 数据库密码，可通过 TINYBASE_POSTGRES_PASSWORD 覆盖
	Password string `yaml:"password"`
	// Database 数据库名称
	Database string `yaml:"database"`
	// MaxConnections 连接池最大连接数
	MaxConnections int `yaml:"max_connections"`
}

// RedisConfig Redis 配置结构体。
type RedisConfig struct {
	// Enabled 是否启用 Redis（用于统计缓存），禁用时统计回退到 PostgreSQL
	Enabled bool `yaml:"enabled"`
	// Addr Redis 地址（host:port）
	Addr string `yaml:"addr"`
	// Password Redis 密码，可通过 TINYBASE_REDIS_PASSWORD 覆盖
	Password string `yaml:"password"`
	// DB Redis 数据库编号
	DB int `yaml:"db"`
}

// EventsConfig 事件总线配置结构体。
type EventsConfig struct {
	// Enabled 是否启用 NATS 事件总线（定时触发适配器依赖它）
	Enabled bool `yaml:"enabled"`
	// NATSURL NATS 服务器地址
	NATSURL string `yaml:"nats_url"`
}

// SchedulesConfig 定时调度服务配置结构体。
// 该配置仅由独立的 scheduler 进程消费，网关不读取。
type SchedulesConfig struct {
	// File 是定时任务定义文件的路径（YAML）
	File string `yaml:"file"`
	// WatchFile 是否监听定义文件的变更并热加载
	WatchFile bool `yaml:"watch_file"`
}

// LoggingConfig 日志配置结构体。
type LoggingConfig struct {
	// Level 日志级别（debug/info/warn/error），默认 info
	Level string `yaml:"level"`
	// Format 日志格式（json/text），默认 json
	Format string `yaml:"format"`
}

// MetricsConfig 指标配置结构体。
type MetricsConfig struct {
	// Enabled 是否启用 Prometheus 指标
	Enabled bool `yaml:"enabled"`
	// Namespace 指标命名空间，默认 tinybase
	Namespace string `yaml:"namespace"`
}

// TelemetryConfig 遥测配置结构体。
type TelemetryConfig struct {
	// Enabled 是否启用分布式追踪
	Enabled bool `yaml:"enabled"`
	// Endpoint OTLP gRPC 端点
	Endpoint string `yaml:"endpoint"`
	// ServiceName 服务名称，用于标识追踪数据来源
	ServiceName string `yaml:"service_name"`
	// SampleRate 采样率（0-1）
	SampleRate float64 `yaml:"sample_rate"`
	// Environment 环境标识（dev/staging/prod）
	Environment string `yaml:"environment"`
}

// Load 从指定路径加载 YAML 配置文件。
// 加载后会填充默认值并应用环境变量覆盖。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides 应用环境变量覆盖。
// 敏感配置项支持两种方式：
//  1. 直接设置环境变量（如 TINYBASE_POSTGRES_PASSWORD）
//  2. 通过 _FILE 后缀指定包含密钥的文件路径（如 TINYBASE_POSTGRES_PASSWORD_FILE），
//     适用于 Docker Secrets 等场景，优先级更高。
func (c *Config) applyEnvOverrides() {
	if v := readEnvOrFile("TINYBASE_POSTGRES_PASSWORD"); v != "" {
		c.Storage.Postgres.Password = v
	}
	if v := readEnvOrFile("TINYBASE_REDIS_PASSWORD"); v != "" {
		c.Storage.Redis.Password = v
	}
	if v := readEnvOrFile("TINYBASE_AUTH_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("TINYBASE_NATS_URL")); v != "" {
		c.Events.NATSURL = v
	}
}

// readEnvOrFile 从环境变量或其 _FILE 变体读取配置值。
// 优先从 <key>_FILE 指定的文件读取，文件不存在或读取失败时
// 回退到直接读取环境变量。
func readEnvOrFile(key string) string {
	if filePath := strings.TrimSpace(os.Getenv(key + "_FILE")); filePath != "" {
		if b, err := os.ReadFile(filePath); err == nil {
			return strings.TrimSpace(string(b))
		}
	}
	return strings.TrimSpace(os.Getenv(key))
}

// applyDefaults 应用默认配置值。
// 该方法为未设置的配置项填充合理的默认值，确保应用可以正常运行。
func (c *Config) applyDefaults() {
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8090
	}
	if c.Server.MetricsPort == 0 {
		c.Server.MetricsPort = 9090
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 60 * time.Second
	}
	if c.Auth.APIKeyHeader == "" {
		c.Auth.APIKeyHeader = "X-API-Key"
	}
	if c.Dispatcher.MaxConcurrent == 0 {
		c.Dispatcher.MaxConcurrent = 64
	}
	if c.Dispatcher.OnSaturation == "" {
		c.Dispatcher.OnSaturation = "reject"
	}
	if c.Dispatcher.HandlerTimeout == 0 {
		c.Dispatcher.HandlerTimeout = 30 * time.Second
	}
	if c.Storage.Postgres.MaxConnections == 0 {
		c.Storage.Postgres.MaxConnections = 20
	}
	if c.Storage.Redis.Addr == "" {
		c.Storage.Redis.Addr = "localhost:6379"
	}
	if c.Events.NATSURL == "" {
		c.Events.NATSURL = "nats://localhost:4222"
	}
	if c.Schedules.File == "" {
		c.Schedules.File = "configs/schedules.yaml"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "tinybase"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "tinybase-gateway"
	}
	if c.Telemetry.Endpoint == "" {
		c.Telemetry.Endpoint = "tempo:4317"
	}
	if c.Telemetry.SampleRate == 0 {
		c.Telemetry.SampleRate = 0.1
	}
	if c.Telemetry.Environment == "" {
		c.Telemetry.Environment = "development"
	}
}

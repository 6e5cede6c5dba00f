// Package storage 提供数据存储层的实现，包括 PostgreSQL 和 Redis 两种存储方式。
// 本文件实现了基于 Redis 的统计缓存功能，主要用于：
//   - 调用计数器（按函数、按状态）的实时累加
//   - 最近调用记录的滚动窗口缓存
// Redis 仅作为加速层，PostgreSQL 始终是权威数据源。
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oriys/tinybase/internal/config"
	"github.com/oriys/tinybase/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Redis 键常量定义
const (
	callCountKeyPrefix  = "calls:count:"            // 按函数统计的调用次数
	callStatusKeyPrefix = "calls:status:"           // 按状态统计的调用次数
	callDurationKey     = "calls:duration:total_ms" // 成功调用的处理器耗时累计（毫秒）
	recentCallsKey      = "calls:recent"            // 最近调用记录的列表（LPUSH + LTRIM 滚动窗口）
	recentCallsMax      = 100                       // 滚动窗口保留的最大记录数
)

// RedisStore 是 Redis 存储的封装结构体，提供调用统计的缓存加速。
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 创建并初始化一个新的 Redis 存储实例。
func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,

		// 连接池配置
		PoolSize:        50,
		MinIdleConns:    5,
		ConnMaxIdleTime: 5 * time.Minute,
		ConnMaxLifetime: 30 * time.Minute,

		// 超时配置
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	// 使用 5 秒超时测试 Redis 连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// RecordCall 将一次调用的结果累加到统计缓存。
// 使用 Pipeline 批量执行计数累加和滚动窗口写入，减少网络往返。
// 缓存写入失败不影响调用本身，调用方只需记录日志。
func (s *RedisStore) RecordCall(ctx context.Context, rec *domain.CallRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.IncrBy(ctx, callCountKeyPrefix+rec.FunctionName, 1)
	pipe.IncrBy(ctx, callStatusKeyPrefix+string(rec.Status), 1)
	if rec.Status == domain.CallStatusSucceeded {
		pipe.IncrBy(ctx, callDurationKey, rec.DurationMs)
	}
	pipe.LPush(ctx, recentCallsKey, data)
	pipe.LTrim(ctx, recentCallsKey, 0, recentCallsMax-1)
	_, err = pipe.Exec(ctx)
	return err
}

// RecentCalls 返回滚动窗口中缓存的最近调用记录，最新的在前。
func (s *RedisStore) RecentCalls(ctx context.Context, limit int) ([]*domain.CallRecord, error) {
	if limit <= 0 || limit > recentCallsMax {
		limit = recentCallsMax
	}
	items, err := s.client.LRange(ctx, recentCallsKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	records := make([]*domain.CallRecord, 0, len(items))
	for _, item := range items {
		rec := &domain.CallRecord{}
		if err := json.Unmarshal([]byte(item), rec); err != nil {
			// 缓存中的坏数据直接跳过，不影响其余记录
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// CallCount 返回指定函数的缓存调用次数，键不存在时返回 0。
func (s *RedisStore) CallCount(ctx context.Context, functionName string) (int64, error) {
	count, err := s.client.Get(ctx, callCountKeyPrefix+functionName).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return count, err
}

// StatusCount 返回指定状态的缓存调用次数，键不存在时返回 0。
func (s *RedisStore) StatusCount(ctx context.Context, status domain.CallStatus) (int64, error) {
	count, err := s.client.Get(ctx, callStatusKeyPrefix+string(status)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return count, err
}

// Stats 从缓存的计数器构建调用统计。
// functions 是注册表中的全部函数名，用于展开按函数的计数。
// 缓存中没有平均耗时的预聚合，用累计耗时除以成功次数得到。
func (s *RedisStore) Stats(ctx context.Context, functions []string) (*CallStats, error) {
	stats := &CallStats{ByFunction: make(map[string]int64, len(functions))}

	succeeded, err := s.StatusCount(ctx, domain.CallStatusSucceeded)
	if err != nil {
		return nil, err
	}
	failed, err := s.StatusCount(ctx, domain.CallStatusFailed)
	if err != nil {
		return nil, err
	}
	stats.Succeeded = succeeded
	stats.Failed = failed
	stats.Total = succeeded + failed

	if succeeded > 0 {
		totalMs, err := s.client.Get(ctx, callDurationKey).Int64()
		if err != nil && err != redis.Nil {
			return nil, err
		}
		stats.AvgDurationMs = float64(totalMs) / float64(succeeded)
	}

	for _, name := range functions {
		count, err := s.CallCount(ctx, name)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			stats.ByFunction[name] = count
		}
	}
	return stats, nil
}

// Ping 检查 Redis 连接是否正常，用于就绪探针。
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close 关闭 Redis 连接。
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Package storage 提供数据存储层的实现，包括 PostgreSQL 和 Redis 两种存储方式。
// 本文件实现统计查询的缓存前置：优先读取 Redis 的实时计数器，
// 缓存不可用时回退到 PostgreSQL 的权威聚合。
package storage

import (
	"context"

	"github.com/sirupsen/logrus"
)

// statsCounter 从缓存计数器构建统计，由 RedisStore 实现。
type statsCounter interface {
	Stats(ctx context.Context, functions []string) (*CallStats, error)
}

// statsAggregator 从权威数据源聚合统计，由 PostgresStore 实现。
type statsAggregator interface {
	Stats(ctx context.Context) (*CallStats, error)
}

// StatsCache 是统计查询的缓存前置读取器。
// 缓存读取失败只降级，不向调用方暴露错误。
type StatsCache struct {
	cache     statsCounter
	authority statsAggregator
	functions []string
	logger    *logrus.Logger
}

// NewStatsCache 创建统计缓存读取器。
// functions 传入注册表中的全部函数名，计数器按函数名展开。
func NewStatsCache(cache *RedisStore, authority *PostgresStore, functions []string, logger *logrus.Logger) *StatsCache {
	return &StatsCache{
		cache:     cache,
		authority: authority,
		functions: functions,
		logger:    logger,
	}
}

// Stats 返回调用统计，优先取缓存计数器。
func (c *StatsCache) Stats(ctx context.Context) (*CallStats, error) {
	stats, err := c.cache.Stats(ctx, c.functions)
	if err != nil {
		c.logger.WithError(err).Warn("Stats cache unavailable, falling back to PostgreSQL")
		return c.authority.Stats(ctx)
	}
	return stats, nil
}

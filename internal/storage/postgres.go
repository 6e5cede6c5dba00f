// Package storage 提供数据存储层的实现，包括 PostgreSQL 和 Redis 两种存储方式。
// 本文件实现了基于 PostgreSQL 的持久化存储功能，主要用于：
//   - 调用记录(CallRecord)的追加写入和审计查询
//   - 为每次调用打开独占的事务句柄
//   - API 密钥的管理
//   - 数据库迁移
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL 驱动
	"github.com/oriys/tinybase/internal/auth"
	"github.com/oriys/tinybase/internal/config"
	"github.com/oriys/tinybase/internal/domain"
)

// PostgresStore 是 PostgreSQL 存储的封装结构体。
// 提供调用记录和 API 密钥的持久化存储，并作为调用事务的开启方。
type PostgresStore struct {
	db *sql.DB // 数据库连接池
}

// NewPostgresStore 创建并初始化一个新的 PostgreSQL 存储实例。
// 该函数会建立数据库连接、配置连接池参数并执行数据库迁移。
func NewPostgresStore(cfg config.PostgresConfig) (*PostgresStore, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 配置连接池参数
	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 20
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns / 2)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	// 使用 5 秒超时测试数据库连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// migrate 执行数据库迁移，创建应用所需的表结构和索引。
// 使用 IF NOT EXISTS 确保迁移的幂等性。
func (s *PostgresStore) migrate() error {
	migrations := []string{
		// call_records 表 - 每次调用尝试恰好一条记录，只追加不修改
		`CREATE TABLE IF NOT EXISTS call_records (
			id VARCHAR(36) PRIMARY KEY,
			function_name VARCHAR(64) NOT NULL,
			user_id VARCHAR(64),
			trigger_type VARCHAR(16) NOT NULL,
			trigger_id VARCHAR(128),
			status VARCHAR(16) NOT NULL,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			error_message TEXT,
			error_type VARCHAR(32),
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_call_records_function ON call_records(function_name)`,
		`CREATE INDEX IF NOT EXISTS idx_call_records_status ON call_records(status)`,
		`CREATE INDEX IF NOT EXISTS idx_call_records_created_at ON call_records(created_at)`,
		// api_keys 表 - 只存储密钥哈希，不存储原始密钥
		`CREATE TABLE IF NOT EXISTS api_keys (
			id VARCHAR(36) PRIMARY KEY,
			name VARCHAR(64) NOT NULL,
			key_hash VARCHAR(64) UNIQUE NOT NULL,
			user_id VARCHAR(64) NOT NULL,
			role VARCHAR(16) NOT NULL DEFAULT 'user',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMP WITH TIME ZONE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_api_keys_hash ON api_keys(key_hash)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Begin 为一次调用打开独占的事务句柄。
// 返回的 *sql.Tx 满足 domain.UnitOfWork 接口，
// 由调度引擎在调用结束时提交或回滚。
func (s *PostgresStore) Begin(ctx context.Context) (domain.UnitOfWork, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// Insert 追加一条调用记录。
// 记录由调度引擎在调用结束后写入，写入独立于调用本身的事务。
func (s *PostgresStore) Insert(rec *domain.CallRecord) error {
	query := `
		INSERT INTO call_records (id, function_name, user_id, trigger_type, trigger_id, status, duration_ms, error_message, error_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.Exec(query,
		rec.ID, rec.FunctionName, nullIfEmpty(rec.UserID), rec.TriggerType, nullIfEmpty(rec.TriggerID),
		rec.Status, rec.DurationMs, nullIfEmpty(rec.ErrorMessage), nullIfEmpty(rec.ErrorType), rec.CreatedAt,
	)
	return err
}

// GetByID 根据 ID 获取调用记录详情。
// 记录不存在时返回 domain.ErrCallRecordNotFound。
func (s *PostgresStore) GetByID(id string) (*domain.CallRecord, error) {
	query := `
		SELECT id, function_name, user_id, trigger_type, trigger_id, status, duration_ms, error_message, error_type, created_at
		FROM call_records WHERE id = $1
	`
	rec, err := scanCallRecord(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrCallRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List 按筛选条件分页查询调用记录，按创建时间倒序排列。
// 返回记录列表和满足条件的总数（用于分页计算）。
func (s *PostgresStore) List(filter *domain.CallRecordFilter, offset, limit int) ([]*domain.CallRecord, int, error) {
	where, args := buildCallRecordWhere(filter)

	// 查询满足条件的记录总数
	var total int
	countQuery := "SELECT COUNT(*) FROM call_records" + where
	if err := s.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT id, function_name, user_id, trigger_type, trigger_id, status, duration_ms, error_message, error_type, created_at
		FROM call_records%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	rows, err := s.db.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []*domain.CallRecord
	for rows.Next() {
		rec, err := scanCallRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

// buildCallRecordWhere 根据筛选条件构建 WHERE 子句和参数列表。
// 所有条件均为可选，使用位置参数避免 SQL 注入。
func buildCallRecordWhere(filter *domain.CallRecordFilter) (string, []any) {
	if filter == nil {
		return "", nil
	}
	var conditions []string
	var args []any
	if filter.FunctionName != "" {
		args = append(args, filter.FunctionName)
		conditions = append(conditions, fmt.Sprintf("function_name = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.TriggerType != "" {
		args = append(args, filter.TriggerType)
		conditions = append(conditions, fmt.Sprintf("trigger_type = $%d", len(args)))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.Until != nil {
		args = append(args, *filter.Until)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// scanner 抽象 *sql.Row 和 *sql.Rows 的公共 Scan 方法。
type scanner interface {
	Scan(dest ...any) error
}

// scanCallRecord 从查询结果中扫描一条调用记录，处理可空字段。
func scanCallRecord(row scanner) (*domain.CallRecord, error) {
	rec := &domain.CallRecord{}
	var userID, triggerID, errMsg, errType sql.NullString
	err := row.Scan(
		&rec.ID, &rec.FunctionName, &userID, &rec.TriggerType, &triggerID,
		&rec.Status, &rec.DurationMs, &errMsg, &errType, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		rec.UserID = userID.String
	}
	if triggerID.Valid {
		rec.TriggerID = triggerID.String
	}
	if errMsg.Valid {
		rec.ErrorMessage = errMsg.String
	}
	if errType.Valid {
		rec.ErrorType = errType.String
	}
	return rec, nil
}

// CallStats 是调用记录的聚合统计。
type CallStats struct {
	// Total 记录总数
	Total int64 `json:"total"`
	// Succeeded 成功调用数
	Succeeded int64 `json:"succeeded"`
	// Failed 失败调用数
	Failed int64 `json:"failed"`
	// AvgDurationMs 成功调用的平均处理器耗时（毫秒）
	AvgDurationMs float64 `json:"avg_duration_ms"`
	// ByFunction 按函数名统计的调用次数
	ByFunction map[string]int64 `json:"by_function"`
}

// Stats 从数据库聚合调用统计。
// Redis 可用时优先使用其缓存的计数器，本方法是权威数据源。
func (s *PostgresStore) Stats(ctx context.Context) (*CallStats, error) {
	stats := &CallStats{ByFunction: make(map[string]int64)}

	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'succeeded'),
		       COUNT(*) FILTER (WHERE status = 'failed'),
		       COALESCE(AVG(duration_ms) FILTER (WHERE status = 'succeeded'), 0)
		FROM call_records
	`
	err := s.db.QueryRowContext(ctx, query).Scan(
		&stats.Total, &stats.Succeeded, &stats.Failed, &stats.AvgDurationMs,
	)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT function_name, COUNT(*) FROM call_records GROUP BY function_name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var count int64
		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}
		stats.ByFunction[name] = count
	}
	return stats, rows.Err()
}

// CreateAPIKey 持久化一个新的 API Key 记录（只存储哈希）。
func (s *PostgresStore) CreateAPIKey(key *auth.APIKey) error {
	query := `
		INSERT INTO api_keys (id, name, key_hash, user_id, role, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.Exec(query,
		key.ID, key.Name, key.KeyHash, key.UserID, key.Role, key.CreatedAt, key.ExpiresAt,
	)
	return err
}

// ValidateAPIKey 校验 API Key 并返回其关联的调用者身份。
// 实现 auth.APIKeyValidator 接口。密钥不存在或已过期时返回 ErrAPIKeyNotFound。
func (s *PostgresStore) ValidateAPIKey(key string) (*domain.Caller, error) {
	hash := auth.HashAPIKey(key)
	query := `SELECT user_id, role, expires_at FROM api_keys WHERE key_hash = $1`

	var userID, role string
	var expiresAt sql.NullTime
	err := s.db.QueryRow(query, hash).Scan(&userID, &role, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, auth.ErrAPIKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid && time.Now().After(expiresAt.Time) {
		return nil, auth.ErrAPIKeyNotFound
	}
	return &domain.Caller{UserID: userID, Role: role}, nil
}

// Ping 检查数据库连接是否正常，用于就绪探针。
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close 关闭数据库连接池。
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// DB 返回底层数据库连接，供需要直接执行 SQL 的场景使用。
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// nullIfEmpty 将空字符串转换为 NULL，避免可空列存储空字符串。
func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// Package domain 定义了函数运行时的核心领域模型。
package domain

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// 调用者角色常量
const (
	// RoleUser 表示普通已认证用户
	RoleUser = "user"
	// RoleAdmin 表示管理员
	RoleAdmin = "admin"
)

// Caller 表示已解析的调用者身份。
// 身份的签发（登录、令牌生成）不在运行时范围内，
// 运行时只消费认证层解析出的身份和角色。
// nil 的 *Caller 表示匿名（未认证）调用者。
type Caller struct {
	// UserID 是调用者的唯一标识符
	UserID string
	// Role 是调用者的角色（user/admin）
	Role string
	// System 表示这是平台内部的可信主体（如定时调度器），
	// 内部主体不受函数访问级别约束
	System bool
}

// IsAdmin 判断调用者是否具有管理员权限。
func (c *Caller) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

// SystemCaller 返回代表内部调度器的可信主体。
// 定时触发的调用没有用户身份，但由平台自身发起。
func SystemCaller() *Caller {
	return &Caller{System: true}
}

// UnitOfWork 是单次调用独占的事务性存储句柄。
// 在进入执行阶段时打开，成功则提交，失败或异常则回滚，
// 任何退出路径都保证释放；两个并发调用绝不共享同一个句柄。
type UnitOfWork interface {
	// ExecContext 执行写入语句
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	// QueryContext 执行查询语句
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	// QueryRowContext 执行单行查询
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	// Commit 提交事务
	Commit() error
	// Rollback 回滚事务
	Rollback() error
}

// Context 是单次调用的执行上下文。
// 每次调度都会构建一个全新的实例，传给恰好一个处理器后即被丢弃，
// 构建完成后任何字段都不允许再被修改。
// 内嵌的 context.Context 携带调用的取消与超时信号，
// 处理器应将其传递给所有阻塞操作。
type Context struct {
	context.Context

	// RequestID 是本次调用尝试的唯一标识（随机、全局唯一）
	RequestID string
	// FunctionName 是被调用函数的名称
	FunctionName string
	// TriggerType 是触发来源（manual/schedule）
	TriggerType TriggerType
	// TriggerID 是触发调度的标识，仅定时触发时存在
	TriggerID string
	// UserID 是调用者的用户标识，公开调用或定时触发时为空
	UserID string
	// IsAdmin 表示调用者是否为管理员
	IsAdmin bool
	// Timestamp 是调度发生的时间
	Timestamp time.Time
	// Storage 是本次调用独占的事务性存储句柄
	Storage UnitOfWork
}

// NewRequestID 生成一次调用尝试的唯一标识。
// 调度引擎在收到请求时立即生成，保证即使在上下文构建之前失败，
// 调用记录也能携带同一个标识。
func NewRequestID() string {
	return uuid.New().String()
}

// NewContext 构建一次调用的执行上下文。
// requestID 为空时自动生成，Timestamp 取调度时间。
func NewContext(parent context.Context, requestID, fnName string, trigger TriggerType, triggerID string, caller *Caller, storage UnitOfWork) *Context {
	if requestID == "" {
		requestID = NewRequestID()
	}
	c := &Context{
		Context:      parent,
		RequestID:    requestID,
		FunctionName: fnName,
		TriggerType:  trigger,
		TriggerID:    triggerID,
		Timestamp:    time.Now(),
		Storage:      storage,
	}
	if caller != nil && !caller.System {
		c.UserID = caller.UserID
		c.IsAdmin = caller.IsAdmin()
	}
	return c
}

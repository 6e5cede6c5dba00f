// Package domain 定义了函数运行时的核心领域模型。
package domain

import (
	"time"
)

// CallStatus 表示一次调用尝试的最终状态。
type CallStatus string

// 调用状态常量定义
const (
	// CallStatusSucceeded 表示调用成功完成
	CallStatusSucceeded CallStatus = "succeeded"
	// CallStatusFailed 表示调用在任一阶段失败
	CallStatusFailed CallStatus = "failed"
)

// 错误类型常量。
// 每个失败的调用记录都会携带其中一种错误类型，
// 用于审计界面展示和 HTTP 状态码映射。
const (
	// ErrorTypeNotFound 表示函数名未注册
	ErrorTypeNotFound = "NotFoundError"
	// ErrorTypeAuthorization 表示调用者访问级别不足
	ErrorTypeAuthorization = "AuthorizationError"
	// ErrorTypeValidation 表示输入载荷违反了输入模式
	ErrorTypeValidation = "ValidationError"
	// ErrorTypeOutputValidation 表示处理器返回值违反了输出模式
	ErrorTypeOutputValidation = "OutputValidationError"
	// ErrorTypeHandler 表示处理器内部抛出了应用级错误
	ErrorTypeHandler = "HandlerError"
	// ErrorTypeTimeout 表示处理器执行超出时间预算
	ErrorTypeTimeout = "TimeoutError"
	// ErrorTypeRuntimeBusy 表示并发上限已满，调度被拒绝
	ErrorTypeRuntimeBusy = "RuntimeBusyError"
)

// CallRecord 表示一次调用尝试的持久化审计记录。
// 记录是只追加的：每次调度尝试恰好产生一条记录，无论失败发生在哪个阶段；
// 记录一旦写入即不可变，之后由追踪存储独占持有。
type CallRecord struct {
	// ID 与本次调用的 RequestID 相同
	ID string `json:"id"`
	// FunctionName 是被调用函数的名称
	FunctionName string `json:"function_name"`
	// UserID 是调用者的用户标识，公开调用或定时触发时为空
	UserID string `json:"user_id,omitempty"`
	// TriggerType 是触发来源（manual/schedule）
	TriggerType TriggerType `json:"trigger_type"`
	// TriggerID 是触发调度的标识，仅定时触发时存在
	TriggerID string `json:"trigger_id,omitempty"`
	// Status 是调用的最终状态（succeeded/failed）
	Status CallStatus `json:"status"`
	// DurationMs 是处理器执行的墙钟耗时（毫秒），
	// 只统计执行阶段，不含门禁和校验的时间；处理器未执行时为 0
	DurationMs int64 `json:"duration_ms"`
	// ErrorMessage 是失败时的错误描述
	ErrorMessage string `json:"error_message,omitempty"`
	// ErrorType 是失败时的错误类型分类
	ErrorType string `json:"error_type,omitempty"`
	// CreatedAt 是记录的创建时间
	CreatedAt time.Time `json:"created_at"`
}

// Succeeded 判断记录是否为成功状态。
func (r *CallRecord) Succeeded() bool {
	return r.Status == CallStatusSucceeded
}

// CallRecordFilter 是审计查询的筛选条件，所有字段均可选。
type CallRecordFilter struct {
	// FunctionName 按函数名精确筛选
	FunctionName string
	// Status 按最终状态筛选
	Status CallStatus
	// TriggerType 按触发来源筛选
	TriggerType TriggerType
	// Since 筛选创建时间不早于该时刻的记录
	Since *time.Time
	// Until 筛选创建时间不晚于该时刻的记录
	Until *time.Time
}

// CallRecordRepository 定义了调用记录存储的接口。
// 写入是只追加的，且必须独立于其记录的调用结果成功完成。
type CallRecordRepository interface {
	// Insert 追加一条调用记录
	Insert(rec *CallRecord) error
	// GetByID 根据 ID 获取调用记录
	GetByID(id string) (*CallRecord, error)
	// List 分页查询调用记录，按创建时间倒序排列，
	// 返回记录列表、总数和可能的错误
	List(filter *CallRecordFilter, offset, limit int) ([]*CallRecord, int, error)
}

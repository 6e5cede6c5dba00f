// Package domain 定义了函数运行时的核心领域模型。
package domain

import "errors"

// 领域错误定义
// 这些错误用于在应用程序的不同层之间传递业务逻辑相关的错误信息。

var (
	// ========== 注册表相关错误 ==========

	// ErrFunctionNotFound 表示请求的函数名未注册
	ErrFunctionNotFound = errors.New("function not found")
	// ErrDuplicateFunction 表示同名函数已经注册（名称冲突）
	ErrDuplicateFunction = errors.New("function already registered")
	// ErrRegistrySealed 表示注册表已封闭，运行时不允许再注册
	ErrRegistrySealed = errors.New("registry is sealed")
	// ErrInvalidFunctionName 表示函数名称无效（为空）
	ErrInvalidFunctionName = errors.New("invalid function name")
	// ErrInvalidAccessLevel 表示访问级别不是受支持的值
	ErrInvalidAccessLevel = errors.New("invalid access level")
	// ErrNilHandler 表示描述符缺少处理器
	ErrNilHandler = errors.New("descriptor has no handler")
	// ErrInvalidTimeout 表示超时配置无效（为负数）
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ========== 调度相关错误 ==========

	// ErrRuntimeBusy 表示并发上限已满，新的调度被拒绝
	ErrRuntimeBusy = errors.New("runtime busy: concurrency ceiling reached")
	// ErrHandlerTimeout 表示处理器执行超出时间预算
	ErrHandlerTimeout = errors.New("handler execution timed out")

	// ========== 调用记录相关错误 ==========

	// ErrCallRecordNotFound 表示请求的调用记录不存在
	ErrCallRecordNotFound = errors.New("call record not found")
)

// HandlerError 表示处理器内部抛出的应用级错误。
// Kind 保留处理器自定义的错误种类（如 "ValueError"），用于诊断；
// 不带 Kind 的普通 error 会被调度引擎归类为通用的 HandlerError。
type HandlerError struct {
	// Kind 是错误种类标识
	Kind string
	// Message 是面向调用者的错误描述
	Message string
}

// Error 实现 error 接口。
func (e *HandlerError) Error() string {
	return e.Message
}

// NewHandlerError 构造一个带种类标识的处理器错误。
func NewHandlerError(kind, message string) *HandlerError {
	return &HandlerError{Kind: kind, Message: message}
}

// Package domain 定义了函数运行时的核心领域模型。
// 该包包含了函数描述符、调用上下文、调用记录等核心实体的定义，
// 以及相关的接口和错误类型。这是整个应用程序的领域层。
package domain

import (
	"time"

	"github.com/oriys/tinybase/internal/schema"
)

// AccessLevel 表示调用一个函数所需的最低访问级别。
type AccessLevel string

// 访问级别常量定义
const (
	// AccessPublic 表示函数对所有调用者开放，无需认证
	AccessPublic AccessLevel = "public"
	// AccessAuthenticated 表示函数要求调用者已通过认证
	AccessAuthenticated AccessLevel = "authenticated"
	// AccessAdmin 表示函数仅允许管理员调用
	AccessAdmin AccessLevel = "admin"
)

// IsValid 检查访问级别是否为受支持的值。
func (l AccessLevel) IsValid() bool {
	switch l {
	case AccessPublic, AccessAuthenticated, AccessAdmin:
		return true
	default:
		return false
	}
}

// TriggerType 表示触发函数调用的方式类型。
type TriggerType string

// 触发类型常量定义
const (
	// TriggerManual 表示由外部请求（HTTP）手动触发
	TriggerManual TriggerType = "manual"
	// TriggerSchedule 表示由定时调度器触发
	TriggerSchedule TriggerType = "schedule"
)

// Handler 是函数的处理器签名。
// 处理器接收调用上下文和已通过输入校验的类型化载荷，
// 返回输出值或错误。返回的错误会在调度边界被捕获并分类，
// 绝不会穿透到触发适配器。
type Handler func(ctx *Context, payload map[string]any) (map[string]any, error)

// Descriptor 表示一个已注册函数的不可变描述。
// 描述符在进程启动时构建并交给注册表，之后在进程生命周期内只读。
// Handler 引用由注册表独占持有。
type Descriptor struct {
	// Name 是函数的唯一名称，作为注册表的键
	Name string `json:"name"`
	// Description 是函数的描述信息，可选
	Description string `json:"description,omitempty"`
	// AccessLevel 是调用该函数所需的最低访问级别
	AccessLevel AccessLevel `json:"access_level"`
	// InputShape 是输入载荷的结构化模式
	InputShape *schema.Shape `json:"input_shape,omitempty"`
	// OutputShape 是输出值的结构化模式
	OutputShape *schema.Shape `json:"output_shape,omitempty"`
	// Tags 是描述性标签集合，不影响任何行为
	Tags []string `json:"tags,omitempty"`
	// TimeoutSec 是该函数的执行超时（秒），0 表示使用调度器默认值
	TimeoutSec int `json:"timeout_sec,omitempty"`
	// Handler 是注册时绑定的处理器，不参与序列化
	Handler Handler `json:"-"`
}

// Validate 验证描述符是否可以被注册。
// 名称、访问级别和处理器是必需的；模式可以为空（表示不做结构校验）。
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return ErrInvalidFunctionName
	}
	if !d.AccessLevel.IsValid() {
		return ErrInvalidAccessLevel
	}
	if d.Handler == nil {
		return ErrNilHandler
	}
	if d.TimeoutSec < 0 {
		return ErrInvalidTimeout
	}
	return nil
}

// Timeout 返回该函数的执行超时时长。
// 未配置时返回给定的默认值。
func (d *Descriptor) Timeout(def time.Duration) time.Duration {
	if d.TimeoutSec > 0 {
		return time.Duration(d.TimeoutSec) * time.Second
	}
	return def
}

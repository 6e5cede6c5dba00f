// Package access 实现函数调用的访问门禁。
// 门禁将调用者已解析的角色与函数声明的访问级别比较，给出允许或拒绝的决定。
// 拒绝对本次尝试是终结性的：处理器不会执行、输入不做校验，
// 但调用记录仍会写入（由调度引擎负责）。
package access

import (
	"fmt"

	"github.com/oriys/tinybase/internal/domain"
)

// Decision 表示一次门禁裁决。
type Decision struct {
	// Allowed 表示是否放行
	Allowed bool
	// Reason 是拒绝时的原因描述
	Reason string
}

// Authorize 按规则表裁决调用者能否调用声明了 required 级别的函数。
//
// 规则表（行为 required 级别，列为调用者）:
//
//	              匿名     已认证非管理员   管理员
//	public        允许     允许           允许
//	authenticated 拒绝     允许           允许
//	admin         拒绝     拒绝           允许
//
// 平台内部主体（System，如定时调度器）不受访问级别约束，一律放行。
func Authorize(required domain.AccessLevel, caller *domain.Caller) Decision {
	if caller != nil && caller.System {
		return Decision{Allowed: true}
	}

	switch required {
	case domain.AccessPublic:
		return Decision{Allowed: true}

	case domain.AccessAuthenticated:
		if caller == nil {
			return Decision{Allowed: false, Reason: "authentication required"}
		}
		return Decision{Allowed: true}

	case domain.AccessAdmin:
		if caller == nil {
			return Decision{Allowed: false, Reason: "authentication required"}
		}
		if !caller.IsAdmin() {
			return Decision{Allowed: false, Reason: "admin access required"}
		}
		return Decision{Allowed: true}

	default:
		// 注册校验保证不会出现未知级别，这里按拒绝处理
		return Decision{Allowed: false, Reason: fmt.Sprintf("unknown access level %q", required)}
	}
}

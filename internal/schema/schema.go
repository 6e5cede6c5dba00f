// Package schema 提供结构化模式的定义与校验。
// 模式描述一个 JSON 对象的字段集合（字段名 → 类型 + 约束），
// 校验器将未类型化的输入校验并收敛为类型化的值，
// 并在值离开运行时之前对输出做同样的校验。
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Kind 表示字段的基础类型。
type Kind string

// 字段类型常量定义
const (
	// KindString 字符串类型
	KindString Kind = "string"
	// KindInt 整数类型（JSON 数值必须是整数）
	KindInt Kind = "int"
	// KindFloat 浮点类型（接受任意 JSON 数值）
	KindFloat Kind = "float"
	// KindBool 布尔类型
	KindBool Kind = "bool"
	// KindObject 嵌套对象类型
	KindObject Kind = "object"
	// KindArray 数组类型
	KindArray Kind = "array"
	// KindAny 任意类型，不做类型检查
	KindAny Kind = "any"
)

// IsValid 检查类型是否为受支持的值。
func (k Kind) IsValid() bool {
	switch k {
	case KindString, KindInt, KindFloat, KindBool, KindObject, KindArray, KindAny:
		return true
	default:
		return false
	}
}

// Field 描述模式中的一个字段及其约束。
type Field struct {
	// Type 是字段的基础类型
	Type Kind `json:"type"`
	// Required 表示字段是否必填
	Required bool `json:"required,omitempty"`
	// Min 是数值类型的下界（含），仅对 int/float 有效
	Min *float64 `json:"min,omitempty"`
	// Max 是数值类型的上界（含），仅对 int/float 有效
	Max *float64 `json:"max,omitempty"`
	// MinLen 是字符串的最小长度，仅对 string 有效
	MinLen *int `json:"min_len,omitempty"`
	// MaxLen 是字符串的最大长度，仅对 string 有效
	MaxLen *int `json:"max_len,omitempty"`
	// Description 是字段的描述，仅用于展示
	Description string `json:"description,omitempty"`
}

// UnknownFieldPolicy 表示遇到模式未声明的字段时的处理策略。
type UnknownFieldPolicy string

const (
	// UnknownReject 拒绝未知字段（默认），避免静默丢弃调用方的意图
	UnknownReject UnknownFieldPolicy = "reject"
	// UnknownIgnore 忽略未知字段，结果中不保留
	UnknownIgnore UnknownFieldPolicy = "ignore"
)

// Shape 是一个结构化模式：字段名到字段定义的映射，
// 外加未知字段策略。Shape 构建后视为不可变。
type Shape struct {
	// Fields 是字段名到字段定义的映射
	Fields map[string]Field `json:"fields"`
	// Unknown 是未知字段策略，空值等同于 reject
	Unknown UnknownFieldPolicy `json:"unknown,omitempty"`
}

// NewShape 用给定的字段集合构建模式，未知字段策略为默认的 reject。
func NewShape(fields map[string]Field) *Shape {
	return &Shape{Fields: fields, Unknown: UnknownReject}
}

// WithUnknown 返回一个采用指定未知字段策略的模式副本。
func (s *Shape) WithUnknown(policy UnknownFieldPolicy) *Shape {
	return &Shape{Fields: s.Fields, Unknown: policy}
}

// fieldNames 返回按字典序排序的字段名，保证校验输出顺序稳定。
func (s *Shape) fieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Violation 表示一条校验违规，携带出错字段的路径。
type Violation struct {
	// Path 是违规字段的路径
	Path string `json:"path"`
	// Message 是违规的描述
	Message string `json:"message"`
}

// ValidationError 表示一次校验失败。
// 校验总是运行到底并收集全部违规，而不是在第一条就停止，
// 让调用方在一次响应中看到完整的问题集合。
type ValidationError struct {
	// Violations 是全部违规的列表
	Violations []Violation `json:"violations"`
}

// Error 实现 error 接口，拼接所有违规描述。
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = fmt.Sprintf("%s: %s", v.Path, v.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

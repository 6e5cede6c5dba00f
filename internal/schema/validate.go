// Package schema 提供结构化模式的定义与校验。
// 本文件实现输入/输出校验逻辑，包括 JSON 解码、类型检查与收敛、
// 约束检查和违规收集。
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// ValidateInput 将原始 JSON 载荷按模式校验并收敛为类型化的值。
// 空载荷等同于空对象。shape 为 nil 时只做 JSON 解码，不做结构校验。
//
// 返回:
//   - map[string]any: 类型化后的值（int 字段为 int64，float 字段为 float64）
//   - error: 校验失败时返回 *ValidationError，携带全部违规
func ValidateInput(shape *Shape, raw json.RawMessage) (map[string]any, error) {
	value, err := decodeObject(raw)
	if err != nil {
		return nil, &ValidationError{Violations: []Violation{
			{Path: "$", Message: err.Error()},
		}}
	}
	if shape == nil {
		return value, nil
	}
	return shape.Validate(value)
}

// ValidateOutput 校验处理器返回的值是否符合输出模式。
// shape 为 nil 时原样放行。处理器返回不符合模式的结果是一个
// 需要暴露的缺陷，调用方据此将其记录为 OutputValidationError。
func ValidateOutput(shape *Shape, value map[string]any) (map[string]any, error) {
	if shape == nil {
		return value, nil
	}
	return shape.Validate(value)
}

// decodeObject 将原始 JSON 解码为对象。
// 使用 json.Number 保留数值的原始表示，避免整数在 float64 中丢失精度。
func decodeObject(raw json.RawMessage) (map[string]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value map[string]any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %v", err)
	}
	if value == nil {
		value = map[string]any{}
	}
	return value, nil
}

// Validate 按模式校验一个对象并返回类型化的副本。
// 校验收集全部违规：未知字段（按策略）、缺失的必填字段、
// 类型不匹配以及越界的约束字段。
func (s *Shape) Validate(value map[string]any) (map[string]any, error) {
	var violations []Violation
	typed := make(map[string]any, len(s.Fields))

	// 未知字段检查
	if s.Unknown != UnknownIgnore {
		for name := range value {
			if _, ok := s.Fields[name]; !ok {
				violations = append(violations, Violation{
					Path:    name,
					Message: "unknown field",
				})
			}
		}
	}

	// 逐字段检查：必填、类型、约束
	for _, name := range s.fieldNames() {
		field := s.Fields[name]
		raw, present := value[name]
		if !present || raw == nil {
			if field.Required {
				violations = append(violations, Violation{
					Path:    name,
					Message: "required field is missing",
				})
			}
			continue
		}

		coerced, vs := field.check(name, raw)
		if len(vs) > 0 {
			violations = append(violations, vs...)
			continue
		}
		typed[name] = coerced
	}

	// 违规排序后返回，保证错误信息的顺序稳定
	if len(violations) > 0 {
		sortViolations(violations)
		return nil, &ValidationError{Violations: violations}
	}
	return typed, nil
}

// check 校验单个字段值，返回类型收敛后的值或违规列表。
func (f Field) check(path string, raw any) (any, []Violation) {
	switch f.Type {
	case KindString:
		str, ok := raw.(string)
		if !ok {
			return nil, []Violation{{Path: path, Message: fmt.Sprintf("expected string, got %s", jsonTypeName(raw))}}
		}
		var vs []Violation
		if f.MinLen != nil && len(str) < *f.MinLen {
			vs = append(vs, Violation{Path: path, Message: fmt.Sprintf("length must be at least %d", *f.MinLen)})
		}
		if f.MaxLen != nil && len(str) > *f.MaxLen {
			vs = append(vs, Violation{Path: path, Message: fmt.Sprintf("length must be at most %d", *f.MaxLen)})
		}
		if len(vs) > 0 {
			return nil, vs
		}
		return str, nil

	case KindInt:
		n, ok := toInt64(raw)
		if !ok {
			return nil, []Violation{{Path: path, Message: fmt.Sprintf("expected integer, got %s", jsonTypeName(raw))}}
		}
		if vs := f.checkBounds(path, float64(n)); len(vs) > 0 {
			return nil, vs
		}
		return n, nil

	case KindFloat:
		n, ok := toFloat64(raw)
		if !ok {
			return nil, []Violation{{Path: path, Message: fmt.Sprintf("expected number, got %s", jsonTypeName(raw))}}
		}
		if vs := f.checkBounds(path, n); len(vs) > 0 {
			return nil, vs
		}
		return n, nil

	case KindBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, []Violation{{Path: path, Message: fmt.Sprintf("expected bool, got %s", jsonTypeName(raw))}}
		}
		return b, nil

	case KindObject:
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, []Violation{{Path: path, Message: fmt.Sprintf("expected object, got %s", jsonTypeName(raw))}}
		}
		return obj, nil

	case KindArray:
		arr, ok := raw.([]any)
		if !ok {
			return nil, []Violation{{Path: path, Message: fmt.Sprintf("expected array, got %s", jsonTypeName(raw))}}
		}
		return arr, nil

	case KindAny:
		return raw, nil

	default:
		return nil, []Violation{{Path: path, Message: fmt.Sprintf("unsupported field type %q", f.Type)}}
	}
}

// checkBounds 检查数值约束。
func (f Field) checkBounds(path string, n float64) []Violation {
	var vs []Violation
	if f.Min != nil && n < *f.Min {
		vs = append(vs, Violation{Path: path, Message: fmt.Sprintf("must be at least %v", *f.Min)})
	}
	if f.Max != nil && n > *f.Max {
		vs = append(vs, Violation{Path: path, Message: fmt.Sprintf("must be at most %v", *f.Max)})
	}
	return vs
}

// toInt64 将输入值收敛为 int64。
// 接受 json.Number、各类 Go 整数以及值为整数的浮点数。
func toInt64(raw any) (int64, bool) {
	switch v := raw.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		return 0, false
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v == float64(int64(v)) {
			return int64(v), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// toFloat64 将输入值收敛为 float64。
func toFloat64(raw any) (float64, bool) {
	switch v := raw.(type) {
	case json.Number:
		if n, err := v.Float64(); err == nil {
			return n, true
		}
		return 0, false
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// jsonTypeName 返回值的 JSON 类型名，用于错误信息。
func jsonTypeName(raw any) string {
	switch raw.(type) {
	case string:
		return "string"
	case json.Number, int, int32, int64, float32, float64:
		return "number"
	case bool:
		return "bool"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", raw)
	}
}

// sortViolations 按字段路径排序违规列表。
func sortViolations(vs []Violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		return vs[i].Path < vs[j].Path
	})
}

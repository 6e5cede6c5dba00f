// Package schema 提供结构化模式的定义与校验。
// 该文件包含输入/输出校验逻辑的单元测试。
package schema

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// floatPtr 返回 float64 指针，用于构造约束。
func floatPtr(f float64) *float64 { return &f }

// intPtr 返回 int 指针，用于构造字符串长度约束。
func intPtr(i int) *int { return &i }

// TestValidateInput_Typing 测试输入校验的类型检查与收敛。
// int 字段收敛为 int64，float 字段收敛为 float64。
func TestValidateInput_Typing(t *testing.T) {
	shape := NewShape(map[string]Field{
		"count": {Type: KindInt, Required: true},
		"ratio": {Type: KindFloat, Required: true},
		"label": {Type: KindString},
		"on":    {Type: KindBool},
	})

	value, err := ValidateInput(shape, json.RawMessage(`{"count": 3, "ratio": 0.5, "label": "x", "on": true}`))
	if err != nil {
		t.Fatalf("ValidateInput failed: %v", err)
	}

	if got, ok := value["count"].(int64); !ok || got != 3 {
		t.Errorf("count = %v (%T), want int64(3)", value["count"], value["count"])
	}
	if got, ok := value["ratio"].(float64); !ok || got != 0.5 {
		t.Errorf("ratio = %v (%T), want float64(0.5)", value["ratio"], value["ratio"])
	}
	if got, ok := value["label"].(string); !ok || got != "x" {
		t.Errorf("label = %v, want \"x\"", value["label"])
	}
	if got, ok := value["on"].(bool); !ok || !got {
		t.Errorf("on = %v, want true", value["on"])
	}
}

// TestValidateInput_CollectsAllViolations 测试校验收集全部违规而不是在第一条停止。
func TestValidateInput_CollectsAllViolations(t *testing.T) {
	shape := NewShape(map[string]Field{
		"a": {Type: KindInt, Required: true},
		"b": {Type: KindString, Required: true},
		"c": {Type: KindInt, Min: floatPtr(10)},
	})

	_, err := ValidateInput(shape, json.RawMessage(`{"b": 42, "c": 3, "extra": 1}`))
	if err == nil {
		t.Fatal("expected validation error")
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error is %T, want *ValidationError", err)
	}

	// 期望 4 条违规：a 缺失、b 类型错误、c 越界、extra 未知
	if len(verr.Violations) != 4 {
		t.Fatalf("got %d violations, want 4: %v", len(verr.Violations), verr.Violations)
	}

	// 违规按路径排序，保证顺序稳定
	paths := make([]string, len(verr.Violations))
	for i, v := range verr.Violations {
		paths[i] = v.Path
	}
	want := []string{"a", "b", "c", "extra"}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("violation[%d].Path = %q, want %q", i, paths[i], want[i])
		}
	}
}

// TestValidateInput_UnknownFieldPolicy 测试未知字段策略。
func TestValidateInput_UnknownFieldPolicy(t *testing.T) {
	fields := map[string]Field{
		"name": {Type: KindString},
	}

	// 默认策略拒绝未知字段
	_, err := ValidateInput(NewShape(fields), json.RawMessage(`{"name": "a", "junk": 1}`))
	if err == nil {
		t.Error("reject policy should fail on unknown field")
	}

	// ignore 策略忽略未知字段，且结果中不保留
	value, err := ValidateInput(NewShape(fields).WithUnknown(UnknownIgnore), json.RawMessage(`{"name": "a", "junk": 1}`))
	if err != nil {
		t.Fatalf("ignore policy failed: %v", err)
	}
	if _, present := value["junk"]; present {
		t.Error("ignored field should not appear in the typed value")
	}
	if value["name"] != "a" {
		t.Errorf("name = %v, want \"a\"", value["name"])
	}
}

// TestValidateInput_EmptyAndInvalidPayload 测试空载荷与非法 JSON。
func TestValidateInput_EmptyAndInvalidPayload(t *testing.T) {
	shape := NewShape(map[string]Field{
		"x": {Type: KindInt},
	})

	// 空载荷等同于空对象
	value, err := ValidateInput(shape, nil)
	if err != nil {
		t.Fatalf("empty payload should validate: %v", err)
	}
	if len(value) != 0 {
		t.Errorf("empty payload produced %v", value)
	}

	// 必填字段在空载荷下缺失
	required := NewShape(map[string]Field{
		"x": {Type: KindInt, Required: true},
	})
	if _, err := ValidateInput(required, json.RawMessage(`{}`)); err == nil {
		t.Error("missing required field should fail")
	}

	// 非法 JSON 的违规路径为 $
	_, err = ValidateInput(shape, json.RawMessage(`{not json`))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error is %T, want *ValidationError", err)
	}
	if verr.Violations[0].Path != "$" {
		t.Errorf("violation path = %q, want \"$\"", verr.Violations[0].Path)
	}

	// 顶层不是对象同样在 $ 处报错
	if _, err := ValidateInput(shape, json.RawMessage(`[1, 2]`)); err == nil {
		t.Error("non-object payload should fail")
	}
}

// TestValidateInput_IntRejectsFraction 测试 int 字段拒绝带小数的数值。
func TestValidateInput_IntRejectsFraction(t *testing.T) {
	shape := NewShape(map[string]Field{
		"count": {Type: KindInt, Required: true},
	})

	if _, err := ValidateInput(shape, json.RawMessage(`{"count": 1.5}`)); err == nil {
		t.Error("fractional value should not pass an int field")
	}

	// 没有小数部分的数值字面量可以作为整数
	value, err := ValidateInput(shape, json.RawMessage(`{"count": 7}`))
	if err != nil {
		t.Fatalf("integral value rejected: %v", err)
	}
	if value["count"].(int64) != 7 {
		t.Errorf("count = %v, want 7", value["count"])
	}
}

// TestValidateInput_Constraints 测试数值与字符串约束。
func TestValidateInput_Constraints(t *testing.T) {
	tests := []struct {
		name    string
		shape   *Shape
		payload string
		wantErr bool
	}{
		{
			name:    "int below min",
			shape:   NewShape(map[string]Field{"n": {Type: KindInt, Min: floatPtr(1)}}),
			payload: `{"n": 0}`,
			wantErr: true,
		},
		{
			name:    "int at min",
			shape:   NewShape(map[string]Field{"n": {Type: KindInt, Min: floatPtr(1)}}),
			payload: `{"n": 1}`,
			wantErr: false,
		},
		{
			name:    "float above max",
			shape:   NewShape(map[string]Field{"r": {Type: KindFloat, Max: floatPtr(1.0)}}),
			payload: `{"r": 1.01}`,
			wantErr: true,
		},
		{
			name:    "string too short",
			shape:   NewShape(map[string]Field{"s": {Type: KindString, MinLen: intPtr(3)}}),
			payload: `{"s": "ab"}`,
			wantErr: true,
		},
		{
			name:    "string too long",
			shape:   NewShape(map[string]Field{"s": {Type: KindString, MaxLen: intPtr(2)}}),
			payload: `{"s": "abc"}`,
			wantErr: true,
		},
		{
			name:    "string within bounds",
			shape:   NewShape(map[string]Field{"s": {Type: KindString, MinLen: intPtr(1), MaxLen: intPtr(5)}}),
			payload: `{"s": "abc"}`,
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateInput(tt.shape, json.RawMessage(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateInput() error = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}

// TestValidateOutput 测试输出校验。
func TestValidateOutput(t *testing.T) {
	shape := NewShape(map[string]Field{
		"sum": {Type: KindInt, Required: true},
	})

	// 符合模式的输出放行，且收敛为 int64
	value, err := ValidateOutput(shape, map[string]any{"sum": int64(3)})
	if err != nil {
		t.Fatalf("ValidateOutput failed: %v", err)
	}
	if value["sum"].(int64) != 3 {
		t.Errorf("sum = %v, want 3", value["sum"])
	}

	// 缺失必填字段的输出被拒绝
	if _, err := ValidateOutput(shape, map[string]any{}); err == nil {
		t.Error("missing output field should fail")
	}

	// nil 模式原样放行
	value, err = ValidateOutput(nil, map[string]any{"anything": "goes"})
	if err != nil {
		t.Fatalf("nil shape should pass everything: %v", err)
	}
	if value["anything"] != "goes" {
		t.Errorf("value = %v", value)
	}
}

// TestValidationError_Message 测试错误信息包含全部违规。
func TestValidationError_Message(t *testing.T) {
	verr := &ValidationError{Violations: []Violation{
		{Path: "a", Message: "required field is missing"},
		{Path: "b", Message: "expected string, got number"},
	}}

	msg := verr.Error()
	if !strings.Contains(msg, "a: required field is missing") ||
		!strings.Contains(msg, "b: expected string, got number") {
		t.Errorf("unexpected error message: %s", msg)
	}
}

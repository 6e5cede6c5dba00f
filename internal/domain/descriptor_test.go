// Package domain 定义了函数运行时的核心领域模型。
// 该文件包含描述符与调用上下文的单元测试。
package domain

import (
	"context"
	"testing"
	"time"
)

// TestDescriptor_Validate 测试描述符的注册前校验。
func TestDescriptor_Validate(t *testing.T) {
	handler := func(ctx *Context, payload map[string]any) (map[string]any, error) {
		return nil, nil
	}

	tests := []struct {
		name    string
		desc    Descriptor
		wantErr bool
	}{
		{
			name: "valid descriptor",
			desc: Descriptor{
				Name:        "echo",
				AccessLevel: AccessPublic,
				Handler:     handler,
			},
			wantErr: false,
		},
		{
			name:    "empty name",
			desc:    Descriptor{AccessLevel: AccessPublic, Handler: handler},
			wantErr: true,
		},
		{
			name:    "unknown access level",
			desc:    Descriptor{Name: "echo", AccessLevel: "superuser", Handler: handler},
			wantErr: true,
		},
		{
			name:    "nil handler",
			desc:    Descriptor{Name: "echo", AccessLevel: AccessPublic},
			wantErr: true,
		},
		{
			name:    "negative timeout",
			desc:    Descriptor{Name: "echo", AccessLevel: AccessPublic, Handler: handler, TimeoutSec: -5},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}

// TestDescriptor_Timeout 测试超时的默认值回退。
func TestDescriptor_Timeout(t *testing.T) {
	def := 30 * time.Second

	d := Descriptor{TimeoutSec: 5}
	if got := d.Timeout(def); got != 5*time.Second {
		t.Errorf("Timeout() = %v, want 5s", got)
	}

	d = Descriptor{}
	if got := d.Timeout(def); got != def {
		t.Errorf("Timeout() = %v, want default %v", got, def)
	}
}

// TestNewContext 测试调用上下文的构建。
func TestNewContext(t *testing.T) {
	caller := &Caller{UserID: "u-1", Role: RoleAdmin}
	ctx := NewContext(context.Background(), "req-1", "echo", TriggerManual, "", caller, nil)

	if ctx.RequestID != "req-1" {
		t.Errorf("RequestID = %q, want \"req-1\"", ctx.RequestID)
	}
	if ctx.FunctionName != "echo" {
		t.Errorf("FunctionName = %q, want \"echo\"", ctx.FunctionName)
	}
	if ctx.UserID != "u-1" || !ctx.IsAdmin {
		t.Errorf("caller identity not carried: UserID=%q IsAdmin=%v", ctx.UserID, ctx.IsAdmin)
	}
	if ctx.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}

	// requestID 为空时自动生成
	ctx = NewContext(context.Background(), "", "echo", TriggerManual, "", nil, nil)
	if ctx.RequestID == "" {
		t.Error("empty requestID should be generated")
	}
}

// TestNewContext_SystemCaller 测试定时触发的上下文不携带用户身份。
func TestNewContext_SystemCaller(t *testing.T) {
	ctx := NewContext(context.Background(), "req-2", "cleanup", TriggerSchedule, "nightly", SystemCaller(), nil)

	if ctx.UserID != "" {
		t.Errorf("system caller should not set UserID, got %q", ctx.UserID)
	}
	if ctx.IsAdmin {
		t.Error("system caller should not set IsAdmin")
	}
	if ctx.TriggerID != "nightly" {
		t.Errorf("TriggerID = %q, want \"nightly\"", ctx.TriggerID)
	}
}

// TestCaller_IsAdmin 测试角色判定，包括 nil 调用者。
func TestCaller_IsAdmin(t *testing.T) {
	var anonymous *Caller
	if anonymous.IsAdmin() {
		t.Error("nil caller should not be admin")
	}
	if (&Caller{Role: RoleUser}).IsAdmin() {
		t.Error("user role should not be admin")
	}
	if !(&Caller{Role: RoleAdmin}).IsAdmin() {
		t.Error("admin role should be admin")
	}
}

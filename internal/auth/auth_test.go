// Package auth 提供身份认证相关的功能。
// 该文件包含 JWT 管理器、API Key 生成和认证中间件的单元测试。
package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/oriys/tinybase/internal/domain"
)

// TestJWTManager_RoundTrip 测试令牌的生成与验证。
func TestJWTManager_RoundTrip(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour)

	token, err := manager.Generate("u-1", domain.RoleAdmin)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	claims, err := manager.Validate(token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if claims.UserID != "u-1" {
		t.Errorf("UserID = %q, want \"u-1\"", claims.UserID)
	}
	if claims.Role != domain.RoleAdmin {
		t.Errorf("Role = %q, want admin", claims.Role)
	}
}

// TestJWTManager_InvalidToken 测试各类无效令牌被拒绝。
func TestJWTManager_InvalidToken(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour)

	// 格式错误的令牌
	if _, err := manager.Validate("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("malformed token error = %v, want ErrInvalidToken", err)
	}

	// 用不同密钥签发的令牌
	other := NewJWTManager("other-secret", time.Hour)
	token, _ := other.Generate("u-1", domain.RoleUser)
	if _, err := manager.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong-secret token error = %v, want ErrInvalidToken", err)
	}

	// 已过期的令牌
	expired := NewJWTManager("test-secret", -time.Hour)
	token, _ = expired.Generate("u-1", domain.RoleUser)
	if _, err := manager.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token error = %v, want ErrInvalidToken", err)
	}
}

// TestGenerateAPIKey 测试 API Key 的生成与哈希。
func TestGenerateAPIKey(t *testing.T) {
	key, hash, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}
	if !strings.HasPrefix(key, "tb_") {
		t.Errorf("key %q missing tb_ prefix", key)
	}
	if HashAPIKey(key) != hash {
		t.Error("returned hash does not match HashAPIKey(key)")
	}

	// 两次生成的密钥不同
	key2, _, _ := GenerateAPIKey()
	if key == key2 {
		t.Error("two generated keys are identical")
	}
}

// mockKeyValidator 是用于测试的模拟 API Key 验证器。
type mockKeyValidator struct {
	callers map[string]*domain.Caller
}

func (m *mockKeyValidator) ValidateAPIKey(key string) (*domain.Caller, error) {
	if caller, ok := m.callers[key]; ok {
		return caller, nil
	}
	return nil, ErrAPIKeyNotFound
}

// callerCapture 构建一个记录解析结果的下游处理器。
func callerCapture(captured **domain.Caller) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = CallerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

// TestMiddleware_AnonymousPassThrough 测试未携带凭证的请求以匿名身份放行。
func TestMiddleware_AnonymousPassThrough(t *testing.T) {
	m := NewMiddleware(NewJWTManager("secret", time.Hour), "X-API-Key", nil)

	var caller *domain.Caller
	handler := m.Resolve(callerCapture(&caller))

	req := httptest.NewRequest("POST", "/functions/echo", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if caller != nil {
		t.Errorf("caller = %+v, want nil for anonymous request", caller)
	}
}

// TestMiddleware_ValidJWT 测试合法令牌解析出调用者身份。
func TestMiddleware_ValidJWT(t *testing.T) {
	jwtManager := NewJWTManager("secret", time.Hour)
	m := NewMiddleware(jwtManager, "X-API-Key", nil)

	token, _ := jwtManager.Generate("u-1", domain.RoleAdmin)

	var caller *domain.Caller
	handler := m.Resolve(callerCapture(&caller))

	req := httptest.NewRequest("POST", "/functions/echo", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if caller == nil || caller.UserID != "u-1" || !caller.IsAdmin() {
		t.Errorf("caller = %+v", caller)
	}
}

// TestMiddleware_InvalidCredentials 测试携带无效凭证的请求被直接拒绝。
func TestMiddleware_InvalidCredentials(t *testing.T) {
	m := NewMiddleware(NewJWTManager("secret", time.Hour), "X-API-Key", nil)

	tests := []struct {
		name   string
		header string
		value  string
	}{
		{"invalid bearer token", "Authorization", "Bearer garbage"},
		{"non-bearer authorization", "Authorization", "Basic dXNlcjpwYXNz"},
		{"api key without validator", "X-API-Key", "tb_abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := m.Resolve(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("downstream handler must not run")
			}))

			req := httptest.NewRequest("POST", "/functions/echo", nil)
			req.Header.Set(tt.header, tt.value)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

// TestMiddleware_APIKey 测试 API Key 认证。
func TestMiddleware_APIKey(t *testing.T) {
	validator := &mockKeyValidator{callers: map[string]*domain.Caller{
		"tb_valid": {UserID: "u-2", Role: domain.RoleUser},
	}}
	m := NewMiddleware(NewJWTManager("secret", time.Hour), "X-API-Key", validator)

	var caller *domain.Caller
	handler := m.Resolve(callerCapture(&caller))

	// 有效的 API Key
	req := httptest.NewRequest("POST", "/functions/echo", nil)
	req.Header.Set("X-API-Key", "tb_valid")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if caller == nil || caller.UserID != "u-2" {
		t.Errorf("caller = %+v", caller)
	}

	// 无效的 API Key
	req = httptest.NewRequest("POST", "/functions/echo", nil)
	req.Header.Set("X-API-Key", "tb_bogus")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

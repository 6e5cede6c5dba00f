// Package auth 提供身份认证相关的功能。
// 本文件实现 HTTP 认证中间件：识别请求携带的凭证并将调用者信息
// 附加到请求上下文。未携带凭证的请求以匿名身份放行，
// 是否允许访问由后续的访问控制层按函数的访问级别决定；
// 携带了无效凭证的请求则直接拒绝。
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/oriys/tinybase/internal/domain"
)

// contextKey 是用于在 context 中存储值的自定义类型，避免键冲突。
type contextKey string

// CallerContextKey 是用于在请求上下文中存储调用者信息的键
const CallerContextKey contextKey = "caller"

// APIKeyValidator 定义 API Key 验证器的接口。
type APIKeyValidator interface {
	// ValidateAPIKey 验证给定的 API Key 是否有效，
	// 成功时返回关联的调用者信息。
	ValidateAPIKey(key string) (*domain.Caller, error)
}

// Middleware 是认证中间件，支持 JWT Bearer Token 和 API Key 两种认证方式。
type Middleware struct {
	jwt          *JWTManager
	apiKeyHeader string
	keyValidator APIKeyValidator
}

// NewMiddleware 创建并返回一个新的认证中间件实例。
// apiKeyHeader 为传递 API Key 的 HTTP 头名称（如 "X-API-Key"）；
// keyValidator 可以为 nil，此时仅支持 JWT 认证。
func NewMiddleware(jwt *JWTManager, apiKeyHeader string, keyValidator APIKeyValidator) *Middleware {
	return &Middleware{
		jwt:          jwt,
		apiKeyHeader: apiKeyHeader,
		keyValidator: keyValidator,
	}
}

// Resolve 是一个 HTTP 中间件函数，用于解析请求的调用者身份。
// 首先尝试 API Key 认证，其次尝试 JWT Bearer Token 认证。
// 解析成功后调用者信息被存入请求的 context；
// 未携带任何凭证的请求以匿名身份继续；
// 携带了凭证但验证失败的请求返回 401。
func (m *Middleware) Resolve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// API Key 认证
		if apiKey := r.Header.Get(m.apiKeyHeader); apiKey != "" {
			if m.keyValidator == nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			caller, err := m.keyValidator.ValidateAPIKey(apiKey)
			if err != nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), CallerContextKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		// JWT Bearer Token 认证
		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == authHeader {
				// 非 Bearer 格式的 Authorization 头视为无效凭证
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			claims, err := m.jwt.Validate(token)
			if err != nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			caller := &domain.Caller{
				UserID: claims.UserID,
				Role:   claims.Role,
			}
			ctx := context.WithValue(r.Context(), CallerContextKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		// 未携带凭证，匿名放行，由访问控制层决定是否允许
		next.ServeHTTP(w, r)
	})
}

// CallerFromContext 从请求上下文中提取已认证的调用者信息。
// 匿名请求返回 nil。
func CallerFromContext(ctx context.Context) *domain.Caller {
	if caller, ok := ctx.Value(CallerContextKey).(*domain.Caller); ok {
		return caller
	}
	return nil
}

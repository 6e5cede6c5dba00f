// Package auth 提供身份认证相关的功能。
// 该包实现了基于 JWT（JSON Web Token）和 API Key 的双重认证机制，
// 负责识别调用者身份；是否允许调用具体函数由访问控制层决定。
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// 定义 JWT 相关的错误类型
var (
	// ErrInvalidToken 表示提供的令牌无效或格式错误
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken 表示令牌已过期
	ErrExpiredToken = errors.New("token has expired")
)

// Claims 定义 JWT 令牌中的声明结构，
// 包含用户身份信息和标准的 JWT 注册声明。
type Claims struct {
	// UserID 用户的唯一标识符
	UserID string `json:"user_id"`
	// Role 用户角色（user/admin），用于访问控制
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager 是 JWT 令牌管理器，负责令牌的生成和验证。
type JWTManager struct {
	secret     []byte
	expiration time.Duration
}

// NewJWTManager 创建并返回一个新的 JWT 管理器实例。
func NewJWTManager(secret string, expiration time.Duration) *JWTManager {
	return &JWTManager{
		secret:     []byte(secret),
		expiration: expiration,
	}
}

// Generate 为指定用户生成一个新的 JWT 令牌。
// role 取值为 "user" 或 "admin"。
func (m *JWTManager) Generate(userID, role string) (string, error) {
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Validate 验证 JWT 令牌的有效性并提取其中的声明信息。
// 令牌格式错误、签名无效或已过期时返回 ErrInvalidToken。
func (m *JWTManager) Validate(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

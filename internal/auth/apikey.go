// Package auth 提供身份认证相关的功能。
// 本文件实现 API Key 的生成与哈希。出于安全考虑，系统不存储原始密钥，
// 只存储其 SHA-256 哈希值。
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// ErrAPIKeyNotFound 表示请求的 API Key 在系统中不存在
var ErrAPIKeyNotFound = errors.New("api key not found")

// APIKey 表示一个 API Key 实体，包含密钥的元数据信息。
type APIKey struct {
	// ID API Key 的唯一标识符
	ID string
	// Name API Key 的名称，用于标识和管理
	Name string
	// KeyHash API Key 的 SHA-256 哈希值
	KeyHash string
	// UserID 关联的用户 ID
	UserID string
	// Role 此 API Key 的权限角色（user/admin）
	Role string
	// CreatedAt 创建时间
	CreatedAt time.Time
	// ExpiresAt 过期时间，nil 表示永不过期
	ExpiresAt *time.Time
}

// GenerateAPIKey 生成一个新的 API Key。
// 使用加密安全的随机数生成器创建密钥，并计算其哈希值用于存储。
// 返回原始密钥（以 "tb_" 为前缀，应安全地发送给用户）和其哈希值。
func GenerateAPIKey() (string, string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", err
	}
	// 前缀 "tb_" 用于标识这是本系统（tinybase）的 API Key
	key := "tb_" + hex.EncodeToString(bytes)
	hash := HashAPIKey(key)
	return key, hash, nil
}

// HashAPIKey 计算 API Key 的 SHA-256 哈希值（十六进制编码）。
// 验证时将用户提供的 Key 哈希后与存储的哈希值比较。
func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// Package cmd 提供 tinybase 命令行工具的所有子命令实现。
// 本文件实现 API 客户端，用于与网关服务进行通信。
//
// Client 封装了所有与网关的交互逻辑，包括：
//   - 函数调用
//   - 函数列表与详情查询
//   - 调用记录查询
//   - 系统统计查询
//
// 客户端使用 HTTP/JSON 协议与服务器通信，支持错误处理和超时控制。
package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/viper"
)

// Client 是网关服务的 API 客户端。
// 封装了与后端服务通信的所有方法，使用 HTTP/JSON 协议。
type Client struct {
	baseURL    string       // 网关服务器的基础 URL
	token      string       // JWT 令牌，非空时附加到 Authorization 请求头
	apiKey     string       // API 密钥，非空时附加到 X-API-Key 请求头
	httpClient *http.Client // HTTP 客户端，用于发送请求
}

// NewClient 创建一个新的 API 客户端实例。
// 从 viper 配置中读取 api_url，如果未配置则使用默认值 http://localhost:8090。
// HTTP 客户端默认超时时间为 60 秒。
//
// 返回值：
//   - *Client: 新创建的客户端实例
func NewClient() *Client {
	baseURL := viper.GetString("api_url")
	if baseURL == "" {
		baseURL = "http://localhost:8090"
	}

	return &Client{
		baseURL: baseURL,
		token:   viper.GetString("token"),
		apiKey:  viper.GetString("api_key"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// ====== 领域模型定义 ======

// FunctionInfo 表示一个已注册函数的描述信息。
type FunctionInfo struct {
	Name        string          `json:"name"`                   // 函数名称
	Description string          `json:"description,omitempty"`  // 函数描述
	AccessLevel string          `json:"access_level"`           // 访问级别（public/authenticated/admin）
	InputShape  json.RawMessage `json:"input_shape,omitempty"`  // 输入参数结构
	OutputShape json.RawMessage `json:"output_shape,omitempty"` // 输出结构
	Tags        []string        `json:"tags,omitempty"`         // 标签
	TimeoutSec  int             `json:"timeout_sec,omitempty"`  // 执行超时（秒）
}

// InvokeResult 表示一次函数调用的响应结果。
type InvokeResult struct {
	CallID       string          `json:"call_id"`              // 调用记录 ID
	Status       string          `json:"status"`               // 最终状态（succeeded/failed）
	Result       json.RawMessage `json:"result,omitempty"`     // 成功时的输出
	ErrorType    string          `json:"error_type,omitempty"` // 失败时的错误类型
	ErrorMessage string          `json:"error,omitempty"`      // 失败时的错误描述
	DurationMs   int64           `json:"duration_ms"`          // 处理器执行耗时（毫秒）
}

// CallRecord 表示一条调用记录。
type CallRecord struct {
	ID           string    `json:"id"`
	FunctionName string    `json:"function_name"`
	UserID       string    `json:"user_id,omitempty"`
	TriggerType  string    `json:"trigger_type"`
	TriggerID    string    `json:"trigger_id,omitempty"`
	Status       string    `json:"status"`
	DurationMs   int64     `json:"duration_ms"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ErrorType    string    `json:"error_type,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// CallStats 表示调用记录的聚合统计。
type CallStats struct {
	Total         int64            `json:"total"`
	Succeeded     int64            `json:"succeeded"`
	Failed        int64            `json:"failed"`
	AvgDurationMs float64          `json:"avg_duration_ms"`
	ByFunction    map[string]int64 `json:"by_function"`
}

// Stats 表示系统统计信息。
type Stats struct {
	Functions int        `json:"functions"`
	Calls     *CallStats `json:"calls,omitempty"`
}

// CallFilter 是调用记录查询的过滤条件。
type CallFilter struct {
	Function    string // 按函数名过滤
	Status      string // 按状态过滤
	TriggerType string // 按触发方式过滤
	Since       string // 起始时间（RFC3339）
	Until       string // 结束时间（RFC3339）
	Offset      int    // 分页偏移
	Limit       int    // 分页大小
}

// APIError 表示 API 返回的错误响应。
type APIError struct {
	Code    int    `json:"-"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}

// do 执行 HTTP 请求并处理响应。
func (c *Client) do(method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr APIError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Message != "" {
			apiErr.Code = resp.StatusCode
			return &apiErr
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}

// setHeaders 设置请求头：内容类型与认证凭据。
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	} else if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// ====== 函数操作方法 ======

func (c *Client) ListFunctions() ([]FunctionInfo, error) {
	var result struct {
		Functions []FunctionInfo `json:"functions"`
	}
	if err := c.do("GET", "/api/v1/functions", nil, &result); err != nil {
		return nil, err
	}
	return result.Functions, nil
}

func (c *Client) GetFunction(name string) (*FunctionInfo, error) {
	var fn FunctionInfo
	if err := c.do("GET", "/api/v1/functions/"+name, nil, &fn); err != nil {
		return nil, err
	}
	return &fn, nil
}

// InvokeFunction 调用指定函数并返回调用结果。
// 调用失败（函数返回错误）不会作为 error 返回，而是体现在
// InvokeResult 的 Status/ErrorType 字段中；只有传输层错误才返回 error。
func (c *Client) InvokeFunction(name string, payload json.RawMessage) (*InvokeResult, error) {
	req, err := http.NewRequest("POST", c.baseURL+"/functions/"+name, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	// 网关对失败的调用也返回结构化结果（404/403/422/500 等），先尝试解析
	var result InvokeResult
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &result); err == nil && result.CallID != "" {
			return &result, nil
		}
	}

	if resp.StatusCode >= 400 {
		var apiErr APIError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Message != "" {
			apiErr.Code = resp.StatusCode
			return nil, &apiErr
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	return &result, nil
}

// ====== 调用记录操作方法 ======

func (c *Client) ListCalls(filter CallFilter) ([]CallRecord, int64, error) {
	var result struct {
		Calls []CallRecord `json:"calls"`
		Total int64        `json:"total"`
	}

	path := fmt.Sprintf("/api/v1/calls?offset=%d&limit=%d", filter.Offset, filter.Limit)
	if filter.Function != "" {
		path += "&function=" + filter.Function
	}
	if filter.Status != "" {
		path += "&status=" + filter.Status
	}
	if filter.TriggerType != "" {
		path += "&trigger_type=" + filter.TriggerType
	}
	if filter.Since != "" {
		path += "&since=" + filter.Since
	}
	if filter.Until != "" {
		path += "&until=" + filter.Until
	}

	if err := c.do("GET", path, nil, &result); err != nil {
		return nil, 0, err
	}
	return result.Calls, result.Total, nil
}

func (c *Client) GetCall(id string) (*CallRecord, error) {
	var rec CallRecord
	if err := c.do("GET", "/api/v1/calls/"+id, nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ====== API Key 操作方法 ======

// APIKeyRequest 是签发 API Key 的请求参数。
type APIKeyRequest struct {
	Name          string `json:"name"`                      // 密钥名称
	UserID        string `json:"user_id,omitempty"`         // 关联用户，为空时取当前调用者
	Role          string `json:"role,omitempty"`            // 权限角色（user/admin）
	ExpiresInDays int    `json:"expires_in_days,omitempty"` // 有效天数，0 表示永不过期
}

// APIKeyCreated 是签发成功的响应，Key 字段只在本次响应中出现。
type APIKeyCreated struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Key       string     `json:"key"`
	UserID    string     `json:"user_id"`
	Role      string     `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// CreateAPIKey 请求网关签发一个新的 API Key，需要管理员凭据。
func (c *Client) CreateAPIKey(req *APIKeyRequest) (*APIKeyCreated, error) {
	var created APIKeyCreated
	if err := c.do("POST", "/api/v1/apikeys", req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ====== 统计与系统状态方法 ======

func (c *Client) GetStats() (*Stats, error) {
	var stats Stats
	if err := c.do("GET", "/api/v1/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) GetHealth() (map[string]string, error) {
	var status map[string]string
	if err := c.do("GET", "/health/ready", nil, &status); err != nil {
		return nil, err
	}
	return status, nil
}

// Package api 提供函数运行时网关的 HTTP API 处理程序。
// 本文件实现手动触发适配器（函数调用端点）和注册表、审计、统计的查询端点。
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/oriys/tinybase/internal/auth"
	"github.com/oriys/tinybase/internal/domain"
	"github.com/oriys/tinybase/internal/engine"
	"github.com/oriys/tinybase/internal/registry"
	"github.com/oriys/tinybase/internal/storage"
)

// maxPayloadBytes 是调用请求体的大小上限（1MB）。
const maxPayloadBytes = 1 << 20

// Dispatcher 定义处理器所需的最小调度能力。
type Dispatcher interface {
	Dispatch(ctx context.Context, req *engine.DispatchRequest) *engine.DispatchResult
}

// StatsProvider 提供调用统计的聚合查询。
type StatsProvider interface {
	Stats(ctx context.Context) (*storage.CallStats, error)
}

// Pinger 是就绪探针依赖的连通性检查。
type Pinger interface {
	Ping(ctx context.Context) error
}

// APIKeyStore 持久化 API Key 记录（只存储哈希）。
type APIKeyStore interface {
	CreateAPIKey(key *auth.APIKey) error
}

// Handler 是 HTTP API 处理器集合。
type Handler struct {
	dispatcher Dispatcher
	registry   *registry.Registry
	records    domain.CallRecordRepository
	stats      StatsProvider
	ready      Pinger
	keys       APIKeyStore
	logger     *logrus.Logger
}

// NewHandler 创建 API 处理器。
// stats、ready 和 keys 可以为 nil，对应端点会优雅降级。
func NewHandler(dispatcher Dispatcher, reg *registry.Registry, records domain.CallRecordRepository, stats StatsProvider, ready Pinger, keys APIKeyStore, logger *logrus.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		registry:   reg,
		records:    records,
		stats:      stats,
		ready:      ready,
		keys:       keys,
		logger:     logger,
	}
}

// ErrorResponse 是错误响应的统一格式。
type ErrorResponse struct {
	Error string `json:"error"`
}

// InvokeFunction 处理函数调用请求（手动触发适配器）。
// HTTP 端点: POST /functions/{name}
//
// 请求体是函数的 JSON 输入载荷，可以为空。
// 响应体为 {call_id, status, result?, error?, error_type?, duration_ms}，
// 无论成败调用者总能拿到 call_id，用于与调用记录对账。
//
// HTTP 状态码映射：
//   - 200: 调用成功
//   - 404: 函数未注册（NotFoundError）
//   - 403: 访问级别不足（AuthorizationError）
//   - 422: 输入校验失败（ValidationError）
//   - 503: 并发上限已满（RuntimeBusyError）
//   - 500: 处理器或运行时失败（其余错误类型）
func (h *Handler) InvokeFunction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	result := h.dispatcher.Dispatch(r.Context(), &engine.DispatchRequest{
		FunctionName: name,
		Trigger:      domain.TriggerManual,
		Caller:       auth.CallerFromContext(r.Context()),
		Payload:      body,
	})

	writeJSON(w, statusForResult(result), result)
}

// statusForResult 将调度结果映射为 HTTP 状态码。
func statusForResult(result *engine.DispatchResult) int {
	if result.Succeeded() {
		return http.StatusOK
	}
	switch result.ErrorType {
	case domain.ErrorTypeNotFound:
		return http.StatusNotFound
	case domain.ErrorTypeAuthorization:
		return http.StatusForbidden
	case domain.ErrorTypeValidation:
		return http.StatusUnprocessableEntity
	case domain.ErrorTypeRuntimeBusy:
		return http.StatusServiceUnavailable
	default:
		// 处理器错误、输出校验失败、超时均视为服务端失败
		return http.StatusInternalServerError
	}
}

// ListFunctions 返回注册表中全部函数的描述，按名称排序。
// HTTP 端点: GET /api/v1/functions
func (h *Handler) ListFunctions(w http.ResponseWriter, r *http.Request) {
	descriptors := h.registry.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"functions": descriptors,
		"total":     len(descriptors),
	})
}

// GetFunction 返回单个函数的描述。
// HTTP 端点: GET /api/v1/functions/{name}
func (h *Handler) GetFunction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	desc, err := h.registry.Resolve(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "function not found")
		return
	}
	writeJSON(w, http.StatusOK, desc)
}

// ListCalls 分页查询调用记录，按创建时间倒序排列。
// HTTP 端点: GET /api/v1/calls
//
// 查询参数（均可选）：
//   - function: 按函数名筛选
//   - status: 按最终状态筛选（succeeded/failed）
//   - trigger_type: 按触发来源筛选（manual/schedule）
//   - since / until: 按创建时间筛选（RFC3339）
//   - offset / limit: 分页，limit 默认 20，上限 100
func (h *Handler) ListCalls(w http.ResponseWriter, r *http.Request) {
	filter := &domain.CallRecordFilter{
		FunctionName: r.URL.Query().Get("function"),
		Status:       domain.CallStatus(r.URL.Query().Get("status")),
		TriggerType:  domain.TriggerType(r.URL.Query().Get("trigger_type")),
	}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since timestamp")
			return
		}
		filter.Since = &t
	}
	if until := r.URL.Query().Get("until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid until timestamp")
			return
		}
		filter.Until = &t
	}

	offset, limit := parsePagination(r)
	records, total, err := h.records.List(filter, offset, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list call records")
		writeError(w, http.StatusInternalServerError, "failed to list call records")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"calls":  records,
		"total":  total,
		"offset": offset,
		"limit":  limit,
	})
}

// GetCall 返回单条调用记录。
// HTTP 端点: GET /api/v1/calls/{id}
func (h *Handler) GetCall(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.records.GetByID(id)
	if err == domain.ErrCallRecordNotFound {
		writeError(w, http.StatusNotFound, "call record not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("call_id", id).Error("Failed to get call record")
		writeError(w, http.StatusInternalServerError, "failed to get call record")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// CreateAPIKeyRequest 是创建 API Key 的请求体。
type CreateAPIKeyRequest struct {
	// Name 是密钥的名称，必填
	Name string `json:"name"`
	// UserID 是密钥关联的用户，为空时取当前调用者
	UserID string `json:"user_id,omitempty"`
	// Role 是密钥的权限角色（user/admin），默认 user
	Role string `json:"role,omitempty"`
	// ExpiresInDays 是密钥的有效天数，0 表示永不过期
	ExpiresInDays int `json:"expires_in_days,omitempty"`
}

// CreateAPIKey 签发一个新的 API Key，仅管理员可调用。
// HTTP 端点: POST /api/v1/apikeys
//
// 原始密钥只在响应中出现一次，系统仅保存其哈希。
func (h *Handler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	caller := auth.CallerFromContext(r.Context())
	if !caller.IsAdmin() {
		writeError(w, http.StatusForbidden, "admin access required")
		return
	}
	if h.keys == nil {
		writeError(w, http.StatusServiceUnavailable, "api key store not configured")
		return
	}

	var req CreateAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Role == "" {
		req.Role = domain.RoleUser
	}
	if req.Role != domain.RoleUser && req.Role != domain.RoleAdmin {
		writeError(w, http.StatusBadRequest, "role must be user or admin")
		return
	}
	if req.UserID == "" {
		req.UserID = caller.UserID
	}

	key, hash, err := auth.GenerateAPIKey()
	if err != nil {
		h.logger.WithError(err).Error("Failed to generate api key")
		writeError(w, http.StatusInternalServerError, "failed to generate api key")
		return
	}

	rec := &auth.APIKey{
		ID:        domain.NewRequestID(),
		Name:      req.Name,
		KeyHash:   hash,
		UserID:    req.UserID,
		Role:      req.Role,
		CreatedAt: time.Now(),
	}
	if req.ExpiresInDays > 0 {
		expires := rec.CreatedAt.AddDate(0, 0, req.ExpiresInDays)
		rec.ExpiresAt = &expires
	}

	if err := h.keys.CreateAPIKey(rec); err != nil {
		h.logger.WithError(err).Error("Failed to persist api key")
		writeError(w, http.StatusInternalServerError, "failed to persist api key")
		return
	}

	h.logger.WithFields(logrus.Fields{
		"key_id":  rec.ID,
		"name":    rec.Name,
		"user_id": rec.UserID,
	}).Info("API key created")

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         rec.ID,
		"name":       rec.Name,
		"key":        key,
		"user_id":    rec.UserID,
		"role":       rec.Role,
		"created_at": rec.CreatedAt,
		"expires_at": rec.ExpiresAt,
	})
}

// Stats 返回系统统计信息。
// HTTP 端点: GET /api/v1/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"functions": h.registry.Len(),
	}
	if h.stats != nil {
		stats, err := h.stats.Stats(r.Context())
		if err != nil {
			h.logger.WithError(err).Error("Failed to aggregate call stats")
			writeError(w, http.StatusInternalServerError, "failed to aggregate call stats")
			return
		}
		response["calls"] = stats
	}
	writeJSON(w, http.StatusOK, response)
}

// Health 处理基本健康检查请求。
// HTTP 端点: GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready 处理就绪探针请求，验证存储连接是否正常。
// HTTP 端点: GET /health/ready
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "storage not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Live 处理存活探针请求。
// HTTP 端点: GET /health/live
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// parsePagination 从查询参数解析分页设置，limit 默认 20、上限 100。
func parsePagination(r *http.Request) (offset, limit int) {
	limit = 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 100 {
		limit = 100
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return offset, limit
}

// writeJSON 将数据以 JSON 格式写入 HTTP 响应。
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError 将错误信息以统一的 JSON 格式写入 HTTP 响应。
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

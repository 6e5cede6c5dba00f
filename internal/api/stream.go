// Package api 提供函数运行时网关的 HTTP API 处理程序。
// 本文件实现调用记录的 WebSocket 实时推送：
// 每当一条调用记录写入成功，所有已连接的客户端都会收到该记录的 JSON 快照。
package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/oriys/tinybase/internal/domain"
)

// replayLimit 是新客户端接入时回放的最近记录条数。
const replayLimit = 20

// CallHistory 提供最近调用记录的快照，由 Redis 滚动窗口缓存实现。
type CallHistory interface {
	RecentCalls(ctx context.Context, limit int) ([]*domain.CallRecord, error)
}

// StreamHub 维护 WebSocket 客户端集合并向其广播调用记录。
// 它实现了调度引擎的记录下游接口，广播失败只断开对应客户端。
type StreamHub struct {
	upgrader websocket.Upgrader
	history  CallHistory
	logger   *logrus.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewStreamHub 创建调用记录的实时推送中心。
func NewStreamHub(logger *logrus.Logger) *StreamHub {
	return &StreamHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 跨域控制已由网关的 CORS 中间件处理
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// SetHistory 配置最近记录的回放来源。
// 只应在开始服务流量之前调用。
func (h *StreamHub) SetHistory(history CallHistory) {
	h.history = history
}

// ServeStream 处理 WebSocket 升级请求并注册客户端。
// HTTP 端点: GET /api/v1/calls/stream
//
// 配置了回放来源时，新客户端先按时间顺序收到最近的调用记录，
// 再开始接收实时广播。回放在注册之前完成，与广播的写入不会交叠。
func (h *StreamHub) ServeStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to upgrade websocket connection")
		return
	}

	if h.history != nil {
		records, err := h.history.RecentCalls(r.Context(), replayLimit)
		if err != nil {
			h.logger.WithError(err).Warn("Failed to load recent calls for replay")
		} else {
			// 缓存窗口最新在前，回放按时间正序
			for i := len(records) - 1; i >= 0; i-- {
				if err := conn.WriteJSON(records[i]); err != nil {
					conn.Close()
					return
				}
			}
		}
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.WithField("clients", count).Debug("Stream client connected")

	// 读循环只用于感知客户端断开，收到的消息被丢弃
	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// PublishCallRecorded 向所有客户端广播一条调用记录。
// 实现调度引擎的 RecordSink 接口；写入失败的客户端被移除。
func (h *StreamHub) PublishCallRecorded(rec *domain.CallRecord) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(rec); err != nil {
			h.remove(conn)
		}
	}
}

// remove 注销并关闭一个客户端连接，可安全地重复调用。
func (h *StreamHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	h.mu.Unlock()
}

// Close 关闭全部客户端连接，用于网关退出时的清理。
func (h *StreamHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

// Package api 提供函数运行时网关的 HTTP API 处理程序。
// 该文件测试调用记录的 WebSocket 推送：接入时的历史回放与实时广播。
package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oriys/tinybase/internal/domain"
)

// mockHistory 返回固定的最近调用记录，最新在前。
type mockHistory struct {
	records   []*domain.CallRecord
	lastLimit int
}

func (m *mockHistory) RecentCalls(ctx context.Context, limit int) ([]*domain.CallRecord, error) {
	m.lastLimit = limit
	if limit < len(m.records) {
		return m.records[:limit], nil
	}
	return m.records, nil
}

// TestStream_ReplayThenBroadcast 测试新客户端先收到历史回放（时间正序），
// 再收到实时广播的记录。
func TestStream_ReplayThenBroadcast(t *testing.T) {
	hub := NewStreamHub(testLogger())
	defer hub.Close()

	history := &mockHistory{records: []*domain.CallRecord{
		{ID: "c-2", FunctionName: "hello"},
		{ID: "c-1", FunctionName: "hello"},
	}}
	hub.SetHistory(history)

	server := httptest.NewServer(http.HandlerFunc(hub.ServeStream))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	// 回放按时间正序：窗口中最旧的记录先到
	for _, want := range []string{"c-1", "c-2"} {
		var rec domain.CallRecord
		if err := conn.ReadJSON(&rec); err != nil {
			t.Fatalf("failed to read replayed record: %v", err)
		}
		if rec.ID != want {
			t.Errorf("replayed record = %q, want %q", rec.ID, want)
		}
	}
	if history.lastLimit != replayLimit {
		t.Errorf("replay limit = %d, want %d", history.lastLimit, replayLimit)
	}

	// 等待客户端完成注册后再广播
	deadline := time.Now().Add(2 * time.Second)
	for {
		hub.mu.Lock()
		registered := len(hub.clients)
		hub.mu.Unlock()
		if registered == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("client was never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.PublishCallRecorded(&domain.CallRecord{ID: "c-3", FunctionName: "hello"})

	var rec domain.CallRecord
	if err := conn.ReadJSON(&rec); err != nil {
		t.Fatalf("failed to read broadcast record: %v", err)
	}
	if rec.ID != "c-3" {
		t.Errorf("broadcast record = %q, want \"c-3\"", rec.ID)
	}
}

// TestStream_NoHistory 测试未配置回放来源时客户端只收到实时广播。
func TestStream_NoHistory(t *testing.T) {
	hub := NewStreamHub(testLogger())
	defer hub.Close()

	server := httptest.NewServer(http.HandlerFunc(hub.ServeStream))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	deadline := time.Now().Add(2 * time.Second)
	for {
		hub.mu.Lock()
		registered := len(hub.clients)
		hub.mu.Unlock()
		if registered == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("client was never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.PublishCallRecorded(&domain.CallRecord{ID: "c-9"})

	var rec domain.CallRecord
	if err := conn.ReadJSON(&rec); err != nil {
		t.Fatalf("failed to read broadcast record: %v", err)
	}
	if rec.ID != "c-9" {
		t.Errorf("record = %q, want \"c-9\"", rec.ID)
	}
}

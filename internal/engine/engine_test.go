// Package engine 实现函数调用的调度引擎。
// 该文件包含调度管线的单元测试，使用模拟对象隔离存储层。
package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oriys/tinybase/internal/config"
	"github.com/oriys/tinybase/internal/domain"
	"github.com/oriys/tinybase/internal/registry"
	"github.com/oriys/tinybase/internal/schema"
)

// mockRepository 是用于测试的内存调用记录存储。
type mockRepository struct {
	mu         sync.Mutex
	records    []*domain.CallRecord
	failInsert bool // 为 true 时 Insert 返回错误
}

func (m *mockRepository) Insert(rec *domain.CallRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsert {
		return errors.New("storage write failed")
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *mockRepository) GetByID(id string) (*domain.CallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, domain.ErrCallRecordNotFound
}

func (m *mockRepository) List(filter *domain.CallRecordFilter, offset, limit int) ([]*domain.CallRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records, len(m.records), nil
}

// count 返回已写入的记录数量。
func (m *mockRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// last 返回最后写入的记录。
func (m *mockRepository) last() *domain.CallRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) == 0 {
		return nil
	}
	return m.records[len(m.records)-1]
}

// mockUnitOfWork 是用于测试的模拟事务句柄，记录提交与回滚次数。
type mockUnitOfWork struct {
	mu        sync.Mutex
	commits   int
	rollbacks int
}

func (m *mockUnitOfWork) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, errors.New("not supported in mock")
}

func (m *mockUnitOfWork) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, errors.New("not supported in mock")
}

func (m *mockUnitOfWork) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return nil
}

func (m *mockUnitOfWork) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits++
	return nil
}

func (m *mockUnitOfWork) Rollback() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollbacks++
	return nil
}

// mockOpener 是用于测试的模拟事务工厂。
type mockOpener struct {
	mu       sync.Mutex
	opened   []*mockUnitOfWork
	beginErr error // 非 nil 时 Begin 直接失败
}

func (m *mockOpener) Begin(ctx context.Context) (domain.UnitOfWork, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	uow := &mockUnitOfWork{}
	m.opened = append(m.opened, uow)
	return uow, nil
}

// lastUoW 返回最后打开的事务句柄。
func (m *mockOpener) lastUoW() *mockUnitOfWork {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.opened) == 0 {
		return nil
	}
	return m.opened[len(m.opened)-1]
}

// testLogger 返回一个丢弃输出的 logger，避免污染测试输出。
func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// testEngine 用给定的描述符构建一个完整的测试引擎。
func testEngine(t *testing.T, cfg config.DispatcherConfig, descs ...*domain.Descriptor) (*Engine, *mockRepository, *mockOpener) {
	t.Helper()

	reg := registry.New()
	for _, d := range descs {
		if err := reg.Register(d); err != nil {
			t.Fatalf("Register(%s) failed: %v", d.Name, err)
		}
	}
	reg.Seal()

	repo := &mockRepository{}
	opener := &mockOpener{}
	return New(cfg, reg, repo, opener, nil, testLogger()), repo, opener
}

// echoDescriptor 构建一个带输入输出模式的公开函数。
func echoDescriptor() *domain.Descriptor {
	return &domain.Descriptor{
		Name:        "add_numbers",
		AccessLevel: domain.AccessPublic,
		InputShape: schema.NewShape(map[string]schema.Field{
			"x": {Type: schema.KindInt, Required: true},
			"y": {Type: schema.KindInt, Required: true},
		}),
		OutputShape: schema.NewShape(map[string]schema.Field{
			"sum": {Type: schema.KindInt, Required: true},
		}),
		Handler: func(ctx *domain.Context, payload map[string]any) (map[string]any, error) {
			return map[string]any{"sum": payload["x"].(int64) + payload["y"].(int64)}, nil
		},
	}
}

// TestDispatch_Success 测试成功路径：提交事务、写入记录、返回输出。
func TestDispatch_Success(t *testing.T) {
	eng, repo, opener := testEngine(t, config.DispatcherConfig{}, echoDescriptor())

	result := eng.Dispatch(context.Background(), &DispatchRequest{
		FunctionName: "add_numbers",
		Trigger:      domain.TriggerManual,
		Payload:      json.RawMessage(`{"x": 2, "y": 3}`),
	})

	if !result.Succeeded() {
		t.Fatalf("dispatch failed: [%s] %s", result.ErrorType, result.ErrorMessage)
	}
	if result.Result["sum"].(int64) != 5 {
		t.Errorf("sum = %v, want 5", result.Result["sum"])
	}
	if result.CallID == "" {
		t.Error("result has no call ID")
	}
	if result.DurationMs < 0 {
		t.Errorf("duration = %d, want >= 0", result.DurationMs)
	}

	// 恰好一条记录，且与响应携带相同的 ID
	if repo.count() != 1 {
		t.Fatalf("got %d records, want 1", repo.count())
	}
	rec := repo.last()
	if rec.ID != result.CallID {
		t.Errorf("record ID %q != result CallID %q", rec.ID, result.CallID)
	}
	if rec.Status != domain.CallStatusSucceeded {
		t.Errorf("record status = %s, want succeeded", rec.Status)
	}

	// 事务恰好提交一次，没有回滚
	uow := opener.lastUoW()
	if uow.commits != 1 || uow.rollbacks != 0 {
		t.Errorf("commits = %d, rollbacks = %d, want 1/0", uow.commits, uow.rollbacks)
	}
}

// TestDispatch_FunctionNotFound 测试未注册的函数名。
func TestDispatch_FunctionNotFound(t *testing.T) {
	eng, repo, opener := testEngine(t, config.DispatcherConfig{}, echoDescriptor())

	result := eng.Dispatch(context.Background(), &DispatchRequest{
		FunctionName: "missing",
		Trigger:      domain.TriggerManual,
	})

	if result.ErrorType != domain.ErrorTypeNotFound {
		t.Errorf("error type = %s, want %s", result.ErrorType, domain.ErrorTypeNotFound)
	}
	// 失败也写入恰好一条记录
	if repo.count() != 1 {
		t.Errorf("got %d records, want 1", repo.count())
	}
	if repo.last().DurationMs != 0 {
		t.Errorf("duration = %d, handler never ran", repo.last().DurationMs)
	}
	// 从未打开事务
	if len(opener.opened) != 0 {
		t.Errorf("opened %d transactions, want 0", len(opener.opened))
	}
}

// TestDispatch_AuthorizationDenied 测试门禁拒绝：处理器不执行、输入不校验。
func TestDispatch_AuthorizationDenied(t *testing.T) {
	handlerRan := false
	adminFn := &domain.Descriptor{
		Name:        "admin_only",
		AccessLevel: domain.AccessAdmin,
		// 输入模式声明了必填字段；门禁先于校验，所以失败必须是 403 而不是 422
		InputShape: schema.NewShape(map[string]schema.Field{
			"x": {Type: schema.KindInt, Required: true},
		}),
		Handler: func(ctx *domain.Context, payload map[string]any) (map[string]any, error) {
			handlerRan = true
			return map[string]any{}, nil
		},
	}
	eng, repo, _ := testEngine(t, config.DispatcherConfig{}, adminFn)

	// 非管理员调用者，载荷同时也是无效的
	result := eng.Dispatch(context.Background(), &DispatchRequest{
		FunctionName: "admin_only",
		Trigger:      domain.TriggerManual,
		Caller:       &domain.Caller{UserID: "u-1", Role: domain.RoleUser},
		Payload:      json.RawMessage(`{}`),
	})

	if result.ErrorType != domain.ErrorTypeAuthorization {
		t.Errorf("error type = %s, want %s", result.ErrorType, domain.ErrorTypeAuthorization)
	}
	if handlerRan {
		t.Error("handler must not run after authorization denial")
	}
	if repo.count() != 1 {
		t.Errorf("got %d records, want 1", repo.count())
	}
}

// TestDispatch_SystemCallerBypassesGate 测试内部主体绕过访问级别。
func TestDispatch_SystemCallerBypassesGate(t *testing.T) {
	adminFn := &domain.Descriptor{
		Name:        "cleanup",
		AccessLevel: domain.AccessAdmin,
		Handler: func(ctx *domain.Context, payload map[string]any) (map[string]any, error) {
			return map[string]any{}, nil
		},
	}
	eng, repo, _ := testEngine(t, config.DispatcherConfig{}, adminFn)

	result := eng.Dispatch(context.Background(), &DispatchRequest{
		FunctionName: "cleanup",
		Trigger:      domain.TriggerSchedule,
		TriggerID:    "nightly",
		Caller:       domain.SystemCaller(),
	})

	if !result.Succeeded() {
		t.Fatalf("system caller denied: [%s] %s", result.ErrorType, result.ErrorMessage)
	}
	// 定时触发的记录不携带用户身份，但携带触发标识
	rec := repo.last()
	if rec.UserID != "" {
		t.Errorf("record UserID = %q, want empty", rec.UserID)
	}
	if rec.TriggerID != "nightly" {
		t.Errorf("record TriggerID = %q, want \"nightly\"", rec.TriggerID)
	}
}

// TestDispatch_ValidationFailure 测试输入校验失败。
func TestDispatch_ValidationFailure(t *testing.T) {
	eng, repo, opener := testEngine(t, config.DispatcherConfig{}, echoDescriptor())

	result := eng.Dispatch(context.Background(), &DispatchRequest{
		FunctionName: "add_numbers",
		Trigger:      domain.TriggerManual,
		Payload:      json.RawMessage(`{"x": "two"}`),
	})

	if result.ErrorType != domain.ErrorTypeValidation {
		t.Errorf("error type = %s, want %s", result.ErrorType, domain.ErrorTypeValidation)
	}
	if repo.count() != 1 {
		t.Errorf("got %d records, want 1", repo.count())
	}
	if len(opener.opened) != 0 {
		t.Errorf("opened %d transactions, want 0", len(opener.opened))
	}
}

// TestDispatch_HandlerErrorKindPreserved 测试带种类标识的错误保留其种类。
func TestDispatch_HandlerErrorKindPreserved(t *testing.T) {
	divide := &domain.Descriptor{
		Name:        "divide",
		AccessLevel: domain.AccessPublic,
		Handler: func(ctx *domain.Context, payload map[string]any) (map[string]any, error) {
			return nil, domain.NewHandlerError("ValueError", "Cannot divide by zero")
		},
	}
	eng, repo, opener := testEngine(t, config.DispatcherConfig{}, divide)

	result := eng.Dispatch(context.Background(), &DispatchRequest{
		FunctionName: "divide",
		Trigger:      domain.TriggerManual,
	})

	if result.ErrorType != "ValueError" {
		t.Errorf("error type = %s, want ValueError", result.ErrorType)
	}
	if result.ErrorMessage != "Cannot divide by zero" {
		t.Errorf("error message = %q", result.ErrorMessage)
	}
	if repo.last().ErrorType != "ValueError" {
		t.Errorf("record error type = %s, want ValueError", repo.last().ErrorType)
	}

	// 处理器失败后事务回滚
	uow := opener.lastUoW()
	if uow.commits != 0 || uow.rollbacks != 1 {
		t.Errorf("commits = %d, rollbacks = %d, want 0/1", uow.commits, uow.rollbacks)
	}
}

// TestDispatch_PlainHandlerError 测试普通错误归类为 HandlerError。
func TestDispatch_PlainHandlerError(t *testing.T) {
	failing := &domain.Descriptor{
		Name:        "failing",
		AccessLevel: domain.AccessPublic,
		Handler: func(ctx *domain.Context, payload map[string]any) (map[string]any, error) {
			return nil, errors.New("something went wrong")
		},
	}
	eng, _, _ := testEngine(t, config.DispatcherConfig{}, failing)

	result := eng.Dispatch(context.Background(), &DispatchRequest{
		FunctionName: "failing",
		Trigger:      domain.TriggerManual,
	})

	if result.ErrorType != domain.ErrorTypeHandler {
		t.Errorf("error type = %s, want %s", result.ErrorType, domain.ErrorTypeHandler)
	}
}

// TestDispatch_Panic 测试处理器异常被捕获并归类，不穿透到调用方。
func TestDispatch_Panic(t *testing.T) {
	panicking := &domain.Descriptor{
		Name:        "panicking",
		AccessLevel: domain.AccessPublic,
		Handler: func(ctx *domain.Context, payload map[string]any) (map[string]any, error) {
			panic("boom")
		},
	}
	eng, repo, opener := testEngine(t, config.DispatcherConfig{}, panicking)

	result := eng.Dispatch(context.Background(), &DispatchRequest{
		FunctionName: "panicking",
		Trigger:      domain.TriggerManual,
	})

	if result.ErrorType != "PanicError" {
		t.Errorf("error type = %s, want PanicError", result.ErrorType)
	}
	if repo.count() != 1 {
		t.Errorf("got %d records, want 1", repo.count())
	}
	uow := opener.lastUoW()
	if uow.rollbacks != 1 {
		t.Errorf("rollbacks = %d, want 1", uow.rollbacks)
	}
}

// TestDispatch_OutputValidationFailure 测试输出违反声明模式时回滚并记录为函数缺陷。
func TestDispatch_OutputValidationFailure(t *testing.T) {
	broken := &domain.Descriptor{
		Name:        "broken",
		AccessLevel: domain.AccessPublic,
		OutputShape: schema.NewShape(map[string]schema.Field{
			"sum": {Type: schema.KindInt, Required: true},
		}),
		Handler: func(ctx *domain.Context, payload map[string]any) (map[string]any, error) {
			return map[string]any{"wrong": true}, nil
		},
	}
	eng, repo, opener := testEngine(t, config.DispatcherConfig{}, broken)

	result := eng.Dispatch(context.Background(), &DispatchRequest{
		FunctionName: "broken",
		Trigger:      domain.TriggerManual,
	})

	if result.ErrorType != domain.ErrorTypeOutputValidation {
		t.Errorf("error type = %s, want %s", result.ErrorType, domain.ErrorTypeOutputValidation)
	}
	if repo.last().Status != domain.CallStatusFailed {
		t.Errorf("record status = %s, want failed", repo.last().Status)
	}
	uow := opener.lastUoW()
	if uow.commits != 0 || uow.rollbacks != 1 {
		t.Errorf("commits = %d, rollbacks = %d, want 0/1", uow.commits, uow.rollbacks)
	}
}

// TestDispatch_Timeout 测试处理器超时：回滚事务并归类为 TimeoutError。
func TestDispatch_Timeout(t *testing.T) {
	slow := &domain.Descriptor{
		Name:        "slow",
		AccessLevel: domain.AccessPublic,
		Handler: func(ctx *domain.Context, payload map[string]any) (map[string]any, error) {
			select {
			case <-time.After(5 * time.Second):
				return map[string]any{}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	// 描述符未声明超时，调度器默认超时（50ms）生效
	eng, repo, opener := testEngine(t, config.DispatcherConfig{HandlerTimeout: 50 * time.Millisecond}, slow)

	start := time.Now()
	result := eng.Dispatch(context.Background(), &DispatchRequest{
		FunctionName: "slow",
		Trigger:      domain.TriggerManual,
	})
	elapsed := time.Since(start)

	if result.ErrorType != domain.ErrorTypeTimeout {
		t.Errorf("error type = %s, want %s", result.ErrorType, domain.ErrorTypeTimeout)
	}
	if elapsed > 3*time.Second {
		t.Errorf("dispatch took %v, timeout did not fire", elapsed)
	}
	if repo.count() != 1 {
		t.Errorf("got %d records, want 1", repo.count())
	}
	uow := opener.lastUoW()
	if uow.rollbacks == 0 {
		t.Error("timeout must roll back the transaction")
	}
}

// TestDispatch_CallerCancelled 测试调用方取消与处理器超时在审计记录中可区分：
// 两者同为 TimeoutError，但取消携带独立的错误描述。
func TestDispatch_CallerCancelled(t *testing.T) {
	slow := &domain.Descriptor{
		Name:        "slow",
		AccessLevel: domain.AccessPublic,
		Handler: func(ctx *domain.Context, payload map[string]any) (map[string]any, error) {
			select {
			case <-time.After(5 * time.Second):
				return map[string]any{}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	eng, repo, opener := testEngine(t, config.DispatcherConfig{}, slow)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	result := eng.Dispatch(ctx, &DispatchRequest{
		FunctionName: "slow",
		Trigger:      domain.TriggerManual,
	})

	if result.ErrorType != domain.ErrorTypeTimeout {
		t.Errorf("error type = %s, want %s", result.ErrorType, domain.ErrorTypeTimeout)
	}
	if result.ErrorMessage == domain.ErrHandlerTimeout.Error() {
		t.Error("cancellation must not be reported as a handler timeout")
	}
	if !strings.Contains(result.ErrorMessage, "cancelled") {
		t.Errorf("error message = %q, want cancellation notice", result.ErrorMessage)
	}
	if repo.count() != 1 {
		t.Errorf("got %d records, want 1", repo.count())
	}
	if opener.lastUoW().rollbacks == 0 {
		t.Error("cancellation must roll back the transaction")
	}
}

// TestDispatch_ConcurrencyCeiling 测试并发上限：超出额度的调用被立即拒绝。
func TestDispatch_ConcurrencyCeiling(t *testing.T) {
	const ceiling = 2

	blocker := make(chan struct{})
	started := make(chan struct{}, ceiling)
	blocking := &domain.Descriptor{
		Name:        "blocking",
		AccessLevel: domain.AccessPublic,
		Handler: func(ctx *domain.Context, payload map[string]any) (map[string]any, error) {
			started <- struct{}{}
			<-blocker
			return map[string]any{}, nil
		},
	}
	eng, repo, _ := testEngine(t, config.DispatcherConfig{
		MaxConcurrent: ceiling,
		OnSaturation:  "reject",
	}, blocking)

	// 占满全部额度
	var wg sync.WaitGroup
	results := make([]*DispatchResult, ceiling)
	for i := 0; i < ceiling; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = eng.Dispatch(context.Background(), &DispatchRequest{
				FunctionName: "blocking",
				Trigger:      domain.TriggerManual,
			})
		}(i)
	}
	for i := 0; i < ceiling; i++ {
		<-started
	}

	// 第 ceiling+1 个调用被立即拒绝
	rejected := eng.Dispatch(context.Background(), &DispatchRequest{
		FunctionName: "blocking",
		Trigger:      domain.TriggerManual,
	})
	if rejected.ErrorType != domain.ErrorTypeRuntimeBusy {
		t.Errorf("error type = %s, want %s", rejected.ErrorType, domain.ErrorTypeRuntimeBusy)
	}

	// 放行被阻塞的调用
	close(blocker)
	wg.Wait()

	for i, r := range results {
		if !r.Succeeded() {
			t.Errorf("call %d failed: [%s] %s", i, r.ErrorType, r.ErrorMessage)
		}
	}
	// ceiling 次成功 + 1 次拒绝 = ceiling+1 条记录
	if repo.count() != ceiling+1 {
		t.Errorf("got %d records, want %d", repo.count(), ceiling+1)
	}
}

// TestDispatch_QueueOnSaturation 测试排队策略：额度释放后排队的调用继续执行。
func TestDispatch_QueueOnSaturation(t *testing.T) {
	blocker := make(chan struct{})
	started := make(chan struct{}, 1)
	blocking := &domain.Descriptor{
		Name:        "blocking",
		AccessLevel: domain.AccessPublic,
		Handler: func(ctx *domain.Context, payload map[string]any) (map[string]any, error) {
			select {
			case started <- struct{}{}:
			default:
			}
			<-blocker
			return map[string]any{}, nil
		},
	}
	eng, _, _ := testEngine(t, config.DispatcherConfig{
		MaxConcurrent: 1,
		OnSaturation:  "queue",
	}, blocking)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		eng.Dispatch(context.Background(), &DispatchRequest{
			FunctionName: "blocking",
			Trigger:      domain.TriggerManual,
		})
	}()
	<-started

	// 第二个调用排队；短暂延迟后释放额度，两个调用都应成功
	queued := make(chan *DispatchResult, 1)
	go func() {
		queued <- eng.Dispatch(context.Background(), &DispatchRequest{
			FunctionName: "blocking",
			Trigger:      domain.TriggerManual,
		})
	}()

	time.Sleep(50 * time.Millisecond)
	close(blocker)
	wg.Wait()

	select {
	case r := <-queued:
		if !r.Succeeded() {
			t.Errorf("queued call failed: [%s] %s", r.ErrorType, r.ErrorMessage)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("queued call never completed")
	}
}

// TestDispatch_QueueCancelled 测试排队期间上下文取消归类为 RuntimeBusyError。
func TestDispatch_QueueCancelled(t *testing.T) {
	blocker := make(chan struct{})
	defer close(blocker)
	started := make(chan struct{}, 1)
	blocking := &domain.Descriptor{
		Name:        "blocking",
		AccessLevel: domain.AccessPublic,
		Handler: func(ctx *domain.Context, payload map[string]any) (map[string]any, error) {
			started <- struct{}{}
			<-blocker
			return map[string]any{}, nil
		},
	}
	eng, _, _ := testEngine(t, config.DispatcherConfig{
		MaxConcurrent: 1,
		OnSaturation:  "queue",
	}, blocking)

	go eng.Dispatch(context.Background(), &DispatchRequest{
		FunctionName: "blocking",
		Trigger:      domain.TriggerManual,
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result := eng.Dispatch(ctx, &DispatchRequest{
		FunctionName: "blocking",
		Trigger:      domain.TriggerManual,
	})
	if result.ErrorType != domain.ErrorTypeRuntimeBusy {
		t.Errorf("error type = %s, want %s", result.ErrorType, domain.ErrorTypeRuntimeBusy)
	}
}

// TestDispatch_RecordWriteFailure 测试记录写入失败不改变调度结果。
func TestDispatch_RecordWriteFailure(t *testing.T) {
	eng, repo, _ := testEngine(t, config.DispatcherConfig{}, echoDescriptor())
	repo.failInsert = true

	result := eng.Dispatch(context.Background(), &DispatchRequest{
		FunctionName: "add_numbers",
		Trigger:      domain.TriggerManual,
		Payload:      json.RawMessage(`{"x": 1, "y": 1}`),
	})

	if !result.Succeeded() {
		t.Errorf("record write failure must not change the outcome: [%s] %s", result.ErrorType, result.ErrorMessage)
	}
	if result.Result["sum"].(int64) != 2 {
		t.Errorf("sum = %v, want 2", result.Result["sum"])
	}
}

// TestDispatch_BeginFailure 测试事务打开失败归类为 HandlerError。
func TestDispatch_BeginFailure(t *testing.T) {
	eng, repo, opener := testEngine(t, config.DispatcherConfig{}, echoDescriptor())
	opener.beginErr = errors.New("connection refused")

	result := eng.Dispatch(context.Background(), &DispatchRequest{
		FunctionName: "add_numbers",
		Trigger:      domain.TriggerManual,
		Payload:      json.RawMessage(`{"x": 1, "y": 1}`),
	})

	if result.ErrorType != domain.ErrorTypeHandler {
		t.Errorf("error type = %s, want %s", result.ErrorType, domain.ErrorTypeHandler)
	}
	if repo.count() != 1 {
		t.Errorf("got %d records, want 1", repo.count())
	}
}

// TestDispatch_SinkReceivesRecord 测试记录写入成功后推送给下游消费方。
func TestDispatch_SinkReceivesRecord(t *testing.T) {
	eng, _, _ := testEngine(t, config.DispatcherConfig{}, echoDescriptor())

	var mu sync.Mutex
	var received []*domain.CallRecord
	eng.AddRecordSink(recordSinkFunc(func(rec *domain.CallRecord) {
		mu.Lock()
		received = append(received, rec)
		mu.Unlock()
	}))

	result := eng.Dispatch(context.Background(), &DispatchRequest{
		FunctionName: "add_numbers",
		Trigger:      domain.TriggerManual,
		Payload:      json.RawMessage(`{"x": 1, "y": 2}`),
	})

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("sink received %d records, want 1", len(received))
	}
	if received[0].ID != result.CallID {
		t.Errorf("sink record ID %q != result CallID %q", received[0].ID, result.CallID)
	}
}

// recordSinkFunc 让普通函数实现 RecordSink。
type recordSinkFunc func(rec *domain.CallRecord)

func (f recordSinkFunc) PublishCallRecorded(rec *domain.CallRecord) { f(rec) }

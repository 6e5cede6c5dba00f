// Package functions 定义平台内置的服务器端函数。
// 每个函数由一个描述符（名称、访问级别、输入/输出模式）和一个处理器组成，
// 在网关启动时注册到注册表，之后作为 HTTP 端点对外暴露。
package functions

import (
	"fmt"

	"github.com/oriys/tinybase/internal/domain"
	"github.com/oriys/tinybase/internal/schema"
)

// All 返回全部内置函数的描述符，供网关启动时批量注册。
func All() []*domain.Descriptor {
	return []*domain.Descriptor{
		addNumbers(),
		hello(),
		divide(),
		adminReport(),
		cleanup(),
	}
}

// addNumbers 返回 add_numbers 函数：两数求和，无需认证。
func addNumbers() *domain.Descriptor {
	return &domain.Descriptor{
		Name:        "add_numbers",
		Description: "Add two numbers together",
		AccessLevel: domain.AccessPublic,
		InputShape: schema.NewShape(map[string]schema.Field{
			"x": {Type: schema.KindInt, Required: true},
			"y": {Type: schema.KindInt, Required: true},
		}),
		OutputShape: schema.NewShape(map[string]schema.Field{
			"sum": {Type: schema.KindInt, Required: true},
		}),
		Tags: []string{"math", "example"},
		Handler: func(ctx *domain.Context, payload map[string]any) (map[string]any, error) {
			x := payload["x"].(int64)
			y := payload["y"].(int64)
			return map[string]any{"sum": x + y}, nil
		},
	}
}

// hello 返回 hello 函数：问候语，要求认证，演示从上下文读取调用者信息。
func hello() *domain.Descriptor {
	return &domain.Descriptor{
		Name:        "hello",
		Description: "Say hello to someone",
		AccessLevel: domain.AccessAuthenticated,
		InputShape: schema.NewShape(map[string]schema.Field{
			"name": {Type: schema.KindString, Description: "Name to greet, defaults to World"},
		}),
		OutputShape: schema.NewShape(map[string]schema.Field{
			"message": {Type: schema.KindString, Required: true},
			"user_id": {Type: schema.KindString},
		}),
		Tags: []string{"example"},
		Handler: func(ctx *domain.Context, payload map[string]any) (map[string]any, error) {
			name, _ := payload["name"].(string)
			if name == "" {
				name = "World"
			}
			out := map[string]any{"message": fmt.Sprintf("Hello, %s!", name)}
			if ctx.UserID != "" {
				out["user_id"] = ctx.UserID
			}
			return out, nil
		},
	}
}

// divide 返回 divide 函数：整数除法，演示带种类标识的应用级错误。
func divide() *domain.Descriptor {
	return &domain.Descriptor{
		Name:        "divide",
		Description: "Divide two integers",
		AccessLevel: domain.AccessPublic,
		InputShape: schema.NewShape(map[string]schema.Field{
			"dividend": {Type: schema.KindInt, Required: true},
			"divisor":  {Type: schema.KindInt, Required: true},
		}),
		OutputShape: schema.NewShape(map[string]schema.Field{
			"quotient":  {Type: schema.KindInt, Required: true},
			"remainder": {Type: schema.KindInt, Required: true},
		}),
		Tags: []string{"math", "example"},
		Handler: func(ctx *domain.Context, payload map[string]any) (map[string]any, error) {
			dividend := payload["dividend"].(int64)
			divisor := payload["divisor"].(int64)
			if divisor == 0 {
				return nil, domain.NewHandlerError("ValueError", "Cannot divide by zero")
			}
			return map[string]any{
				"quotient":  dividend / divisor,
				"remainder": dividend % divisor,
			}, nil
		},
	}
}

// adminReport 返回 admin_report 函数：按时间窗口聚合调用统计，仅管理员可调。
// 通过调用上下文的事务句柄查询审计数据，演示函数内访问存储。
func adminReport() *domain.Descriptor {
	days := float64(1)
	return &domain.Descriptor{
		Name:        "admin_report",
		Description: "Aggregate call statistics over a time window",
		AccessLevel: domain.AccessAdmin,
		InputShape: schema.NewShape(map[string]schema.Field{
			"days": {Type: schema.KindInt, Min: &days, Description: "Window size in days, defaults to 7"},
		}),
		OutputShape: schema.NewShape(map[string]schema.Field{
			"total":     {Type: schema.KindInt, Required: true},
			"succeeded": {Type: schema.KindInt, Required: true},
			"failed":    {Type: schema.KindInt, Required: true},
			"days":      {Type: schema.KindInt, Required: true},
		}),
		Tags: []string{"admin"},
		Handler: func(ctx *domain.Context, payload map[string]any) (map[string]any, error) {
			window := int64(7)
			if v, ok := payload["days"].(int64); ok {
				window = v
			}

			query := `
				SELECT COUNT(*),
				       COUNT(*) FILTER (WHERE status = 'succeeded'),
				       COUNT(*) FILTER (WHERE status = 'failed')
				FROM call_records
				WHERE created_at >= NOW() - make_interval(days => $1)
			`
			var total, succeeded, failed int64
			row := ctx.Storage.QueryRowContext(ctx, query, window)
			if err := row.Scan(&total, &succeeded, &failed); err != nil {
				return nil, fmt.Errorf("failed to aggregate call records: %w", err)
			}

			return map[string]any{
				"total":     total,
				"succeeded": succeeded,
				"failed":    failed,
				"days":      window,
			}, nil
		},
	}
}

// cleanup 返回 cleanup 函数：删除超过保留期的调用记录，仅管理员可调。
// 通常由定时调度器触发，删除在调用的事务内执行，失败时整体回滚。
func cleanup() *domain.Descriptor {
	retention := float64(1)
	return &domain.Descriptor{
		Name:        "cleanup",
		Description: "Prune call records older than the retention window",
		AccessLevel: domain.AccessAdmin,
		InputShape: schema.NewShape(map[string]schema.Field{
			"retention_days": {Type: schema.KindInt, Min: &retention, Description: "Retention window in days, defaults to 30"},
		}),
		OutputShape: schema.NewShape(map[string]schema.Field{
			"deleted": {Type: schema.KindInt, Required: true},
		}),
		Tags: []string{"admin", "maintenance"},
		Handler: func(ctx *domain.Context, payload map[string]any) (map[string]any, error) {
			retentionDays := int64(30)
			if v, ok := payload["retention_days"].(int64); ok {
				retentionDays = v
			}

			result, err := ctx.Storage.ExecContext(ctx,
				"DELETE FROM call_records WHERE created_at < NOW() - make_interval(days => $1)",
				retentionDays,
			)
			if err != nil {
				return nil, fmt.Errorf("failed to prune call records: %w", err)
			}
			deleted, err := result.RowsAffected()
			if err != nil {
				return nil, fmt.Errorf("failed to count pruned records: %w", err)
			}

			return map[string]any{"deleted": deleted}, nil
		},
	}
}

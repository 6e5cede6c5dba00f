// Package functions 定义平台内置的服务器端函数。
// 本文件实现生命周期钩子：启动钩子在注册表封闭之后、开始服务流量之前执行，
// 关闭钩子在进程退出前执行。钩子失败只记录日志，不阻断启动或关闭。
package functions

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Hook 是生命周期钩子的签名。
type Hook func(ctx context.Context) error

var (
	hookMu        sync.Mutex
	startupHooks  []Hook
	shutdownHooks []Hook
)

// OnStartup 注册一个启动钩子。
func OnStartup(hook Hook) {
	hookMu.Lock()
	defer hookMu.Unlock()
	startupHooks = append(startupHooks, hook)
}

// OnShutdown 注册一个关闭钩子。
func OnShutdown(hook Hook) {
	hookMu.Lock()
	defer hookMu.Unlock()
	shutdownHooks = append(shutdownHooks, hook)
}

// RunStartupHooks 按注册顺序执行全部启动钩子。
func RunStartupHooks(ctx context.Context, logger *logrus.Logger) {
	runHooks(ctx, logger, snapshot(&startupHooks), "startup")
}

// RunShutdownHooks 按注册顺序执行全部关闭钩子。
func RunShutdownHooks(ctx context.Context, logger *logrus.Logger) {
	runHooks(ctx, logger, snapshot(&shutdownHooks), "shutdown")
}

// ClearHooks 清空全部已注册的钩子，仅用于测试。
func ClearHooks() {
	hookMu.Lock()
	defer hookMu.Unlock()
	startupHooks = nil
	shutdownHooks = nil
}

func snapshot(hooks *[]Hook) []Hook {
	hookMu.Lock()
	defer hookMu.Unlock()
	out := make([]Hook, len(*hooks))
	copy(out, *hooks)
	return out
}

func runHooks(ctx context.Context, logger *logrus.Logger, hooks []Hook, phase string) {
	for i, hook := range hooks {
		if err := hook(ctx); err != nil {
			logger.WithError(err).WithFields(logrus.Fields{
				"phase": phase,
				"index": i,
			}).Error("Lifecycle hook failed")
		}
	}
}

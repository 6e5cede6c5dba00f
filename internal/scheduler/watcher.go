// Package scheduler 实现定时调度服务。
// 本文件实现定时任务定义文件的热加载：监听文件变更，
// 变更后重新加载定义并整体替换已注册的任务。
package scheduler

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher 监听定时任务定义文件并在变更时触发重新加载。
type Watcher struct {
	path    string
	manager *CronManager
	logger  *logrus.Logger
	watcher *fsnotify.Watcher
}

// NewWatcher 创建定义文件监听器。
func NewWatcher(path string, manager *CronManager, logger *logrus.Logger) *Watcher {
	return &Watcher{
		path:    path,
		manager: manager,
		logger:  logger,
	}
}

// Start 开始监听定义文件的变更。
// 监听的是文件所在目录，以兼容编辑器的原子替换写入方式。
func (w *Watcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w.watcher = watcher

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch directory: %w", err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				// 写入和原子替换（Create/Rename）都视为变更
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if filepath.Base(event.Name) != filepath.Base(w.path) {
					continue
				}

				w.logger.WithField("file", w.path).Info("Schedules file changed, reloading")
				schedules, err := LoadSchedules(w.path)
				if err != nil {
					// 加载失败时保留现有任务不变
					w.logger.WithError(err).Error("Failed to reload schedules, keeping current set")
					continue
				}
				w.manager.Reload(schedules)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.logger.WithError(err).Error("Schedules watcher error")
			}
		}
	}()

	return nil
}

// Stop 停止文件监听。
func (w *Watcher) Stop() {
	if w.watcher != nil {
		w.watcher.Close()
	}
}

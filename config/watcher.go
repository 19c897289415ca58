// 配置文件变更监听器实现。
//
// 基于 fsnotify 事件与定时轮询检测文件的创建、修改与删除，并在变更稳定后触发回调。
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// --- 文件监听器类型定义 ---

// FileEvent represents a file change event
type FileEvent struct {
	Path      string    `json:"path"`
	Op        FileOp    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

// FileOp represents file operation types
type FileOp int

const (
	// FileOpCreate 表示文件已创建
	FileOpCreate FileOp = iota
	// FileOpWrite 指示文件已被修改
	FileOpWrite
	// FileOpRemove 表示文件已被删除
	FileOpRemove
)

// String returns the string representation of FileOp
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// --- 文件监听器选项 ---

// WatcherOption configures the FileWatcher
type WatcherOption func(*FileWatcher)

// WithPollInterval sets how often the file is checked.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithDebounceDelay sets how long a change must stay quiet before the
// callback runs.
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		w.debounceDelay = d
	}
}

// WithNotify toggles filesystem notifications. Without them the watcher
// only polls.
func WithNotify(enabled bool) WatcherOption {
	return func(w *FileWatcher) {
		w.notify = enabled
	}
}

// WithWatcherLogger sets the logger for the watcher
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// --- 文件监听器实现 ---

// fileState is what a poll observes about the watched file.
type fileState struct {
	exists  bool
	modTime time.Time
	size    int64
}

// FileWatcher watches one file, typically the companion roster, and reports
// changes once they have settled. It is used by `drama serve --watch`.
//
// Notifications on the parent directory trigger an immediate check; the poll
// interval is the fallback when notifications are unavailable.
type FileWatcher struct {
	path          string
	interval      time.Duration
	debounceDelay time.Duration
	notify        bool
	onChange      func(FileEvent)
	logger        *zap.Logger

	last    fileState
	pending *FileEvent
	quietAt time.Time
}

// NewFileWatcher creates a watcher for path. A missing file is not an error:
// its creation is reported as FileOpCreate.
func NewFileWatcher(path string, onChange func(FileEvent), opts ...WatcherOption) (*FileWatcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("watcher: callback is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	w := &FileWatcher{
		path:          abs,
		interval:      time.Second,
		debounceDelay: 100 * time.Millisecond,
		notify:        true,
		onChange:      onChange,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "file_watcher"), zap.String("path", abs))

	w.last, err = stat(abs)
	if err != nil {
		return nil, err
	}
	if !w.last.exists {
		w.logger.Warn("watched file does not exist, waiting for creation")
	}
	return w, nil
}

// Path returns the absolute watched path.
func (w *FileWatcher) Path() string { return w.path }

// Run watches until ctx is cancelled. Callbacks run on the watching goroutine.
func (w *FileWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error
	if nw := w.openNotifier(); nw != nil {
		defer nw.Close()
		events, errs = nw.Events, nw.Errors
	}

	w.logger.Info("file watcher started",
		zap.Duration("interval", w.interval),
		zap.Duration("debounce_delay", w.debounceDelay),
		zap.Bool("notify", events != nil))

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("file watcher stopped")
			return nil
		case now := <-ticker.C:
			w.poll(now)
		case now := <-settle:
			w.poll(now)
		case evt, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(evt.Name) != w.path {
				continue
			}
			w.poll(time.Now())
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("notification error", zap.Error(err))
		}
		settle = w.settleTimer()
	}
}

// openNotifier watches the parent directory so that editors replacing the
// file by rename are seen. Nil means poll only.
func (w *FileWatcher) openNotifier() *fsnotify.Watcher {
	if !w.notify {
		return nil
	}
	nw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("notifications unavailable, polling only", zap.Error(err))
		return nil
	}
	if err := nw.Add(filepath.Dir(w.path)); err != nil {
		w.logger.Warn("notifications unavailable, polling only", zap.Error(err))
		_ = nw.Close()
		return nil
	}
	return nw
}

// settleTimer fires when the pending event has been quiet long enough.
func (w *FileWatcher) settleTimer() <-chan time.Time {
	if w.pending == nil {
		return nil
	}
	return time.After(time.Until(w.quietAt))
}

// poll records a change and dispatches the pending event once the file has
// been quiet for the debounce delay.
func (w *FileWatcher) poll(now time.Time) {
	cur, err := stat(w.path)
	if err != nil {
		w.logger.Warn("stat failed", zap.Error(err))
		return
	}

	if op, changed := diff(w.last, cur); changed {
		w.last = cur
		if w.pending == nil {
			w.pending = &FileEvent{Path: w.path, Op: op}
		} else if op == FileOpRemove || w.pending.Op == FileOpRemove {
			w.pending.Op = op
		}
		w.pending.Timestamp = now
		w.quietAt = now.Add(w.debounceDelay)
		return
	}

	if w.pending != nil && !now.Before(w.quietAt) {
		evt := *w.pending
		w.pending = nil
		w.logger.Debug("dispatching file event", zap.String("op", evt.Op.String()))
		w.onChange(evt)
	}
}

func diff(prev, cur fileState) (FileOp, bool) {
	switch {
	case !prev.exists && cur.exists:
		return FileOpCreate, true
	case prev.exists && !cur.exists:
		return FileOpRemove, true
	case cur.exists && (!cur.modTime.Equal(prev.modTime) || cur.size != prev.size):
		return FileOpWrite, true
	default:
		return 0, false
	}
}

func stat(path string) (fileState, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fileState{}, nil
		}
		return fileState{}, fmt.Errorf("failed to stat path %s: %w", path, err)
	}
	return fileState{exists: true, modTime: info.ModTime(), size: info.Size()}, nil
}

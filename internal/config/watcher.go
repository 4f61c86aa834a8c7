package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// WatchFile invokes onChange whenever the file at path is written,
// created, renamed or removed. The parent directory is watched rather
// than the file itself, so atomic replaces (write temp, rename over) keep
// firing after the original inode is gone, and the file may not exist yet
// when the watch starts.
//
// Editors and atomic writers can produce several events per save; onChange
// must be idempotent. onChange runs on the watcher goroutine and should
// not block.
//
// The returned stop function releases the watcher. It is safe to call
// more than once.
func WatchFile(path string, logger *slog.Logger, onChange func()) (stop func(), err error) {
	if logger == nil {
		logger = slog.Default()
	}
	target := filepath.Clean(path)
	dir := filepath.Dir(target)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("config: watch %s: %w", dir, err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
					continue
				}
				logger.Debug("watched file changed",
					"component", "config",
					"path", target,
					"op", event.Op.String())
				onChange()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("file watcher error",
					"component", "config",
					"error", err)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { watcher.Close() })
	}, nil
}

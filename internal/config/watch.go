package config

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/deusflow/newsroom/internal/logger"
)

const debounceInterval = 500 * time.Millisecond

// Watch reloads the file at path whenever it changes and passes the new
// config to onChange. Invalid files are logged and the old config is kept.
// Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	reload := func() {
		var (
			cfg *Config
			err error
		)
		// Editors write in several steps; retry a partially written file.
		for i := 0; i < 3; i++ {
			if i > 0 {
				time.Sleep(100 * time.Millisecond)
			}
			if cfg, err = LoadFile(path); err == nil {
				break
			}
		}
		if err != nil {
			logger.Error("config reload failed, keeping previous config", "path", path, "error", err)
			return
		}
		logger.Info("config reloaded", "path", path)
		onChange(cfg)
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			// Atomic saves replace the file; watch the new inode.
			if event.Op&(fsnotify.Rename|fsnotify.Remove) != 0 {
				go func() {
					time.Sleep(100 * time.Millisecond)
					_ = watcher.Add(path)
				}()
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceInterval, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "error", err)
		}
	}
}

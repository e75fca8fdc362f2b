// Package config: hot reloading of configuration files in development.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher watches configuration files on disk and hot-reloads them,
// primarily for development iteration (spec SPEC_FULL §10.3).
type Watcher struct {
	config    *Config
	basePath  string
	callbacks []func(*Config)
	mu        sync.RWMutex
	logger    *zap.Logger
	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
}

// NewWatcher creates a Watcher. File watching only activates outside
// production, mirroring the rest of the stack's hot-reload gating.
func NewWatcher(initial *Config, basePath string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Watcher{
		config:   initial,
		basePath: basePath,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}

	if initial.Environment == Production {
		logger.Info("config hot reload disabled", zap.String("environment", string(initial.Environment)))
		return w, nil
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w.fsWatcher = fsWatcher

	if err := w.watchConfigFiles(); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch config files: %w", err)
	}

	go w.watchLoop()
	logger.Info("config hot reload enabled", zap.String("environment", string(initial.Environment)))
	return w, nil
}

func (w *Watcher) watchConfigFiles() error {
	dir := w.basePath
	if dir == "" {
		dir = "config"
	}
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if info.IsDir() || isConfigFile(path) {
			if err := w.fsWatcher.Add(path); err != nil {
				w.logger.Warn("failed to watch config path", zap.String("path", path), zap.Error(err))
			}
		}
		return nil
	})
}

func (w *Watcher) watchLoop() {
	defer w.fsWatcher.Close()

	var debounce *time.Timer
	const debounceDelay = 500 * time.Millisecond

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 && isConfigFile(event.Name) {
				w.logger.Info("config file changed", zap.String("file", event.Name))
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDelay, w.reload)
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", zap.Error(err))
		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) reload() {
	newCfg, err := NewLoader(w.basePath, w.config.Environment).Load()
	if err != nil {
		w.logger.Error("invalid configuration after reload", zap.Error(err))
		return
	}

	w.mu.Lock()
	w.config = newCfg
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	for _, cb := range callbacks {
		go func(cb func(*Config)) {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error("config reload callback panicked", zap.Any("panic", r))
				}
			}()
			cb(newCfg)
		}(cb)
	}
	w.logger.Info("configuration reloaded", zap.Int("callbacks_notified", len(callbacks)))
}

// OnChange registers a callback invoked whenever the configuration reloads.
func (w *Watcher) OnChange(callback func(*Config)) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, callback)
	w.mu.Unlock()
}

// Config returns the current configuration.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	if w.fsWatcher != nil {
		close(w.stopCh)
	}
}

func isConfigFile(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".yaml" || ext == ".yml" || ext == ".json"
}

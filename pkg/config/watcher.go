// Copyright 2024-2026 Madhukar Beema, Distinguished Engineer. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 500 * time.Millisecond

// watchedFiles are the files LoadDir reads.
var watchedFiles = map[string]bool{
	"base.yaml":   true,
	"hooks.yaml":  true,
	"export.yaml": true,
}

// Watcher reloads a config directory when one of its files changes. Bursts
// of events are coalesced into a single reload.
type Watcher struct {
	dir      string
	onChange func(*Config, string)
	logger   *zap.Logger
	debounce time.Duration

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	stopCh  chan struct{}
	done    chan struct{}
}

// NewWatcher creates a config directory watcher.
// onChange is called with the merged config and the name of the changed file.
func NewWatcher(dir string, onChange func(*Config, string), logger *zap.Logger) *Watcher {
	return &Watcher{
		dir:      dir,
		onChange: onChange,
		logger:   logger,
		debounce: reloadDebounce,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins watching the config directory for changes.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return err
	}
	w.watcher = fsw

	go w.loop(ctx)
	w.logger.Info("config watcher started", zap.String("dir", w.dir))
	return nil
}

// Stop shuts down the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	close(w.stopCh)
	if w.watcher != nil {
		w.watcher.Close()
		<-w.done
	}
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	var timer *time.Timer
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
	}

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				stopTimer()
				return
			}
			name := filepath.Base(event.Name)
			if !watchedFiles[name] || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("config file changed", zap.String("file", name), zap.Stringer("op", event.Op))

			stopTimer()
			timer = time.AfterFunc(w.debounce, func() { w.reload(name) })

		case err, ok := <-w.watcher.Errors:
			if !ok {
				stopTimer()
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))

		case <-ctx.Done():
			stopTimer()
			return

		case <-w.stopCh:
			stopTimer()
			return
		}
	}
}

// reload keeps the previous config when the new one does not load.
func (w *Watcher) reload(changedFile string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cfg, err := LoadDir(w.dir)
	if err != nil {
		w.logger.Error("config reload failed, keeping previous config",
			zap.String("file", changedFile), zap.Error(err))
		return
	}

	w.logger.Info("config reloaded", zap.String("trigger", changedFile))
	w.onChange(cfg, changedFile)
}

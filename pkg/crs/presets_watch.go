/*
Copyright 2026 The LidarCtl Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package crs

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
)

// debounceWindow absorbs the burst of several rapid write events an editor
// or a config-management tool fires for one logical save.
const debounceWindow = 500 * time.Millisecond

// WatchedPresetLoader wraps a PresetLoader with an fsnotify watch on the
// presets file's directory (not the file itself: editors and deploy
// tooling frequently replace a file via rename rather than in-place
// write, which a direct file watch would miss). Only the CRS presets path
// is hot-reloaded; every other setting in internal/config is env-only
// because reloading PG_DSN/S3_BUCKET mid-process would leave pooled
// connections and cached clients inconsistent, while presets are a pure,
// stateless lookup table.
type WatchedPresetLoader struct {
	mu      sync.RWMutex
	current *PresetLoader
	path    string
	log     logr.Logger

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatchedPresetLoader builds a loader bound to path and starts
// watching its containing directory in the background. Call Close to
// stop the watcher.
func NewWatchedPresetLoader(path string, log logr.Logger) (*WatchedPresetLoader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	w := &WatchedPresetLoader{
		current: NewPresetLoader(path),
		path:    path,
		log:     log,
		watcher: watcher,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Load returns the presets table from the currently active loader,
// reloading the file if a watched write/create event landed since the
// last call.
func (w *WatchedPresetLoader) Load() (map[int]RegionPreset, error) {
	w.mu.RLock()
	loader := w.current
	w.mu.RUnlock()
	return loader.Load()
}

// Close stops the background watch goroutine and releases the fsnotify
// watcher.
func (w *WatchedPresetLoader) Close() error {
	close(w.stopCh)
	<-w.doneCh
	return w.watcher.Close()
}

func (w *WatchedPresetLoader) run() {
	defer close(w.doneCh)

	var debounce *time.Timer
	for {
		select {
		case <-w.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceWindow, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error(err, "CRS presets watcher error", "path", w.path)
		}
	}
}

func (w *WatchedPresetLoader) reload() {
	w.mu.Lock()
	w.current = NewPresetLoader(w.path)
	w.mu.Unlock()
	w.log.Info("reloaded CRS presets file", "path", w.path)
}

// Run blocks until ctx is cancelled, then closes the watcher. Convenient
// for wiring into a process whose lifecycle is already ctx-scoped.
func (w *WatchedPresetLoader) Run(ctx context.Context) error {
	<-ctx.Done()
	return w.Close()
}

package tools

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher triggers registry refresh when the tool-provider config file
// changes on disk.
type ConfigWatcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchProviderConfig watches path and calls reload after each write or
// create event touching it. Editors replace files rather than writing in
// place, so the parent directory is watched and events are filtered by name.
func WatchProviderConfig(path string, reload func() error, logf func(format string, args ...any)) (*ConfigWatcher, error) {
	if logf == nil {
		logf = func(string, ...any) {}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	cw := &ConfigWatcher{watcher: w, done: make(chan struct{})}
	target := filepath.Clean(path)

	go func() {
		for {
			select {
			case <-cw.done:
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				logf("provider config changed, refreshing tools")
				if err := reload(); err != nil {
					logf("provider refresh failed: %v", err)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logf("provider config watcher error: %v", err)
			}
		}
	}()

	return cw, nil
}

// Close stops the watcher.
func (cw *ConfigWatcher) Close() error {
	close(cw.done)
	return cw.watcher.Close()
}

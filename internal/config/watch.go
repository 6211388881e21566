package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a config file whenever it changes on disk, calling
// onReload with the newly parsed and validated Config, using plain YAML
// decoding rather than a layered config-loader library (see DESIGN.md).
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onReload func(*Config, error)
	done     chan struct{}
}

// WatchConfig starts watching path for writes/renames and invokes onReload
// on every change. Call Close to stop.
func WatchConfig(path string, onReload func(*Config, error)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		_ = fw.Close()
		return nil, err
	}

	w := &Watcher{path: path, watcher: fw, onReload: onReload, done: make(chan struct{})}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				slog.Warn("config reload failed, keeping previous config", "path", w.path, "error", err)
			}
			w.onReload(cfg, err)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// reloadDebounce coalesces the burst of events an editor's atomic-replace
// save produces into a single reload.
const reloadDebounce = 150 * time.Millisecond

// Watcher reloads the configuration file into a Store whenever it changes
// on disk, without requiring a process restart for non-listener keys.
type Watcher struct {
	path    string
	store   *Store
	watcher *fsnotify.Watcher
}

// NewWatcher starts watching path's parent directory for changes. fsnotify
// is asked to watch the directory rather than the file itself so that
// editors which save via rename-into-place are still observed.
func NewWatcher(path string, store *Store) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{path: path, store: store, watcher: fw}, nil
}

// Run blocks, reloading the config on every relevant filesystem event,
// until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) {
	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != filepath.Base(w.path) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("config watcher error")
		case <-reload:
			cfg, err := Load(w.path)
			if err != nil {
				log.WithError(err).Warn("config reload failed, keeping previous configuration")
				continue
			}
			w.store.Set(cfg)
			log.Info("configuration reloaded")
		}
	}
}

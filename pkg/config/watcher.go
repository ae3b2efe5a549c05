package config

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/chalkcast/chalkcast/pkg/logger"
	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the webrtc (ICE server) part of the config when the
// config file changes on disk, so TURN credential rotation doesn't need
// a relay restart. Already established peer connections keep their old
// servers; only new negotiations pick up the change.
type Watcher struct {
	mu       sync.RWMutex
	current  Webrtc
	dir      string
	onUpdate func(Webrtc)
	watcher  *fsnotify.Watcher
	done     chan struct{}
	log      *logger.Logger
}

func NewWatcher(dir string, initial Webrtc, log *logger.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	watcher := &Watcher{
		current: initial,
		dir:     dir,
		watcher: w,
		done:    make(chan struct{}),
		log:     log,
	}
	go watcher.run()
	return watcher, nil
}

func (w *Watcher) Get() Webrtc {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Watcher) OnUpdate(fn func(Webrtc)) {
	w.mu.Lock()
	w.onUpdate = fn
	w.mu.Unlock()
}

func (w *Watcher) Stop() {
	close(w.done)
	_ = w.watcher.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			ext := strings.ToLower(filepath.Ext(event.Name))
			if ext != ".yaml" && ext != ".yml" && ext != ".json" && ext != ".toml" {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("config watch")
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() {
	var conf struct{ Webrtc Webrtc }
	if err := LoadConfig(&conf, w.dir); err != nil {
		w.log.Error().Err(err).Msg("config reload failed, keeping the old one")
		return
	}
	w.mu.Lock()
	w.current = conf.Webrtc
	fn := w.onUpdate
	w.mu.Unlock()
	w.log.Info().Msg("webrtc config reloaded")
	if fn != nil {
		fn(conf.Webrtc)
	}
}

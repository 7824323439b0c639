package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const defaultDebounce = 100 * time.Millisecond

// Watcher reloads a config file when it changes. Only settings that can
// change under a running server are applied; by default that is the log
// level.
type Watcher struct {
	path     string
	log      zerolog.Logger
	apply    func(FileConfig) error
	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher watches path. A nil apply reloads the global log level.
func NewWatcher(path string, log zerolog.Logger, apply func(FileConfig) error) *Watcher {
	if apply == nil {
		apply = ApplyLogLevel
	}
	return &Watcher{
		path:     path,
		log:      log,
		apply:    apply,
		debounce: defaultDebounce,
	}
}

// ApplyLogLevel sets the global log level from fc, if it names one.
func ApplyLogLevel(fc FileConfig) error {
	if fc.LogLevel == "" {
		return nil
	}
	lvl, err := ParseLevel(fc.LogLevel)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// Run watches the file's directory until ctx is done. Editors often replace
// files instead of writing them in place, so events are matched by name.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	defer w.stopTimer()

	name := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.schedule()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("config watcher error")
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) reload() {
	fc, err := LoadFileConfig(w.path)
	if err != nil {
		w.log.Warn().Err(err).Str("path", w.path).Msg("failed to reload config")
		return
	}
	if err := w.apply(fc); err != nil {
		w.log.Warn().Err(err).Str("path", w.path).Msg("failed to apply config")
		return
	}
	w.log.Info().Str("path", w.path).Str("log_level", fc.LogLevel).Msg("reloaded config")
}

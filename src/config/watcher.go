package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"browser-engine/src/internal/common"
	"browser-engine/src/internal/constants"
)

// Watcher reloads the configuration file on change so tuning parameters
// (thresholds, score weights, budgets) can be adjusted without a restart.
type Watcher struct {
	watcher       *fsnotify.Watcher
	path          string
	onReload      func(*Config)
	debounceDelay time.Duration

	pendingMutex  sync.Mutex
	debounceTimer *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher creates a config watcher for the given file path. onReload is
// invoked with the freshly parsed config after each successful reload.
func NewWatcher(path string, onReload func(*Config)) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &Watcher{
		watcher:       fsWatcher,
		path:          path,
		onReload:      onReload,
		debounceDelay: constants.ConfigWatchDebounce,
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}

	// Watch the containing directory: editors replace files on save,
	// which drops a watch on the file itself
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		fsWatcher.Close()
		cancel()
		return nil, err
	}

	go w.loop()
	return w, nil
}

// SetDebounceDelay overrides the reload debounce window
func (w *Watcher) SetDebounceDelay(d time.Duration) {
	w.debounceDelay = d
}

// Stop shuts the watcher down
func (w *Watcher) Stop() error {
	w.cancel()
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)

	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			common.CLILogger.Warn("Config watcher error: %v", err)
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.pendingMutex.Lock()
	defer w.pendingMutex.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceDelay, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		common.CLILogger.Warn("Config reload failed, keeping previous config: %v", err)
		return
	}

	common.CLILogger.Info("Config reloaded from %s", w.path)
	if w.onReload != nil {
		w.onReload(cfg)
	}
}

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/wemix/headwatch/pkg/logger"
)

// reloadDebounce coalesces the burst of events editors emit on save
const reloadDebounce = 250 * time.Millisecond

// Update carries a reloaded configuration, or the error that prevented it
type Update struct {
	Path   string
	Config *Config
	Error  error
}

// Watcher reloads the configuration file when it changes
type Watcher struct {
	loader  *Loader
	path    string
	watcher *fsnotify.Watcher
	updates chan Update
	logger  *logger.Logger

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewWatcher watches the file loader last read
func NewWatcher(loader *Loader, log *logger.Logger) (*Watcher, error) {
	path := loader.ConfigFile()
	if path == "" {
		return nil, fmt.Errorf("no config file to watch")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	// watch the directory, not the file, so atomic renames are seen
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	return &Watcher{
		loader:  loader,
		path:    path,
		watcher: fw,
		updates: make(chan Update, 1),
		logger:  log,
		done:    make(chan struct{}),
	}, nil
}

// Updates delivers reload results. Only the latest pending update is kept.
func (w *Watcher) Updates() <-chan Update {
	return w.updates
}

// Start begins watching in the background
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	go w.watchLoop(ctx)
}

// Stop stops watching. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
			<-w.done
		}
		w.watcher.Close()
	})
}

// watchLoop handles file system events
func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.done)

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			timerCh = timer.C

		case <-timerCh:
			timerCh = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := w.loader.Load()
	if err != nil {
		w.logger.Error("failed to reload config", zap.String("path", w.path), zap.Error(err))
	} else {
		w.logger.Info("config reloaded", zap.String("path", w.path))
	}

	update := Update{Path: w.path, Config: cfg, Error: err}

	// replace a stale pending update
	select {
	case <-w.updates:
	default:
	}
	select {
	case w.updates <- update:
	default:
		w.logger.Warn("config update channel full, dropping notification")
	}
}

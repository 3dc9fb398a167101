package config

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher watches configuration directories and reports changes to
// yml/yaml/toml files through a callback, with a debounce window
// absorbing bursts of rapid writes (editors commonly write a config
// file several times in quick succession).
type Watcher struct {
	watcher    *fsnotify.Watcher
	debounce   time.Duration
	mu         sync.Mutex
	lastChange time.Time
	logger     *logrus.Entry
	onReload   func(file string)
}

// NewWatcher creates a Watcher over the given directories. A
// non-positive debounce defaults to 100 ms.
func NewWatcher(dirs []string, debounce time.Duration, onReload func(string), logger *logrus.Entry) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := fsw.Add(dir); err != nil {
			logger.WithError(err).WithField("dir", dir).Warn("Failed to watch config directory")
		}
	}

	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}

	return &Watcher{
		watcher:  fsw,
		debounce: debounce,
		logger:   logger,
		onReload: onReload,
	}, nil
}

// Start watches for config changes until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !isConfigFile(event.Name) {
				continue
			}
			w.handleChange(event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Error("Config watcher error")
		case <-ctx.Done():
			w.watcher.Close()
			return
		}
	}
}

// handleChange processes one config file change with debouncing.
func (w *Watcher) handleChange(file string) {
	w.mu.Lock()
	elapsed := time.Since(w.lastChange)
	if elapsed < w.debounce {
		w.mu.Unlock()
		w.logger.WithField("file", filepath.Base(file)).Debug("Debounced config change")
		return
	}
	w.lastChange = time.Now()
	w.mu.Unlock()

	w.logger.WithField("file", filepath.Base(file)).Info("Config changed")
	if w.onReload != nil {
		w.onReload(filepath.Base(file))
	}
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func isConfigFile(name string) bool {
	switch {
	case strings.HasSuffix(name, ".yml"), strings.HasSuffix(name, ".yaml"), strings.HasSuffix(name, ".toml"):
		return true
	default:
		return false
	}
}

package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the catalog overlay directory and reloads the catalog on
// file changes, debounced to avoid reload storms from editors that write
// in multiple events.
type Watcher struct {
	catalog  *Catalog
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger
}

// NewWatcher creates a watcher for the catalog's overlay directory.
// The catalog must have been created with NewFromDir.
func NewWatcher(c *Catalog, debounce time.Duration) (*Watcher, error) {
	if c.dir == "" {
		return nil, fmt.Errorf("catalog has no overlay directory to watch")
	}
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if err := fw.Add(c.dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %q: %w", c.dir, err)
	}

	return &Watcher{
		catalog:  c,
		watcher:  fw,
		debounce: debounce,
		logger:   c.logger.With("component", "catalog.watcher"),
	}, nil
}

// Watch blocks processing file events until the context is cancelled.
func (w *Watcher) Watch(ctx context.Context) error {
	defer w.watcher.Close()

	w.logger.Info("catalog watcher started", "dir", w.catalog.dir)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("catalog watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !relevantEvent(event) {
				continue
			}
			w.logger.Debug("catalog file event", "path", event.Name, "op", event.Op.String())

			// Restart the debounce window on every relevant event.
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timerC = nil
			timer = nil
			if err := w.catalog.Reload(); err != nil {
				w.logger.Error("catalog reload failed, keeping previous templates", "error", err)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Warn("catalog watcher error", "error", err)
		}
	}
}

// relevantEvent filters events down to YAML writes, creates, and removals.
func relevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	ext := filepath.Ext(event.Name)
	return ext == ".yaml" || ext == ".yml"
}

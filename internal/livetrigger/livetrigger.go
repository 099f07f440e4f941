// Package livetrigger is an optional, best-effort supplement to periodic
// scanning: an fsnotify watch over the configured roots that wakes the
// runner early instead of waiting out the full scan interval. It never
// mutates the catalog and never replaces the scan/delta/queue pipeline; a
// woken cycle still runs the full walk, and a missed or coalesced event is
// always caught by the next periodic scan.
package livetrigger

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Trigger watches a set of roots and emits on Changed() whenever one of
// them has settled after a burst of filesystem activity.
type Trigger struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	changed  chan struct{}
	cancel   context.CancelFunc
	once     sync.Once
}

// Start begins watching roots (recursively) for changes, notifying on the
// returned Trigger's Changed() channel no more often than once per debounce
// window. Each root must already exist.
func Start(ctx context.Context, roots []string, debounce time.Duration) (*Trigger, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	for _, root := range roots {
		if err := addRecursive(fw, root); err != nil {
			slog.Warn("livetrigger: failed to watch root", "root", root, "error", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	t := &Trigger{
		watcher:  fw,
		debounce: debounce,
		changed:  make(chan struct{}, 1),
		cancel:   cancel,
	}

	go t.run(runCtx)
	return t, nil
}

// Changed emits a value (non-blocking, coalesced) each time the watched
// trees have settled after activity. The runner should treat this purely as
// a hint to run a cycle sooner, never as a description of what changed.
func (t *Trigger) Changed() <-chan struct{} {
	return t.changed
}

// Stop tears down the underlying fsnotify watcher (idempotent).
func (t *Trigger) Stop() {
	t.once.Do(func() {
		t.cancel()
		_ = t.watcher.Close()
	})
}

func (t *Trigger) run(ctx context.Context) {
	var lastEvent time.Time
	pending := false
	ticker := time.NewTicker(t.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case evt, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
					if err := t.watcher.Add(evt.Name); err != nil {
						slog.Debug("livetrigger: failed to watch new directory", "dir", evt.Name, "error", err)
					}
				}
			}
			lastEvent = time.Now()
			pending = true

		case <-t.watcher.Errors:
			// Best-effort: a watch error never fails the runner, it just means
			// this particular change might be missed until the next periodic
			// scan.

		case now := <-ticker.C:
			if pending && now.Sub(lastEvent) >= t.debounce {
				pending = false
				select {
				case t.changed <- struct{}{}:
				default:
				}
			}
		}
	}
}

func addRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := fw.Add(path); err != nil {
			slog.Debug("livetrigger: failed to watch directory", "dir", path, "error", err)
		}
		return nil
	})
}

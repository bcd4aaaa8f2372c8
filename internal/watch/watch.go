// Package watch re-runs deduplication whenever the compiler regenerates
// artifacts under the scan root. Events are debounced so a burst of writes
// from one compiler run triggers a single pass.
package watch

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Debounce is how long the watcher waits after the last relevant event
// before firing.
const Debounce = 500 * time.Millisecond

// Run watches root and invokes fn after each settled burst of artifact
// changes. It blocks until ctx is cancelled. The shared module and temp
// files are ignored, so the tool's own writes do not retrigger it.
func Run(ctx context.Context, root, suffix, sharedName string, log *zap.Logger, fn func() error) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(root); err != nil {
		return err
	}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != root {
			return w.Add(path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !relevant(ev, suffix, sharedName) {
				continue
			}
			log.Debug("artifact changed", zap.String("path", ev.Name), zap.String("op", ev.Op.String()))
			if timer == nil {
				timer = time.NewTimer(Debounce)
			} else {
				timer.Reset(Debounce)
			}
			fire = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", zap.Error(err))
		case <-fire:
			fire = nil
			if err := fn(); err != nil {
				return err
			}
		}
	}
}

func relevant(ev fsnotify.Event, suffix, sharedName string) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(ev.Name)
	if base == sharedName || strings.HasPrefix(base, ".") {
		return false
	}
	return strings.HasSuffix(ev.Name, suffix)
}

package moderation

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

// Watch reloads the word list whenever path changes, until ctx ends. The
// parent directory is watched so that editors replacing the file by rename
// are picked up.
func (f *WordFilter) Watch(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve word list path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer w.Close()

		var reload <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					reload = time.After(reloadDebounce)
				}
			case <-reload:
				reload = nil
				if err := f.LoadFile(abs); err != nil {
					f.logger.Warnw("word list reload failed, keeping previous list",
						"path", abs,
						"error", err,
					)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				f.logger.Warnw("word list watcher error", "error", err)
			}
		}
	}()
	return nil
}

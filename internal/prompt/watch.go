package prompt

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/chatrelay/chatrelay/internal/logging"
)

// reloadDelay coalesces the burst of events an editor save produces.
const reloadDelay = 100 * time.Millisecond

// Watch reloads the catalog whenever one of its files changes, until ctx is
// done. The parent directories are watched so that rename-on-save editors are
// seen. onReload, if set, runs after every successful reload.
func (c *Catalog) Watch(ctx context.Context, onReload func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	watched := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, f := range c.Files() {
		abs, err := filepath.Abs(f)
		if err != nil {
			continue
		}
		watched[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		// Watch the directory rather than the file; files replaced by rename
		// drop their own watch.
		if err := w.Add(dir); err != nil {
			logging.Warn().Err(err).Str("dir", dir).Msg("cannot watch prompt directory")
			continue
		}
		dirs[dir] = true
	}
	logging.Info().Int("files", len(watched)).Msg("prompt watcher started")

	timer := time.NewTimer(reloadDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil || !watched[abs] {
				continue
			}
			timer.Reset(reloadDelay)
		case <-timer.C:
			if err := c.Reload(); err != nil {
				logging.Error().Err(err).Msg("prompt reload failed")
				continue
			}
			logging.Info().Msg("prompt catalog reloaded")
			if onReload != nil {
				onReload()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logging.Error().Err(err).Msg("prompt watcher error")
		}
	}
}

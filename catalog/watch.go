package catalog

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watch reloads the catalog whenever the file at path is written or
// replaced, calling onReload (if non-nil) after each successful reload. It
// blocks until ctx is cancelled.
//
// The parent directory is watched rather than the file itself so that
// editors which save through rename keep triggering reloads.
func (c *Catalog) Watch(ctx context.Context, path string, log zerolog.Logger, onReload func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("catalog: watcher: %w", err)
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("catalog: resolve %s: %w", path, err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("catalog: watch %s: %w", path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if err := c.Reload(abs); err != nil {
				log.Warn().Err(err).Str("path", abs).Msg("catalog reload failed, keeping previous filters")
				continue
			}
			log.Info().Str("path", abs).Int("filters", c.Len()).Msg("catalog reloaded")
			if onReload != nil {
				onReload()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("catalog watcher error")
		}
	}
}

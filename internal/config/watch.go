package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// WatchLogLevel reloads the config at path whenever it is written and
// passes its log level to apply. The directory is watched so editors that
// replace the file by rename are picked up too. Watching stops with ctx.
func WatchLogLevel(ctx context.Context, path string, apply func(level string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", path, err)
	}

	target := filepath.Clean(path)
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := LoadConfig(path)
				if err != nil {
					log.Warn().Err(err).Str("config", path).Msg("reload config")
					continue
				}
				log.Debug().Str("level", cfg.Log.Level).Msg("config reloaded")
				apply(cfg.Log.Level)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("config watcher")
			}
		}
	}()
	return nil
}

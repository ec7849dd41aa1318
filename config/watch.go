package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settle collapses the burst of events an editor produces on save.
const settle = 200 * time.Millisecond

// Watch re-reads cfile whenever it changes and calls fn with every new
// configuration that validates. Invalid files are logged and skipped. The
// directory is watched instead of the file so that editors replacing the
// file by rename are followed. Watch blocks until ctx is done.
func Watch(ctx context.Context, cfile string, realhw bool, fn func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(cfile)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(settle)
			} else {
				timer.Reset(settle)
			}
			fire = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Config watcher error", "error", err)
		case <-fire:
			fire = nil
			conf, err := ReadConfig(cfile, realhw)
			if err != nil {
				slog.Error("Ignoring changed config", "file", cfile, "error", err)
				continue
			}
			slog.Info("Config file changed, reloading", "file", cfile)
			fn(conf)
		}
	}
}

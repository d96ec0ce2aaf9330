package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 250 * time.Millisecond

// Watch reloads the configuration at path whenever the file changes and
// hands the result to onChange. Load failures go to onError and the previous
// configuration stays in effect. Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(*Config), onError func(error)) error {
	if onError == nil {
		onError = func(error) {}
	}
	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	// Editors and Save replace the file, so watch the directory.
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch config directory: %w", err)
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending = time.After(watchDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			onError(fmt.Errorf("config watcher: %w", err))
		case <-pending:
			pending = nil
			cfg, _, exists, err := Load(target)
			if err != nil {
				onError(err)
				continue
			}
			if !exists {
				continue
			}
			if onChange != nil {
				onChange(cfg)
			}
		}
	}
}

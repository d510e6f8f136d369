package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 250 * time.Millisecond

// Watch calls onChange with the freshly loaded file every time path is
// written, created or renamed into place. Load failures go to onError and
// keep the previous config in service. Watch blocks until ctx is done.
//
// The parent directory is watched rather than the file itself because most
// editors save by replacing the file, which drops a watch on the old inode.
func Watch(ctx context.Context, path string, onChange func(Config), onError func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return err
	}

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				debounce = time.After(watchDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if onError != nil {
				onError(err)
			}
		case <-debounce:
			debounce = nil
			cfg, err := LoadConfig(absPath)
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			onChange(cfg)
		}
	}
}

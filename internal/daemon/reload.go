package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hannesmitterer/sentinel/internal/config"
)

func defaultConfigPath() string {
	return filepath.Join(config.Dir(), "config.yaml")
}

// Reloader watches the config file for changes and triggers hot-reload.
type Reloader struct {
	watcher  *fsnotify.Watcher
	daemon   *Daemon
	path     string
	debounce time.Duration
}

// NewReloader creates a file watcher for the daemon's config file.
// A missing file is not an error: the watcher covers the directory, so
// creating the file later still triggers a reload.
func NewReloader(d *Daemon) (*Reloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	path := d.ConfigPath()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", filepath.Dir(path), err)
	}

	return &Reloader{
		watcher:  watcher,
		daemon:   d,
		path:     path,
		debounce: 500 * time.Millisecond,
	}, nil
}

// Run watches for config changes and reloads. Blocks until ctx is
// cancelled. Writes are debounced so an editor's save sequence counts
// as one reload.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != r.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(r.debounce, func() {
					if err := r.daemon.Reload(); err != nil {
						fmt.Fprintf(os.Stderr, "hot-reload failed: %v\n", err)
					} else {
						fmt.Fprintf(os.Stderr, "hot-reload: config reloaded\n")
					}
				})
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "file watcher error: %v\n", err)
		}
	}
}

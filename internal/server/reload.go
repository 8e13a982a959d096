package server

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reloader watches the policy file for changes and triggers hot-reload.
type Reloader struct {
	watcher *fsnotify.Watcher
	server  *Server
}

// NewReloader creates a file watcher for the server's policy file.
func NewReloader(server *Server) (*Reloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	if err := watcher.Add(server.cfg.PolicyPath); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %q: %w", server.cfg.PolicyPath, err)
	}

	return &Reloader{watcher: watcher, server: server}, nil
}

// Run watches for file changes and reloads policy. Blocks until ctx is
// cancelled. A failed reload keeps the previous rule set active.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	// Debounce: wait 500ms after the last write before reloading.
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
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					if err := r.server.ReloadPolicy(); err != nil {
						fmt.Fprintf(os.Stderr, "hot-reload failed: %v\n", err)
					} else {
						fmt.Fprintf(os.Stderr, "hot-reload: policy version %d active\n", r.server.repo.Version())
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

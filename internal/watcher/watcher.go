// Package watcher reports when a single file settles after being written,
// replaced or removed.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/watchdesk/watchdesk/internal/log"
)

// DefaultQuiet rides out login helpers that write a file in several steps.
const DefaultQuiet = 250 * time.Millisecond

const relevantOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove

// File watches path until ctx is done. One value arrives on the returned
// channel once path has been quiet for the given period after a change; the
// channel is closed when watching stops. The parent directory is watched so
// an atomic rename over path is seen.
func File(ctx context.Context, path string, quiet time.Duration) (<-chan struct{}, error) {
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	path = filepath.Clean(path)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watching directory %s: %w", filepath.Dir(path), err)
	}

	out := make(chan struct{}, 1)
	go watch(ctx, fsw, path, quiet, out)
	return out, nil
}

func watch(ctx context.Context, fsw *fsnotify.Watcher, path string, quiet time.Duration, out chan<- struct{}) {
	settle := time.NewTimer(quiet)
	settle.Stop()
	defer func() {
		settle.Stop()
		_ = fsw.Close()
		close(out)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if ev.Op&relevantOps != 0 && filepath.Clean(ev.Name) == path {
				settle.Reset(quiet)
			}
		case <-settle.C:
			select {
			case out <- struct{}{}:
			default:
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			log.WarnErr(log.CatAuth, "file watch error", err, "path", path)
		}
	}
}

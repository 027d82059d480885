package listener

import (
	"context"
	"errors"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrCredentialsRotated signals that the credentials file changed and the
// listener should reconnect with fresh tokens.
var ErrCredentialsRotated = errors.New("credentials rotated")

// CredWatcher watches a credentials file and reports rotation. Editors
// and secret managers replace files rather than write them in place, so
// the watch is on the parent directory.
type CredWatcher struct {
	path     string
	debounce time.Duration
}

// NewCredWatcher watches path. A zero debounce defaults to 500ms.
func NewCredWatcher(path string, debounce time.Duration) *CredWatcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &CredWatcher{path: path, debounce: debounce}
}

// Run blocks until the file changes (returning ErrCredentialsRotated) or
// the context is canceled.
func (w *CredWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(w.path)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Debounce: secret rotation often arrives as a burst of
			// events.
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-fire:
			log.Printf("listener: credentials file %s changed, reconnecting", w.path)
			return ErrCredentialsRotated

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("listener: credentials watch error: %v", err)
		}
	}
}

package listener

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredWatcherReportsRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"bot_token":"xoxb-old"}`), 0o600))

	w := NewCredWatcher(path, 50*time.Millisecond)
	errCh := make(chan error, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { errCh <- w.Run(ctx) }()

	// Give the watcher a moment to install before rotating the file.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`{"bot_token":"xoxb-new"}`), 0o600))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrCredentialsRotated)
	case <-ctx.Done():
		t.Fatal("watcher did not report the rotation")
	}
}

func TestCredWatcherIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))

	w := NewCredWatcher(path, 50*time.Millisecond)
	errCh := make(chan error, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	go func() { errCh <- w.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o600))

	err := <-errCh
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCredWatcherCancelDuringDebounce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))

	// A long debounce keeps the timer pending when the context ends.
	w := NewCredWatcher(path, time.Minute)
	errCh := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { errCh <- w.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`{"bot_token":"xoxb-new"}`), 0o600))
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop on cancellation")
	}
}

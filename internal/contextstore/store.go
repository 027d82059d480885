package contextstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrConflict is returned by a commit that lost a race with a concurrent
// writer. Update retries it transparently; callers only ever see it after
// the retry budget is exhausted.
var ErrConflict = errors.New("contextstore: concurrent write conflict")

// Store is the narrow access contract for the shared state. Mutations go
// through Update, which re-derives the change against the latest snapshot
// on every attempt rather than blindly overwriting.
type Store interface {
	// Snapshot returns a read-only copy of the current state.
	Snapshot() (*Snapshot, error)

	// Update applies mutate to the latest snapshot and commits the result,
	// retrying with backoff when a concurrent writer got there first. An
	// error from mutate aborts the update without retrying.
	Update(ctx context.Context, mutate func(*Snapshot) error) (*Snapshot, error)
}

// document is the on-disk form: the snapshot plus a version counter used
// for compare-and-swap commits.
type document struct {
	Version int64 `json:"version"`
	Snapshot
}

// FileStore persists the state as a single JSON document, written
// atomically (temp file + rename) and versioned for optimistic
// concurrency. Multiple processes may share the file; conflicts surface as
// version mismatches and are resolved by retrying the caller's mutation.
type FileStore struct {
	path       string
	mu         sync.Mutex
	maxRetries uint64
}

const defaultMaxRetries = 5

// NewFileStore creates a FileStore at the given path. The file is created
// on first commit.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, maxRetries: defaultMaxRetries}
}

// Snapshot implements Store.
func (fs *FileStore) Snapshot() (*Snapshot, error) {
	doc, err := fs.read()
	if err != nil {
		return nil, err
	}
	return &doc.Snapshot, nil
}

// Update implements Store.
func (fs *FileStore) Update(ctx context.Context, mutate func(*Snapshot) error) (*Snapshot, error) {
	var result *Snapshot

	attempt := func() error {
		doc, err := fs.read()
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := mutate(&doc.Snapshot); err != nil {
			return backoff.Permanent(err)
		}
		doc.compact()
		if err := fs.commit(doc); err != nil {
			if errors.Is(err, ErrConflict) {
				log.Printf("store: write conflict on %s, retrying", filepath.Base(fs.path))
				return err
			}
			return backoff.Permanent(err)
		}
		result = &doc.Snapshot
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), fs.maxRetries), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		return nil, fmt.Errorf("update context store: %w", err)
	}
	return result, nil
}

func newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	return bo
}

// read loads the current document. A missing file yields an empty
// version-zero document.
func (fs *FileStore) read() (*document, error) {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &document{}, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	return &doc, nil
}

// commit writes the document if and only if the on-disk version still
// matches the version the caller read. Uses atomic write (temp file +
// rename) so readers never observe a torn document.
func (fs *FileStore) commit(doc *document) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	current, err := fs.read()
	if err != nil {
		return err
	}
	if current.Version != doc.Version {
		return ErrConflict
	}
	doc.Version++

	if err := os.MkdirAll(filepath.Dir(fs.path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmpPath := fs.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, fs.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

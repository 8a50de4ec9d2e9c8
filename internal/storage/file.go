// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jeranaias/rigchat/internal/util"
)

// watchDebounce coalesces bursts of events from a single atomic write.
const watchDebounce = 150 * time.Millisecond

var validKey = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// FileBackend stores each key as <dir>/<key>.json.
type FileBackend struct {
	dir string

	mu      sync.Mutex
	closed  bool
	written map[string][sha256.Size]byte // digest of our own last write per file
}

// NewFileBackend creates a FileBackend rooted at dir, creating it if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if dir == "" {
		return nil, errors.New("file backend: empty directory")
	}
	if err := os.MkdirAll(dir, util.DefaultDirPerm); err != nil {
		return nil, fmt.Errorf("file backend: create directory: %w", err)
	}
	return &FileBackend{dir: dir, written: make(map[string][sha256.Size]byte)}, nil
}

// Path returns the file used for key.
func (f *FileBackend) Path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

func (f *FileBackend) check(key string) error {
	if f.closed {
		return ErrClosed
	}
	if !validKey.MatchString(key) {
		return fmt.Errorf("file backend: invalid key %q", key)
	}
	return nil
}

// Get implements Backend.
func (f *FileBackend) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	if err := f.check(key); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	f.mu.Unlock()

	data, err := os.ReadFile(f.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("file backend: read %s: %w", key, err)
	}
	return data, nil
}

// Set implements Backend.
func (f *FileBackend) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(key); err != nil {
		return err
	}
	path := f.Path(key)
	if err := util.AtomicWriteFile(path, value, 0600); err != nil {
		return fmt.Errorf("file backend: write %s: %w", key, err)
	}
	f.written[path] = sha256.Sum256(value)
	return nil
}

// Delete implements Backend.
func (f *FileBackend) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(key); err != nil {
		return err
	}
	path := f.Path(key)
	delete(f.written, path)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("file backend: delete %s: %w", key, err)
	}
	return nil
}

// Close implements Backend.
func (f *FileBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// isOwnWrite reports whether the file at path still holds exactly what this
// backend last wrote.
func (f *FileBackend) isOwnWrite(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sum, ok := f.written[path]
	return ok && bytes.Equal(sum[:], digest(data))
}

func digest(b []byte) []byte {
	s := sha256.Sum256(b)
	return s[:]
}

// Watch implements Watcher. The directory is watched rather than the file
// because atomic writes replace the file's inode. Changes that match this
// backend's own last write are not reported.
func (f *FileBackend) Watch(ctx context.Context, key string, onChange func()) error {
	f.mu.Lock()
	if err := f.check(key); err != nil {
		f.mu.Unlock()
		return err
	}
	f.mu.Unlock()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("file backend: watcher: %w", err)
	}
	if err := w.Add(f.dir); err != nil {
		w.Close()
		return fmt.Errorf("file backend: watch %s: %w", f.dir, err)
	}

	target := filepath.Clean(f.Path(key))
	go f.watchLoop(ctx, w, target, onChange)
	return nil
}

func (f *FileBackend) watchLoop(ctx context.Context, w *fsnotify.Watcher, target string, onChange func()) {
	defer w.Close()

	timer := time.NewTimer(watchDebounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if pending && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(watchDebounce)
			pending = true

		case <-timer.C:
			pending = false
			if !f.isOwnWrite(target) {
				onChange()
			}

		case _, ok := <-w.Errors:
			if !ok {
				return
			}
		}
	}
}

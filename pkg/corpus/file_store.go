// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package corpus

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teradata-labs/lectern/pkg/observability"
)

// DefaultDebounce is how long Watch waits for writes to settle.
const DefaultDebounce = 250 * time.Millisecond

// FileStore serves a corpus file and can reload it when the file changes.
// Readers always see a complete snapshot: a reload builds a new MemoryStore
// and swaps it in, and a file that fails to parse leaves the old one active.
type FileStore struct {
	path     string
	snapshot atomic.Pointer[MemoryStore]
	logger   *zap.Logger
	tracer   observability.Tracer
	debounce time.Duration

	// OnReload, when set, is called after every reload attempt.
	OnReload func(entries int, err error)
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithLogger sets the logger for reload events.
func WithLogger(l *zap.Logger) FileStoreOption {
	return func(s *FileStore) { s.logger = l }
}

// WithTracer sets the tracer for reload spans.
func WithTracer(t observability.Tracer) FileStoreOption {
	return func(s *FileStore) { s.tracer = t }
}

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) FileStoreOption {
	return func(s *FileStore) { s.debounce = d }
}

// OpenFile loads path into a new FileStore.
func OpenFile(path string, opts ...FileStoreOption) (*FileStore, error) {
	s := &FileStore{
		path:     path,
		logger:   zap.NewNop(),
		tracer:   observability.NewNoOpTracer(),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(s)
	}

	entries, err := LoadEntries(path)
	if err != nil {
		return nil, err
	}
	s.snapshot.Store(NewMemoryStore(entries))
	return s, nil
}

// SummaryOf implements Lookup against the current snapshot.
func (s *FileStore) SummaryOf(ctx context.Context, title string) (string, bool, error) {
	return s.snapshot.Load().SummaryOf(ctx, title)
}

// Entries implements Lister against the current snapshot.
func (s *FileStore) Entries(ctx context.Context) ([]Entry, error) {
	return s.snapshot.Load().Entries(ctx)
}

// Path returns the watched file.
func (s *FileStore) Path() string { return s.path }

// Reload re-reads the file, keeping the previous snapshot on error.
func (s *FileStore) Reload(ctx context.Context) error {
	_, span := s.tracer.StartSpan(ctx, "corpus.reload")
	defer s.tracer.EndSpan(span)
	span.SetAttribute("corpus.path", s.path)

	entries, err := LoadEntries(s.path)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("Corpus reload failed, keeping previous snapshot",
			zap.String("path", s.path),
			zap.Error(err))
		if s.OnReload != nil {
			s.OnReload(0, err)
		}
		return err
	}

	next := NewMemoryStore(entries)
	s.snapshot.Store(next)
	span.SetAttribute("corpus.entries", next.Len())
	s.logger.Info("Corpus reloaded",
		zap.String("path", s.path),
		zap.Int("entries", next.Len()))
	if s.OnReload != nil {
		s.OnReload(next.Len(), nil)
	}
	return nil
}

// Watch reloads the corpus whenever its file changes, until ctx is done.
// The parent directory is watched so editors that replace the file by
// rename are handled.
func (s *FileStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch corpus directory: %w", err)
	}
	s.logger.Info("Watching corpus for changes",
		zap.String("path", s.path),
		zap.Duration("debounce", s.debounce))

	target := filepath.Clean(s.path)
	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(s.debounce, func() {
				_ = s.Reload(ctx)
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("Corpus watcher error", zap.Error(err))

		case <-ctx.Done():
			s.logger.Info("Stopping corpus watcher")
			return nil
		}
	}
}

var (
	_ Lookup = (*FileStore)(nil)
	_ Lister = (*FileStore)(nil)
)

// Package persist provides an optional file-backed snapshot store for the
// cache's dehydrate/hydrate cycle (spec §4.2 "Dehydrate/hydrate round-trips
// the full RecordId -> Record map", SPEC_FULL §11 fsnotify row). It is watched
// with fsnotify so an externally-updated snapshot file (e.g. written by a
// sibling process) can trigger a hydrate without a restart, the same
// pattern the configuration loader uses for hot reload.
package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Snapshot is the JSON-serializable form of a dehydrated store: record id
// to a plain, already-encoded field map.
type Snapshot map[string]map[string]interface{}

const snapshotFileName = "snapshot.json"

// FileSnapshotStore persists a Snapshot to a single JSON file under dir and
// optionally watches that file for external changes.
type FileSnapshotStore struct {
	dir      string
	debounce time.Duration
	logger   *zap.Logger

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

// NewFileSnapshotStore creates a store rooted at dir, creating it if
// necessary.
func NewFileSnapshotStore(dir string, debounce time.Duration, logger *zap.Logger) (*FileSnapshotStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persist: create dir %q: %w", dir, err)
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &FileSnapshotStore{dir: dir, debounce: debounce, logger: logger}, nil
}

func (s *FileSnapshotStore) path() string {
	return filepath.Join(s.dir, snapshotFileName)
}

// Save writes snapshot to disk atomically (write to a temp file, then
// rename) so a concurrent Load never observes a partial write.
func (s *FileSnapshotStore) Save(snapshot Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("persist: marshal snapshot: %w", err)
	}

	tmp := s.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("persist: write temp snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path()); err != nil {
		return fmt.Errorf("persist: rename snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot from disk. A missing file yields an empty,
// non-nil Snapshot rather than an error.
func (s *FileSnapshotStore) Load() (Snapshot, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, nil
		}
		return nil, fmt.Errorf("persist: read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("persist: unmarshal snapshot: %w", err)
	}
	return snapshot, nil
}

// Watch starts watching the snapshot file for external writes, calling
// onChange (debounced) whenever one is observed. Watch returns immediately;
// call Close to stop.
func (s *FileSnapshotStore) Watch(onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("persist: create watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("persist: watch dir %q: %w", s.dir, err)
	}

	s.watcher = watcher
	s.stopCh = make(chan struct{})

	go s.watchLoop(onChange)
	return nil
}

func (s *FileSnapshotStore) watchLoop(onChange func()) {
	defer s.watcher.Close()

	var debounceTimer *time.Timer
	target := filepath.Clean(s.path())

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(s.debounce, onChange)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("persist: watcher error", zap.Error(err))

		case <-s.stopCh:
			return
		}
	}
}

// Close stops watching, if Watch was called.
func (s *FileSnapshotStore) Close() {
	if s.stopCh != nil {
		close(s.stopCh)
	}
}

// Package crosstab implements spec.md §4.7's CrossTabSynchronizer: a
// watcher over the storage medium that reacts to writes made by other
// processes sharing it, diffing the reloaded token map against what this
// process last knew and emitting added/removed accordingly.
//
// "Tab" in the spec's browser vocabulary becomes "process" here: several
// processes sharing one file, one SQLite database, or one Redis instance
// play the role several browser tabs play against one window.localStorage.
package crosstab

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/redis/go-redis/v9"

	"github.com/hatchtoken/tokenmanager/internal/storage"
)

// Source signals that the watched storage medium may have changed.
// Signals are coalesced: a burst of underlying writes is collapsed to one
// value on the channel, matching spec.md §4.7's "a storage-change
// notification channel, observed" abstraction. The Synchronizer reloads
// and diffs on every signal; Source implementations never interpret
// payloads themselves.
type Source interface {
	// Start begins watching and returns the signal channel. FileSource
	// closes it once ctx is done or Close is called; RedisSource closes it
	// once its subscription is closed; MemorySource hands out the
	// Memory's own channel, which is never closed.
	Start(ctx context.Context) (<-chan struct{}, error)
	Close() error
}

// MemorySource adapts a storage.Memory backend's own change channel,
// the in-process analogue of two tabs sharing one window.localStorage.
type MemorySource struct {
	mem *storage.Memory
}

// NewMemorySource wraps mem's change notifications as a Source.
func NewMemorySource(mem *storage.Memory) *MemorySource {
	return &MemorySource{mem: mem}
}

func (s *MemorySource) Start(ctx context.Context) (<-chan struct{}, error) {
	return s.mem.Changes(), nil
}

func (s *MemorySource) Close() error { return nil }

// FileDebounce is the quiet period after the last filesystem event before
// a signal fires, collapsing the burst of events a single atomic
// temp-file-then-rename write produces into one reload. Grounded on the
// debounce-after-burst pattern consent-service's configuration watcher
// uses around its own file reload.
const FileDebounce = 100 * time.Millisecond

// FileSource watches a File backend's path via fsnotify, debouncing
// bursts of events from the backend's own atomic write (a temp file
// create followed by a rename) into a single signal.
type FileSource struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
}

// NewFileSource watches path (a File backend's Path()) with the default
// debounce window.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path, debounce: FileDebounce}
}

func (s *FileSource) Start(ctx context.Context) (<-chan struct{}, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the containing directory, not the file itself: the backend's
	// atomic write renames a new inode into place, which some watchers
	// fail to keep tracking if the file itself was the watch target.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		_ = w.Close()
		return nil, err
	}
	s.watcher = w

	out := make(chan struct{}, 1)
	go s.loop(ctx, out)
	return out, nil
}

func (s *FileSource) loop(ctx context.Context, out chan struct{}) {
	defer close(out)
	base := filepath.Base(s.path)
	var timer *time.Timer
	fire := func() {
		select {
		case out <- struct{}{}:
		default:
		}
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = s.watcher.Close()
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(s.debounce, fire)
		case _, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (s *FileSource) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// RedisSource adapts a Redis backend's publish/subscribe change channel.
// Message payloads aren't interpreted here; the Synchronizer always
// reloads the authoritative blob from the backend on signal.
type RedisSource struct {
	backend *storage.Redis
	sub     *redis.PubSub
}

// NewRedisSource wraps backend's change notifications as a Source.
func NewRedisSource(backend *storage.Redis) *RedisSource {
	return &RedisSource{backend: backend}
}

func (s *RedisSource) Start(ctx context.Context) (<-chan struct{}, error) {
	s.sub = s.backend.Subscribe(ctx)
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for range s.sub.Channel() {
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}()
	return out, nil
}

func (s *RedisSource) Close() error {
	if s.sub != nil {
		return s.sub.Close()
	}
	return nil
}

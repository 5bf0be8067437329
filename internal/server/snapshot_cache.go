package server

import (
	"sync"

	"github.com/MarioNunes35/Portal-de-aplicativos/internal/config"
)

// snapshotCache memoizes a value derived from one config snapshot and
// rebuilds it when a newer snapshot is seen.
type snapshotCache[T any] struct {
	mu      sync.Mutex
	version uint64
	value   T
	err     error
	build   func(*config.Snapshot) (T, error)
}

func newSnapshotCache[T any](build func(*config.Snapshot) (T, error)) *snapshotCache[T] {
	return &snapshotCache[T]{build: build}
}

// Get returns the value for snap. Build errors are cached for the version
// too, so a broken config is reported once per reload, not once per request.
func (c *snapshotCache[T]) Get(snap *config.Snapshot) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.version != snap.Version {
		c.value, c.err = c.build(snap)
		c.version = snap.Version
	}
	return c.value, c.err
}

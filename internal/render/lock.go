package render

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// idLocks guards video ids against concurrent reuse. The in-process set
// covers handlers in this binary; the file lock covers an api and a worker
// sharing one scratch directory.
type idLocks struct {
	dir string

	mu     sync.Mutex
	active map[string]struct{}
}

func newIDLocks(dir string) *idLocks {
	return &idLocks{dir: dir, active: make(map[string]struct{})}
}

// tryLock returns a release func, or ok=false when id is already held.
func (l *idLocks) tryLock(id string) (release func() error, ok bool, err error) {
	l.mu.Lock()
	if _, busy := l.active[id]; busy {
		l.mu.Unlock()
		return nil, false, nil
	}
	l.active[id] = struct{}{}
	l.mu.Unlock()

	forget := func() {
		l.mu.Lock()
		delete(l.active, id)
		l.mu.Unlock()
	}

	path := filepath.Join(l.dir, id+".lock")
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		forget()
		return nil, false, fmt.Errorf("lock %s: %w", path, err)
	}
	if !locked {
		forget()
		return nil, false, nil
	}

	// A holder may have removed the file between our open and lock; then
	// we hold a lock on an orphaned inode and someone else can create a
	// fresh one.
	if !sameFile(fl, path) {
		_ = fl.Unlock()
		forget()
		return nil, false, nil
	}

	return func() error {
		rmErr := os.Remove(path)
		unErr := fl.Unlock()
		forget()
		if unErr != nil {
			return unErr
		}
		if rmErr != nil && !os.IsNotExist(rmErr) {
			return rmErr
		}
		return nil
	}, true, nil
}

func sameFile(fl *flock.Flock, path string) bool {
	held, err := fl.Stat()
	if err != nil {
		return false
	}
	onDisk, err := os.Stat(path)
	if err != nil {
		return false
	}
	return os.SameFile(held, onDisk)
}

// Package lockfile implements git's `*.lock` sibling-file protocol: a
// lock is acquired by creating `<path>.lock` with O_CREATE|O_EXCL (so a
// second would-be writer's creation fails), held while the caller
// builds new content, then either committed by renaming the lock file
// over the target (atomic on POSIX within one filesystem) or released
// by deleting it on failure or cancellation. Used by the index's
// atomic write and by ref transactions (spec.md §5, §4.6, §4.7).
package lockfile

import (
	"errors"
	"os"

	"github.com/go-git/go-billy/v5"
)

// ErrLocked is returned when a lock is already held by another writer,
// observed as the sibling `.lock` file already existing.
var ErrLocked = errors.New("lockfile: already locked")

// Lock represents a held `*.lock` file. It must be released via Commit
// or Rollback on every code path, including panics (callers should
// `defer lock.Rollback()` immediately after a successful Acquire, which
// becomes a no-op once Commit has run).
type Lock struct {
	fs        billy.Filesystem
	path      string
	lockPath  string
	file      billy.File
	committed bool
	rolled    bool
}

// Acquire creates path+".lock" exclusively. It returns ErrLocked,
// without blocking, if the lock file already exists.
func Acquire(fs billy.Filesystem, path string) (*Lock, error) {
	lockPath := path + ".lock"
	f, err := fs.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o666)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrLocked
		}
		return nil, err
	}
	return &Lock{fs: fs, path: path, lockPath: lockPath, file: f}, nil
}

// Write appends to the lock file's pending content.
func (l *Lock) Write(p []byte) (int, error) {
	return l.file.Write(p)
}

// Commit closes the lock file and renames it over the target path,
// making the new content visible atomically. After Commit, Rollback is
// a no-op.
func (l *Lock) Commit() error {
	if l.committed {
		return nil
	}
	if err := l.file.Close(); err != nil {
		return err
	}
	if err := l.fs.Rename(l.lockPath, l.path); err != nil {
		return err
	}
	l.committed = true
	return nil
}

// Rollback closes (if needed) and removes the lock file, releasing it
// without touching the target. Safe to call multiple times and safe to
// call after a successful Commit (a no-op in that case).
func (l *Lock) Rollback() error {
	if l.committed || l.rolled {
		return nil
	}
	l.rolled = true
	_ = l.file.Close()
	return l.fs.Remove(l.lockPath)
}

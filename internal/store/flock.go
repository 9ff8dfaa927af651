package store

import (
	"fmt"
	"os"
	"syscall"
)

// snapshotLock serializes access to a snapshot file across processes with
// flock(2). The lock file sits next to the snapshot as "<path>.lock".
//
// flock locks belong to the open file description, so two snapshotLocks on
// the same path exclude each other even inside one process.
type snapshotLock struct {
	path string
}

func lockFor(snapshot string) snapshotLock {
	return snapshotLock{path: snapshot + ".lock"}
}

// withLock runs fn while holding the exclusive lock, blocking until it is
// available. The lock file is created if it does not exist.
func (l snapshotLock) withLock(fn func() error) (err error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		_ = f.Close()
		return fmt.Errorf("flock: %w", err)
	}
	defer func() {
		unlockErr := syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		closeErr := f.Close()
		if err != nil {
			return
		}
		if unlockErr != nil {
			err = fmt.Errorf("funlock: %w", unlockErr)
		} else {
			err = closeErr
		}
	}()
	return fn()
}

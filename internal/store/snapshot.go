package store

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/tempo/internal/errors"
	"github.com/Iron-Ham/tempo/internal/task"
)

// snapshotFile is the on-disk representation of a task snapshot. YAML is
// a superset of JSON, so JSON snapshots load through the same path.
type snapshotFile struct {
	Tasks []task.Task `yaml:"tasks"`
}

// LoadSnapshot reads the tasks stored at path. A file lock is held during
// the read for cross-process safety.
func LoadSnapshot(path string) ([]task.Task, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, errors.NewNotFoundError("snapshot", path).WithCause(err)
	}

	var tasks []task.Task
	err := lockFor(path).withLock(func() error {
		var err error
		tasks, err = readSnapshot(path)
		return err
	})
	return tasks, err
}

// readSnapshot decodes the snapshot at path. The caller holds the lock.
func readSnapshot(path string) ([]task.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("snapshot", path).WithCause(err)
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap snapshotFile
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	for i := range snap.Tasks {
		t := &snap.Tasks[i]
		st, err := task.ParseStatus(string(t.Status))
		if err != nil {
			return nil, errors.Wrapf(err, "task %d", t.ID)
		}
		t.Status = st
		if t.Priority < 0 {
			return nil, errors.Wrapf(
				errors.NewValidationError("priority must be non-negative").WithField("priority").WithValue(t.Priority),
				"task %d", t.ID)
		}
	}
	return snap.Tasks, nil
}

// SaveSnapshot writes tasks to path. The write is atomic: data goes to a
// temporary file first and is then renamed into place. A file lock is held
// during the operation.
func SaveSnapshot(path string, tasks []task.Task) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	return lockFor(path).withLock(func() error {
		return writeSnapshot(path, tasks)
	})
}

// writeSnapshot replaces the snapshot at path. The caller holds the lock.
func writeSnapshot(path string, tasks []task.Task) error {
	data, err := yaml.Marshal(snapshotFile{Tasks: tasks})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// snapshotBacking keeps a MemoryStore in step with a snapshot file that
// other processes may write too.
type snapshotBacking struct {
	path string
}

// load reads the current tasks. A missing file holds no tasks.
func (b snapshotBacking) load() ([]task.Task, error) {
	tasks, err := LoadSnapshot(b.path)
	if isMissingSnapshot(err) {
		return nil, nil
	}
	return tasks, err
}

// transact holds the file lock while it rereads the snapshot, passes it to
// fn and writes back what fn returns. Nothing is written when fn fails, and
// no other writer can commit in between.
func (b snapshotBacking) transact(fn func(stored []task.Task) ([]task.Task, error)) error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	return lockFor(b.path).withLock(func() error {
		stored, err := readSnapshot(b.path)
		if err != nil && !isMissingSnapshot(err) {
			return err
		}
		next, err := fn(stored)
		if err != nil {
			return err
		}
		if err := writeSnapshot(b.path, next); err != nil {
			return errors.Wrap(err, "persist snapshot")
		}
		return nil
	})
}

func isMissingSnapshot(err error) bool {
	var nf *errors.NotFoundError
	return errors.As(err, &nf)
}

// OpenFileStore returns a MemoryStore backed by the snapshot at path. Reads
// reload the file and every transaction rereads it under the file lock
// before writing the full snapshot back, so several processes can share
// one file. A missing file starts an empty store; the file is created on
// the first write.
func OpenFileStore(path string) (*MemoryStore, error) {
	b := snapshotBacking{path: path}
	tasks, err := b.load()
	if err != nil {
		return nil, err
	}
	s := NewMemoryStore(tasks...)
	s.file = &b
	return s, nil
}

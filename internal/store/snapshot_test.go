package store

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/tempo/internal/errors"
	"github.com/Iron-Ham/tempo/internal/task"
)

func TestSaveAndLoadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tasks.yaml")

	if err := SaveSnapshot(path, fixture()); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("snapshot file not found: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should be renamed away")
	}

	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if !slices.Equal(ids(loaded), []int64{1, 2, 3, 4, 5}) {
		t.Fatalf("loaded ids = %v", ids(loaded))
	}
	if loaded[1].Deadline == nil || !loaded[1].Deadline.Equal(*fixture()[1].Deadline) {
		t.Errorf("deadline did not round-trip: %v", loaded[1].Deadline)
	}
	if loaded[0].Status != task.StatusInProgress || loaded[4].Status != task.StatusScheduled {
		t.Errorf("statuses = %q, %q", loaded[0].Status, loaded[4].Status)
	}
}

func TestLoadSnapshot_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	data := `{"tasks": [
		{"id": 1, "title": "root", "status": "in_progress"},
		{"id": 2, "title": "leaf", "parent_id": 1, "estimate_duration_hour": 2.5, "deadline": "2025-06-01T17:00:00Z"}
	]}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded %d tasks, want 2", len(loaded))
	}
	if h, err := loaded[1].EstimateHours(); err != nil || h != 2.5 {
		t.Errorf("EstimateHours() = %v, %v", h, err)
	}
	if loaded[1].Deadline == nil {
		t.Error("deadline should be parsed")
	}
}

func TestLoadSnapshot_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadSnapshot(filepath.Join(dir, "missing.yaml"))
	var nf *errors.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("missing file error = %v, want NotFoundError", err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("tasks:\n  - id: 1\n    status: finished\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSnapshot(bad); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("unknown status error = %v, want invalid input", err)
	}

	negative := filepath.Join(dir, "negative.yaml")
	if err := os.WriteFile(negative, []byte("tasks:\n  - id: 1\n    priority: -2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSnapshot(negative); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("negative priority error = %v, want invalid input", err)
	}
}

func TestFileStore_PersistsCommittedWrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tasks.yaml")

	s, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("OpenFileStore(new) error = %v", err)
	}
	tk := &task.Task{Title: "first", EstimateDurationHour: task.Hours(1)}
	if err := s.Save(ctx, tk); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	_ = s.WithinTx(ctx, func(tx task.Store) error {
		return errors.New("abort")
	})

	reopened, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("OpenFileStore(existing) error = %v", err)
	}
	all, _ := reopened.FindAll(ctx)
	if len(all) != 1 || all[0].Title != "first" {
		t.Errorf("reopened store = %+v", all)
	}
}

func TestFileStore_SharedFileKeepsBothWriters(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	if err := SaveSnapshot(path, []task.Task{
		{ID: 1, Title: "one", EstimateDurationHour: task.Hours(1)},
		{ID: 2, Title: "two", EstimateDurationHour: task.Hours(1)},
	}); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	a, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("OpenFileStore(a): %v", err)
	}
	b, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("OpenFileStore(b): %v", err)
	}

	edit := func(s *MemoryStore, id int64, title string) {
		t.Helper()
		err := s.WithinTx(ctx, func(tx task.Store) error {
			tk, err := tx.FindByID(ctx, id)
			if err != nil {
				return err
			}
			tk.Title = title
			return tx.Update(ctx, &tk)
		})
		if err != nil {
			t.Fatalf("edit task %d: %v", id, err)
		}
	}
	edit(a, 1, "a-edit")
	edit(b, 2, "b-edit")

	if got, _ := a.FindByID(ctx, 2); got.Title != "b-edit" {
		t.Errorf("store a sees task 2 title %q, want b-edit", got.Title)
	}

	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if len(loaded) != 2 || loaded[0].Title != "a-edit" || loaded[1].Title != "b-edit" {
		t.Errorf("snapshot = %+v, want both edits", loaded)
	}

	// Ids come from the file, not from a stale arena.
	added := &task.Task{Title: "three"}
	if err := a.Save(ctx, added); err != nil {
		t.Fatalf("Save: %v", err)
	}
	other := &task.Task{Title: "four"}
	if err := b.Save(ctx, other); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if added.ID != 3 || other.ID != 4 {
		t.Errorf("ids = %d, %d, want 3, 4", added.ID, other.ID)
	}
}

func TestSnapshotLock_Serializes(t *testing.T) {
	target := filepath.Join(t.TempDir(), "counter")
	if err := os.WriteFile(target, []byte("0"), 0644); err != nil {
		t.Fatal(err)
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- lockFor(target).withLock(func() error {
				data, err := os.ReadFile(target)
				if err != nil {
					return err
				}
				n, err := strconv.Atoi(string(data))
				if err != nil {
					return err
				}
				time.Sleep(time.Millisecond)
				return os.WriteFile(target, []byte(strconv.Itoa(n+1)), 0644)
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("withLock: %v", err)
		}
	}

	data, _ := os.ReadFile(target)
	if string(data) != strconv.Itoa(workers) {
		t.Errorf("counter = %s, want %d", data, workers)
	}
}

func TestSnapshotLock_ReturnsCallbackError(t *testing.T) {
	target := filepath.Join(t.TempDir(), "tasks.yaml")
	want := errors.New("boom")
	if err := lockFor(target).withLock(func() error { return want }); !errors.Is(err, want) {
		t.Errorf("withLock error = %v, want %v", err, want)
	}
	// The lock is released afterwards.
	if err := lockFor(target).withLock(func() error { return nil }); err != nil {
		t.Errorf("second withLock error = %v", err)
	}
}

// Package store provides the storage collaborators the scheduling core
// reads through: an in-memory arena, a snapshot-file store that persists
// the arena to YAML, and a SQLite store.
//
// All implementations satisfy task.Store. Returned tasks are copies, so
// results never alias stored state.
package store

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/Iron-Ham/tempo/internal/errors"
	"github.com/Iron-Ham/tempo/internal/task"
)

// arena holds tasks indexed by id. It has no locking of its own.
type arena struct {
	tasks  map[int64]*task.Task
	nextID int64
}

func newArena(tasks []task.Task) *arena {
	a := &arena{tasks: make(map[int64]*task.Task, len(tasks)), nextID: 1}
	for i := range tasks {
		t := tasks[i].Clone()
		if t.Status == "" {
			t.Status = task.StatusScheduled
		}
		a.tasks[t.ID] = &t
		if t.ID >= a.nextID {
			a.nextID = t.ID + 1
		}
	}
	return a
}

func (a *arena) clone() *arena {
	cp := &arena{tasks: make(map[int64]*task.Task, len(a.tasks)), nextID: a.nextID}
	for id, t := range a.tasks {
		c := t.Clone()
		cp.tasks[id] = &c
	}
	return cp
}

func (a *arena) sortedIDs() []int64 {
	return slices.Sorted(maps.Keys(a.tasks))
}

func (a *arena) snapshot() []task.Task {
	out := make([]task.Task, 0, len(a.tasks))
	for _, id := range a.sortedIDs() {
		out = append(out, a.tasks[id].Clone())
	}
	return out
}

func (a *arena) findByID(id int64) (task.Task, error) {
	t, ok := a.tasks[id]
	if !ok {
		return task.Task{}, errors.NotFound(id)
	}
	return t.Clone(), nil
}

// findDescendants walks the subtree in pre-order, children by ascending id.
// Ids already visited are skipped so corrupted data cannot loop forever.
func (a *arena) findDescendants(id int64) ([]task.Task, error) {
	root, ok := a.tasks[id]
	if !ok {
		return nil, errors.NotFound(id)
	}

	visited := map[int64]bool{id: true}
	var out []task.Task
	stack := reverseSorted(root.ChildIDs)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		t, ok := a.tasks[cur]
		if !ok {
			continue // dangling child reference
		}
		out = append(out, t.Clone())
		stack = append(stack, reverseSorted(t.ChildIDs)...)
	}
	return out, nil
}

func (a *arena) findAncestors(id int64) ([]task.Task, error) {
	t, ok := a.tasks[id]
	if !ok {
		return nil, errors.NotFound(id)
	}

	visited := map[int64]bool{id: true}
	var out []task.Task
	for t.ParentID != nil && !visited[*t.ParentID] {
		visited[*t.ParentID] = true
		parent, ok := a.tasks[*t.ParentID]
		if !ok {
			break
		}
		out = append(out, parent.Clone())
		t = parent
	}
	return out, nil
}

func (a *arena) save(t *task.Task) error {
	if t.ID == 0 {
		t.ID = a.nextID
	} else if _, exists := a.tasks[t.ID]; exists {
		return errors.NewValidationError("task id already in use").WithField("id").WithValue(t.ID)
	}
	if t.Status == "" {
		t.Status = task.StatusScheduled
	}
	if t.ID >= a.nextID {
		a.nextID = t.ID + 1
	}
	cp := t.Clone()
	a.tasks[t.ID] = &cp
	return nil
}

func (a *arena) update(t *task.Task) error {
	if _, ok := a.tasks[t.ID]; !ok {
		return errors.NotFound(t.ID)
	}
	cp := t.Clone()
	a.tasks[t.ID] = &cp
	return nil
}

// delete removes id, drops it from its parent's child list and turns its
// children into roots.
func (a *arena) delete(id int64) error {
	t, ok := a.tasks[id]
	if !ok {
		return errors.NotFound(id)
	}
	if t.ParentID != nil {
		if parent, ok := a.tasks[*t.ParentID]; ok {
			parent.RemoveChild(id)
		}
	}
	for _, childID := range t.ChildIDs {
		if child, ok := a.tasks[childID]; ok && child.ParentID != nil && *child.ParentID == id {
			child.ParentID = nil
		}
	}
	delete(a.tasks, id)
	return nil
}

func reverseSorted(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	slices.Reverse(out)
	return out
}

// MemoryStore is a task.Store backed by an in-memory arena.
// All methods are safe for concurrent use via an internal mutex.
type MemoryStore struct {
	mu    sync.Mutex
	arena *arena

	// file, when set, is the snapshot the arena mirrors. Reads reload it
	// and transactions run under its cross-process lock.
	file *snapshotBacking
}

// NewMemoryStore creates a MemoryStore seeded with the given tasks.
// Tasks keep their ids; later saves are assigned ids above the maximum.
func NewMemoryStore(tasks ...task.Task) *MemoryStore {
	return &MemoryStore{arena: newArena(NormalizeLinks(tasks))}
}

// current returns the live arena, reloading it from the backing file first
// when there is one. The caller holds s.mu.
func (s *MemoryStore) current() (*arena, error) {
	if s.file == nil {
		return s.arena, nil
	}
	tasks, err := s.file.load()
	if err != nil {
		return nil, err
	}
	s.arena = newArena(NormalizeLinks(tasks))
	return s.arena, nil
}

// FindByID implements task.Reader.
func (s *MemoryStore) FindByID(_ context.Context, id int64) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.current()
	if err != nil {
		return task.Task{}, err
	}
	return a.findByID(id)
}

// FindAll implements task.Reader.
func (s *MemoryStore) FindAll(_ context.Context) ([]task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.current()
	if err != nil {
		return nil, err
	}
	return a.snapshot(), nil
}

// FindDescendants implements task.Reader.
func (s *MemoryStore) FindDescendants(_ context.Context, id int64) ([]task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.current()
	if err != nil {
		return nil, err
	}
	return a.findDescendants(id)
}

// FindAncestors implements task.Reader.
func (s *MemoryStore) FindAncestors(_ context.Context, id int64) ([]task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.current()
	if err != nil {
		return nil, err
	}
	return a.findAncestors(id)
}

// Save implements task.Writer.
func (s *MemoryStore) Save(ctx context.Context, t *task.Task) error {
	return s.WithinTx(ctx, func(tx task.Store) error { return tx.Save(ctx, t) })
}

// Update implements task.Writer.
func (s *MemoryStore) Update(ctx context.Context, t *task.Task) error {
	return s.WithinTx(ctx, func(tx task.Store) error { return tx.Update(ctx, t) })
}

// Delete implements task.Writer.
func (s *MemoryStore) Delete(ctx context.Context, id int64) error {
	return s.WithinTx(ctx, func(tx task.Store) error { return tx.Delete(ctx, id) })
}

// WithinTx runs fn against a private copy of the arena while holding the
// store lock. The copy replaces the live arena only if fn succeeds. A
// file-backed store starts the copy from the file as it is under the file
// lock and writes it back before releasing that lock.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx task.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		work := s.arena.clone()
		if err := fn(&memoryTx{arena: work}); err != nil {
			return err
		}
		s.arena = work
		return nil
	}

	var work *arena
	err := s.file.transact(func(stored []task.Task) ([]task.Task, error) {
		work = newArena(NormalizeLinks(stored))
		if err := fn(&memoryTx{arena: work}); err != nil {
			return nil, err
		}
		return work.snapshot(), nil
	})
	if err != nil {
		return err
	}
	s.arena = work
	return nil
}

// memoryTx is the transactional view handed to WithinTx callbacks. The
// enclosing MemoryStore lock is already held.
type memoryTx struct {
	arena *arena
}

func (tx *memoryTx) FindByID(_ context.Context, id int64) (task.Task, error) {
	return tx.arena.findByID(id)
}

func (tx *memoryTx) FindAll(_ context.Context) ([]task.Task, error) {
	return tx.arena.snapshot(), nil
}

func (tx *memoryTx) FindDescendants(_ context.Context, id int64) ([]task.Task, error) {
	return tx.arena.findDescendants(id)
}

func (tx *memoryTx) FindAncestors(_ context.Context, id int64) ([]task.Task, error) {
	return tx.arena.findAncestors(id)
}

func (tx *memoryTx) Save(_ context.Context, t *task.Task) error {
	return tx.arena.save(t)
}

func (tx *memoryTx) Update(_ context.Context, t *task.Task) error {
	return tx.arena.update(t)
}

func (tx *memoryTx) Delete(_ context.Context, id int64) error {
	return tx.arena.delete(id)
}

// WithinTx on a transaction runs fn in the same transaction.
func (tx *memoryTx) WithinTx(_ context.Context, fn func(tx task.Store) error) error {
	return fn(tx)
}

// NormalizeLinks returns copies of tasks whose parent and child lists agree:
// every ParentID is mirrored into the parent's ChildIDs and every listed
// child without a parent gets one. Conflicting or unknown references are
// left as they are.
func NormalizeLinks(tasks []task.Task) []task.Task {
	out := make([]task.Task, len(tasks))
	index := make(map[int64]int, len(tasks))
	for i := range tasks {
		out[i] = tasks[i].Clone()
		index[out[i].ID] = i
	}
	for i := range out {
		if out[i].ParentID == nil {
			continue
		}
		if p, ok := index[*out[i].ParentID]; ok {
			out[p].AddChild(out[i].ID)
		}
	}
	for i := range out {
		for _, childID := range out[i].ChildIDs {
			c, ok := index[childID]
			if ok && out[c].ParentID == nil {
				parentID := out[i].ID
				out[c].ParentID = &parentID
			}
		}
	}
	return out
}

// Package graph implements the dependency resolver over the task tree:
// cycle checks, root and project discovery, and ancestor/descendant
// traversal. It also provides the cycle-checked link mutations.
//
// All traversal is by id lookup through a task.Reader and tracks visited
// ids, so stored data that already contains a cycle cannot hang a walk.
package graph

import (
	"context"
	"slices"

	"github.com/Iron-Ham/tempo/internal/errors"
	"github.com/Iron-Ham/tempo/internal/logging"
	"github.com/Iron-Ham/tempo/internal/task"
)

// Resolver answers structural questions about the task tree.
type Resolver struct {
	reader task.Reader
	logger *logging.Logger
}

// NewResolver creates a Resolver reading through r.
func NewResolver(r task.Reader, opts ...Option) *Resolver {
	cfg := newConfig(opts)
	return &Resolver{
		reader: r,
		logger: cfg.logger.WithComponent("resolver"),
	}
}

// WouldCreateCycle reports whether making candidateParentID the parent of
// childID would make childID its own ancestor. Both tasks must exist.
func (r *Resolver) WouldCreateCycle(ctx context.Context, childID, candidateParentID int64) (bool, error) {
	if childID == candidateParentID {
		return true, nil
	}
	if _, err := r.reader.FindByID(ctx, childID); err != nil {
		return false, err
	}

	visited := make(map[int64]bool)
	cur := candidateParentID
	for {
		if cur == childID {
			return true, nil
		}
		if visited[cur] {
			// Existing corruption that does not pass through childID.
			r.logger.Warn("parent chain loops", "task_id", candidateParentID, "at", cur)
			return false, nil
		}
		visited[cur] = true

		t, err := r.reader.FindByID(ctx, cur)
		if err != nil {
			if cur != candidateParentID && errors.Is(err, errors.ErrNotFound) {
				return false, nil // dangling parent reference ends the chain
			}
			return false, err
		}
		if t.ParentID == nil {
			return false, nil
		}
		cur = *t.ParentID
	}
}

// RootTasks returns every task without a parent, ordered by id.
func (r *Resolver) RootTasks(ctx context.Context) ([]task.Task, error) {
	all, err := r.reader.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	roots := make([]task.Task, 0)
	for _, t := range all {
		if t.IsRoot() {
			roots = append(roots, t)
		}
	}
	return roots, nil
}

// ProjectRoot walks parent links upward from taskID until it reaches a root.
// A parent chain that loops fails with CYCLE_DETECTED.
func (r *Resolver) ProjectRoot(ctx context.Context, taskID int64) (task.Task, error) {
	t, err := r.reader.FindByID(ctx, taskID)
	if err != nil {
		return task.Task{}, err
	}

	visited := map[int64]bool{t.ID: true}
	for t.ParentID != nil {
		parentID := *t.ParentID
		if visited[parentID] {
			return task.Task{}, errors.NewSchedulingError(errors.CodeCycleDetected, "parent chain loops").WithTaskID(taskID)
		}
		visited[parentID] = true

		parent, err := r.reader.FindByID(ctx, parentID)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				r.logger.Warn("dangling parent reference", "task_id", t.ID, "parent_id", parentID)
				return t, nil
			}
			return task.Task{}, err
		}
		t = parent
	}
	return t, nil
}

// Descendants returns the subtree under taskID, excluding taskID, in
// deterministic pre-order.
func (r *Resolver) Descendants(ctx context.Context, taskID int64) ([]task.Task, error) {
	return r.reader.FindDescendants(ctx, taskID)
}

// Ancestors returns the parent chain of taskID, nearest parent first.
func (r *Resolver) Ancestors(ctx context.Context, taskID int64) ([]task.Task, error) {
	return r.reader.FindAncestors(ctx, taskID)
}

// Children returns the direct children of taskID, ordered by id.
// Dangling child references are skipped.
func (r *Resolver) Children(ctx context.Context, taskID int64) ([]task.Task, error) {
	t, err := r.reader.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	ids := slices.Clone(t.ChildIDs)
	slices.Sort(ids)

	children := make([]task.Task, 0, len(ids))
	for _, id := range ids {
		child, err := r.reader.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				continue
			}
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

// Parent returns the parent of taskID, or nil for a root.
func (r *Resolver) Parent(ctx context.Context, taskID int64) (*task.Task, error) {
	t, err := r.reader.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.ParentID == nil {
		return nil, nil
	}
	parent, err := r.reader.FindByID(ctx, *t.ParentID)
	if err != nil {
		return nil, err
	}
	return &parent, nil
}

// ProjectTaskIDs returns the ids of the project containing anyTaskID: its
// project root plus every descendant of that root, in ascending order.
func (r *Resolver) ProjectTaskIDs(ctx context.Context, anyTaskID int64) ([]int64, error) {
	root, err := r.ProjectRoot(ctx, anyTaskID)
	if err != nil {
		return nil, err
	}
	desc, err := r.reader.FindDescendants(ctx, root.ID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(desc)+1)
	ids = append(ids, root.ID)
	for _, t := range desc {
		ids = append(ids, t.ID)
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

package graph

import (
	"context"

	"github.com/Iron-Ham/tempo/internal/errors"
	"github.com/Iron-Ham/tempo/internal/logging"
	"github.com/Iron-Ham/tempo/internal/task"
)

// Linker performs parent-link mutations. Each mutation runs its
// read-check-write sequence inside a single store transaction.
type Linker struct {
	store  task.Store
	opts   []Option
	logger *logging.Logger
}

// NewLinker creates a Linker writing through s.
func NewLinker(s task.Store, opts ...Option) *Linker {
	cfg := newConfig(opts)
	return &Linker{
		store:  s,
		opts:   opts,
		logger: cfg.logger.WithComponent("linker"),
	}
}

// AttachParent makes parentID the parent of childID, detaching it from any
// previous parent. It fails with CYCLE_DETECTED, persisting nothing, when
// the link would make childID its own ancestor.
func (l *Linker) AttachParent(ctx context.Context, childID, parentID int64) error {
	return l.store.WithinTx(ctx, func(tx task.Store) error {
		cyclic, err := NewResolver(tx, l.opts...).WouldCreateCycle(ctx, childID, parentID)
		if err != nil {
			return err
		}
		if cyclic {
			return errors.NewSchedulingError(errors.CodeCycleDetected, "task cannot become its own ancestor").WithTaskID(childID)
		}

		child, err := tx.FindByID(ctx, childID)
		if err != nil {
			return err
		}
		if child.ParentID != nil && *child.ParentID == parentID {
			return nil
		}
		if err := unlinkFromParent(ctx, tx, &child); err != nil {
			return err
		}

		parent, err := tx.FindByID(ctx, parentID)
		if err != nil {
			return err
		}
		child.ParentID = &parentID
		if err := tx.Update(ctx, &child); err != nil {
			return err
		}
		parent.AddChild(childID)
		if err := tx.Update(ctx, &parent); err != nil {
			return err
		}

		l.logger.Info("parent attached", "task_id", childID, "parent_id", parentID)
		return nil
	})
}

// DetachParent turns childID into a root. Detaching a root is a no-op.
func (l *Linker) DetachParent(ctx context.Context, childID int64) error {
	return l.store.WithinTx(ctx, func(tx task.Store) error {
		child, err := tx.FindByID(ctx, childID)
		if err != nil {
			return err
		}
		if child.ParentID == nil {
			return nil
		}
		parentID := *child.ParentID
		if err := unlinkFromParent(ctx, tx, &child); err != nil {
			return err
		}
		if err := tx.Update(ctx, &child); err != nil {
			return err
		}
		l.logger.Info("parent detached", "task_id", childID, "parent_id", parentID)
		return nil
	})
}

// DeleteTask removes id. Its children become roots and its parent drops
// the reference.
func (l *Linker) DeleteTask(ctx context.Context, id int64) error {
	return l.store.WithinTx(ctx, func(tx task.Store) error {
		if err := tx.Delete(ctx, id); err != nil {
			return err
		}
		l.logger.Info("task deleted", "task_id", id)
		return nil
	})
}

// unlinkFromParent removes child from its current parent's child list and
// clears child.ParentID. The caller persists child.
func unlinkFromParent(ctx context.Context, tx task.Store, child *task.Task) error {
	if child.ParentID == nil {
		return nil
	}
	old, err := tx.FindByID(ctx, *child.ParentID)
	switch {
	case errors.Is(err, errors.ErrNotFound):
		// dangling reference, nothing to prune
	case err != nil:
		return err
	default:
		old.RemoveChild(child.ID)
		if err := tx.Update(ctx, &old); err != nil {
			return err
		}
	}
	child.ParentID = nil
	return nil
}

package engine

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/Iron-Ham/tempo/internal/errors"
	"github.com/Iron-Ham/tempo/internal/graph"
	"github.com/Iron-Ham/tempo/internal/task"
)

// NewTask describes a task to create.
type NewTask struct {
	Title         string
	Description   string
	Priority      int
	EstimateHours float64
	Deadline      *time.Time
	StartDate     *time.Time
	IsSplittable  bool
	Tags          []string
	// ParentID links the new task under an existing one when set.
	ParentID *int64
}

func (n NewTask) validate() error {
	if strings.TrimSpace(n.Title) == "" {
		return errors.NewValidationError("title is required").WithField("title")
	}
	if n.Priority < 0 {
		return errors.NewValidationError("priority must not be negative").
			WithField("priority").WithValue(n.Priority)
	}
	if n.EstimateHours < 0 || math.IsNaN(n.EstimateHours) || math.IsInf(n.EstimateHours, 0) {
		return errors.NewValidationError("estimate must be a non-negative number").
			WithField("estimate").WithValue(n.EstimateHours)
	}
	if n.Deadline != nil && n.StartDate != nil && n.Deadline.Before(*n.StartDate) {
		return errors.NewValidationError("deadline is before start date").WithField("deadline")
	}
	return nil
}

// Add creates a task and returns it with its assigned id.
func (e *Engine) Add(ctx context.Context, n NewTask) (task.Task, error) {
	if err := n.validate(); err != nil {
		return task.Task{}, err
	}

	t := task.Task{
		Title:        strings.TrimSpace(n.Title),
		Description:  n.Description,
		Status:       task.StatusScheduled,
		Priority:     n.Priority,
		Deadline:     n.Deadline,
		StartDate:    n.StartDate,
		IsSplittable: n.IsSplittable,
		Tags:         n.Tags,
	}
	if n.EstimateHours > 0 {
		t.EstimateDurationHour = task.Hours(n.EstimateHours)
	}

	err := e.store.WithinTx(ctx, func(tx task.Store) error {
		if err := tx.Save(ctx, &t); err != nil {
			return err
		}
		if n.ParentID == nil {
			return nil
		}
		if err := graph.NewLinker(tx, graph.WithLogger(e.logger)).AttachParent(ctx, t.ID, *n.ParentID); err != nil {
			return err
		}
		var err error
		t, err = tx.FindByID(ctx, t.ID)
		return err
	})
	if err != nil {
		return task.Task{}, err
	}

	e.logger.WithTask(t.ID).Info("task added", "title", t.Title)
	return t, nil
}

// Start moves a task to in-progress.
func (e *Engine) Start(ctx context.Context, id int64) error {
	return e.mutate(ctx, id, func(t *task.Task) error {
		return t.SetStatus(task.StatusInProgress)
	})
}

// Complete marks a task completed now. A positive actualHours records the
// time actually spent.
func (e *Engine) Complete(ctx context.Context, id int64, actualHours float64) error {
	if actualHours < 0 {
		return errors.NewValidationError("actual duration must not be negative").
			WithField("actual").WithValue(actualHours)
	}
	return e.mutate(ctx, id, func(t *task.Task) error {
		return t.Complete(e.now(), actualHours)
	})
}

// Reopen moves a completed task back to in-progress.
func (e *Engine) Reopen(ctx context.Context, id int64) error {
	return e.mutate(ctx, id, func(t *task.Task) error {
		return t.Reopen()
	})
}

// SetCompleteness records progress on a leaf task. Parent completeness is
// always derived, so setting it on a task with children is rejected.
func (e *Engine) SetCompleteness(ctx context.Context, id int64, pct int) error {
	if pct < 0 || pct > 100 {
		return errors.NewValidationError("completeness must be within 0..100").
			WithField("completeness").WithValue(pct)
	}
	return e.mutate(ctx, id, func(t *task.Task) error {
		if len(t.ChildIDs) > 0 {
			return errors.NewValidationError("completeness of a parent task is derived from its children").
				WithField("completeness").WithValue(id)
		}
		t.SetCompleteness(pct)
		return nil
	})
}

// RefreshOverdue marks every open task whose deadline has passed as
// overdue and returns the ids that changed.
func (e *Engine) RefreshOverdue(ctx context.Context) ([]int64, error) {
	now := e.now()
	var changed []int64
	err := e.store.WithinTx(ctx, func(tx task.Store) error {
		changed = changed[:0]
		all, err := tx.FindAll(ctx)
		if err != nil {
			return err
		}
		for i := range all {
			if !all[i].RefreshOverdue(now) {
				continue
			}
			if err := tx.Update(ctx, &all[i]); err != nil {
				return err
			}
			changed = append(changed, all[i].ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(changed) > 0 {
		e.logger.Info("overdue tasks refreshed", "count", len(changed))
	}
	return changed, nil
}

// Link makes parentID the parent of childID.
func (e *Engine) Link(ctx context.Context, childID, parentID int64) error {
	return e.linker.AttachParent(ctx, childID, parentID)
}

// Unlink turns childID into a root task.
func (e *Engine) Unlink(ctx context.Context, childID int64) error {
	return e.linker.DetachParent(ctx, childID)
}

// Delete removes a task; its children become roots.
func (e *Engine) Delete(ctx context.Context, id int64) error {
	return e.linker.DeleteTask(ctx, id)
}

// mutate loads id, applies fn and writes the result in one transaction.
func (e *Engine) mutate(ctx context.Context, id int64, fn func(t *task.Task) error) error {
	return e.store.WithinTx(ctx, func(tx task.Store) error {
		t, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(&t); err != nil {
			return err
		}
		if err := tx.Update(ctx, &t); err != nil {
			return err
		}
		e.logger.WithTask(id).Debug("task updated", "status", t.Status)
		return nil
	})
}

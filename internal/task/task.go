// Package task defines the task graph model shared by every scheduling
// component: the Task entity, its lifecycle states, and the storage
// contracts the calculators read through.
//
// Tasks form a tree through ParentID/ChildIDs. The model never holds live
// pointers between tasks; every traversal goes through an id lookup on a
// [Reader], so a snapshot is just a set of plain values indexed by id.
package task

import (
	"slices"
	"time"

	"github.com/Iron-Ham/tempo/internal/errors"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	// StatusScheduled is the default state of a newly created task.
	StatusScheduled Status = "scheduled"

	// StatusInProgress indicates work on the task has started.
	StatusInProgress Status = "in_progress"

	// StatusCompleted is terminal for scheduling purposes. Reopening is the
	// only way back out.
	StatusCompleted Status = "completed"

	// StatusOverdue indicates the deadline passed before completion.
	StatusOverdue Status = "overdue"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsCompleted reports whether s is the completed state.
func (s Status) IsCompleted() bool {
	return s == StatusCompleted
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusOverdue:
		return true
	}
	return false
}

// ParseStatus converts a string into a Status. The empty string maps to
// StatusScheduled.
func ParseStatus(s string) (Status, error) {
	if s == "" {
		return StatusScheduled, nil
	}
	st := Status(s)
	if !st.Valid() {
		return "", errors.NewValidationError("unknown status").WithField("status").WithValue(s)
	}
	return st, nil
}

// validTransitions lists the allowed forward moves. Completed -> InProgress
// is the single backward transition (reopen).
var validTransitions = map[Status]map[Status]bool{
	StatusScheduled: {
		StatusInProgress: true,
		StatusCompleted:  true,
		StatusOverdue:    true,
	},
	StatusInProgress: {
		StatusScheduled: true,
		StatusCompleted: true,
		StatusOverdue:   true,
	},
	StatusOverdue: {
		StatusInProgress: true,
		StatusCompleted:  true,
	},
	StatusCompleted: {
		StatusInProgress: true,
	},
}

// ValidateTransition returns an error wrapping errors.ErrInvalidTransition
// if moving from one status to another is not allowed.
func ValidateTransition(from, to Status) error {
	allowed, ok := validTransitions[from]
	if !ok {
		return errors.Wrapf(errors.ErrInvalidTransition, "unknown status %q", from)
	}
	if !allowed[to] {
		return errors.Wrapf(errors.ErrInvalidTransition, "%q -> %q", from, to)
	}
	return nil
}

// Task is the central entity of the scheduling core.
type Task struct {
	ID          int64  `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Status      Status `json:"status" yaml:"status"`
	Priority    int    `json:"priority" yaml:"priority"`

	Deadline    *time.Time `json:"deadline,omitempty" yaml:"deadline,omitempty"`
	StartDate   *time.Time `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`

	EstimateDurationHour *float64 `json:"estimate_duration_hour,omitempty" yaml:"estimate_duration_hour,omitempty"`
	ActualDurationHour   *float64 `json:"actual_duration_hour,omitempty" yaml:"actual_duration_hour,omitempty"`

	// Completeness is user-set progress in percent; only meaningful for leaves.
	Completeness int  `json:"completeness" yaml:"completeness"`
	IsSplittable bool `json:"is_splittable" yaml:"is_splittable"`

	ParentID *int64  `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	ChildIDs []int64 `json:"child_ids,omitempty" yaml:"child_ids,omitempty"`

	CategoryID *int64   `json:"category_id,omitempty" yaml:"category_id,omitempty"`
	Tags       []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// IsRoot reports whether the task has no parent.
func (t *Task) IsRoot() bool {
	return t.ParentID == nil
}

// IsCompleted reports whether the task is in the completed state.
func (t *Task) IsCompleted() bool {
	return t.Status.IsCompleted()
}

// HasChild reports whether id is listed among the task's children.
func (t *Task) HasChild(id int64) bool {
	return slices.Contains(t.ChildIDs, id)
}

// AddChild appends id to ChildIDs if it is not already present.
func (t *Task) AddChild(id int64) {
	if !t.HasChild(id) {
		t.ChildIDs = append(t.ChildIDs, id)
	}
}

// RemoveChild drops every occurrence of id from ChildIDs.
func (t *Task) RemoveChild(id int64) {
	t.ChildIDs = slices.DeleteFunc(t.ChildIDs, func(c int64) bool { return c == id })
}

// Clone returns a deep copy so callers never share slices or pointers with
// a store's internal state.
func (t Task) Clone() Task {
	cp := t
	cp.Deadline = cloneTime(t.Deadline)
	cp.StartDate = cloneTime(t.StartDate)
	cp.CompletedAt = cloneTime(t.CompletedAt)
	cp.EstimateDurationHour = clonePtr(t.EstimateDurationHour)
	cp.ActualDurationHour = clonePtr(t.ActualDurationHour)
	cp.ParentID = clonePtr(t.ParentID)
	cp.CategoryID = clonePtr(t.CategoryID)
	cp.ChildIDs = slices.Clone(t.ChildIDs)
	cp.Tags = slices.Clone(t.Tags)
	return cp
}

// IsPastDeadline reports whether the task has a deadline strictly before now.
func (t *Task) IsPastDeadline(now time.Time) bool {
	return t.Deadline != nil && t.Deadline.Before(now)
}

// SetStatus moves the task to a new status, enforcing the lifecycle rules.
// Setting the current status again is a no-op.
func (t *Task) SetStatus(to Status) error {
	if t.Status == "" {
		t.Status = StatusScheduled
	}
	if t.Status == to {
		return nil
	}
	if err := ValidateTransition(t.Status, to); err != nil {
		return err
	}
	t.Status = to
	return nil
}

// Complete marks the task completed at now. A positive actualHours is
// recorded as the actual duration; otherwise the estimate (if any) is kept
// as the canonical duration.
func (t *Task) Complete(now time.Time, actualHours float64) error {
	if err := t.SetStatus(StatusCompleted); err != nil {
		return err
	}
	if actualHours > 0 {
		t.ActualDurationHour = &actualHours
	}
	t.Completeness = 100
	completedAt := now
	t.CompletedAt = &completedAt
	return nil
}

// Reopen moves a completed task back to in-progress, clearing its
// completion timestamp.
func (t *Task) Reopen() error {
	if !t.IsCompleted() {
		return errors.Wrapf(errors.ErrInvalidTransition, "task %d is not completed", t.ID)
	}
	t.Status = StatusInProgress
	t.CompletedAt = nil
	return nil
}

// RefreshOverdue moves a non-completed task whose deadline has passed to
// the overdue state. It reports whether the status changed.
func (t *Task) RefreshOverdue(now time.Time) bool {
	if t.IsCompleted() || t.Status == StatusOverdue || !t.IsPastDeadline(now) {
		return false
	}
	t.Status = StatusOverdue
	return true
}

// SetCompleteness stores pct clamped to [0,100].
func (t *Task) SetCompleteness(pct int) {
	t.Completeness = ClampPercent(pct)
}

// ClampPercent clamps v to [0,100].
func ClampPercent(v int) int {
	return min(max(v, 0), 100)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

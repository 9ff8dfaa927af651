// Package cpm computes critical-path schedules over a project's task tree.
//
// Edges run from parent to child: a child may not start before every
// in-project parent has finished. The schedule is computed in one forward
// and one backward pass over a Kahn topological order of the whole
// project, never recursively per task.
package cpm

import (
	"context"
	"slices"
	"time"

	"github.com/Iron-Ham/tempo/internal/errors"
	"github.com/Iron-Ham/tempo/internal/logging"
	"github.com/Iron-Ham/tempo/internal/task"
)

// Schedule is the CPM result for a single task.
type Schedule struct {
	TaskID        int64         `json:"task_id"`
	EarliestStart time.Time     `json:"earliest_start"`
	EarlyFinish   time.Time     `json:"early_finish"`
	LatestFinish  time.Time     `json:"latest_finish"`
	Slack         time.Duration `json:"slack"`
	IsCritical    bool          `json:"is_critical"`
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Scheduler computes project schedules from tasks read through a Reader.
type Scheduler struct {
	reader task.Reader
	now    func() time.Time
	logger *logging.Logger
}

// NewScheduler creates a Scheduler reading through r.
func NewScheduler(r task.Reader, opts ...Option) *Scheduler {
	s := &Scheduler{reader: r, now: time.Now, logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("cpm")
	return s
}

// project is the id-indexed graph restricted to one id set.
type project struct {
	tasks    map[int64]*task.Task
	ids      []int64 // ascending
	parents  map[int64][]int64
	children map[int64][]int64
}

// ComputeProjectSchedule computes earliest start, early finish, latest
// finish and slack for every id in projectTaskIDs.
//
// It fails with NOT_A_DAG when an id cannot be found or the parent/child
// edges restricted to the set contain a cycle, with OVERDUE when a
// non-completed task's deadline has passed, and with MISSING_DURATION when
// a non-completed task has no positive estimate.
func (s *Scheduler) ComputeProjectSchedule(ctx context.Context, projectTaskIDs []int64) (map[int64]Schedule, error) {
	_, out, err := s.compute(ctx, projectTaskIDs)
	return out, err
}

func (s *Scheduler) compute(ctx context.Context, projectTaskIDs []int64) (*project, map[int64]Schedule, error) {
	start := time.Now()
	now := s.now()

	p, err := s.load(ctx, projectTaskIDs)
	if err != nil {
		return nil, nil, err
	}
	order, err := p.topoOrder()
	if err != nil {
		return nil, nil, err
	}

	durations := make(map[int64]time.Duration, len(p.ids))
	for _, id := range p.ids {
		t := p.tasks[id]
		if !t.IsCompleted() && t.IsPastDeadline(now) {
			return nil, nil, errors.NewSchedulingError(errors.CodeOverdue, "deadline has passed").WithTaskID(id)
		}
		d, err := t.CanonicalDuration()
		if err != nil {
			return nil, nil, err
		}
		durations[id] = d
	}

	earliest, finish, err := p.forward(order, durations, now)
	if err != nil {
		return nil, nil, err
	}
	latest, err := p.backward(order, durations, finish)
	if err != nil {
		return nil, nil, err
	}

	out := make(map[int64]Schedule, len(p.ids))
	for _, id := range p.ids {
		slack := latest[id].Sub(finish[id])
		out[id] = Schedule{
			TaskID:        id,
			EarliestStart: earliest[id],
			EarlyFinish:   finish[id],
			LatestFinish:  latest[id],
			Slack:         slack,
			IsCritical:    slack == 0,
		}
	}

	s.logger.Debug("project schedule computed",
		"tasks", len(out),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return p, out, nil
}

// CriticalPath returns the critical tasks reachable from a project root by
// following only critical children, in pre-order with siblings by
// ascending id.
func (s *Scheduler) CriticalPath(ctx context.Context, projectTaskIDs []int64) ([]int64, error) {
	p, schedule, err := s.compute(ctx, projectTaskIDs)
	if err != nil {
		return nil, err
	}

	var stack []int64
	for _, id := range slices.Backward(p.ids) {
		if len(p.parents[id]) == 0 && schedule[id].IsCritical {
			stack = append(stack, id)
		}
	}

	path := make([]int64, 0)
	visited := make(map[int64]bool)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true
		path = append(path, id)

		for _, c := range slices.Backward(p.children[id]) {
			if schedule[c].IsCritical {
				stack = append(stack, c)
			}
		}
	}
	return path, nil
}

func (s *Scheduler) load(ctx context.Context, ids []int64) (*project, error) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	p := &project{
		tasks:    make(map[int64]*task.Task, len(sorted)),
		ids:      sorted,
		parents:  make(map[int64][]int64, len(sorted)),
		children: make(map[int64][]int64, len(sorted)),
	}
	for _, id := range sorted {
		t, err := s.reader.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				return nil, errors.NewSchedulingError(errors.CodeNotADag, "project references a missing task").
					WithTaskID(id).WithCause(err)
			}
			return nil, err
		}
		p.tasks[id] = &t
	}

	edges := make(map[[2]int64]bool)
	addEdge := func(parent, child int64) {
		if p.tasks[parent] == nil || p.tasks[child] == nil {
			return
		}
		edges[[2]int64{parent, child}] = true
	}
	for _, id := range sorted {
		t := p.tasks[id]
		if t.ParentID != nil {
			addEdge(*t.ParentID, id)
		}
		for _, c := range t.ChildIDs {
			addEdge(id, c)
		}
	}
	for e := range edges {
		p.children[e[0]] = append(p.children[e[0]], e[1])
		p.parents[e[1]] = append(p.parents[e[1]], e[0])
	}
	for _, id := range sorted {
		slices.Sort(p.children[id])
		slices.Sort(p.parents[id])
	}
	return p, nil
}

// topoOrder runs Kahn's algorithm with a FIFO queue seeded in ascending id
// order, so the result is deterministic.
func (p *project) topoOrder() ([]int64, error) {
	inDegree := make(map[int64]int, len(p.ids))
	for _, id := range p.ids {
		inDegree[id] = len(p.parents[id])
	}

	queue := make([]int64, 0, len(p.ids))
	for _, id := range p.ids {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]int64, 0, len(p.ids))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, c := range p.children[id] {
			inDegree[c]--
			if inDegree[c] == 0 {
				queue = append(queue, c)
			}
		}
	}

	if len(order) != len(p.ids) {
		return nil, errors.NewSchedulingError(errors.CodeNotADag, "project graph contains a cycle")
	}
	return order, nil
}

// forward computes earliest start and early finish for every task.
func (p *project) forward(order []int64, durations map[int64]time.Duration, now time.Time) (earliest, finish map[int64]time.Time, err error) {
	earliest = make(map[int64]time.Time, len(order))
	finish = make(map[int64]time.Time, len(order))

	for _, id := range order {
		t := p.tasks[id]

		var es time.Time
		if parents := p.parents[id]; len(parents) == 0 {
			es = rootStart(t, durations[id], now)
		} else {
			for _, pid := range parents {
				pf, ok := finish[pid]
				if !ok {
					return nil, nil, errors.NewSchedulingError(errors.CodeParentUnresolved, "parent finish not computed").WithTaskID(id)
				}
				if pf.After(es) {
					es = pf
				}
			}
			if t.StartDate != nil && t.StartDate.After(es) {
				es = *t.StartDate
			}
		}

		earliest[id] = es
		if t.IsCompleted() {
			finish[id] = completedFinish(t, es)
		} else {
			finish[id] = es.Add(durations[id])
		}
	}
	return earliest, finish, nil
}

// backward computes the latest finish for every task. Leaves without a
// deadline may finish as late as the project's last early finish.
func (p *project) backward(order []int64, durations map[int64]time.Duration, finish map[int64]time.Time) (map[int64]time.Time, error) {
	var projectEnd time.Time
	for _, f := range finish {
		if f.After(projectEnd) {
			projectEnd = f
		}
	}

	latest := make(map[int64]time.Time, len(order))
	for _, id := range slices.Backward(order) {
		t := p.tasks[id]
		children := p.children[id]
		if len(children) == 0 {
			if t.Deadline != nil {
				latest[id] = *t.Deadline
			} else {
				latest[id] = projectEnd
			}
			continue
		}

		var lf time.Time
		for i, c := range children {
			clf, ok := latest[c]
			if !ok {
				return nil, errors.NewSchedulingError(errors.CodeChildUnresolved, "child latest finish not computed").WithTaskID(id)
			}
			if !p.tasks[c].IsCompleted() {
				clf = clf.Add(-durations[c])
			}
			if i == 0 || clf.Before(lf) {
				lf = clf
			}
		}
		latest[id] = lf
	}
	return latest, nil
}

// rootStart is the earliest start of a task with no in-project parent.
func rootStart(t *task.Task, duration time.Duration, now time.Time) time.Time {
	if t.IsCompleted() {
		switch {
		case t.StartDate != nil:
			return *t.StartDate
		case t.CompletedAt != nil:
			return t.CompletedAt.Add(-duration)
		default:
			return now
		}
	}
	if t.StartDate != nil && t.StartDate.After(now) {
		return *t.StartDate
	}
	return now
}

// completedFinish is when a completed task counts as finished: its
// deadline, else its completion time, else its earliest start.
func completedFinish(t *task.Task, earliest time.Time) time.Time {
	switch {
	case t.Deadline != nil:
		return *t.Deadline
	case t.CompletedAt != nil:
		return *t.CompletedAt
	default:
		return earliest
	}
}

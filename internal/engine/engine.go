// Package engine is the application-facing facade over the scheduling
// core. It owns a task store and wires the resolver, linker and
// calculators to it, logging every query it answers.
package engine

import (
	"context"
	"time"

	"github.com/gobwas/glob"

	"github.com/Iron-Ham/tempo/internal/capacity"
	"github.com/Iron-Ham/tempo/internal/completion"
	"github.com/Iron-Ham/tempo/internal/cpm"
	"github.com/Iron-Ham/tempo/internal/errors"
	"github.com/Iron-Ham/tempo/internal/graph"
	"github.com/Iron-Ham/tempo/internal/logging"
	"github.com/Iron-Ham/tempo/internal/task"
	"github.com/Iron-Ham/tempo/internal/urgency"
)

// Settings are the calculator defaults the engine applies.
type Settings struct {
	UrgencyWindowDays    int
	CapacityHours        float64
	TimeUnitHours        float64
	DefaultDurationHours float64
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		UrgencyWindowDays:    urgency.DefaultWindowDays,
		CapacityHours:        8,
		TimeUnitHours:        capacity.DefaultTimeUnit,
		DefaultDurationHours: capacity.DefaultDurationHours,
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the time source for every calculator.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithSettings replaces the default settings.
func WithSettings(s Settings) Option {
	return func(e *Engine) {
		e.settings = s
	}
}

// Engine answers scheduling queries and applies lifecycle mutations.
type Engine struct {
	store    task.Store
	settings Settings
	now      func() time.Time
	logger   *logging.Logger

	resolver   *graph.Resolver
	linker     *graph.Linker
	completion *completion.Aggregator
	urgency    *urgency.Scorer
	cpm        *cpm.Scheduler
	capacity   *capacity.Scheduler
}

// New creates an Engine over s.
func New(s task.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		settings: DefaultSettings(),
		now:      time.Now,
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.resolver = graph.NewResolver(s, graph.WithLogger(e.logger))
	e.linker = graph.NewLinker(s, graph.WithLogger(e.logger))
	e.completion = completion.NewAggregator(s, completion.WithLogger(e.logger))
	e.urgency = urgency.NewScorer(s, urgency.WithClock(e.now), urgency.WithLogger(e.logger))
	e.cpm = cpm.NewScheduler(s, cpm.WithClock(e.now), cpm.WithLogger(e.logger))
	e.capacity = capacity.NewScheduler(
		capacity.WithClock(e.now),
		capacity.WithUrgencyWindow(e.settings.UrgencyWindowDays),
		capacity.WithDefaultDuration(e.settings.DefaultDurationHours),
		capacity.WithLogger(e.logger),
	)
	e.logger = e.logger.WithComponent("engine")
	return e
}

// Settings returns the engine's calculator defaults.
func (e *Engine) Settings() Settings {
	return e.settings
}

// Task returns a copy of the task with the given id.
func (e *Engine) Task(ctx context.Context, id int64) (task.Task, error) {
	return e.store.FindByID(ctx, id)
}

// Tasks returns every task ordered by id.
func (e *Engine) Tasks(ctx context.Context) ([]task.Task, error) {
	return e.store.FindAll(ctx)
}

// Completeness returns the completeness of id in [0,100].
func (e *Engine) Completeness(ctx context.Context, id int64) (int, error) {
	defer e.timed("completeness", id)()
	return e.completion.TaskCompleteness(ctx, id)
}

// Progress returns the completeness of id with its effort breakdown.
func (e *Engine) Progress(ctx context.Context, id int64) (completion.Summary, error) {
	defer e.timed("progress", id)()
	return e.completion.Summarize(ctx, id)
}

// Urgency returns the urgency of id using the configured window.
func (e *Engine) Urgency(ctx context.Context, id int64) (int, error) {
	return e.UrgencyWithWindow(ctx, id, e.settings.UrgencyWindowDays)
}

// UrgencyWithWindow returns the urgency of id for an explicit window.
func (e *Engine) UrgencyWithWindow(ctx context.Context, id int64, windowDays int) (int, error) {
	defer e.timed("urgency", id)()
	return e.urgency.TaskUrgency(ctx, id, windowDays)
}

// ProjectSchedule computes the CPM schedule of the project containing
// anyTaskID.
func (e *Engine) ProjectSchedule(ctx context.Context, anyTaskID int64) (map[int64]cpm.Schedule, error) {
	defer e.timed("project_schedule", anyTaskID)()
	ids, err := e.resolver.ProjectTaskIDs(ctx, anyTaskID)
	if err != nil {
		return nil, err
	}
	return e.cpm.ComputeProjectSchedule(ctx, ids)
}

// CriticalPath returns the critical path of the project containing
// anyTaskID.
func (e *Engine) CriticalPath(ctx context.Context, anyTaskID int64) ([]int64, error) {
	defer e.timed("critical_path", anyTaskID)()
	ids, err := e.resolver.ProjectTaskIDs(ctx, anyTaskID)
	if err != nil {
		return nil, err
	}
	return e.cpm.CriticalPath(ctx, ids)
}

// PlanRequest selects candidates and budget for a capacity plan.
type PlanRequest struct {
	// CapacityHours and TimeUnitHours fall back to the engine settings when
	// nil. An explicit zero capacity plans nothing.
	CapacityHours *float64
	TimeUnitHours *float64
	// TaskIDs limits candidates to these ids. Empty means every open task.
	TaskIDs []int64
	// TagPattern keeps only tasks with a tag matching this glob, using "/"
	// as the separator (for example "work/**").
	TagPattern string
	// LeavesOnly drops tasks that have children.
	LeavesOnly bool
}

// Plan allocates the capacity across candidate tasks.
func (e *Engine) Plan(ctx context.Context, req PlanRequest) (capacity.Plan, error) {
	defer e.timed("plan", 0)()

	capacityHours := e.settings.CapacityHours
	if req.CapacityHours != nil {
		capacityHours = *req.CapacityHours
	}
	timeUnit := e.settings.TimeUnitHours
	if req.TimeUnitHours != nil {
		timeUnit = *req.TimeUnitHours
	}

	var match glob.Glob
	if req.TagPattern != "" {
		g, err := glob.Compile(req.TagPattern, '/')
		if err != nil {
			return capacity.Plan{}, errors.NewValidationError("invalid tag pattern").
				WithField("tag").WithValue(req.TagPattern).WithCause(err)
		}
		match = g
	}

	candidates, err := e.candidates(ctx, req.TaskIDs)
	if err != nil {
		return capacity.Plan{}, err
	}
	filtered := candidates[:0]
	for _, t := range candidates {
		if t.IsCompleted() {
			continue
		}
		if req.LeavesOnly && len(t.ChildIDs) > 0 {
			continue
		}
		if match != nil && !matchesAnyTag(match, t.Tags) {
			continue
		}
		filtered = append(filtered, t)
	}

	return e.capacity.Plan(filtered, capacityHours, timeUnit), nil
}

func (e *Engine) candidates(ctx context.Context, ids []int64) ([]task.Task, error) {
	if len(ids) == 0 {
		return e.store.FindAll(ctx)
	}
	out := make([]task.Task, 0, len(ids))
	for _, id := range ids {
		t, err := e.store.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func matchesAnyTag(g glob.Glob, tags []string) bool {
	for _, tag := range tags {
		if g.Match(tag) {
			return true
		}
	}
	return false
}

// timed logs the duration of a query when the returned func runs.
func (e *Engine) timed(op string, id int64) func() {
	start := time.Now()
	return func() {
		e.logger.Debug("query finished",
			"op", op,
			"task_id", id,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

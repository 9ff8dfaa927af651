// Package capacity allocates a fixed time budget across candidate tasks
// with 0/1 knapsack dynamic programming. Splittable tasks are broken into
// one-unit fragments so the budget can take part of them.
//
// The scheduler is advisory: bad records fall back to defaults instead of
// failing the plan.
package capacity

import (
	"math"
	"slices"
	"time"

	"github.com/Iron-Ham/tempo/internal/logging"
	"github.com/Iron-Ham/tempo/internal/task"
	"github.com/Iron-Ham/tempo/internal/urgency"
)

const (
	// DefaultTimeUnit is the allocation granularity in hours.
	DefaultTimeUnit = 0.5
	// DefaultDurationHours stands in for a missing or non-positive estimate.
	DefaultDurationHours = 1.0

	// epsilon absorbs float error when converting hours to whole units.
	epsilon = 1e-9
)

// ValueFunc scores a candidate; higher is better.
type ValueFunc func(t task.Task) float64

// Allocation is the time given to one task.
type Allocation struct {
	TaskID int64  `json:"task_id"`
	Title  string `json:"title"`
	// ScheduledHours is the allocated time in hours.
	ScheduledHours float64 `json:"scheduled_duration"`
	IsPartial      bool    `json:"is_partial"`
	Value          float64 `json:"value"`
}

// ScheduledDuration returns ScheduledHours as a time.Duration.
func (a Allocation) ScheduledDuration() time.Duration {
	return task.HoursToDuration(a.ScheduledHours)
}

// Plan is a full allocation result.
type Plan struct {
	Allocations   []Allocation `json:"allocations"`
	CapacityUnits int          `json:"capacity_units"`
	UsedUnits     int          `json:"used_units"`
	TimeUnit      float64      `json:"time_unit"`
	TotalValue    float64      `json:"total_value"`
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithValueFunc replaces the default value function.
func WithValueFunc(fn ValueFunc) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.value = fn
		}
	}
}

// WithDefaultDuration sets the hours assumed for tasks without a usable
// estimate. Non-positive values are ignored.
func WithDefaultDuration(hours float64) Option {
	return func(s *Scheduler) {
		if hours > 0 {
			s.defaultHours = hours
		}
	}
}

// WithClock overrides the time source used by the default value function.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithUrgencyWindow sets the urgency window, in days, used by the default
// value function.
func WithUrgencyWindow(days int) Option {
	return func(s *Scheduler) {
		s.windowDays = days
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

// Scheduler selects which candidates fit a capacity.
type Scheduler struct {
	value        ValueFunc
	defaultHours float64
	windowDays   int
	now          func() time.Time
	logger       *logging.Logger
}

// NewScheduler creates a Scheduler. Without WithValueFunc a task is worth
// (priority+1)*10 plus its urgency score.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		defaultHours: DefaultDurationHours,
		windowDays:   urgency.DefaultWindowDays,
		now:          time.Now,
		logger:       logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.value == nil {
		s.value = s.defaultValue
	}
	s.logger = s.logger.WithComponent("capacity")
	return s
}

func (s *Scheduler) defaultValue(t task.Task) float64 {
	u, err := urgency.Score(t, s.windowDays, s.now())
	if err != nil {
		u = 0
	}
	return float64((max(t.Priority, 0)+1)*10 + u)
}

// item is a knapsack entry: a whole task or a single fragment of one.
type item struct {
	candidate int
	weight    int
	value     float64
}

// Schedule returns the allocations that maximize total value within
// capacityHours, in candidate order.
func (s *Scheduler) Schedule(candidates []task.Task, capacityHours, timeUnit float64) []Allocation {
	return s.Plan(candidates, capacityHours, timeUnit).Allocations
}

// Plan is Schedule with the totals of the chosen allocation. Completed
// candidates are skipped. A non-positive timeUnit falls back to
// DefaultTimeUnit.
func (s *Scheduler) Plan(candidates []task.Task, capacityHours, timeUnit float64) Plan {
	if timeUnit <= 0 {
		timeUnit = DefaultTimeUnit
	}
	plan := Plan{Allocations: make([]Allocation, 0), TimeUnit: timeUnit}
	if capacityHours <= 0 {
		return plan
	}
	capacity := int(math.Floor(capacityHours/timeUnit + epsilon))
	plan.CapacityUnits = capacity
	if capacity == 0 {
		return plan
	}

	hours := make([]float64, len(candidates))
	var items []item
	for i, t := range candidates {
		if t.IsCompleted() {
			continue
		}
		h, err := t.EstimateHours()
		if err != nil {
			s.logger.Warn("using default duration", "task_id", t.ID, "hours", s.defaultHours)
			h = s.defaultHours
		}
		hours[i] = h

		// Compare in float space first: huge estimates would overflow int.
		need := max(math.Ceil(h/timeUnit-epsilon), 1)
		value := s.value(t)
		if t.IsSplittable {
			// Fragments beyond capacity can never be taken.
			fragments := capacity
			if need < float64(capacity) {
				fragments = int(need)
			}
			for range fragments {
				items = append(items, item{candidate: i, weight: 1, value: value / need})
			}
		} else if need <= float64(capacity) {
			items = append(items, item{candidate: i, weight: int(need), value: value})
		}
	}

	taken := knapsack(items, capacity)

	units := make([]int, len(candidates))
	values := make([]float64, len(candidates))
	for _, idx := range taken {
		it := items[idx]
		units[it.candidate] += it.weight
		values[it.candidate] += it.value
	}
	for i, t := range candidates {
		if units[i] == 0 {
			continue
		}
		scheduled := float64(units[i]) * timeUnit
		plan.Allocations = append(plan.Allocations, Allocation{
			TaskID:         t.ID,
			Title:          t.Title,
			ScheduledHours: scheduled,
			IsPartial:      scheduled+epsilon < hours[i],
			Value:          values[i],
		})
		plan.UsedUnits += units[i]
		plan.TotalValue += values[i]
	}

	s.logger.Debug("capacity plan computed",
		"candidates", len(candidates),
		"items", len(items),
		"capacity_units", capacity,
		"used_units", plan.UsedUnits,
	)
	return plan
}

// knapsack solves 0/1 knapsack over items and returns the indexes of the
// chosen items in ascending order.
func knapsack(items []item, capacity int) []int {
	n := len(items)
	dp := make([][]float64, n+1)
	for i := range dp {
		dp[i] = make([]float64, capacity+1)
	}

	for i := 1; i <= n; i++ {
		it := items[i-1]
		prev, cur := dp[i-1], dp[i]
		for w := 0; w <= capacity; w++ {
			cur[w] = prev[w]
			if it.weight <= w {
				if v := prev[w-it.weight] + it.value; v > cur[w] {
					cur[w] = v
				}
			}
		}
	}

	var taken []int
	w := capacity
	for i := n; i >= 1; i-- {
		if dp[i][w] != dp[i-1][w] {
			taken = append(taken, i-1)
			w -= items[i-1].weight
		}
	}
	slices.Reverse(taken)
	return taken
}

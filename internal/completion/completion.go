// Package completion computes effort-weighted completeness for a task and
// its subtree.
package completion

import (
	"context"
	"math"

	"github.com/Iron-Ham/tempo/internal/logging"
	"github.com/Iron-Ham/tempo/internal/task"
)

// Summary is the breakdown behind a completeness percentage.
type Summary struct {
	TaskID    int64   `json:"task_id"`
	Percent   int     `json:"percent"`
	DoneHours float64 `json:"done_hours"`
	// TotalHours is the effort the percentage is measured against.
	TotalHours float64 `json:"total_hours"`
	Leaves     int     `json:"leaves"`
	Completed  int     `json:"completed_leaves"`
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// Aggregator rolls leaf completeness up through the task tree.
type Aggregator struct {
	reader task.Reader
	logger *logging.Logger
}

// NewAggregator creates an Aggregator reading through r.
func NewAggregator(r task.Reader, opts ...Option) *Aggregator {
	a := &Aggregator{reader: r, logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.WithComponent("completion")
	return a
}

// TaskCompleteness returns the completeness of taskID in [0,100].
func (a *Aggregator) TaskCompleteness(ctx context.Context, taskID int64) (int, error) {
	s, err := a.Summarize(ctx, taskID)
	if err != nil {
		return 0, err
	}
	return s.Percent, nil
}

// Summarize computes the completeness of taskID along with the effort
// totals it was derived from.
//
// Leaves contribute their canonical duration as effort, done in proportion
// to their completeness (or fully once completed). A non-leaf contributes
// only when it is itself completed; otherwise its progress is entirely
// determined by its descendants. Only the completed state counts as done:
// overdue, in-progress and scheduled tasks contribute their partial
// completeness and nothing more.
func (a *Aggregator) Summarize(ctx context.Context, taskID int64) (Summary, error) {
	root, err := a.reader.FindByID(ctx, taskID)
	if err != nil {
		return Summary{}, err
	}
	desc, err := a.reader.FindDescendants(ctx, taskID)
	if err != nil {
		return Summary{}, err
	}

	nodes := make([]task.Task, 0, len(desc)+1)
	nodes = append(nodes, root)
	nodes = append(nodes, desc...)

	inSubtree := make(map[int64]bool, len(nodes))
	for _, t := range nodes {
		inSubtree[t.ID] = true
	}

	sum := Summary{TaskID: taskID}
	for i := range nodes {
		t := &nodes[i]
		leaf := true
		for _, c := range t.ChildIDs {
			if inSubtree[c] {
				leaf = false
				break
			}
		}

		if !leaf {
			if t.IsCompleted() {
				effort, _ := t.CanonicalHours()
				sum.TotalHours += effort
				sum.DoneHours += effort
			}
			continue
		}

		effort, err := t.CanonicalHours()
		if err != nil {
			return Summary{}, err
		}
		sum.Leaves++
		sum.TotalHours += effort
		if t.IsCompleted() {
			sum.Completed++
			sum.DoneHours += effort
		} else {
			sum.DoneHours += effort * float64(task.ClampPercent(t.Completeness)) / 100
		}
	}

	if sum.TotalHours > 0 {
		sum.Percent = task.ClampPercent(RoundHalfUp(100 * sum.DoneHours / sum.TotalHours))
	}

	a.logger.Debug("completeness computed",
		"task_id", taskID,
		"percent", sum.Percent,
		"nodes", len(nodes),
	)
	return sum, nil
}

// RoundHalfUp rounds x to the nearest integer, halves away from negative
// infinity.
func RoundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}

// Package urgency scores how soon a task must start to meet its deadline.
package urgency

import (
	"context"
	"math"
	"time"

	"github.com/Iron-Ham/tempo/internal/logging"
	"github.com/Iron-Ham/tempo/internal/task"
)

// DefaultWindowDays is the look-ahead window used when callers have no
// preference.
const DefaultWindowDays = 30

// MaxWindowDays bounds the window so it fits in a time.Duration.
const MaxWindowDays = 100_000

// WindowDays clamps days to the accepted window range [1, MaxWindowDays].
func WindowDays(days int) int {
	return min(max(days, 1), MaxWindowDays)
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Scorer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Scorer computes urgency scores for stored tasks.
type Scorer struct {
	reader task.Reader
	now    func() time.Time
	logger *logging.Logger
}

// NewScorer creates a Scorer reading through r.
func NewScorer(r task.Reader, opts ...Option) *Scorer {
	s := &Scorer{reader: r, now: time.Now, logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("urgency")
	return s
}

// TaskUrgency returns the urgency of taskID in [0,100] for a look-ahead
// window of windowDays, clamped by WindowDays.
func (s *Scorer) TaskUrgency(ctx context.Context, taskID int64, windowDays int) (int, error) {
	t, err := s.reader.FindByID(ctx, taskID)
	if err != nil {
		return 0, err
	}
	score, err := Score(t, windowDays, s.now())
	if err != nil {
		return 0, err
	}
	s.logger.Debug("urgency computed", "task_id", taskID, "window_days", windowDays, "urgency", score)
	return score, nil
}

// Score computes the urgency of t at now.
//
// The task must start by its deadline minus its estimate. At or past that
// point the score is 100; a start-by time a full window or more away scores
// 0; in between the score rises linearly. Completed tasks and tasks
// without a deadline score 0.
func Score(t task.Task, windowDays int, now time.Time) (int, error) {
	if t.IsCompleted() || t.Deadline == nil {
		return 0, nil
	}
	hours, err := t.EstimateHours()
	if err != nil {
		return 0, err
	}

	deadline := *t.Deadline
	startBy := deadline.Add(-task.HoursToDuration(hours))
	if !deadline.After(now) || !startBy.After(now) {
		return 100, nil
	}

	window := time.Duration(WindowDays(windowDays)) * 24 * time.Hour
	timeToStart := startBy.Sub(now)
	if timeToStart >= window {
		return 0, nil
	}

	ratio := float64(window-timeToStart) / float64(window)
	score := int(math.Floor(100*ratio + 0.5))
	return min(max(score, 0), 100), nil
}

package urgency

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/Iron-Ham/tempo/internal/errors"
	"github.com/Iron-Ham/tempo/internal/store"
	"github.com/Iron-Ham/tempo/internal/task"
)

var now = time.Date(2025, 4, 7, 9, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

const day = 24 * time.Hour

func TestScore(t *testing.T) {
	tests := []struct {
		name   string
		task   task.Task
		window int
		want   int
	}{
		{
			name: "no deadline",
			task: task.Task{EstimateDurationHour: task.Hours(2)},
			want: 0,
		},
		{
			name: "completed",
			task: task.Task{Status: task.StatusCompleted, Deadline: at(-day)},
			want: 0,
		},
		{
			name: "deadline passed",
			task: task.Task{Deadline: at(-time.Hour), EstimateDurationHour: task.Hours(1)},
			want: 100,
		},
		{
			name:   "deadline passed ignores window",
			task:   task.Task{Status: task.StatusOverdue, Deadline: at(-time.Minute), EstimateDurationHour: task.Hours(1)},
			window: 365,
			want:   100,
		},
		{
			name: "must start now",
			task: task.Task{Deadline: at(3 * time.Hour), EstimateDurationHour: task.Hours(3)},
			want: 100,
		},
		{
			name: "start-by beyond window",
			task: task.Task{Deadline: at(40 * day), EstimateDurationHour: task.Hours(24)},
			want: 0,
		},
		{
			name: "start-by exactly at window edge",
			task: task.Task{Deadline: at(30*day + 2*time.Hour), EstimateDurationHour: task.Hours(2)},
			want: 0,
		},
		{
			name: "halfway through window",
			task: task.Task{Deadline: at(15*day + 4*time.Hour), EstimateDurationHour: task.Hours(4)},
			want: 50,
		},
		{
			name:   "short window",
			task:   task.Task{Deadline: at(30 * time.Hour), EstimateDurationHour: task.Hours(6)},
			window: 2,
			want:   50,
		},
		{
			name:   "window clamped to one day",
			task:   task.Task{Deadline: at(13 * time.Hour), EstimateDurationHour: task.Hours(1)},
			window: -5,
			want:   50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			window := tt.window
			if window == 0 {
				window = DefaultWindowDays
			}
			got, err := Score(tt.task, window, now)
			if err != nil {
				t.Fatalf("Score error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Score = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScore_MissingDuration(t *testing.T) {
	for _, est := range []*float64{nil, task.Hours(0), task.Hours(-1)} {
		tk := task.Task{ID: 4, Deadline: at(day), EstimateDurationHour: est}
		_, err := Score(tk, DefaultWindowDays, now)
		if !errors.Is(err, errors.ErrMissingDuration) {
			t.Errorf("Score with estimate %v error = %v, want MISSING_DURATION", est, err)
		}
	}
}

func TestWindowDays(t *testing.T) {
	for in, want := range map[int]int{
		math.MinInt:       1,
		-3:                1,
		0:                 1,
		1:                 1,
		30:                30,
		MaxWindowDays:     MaxWindowDays,
		MaxWindowDays + 1: MaxWindowDays,
		math.MaxInt:       MaxWindowDays,
	} {
		if got := WindowDays(in); got != want {
			t.Errorf("WindowDays(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestScore_HugeWindowDoesNotOverflow(t *testing.T) {
	tk := task.Task{Deadline: at(10 * day), EstimateDurationHour: task.Hours(5)}
	huge, err := Score(tk, math.MaxInt, now)
	if err != nil {
		t.Fatalf("Score error = %v", err)
	}
	capped, _ := Score(tk, MaxWindowDays, now)
	if huge != capped {
		t.Errorf("Score(MaxInt window) = %d, want %d as for the capped window", huge, capped)
	}
	if huge < 90 {
		t.Errorf("Score with a huge window = %d, want near 100", huge)
	}
}

func TestScore_BoundsAndMonotonicity(t *testing.T) {
	prev := -1
	// Walk the deadline from far away to the past; urgency must never drop.
	for h := 60 * 24; h >= -24; h -= 7 {
		tk := task.Task{Deadline: at(time.Duration(h) * time.Hour), EstimateDurationHour: task.Hours(5)}
		got, err := Score(tk, 20, now)
		if err != nil {
			t.Fatalf("Score error = %v", err)
		}
		if got < 0 || got > 100 {
			t.Fatalf("Score out of bounds: %d", got)
		}
		if got < prev {
			t.Fatalf("urgency dropped from %d to %d as the deadline moved closer (%dh)", prev, got, h)
		}
		prev = got
	}
	if prev != 100 {
		t.Errorf("final urgency = %d, want 100", prev)
	}
}

func TestScorer_TaskUrgency(t *testing.T) {
	s := store.NewMemoryStore(
		task.Task{ID: 1, Deadline: at(-day), EstimateDurationHour: task.Hours(1)},
	)
	scorer := NewScorer(s, WithClock(func() time.Time { return now }))

	got, err := scorer.TaskUrgency(context.Background(), 1, DefaultWindowDays)
	if err != nil {
		t.Fatalf("TaskUrgency error = %v", err)
	}
	if got != 100 {
		t.Errorf("TaskUrgency = %d, want 100", got)
	}

	if _, err := scorer.TaskUrgency(context.Background(), 2, DefaultWindowDays); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("TaskUrgency(2) error = %v, want NOT_FOUND", err)
	}
}

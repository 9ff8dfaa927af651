package errors

import (
	"errors"
	"fmt"
	"testing"
)

// -----------------------------------------------------------------------------
// Severity Tests
// -----------------------------------------------------------------------------

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// SchedulingError Tests
// -----------------------------------------------------------------------------

func TestSchedulingError_MatchesSentinel(t *testing.T) {
	tests := []struct {
		code     Code
		sentinel error
	}{
		{CodeNotFound, ErrNotFound},
		{CodeMissingDuration, ErrMissingDuration},
		{CodeOverdue, ErrOverdue},
		{CodeNotADag, ErrNotADag},
		{CodeParentUnresolved, ErrParentUnresolved},
		{CodeChildUnresolved, ErrChildUnresolved},
		{CodeCycleDetected, ErrCycleDetected},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := NewSchedulingError(tt.code, "boom")
			if !Is(err, tt.sentinel) {
				t.Errorf("errors.Is(%s, sentinel) = false, want true", tt.code)
			}
			if Is(err, ErrInvalidInput) {
				t.Error("scheduling error should not match ErrInvalidInput")
			}
			wrapped := fmt.Errorf("outer: %w", err)
			if CodeOf(wrapped) != tt.code {
				t.Errorf("CodeOf(wrapped) = %q, want %q", CodeOf(wrapped), tt.code)
			}
		})
	}
}

func TestSchedulingError_IsComparesCode(t *testing.T) {
	a := NewSchedulingError(CodeOverdue, "a").WithTaskID(1)
	b := NewSchedulingError(CodeOverdue, "b")
	c := NewSchedulingError(CodeNotADag, "c")

	if !errors.Is(a, b) {
		t.Error("errors with the same code should match")
	}
	if errors.Is(a, c) {
		t.Error("errors with different codes should not match")
	}
}

func TestSchedulingError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *SchedulingError
		want string
	}{
		{
			name: "without task",
			err:  NewSchedulingError(CodeNotADag, "cycle among 3 tasks"),
			want: "NOT_A_DAG: cycle among 3 tasks",
		},
		{
			name: "with task",
			err:  MissingDuration(42),
			want: "MISSING_DURATION [task=42]: non-completed task requires a positive estimate",
		},
		{
			name: "with cause",
			err:  NotFound(5).WithCause(New("row missing")),
			want: "NOT_FOUND [task=5]: task does not exist: row missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSchedulingError_Severity(t *testing.T) {
	if got := NewSchedulingError(CodeParentUnresolved, "x").Severity(); got != SeverityCritical {
		t.Errorf("PARENT_UNRESOLVED severity = %v, want critical", got)
	}
	if IsUserFacing(NewSchedulingError(CodeChildUnresolved, "x")) {
		t.Error("CHILD_UNRESOLVED should not be user facing")
	}
	if !IsUserFacing(NotFound(1)) {
		t.Error("NOT_FOUND should be user facing")
	}
}

func TestTaskIDOf(t *testing.T) {
	id, ok := TaskIDOf(Wrap(NotFound(9), "load"))
	if !ok || id != 9 {
		t.Errorf("TaskIDOf() = (%d, %v), want (9, true)", id, ok)
	}
	if _, ok := TaskIDOf(New("plain")); ok {
		t.Error("TaskIDOf(plain error) should report false")
	}
	if CodeOf(New("plain")) != "" {
		t.Error("CodeOf(plain error) should be empty")
	}
}

// -----------------------------------------------------------------------------
// Semantic Error Tests
// -----------------------------------------------------------------------------

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("snapshot", "tasks.yaml")
	if got, want := err.Error(), "snapshot 'tasks.yaml' not found"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	var target *NotFoundError
	if !errors.As(fmt.Errorf("wrap: %w", err), &target) {
		t.Fatal("errors.As should find NotFoundError")
	}
	if target.ResourceID != "tasks.yaml" {
		t.Errorf("ResourceID = %q, want %q", target.ResourceID, "tasks.yaml")
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("out of range").WithField("completeness").WithValue(140)

	want := "validation error [field=completeness, value=140]: out of range"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("ValidationError should match ErrInvalidInput")
	}
	if GetSeverity(err) != SeverityWarning {
		t.Errorf("GetSeverity() = %v, want warning", GetSeverity(err))
	}
}

func TestGetSeverity_Unknown(t *testing.T) {
	if GetSeverity(nil) != SeverityDebug {
		t.Error("GetSeverity(nil) should be debug")
	}
	if GetSeverity(New("plain")) != SeverityError {
		t.Error("GetSeverity(plain) should be error")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "x") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	err := Wrapf(ErrOverdue, "task %d", 3)
	if !errors.Is(err, ErrOverdue) {
		t.Error("Wrapf should preserve the chain")
	}
	if err.Error() != "task 3: task overdue" {
		t.Errorf("Wrapf() = %q", err.Error())
	}
}

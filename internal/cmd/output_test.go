package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/tempo/internal/errors"
	"github.com/charmbracelet/lipgloss"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxWidth int
		want     string
	}{
		{"short string unchanged", "hello", 10, "hello"},
		{"exact width unchanged", "hello", 5, "hello"},
		{"truncated with ellipsis", "hello world", 8, "hello..."},
		{"tiny width", "hello", 3, "..."},
		{"wide characters", "日本語のタスク", 7, "日本..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.input, tt.maxWidth)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxWidth, got, tt.want)
			}
			if w := lipgloss.Width(got); w > max(tt.maxWidth, 3) {
				t.Errorf("width %d exceeds %d", w, tt.maxWidth)
			}
		})
	}
}

func TestFormatting(t *testing.T) {
	if got := formatHours(1.5); got != "1.5h" {
		t.Errorf("formatHours(1.5) = %q", got)
	}
	if got := formatOptionalHours(nil); got != "-" {
		t.Errorf("formatOptionalHours(nil) = %q", got)
	}
	ts := time.Date(2025, 6, 1, 17, 30, 0, 0, time.UTC)
	if got := formatOptionalTime(&ts); got != "2025-06-01 17:30" {
		t.Errorf("formatOptionalTime = %q", got)
	}
	if got := percentBar(40); !strings.HasSuffix(got, " 40%") {
		t.Errorf("percentBar(40) = %q", got)
	}
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	renderTable(&buf, []string{"ID", "Title"}, [][]string{{"1", "release"}, {"2", "api"}})
	out := buf.String()
	for _, want := range []string{"ID", "Title", "release", "api"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in      string
		wantNil bool
		wantErr bool
	}{
		{in: "", wantNil: true},
		{in: "2025-06-01"},
		{in: "2025-06-01 17:00"},
		{in: "2025-06-01T17:00"},
		{in: "2025-06-01T17:00:00Z"},
		{in: "June 1st", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseTime("deadline", tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseTime(%q) error = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && (got == nil) != tt.wantNil {
			t.Errorf("parseTime(%q) = %v", tt.in, got)
		}
	}
}

func TestErrorReport(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     string
		severity string
		hint     bool
	}{
		{"scheduling", errors.MissingDuration(3), "MISSING_DURATION", "error", false},
		{"internal inconsistency", errors.NewSchedulingError(errors.CodeParentUnresolved, "no finish").WithTaskID(2), "PARENT_UNRESOLVED", "critical", true},
		{"validation", errors.NewValidationError("bad"), "INVALID_INPUT", "warning", false},
		{"transition", errors.Wrap(errors.ErrInvalidTransition, "task 1"), "INVALID_TRANSITION", "error", false},
		{"missing file", errors.NewNotFoundError("snapshot", "x.yaml"), "NOT_FOUND", "warning", false},
		{"plain", errors.New("unknown flag: --nope"), "ERROR", "error", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newErrorReport(tt.err)
			if r.Code != tt.code || r.Severity != tt.severity || r.Message != tt.err.Error() {
				t.Errorf("report = %+v, want code %s severity %s", r, tt.code, tt.severity)
			}
			hasHint := strings.Contains(renderError(tt.err), "inconsistent")
			if hasHint != tt.hint {
				t.Errorf("renderError hint = %v, want %v", hasHint, tt.hint)
			}
		})
	}
}

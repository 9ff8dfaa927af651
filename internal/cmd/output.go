package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/Iron-Ham/tempo/internal/errors"
	"github.com/Iron-Ham/tempo/internal/task"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/ansi"
)

var (
	primaryColor   = lipgloss.Color("#A78BFA") // Purple
	secondaryColor = lipgloss.Color("#10B981") // Green
	warningColor   = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#F87171") // Red
	mutedColor     = lipgloss.Color("#9CA3AF") // Gray
	borderColor    = lipgloss.Color("#6B7280")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(mutedColor)
	okStyle     = lipgloss.NewStyle().Foreground(secondaryColor)
	warnStyle   = lipgloss.NewStyle().Foreground(warningColor)
	errStyle    = lipgloss.NewStyle().Foreground(errorColor)
)

// statusStyle colors a task status the way the task list shows it.
func statusStyle(s task.Status) lipgloss.Style {
	switch s {
	case task.StatusCompleted:
		return okStyle
	case task.StatusOverdue:
		return errStyle
	case task.StatusInProgress:
		return warnStyle
	default:
		return mutedStyle
	}
}

// renderTable draws rows under headers with a rounded border.
func renderTable(w io.Writer, headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(borderColor)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.String())
}

// maxTitleWidth caps the title column of task tables.
const maxTitleWidth = 40

// truncate shortens s to maxWidth terminal columns, ending in "...". It is
// safe on styled strings and wide characters.
func truncate(s string, maxWidth int) string {
	if maxWidth <= 3 {
		return "..."
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	return ansi.Truncate(s, maxWidth, "...")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatHours(h float64) string {
	return strconv.FormatFloat(h, 'f', -1, 64) + "h"
}

func formatOptionalHours(h *float64) string {
	if h == nil {
		return "-"
	}
	return formatHours(*h)
}

func formatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04")
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}

// percentBar renders pct as a ten-cell bar followed by the number.
func percentBar(pct int) string {
	filled := pct / 10
	bar := okStyle.Render(strings.Repeat("█", filled)) + mutedStyle.Render(strings.Repeat("░", 10-filled))
	return fmt.Sprintf("%s %3d%%", bar, pct)
}

// errorReport is the --json form of a failed command.
type errorReport struct {
	Code     string `json:"code"`
	TaskID   *int64 `json:"task_id,omitempty"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

func newErrorReport(err error) errorReport {
	r := errorReport{
		Code:     errorCode(err),
		Message:  err.Error(),
		Severity: errors.GetSeverity(err).String(),
	}
	if id, ok := errors.TaskIDOf(err); ok {
		r.TaskID = &id
	}
	return r
}

// errorCode maps err to a stable machine-readable code. Scheduling errors
// keep their own code.
func errorCode(err error) string {
	if code := errors.CodeOf(err); code != "" {
		return string(code)
	}
	var nf *errors.NotFoundError
	switch {
	case errors.Is(err, errors.ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, errors.ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.As(err, &nf):
		return "NOT_FOUND"
	}
	return "ERROR"
}

// renderError formats err for the terminal.
func renderError(err error) string {
	msg := errStyle.Render("Error: " + err.Error())
	if errors.CodeOf(err) != "" && !errors.IsUserFacing(err) {
		msg += "\n" + mutedStyle.Render("The task graph is inconsistent; check parent and child links with \"tempo show\".")
	}
	return msg
}

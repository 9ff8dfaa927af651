package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/tempo/internal/errors"
	"github.com/Iron-Ham/tempo/internal/store"
	"github.com/Iron-Ham/tempo/internal/task"
	"github.com/spf13/viper"
)

var now = time.Date(2025, 5, 5, 8, 0, 0, 0, time.UTC)

func ptr(id int64) *int64 { return &id }

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func fixture() []task.Task {
	return []task.Task{
		{ID: 1, Title: "release", EstimateDurationHour: task.Hours(2), Deadline: at(12 * time.Hour)},
		{ID: 2, Title: "api", ParentID: ptr(1), EstimateDurationHour: task.Hours(3), Deadline: at(5 * time.Hour), Tags: []string{"work/dev"}},
		{ID: 3, Title: "docs", ParentID: ptr(1), EstimateDurationHour: task.Hours(1), Deadline: at(8 * time.Hour), Tags: []string{"work/docs"}},
		{ID: 4, Title: "handler", ParentID: ptr(2), EstimateDurationHour: task.Hours(1), Completeness: 50},
		{ID: 5, Title: "groceries", EstimateDurationHour: task.Hours(2), Deadline: at(-time.Hour), Tags: []string{"home"}},
		{ID: 6, Title: "rotate keys", EstimateDurationHour: task.Hours(1), Tags: []string{"work/ops"}},
	}
}

// setupTestEnvironment isolates config and data directories and writes the
// fixture snapshot. It returns the snapshot path.
func setupTestEnvironment(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))

	path := filepath.Join(dir, "tasks.yaml")
	if err := store.SaveSnapshot(path, fixture()); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	return path
}

// executeCommand runs a fresh root command with args and returns captured
// stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	a := &app{v: viper.New(), now: func() time.Time { return now }}
	root := newRootCmd(a)

	var out, stderr bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func decode[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("invalid JSON output %q: %v", s, err)
	}
	return v
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd(newApp())
	if root.Use != "tempo" {
		t.Errorf("root.Use = %q, want %q", root.Use, "tempo")
	}

	expectedCmds := []string{
		"list", "show", "completeness", "progress", "urgency", "schedule", "critical-path", "plan",
		"add", "start", "complete", "reopen", "set-completeness", "refresh-overdue", "link", "unlink", "delete",
		"config",
	}
	cmdMap := make(map[string]bool)
	for _, c := range root.Commands() {
		cmdMap[c.Name()] = true
	}
	for _, expected := range expectedCmds {
		if !cmdMap[expected] {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}
}

func TestQueryCommands_JSON(t *testing.T) {
	path := setupTestEnvironment(t)

	t.Run("completeness", func(t *testing.T) {
		out, err := executeCommand(t, "--data", path, "--json", "completeness", "1")
		if err != nil {
			t.Fatalf("completeness error = %v", err)
		}
		got := decode[map[string]int](t, out)
		if got["completeness"] != 25 {
			t.Errorf("completeness = %v, want 25", got)
		}
	})

	t.Run("urgency", func(t *testing.T) {
		out, err := executeCommand(t, "--data", path, "--json", "urgency", "5")
		if err != nil {
			t.Fatalf("urgency error = %v", err)
		}
		got := decode[map[string]int](t, out)
		if got["urgency"] != 100 || got["window_days"] != 30 {
			t.Errorf("urgency output = %v", got)
		}
	})

	t.Run("schedule", func(t *testing.T) {
		out, err := executeCommand(t, "--data", path, "--json", "schedule", "4")
		if err != nil {
			t.Fatalf("schedule error = %v", err)
		}
		rows := decode[[]scheduleRow](t, out)
		if len(rows) != 4 {
			t.Fatalf("schedule rows = %d, want 4", len(rows))
		}
		if rows[2].TaskID != 3 || rows[2].SlackHours != 5 || rows[2].IsCritical {
			t.Errorf("row for task 3 = %+v", rows[2])
		}
		if !rows[0].EarliestStart.Equal(now) {
			t.Errorf("root starts at %v, want %v", rows[0].EarliestStart, now)
		}
	})

	t.Run("critical path", func(t *testing.T) {
		out, err := executeCommand(t, "--data", path, "--json", "critical-path", "3")
		if err != nil {
			t.Fatalf("critical-path error = %v", err)
		}
		got := decode[struct {
			Path []int64 `json:"critical_path"`
		}](t, out)
		if !slices.Equal(got.Path, []int64{1, 2, 4}) {
			t.Errorf("critical path = %v, want [1 2 4]", got.Path)
		}
	})

	t.Run("plan with tag", func(t *testing.T) {
		out, err := executeCommand(t, "--data", path, "--json", "plan", "--capacity", "10", "--tag", "work/*")
		if err != nil {
			t.Fatalf("plan error = %v", err)
		}
		got := decode[struct {
			Allocations []struct {
				TaskID int64 `json:"task_id"`
			} `json:"allocations"`
		}](t, out)
		var ids []int64
		for _, al := range got.Allocations {
			ids = append(ids, al.TaskID)
		}
		if !slices.Equal(ids, []int64{2, 3, 6}) {
			t.Errorf("planned tasks = %v, want [2 3 6]", ids)
		}
	})
}

func TestQueryCommands_Errors(t *testing.T) {
	path := setupTestEnvironment(t)

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"bad id", []string{"completeness", "abc"}, errors.ErrInvalidInput},
		{"unknown task", []string{"show", "99"}, errors.ErrNotFound},
		{"overdue project", []string{"schedule", "5"}, errors.ErrOverdue},
		{"cycle", []string{"link", "1", "4"}, errors.ErrCycleDetected},
		{"derived completeness", []string{"set-completeness", "2", "40"}, errors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCommand(t, append([]string{"--data", path}, tt.args...)...)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRun_ReportsErrors(t *testing.T) {
	path := setupTestEnvironment(t)

	runArgs := func(args ...string) (int, string, string) {
		var stdout, stderr bytes.Buffer
		a := &app{v: viper.New(), now: func() time.Time { return now }}
		code := run(context.Background(), a, append([]string{"--data", path}, args...), &stdout, &stderr)
		return code, stdout.String(), stderr.String()
	}

	t.Run("json envelope carries code and task", func(t *testing.T) {
		code, out, _ := runArgs("--json", "show", "99")
		if code != 1 {
			t.Fatalf("exit code = %d, want 1", code)
		}
		got := decode[errorReport](t, out)
		if got.Code != "NOT_FOUND" || got.TaskID == nil || *got.TaskID != 99 || got.Severity != "error" {
			t.Errorf("report = %+v", got)
		}
	})

	t.Run("json envelope for invalid input", func(t *testing.T) {
		_, out, _ := runArgs("--json", "completeness", "abc")
		got := decode[errorReport](t, out)
		if got.Code != "INVALID_INPUT" || got.TaskID != nil || got.Severity != "warning" {
			t.Errorf("report = %+v", got)
		}
	})

	t.Run("human error goes to stderr", func(t *testing.T) {
		code, out, errOut := runArgs("schedule", "5")
		if code != 1 || out != "" {
			t.Fatalf("exit code = %d, stdout = %q", code, out)
		}
		if !strings.Contains(errOut, "Error: OVERDUE [task=5]") {
			t.Errorf("stderr = %q", errOut)
		}
	})

	t.Run("success exits zero", func(t *testing.T) {
		if code, _, _ := runArgs("--json", "completeness", "1"); code != 0 {
			t.Errorf("exit code = %d, want 0", code)
		}
	})
}

func TestHumanOutput(t *testing.T) {
	path := setupTestEnvironment(t)

	out, err := executeCommand(t, "--data", path, "show", "4")
	if err != nil {
		t.Fatalf("show error = %v", err)
	}
	for _, want := range []string{"#4 handler", "Completeness:", "50%", "Parent:       2"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}

	out, err = executeCommand(t, "--data", path, "list")
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	for _, want := range []string{"release", "rotate keys", "work/ops"} {
		if !strings.Contains(out, want) {
			t.Errorf("list output missing %q:\n%s", want, out)
		}
	}
}

func TestTaskCommands_Persist(t *testing.T) {
	path := setupTestEnvironment(t)

	out, err := executeCommand(t, "--data", path, "--json", "add", "write tests", "-e", "2", "--parent", "3", "-t", "work/dev")
	if err != nil {
		t.Fatalf("add error = %v", err)
	}
	added := decode[task.Task](t, out)
	if added.ID != 7 {
		t.Errorf("added id = %d, want 7", added.ID)
	}

	if _, err := executeCommand(t, "--data", path, "complete", "4", "--actual", "1.5"); err != nil {
		t.Fatalf("complete error = %v", err)
	}
	if _, err := executeCommand(t, "--data", path, "refresh-overdue"); err != nil {
		t.Fatalf("refresh-overdue error = %v", err)
	}

	tasks, err := store.LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	byID := make(map[int64]task.Task, len(tasks))
	for _, tk := range tasks {
		byID[tk.ID] = tk
	}
	if tk := byID[7]; tk.ParentID == nil || *tk.ParentID != 3 || tk.Title != "write tests" {
		t.Errorf("added task = %+v", tk)
	}
	task3 := byID[3]
	if !task3.HasChild(7) {
		t.Errorf("task 3 children = %v, want 7", byID[3].ChildIDs)
	}
	task4 := byID[4]
	if !task4.IsCompleted() || byID[4].CompletedAt == nil || !byID[4].CompletedAt.Equal(now) {
		t.Errorf("task 4 = %+v, want completed at %v", byID[4], now)
	}
	if byID[5].Status != task.StatusOverdue {
		t.Errorf("task 5 status = %q, want overdue", byID[5].Status)
	}
}

func TestSQLiteDriver(t *testing.T) {
	setupTestEnvironment(t)
	db := filepath.Join(t.TempDir(), "nested", "tasks.db")

	if _, err := executeCommand(t, "--driver", "sqlite", "--data", db, "add", "first", "-e", "1"); err != nil {
		t.Fatalf("add error = %v", err)
	}
	out, err := executeCommand(t, "--driver", "sqlite", "--data", db, "--json", "list")
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	tasks := decode[[]task.Task](t, out)
	if len(tasks) != 1 || tasks[0].Title != "first" {
		t.Errorf("tasks = %+v", tasks)
	}
}

func TestExplicitZeroFlags(t *testing.T) {
	path := setupTestEnvironment(t)

	t.Run("plan with zero capacity", func(t *testing.T) {
		out, err := executeCommand(t, "--data", path, "--json", "plan", "--capacity", "0")
		if err != nil {
			t.Fatalf("plan error = %v", err)
		}
		got := decode[struct {
			Allocations   []map[string]any `json:"allocations"`
			CapacityUnits int              `json:"capacity_units"`
		}](t, out)
		if got.CapacityUnits != 0 || len(got.Allocations) != 0 {
			t.Errorf("plan = %+v, want nothing allocated", got)
		}
	})

	t.Run("urgency with zero window clamps to one day", func(t *testing.T) {
		out, err := executeCommand(t, "--data", path, "--json", "urgency", "3", "--window", "0")
		if err != nil {
			t.Fatalf("urgency error = %v", err)
		}
		got := decode[map[string]int](t, out)
		// docs must start in 7h, so 17 of the 24 window hours are gone.
		if got["urgency"] != 71 || got["window_days"] != 1 {
			t.Errorf("urgency output = %v, want 71 with a 1-day window", got)
		}
	})
}

func TestEnvOverride(t *testing.T) {
	path := setupTestEnvironment(t)
	t.Setenv("TEMPO_SCHEDULING_CAPACITY_HOURS", "1")

	out, err := executeCommand(t, "--data", path, "--json", "plan", "6")
	if err != nil {
		t.Fatalf("plan error = %v", err)
	}
	got := decode[struct {
		CapacityUnits int `json:"capacity_units"`
	}](t, out)
	if got.CapacityUnits != 2 {
		t.Errorf("capacity units = %d, want 2 (1h at 0.5h units)", got.CapacityUnits)
	}
}

func TestConfigCommands(t *testing.T) {
	setupTestEnvironment(t)

	if _, err := executeCommand(t, "config", "set", "scheduling.capacity_hours", "6"); err != nil {
		t.Fatalf("config set error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "tempo", "config.yaml")); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	out, err := executeCommand(t, "--json", "config", "show")
	if err != nil {
		t.Fatalf("config show error = %v", err)
	}
	got := decode[map[string]map[string]any](t, out)
	if got["scheduling"]["capacity_hours"] != float64(6) {
		t.Errorf("capacity_hours = %v, want 6", got["scheduling"]["capacity_hours"])
	}

	tests := []struct {
		name string
		args []string
	}{
		{"unknown key", []string{"config", "set", "storage.colour", "x"}},
		{"bad type", []string{"config", "set", "scheduling.capacity_hours", "lots"}},
		{"fails validation", []string{"config", "set", "storage.driver", "postgres"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := executeCommand(t, tt.args...); err == nil {
				t.Error("expected an error")
			}
		})
	}

	if _, err := executeCommand(t, "config", "init"); err == nil {
		t.Error("config init should refuse to overwrite an existing file")
	}
}

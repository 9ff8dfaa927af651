package cmd

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Iron-Ham/tempo/internal/cpm"
	"github.com/Iron-Ham/tempo/internal/engine"
	"github.com/Iron-Ham/tempo/internal/errors"
	"github.com/Iron-Ham/tempo/internal/task"
	"github.com/Iron-Ham/tempo/internal/urgency"
	"github.com/spf13/cobra"
)

func registerQueryCmds(root *cobra.Command, a *app) {
	root.AddCommand(
		newListCmd(a),
		newShowCmd(a),
		newCompletenessCmd(a),
		newProgressCmd(a),
		newUrgencyCmd(a),
		newScheduleCmd(a),
		newCriticalPathCmd(a),
		newPlanCmd(a),
	)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewValidationError("task id must be a positive integer").WithField("id").WithValue(s)
	}
	return id, nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			id, err := parseID(part)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				tasks, err := e.Tasks(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if a.jsonOut {
					return writeJSON(out, tasks)
				}
				if len(tasks) == 0 {
					fmt.Fprintln(out, mutedStyle.Render("No tasks"))
					return nil
				}

				rows := make([][]string, 0, len(tasks))
				for _, t := range tasks {
					parent := "-"
					if t.ParentID != nil {
						parent = strconv.FormatInt(*t.ParentID, 10)
					}
					rows = append(rows, []string{
						strconv.FormatInt(t.ID, 10),
						truncate(t.Title, maxTitleWidth),
						statusStyle(t.Status).Render(t.Status.String()),
						parent,
						formatOptionalHours(t.EstimateDurationHour),
						formatOptionalTime(t.Deadline),
						strings.Join(t.Tags, ","),
					})
				}
				renderTable(out, []string{"ID", "Title", "Status", "Parent", "Estimate", "Deadline", "Tags"}, rows)
				return nil
			})
		},
	}
}

// taskDetail is the show output.
type taskDetail struct {
	task.Task
	DerivedCompleteness int  `json:"derived_completeness"`
	Urgency             *int `json:"urgency,omitempty"`
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task with its derived completeness and urgency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				t, err := e.Task(ctx, id)
				if err != nil {
					return err
				}
				pct, err := e.Completeness(ctx, id)
				if err != nil {
					return err
				}
				detail := taskDetail{Task: t, DerivedCompleteness: pct}
				// a missing estimate only hides the urgency line
				if u, err := e.Urgency(ctx, id); err == nil {
					detail.Urgency = &u
				}

				out := cmd.OutOrStdout()
				if a.jsonOut {
					return writeJSON(out, detail)
				}

				fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("#%d %s", t.ID, t.Title)))
				if t.Description != "" {
					fmt.Fprintln(out, mutedStyle.Render(t.Description))
				}
				fmt.Fprintln(out)
				fmt.Fprintf(out, "Status:       %s\n", statusStyle(t.Status).Render(t.Status.String()))
				fmt.Fprintf(out, "Priority:     %d\n", t.Priority)
				fmt.Fprintf(out, "Estimate:     %s\n", formatOptionalHours(t.EstimateDurationHour))
				if t.ActualDurationHour != nil {
					fmt.Fprintf(out, "Actual:       %s\n", formatOptionalHours(t.ActualDurationHour))
				}
				fmt.Fprintf(out, "Start:        %s\n", formatOptionalTime(t.StartDate))
				fmt.Fprintf(out, "Deadline:     %s\n", formatOptionalTime(t.Deadline))
				if t.CompletedAt != nil {
					fmt.Fprintf(out, "Completed at: %s\n", formatOptionalTime(t.CompletedAt))
				}
				fmt.Fprintf(out, "Completeness: %s\n", percentBar(pct))
				if detail.Urgency != nil {
					fmt.Fprintf(out, "Urgency:      %d\n", *detail.Urgency)
				}
				if t.ParentID != nil {
					fmt.Fprintf(out, "Parent:       %d\n", *t.ParentID)
				}
				if len(t.ChildIDs) > 0 {
					children := slices.Clone(t.ChildIDs)
					slices.Sort(children)
					fmt.Fprintf(out, "Children:     %s\n", joinIDs(children))
				}
				if len(t.Tags) > 0 {
					fmt.Fprintf(out, "Tags:         %s\n", strings.Join(t.Tags, ", "))
				}
				return nil
			})
		},
	}
}

func newCompletenessCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "completeness <id>",
		Short: "Show the effort-weighted completeness of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				pct, err := e.Completeness(ctx, id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if a.jsonOut {
					return writeJSON(out, map[string]any{"task_id": id, "completeness": pct})
				}
				fmt.Fprintln(out, percentBar(pct))
				return nil
			})
		},
	}
}

func newProgressCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "progress <id>",
		Short: "Show completeness with the effort behind it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				sum, err := e.Progress(ctx, id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if a.jsonOut {
					return writeJSON(out, sum)
				}
				fmt.Fprintln(out, percentBar(sum.Percent))
				fmt.Fprintf(out, "%s of %s done, %d/%d leaves completed\n",
					formatHours(sum.DoneHours), formatHours(sum.TotalHours), sum.Completed, sum.Leaves)
				return nil
			})
		},
	}
}

func newUrgencyCmd(a *app) *cobra.Command {
	var window int
	cmd := &cobra.Command{
		Use:   "urgency <id>",
		Short: "Show how urgent a task is (0-100)",
		Long: `Urgency is 100 once the latest start time (deadline minus estimate) has
passed and falls linearly to 0 when that start time is a full window away.
Completed tasks and tasks without a deadline score 0.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				days := e.Settings().UrgencyWindowDays
				if cmd.Flags().Changed("window") {
					days = window
				}
				days = urgency.WindowDays(days)
				u, err := e.UrgencyWithWindow(ctx, id, days)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if a.jsonOut {
					return writeJSON(out, map[string]any{"task_id": id, "urgency": u, "window_days": days})
				}
				style := mutedStyle
				switch {
				case u >= 80:
					style = errStyle
				case u >= 40:
					style = warnStyle
				}
				fmt.Fprintln(out, style.Render(strconv.Itoa(u)))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&window, "window", "w", 0, "look-ahead window in days (default from config)")
	return cmd
}

// scheduleRow is the JSON shape of one schedule entry.
type scheduleRow struct {
	TaskID        int64     `json:"task_id"`
	Title         string    `json:"title"`
	EarliestStart time.Time `json:"earliest_start"`
	EarlyFinish   time.Time `json:"early_finish"`
	LatestFinish  time.Time `json:"latest_finish"`
	SlackHours    float64   `json:"slack_hours"`
	IsCritical    bool      `json:"is_critical"`
}

func newScheduleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule <id>",
		Short: "Compute the critical-path schedule of the project containing a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				sched, err := e.ProjectSchedule(ctx, id)
				if err != nil {
					return err
				}
				rows, err := scheduleRows(ctx, e, sched)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if a.jsonOut {
					return writeJSON(out, rows)
				}
				table := make([][]string, 0, len(rows))
				for _, r := range rows {
					critical := ""
					if r.IsCritical {
						critical = errStyle.Render("●")
					}
					table = append(table, []string{
						strconv.FormatInt(r.TaskID, 10),
						truncate(r.Title, maxTitleWidth),
						formatTime(r.EarliestStart),
						formatTime(r.EarlyFinish),
						formatTime(r.LatestFinish),
						formatHours(r.SlackHours),
						critical,
					})
				}
				renderTable(out, []string{"ID", "Title", "Earliest start", "Early finish", "Latest finish", "Slack", "Critical"}, table)
				return nil
			})
		},
	}
}

func scheduleRows(ctx context.Context, e *engine.Engine, sched map[int64]cpm.Schedule) ([]scheduleRow, error) {
	ids := make([]int64, 0, len(sched))
	for id := range sched {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	rows := make([]scheduleRow, 0, len(ids))
	for _, id := range ids {
		t, err := e.Task(ctx, id)
		if err != nil {
			return nil, err
		}
		s := sched[id]
		rows = append(rows, scheduleRow{
			TaskID:        id,
			Title:         t.Title,
			EarliestStart: s.EarliestStart,
			EarlyFinish:   s.EarlyFinish,
			LatestFinish:  s.LatestFinish,
			SlackHours:    s.Slack.Hours(),
			IsCritical:    s.IsCritical,
		})
	}
	return rows, nil
}

func newCriticalPathCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "critical-path <id>",
		Short: "List the zero-slack tasks of the project containing a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				path, err := e.CriticalPath(ctx, id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if a.jsonOut {
					return writeJSON(out, map[string]any{"task_id": id, "critical_path": path})
				}
				if len(path) == 0 {
					fmt.Fprintln(out, mutedStyle.Render("No critical tasks"))
					return nil
				}
				for i, tid := range path {
					t, err := e.Task(ctx, tid)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%d. #%d %s\n", i+1, t.ID, t.Title)
				}
				return nil
			})
		},
	}
}

func newPlanCmd(a *app) *cobra.Command {
	var (
		capacityHours float64
		unitHours     float64
		tag           string
		leaves        bool
	)
	cmd := &cobra.Command{
		Use:   "plan [id...]",
		Short: "Pick the most valuable work that fits in the available hours",
		Long: `Plan allocates the capacity (default from config) across open tasks with
0/1 knapsack selection. Splittable tasks may be partly scheduled. Pass task
ids to limit the candidates, or --tag to filter them by a glob such as
"work/*".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return a.withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				req := engine.PlanRequest{TaskIDs: ids, TagPattern: tag, LeavesOnly: leaves}
				if cmd.Flags().Changed("capacity") {
					req.CapacityHours = &capacityHours
				}
				if cmd.Flags().Changed("unit") {
					req.TimeUnitHours = &unitHours
				}
				plan, err := e.Plan(ctx, req)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if a.jsonOut {
					return writeJSON(out, plan)
				}
				if len(plan.Allocations) == 0 {
					fmt.Fprintln(out, mutedStyle.Render("Nothing fits"))
					return nil
				}
				rows := make([][]string, 0, len(plan.Allocations))
				for _, al := range plan.Allocations {
					partial := ""
					if al.IsPartial {
						partial = warnStyle.Render("partial")
					}
					rows = append(rows, []string{
						strconv.FormatInt(al.TaskID, 10),
						truncate(al.Title, maxTitleWidth),
						formatHours(al.ScheduledHours),
						partial,
					})
				}
				renderTable(out, []string{"ID", "Title", "Scheduled", ""}, rows)
				used := float64(plan.UsedUnits) * plan.TimeUnit
				total := float64(plan.CapacityUnits) * plan.TimeUnit
				fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("%s of %s allocated", formatHours(used), formatHours(total))))
				return nil
			})
		},
	}
	cmd.Flags().Float64Var(&capacityHours, "capacity", 0, "hours available (default from config)")
	cmd.Flags().Float64Var(&unitHours, "unit", 0, "allocation granularity in hours (default from config)")
	cmd.Flags().StringVar(&tag, "tag", "", "only plan tasks with a tag matching this glob")
	cmd.Flags().BoolVar(&leaves, "leaves", false, "only plan tasks without subtasks")
	return cmd
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Iron-Ham/tempo/internal/engine"
	"github.com/Iron-Ham/tempo/internal/errors"
	"github.com/spf13/cobra"
)

func registerTaskCmds(root *cobra.Command, a *app) {
	root.AddCommand(
		newAddCmd(a),
		newStartCmd(a),
		newCompleteCmd(a),
		newReopenCmd(a),
		newSetCompletenessCmd(a),
		newRefreshOverdueCmd(a),
		newLinkCmd(a),
		newUnlinkCmd(a),
		newDeleteCmd(a),
	)
}

// timeLayouts are the accepted --deadline/--start formats, tried in order.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseTime(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return &t, nil
		}
	}
	return nil, errors.NewValidationError("expected a date like 2025-06-01 or 2025-06-01 17:00").
		WithField(field).WithValue(s)
}

func newAddCmd(a *app) *cobra.Command {
	var (
		description string
		priority    int
		estimate    float64
		deadline    string
		start       string
		splittable  bool
		tags        []string
		parent      int64
	)
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			due, err := parseTime("deadline", deadline)
			if err != nil {
				return err
			}
			startAt, err := parseTime("start", start)
			if err != nil {
				return err
			}
			nt := engine.NewTask{
				Title:         args[0],
				Description:   description,
				Priority:      priority,
				EstimateHours: estimate,
				Deadline:      due,
				StartDate:     startAt,
				IsSplittable:  splittable,
				Tags:          tags,
			}
			if parent > 0 {
				nt.ParentID = &parent
			}

			return a.withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				t, err := e.Add(ctx, nt)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if a.jsonOut {
					return writeJSON(out, t)
				}
				fmt.Fprintf(out, "Added task #%d: %s\n", t.ID, t.Title)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "task description")
	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "priority (higher is more valuable when planning)")
	cmd.Flags().Float64VarP(&estimate, "estimate", "e", 0, "estimated duration in hours")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline, e.g. 2025-06-01 or \"2025-06-01 17:00\"")
	cmd.Flags().StringVar(&start, "start", "", "earliest start date")
	cmd.Flags().BoolVar(&splittable, "splittable", false, "allow planning part of the task")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "tag (repeatable), e.g. work/dev")
	cmd.Flags().Int64Var(&parent, "parent", 0, "parent task id")
	return cmd
}

// newIDCmd builds a command that applies fn to a single task id.
func newIDCmd(a *app, use, short, done string, fn func(ctx context.Context, e *engine.Engine, id int64) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				if err := fn(ctx, e, id); err != nil {
					return err
				}
				return reportDone(cmd, a, id, done)
			})
		},
	}
}

func reportDone(cmd *cobra.Command, a *app, id int64, done string) error {
	out := cmd.OutOrStdout()
	if a.jsonOut {
		return writeJSON(out, map[string]any{"task_id": id, "result": done})
	}
	fmt.Fprintln(out, okStyle.Render(fmt.Sprintf("Task #%d %s", id, done)))
	return nil
}

func newStartCmd(a *app) *cobra.Command {
	return newIDCmd(a, "start", "Mark a task in progress", "started", func(ctx context.Context, e *engine.Engine, id int64) error {
		return e.Start(ctx, id)
	})
}

func newCompleteCmd(a *app) *cobra.Command {
	var actual float64
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Mark a task completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				if err := e.Complete(ctx, id, actual); err != nil {
					return err
				}
				return reportDone(cmd, a, id, "completed")
			})
		},
	}
	cmd.Flags().Float64Var(&actual, "actual", 0, "hours actually spent")
	return cmd
}

func newReopenCmd(a *app) *cobra.Command {
	return newIDCmd(a, "reopen", "Move a completed task back to in progress", "reopened", func(ctx context.Context, e *engine.Engine, id int64) error {
		return e.Reopen(ctx, id)
	})
}

func newSetCompletenessCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-completeness <id> <percent>",
		Short: "Record progress on a leaf task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			pct, err := strconv.Atoi(args[1])
			if err != nil {
				return errors.NewValidationError("percent must be an integer").WithField("percent").WithValue(args[1])
			}
			return a.withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				if err := e.SetCompleteness(ctx, id, pct); err != nil {
					return err
				}
				return reportDone(cmd, a, id, fmt.Sprintf("set to %d%%", pct))
			})
		},
	}
}

func newRefreshOverdueCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-overdue",
		Short: "Mark open tasks whose deadline has passed as overdue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				changed, err := e.RefreshOverdue(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if a.jsonOut {
					if changed == nil {
						changed = []int64{}
					}
					return writeJSON(out, map[string]any{"overdue": changed})
				}
				if len(changed) == 0 {
					fmt.Fprintln(out, mutedStyle.Render("No newly overdue tasks"))
					return nil
				}
				fmt.Fprintln(out, errStyle.Render(fmt.Sprintf("Overdue: %s", joinIDs(changed))))
				return nil
			})
		},
	}
}

func newLinkCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "link <child-id> <parent-id>",
		Short: "Make one task a subtask of another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			child, err := parseID(args[0])
			if err != nil {
				return err
			}
			parent, err := parseID(args[1])
			if err != nil {
				return err
			}
			return a.withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				if err := e.Link(ctx, child, parent); err != nil {
					return err
				}
				return reportDone(cmd, a, child, fmt.Sprintf("linked under #%d", parent))
			})
		},
	}
}

func newUnlinkCmd(a *app) *cobra.Command {
	return newIDCmd(a, "unlink", "Detach a task from its parent", "unlinked", func(ctx context.Context, e *engine.Engine, id int64) error {
		return e.Unlink(ctx, id)
	})
}

func newDeleteCmd(a *app) *cobra.Command {
	return newIDCmd(a, "delete", "Delete a task; its subtasks become top-level", "deleted", func(ctx context.Context, e *engine.Engine, id int64) error {
		return e.Delete(ctx, id)
	})
}

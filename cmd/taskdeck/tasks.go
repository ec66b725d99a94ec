package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/dori/taskdeck/internal/app"
	"github.com/dori/taskdeck/internal/board"
	"github.com/dori/taskdeck/internal/model"
	"github.com/dori/taskdeck/internal/session"
	"github.com/dori/taskdeck/internal/ui/theme"
)

var errNotLoggedIn = errors.New("not logged in, run: taskdeck login")

// openBoard opens the app and loads the board. The route guard runs first,
// so an expired session is cleared exactly as the TUI would.
func openBoard(cmd *cobra.Command, flags *globalFlags) (*app.App, board.Board, error) {
	a, err := openApp(cmd, flags)
	if err != nil {
		return nil, board.Board{}, err
	}

	if d := a.Guard.Check(session.RouteTasks); d.Route != session.RouteTasks {
		a.Close()
		if d.TornDown {
			return nil, board.Board{}, fmt.Errorf("%s, run: taskdeck login", d.Reason)
		}
		return nil, board.Board{}, errNotLoggedIn
	}

	b, err := a.Board.Load(context.Background())
	if err != nil {
		a.Close()
		if model.IsAuth(err) {
			return nil, board.Board{}, errNotLoggedIn
		}
		return nil, board.Board{}, err
	}
	return a, b, nil
}

// resolveTask finds a task by id or by a unique id prefix
func resolveTask(b board.Board, ref string) (model.Task, error) {
	if t, ok := b.Find(ref); ok {
		return t, nil
	}
	var matches []model.Task
	for _, t := range b.Tasks {
		if strings.HasPrefix(t.ID, ref) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		return model.Task{}, fmt.Errorf("no task with id %q", ref)
	case 1:
		return matches[0], nil
	default:
		return model.Task{}, fmt.Errorf("id %q matches %d tasks", ref, len(matches))
	}
}

func printBoard(b board.Board, now time.Time) {
	t := theme.Current.Theme
	styles := theme.Current.Styles

	for i, col := range b.Columns() {
		status := model.Statuses()[i]
		heading := lipgloss.NewStyle().Bold(true).Foreground(t.StatusColor(status))
		fmt.Println(heading.Render(fmt.Sprintf("%s (%d)", status.Label(), len(col))))
		for _, task := range col {
			due := model.FormatDue(task.DueDate, now)
			if task.IsOverdue(now) {
				due = styles.ErrorText.Render(due + " (overdue)")
			}
			fmt.Printf("  %-8s %s  %s\n", shortID(task.ID), task.Title, styles.Label.Render(due))
			if task.Description != "" {
				fmt.Printf("           %s\n", styles.Label.Render(task.Description))
			}
		}
		fmt.Println()
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func tasksCmd(flags *globalFlags) *cobra.Command {
	var statusFilter string
	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"ls"},
		Short:   "List your tasks by column",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, b, err := openBoard(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if statusFilter != "" {
				status, ok := model.ParseStatus(statusFilter)
				if !ok {
					return fmt.Errorf("unknown status %q", statusFilter)
				}
				b.Tasks = b.Column(status)
			}
			printBoard(b, time.Now())
			return nil
		},
	}
	cmd.Flags().StringVarP(&statusFilter, "status", "s", "", "Only show one column (pending, in-progress, completed)")
	return cmd
}

func addCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "add <task>",
		Short: "Quick add a task",
		Long: `Quick add a task. The due date is required.

  taskdeck add "Write tests due:friday"
  taskdeck add "Renew passport due:2025-10-01 -- bring two photos"

Due dates: today, tomorrow, monday..sunday, nextweek, +3d, 2025-10-01, 10/01/2025, Oct 1`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			draft, err := model.QuickAdd(strings.Join(args, " "), time.Now())
			if err != nil {
				return err
			}
			if err := draft.Validate(); err != nil {
				return err
			}

			a, _, err := openBoard(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.Board.Create(context.Background(), draft); err != nil {
				return err
			}
			fmt.Printf("Created: %s\n", draft.Title)
			fmt.Printf("Due: %s\n", model.FormatDue(draft.DueDate, time.Now()))
			return nil
		},
	}
}

func statusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <pending|in-progress|completed>",
		Short: "Move a task to another column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, ok := model.ParseStatus(args[1])
			if !ok {
				return fmt.Errorf("unknown status %q", args[1])
			}

			a, b, err := openBoard(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			task, err := resolveTask(b, args[0])
			if err != nil {
				return err
			}
			if _, err := a.Board.ChangeStatus(context.Background(), task.ID, status); err != nil {
				return err
			}
			fmt.Printf("%s → %s\n", task.Title, status.Label())
			return nil
		},
	}
}

func editCmd(flags *globalFlags) *cobra.Command {
	var title, description, due string
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a task's title, description or due date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, b, err := openBoard(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			task, err := resolveTask(b, args[0])
			if err != nil {
				return err
			}

			draft := model.DraftOf(task)
			if cmd.Flags().Changed("title") {
				draft.Title = title
			}
			if cmd.Flags().Changed("description") {
				draft.Description = description
			}
			if cmd.Flags().Changed("due") {
				d, err := model.ParseDue(due, time.Now())
				if err != nil {
					return &model.ValidationError{Field: "dueDate", Message: err.Error()}
				}
				draft.DueDate = d
			}

			if _, err := a.Board.UpdateFields(context.Background(), task.ID, draft); err != nil {
				return err
			}
			fmt.Printf("Updated: %s\n", draft.Normalized().Title)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().StringVar(&due, "due", "", "New due date")
	return cmd
}

func rmCmd(flags *globalFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, b, err := openBoard(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			task, err := resolveTask(b, args[0])
			if err != nil {
				return err
			}
			pending, err := a.Board.RequestDelete(task.ID)
			if err != nil {
				return err
			}

			if !yes {
				answer, err := prompt(fmt.Sprintf("Delete '%s'? [y/N]", task.Title), "")
				if err != nil {
					a.Board.CancelDelete(pending)
					return err
				}
				if reply := strings.ToLower(strings.TrimSpace(answer)); reply != "y" && reply != "yes" {
					a.Board.CancelDelete(pending)
					fmt.Println("Cancelled")
					return nil
				}
			}

			if _, err := a.Board.ConfirmDelete(context.Background(), pending); err != nil {
				return err
			}
			fmt.Printf("Deleted: %s\n", task.Title)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Delete without asking")
	return cmd
}

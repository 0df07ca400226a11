package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mschirtzinger/tsync/internal/duedate"
	"github.com/mschirtzinger/tsync/internal/query"
	"github.com/mschirtzinger/tsync/internal/schema"
)

var tasksCmd = &cobra.Command{
	Use:     "tasks <list-id>",
	GroupID: "tasks",
	Short:   "Show the tasks of a list",
	Long: `Show the active tasks of a list, optionally filtered and sorted.

Examples:
  tsync tasks srv-1
  tsync tasks srv-1 --status todo --tag home
  tsync tasks srv-1 --sort dueDate
  tsync tasks srv-1 --sort priority --desc
  tsync tasks srv-1 --overdue`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		tag, _ := cmd.Flags().GetString("tag")
		sortBy, _ := cmd.Flags().GetString("sort")
		desc, _ := cmd.Flags().GetBool("desc")
		overdue, _ := cmd.Flags().GetBool("overdue")

		field, ok := query.ParseSortField(sortBy)
		if !ok {
			return fmt.Errorf("invalid --sort %q (want title, priority, dueDate or createdAt)", sortBy)
		}
		if status != "" && status != "all" && !schema.Status(status).IsValid() {
			return fmt.Errorf("invalid --status %q (want todo, in-progress, done or all)", status)
		}

		return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
			items, err := fetchView(ctx, a, schema.CollectionTasks, args[0])
			if err != nil {
				return err
			}
			items = query.Apply(items, query.Options{
				Status:     schema.Status(status),
				Tag:        tag,
				SortBy:     field,
				Descending: desc,
			})
			if overdue {
				items = query.Overdue(items, time.Now())
			}
			return printItems(items, "No matching tasks.")
		})
	},
}

var addCmd = &cobra.Command{
	Use:     "add <list-id> [title]",
	GroupID: "tasks",
	Short:   "Add a task to a list",
	Long: `Add a task to a list. Without a title, and when run in a terminal, an
interactive form asks for the task details.

Due dates accept YYYY-MM-DD or phrases such as "tomorrow" or "next friday".

Examples:
  tsync add srv-1 buy milk --priority high --due tomorrow --tag shopping
  tsync add srv-1`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		listID := args[0]
		fields := schema.Fields{Title: strings.Join(args[1:], " ")}
		fields.Description, _ = cmd.Flags().GetString("desc")
		priority, _ := cmd.Flags().GetString("priority")
		fields.Priority = schema.Priority(priority)
		fields.Tags, _ = cmd.Flags().GetStringSlice("tag")
		due, _ := cmd.Flags().GetString("due")

		if fields.Title == "" {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return errors.New("a title is required")
			}
			var err error
			if due, err = promptTask(&fields, due); err != nil {
				return err
			}
		}

		var err error
		if fields.DueDate, err = duedate.Parse(due, time.Now()); err != nil {
			return err
		}

		return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
			task, err := a.engine.Create(ctx, schema.CollectionTasks, listID, fields)
			if err != nil {
				return err
			}
			return printCreated(task)
		})
	},
}

var updateCmd = &cobra.Command{
	Use:     "update <task-id>",
	GroupID: "tasks",
	Short:   "Change a task",
	Long: `Change the fields of a task. Only the flags given are changed.

Examples:
  tsync update srv-7 --status in-progress
  tsync update srv-7 --title "buy oat milk" --due none
  tsync update srv-7 --tag home --tag urgent`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
			task, err := a.engine.Get(ctx, schema.CollectionTasks, args[0])
			if err != nil {
				return err
			}
			if err := applyFlags(cmd, &task.Fields); err != nil {
				return err
			}
			updated, err := a.engine.Update(ctx, schema.CollectionTasks, task)
			if err != nil {
				return err
			}
			return printUpdated(updated)
		})
	},
}

var doneCmd = &cobra.Command{
	Use:     "done <task-id>...",
	GroupID: "tasks",
	Short:   "Mark tasks as done",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reopen, _ := cmd.Flags().GetBool("reopen")
		status := schema.StatusDone
		if reopen {
			status = schema.StatusTodo
		}

		return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
			for _, id := range args {
				task, err := a.engine.Get(ctx, schema.CollectionTasks, id)
				if err != nil {
					return err
				}
				task.Status = status
				updated, err := a.engine.Update(ctx, schema.CollectionTasks, task)
				if err != nil {
					return err
				}
				if err := printUpdated(updated); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <task-id>...",
	Aliases: []string{"delete"},
	GroupID: "tasks",
	Short:   "Delete tasks",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, appOptions{}, func(ctx context.Context, a *app) error {
			return deleteAll(ctx, a, schema.CollectionTasks, args)
		})
	},
}

func init() {
	tasksCmd.Flags().String("status", "", "Filter by status (todo, in-progress, done, all)")
	tasksCmd.Flags().String("tag", "", "Filter by tag")
	tasksCmd.Flags().String("sort", "", "Sort by title, priority, dueDate or createdAt")
	tasksCmd.Flags().Bool("desc", false, "Sort descending")
	tasksCmd.Flags().Bool("overdue", false, "Only open tasks due before today")

	addCmd.Flags().String("desc", "", "Task description")
	addCmd.Flags().StringP("priority", "p", "", "Priority (high, medium, low)")
	addCmd.Flags().String("due", "", "Due date (YYYY-MM-DD or a phrase like \"next friday\")")
	addCmd.Flags().StringSlice("tag", nil, "Tag (repeatable)")

	updateCmd.Flags().String("title", "", "New title")
	updateCmd.Flags().String("desc", "", "New description")
	updateCmd.Flags().StringP("priority", "p", "", "New priority")
	updateCmd.Flags().String("status", "", "New status (todo, in-progress, done)")
	updateCmd.Flags().String("due", "", "New due date; \"none\" clears it")
	updateCmd.Flags().StringSlice("tag", nil, "Replace the tags (repeatable)")

	doneCmd.Flags().Bool("reopen", false, "Mark as todo instead")

	rootCmd.AddCommand(tasksCmd, addCmd, updateCmd, doneCmd, rmCmd)
}

// applyFlags copies the flags the user set onto f.
func applyFlags(cmd *cobra.Command, f *schema.Fields) error {
	flags := cmd.Flags()
	if flags.Changed("title") {
		f.Title, _ = flags.GetString("title")
	}
	if flags.Changed("desc") {
		f.Description, _ = flags.GetString("desc")
	}
	if flags.Changed("priority") {
		p, _ := flags.GetString("priority")
		f.Priority = schema.Priority(p)
	}
	if flags.Changed("status") {
		s, _ := flags.GetString("status")
		f.Status = schema.Status(s)
	}
	if flags.Changed("tag") {
		f.Tags, _ = flags.GetStringSlice("tag")
	}
	if flags.Changed("due") {
		due, _ := flags.GetString("due")
		d, err := duedate.Parse(due, time.Now())
		if err != nil {
			return err
		}
		f.DueDate = d
	}
	return nil
}

// promptTask asks for the task fields interactively and returns the due
// date as typed.
func promptTask(f *schema.Fields, due string) (string, error) {
	if f.Priority == "" {
		f.Priority = schema.PriorityMedium
	}
	tags := strings.Join(f.Tags, ", ")

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Value(&f.Title).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("title is required")
					}
					return nil
				}),
			huh.NewText().
				Title("Description").
				Value(&f.Description),
			huh.NewSelect[schema.Priority]().
				Title("Priority").
				Options(
					huh.NewOption("High", schema.PriorityHigh),
					huh.NewOption("Medium", schema.PriorityMedium),
					huh.NewOption("Low", schema.PriorityLow),
				).
				Value(&f.Priority),
			huh.NewInput().
				Title("Due").
				Placeholder("tomorrow, next friday, 2026-05-01").
				Value(&due).
				Validate(func(s string) error {
					_, err := duedate.Parse(s, time.Now())
					return err
				}),
			huh.NewInput().
				Title("Tags").
				Placeholder("comma separated").
				Value(&tags),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}

	f.Tags = nil
	for _, t := range strings.Split(tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			f.Tags = append(f.Tags, t)
		}
	}
	return due, nil
}

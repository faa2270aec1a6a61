package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"anchorsync/internal/services"
	"anchorsync/pkg"
)

func newTaskCmd(a *app) *cobra.Command {
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks in the configured store",
	}

	addCmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			description, _ := cmd.Flags().GetString("description")
			priorityFlag, _ := cmd.Flags().GetString("priority")
			priority, err := pkg.ParsePriority(priorityFlag)
			if err != nil {
				return err
			}
			return a.withTasks(cmd, func(svc *services.TaskService) error {
				task, err := svc.Add(cmd.Context(), strings.Join(args, " "), description, priority)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Added", formatTask(task))
				return nil
			})
		},
	}
	addCmd.Flags().StringP("description", "d", "", "Task description")
	addCmd.Flags().StringP("priority", "p", string(pkg.PriorityMedium), "Priority: high, medium, low")

	listCmd := &cobra.Command{
		Use:     "list [query]",
		Aliases: []string{"ls"},
		Short:   "List tasks, newest first",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			return a.withTasks(cmd, func(svc *services.TaskService) error {
				tasks, err := svc.Search(cmd.Context(), query)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(tasks) == 0 {
					fmt.Fprintln(out, dimColor.Sprint("No tasks"))
					return nil
				}
				for _, t := range tasks {
					fmt.Fprintln(out, formatTask(t))
				}

				p, err := svc.Progress(cmd.Context())
				if err != nil {
					return err
				}
				if line := formatProgress(p); line != "" {
					fmt.Fprintln(out)
					fmt.Fprintln(out, headColor.Sprint(line))
				}
				return nil
			})
		},
	}

	doneCmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Toggle a task's completed flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTasks(cmd, func(svc *services.TaskService) error {
				task, err := svc.ToggleCompleted(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), formatTask(task))
				return nil
			})
		},
	}

	deleteCmd := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTasks(cmd, func(svc *services.TaskService) error {
				task, err := svc.Delete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Deleted", errorColor.Sprint(task.Title))
				return nil
			})
		},
	}

	taskCmd.AddCommand(addCmd, listCmd, doneCmd, deleteCmd)
	return taskCmd
}

// withTasks opens the store for the duration of fn
func (a *app) withTasks(cmd *cobra.Command, fn func(*services.TaskService) error) error {
	repo, err := openRepository(cmd.Context(), a.cfg.Repository)
	if err != nil {
		return err
	}
	defer closeRepository(repo)
	return fn(services.NewTaskService(repo))
}

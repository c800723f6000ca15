package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/contextlens/contextlens/internal/core"
	"github.com/contextlens/contextlens/internal/core/store"
	"github.com/contextlens/contextlens/internal/output"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect and run stored background tasks",
}

var tasksCreateCmd = &cobra.Command{
	Use:   "create <prompt>",
	Short: "Store a pending task for later processing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		noSearch, _ := cmd.Flags().GetBool("no-search")

		rt, err := buildRuntime(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close() }()

		if _, err := rt.requireStore(); err != nil {
			return err
		}

		task, err := rt.engine.CreateTask(cmd.Context(), args[0], kind, core.WithSearch(!noSearch))
		if err != nil {
			return err
		}

		return writeFormatted(cmd, task.ID, func(f output.Formatter) (string, error) {
			return f.FormatTasks([]*core.BackgroundTask{task})
		})
	},
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored tasks, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		rawStatus, _ := cmd.Flags().GetString("status")
		status, err := parseTaskStatus(rawStatus)
		if err != nil {
			return err
		}

		db, err := openStore(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		tasks, err := db.ListTasks(cmd.Context(), limit, status)
		if err != nil {
			return err
		}

		return writeFormatted(cmd, "tasks", func(f output.Formatter) (string, error) {
			return f.FormatTasks(tasks)
		})
	},
}

var tasksShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one stored task including its result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		task, err := db.GetTask(cmd.Context(), strings.TrimSpace(args[0]))
		if err != nil {
			return err
		}

		return writeFormatted(cmd, task.ID, func(f output.Formatter) (string, error) {
			if resp, ok := task.Result(); ok && resp != nil {
				return f.FormatResponse(resp)
			}
			return f.FormatTasks([]*core.BackgroundTask{task})
		})
	},
}

var tasksRunCmd = &cobra.Command{
	Use:   "run <id>...",
	Short: "Process stored pending tasks",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close() }()

		db, err := rt.requireStore()
		if err != nil {
			return err
		}

		tasks := make([]*core.BackgroundTask, 0, len(args))
		for _, id := range args {
			task, err := db.GetTask(cmd.Context(), strings.TrimSpace(id))
			if err != nil {
				return err
			}
			if status := task.Status(); status != core.TaskPending {
				return fmt.Errorf("task %s is %s; only pending tasks can run", task.ID, status)
			}
			if err := db.ClaimTask(cmd.Context(), task.ID); err != nil {
				return err
			}
			tasks = append(tasks, task)
		}

		results := rt.engine.RunBatch(cmd.Context(), tasks)
		return writeFormatted(cmd, "tasks-run", func(f output.Formatter) (string, error) {
			return f.FormatTasks(results)
		})
	},
}

func parseTaskStatus(raw string) (core.TaskStatus, error) {
	status := core.TaskStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case "", core.TaskPending, core.TaskProcessing, core.TaskCompleted, core.TaskError:
		return status, nil
	default:
		return "", fmt.Errorf("unknown task status %q", raw)
	}
}

func init() {
	rootCmd.AddCommand(tasksCmd)
	tasksCmd.AddCommand(tasksCreateCmd, tasksListCmd, tasksShowCmd, tasksRunCmd)

	tasksCreateCmd.Flags().String("kind", string(core.TaskKindResearch), "Task kind: research, code-generation, analysis, search-and-summarize")
	tasksCreateCmd.Flags().Bool("no-search", false, "Disable web search for this task")
	tasksListCmd.Flags().Int("limit", store.DefaultTaskListLimit, "Maximum tasks to list")
	tasksListCmd.Flags().String("status", "", "Filter by status: pending, processing, completed, error")

	for _, c := range []*cobra.Command{tasksCreateCmd, tasksListCmd, tasksShowCmd, tasksRunCmd} {
		addOutputFlags(c, allFormats...)
	}
}

package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var taskLimit int

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "List, inspect and abort background tasks",
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent tasks",
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskAbortCmd = &cobra.Command{
	Use:   "abort <task-id>",
	Short: "Ask a running task to stop",
	Long: `Ask a running task to stop.

Imports stop after the current batch and keep the rows already written.`,
	Args: cobra.ExactArgs(1),
	RunE: runTaskAbort,
}

func init() {
	taskListCmd.Flags().IntVarP(&taskLimit, "limit", "n", 20, "max results")

	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskShowCmd)
	taskCmd.AddCommand(taskAbortCmd)
}

func runTaskList(cmd *cobra.Command, args []string) error {
	tasks, err := api.ListTasks(cmd.Context(), taskLimit)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks found")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTASK\tDATASET\tSTATUS\tCREATED\tMESSAGE")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.TaskName, orDash(t.DatasetSlug), t.Status, t.CreatedAt.Format("2006-01-02 15:04:05"), t.Message)
	}
	return tw.Flush()
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	t, err := api.GetTask(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}

	fmt.Printf("Task: %s\n", t.ID)
	fmt.Printf("  Name: %s\n", t.TaskName)
	fmt.Printf("  Dataset: %s\n", orDash(t.DatasetSlug))
	fmt.Printf("  Status: %s\n", t.Status)
	fmt.Printf("  Message: %s\n", orDash(t.Message))
	fmt.Printf("  Creator: %s\n", orDash(t.Creator))
	if t.Start != nil {
		fmt.Printf("  Started: %s\n", t.Start.Format(time.RFC3339))
	}
	if t.End != nil {
		fmt.Printf("  Ended: %s\n", t.End.Format(time.RFC3339))
	}
	if t.AbortRequested {
		fmt.Println("  Abort requested")
	}
	if t.Traceback != "" {
		fmt.Printf("\n%s\n", t.Traceback)
	}
	return nil
}

func runTaskAbort(cmd *cobra.Command, args []string) error {
	t, err := api.AbortTask(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("abort task: %w", err)
	}
	fmt.Printf("Abort requested: %s (%s)\n", t.ID, t.Status)
	return nil
}

package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	datasetDescription string
	datasetQuery       string
	datasetForce       bool
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Create, list, show and delete datasets",
}

var datasetCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an empty dataset",
	Args:  cobra.ExactArgs(1),
	RunE:  runDatasetCreate,
}

var datasetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List datasets",
	Long: `List datasets, or search them by name, description and columns.

Examples:
  tabledockctl dataset list
  tabledockctl dataset list --query invoices`,
	RunE: runDatasetList,
}

var datasetShowCmd = &cobra.Command{
	Use:   "show <slug>",
	Short: "Show a dataset's schema and state",
	Args:  cobra.ExactArgs(1),
	RunE:  runDatasetShow,
}

var datasetDeleteCmd = &cobra.Command{
	Use:   "delete <slug>",
	Short: "Delete a dataset and all its rows",
	Long: `Delete a dataset and all its rows.

A running task on the dataset is aborted first. Requires confirmation unless
--force is used.`,
	Args: cobra.ExactArgs(1),
	RunE: runDatasetDelete,
}

func init() {
	datasetCreateCmd.Flags().StringVarP(&datasetDescription, "description", "d", "", "dataset description")
	datasetListCmd.Flags().StringVarP(&datasetQuery, "query", "q", "", "search text")
	datasetDeleteCmd.Flags().BoolVarP(&datasetForce, "force", "f", false, "skip confirmation")

	datasetCmd.AddCommand(datasetCreateCmd)
	datasetCmd.AddCommand(datasetListCmd)
	datasetCmd.AddCommand(datasetShowCmd)
	datasetCmd.AddCommand(datasetDeleteCmd)
}

func runDatasetCreate(cmd *cobra.Command, args []string) error {
	ds, err := api.CreateDataset(cmd.Context(), args[0], datasetDescription)
	if err != nil {
		return fmt.Errorf("create dataset: %w", err)
	}
	fmt.Printf("Created: %s\n", ds.Slug)
	return nil
}

func runDatasetList(cmd *cobra.Command, args []string) error {
	datasets, err := api.ListDatasets(cmd.Context(), datasetQuery)
	if err != nil {
		return fmt.Errorf("list datasets: %w", err)
	}
	if len(datasets) == 0 {
		fmt.Println("No datasets found")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLUG\tNAME\tROWS\tCOLUMNS\tLOCKED")
	for _, ds := range datasets {
		rows := "-"
		if ds.RowCount != nil {
			rows = fmt.Sprint(*ds.RowCount)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%v\n", ds.Slug, ds.Name, rows, len(ds.Columns), ds.Locked)
	}
	return tw.Flush()
}

func runDatasetShow(cmd *cobra.Command, args []string) error {
	ds, err := api.GetDataset(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get dataset: %w", err)
	}

	fmt.Printf("Dataset: %s (%s)\n", ds.Name, ds.Slug)
	if ds.Description != "" {
		fmt.Printf("  Description: %s\n", ds.Description)
	}
	fmt.Printf("  Rows: %d\n", ds.Rows())
	fmt.Printf("  Created: %s by %s\n", ds.CreatedAt.Format(time.RFC3339), orDash(ds.Creator))
	if ds.LastModified != nil {
		fmt.Printf("  Last change: %s (%s by %s)\n", ds.LastModification, ds.LastModified.Format(time.RFC3339), orDash(ds.LastModifiedBy))
	}
	if ds.Locked {
		fmt.Printf("  Locked by task: %s\n", ds.CurrentTaskID)
	}

	if !ds.HasSchema() {
		fmt.Println("  No columns yet; import a file to set them")
		return nil
	}
	fmt.Println("  Columns:")
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for i, col := range ds.Columns {
		typed := ""
		if i < len(ds.TypedColumnNames) && ds.TypedColumnNames[i] != "" {
			typed = ds.TypedColumnNames[i]
		}
		var typ string
		if i < len(ds.ColumnTypes) {
			typ = string(ds.ColumnTypes[i])
		}
		fmt.Fprintf(tw, "    %d\t%s\t%s\t%s\n", i, col, typ, typed)
	}
	return tw.Flush()
}

func runDatasetDelete(cmd *cobra.Command, args []string) error {
	slug := args[0]

	if !datasetForce {
		fmt.Printf("About to delete dataset %s and all its rows\n", slug)
		fmt.Print("\nContinue? [y/N]: ")

		response, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := api.DeleteDataset(cmd.Context(), slug); err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}
	fmt.Printf("Deleted: %s\n", slug)
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

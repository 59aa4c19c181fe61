package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	rowQuery  string
	rowOffset int
	rowLimit  int
)

var rowCmd = &cobra.Command{
	Use:   "row",
	Short: "Read and edit single rows",
}

var rowSearchCmd = &cobra.Command{
	Use:   "search <slug>",
	Short: "Page through a dataset's rows",
	Long: `Page through a dataset's rows, optionally filtered by text.

Examples:
  tabledockctl row search sales --query oslo --limit 20`,
	Args: cobra.ExactArgs(1),
	RunE: runRowSearch,
}

var rowGetCmd = &cobra.Command{
	Use:   "get <slug> <external-id>",
	Short: "Show one row",
	Args:  cobra.ExactArgs(2),
	RunE:  runRowGet,
}

var rowPutCmd = &cobra.Command{
	Use:   "put <slug> <external-id> <value>...",
	Short: "Add or replace one row",
	Long: `Add or replace one row. Give one value per dataset column.

Examples:
  tabledockctl row put cities OSL OSL Oslo`,
	Args: cobra.MinimumNArgs(3),
	RunE: runRowPut,
}

var rowDeleteCmd = &cobra.Command{
	Use:   "delete <slug> <external-id>",
	Short: "Delete one row",
	Args:  cobra.ExactArgs(2),
	RunE:  runRowDelete,
}

func init() {
	rowSearchCmd.Flags().StringVarP(&rowQuery, "query", "q", "", "search text")
	rowSearchCmd.Flags().IntVar(&rowOffset, "offset", 0, "rows to skip")
	rowSearchCmd.Flags().IntVarP(&rowLimit, "limit", "n", 50, "max rows")

	rowCmd.AddCommand(rowSearchCmd)
	rowCmd.AddCommand(rowGetCmd)
	rowCmd.AddCommand(rowPutCmd)
	rowCmd.AddCommand(rowDeleteCmd)
}

func runRowSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ds, err := api.GetDataset(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get dataset: %w", err)
	}
	page, err := api.SearchRows(ctx, ds.Slug, rowQuery, rowOffset, rowLimit)
	if err != nil {
		return fmt.Errorf("search rows: %w", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ROW\tID\t%s\n", strings.Join(ds.Columns, "\t"))
	for _, r := range page.Rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", r.Row, orDash(r.ExternalID), strings.Join(r.Data, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d-%d of %d\n", page.Offset+min(1, len(page.Rows)), page.Offset+len(page.Rows), page.Total)
	return nil
}

func runRowGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ds, err := api.GetDataset(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get dataset: %w", err)
	}
	row, err := api.GetRow(ctx, ds.Slug, args[1])
	if err != nil {
		return fmt.Errorf("get row: %w", err)
	}

	fmt.Printf("Row %d (%s)\n", row.Row, orDash(row.ExternalID))
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for i, v := range row.Data {
		name := fmt.Sprintf("column %d", i)
		if i < len(ds.Columns) {
			name = ds.Columns[i]
		}
		fmt.Fprintf(tw, "  %s\t%s\n", name, v)
	}
	return tw.Flush()
}

func runRowPut(cmd *cobra.Command, args []string) error {
	row, err := api.PutRow(cmd.Context(), args[0], args[1], args[2:])
	if err != nil {
		return fmt.Errorf("put row: %w", err)
	}
	fmt.Printf("Saved row %d (%s)\n", row.Row, row.ExternalID)
	return nil
}

func runRowDelete(cmd *cobra.Command, args []string) error {
	if err := api.DeleteRow(cmd.Context(), args[0], args[1]); err != nil {
		return fmt.Errorf("delete row: %w", err)
	}
	fmt.Printf("Deleted row %s\n", args[1])
	return nil
}

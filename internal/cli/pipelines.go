package cli

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/tabledock/internal/core"
)

var (
	externalIDColumn string
	typedColumns     []string
	columnTypes      []string
	exportFilename   string
	exportOutput     string
	waitForTask      bool
	pollInterval     time.Duration
)

var importCmd = &cobra.Command{
	Use:   "import <slug> <upload-id>",
	Short: "Import an uploaded file into a dataset",
	Long: `Import an uploaded file into a dataset.

The first import sets the dataset's columns. Later imports must have the same
header. Rows whose external id already exists replace the stored row.

Examples:
  tabledockctl import sales 1f0c... --external-id order_id --wait
  tabledockctl import sales 1f0c... --typed amount,date --type amount=float`,
	Args: cobra.ExactArgs(2),
	RunE: runImport,
}

var reindexCmd = &cobra.Command{
	Use:   "reindex <slug>",
	Short: "Rewrite a dataset's rows with new column types",
	Long: `Rewrite every row of a dataset, typically after changing which columns
get a typed search field.

With --external-id every row is re-keyed by that column's value.

Examples:
  tabledockctl reindex sales --typed amount --type amount=float --wait
  tabledockctl reindex sales --external-id order_id`,
	Args: cobra.ExactArgs(1),
	RunE: runReindex,
}

var exportCmd = &cobra.Command{
	Use:   "export <slug>",
	Short: "Export a dataset to CSV",
	Long: `Export every row of a dataset to a CSV file on the server.

With --output the command waits for the export and downloads the file.

Examples:
  tabledockctl export sales --wait
  tabledockctl export sales --output sales.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	for _, cmd := range []*cobra.Command{importCmd, reindexCmd, exportCmd} {
		cmd.Flags().BoolVarP(&waitForTask, "wait", "w", false, "wait for the task to finish")
		cmd.Flags().DurationVar(&pollInterval, "poll", time.Second, "task polling interval with --wait")
	}
	for _, cmd := range []*cobra.Command{importCmd, reindexCmd} {
		cmd.Flags().StringSliceVar(&typedColumns, "typed", nil, "columns that get a typed search field")
		cmd.Flags().StringSliceVar(&columnTypes, "type", nil, "column type overrides as column=type")
	}
	importCmd.Flags().StringVar(&externalIDColumn, "external-id", "", "column holding each row's external id")
	reindexCmd.Flags().StringVar(&externalIDColumn, "external-id", "", "re-key every row by this column")
	exportCmd.Flags().StringVarP(&exportFilename, "filename", "f", "", "export file name on the server")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "download the export to this local path")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	slug, uploadID := args[0], args[1]

	ds, err := api.GetDataset(ctx, slug)
	if err != nil {
		return fmt.Errorf("get dataset: %w", err)
	}
	columns, types := ds.Columns, ds.ColumnTypes
	if !ds.HasSchema() {
		up, err := api.GetUpload(ctx, uploadID)
		if err != nil {
			return fmt.Errorf("get upload: %w", err)
		}
		columns, types = up.Columns, up.GuessedTypes
	}

	opts, err := schemaOptions(columns, types)
	if err != nil {
		return err
	}
	if externalIDColumn != "" {
		idx := slices.Index(columns, externalIDColumn)
		if idx < 0 {
			return fmt.Errorf("no column named %q", externalIDColumn)
		}
		opts.ExternalIDIndex = &idx
	}

	task, err := api.Import(ctx, slug, uploadID, opts)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	return followTask(ctx, task)
}

func runReindex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ds, err := api.GetDataset(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get dataset: %w", err)
	}
	opts, err := schemaOptions(ds.Columns, ds.ColumnTypes)
	if err != nil {
		return err
	}
	if externalIDColumn != "" {
		idx := slices.Index(ds.Columns, externalIDColumn)
		if idx < 0 {
			return fmt.Errorf("no column named %q", externalIDColumn)
		}
		opts.ExternalIDIndex = &idx
	}

	task, err := api.Reindex(ctx, ds.Slug, opts)
	if err != nil {
		return fmt.Errorf("reindex: %w", err)
	}
	return followTask(ctx, task)
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	task, err := api.Export(ctx, args[0], exportFilename)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if exportOutput == "" {
		return followTask(ctx, task)
	}

	waitForTask = true
	if err := followTask(ctx, task); err != nil {
		return err
	}
	done, err := api.GetTask(ctx, task.ID)
	if err != nil {
		return err
	}

	f, err := os.Create(exportOutput)
	if err != nil {
		return err
	}
	if err := api.DownloadExport(ctx, exportName(done), f); err != nil {
		f.Close()
		return fmt.Errorf("download export: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("Saved: %s\n", exportOutput)
	return nil
}

// exportName reads the file name from a finished export task's message,
// falling back to the requested name.
func exportName(task *core.TaskStatus) string {
	if i := strings.LastIndex(task.Message, " rows to "); i >= 0 {
		return task.Message[i+len(" rows to "):]
	}
	return exportFilename
}

// schemaOptions turns the --typed and --type flags into import options for
// the given columns. Without flags the server keeps its own choice.
func schemaOptions(columns []string, types []core.ColumnType) (core.ImportOptions, error) {
	var opts core.ImportOptions

	if len(columnTypes) > 0 {
		opts.ColumnTypes = slices.Clone(types)
		if len(opts.ColumnTypes) != len(columns) {
			opts.ColumnTypes = make([]core.ColumnType, len(columns))
			for i := range opts.ColumnTypes {
				opts.ColumnTypes[i] = core.TypeText
			}
		}
		for _, spec := range columnTypes {
			name, typ, ok := strings.Cut(spec, "=")
			if !ok {
				return opts, fmt.Errorf("invalid --type %q, want column=type", spec)
			}
			idx := slices.Index(columns, name)
			if idx < 0 {
				return opts, fmt.Errorf("no column named %q", name)
			}
			ct := core.ColumnType(typ)
			if !ct.Valid() {
				return opts, fmt.Errorf("unknown column type %q", typ)
			}
			opts.ColumnTypes[idx] = ct
		}
	}

	if len(typedColumns) > 0 {
		opts.TypedColumns = make([]bool, len(columns))
		for _, name := range typedColumns {
			idx := slices.Index(columns, name)
			if idx < 0 {
				return opts, fmt.Errorf("no column named %q", name)
			}
			opts.TypedColumns[idx] = true
		}
	}

	return opts, nil
}

// followTask prints the scheduled task and, with --wait, its progress until
// it finishes. A task that does not succeed is reported as an error.
func followTask(ctx context.Context, task *core.TaskStatus) error {
	fmt.Printf("Task %s: %s %s\n", task.ID, task.TaskName, task.Status)
	if !waitForTask {
		return nil
	}

	last := ""
	done, err := api.WaitTask(ctx, task.ID, pollInterval, func(t *core.TaskStatus) {
		if t.Message != "" && t.Message != last {
			last = t.Message
			fmt.Printf("  %s\n", t.Message)
		}
	})
	if err != nil {
		return fmt.Errorf("wait for task: %w", err)
	}

	fmt.Printf("Task %s: %s\n", done.ID, done.Status)
	if done.Status != core.TaskSuccess {
		return fmt.Errorf("task %s ended %s: %s", done.ID, done.Status, done.Message)
	}
	return nil
}

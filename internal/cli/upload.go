package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var uploadEncoding string

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a CSV or XLSX file",
	Long: `Upload a file so it can be imported into a dataset.

The server detects the delimiter, quoting and header and guesses a type for
each column. The printed upload id is what "import" expects.

Examples:
  tabledockctl upload sales.csv
  tabledockctl upload legacy.csv --encoding windows-1252`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVarP(&uploadEncoding, "encoding", "e", "", "text encoding of the file (default: server default)")
}

func runUpload(cmd *cobra.Command, args []string) error {
	up, err := api.Upload(cmd.Context(), args[0], uploadEncoding)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	fmt.Printf("Uploaded: %s\n", up.ID)
	fmt.Printf("  File: %s (%d bytes, %s)\n", up.OriginalFilename, up.Size, up.Encoding)
	fmt.Printf("  Columns: %s\n", strings.Join(up.Columns, ", "))
	if len(up.GuessedTypes) > 0 {
		types := make([]string, len(up.GuessedTypes))
		for i, t := range up.GuessedTypes {
			types[i] = string(t)
		}
		fmt.Printf("  Types: %s\n", strings.Join(types, ", "))
	}
	return nil
}

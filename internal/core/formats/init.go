// Package formats registers the importable file formats with the core
// registry. Import this package to ensure all formats are registered.
package formats

import "github.com/JonMunkholm/tabledock/internal/core"

func init() {
	core.RegisterFormat(core.FileFormat{
		Key:        "csv",
		TaskName:   "import.csv",
		Extensions: []string{".csv", ".tsv", ".txt"},
		Sniff:      sniffCSV,
		Open:       openCSV,
		CountRows:  countCSVRows,
	})

	core.RegisterFormat(core.FileFormat{
		Key:        "xlsx",
		TaskName:   "import.xlsx",
		Extensions: []string{".xlsx"},
		Sniff:      sniffXLSX,
		Open:       openXLSX,
		CountRows:  countXLSXRows,
	})
}

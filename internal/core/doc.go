// Package core provides the business logic for dataset import and export.
//
// This package holds all domain logic independent of any transport or storage
// backend. It can be used by web handlers, CLI tools, or tests without
// modification; persistence, the row index and blob storage are reached
// through the interfaces in store.go.
//
// # Architecture
//
// The package is organized around several key concepts:
//
//   - Datasets: named collections of rows with an ordered column schema.
//   - Uploads: registered files whose dialect, encoding and header have been
//     sniffed by a [FileFormat].
//   - Tasks: [TaskStatus] records tracking one background pipeline run.
//   - Service: the entry point for every operation (import, export, reindex,
//     single-row edits, dataset deletion).
//
// # File Formats
//
// Formats are registered at init time using [RegisterFormat]. Each
// [FileFormat] knows how to sniff an upload, open it as a stream of rows and
// estimate its row count:
//
//	core.RegisterFormat(core.FileFormat{
//	    Key:        "csv",
//	    TaskName:   "import.csv",
//	    Extensions: []string{".csv", ".txt"},
//	    Sniff:      sniffCSV,
//	    Open:       openCSV,
//	    CountRows:  countCSVRows,
//	})
//
// # Pipelines
//
// Imports, exports and reindexes run asynchronously under a [Scheduler].
// Triggering operations validate synchronously, take the dataset lock,
// create a PENDING task and return it; the pipeline then drives the task
// through STARTED to SUCCESS, FAILURE or ABORTED and releases the lock on
// every exit path.
//
// Pipelines never run in the same goroutine as the request that scheduled
// them. Abort is cooperative: [Service.AbortTask] sets a flag on the task
// record which the pipeline polls after every flushed batch.
//
// # Row Documents
//
// Each row is stored in the index as a [Document] produced by
// [EncodeRow]. The original cell values survive as a JSON array in the
// "data" field so [Document.Row] reproduces the row exactly.
package core

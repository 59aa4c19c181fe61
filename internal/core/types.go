package core

import "time"

// ColumnType is the inferred primitive type of a dataset column.
type ColumnType string

const (
	TypeInt      ColumnType = "int"
	TypeFloat    ColumnType = "float"
	TypeBool     ColumnType = "bool"
	TypeDatetime ColumnType = "datetime"
	TypeText     ColumnType = "unicode"
)

// Valid reports whether t is one of the known column types.
func (t ColumnType) Valid() bool {
	switch t {
	case TypeInt, TypeFloat, TypeBool, TypeDatetime, TypeText:
		return true
	}
	return false
}

// Quoting modes recorded on a Dialect.
const (
	QuoteMinimal = "minimal"
	QuoteAll     = "all"
)

// Dialect describes the physical layout of a delimited text file.
// XLSX uploads carry a nil dialect.
type Dialect struct {
	Delimiter        string `json:"delimiter"`
	QuoteChar        string `json:"quotechar"`
	Quoting          string `json:"quoting"`
	LineTerminator   string `json:"lineterminator"`
	DoubleQuote      bool   `json:"doublequote"`
	SkipInitialSpace bool   `json:"skipinitialspace"`
}

// Upload is a registered file with the results of sniffing it.
type Upload struct {
	ID               string       `json:"id"`
	Filename         string       `json:"filename"`
	OriginalFilename string       `json:"original_filename"`
	Size             int64        `json:"size"`
	Creator          string       `json:"creator"`
	Encoding         string       `json:"encoding"`
	Dialect          *Dialect     `json:"dialect,omitempty"`
	Columns          []string     `json:"columns"`
	SampleData       [][]string   `json:"sample_data"`
	GuessedTypes     []ColumnType `json:"guessed_types"`
	Imported         bool         `json:"imported"`
	CreatedAt        time.Time    `json:"created_at"`
}

// Dataset is a named collection of rows with an ordered column schema.
//
// Columns, ColumnTypes, TypedColumns and TypedColumnNames are parallel
// slices once a schema has been set. An untyped column has an empty
// entry in TypedColumnNames.
type Dataset struct {
	Slug             string       `json:"slug"`
	Name             string       `json:"name"`
	Description      string       `json:"description"`
	InitialUploadID  string       `json:"initial_upload_id,omitempty"`
	Columns          []string     `json:"columns"`
	ColumnTypes      []ColumnType `json:"column_types"`
	TypedColumns     []bool       `json:"typed_columns"`
	TypedColumnNames []string     `json:"typed_column_names"`
	SampleData       [][]string   `json:"sample_data"`
	RowCount         *int64       `json:"row_count"`
	CurrentTaskID    string       `json:"current_task_id,omitempty"`
	Creator          string       `json:"creator"`
	CreatedAt        time.Time    `json:"created_at"`
	LastModified     *time.Time   `json:"last_modified,omitempty"`
	LastModification string       `json:"last_modification,omitempty"`
	LastModifiedBy   string       `json:"last_modified_by,omitempty"`
	Locked           bool         `json:"locked"`
	LockedAt         *time.Time   `json:"locked_at,omitempty"`
}

// HasSchema reports whether the dataset's columns have been fixed by an import.
func (d *Dataset) HasSchema() bool {
	return len(d.Columns) > 0
}

// Rows returns the row count, treating an unknown count as zero.
func (d *Dataset) Rows() int64 {
	if d.RowCount == nil {
		return 0
	}
	return *d.RowCount
}

// TaskState is the lifecycle state of a background task.
type TaskState string

const (
	TaskPending TaskState = "PENDING"
	TaskStarted TaskState = "STARTED"
	TaskSuccess TaskState = "SUCCESS"
	TaskFailure TaskState = "FAILURE"
	TaskAborted TaskState = "ABORTED"
)

// Terminal reports whether no further transitions are allowed from s.
func (s TaskState) Terminal() bool {
	return s == TaskSuccess || s == TaskFailure || s == TaskAborted
}

// TaskStatus records one run of a background pipeline.
type TaskStatus struct {
	ID             string     `json:"id"`
	TaskName       string     `json:"task_name"`
	DatasetSlug    string     `json:"dataset_slug,omitempty"`
	Status         TaskState  `json:"status"`
	Message        string     `json:"message"`
	Start          *time.Time `json:"start,omitempty"`
	End            *time.Time `json:"end,omitempty"`
	Traceback      string     `json:"traceback,omitempty"`
	Creator        string     `json:"creator"`
	AbortRequested bool       `json:"abort_requested"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Task names used by the scheduler. Import task names come from the
// registered file formats.
const (
	TaskExportCSV = "export.csv"
	TaskReindex   = "reindex"
	TaskPurge     = "purge"
)

// ImportOptions are the per-call options for ImportData and ReindexData.
type ImportOptions struct {
	// ExternalIDIndex selects the column holding each row's external id.
	ExternalIDIndex *int `json:"external_id_field_index,omitempty"`

	// ColumnTypes, when set, overrides the guessed column types.
	ColumnTypes []ColumnType `json:"column_types,omitempty"`

	// TypedColumns, when set, marks which columns get a typed index field.
	TypedColumns []bool `json:"typed_columns,omitempty"`
}

// Row is a decoded index document.
type Row struct {
	ID         string   `json:"id"`
	ExternalID string   `json:"external_id,omitempty"`
	Row        int      `json:"row"`
	Data       []string `json:"data"`
}

// RowPage is one page of rows returned by SearchRows.
type RowPage struct {
	Total  int64 `json:"total"`
	Offset int   `json:"offset"`
	Limit  int   `json:"limit"`
	Rows   []Row `json:"rows"`
}

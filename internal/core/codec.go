package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Index document field names.
const (
	FieldID          = "id"
	FieldDatasetSlug = "dataset_slug"
	FieldExternalID  = "external_id"
	FieldFullText    = "full_text"
	FieldData        = "data"
	FieldRow         = "row"
)

// Document is the index representation of one dataset row.
type Document struct {
	ID          string
	DatasetSlug string
	ExternalID  string
	FullText    string
	Data        []string
	Row         int
	Typed       map[string]Value
}

// EncodeRow builds the index document for a row of ds.
//
// The id is derived from the dataset slug and the external id when one is
// given, otherwise a fresh UUID, so re-importing rows with the same external
// id overwrites them without touching other datasets. Typed values
// are produced for every column marked in ds.TypedColumns; a cell that does
// not parse as its column type fails the row.
func EncodeRow(ds *Dataset, data []string, externalID string, rowNum int) (Document, error) {
	id := RowDocumentID(ds.Slug, externalID)
	if externalID == "" {
		id = uuid.NewString()
	}

	doc := Document{
		ID:          id,
		DatasetSlug: ds.Slug,
		ExternalID:  externalID,
		FullText:    strings.Join(data, "\n"),
		Data:        data,
		Row:         rowNum,
	}

	for i, typed := range ds.TypedColumns {
		if !typed || i >= len(data) || i >= len(ds.ColumnTypes) || i >= len(ds.TypedColumnNames) {
			continue
		}
		v, err := ParseValue(data[i], ds.ColumnTypes[i])
		if err != nil {
			return Document{}, NewDataImportError("row %d column %q: %v", rowNum, ds.Columns[i], err)
		}
		if v.Kind == KindNull {
			continue
		}
		if doc.Typed == nil {
			doc.Typed = make(map[string]Value)
		}
		doc.Typed[ds.TypedColumnNames[i]] = v
	}

	return doc, nil
}

// RowDocumentID is the index id of the row with externalID in the dataset
// slug. Slugs never contain a colon, so ids of different datasets differ.
func RowDocumentID(slug, externalID string) string {
	return slug + ":" + externalID
}

// Fields flattens the document for an Index.
func (d Document) Fields() (map[string]any, error) {
	data, err := json.Marshal(d.Data)
	if err != nil {
		return nil, fmt.Errorf("encode row data: %w", err)
	}

	m := map[string]any{
		FieldID:          d.ID,
		FieldDatasetSlug: d.DatasetSlug,
		FieldFullText:    d.FullText,
		FieldData:        string(data),
		FieldRow:         d.Row,
	}
	if d.ExternalID != "" {
		m[FieldExternalID] = d.ExternalID
	}
	for name, v := range d.Typed {
		m[name] = v.Interface()
	}
	return m, nil
}

// DocumentFromFields is the inverse of Fields. Typed fields are not read
// back; they are derived data and Data alone reproduces the row.
func DocumentFromFields(m map[string]any) (Document, error) {
	var doc Document

	id, ok := m[FieldID].(string)
	if !ok || id == "" {
		return doc, fmt.Errorf("document has no id")
	}
	doc.ID = id
	doc.DatasetSlug, _ = m[FieldDatasetSlug].(string)
	doc.ExternalID, _ = m[FieldExternalID].(string)
	doc.FullText, _ = m[FieldFullText].(string)

	raw, ok := m[FieldData].(string)
	if !ok {
		return doc, fmt.Errorf("document %s has no data field", id)
	}
	if err := json.Unmarshal([]byte(raw), &doc.Data); err != nil {
		return doc, fmt.Errorf("document %s: decode data: %w", id, err)
	}

	switch n := m[FieldRow].(type) {
	case int:
		doc.Row = n
	case int64:
		doc.Row = int(n)
	case float64:
		doc.Row = int(n)
	case json.Number:
		v, err := n.Int64()
		if err != nil {
			return doc, fmt.Errorf("document %s: row: %w", id, err)
		}
		doc.Row = int(v)
	}

	return doc, nil
}

// Decoded returns the document as a Row.
func (d Document) Decoded() Row {
	return Row{ID: d.ID, ExternalID: d.ExternalID, Row: d.Row, Data: d.Data}
}

// fieldQuery builds a single-clause index query matching value exactly.
func fieldQuery(field, value string) string {
	return field + ":" + QuoteQueryValue(value)
}

// QuoteQueryValue quotes value for use in an index query.
func QuoteQueryValue(value string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(value) + `"`
}

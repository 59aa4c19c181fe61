package core

import (
	"encoding/json"
	"testing"
)

func testDataset() *Dataset {
	ds := &Dataset{
		Slug:         "contributors",
		Columns:      []string{"id", "first_name", "amount", "joined"},
		ColumnTypes:  []ColumnType{TypeInt, TypeText, TypeFloat, TypeDatetime},
		TypedColumns: []bool{true, false, true, true},
	}
	ds.TypedColumnNames = TypedColumnNames(ds.Columns, ds.ColumnTypes, ds.TypedColumns)
	return ds
}

func TestEncodeRow(t *testing.T) {
	ds := testDataset()
	row := []string{"1", "Brian", "12.50", "2010-06-01"}

	doc, err := EncodeRow(ds, row, "1", 3)
	if err != nil {
		t.Fatalf("EncodeRow: %v", err)
	}

	if doc.ID != "contributors:1" || doc.ExternalID != "1" {
		t.Errorf("id = %q, external id = %q, want contributors:1 and 1", doc.ID, doc.ExternalID)
	}
	if doc.FullText != "1\nBrian\n12.50\n2010-06-01" {
		t.Errorf("full text = %q", doc.FullText)
	}
	if doc.Row != 3 || doc.DatasetSlug != "contributors" {
		t.Errorf("row = %d, slug = %q", doc.Row, doc.DatasetSlug)
	}
	if v := doc.Typed["column_int_id"]; v.Kind != KindInt || v.Int != 1 {
		t.Errorf("typed id = %+v", v)
	}
	if v := doc.Typed["column_float_amount"]; v.Kind != KindFloat || v.Float != 12.5 {
		t.Errorf("typed amount = %+v", v)
	}
	if _, ok := doc.Typed["column_unicode_first_name"]; ok {
		t.Error("untyped column produced a typed field")
	}
}

func TestEncodeRow_GeneratesIDWithoutExternalID(t *testing.T) {
	ds := testDataset()
	a, err := EncodeRow(ds, []string{"1", "a", "", ""}, "", 1)
	if err != nil {
		t.Fatalf("EncodeRow: %v", err)
	}
	b, err := EncodeRow(ds, []string{"1", "a", "", ""}, "", 1)
	if err != nil {
		t.Fatalf("EncodeRow: %v", err)
	}
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("expected distinct generated ids, got %q and %q", a.ID, b.ID)
	}
	if _, ok := a.Typed["column_float_amount"]; ok {
		t.Error("empty cell produced a typed value")
	}
}

func TestEncodeRow_IDsScopedToDataset(t *testing.T) {
	a := testDataset()
	b := testDataset()
	b.Slug = "contributors-2"

	docA, err := EncodeRow(a, []string{"1", "a", "", ""}, "1", 1)
	if err != nil {
		t.Fatalf("EncodeRow: %v", err)
	}
	docB, err := EncodeRow(b, []string{"1", "a", "", ""}, "1", 1)
	if err != nil {
		t.Fatalf("EncodeRow: %v", err)
	}
	if docA.ID == docB.ID {
		t.Errorf("rows of different datasets share id %q", docA.ID)
	}
	if docA.ExternalID != docB.ExternalID {
		t.Errorf("external ids = %q and %q, want equal", docA.ExternalID, docB.ExternalID)
	}

	// Slug "a" with id "b-c" must not collide with slug "a-b" with id "c".
	if RowDocumentID("a", "b-c") == RowDocumentID("a-b", "c") {
		t.Error("ids collide across slugs")
	}
}

func TestEncodeRow_BadTypedValue(t *testing.T) {
	_, err := EncodeRow(testDataset(), []string{"one", "a", "1", ""}, "", 9)
	if !IsDataImport(err) {
		t.Fatalf("expected DataImportError, got %v", err)
	}

	// A non-finite float could not be serialized for the index.
	_, err = EncodeRow(testDataset(), []string{"1", "a", "NaN", ""}, "", 9)
	if !IsDataImport(err) {
		t.Fatalf("expected DataImportError for NaN, got %v", err)
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	ds := testDataset()
	row := []string{"2", "Ché \"Q\"", "", "line1\nline2"}
	ds.TypedColumns = make([]bool, 4)

	doc, err := EncodeRow(ds, row, "ext-2", 7)
	if err != nil {
		t.Fatalf("EncodeRow: %v", err)
	}
	fields, err := doc.Fields()
	if err != nil {
		t.Fatalf("Fields: %v", err)
	}

	// Simulate a JSON index: numbers come back as float64.
	raw, err := json.Marshal(fields)
	if err != nil {
		t.Fatal(err)
	}
	var decodedFields map[string]any
	if err := json.Unmarshal(raw, &decodedFields); err != nil {
		t.Fatal(err)
	}

	back, err := DocumentFromFields(decodedFields)
	if err != nil {
		t.Fatalf("DocumentFromFields: %v", err)
	}
	if back.ID != "contributors:ext-2" || back.ExternalID != "ext-2" || back.Row != 7 {
		t.Errorf("decoded = %+v", back)
	}
	if len(back.Data) != len(row) {
		t.Fatalf("decoded %d cells, want %d", len(back.Data), len(row))
	}
	for i := range row {
		if back.Data[i] != row[i] {
			t.Errorf("cell %d = %q, want %q", i, back.Data[i], row[i])
		}
	}
}

func TestDocumentFromFields_Invalid(t *testing.T) {
	if _, err := DocumentFromFields(map[string]any{"data": "[]"}); err == nil {
		t.Error("expected error for missing id")
	}
	if _, err := DocumentFromFields(map[string]any{"id": "1"}); err == nil {
		t.Error("expected error for missing data")
	}
	if _, err := DocumentFromFields(map[string]any{"id": "1", "data": "{"}); err == nil {
		t.Error("expected error for malformed data")
	}
}

func TestQuoteQueryValue(t *testing.T) {
	if got := QuoteQueryValue(`a "b" \c`); got != `"a \"b\" \\c"` {
		t.Errorf("QuoteQueryValue() = %s", got)
	}
	if got := fieldQuery(FieldDatasetSlug, "x"); got != `dataset_slug:"x"` {
		t.Errorf("fieldQuery() = %s", got)
	}
}

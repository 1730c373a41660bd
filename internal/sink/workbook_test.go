package sink

import (
	"path/filepath"
	"strings"
	"testing"
)

func openTestWorkbook(t *testing.T) (*Workbook, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notices.xlsx")
	w, err := OpenWorkbook(path)
	if err != nil {
		t.Fatalf("OpenWorkbook: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w, path
}

func TestUpsertRowsKeyedOnFirstColumn(t *testing.T) {
	w, _ := openTestWorkbook(t)

	header := []string{"OCID", "Tender Title"}
	if err := w.UpsertRows("Tenders", header, [][]any{
		{"ocds-1", "First"},
		{"ocds-2", "Second"},
	}); err != nil {
		t.Fatalf("UpsertRows: %v", err)
	}

	// Same key overwrites in place, new key appends.
	if err := w.UpsertRows("Tenders", header, [][]any{
		{"ocds-1", "First (amended)"},
		{"ocds-3", "Third"},
	}); err != nil {
		t.Fatalf("UpsertRows (second pass): %v", err)
	}

	rows, err := w.ReadRows("Tenders")
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want 4 (header + 3 data)", len(rows))
	}
	if rows[0][0] != "OCID" || rows[0][1] != "Tender Title" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][1] != "First (amended)" {
		t.Errorf("row ocds-1 = %v, want amended title in place", rows[1])
	}
	if rows[3][0] != "ocds-3" {
		t.Errorf("row 4 = %v, want appended ocds-3", rows[3])
	}
}

func TestWriteTableReplacesSheet(t *testing.T) {
	w, _ := openTestWorkbook(t)

	header := []string{"OCID", "Title"}
	if err := w.WriteTable("Unawarded", header, [][]any{{"ocds-1", "Old"}, {"ocds-2", "Old"}}); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	if err := w.WriteTable("Unawarded", header, [][]any{{"ocds-9", "New"}}); err != nil {
		t.Fatalf("WriteTable (replace): %v", err)
	}

	rows, err := w.ReadRows("Unawarded")
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want header + 1", len(rows))
	}
	if rows[1][0] != "ocds-9" {
		t.Errorf("row = %v, want ocds-9", rows[1])
	}
}

func TestAppendRows(t *testing.T) {
	w, _ := openTestWorkbook(t)

	if err := w.UpsertRows("Lots", []string{"OCID", "Lot Number"}, [][]any{{"ocds-1", 1}}); err != nil {
		t.Fatalf("UpsertRows: %v", err)
	}
	if err := w.AppendRows("Lots", [][]any{{"ocds-1", 2}, {"ocds-1", 3}}); err != nil {
		t.Fatalf("AppendRows: %v", err)
	}

	rows, err := w.ReadRows("Lots")
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	if len(rows) != 4 {
		t.Errorf("got %d rows, want 4", len(rows))
	}
}

func TestSaveAndReopen(t *testing.T) {
	w, path := openTestWorkbook(t)

	if err := w.UpsertRows("Tenders", []string{"OCID", "Title"}, [][]any{{"ocds-1", "Kept"}}); err != nil {
		t.Fatalf("UpsertRows: %v", err)
	}
	if err := w.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	w.Close()

	reopened, err := OpenWorkbook(path)
	if err != nil {
		t.Fatalf("OpenWorkbook (reopen): %v", err)
	}
	defer reopened.Close()

	rows, err := reopened.ReadRows("Tenders")
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	if len(rows) != 2 || rows[1][1] != "Kept" {
		t.Errorf("reopened rows = %v", rows)
	}
}

func TestSheetName(t *testing.T) {
	long := strings.Repeat("x", 40)
	if got := SheetName(long); len(got) != 31 {
		t.Errorf("SheetName length = %d, want 31", len(got))
	}
	if got := SheetName("A/B:C*D?E"); got != "A-B-CDE" {
		t.Errorf("SheetName = %q, want A-B-CDE", got)
	}
}

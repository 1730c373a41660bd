// Package sink writes extracted notice records to an Excel workbook, one
// sheet per notice family plus supporting sheets. Rows are keyed on their
// first column so re-running an ingest upserts instead of duplicating.
package sink

import (
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Excel caps sheet names at 31 characters.
const maxSheetName = 31

// Workbook wraps one xlsx file on disk.
type Workbook struct {
	path string
	f    *excelize.File
}

// OpenWorkbook opens an existing workbook or creates a new one at path.
func OpenWorkbook(path string) (*Workbook, error) {
	if _, err := os.Stat(path); err == nil {
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("opening workbook: %w", err)
		}
		return &Workbook{path: path, f: f}, nil
	}
	return &Workbook{path: path, f: excelize.NewFile()}, nil
}

// Close releases the underlying file handle without saving.
func (w *Workbook) Close() error {
	return w.f.Close()
}

// Save writes the workbook to disk, dropping the default empty sheet when
// real sheets exist.
func (w *Workbook) Save() error {
	sheets := w.f.GetSheetList()
	if len(sheets) > 1 {
		for _, name := range sheets {
			if name == "Sheet1" {
				rows, err := w.f.GetRows(name)
				if err == nil && len(rows) == 0 {
					w.f.DeleteSheet(name)
				}
				break
			}
		}
	}
	if err := w.f.SaveAs(w.path); err != nil {
		return fmt.Errorf("saving workbook: %w", err)
	}
	return nil
}

// SheetName normalizes a name to something Excel accepts.
func SheetName(name string) string {
	r := strings.NewReplacer("[", "(", "]", ")", ":", "-", "*", "", "?", "", "/", "-", "\\", "-")
	name = r.Replace(name)
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	return name
}

// EnsureSheet creates the sheet if it does not exist yet.
func (w *Workbook) EnsureSheet(name string) error {
	name = SheetName(name)
	if idx, err := w.f.GetSheetIndex(name); err == nil && idx >= 0 {
		return nil
	}
	if _, err := w.f.NewSheet(name); err != nil {
		return fmt.Errorf("creating sheet %s: %w", name, err)
	}
	return nil
}

// WriteTable replaces the sheet contents with a header row plus data rows.
func (w *Workbook) WriteTable(sheet string, header []string, rows [][]any) error {
	sheet = SheetName(sheet)
	if idx, err := w.f.GetSheetIndex(sheet); err == nil && idx >= 0 {
		w.f.DeleteSheet(sheet)
	}
	if _, err := w.f.NewSheet(sheet); err != nil {
		return fmt.Errorf("creating sheet %s: %w", sheet, err)
	}
	if err := w.writeHeader(sheet, header); err != nil {
		return err
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := w.f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing row %d on %s: %w", i+2, sheet, err)
		}
	}
	return nil
}

// UpsertRows writes rows keyed on their first column. A row whose key already
// exists on the sheet overwrites that row in place; new keys append. The
// header is (re)written on row 1.
func (w *Workbook) UpsertRows(sheet string, header []string, rows [][]any) error {
	sheet = SheetName(sheet)
	if err := w.EnsureSheet(sheet); err != nil {
		return err
	}
	if err := w.writeHeader(sheet, header); err != nil {
		return err
	}

	existing, err := w.f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("reading sheet %s: %w", sheet, err)
	}
	// Map key (first cell) to its 1-based row number; row 1 is the header.
	byKey := make(map[string]int)
	last := 1
	for i, row := range existing {
		if i == 0 {
			continue
		}
		last = i + 1
		if len(row) > 0 && row[0] != "" {
			byKey[row[0]] = i + 1
		}
	}

	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		key := fmt.Sprintf("%v", row[0])
		target, ok := byKey[key]
		if !ok {
			last++
			target = last
			byKey[key] = target
		}
		cell, _ := excelize.CoordinatesToCellName(1, target)
		if err := w.f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing row %d on %s: %w", target, sheet, err)
		}
	}
	return nil
}

// AppendRows adds rows after the current last row without keying.
func (w *Workbook) AppendRows(sheet string, rows [][]any) error {
	sheet = SheetName(sheet)
	if err := w.EnsureSheet(sheet); err != nil {
		return err
	}
	existing, err := w.f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("reading sheet %s: %w", sheet, err)
	}
	next := len(existing) + 1
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, next+i)
		if err := w.f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing row %d on %s: %w", next+i, sheet, err)
		}
	}
	return nil
}

// ReadRows returns the sheet contents as strings, header row included.
func (w *Workbook) ReadRows(sheet string) ([][]string, error) {
	rows, err := w.f.GetRows(SheetName(sheet))
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheet, err)
	}
	return rows, nil
}

func (w *Workbook) writeHeader(sheet string, header []string) error {
	if len(header) == 0 {
		return nil
	}
	style, err := w.f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := w.f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("writing header on %s: %w", sheet, err)
		}
		if err := w.f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return fmt.Errorf("styling header on %s: %w", sheet, err)
		}
		col, _ := excelize.ColumnNumberToName(i + 1)
		w.f.SetColWidth(sheet, col, col, 18)
	}
	return nil
}
